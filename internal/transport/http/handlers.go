package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/devkyu/platewatch/internal/common"
	"github.com/devkyu/platewatch/internal/config"
	"github.com/devkyu/platewatch/internal/job"
	"github.com/devkyu/platewatch/internal/models"
	"github.com/devkyu/platewatch/internal/queue"
	"github.com/devkyu/platewatch/internal/redis"
	"github.com/devkyu/platewatch/internal/repository"
	"github.com/devkyu/platewatch/internal/tracker"
	"github.com/devkyu/platewatch/internal/validation"
)

// Handlers is the thin route layer over the engine's caller-facing surface:
// the tracker's start/get/cancel and the queue's enqueue/cancel/stats. No
// business logic lives here.
type Handlers struct {
	Tracker *tracker.Tracker
	Queue   *queue.Queue
	Repo    *repository.Repository
	Redis   *redis.Service
	Config  config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Post("/v1/restaurants", h.createRestaurant)
	r.Get("/v1/restaurants/{id}", h.getRestaurant)
	r.Get("/v1/restaurants/{id}/menu", h.getMenu)
	r.Get("/v1/restaurants/{id}/jobs", h.getActiveJobs)

	r.Group(func(r chi.Router) {
		r.Use(h.enqueueLimiter())

		r.Post("/v1/restaurants/{id}/crawl", h.enqueue(job.TypeRestaurantCrawl))
		r.Post("/v1/restaurants/{id}/reviews/crawl", h.enqueue(job.TypeReviewCrawl))
		r.Post("/v1/restaurants/{id}/reviews/summary", h.enqueue(job.TypeReviewSummary))
	})

	r.Get("/v1/jobs/{id}", h.getJob)
	r.Delete("/v1/jobs/{id}", h.cancelJob)

	r.Get("/v1/queue/stats", h.queueStats)
	r.Delete("/v1/queue/{id}", h.cancelQueueItem)
}

type createRestaurantRequest struct {
	Name      string `json:"name" validate:"required"`
	URL       string `json:"url" validate:"required,url"`
	ReviewURL string `json:"review_url" validate:"omitempty,url"`
	Address   string `json:"address"`
}

func (h *Handlers) createRestaurant(w http.ResponseWriter, r *http.Request) {
	var req createRestaurantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := validation.Struct(req); errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	rest := &models.Restaurant{
		Name:      req.Name,
		URL:       req.URL,
		ReviewURL: req.ReviewURL,
		Address:   req.Address,
	}
	if err := h.Repo.CreateRestaurant(r.Context(), rest); err != nil {
		slog.Error("failed to create restaurant", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, rest)
}

func (h *Handlers) getRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectID(w, r)
	if !ok {
		return
	}

	rest, err := h.Repo.GetRestaurantByID(r.Context(), id)
	if err != nil {
		if common.IsNotFound(err) {
			http.Error(w, "restaurant not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get restaurant", "restaurant_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rest)
}

func (h *Handlers) getMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectID(w, r)
	if !ok {
		return
	}

	items, err := h.Repo.GetMenuItems(r.Context(), id)
	if err != nil {
		slog.Error("failed to get menu items", "restaurant_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type enqueueRequest struct {
	CrawlMenu    *bool `json:"crawl_menu"`
	CrawlReviews *bool `json:"crawl_reviews"`
	Summarize    *bool `json:"summarize"`
}

// enqueue submits a work item for one restaurant. A duplicate submission for
// the same (restaurant, work type) while the first is still pending is a 409.
func (h *Handlers) enqueue(typ job.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := subjectID(w, r)
		if !ok {
			return
		}

		var req enqueueRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		if _, err := h.Repo.GetRestaurantByID(r.Context(), id); err != nil {
			if common.IsNotFound(err) {
				http.Error(w, "restaurant not found", http.StatusNotFound)
				return
			}
			slog.Error("failed to get restaurant", "restaurant_id", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		payload := map[string]any{}
		if req.CrawlMenu != nil {
			payload["crawl_menu"] = *req.CrawlMenu
		}
		if req.CrawlReviews != nil {
			payload["crawl_reviews"] = *req.CrawlReviews
		}
		if req.Summarize != nil {
			payload["summarize"] = *req.Summarize
		}

		item, err := h.Queue.Enqueue(typ, id, payload)
		if err != nil {
			if common.IsDuplicateJob(err) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			slog.Error("failed to enqueue work item", "restaurant_id", id, "type", typ, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, item)
	}
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	j, err := h.Tracker.Get(r.Context(), jobID)
	if err != nil {
		if common.IsNotFound(err) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get job", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, j)
}

func (h *Handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	// Cooperative cancellation: the running stage stops at its next
	// checkpoint, so the response is an acknowledgement, not a completion.
	h.Tracker.Cancel(r.Context(), jobID, map[string]any{"requested_by": "api"})
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "cancelling": true})
}

func (h *Handlers) getActiveJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectID(w, r)
	if !ok {
		return
	}

	jobs, err := h.Tracker.FindActiveBySubject(r.Context(), id)
	if err != nil {
		slog.Error("failed to list active jobs", "restaurant_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handlers) queueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Queue.Stats())
}

func (h *Handlers) cancelQueueItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	if err := h.Queue.CancelItem(itemID); err != nil {
		switch {
		case common.IsNotFound(err):
			http.Error(w, "queue item not found", http.StatusNotFound)
		case errors.Is(err, common.ErrItemInFlight), common.IsConflict(err):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("failed to cancel queue item", "item_id", itemID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "cancelled": true})
}

// enqueueLimiter rate-limits crawl submissions per client IP; the scraping
// collaborator is the scarce resource behind them.
func (h *Handlers) enqueueLimiter() func(http.Handler) http.Handler {
	rpm := h.Config.EnqueueRPM
	if rpm <= 0 {
		rpm = 30
	}
	return httprate.LimitByIP(rpm, time.Minute)
}

func subjectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid restaurant id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
