// Package crawler implements the menu and review crawl stages. Each stage
// reports progress through the job tracker at its own granularity and checks
// the cancellation token between page fetches.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/devkyu/platewatch/internal/models"
	"github.com/devkyu/platewatch/internal/repository"
	"github.com/devkyu/platewatch/internal/storage"
)

// ProgressReporter is the slice of the job tracker a crawl stage calls back
// into.
type ProgressReporter interface {
	Progress(ctx context.Context, jobID string, current, total int, metadata map[string]any)
}

type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64
	MaxPages    int
}

type Crawler struct {
	repo    *repository.Repository
	tracker ProgressReporter
	archive storage.Storage
	client  *http.Client
	cfg     Config
}

func New(repo *repository.Repository, tracker ProgressReporter, archive storage.Storage, cfg Config) *Crawler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 5 << 20
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 10
	}
	return &Crawler{
		repo:    repo,
		tracker: tracker,
		archive: archive,
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
	}
}

// CrawlMenu fetches and parses a restaurant's menu page, replacing the
// stored menu with the fresh one. Steps: fetch, parse, save.
func (c *Crawler) CrawlMenu(ctx context.Context, jobID string, restaurantID int64) (map[string]any, error) {
	rest, err := c.repo.GetRestaurantByID(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load restaurant: %w", err)
	}

	const steps = 3

	body, err := c.fetch(ctx, rest.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu page: %w", err)
	}
	c.tracker.Progress(ctx, jobID, 1, steps, nil)

	snapshotKey := c.archivePage(ctx, jobID, restaurantID, "menu", rest.URL, body)

	items, err := parseMenu(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse menu page: %w", err)
	}
	c.tracker.Progress(ctx, jobID, 2, steps, nil)

	if err := c.repo.ReplaceMenuItems(ctx, restaurantID, items); err != nil {
		return nil, fmt.Errorf("failed to save menu items: %w", err)
	}
	c.tracker.Progress(ctx, jobID, 3, steps, nil)

	slog.Info("menu crawl finished", "job_id", jobID, "restaurant_id", restaurantID, "items", len(items))

	result := map[string]any{"menu_count": len(items)}
	if snapshotKey != "" {
		result["snapshot_key"] = snapshotKey
	}
	return result, nil
}

// CrawlReviews walks the restaurant's review pages in order, saving new
// reviews as it goes. The cancellation token is consulted before every page
// fetch; progress is one unit per page.
func (c *Crawler) CrawlReviews(ctx context.Context, jobID string, restaurantID int64) (map[string]any, error) {
	rest, err := c.repo.GetRestaurantByID(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load restaurant: %w", err)
	}

	reviewURL := rest.ReviewURL
	if reviewURL == "" {
		reviewURL = rest.URL
	}

	saved := 0
	pages := 0
	for page := 1; page <= c.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			// Cancellation checkpoint. Pages already saved stay saved.
			slog.Info("review crawl stopping at checkpoint", "job_id", jobID, "page", page)
			break
		}

		pageURL := fmt.Sprintf("%s?page=%d", reviewURL, page)
		body, err := c.fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch review page %d: %w", page, err)
		}

		if page == 1 {
			c.archivePage(ctx, jobID, restaurantID, "reviews", pageURL, body)
		}

		reviews, err := parseReviews(body, restaurantID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse review page %d: %w", page, err)
		}
		if len(reviews) == 0 {
			break
		}

		n, err := c.repo.SaveReviews(ctx, restaurantID, reviews)
		if err != nil {
			return nil, fmt.Errorf("failed to save reviews from page %d: %w", page, err)
		}
		saved += n
		pages = page

		c.tracker.Progress(ctx, jobID, page, c.cfg.MaxPages, map[string]any{"saved_count": saved})
	}

	slog.Info("review crawl finished",
		"job_id", jobID, "restaurant_id", restaurantID, "pages", pages, "saved", saved)

	return map[string]any{"saved_count": saved, "pages": pages}, nil
}

// fetch downloads one page with timeout and size limits.
func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if pageURL == "" {
		return nil, fmt.Errorf("empty page URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > c.cfg.MaxBodySize {
		return nil, fmt.Errorf("page too large: %d bytes (max %d)", resp.ContentLength, c.cfg.MaxBodySize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read page body: %w", err)
	}
	if int64(len(body)) > c.cfg.MaxBodySize {
		return nil, fmt.Errorf("page too large after download (max %d)", c.cfg.MaxBodySize)
	}

	slog.Debug("page fetched", "url", pageURL, "size_bytes", len(body))
	return body, nil
}

// archivePage stores the raw HTML so a bad parse can be replayed later.
// Archiving is best-effort and never fails the crawl.
func (c *Crawler) archivePage(ctx context.Context, jobID string, restaurantID int64, kind, pageURL string, body []byte) string {
	if c.archive == nil {
		return ""
	}

	contentType := mimetype.Detect(body).String()
	filename := fmt.Sprintf("%s_%d.html", kind, restaurantID)

	res, err := c.archive.Upload(ctx, filename, bytes.NewReader(body), contentType)
	if err != nil {
		slog.Warn("failed to archive page snapshot", "job_id", jobID, "kind", kind, "error", err)
		return ""
	}

	snap := &models.Snapshot{
		RestaurantID: restaurantID,
		JobID:        jobID,
		Kind:         kind,
		StorageKey:   res.Key,
		URL:          pageURL,
		ContentType:  contentType,
		SizeBytes:    int64(len(body)),
	}
	if err := c.repo.CreateSnapshot(ctx, snap); err != nil {
		slog.Warn("failed to record page snapshot", "job_id", jobID, "kind", kind, "error", err)
	}

	return res.Key
}
