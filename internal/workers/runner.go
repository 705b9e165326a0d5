// Package workers glues the admission queue to the job engine: each pulled
// item becomes a started job driven through the pipeline executor with the
// stage list for its work type.
package workers

import (
	"context"
	"log/slog"

	"github.com/devkyu/platewatch/internal/crawler"
	"github.com/devkyu/platewatch/internal/job"
	"github.com/devkyu/platewatch/internal/pipeline"
	"github.com/devkyu/platewatch/internal/queue"
	"github.com/devkyu/platewatch/internal/summary"
	"github.com/devkyu/platewatch/internal/tracker"
)

type JobRunner struct {
	tracker    *tracker.Tracker
	executor   *pipeline.Executor
	crawler    *crawler.Crawler
	summarizer *summary.Summarizer
}

func NewJobRunner(t *tracker.Tracker, e *pipeline.Executor, c *crawler.Crawler, s *summary.Summarizer) *JobRunner {
	return &JobRunner{
		tracker:    t,
		executor:   e,
		crawler:    c,
		summarizer: s,
	}
}

// Handle implements queue.Handler.
func (r *JobRunner) Handle(ctx context.Context, item queue.Item) (string, error) {
	jobID, err := r.tracker.Start(ctx, item.Type, item.SubjectID, item.Payload, "")
	if err != nil {
		slog.Error("failed to start job for queue item", "item_id", item.ID, "error", err)
		return "", err
	}

	return jobID, r.executor.Run(ctx, jobID, r.stages(jobID, item))
}

// stages builds the ordered stage list for one item. Stage participation is
// declarative: callers can switch individual stages off in the payload.
func (r *JobRunner) stages(jobID string, item queue.Item) []pipeline.Stage {
	menuStage := pipeline.Stage{
		Name:    "menu-crawl",
		Enabled: enabled(item.Payload, "crawl_menu", true),
		Run: func(ctx context.Context) (any, error) {
			return r.crawler.CrawlMenu(ctx, jobID, item.SubjectID)
		},
	}
	reviewStage := pipeline.Stage{
		Name:    "review-crawl",
		Enabled: enabled(item.Payload, "crawl_reviews", true),
		Run: func(ctx context.Context) (any, error) {
			return r.crawler.CrawlReviews(ctx, jobID, item.SubjectID)
		},
	}
	summaryStage := pipeline.Stage{
		Name: "summarize",
		Run: func(ctx context.Context) (any, error) {
			return r.summarizer.Summarize(ctx, jobID, item.SubjectID)
		},
	}

	switch item.Type {
	case job.TypeRestaurantCrawl:
		summaryStage.Enabled = enabled(item.Payload, "summarize", true)
		return []pipeline.Stage{menuStage, reviewStage, summaryStage}
	case job.TypeReviewCrawl:
		summaryStage.Enabled = enabled(item.Payload, "summarize", false)
		return []pipeline.Stage{reviewStage, summaryStage}
	case job.TypeReviewSummary:
		summaryStage.Enabled = true
		return []pipeline.Stage{summaryStage}
	default:
		return nil
	}
}

func enabled(payload map[string]any, key string, def bool) bool {
	if v, ok := payload[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
