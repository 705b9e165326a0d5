// Package summary turns a restaurant's stored reviews into a short LLM
// summary, persisted alongside the reviews.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/devkyu/platewatch/internal/crawler"
	"github.com/devkyu/platewatch/internal/models"
	"github.com/devkyu/platewatch/internal/repository"
)

const maxReviews = 200

type Summarizer struct {
	openAI  *openai.Client
	model   string
	repo    *repository.Repository
	tracker crawler.ProgressReporter
}

func NewSummarizer(apiKey, model string, repo *repository.Repository, tracker crawler.ProgressReporter) *Summarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Summarizer{
		openAI:  openai.NewClient(apiKey),
		model:   model,
		repo:    repo,
		tracker: tracker,
	}
}

// Summarize loads the restaurant's recent reviews, asks the model for a
// structured summary, and saves the result. Steps: load, complete, save.
func (s *Summarizer) Summarize(ctx context.Context, jobID string, restaurantID int64) (map[string]any, error) {
	start := time.Now()
	const steps = 3

	reviews, err := s.repo.GetReviews(ctx, restaurantID, maxReviews)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	if len(reviews) == 0 {
		return nil, fmt.Errorf("no reviews to summarize for restaurant %d", restaurantID)
	}
	s.tracker.Progress(ctx, jobID, 1, steps, nil)

	resp, err := s.openAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You summarize restaurant reviews. Given a list of customer reviews, " +
					"produce a concise summary covering: overall sentiment, most praised dishes, " +
					"recurring complaints, and service/atmosphere notes. Answer in the language " +
					"the majority of the reviews are written in.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(reviews),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	s.tracker.Progress(ctx, jobID, 2, steps, nil)

	record := &models.ReviewSummary{
		RestaurantID: restaurantID,
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		TokensUsed:   resp.Usage.TotalTokens,
		ReviewCount:  len(reviews),
	}
	if err := s.repo.CreateReviewSummary(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save review summary: %w", err)
	}
	s.tracker.Progress(ctx, jobID, 3, steps, nil)

	slog.Info("review summary created",
		"job_id", jobID,
		"restaurant_id", restaurantID,
		"review_count", len(reviews),
		"tokens_used", record.TokensUsed,
		"duration", time.Since(start))

	return map[string]any{
		"summary_id":   record.ID,
		"review_count": len(reviews),
		"tokens_used":  record.TokensUsed,
	}, nil
}

func buildPrompt(reviews []models.Review) string {
	var b strings.Builder
	b.WriteString("Reviews:\n")
	for i, rev := range reviews {
		fmt.Fprintf(&b, "%d. ", i+1)
		if rev.Rating > 0 {
			fmt.Fprintf(&b, "(%d/5) ", rev.Rating)
		}
		b.WriteString(rev.Content)
		b.WriteString("\n")
	}
	return b.String()
}
