// Package notify pushes job-state events to interested observers. Delivery
// is best-effort: a sink never returns an error to the caller and never
// blocks job execution.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/devkyu/platewatch/internal/redis"
)

// Sink is the notification contract consumed by the job tracker. Emit must
// swallow its own failures; observers that miss an event catch up by reading
// job state instead.
type Sink interface {
	Emit(ctx context.Context, channel, event string, payload any)
}

// RedisSink publishes events over Redis pub/sub. The realtime gateway
// subscribes per restaurant channel and relays to connected clients.
type RedisSink struct {
	redis *redis.Service
}

func NewRedisSink(svc *redis.Service) *RedisSink {
	return &RedisSink{redis: svc}
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (s *RedisSink) Emit(ctx context.Context, channel, event string, payload any) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		slog.Error("failed to marshal notification", "channel", channel, "event", event, "error", err)
		return
	}

	if err := s.redis.Publish(ctx, channel, data); err != nil {
		slog.Warn("failed to publish notification", "channel", channel, "event", event, "error", err)
	}
}

// NopSink discards every event. Used in tests and sink-less deployments.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, channel, event string, payload any) {}
