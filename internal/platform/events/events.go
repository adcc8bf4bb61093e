// Package events publishes domain change events to the configured message
// sinks. Delivery is best-effort: publishers report failures to the caller,
// which decides whether to log them; nothing is retried or persisted.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is the envelope sent to every sink.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregateId"`
	OccurredAt  time.Time `json:"occurredAt"`
	Data        any       `json:"data,omitempty"`
}

// New builds an event with a fresh id and the current time.
func New(eventType, aggregateID string, data any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

// Publisher sends an event to a sink.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Multi fans an event out to every publisher and joins their errors.
// A failing sink does not stop delivery to the others.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes each event as a structured log line. It is the sink of
// last resort when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID).
		Str("event_type", evt.Type).
		Str("aggregate_id", evt.AggregateID).
		Time("occurred_at", evt.OccurredAt).
		Msg("event published")
	return nil
}

// Instrumented reports the outcome of every publish to observe.
func Instrumented(p Publisher, observe func(eventType string, err error)) Publisher {
	return PublisherFunc(func(ctx context.Context, evt Event) error {
		err := p.Publish(ctx, evt)
		observe(evt.Type, err)
		return err
	})
}
