package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/venuewatch/venuewatch/internal/analysis"
	"github.com/venuewatch/venuewatch/internal/dispatch"
	"github.com/venuewatch/venuewatch/internal/store"
)

// Outcome reports what happened to one ingested analysis: where it was
// stored and, when actionable, the bus delivery it produced.
type Outcome struct {
	EventKey   store.Key
	Dispatched bool
	MessageID  string
	TopicPath  string
}

// Coordinator runs the analysis-to-action flow: validate the raw payload,
// store the event, and publish a dispatch when the analysis calls for one.
type Coordinator struct {
	store     *store.Store
	publisher *dispatch.Publisher
	units     analysis.UnitSet
	policy    dispatch.RetryPolicy
}

func New(s *store.Store, p *dispatch.Publisher, units analysis.UnitSet, policy dispatch.RetryPolicy) *Coordinator {
	return &Coordinator{
		store:     s,
		publisher: p,
		units:     units,
		policy:    policy,
	}
}

// Ingest validates raw, stores the resulting event keyed by now, and
// publishes a dispatch when unit_to_dispatch is not "None".
//
// Failure boundaries: a validation failure stores and publishes nothing; a
// duplicate key stores nothing and the caller retries with a fresh timestamp;
// a publish failure leaves the event stored (it was accepted) and surfaces
// the error with its retryable flag so the operator knows whether to wait or
// escalate.
func (c *Coordinator) Ingest(ctx context.Context, raw []byte, now time.Time) (Outcome, error) {
	a, err := analysis.Validate(raw, c.units)
	if err != nil {
		return Outcome{}, err
	}

	key, err := c.store.Put(a, now)
	if err != nil {
		return Outcome{}, err
	}
	slog.Info("event stored", "key", key, "unit", a.UnitToDispatch(), "summary", a.Summary())

	if !a.Actionable() {
		return Outcome{EventKey: key}, nil
	}

	req := dispatch.Request{
		UnitType:      a.UnitToDispatch(),
		Location:      dispatch.Location{},
		Priority:      priorityFor(a),
		CorrelationID: string(key),
	}

	id, err := dispatch.Retry(ctx, c.publisher, req, c.policy)
	if err != nil {
		return Outcome{EventKey: key}, fmt.Errorf("event %s stored but dispatch failed: %w", key, err)
	}

	topic := c.publisher.TopicPath()
	slog.Info(fmt.Sprintf("Published message ID: %s to %s", id, topic),
		"correlation_id", key,
		"unit_type", req.UnitType,
		"priority", req.Priority,
	)

	return Outcome{
		EventKey:   key,
		Dispatched: true,
		MessageID:  id,
		TopicPath:  topic,
	}, nil
}

// priorityFor derives dispatch priority from the detected conditions: fire or
// smoke always goes out high, everything else normal.
func priorityFor(a analysis.Analysis) dispatch.Priority {
	if a.FireSmokeDetected() {
		return dispatch.PriorityHigh
	}
	return dispatch.PriorityNormal
}
