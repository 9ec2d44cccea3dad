package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Priority of a dispatch request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Location is a free-form venue position. It is not checked against a venue
// map here; that belongs to the consumer side.
type Location struct {
	Zone     string `json:"zone"`
	Platform string `json:"platform"`
}

// Request asks for a responder unit at a location. CorrelationID links the
// dispatch back to the originating event key and is empty for ad hoc,
// operator-initiated dispatches. Requests are transient: callers construct
// one, publish it, and keep only the returned message id.
type Request struct {
	UnitType      string   `json:"unit_type"`
	Location      Location `json:"location"`
	Priority      Priority `json:"priority"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// PublishError reports a failed publish attempt. Retryable failures
// (timeouts, transport unavailability) may be retried by the caller with
// backoff; permanent ones (malformed request) are fatal to the attempt.
type PublishError struct {
	Retryable bool
	Err       error
}

func (e *PublishError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("publish dispatch (%s): %v", kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Retryable reports whether err is a PublishError marked retryable.
func Retryable(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Retryable
}

// Transport sends one serialized dispatch message to the bus and returns the
// bus-assigned message id. Implementations must make exactly one send attempt
// per call.
type Transport interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
	TopicPath() string
}

// Publisher serializes dispatch requests onto a Transport. It performs no
// retries itself; retry policy belongs to the caller so the publisher stays a
// single observable send per call.
type Publisher struct {
	transport Transport
}

func NewPublisher(t Transport) *Publisher {
	return &Publisher{transport: t}
}

// TopicPath exposes the destination for operator-facing log lines.
func (p *Publisher) TopicPath() string { return p.transport.TopicPath() }

// Publish sends req to the dispatch topic and returns the bus-assigned
// message id. A returned id uniquely identifies the delivery for this call's
// request; deduplication of re-published requests (same correlation id) is a
// consumer responsibility.
func (p *Publisher) Publish(ctx context.Context, req Request) (string, error) {
	if req.UnitType == "" {
		return "", &PublishError{Err: errors.New("unit_type is required")}
	}
	if !req.Priority.Valid() {
		return "", &PublishError{Err: fmt.Errorf("invalid priority %q", req.Priority)}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	attrs := map[string]string{
		"unit_type": req.UnitType,
		"priority":  string(req.Priority),
	}
	if req.CorrelationID != "" {
		attrs["correlation_id"] = req.CorrelationID
	}

	id, err := p.transport.Publish(ctx, data, attrs)
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func classify(err error) error {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &PublishError{Retryable: true, Err: err}
	}
	// Unknown transport failures are assumed transient; the consumer side is
	// idempotent on correlation id, so an extra attempt is safe.
	return &PublishError{Retryable: true, Err: err}
}
