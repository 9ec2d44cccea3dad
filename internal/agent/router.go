package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrNoCapableAgent means routing dead-ended: no persona could satisfy the
// request within the single allowed transfer.
var ErrNoCapableAgent = errors.New("no capable agent for this request")

// ErrSessionEnded is returned for turns on a disconnected session.
var ErrSessionEnded = errors.New("session has ended")

// NoCapableAgentMessage is the operator-facing guidance for a routing
// dead-end.
const NoCapableAgentMessage = "please rephrase or contact a human operator"

// Reply is the operator-visible outcome of one chat turn.
type Reply struct {
	Persona  PersonaName
	Text     string
	Warnings []string
}

// Router is the state machine over a session's active persona. Each operator
// message goes to the active persona first; if that persona signals a
// transfer, the router re-dispatches the same message to the target exactly
// once. A second transfer for the same message is a routing failure — the
// hard cap of one transfer per turn prevents hand-off loops.
type Router struct {
	personas map[PersonaName]Persona
}

func NewRouter(personas ...Persona) (*Router, error) {
	m := make(map[PersonaName]Persona, len(personas))
	for _, p := range personas {
		if _, dup := m[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate persona %q", p.Name())
		}
		m[p.Name()] = p
	}
	for _, required := range []PersonaName{PersonaDispatch, PersonaQuery, PersonaReport} {
		if _, ok := m[required]; !ok {
			return nil, fmt.Errorf("missing persona %q", required)
		}
	}
	return &Router{personas: m}, nil
}

// HandleTurn processes one operator message on a session. History entries
// accumulated during the turn are committed in a single append, so a
// cancelled turn never leaves the history half-updated.
func (r *Router) HandleTurn(ctx context.Context, s *Session, input string) (Reply, error) {
	if s.Ended() {
		return Reply{}, ErrSessionEnded
	}

	var pending []HistoryEntry

	active := r.personas[s.Active]
	result, err := active.Handle(ctx, input)
	if err != nil {
		return Reply{}, err
	}

	if t := result.Transfer; t != nil {
		target, ok := r.personas[t.To]
		if !ok || t.To == active.Name() {
			return Reply{}, fmt.Errorf("%w: %s cannot transfer to %q", ErrNoCapableAgent, active.Name(), t.To)
		}

		slog.Debug("persona transfer",
			"session_id", s.ID,
			"from", active.Name(),
			"to", t.To,
			"reason", t.Reason,
		)
		s.Active = t.To
		pending = append(pending, HistoryEntry{EventID: "none", Persona: t.To})

		result, err = target.Handle(ctx, input)
		if err != nil {
			s.commit(pending)
			return Reply{}, err
		}
		if result.Transfer != nil {
			// Second consecutive transfer for the same message.
			s.commit(pending)
			return Reply{}, fmt.Errorf("%w: %s transferred again to %q", ErrNoCapableAgent, t.To, result.Transfer.To)
		}
		active = target
	}

	if err := ctx.Err(); err != nil {
		// Cancelled mid-flight: commit nothing.
		return Reply{}, err
	}

	for range result.EventKeys {
		entry := HistoryEntry{EventID: uuid.New().String(), Persona: active.Name()}
		pending = append(pending, entry)
		slog.Debug(entry.AuditLine(), "session_id", s.ID)
	}
	s.commit(pending)

	text, warnings := Aggregate(result.Parts)
	if line := WarningLine(result.Parts); line != "" {
		slog.Warn(line, "session_id", s.ID, "persona", active.Name())
	}

	return Reply{
		Persona:  active.Name(),
		Text:     text,
		Warnings: warnings,
	}, nil
}
