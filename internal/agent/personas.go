package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/venuewatch/venuewatch/internal/analysis"
	"github.com/venuewatch/venuewatch/internal/dispatch"
	"github.com/venuewatch/venuewatch/internal/store"
)

// Transfer is the hand-off signal a persona emits when the request needs a
// capability it lacks.
type Transfer struct {
	To     PersonaName
	Reason string
}

// Result is a persona's answer to one operator message: either response parts
// (plus the event keys the response references, for provenance) or a transfer.
type Result struct {
	Parts     []Part
	EventKeys []store.Key
	Transfer  *Transfer
}

// Persona handles operator messages within its declared capability set.
type Persona interface {
	Name() PersonaName
	Handle(ctx context.Context, input string) (Result, error)
}

// Narrator turns a prompt into response parts. The language-model call behind
// it is an external collaborator; tests substitute a fake.
type Narrator interface {
	Narrate(ctx context.Context, prompt string) ([]Part, error)
}

// queryWindow is how far back the query and report personas look when the
// operator does not name a range.
const queryWindow = time.Hour

// DispatchPersona constructs dispatch requests and publishes them. It has no
// capability for historical queries and transfers those away.
type DispatchPersona struct {
	Publisher *dispatch.Publisher
	Units     analysis.UnitSet
	Policy    dispatch.RetryPolicy
}

func (p *DispatchPersona) Name() PersonaName { return PersonaDispatch }

func (p *DispatchPersona) Handle(ctx context.Context, input string) (Result, error) {
	switch detectIntent(input) {
	case intentQuery:
		return Result{Transfer: &Transfer{To: PersonaQuery, Reason: "historical queries are outside dispatch capability"}}, nil
	case intentReport:
		return Result{Transfer: &Transfer{To: PersonaReport, Reason: "narrative reports are outside dispatch capability"}}, nil
	}

	unit, ok := parseUnit(input, p.Units.Dispatchable())
	if !ok {
		return Result{Parts: []Part{TextPart(fmt.Sprintf(
			"Please specify which unit to dispatch (%s) and where.",
			strings.Join(p.Units.Dispatchable(), ", "),
		))}}, nil
	}

	req := dispatch.Request{
		UnitType: unit,
		Location: parseLocation(input),
		Priority: parsePriority(input),
	}

	id, err := dispatch.Retry(ctx, p.Publisher, req, p.Policy)
	if err != nil {
		if dispatch.Retryable(err) {
			return Result{}, fmt.Errorf("dispatch of %s failed after retries, will need to be re-issued: %w", unit, err)
		}
		return Result{}, fmt.Errorf("dispatch of %s failed permanently: %w", unit, err)
	}

	line := fmt.Sprintf("Published message ID: %s to %s", id, p.Publisher.TopicPath())
	slog.Info(line)

	text := fmt.Sprintf("Dispatched %s (priority %s).", unit, req.Priority)
	if req.Location.Zone != "" || req.Location.Platform != "" {
		text = fmt.Sprintf("Dispatched %s to %s (priority %s).",
			unit, joinLocation(req.Location), req.Priority)
	}
	return Result{Parts: []Part{TextPart(text + " " + line)}}, nil
}

// QueryPersona answers event-history questions from the store. It cannot
// issue dispatches.
type QueryPersona struct {
	Store *store.Store
	Now   func() time.Time
}

func (p *QueryPersona) Name() PersonaName { return PersonaQuery }

func (p *QueryPersona) Handle(ctx context.Context, input string) (Result, error) {
	switch detectIntent(input) {
	case intentDispatch:
		return Result{Transfer: &Transfer{To: PersonaDispatch, Reason: "issuing dispatches is outside query capability"}}, nil
	case intentReport:
		return Result{Transfer: &Transfer{To: PersonaReport, Reason: "narrative reports are outside query capability"}}, nil
	}

	if raw, ok := findEventKey(input); ok {
		e, err := p.Store.Get(store.Key(raw))
		if err != nil {
			// A missing key is an empty result, not a failure.
			return Result{Parts: []Part{TextPart(fmt.Sprintf("No event found for %s.", raw))}}, nil
		}
		return Result{
			Parts:     []Part{TextPart(describeEvent(e))},
			EventKeys: []store.Key{e.Key},
		}, nil
	}

	since := p.now().Add(-queryWindow)
	events := p.Store.ListSince(since)
	if len(events) == 0 {
		return Result{Parts: []Part{TextPart("No events recorded in the last hour.")}}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d event(s) in the last hour:\n", len(events))
	keys := make([]store.Key, 0, len(events))
	for _, e := range events {
		b.WriteString(describeEvent(e))
		b.WriteString("\n")
		keys = append(keys, e.Key)
	}
	return Result{Parts: []Part{TextPart(b.String())}, EventKeys: keys}, nil
}

func (p *QueryPersona) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ReportPersona summarizes a time range of events into a narrative via the
// Narrator. It has no dispatch capability.
type ReportPersona struct {
	Store    *store.Store
	Narrator Narrator
	Now      func() time.Time
}

func (p *ReportPersona) Name() PersonaName { return PersonaReport }

func (p *ReportPersona) Handle(ctx context.Context, input string) (Result, error) {
	if detectIntent(input) == intentDispatch {
		return Result{Transfer: &Transfer{To: PersonaDispatch, Reason: "issuing dispatches is outside report capability"}}, nil
	}

	since := p.now().Add(-queryWindow)
	events := p.Store.ListSince(since)
	if len(events) == 0 {
		return Result{Parts: []Part{TextPart("Nothing to report: no events recorded in the last hour.")}}, nil
	}

	var prompt strings.Builder
	prompt.WriteString("Summarize the following venue security events into a short situation report for an operator.\n")
	keys := make([]store.Key, 0, len(events))
	for _, e := range events {
		prompt.WriteString(describeEvent(e))
		prompt.WriteString("\n")
		keys = append(keys, e.Key)
	}

	parts, err := p.Narrator.Narrate(ctx, prompt.String())
	if err != nil {
		return Result{}, fmt.Errorf("generate report: %w", err)
	}
	return Result{Parts: parts, EventKeys: keys}, nil
}

func (p *ReportPersona) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func describeEvent(e store.Event) string {
	a := e.Analysis
	var conditions []string
	if a.CrowdDensityIncrease() {
		conditions = append(conditions, "crowd density increase")
	}
	if a.RestrictedMovements() {
		conditions = append(conditions, "restricted movements")
	}
	if a.FireSmokeDetected() {
		conditions = append(conditions, "fire/smoke detected")
	}
	cond := "no conditions flagged"
	if len(conditions) > 0 {
		cond = strings.Join(conditions, ", ")
	}
	return fmt.Sprintf("%s: %s [%s; unit: %s]", e.Key, a.Summary(), cond, a.UnitToDispatch())
}

func joinLocation(loc dispatch.Location) string {
	switch {
	case loc.Zone != "" && loc.Platform != "":
		return loc.Zone + ", " + loc.Platform
	case loc.Zone != "":
		return loc.Zone
	default:
		return loc.Platform
	}
}
