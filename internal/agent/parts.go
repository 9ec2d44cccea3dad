package agent

import (
	"fmt"
	"strings"
)

// PartKind tags one fragment of a persona response.
type PartKind string

const (
	// PartText is human-readable response text.
	PartText PartKind = "text"
	// PartFunctionCall marks a tool-invocation fragment with no text payload.
	PartFunctionCall PartKind = "function_call"
)

// Part is one fragment of a multi-part persona response, consumed eagerly in
// order. Non-text kinds carry no text; they signal that a side effect
// happened during the turn.
type Part struct {
	Kind PartKind
	Text string
}

func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// Aggregate merges an ordered part sequence into a single user-facing text.
// Text parts are concatenated with nothing in between, preserving their
// original spacing. Every non-text part produces a warning instead of a
// failure: the aggregator stays usable when a turn's response is entirely a
// tool call. Empty text alongside warnings means "no human-readable content,
// side effects happened" and is not an error.
func Aggregate(parts []Part) (text string, warnings []string) {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("non-text part encountered: %s", p.Kind))
	}
	if len(parts) == 0 {
		// Zero text entries always come with at least one warning, so
		// callers can tell "nothing to show" from a lost response.
		warnings = append(warnings, "response contained no parts")
	}
	return b.String(), warnings
}

// WarningLine renders the once-per-turn operator warning for turns that
// contained non-text parts, or "" when the turn was all text.
func WarningLine(parts []Part) string {
	var kinds []string
	for _, p := range parts {
		if p.Kind != PartText {
			kinds = append(kinds, string(p.Kind))
		}
	}
	if len(kinds) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"Warning: there are non-text parts in the response: [%s], returning concatenated text result from text parts.",
		strings.Join(kinds, ", "),
	)
}
