package agent

import (
	"regexp"
	"strings"

	"github.com/venuewatch/venuewatch/internal/dispatch"
)

// intent is the coarse operator intent behind a chat message. Personas use it
// to decide whether the request falls inside their capability set or needs a
// transfer.
type intent int

const (
	intentUnknown intent = iota
	intentDispatch
	intentQuery
	intentReport
)

var (
	dispatchWords = []string{"dispatch", "send a unit", "send the", "send police", "send medical", "send fire", "deploy"}
	reportWords   = []string{"report", "summarize", "summary", "narrative", "overview"}
	queryWords    = []string{"status", "what happened", "what is", "show", "list", "events", "history", "when", "how many"}

	eventKeyPattern = regexp.MustCompile(`event_[0-9T:.+\-]+Z?`)
)

func detectIntent(input string) intent {
	lower := strings.ToLower(input)
	for _, w := range dispatchWords {
		if strings.Contains(lower, w) {
			return intentDispatch
		}
	}
	if strings.Contains(lower, "send") && strings.Contains(lower, "unit") {
		return intentDispatch
	}
	for _, w := range reportWords {
		if strings.Contains(lower, w) {
			return intentReport
		}
	}
	if eventKeyPattern.MatchString(input) {
		return intentQuery
	}
	for _, w := range queryWords {
		if strings.Contains(lower, w) {
			return intentQuery
		}
	}
	return intentUnknown
}

// findEventKey pulls the first event key mentioned in the message, if any.
func findEventKey(input string) (string, bool) {
	m := eventKeyPattern.FindString(input)
	return m, m != ""
}

// parseUnit maps operator phrasing to a configured unit type. Matching is by
// the unit's leading word ("police", "medical", "fire") so the configured
// display names stay authoritative.
func parseUnit(input string, units []string) (string, bool) {
	lower := strings.ToLower(input)
	for _, u := range units {
		head := strings.ToLower(strings.Fields(u)[0])
		if strings.Contains(lower, head) {
			return u, true
		}
	}
	return "", false
}

var (
	zonePattern     = regexp.MustCompile(`(?i)zone\s+([A-Za-z0-9]+)`)
	platformPattern = regexp.MustCompile(`(?i)platform\s+([A-Za-z0-9]+)`)
)

// parseLocation extracts zone/platform mentions from operator text. Both
// fields are free-form; absence is allowed.
func parseLocation(input string) dispatch.Location {
	var loc dispatch.Location
	if m := zonePattern.FindStringSubmatch(input); m != nil {
		loc.Zone = "Zone " + m[1]
	}
	if m := platformPattern.FindStringSubmatch(input); m != nil {
		loc.Platform = "Platform " + m[1]
	}
	return loc
}

func parsePriority(input string) dispatch.Priority {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "urgent"), strings.Contains(lower, "high priority"),
		strings.Contains(lower, "emergency"), strings.Contains(lower, "immediately"):
		return dispatch.PriorityHigh
	case strings.Contains(lower, "low priority"), strings.Contains(lower, "routine"):
		return dispatch.PriorityLow
	default:
		return dispatch.PriorityNormal
	}
}
