package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnitNone marks an analysis that does not call for a dispatch.
const UnitNone = "None"

// UnitSet is the set of dispatchable unit types accepted by the validator.
// The set is configuration-driven so new unit types can be added without a
// code change; UnitNone is always a member.
type UnitSet struct {
	units []string
}

// DefaultUnits returns the unit types the upstream system emits.
func DefaultUnits() UnitSet {
	return NewUnitSet("Police station unit", "Medical unit", "Fire unit")
}

// NewUnitSet builds a UnitSet from dispatchable unit names. UnitNone is
// included implicitly.
func NewUnitSet(units ...string) UnitSet {
	out := UnitSet{units: make([]string, 0, len(units)+1)}
	seen := map[string]bool{UnitNone: true}
	out.units = append(out.units, UnitNone)
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out.units = append(out.units, u)
	}
	return out
}

func (s UnitSet) Contains(unit string) bool {
	for _, u := range s.units {
		if u == unit {
			return true
		}
	}
	return false
}

// Dispatchable returns the member units excluding UnitNone.
func (s UnitSet) Dispatchable() []string {
	out := make([]string, 0, len(s.units))
	for _, u := range s.units {
		if u != UnitNone {
			out = append(out, u)
		}
	}
	return out
}

// ValidationError names the first field that failed validation and the rule
// it violated. Validation stops at the first failure.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid analysis: field %q: %s", e.Field, e.Rule)
}

var requiredFields = []string{
	"crowd_density_increase",
	"restricted_movements",
	"fire_smoke_detected",
	"unit_to_dispatch",
	"recommendations",
	"summary",
}

var flagFields = []string{
	"crowd_density_increase",
	"restricted_movements",
	"fire_smoke_detected",
}

// Validate normalizes and checks an untrusted structured payload. It is the
// only way to obtain an Analysis value. Checks run in a fixed order and the
// first failure wins: field presence, boolean typing of the three flags,
// unit enumeration membership, the dispatch-justification invariant, then
// non-emptiness of summary (and recommendations when any flag is set).
func Validate(raw []byte, units UnitSet) (Analysis, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Analysis{}, &ValidationError{Field: "", Rule: "payload is not a JSON object"}
	}

	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return Analysis{}, &ValidationError{Field: f, Rule: "required field is missing"}
		}
	}

	flags := make(map[string]bool, len(flagFields))
	for _, f := range flagFields {
		// Unmarshalling JSON null into a bool is a no-op, so null would
		// slip through as false. The flags are ternary-safe: null is
		// rejected like any other non-boolean.
		if string(fields[f]) == "null" {
			return Analysis{}, &ValidationError{Field: f, Rule: "must be a boolean"}
		}
		var b bool
		if err := json.Unmarshal(fields[f], &b); err != nil {
			return Analysis{}, &ValidationError{Field: f, Rule: "must be a boolean"}
		}
		flags[f] = b
	}

	var unit string
	if err := json.Unmarshal(fields["unit_to_dispatch"], &unit); err != nil {
		return Analysis{}, &ValidationError{Field: "unit_to_dispatch", Rule: "must be a string"}
	}
	if !units.Contains(unit) {
		return Analysis{}, &ValidationError{
			Field: "unit_to_dispatch",
			Rule:  fmt.Sprintf("unknown unit %q", unit),
		}
	}

	anyFlag := flags["crowd_density_increase"] || flags["restricted_movements"] || flags["fire_smoke_detected"]
	if unit != UnitNone && !anyFlag {
		return Analysis{}, &ValidationError{
			Field: "unit_to_dispatch",
			Rule:  "dispatch must be justified by at least one detected condition",
		}
	}

	var summary, recommendations string
	if err := json.Unmarshal(fields["summary"], &summary); err != nil {
		return Analysis{}, &ValidationError{Field: "summary", Rule: "must be a string"}
	}
	if err := json.Unmarshal(fields["recommendations"], &recommendations); err != nil {
		return Analysis{}, &ValidationError{Field: "recommendations", Rule: "must be a string"}
	}
	if strings.TrimSpace(summary) == "" {
		return Analysis{}, &ValidationError{Field: "summary", Rule: "must not be empty"}
	}
	if anyFlag && strings.TrimSpace(recommendations) == "" {
		return Analysis{}, &ValidationError{
			Field: "recommendations",
			Rule:  "must not be empty when a condition is detected",
		}
	}

	return Analysis{
		crowdDensityIncrease: flags["crowd_density_increase"],
		restrictedMovements:  flags["restricted_movements"],
		fireSmokeDetected:    flags["fire_smoke_detected"],
		unitToDispatch:       unit,
		recommendations:      recommendations,
		summary:              summary,
	}, nil
}
