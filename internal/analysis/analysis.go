package analysis

import (
	"encoding/json"
)

// Analysis is a validated structured risk assessment. Values can only be
// produced by Validate; the fields stay unexported so that no code path can
// construct one that skipped validation.
type Analysis struct {
	crowdDensityIncrease bool
	restrictedMovements  bool
	fireSmokeDetected    bool
	unitToDispatch       string
	recommendations      string
	summary              string
}

func (a Analysis) CrowdDensityIncrease() bool { return a.crowdDensityIncrease }
func (a Analysis) RestrictedMovements() bool  { return a.restrictedMovements }
func (a Analysis) FireSmokeDetected() bool    { return a.fireSmokeDetected }
func (a Analysis) UnitToDispatch() string     { return a.unitToDispatch }
func (a Analysis) Recommendations() string    { return a.recommendations }
func (a Analysis) Summary() string            { return a.summary }

// AnyFlag reports whether any detected-condition flag is set.
func (a Analysis) AnyFlag() bool {
	return a.crowdDensityIncrease || a.restrictedMovements || a.fireSmokeDetected
}

// Actionable reports whether the analysis calls for a dispatch.
func (a Analysis) Actionable() bool {
	return a.unitToDispatch != UnitNone
}

type analysisJSON struct {
	CrowdDensityIncrease bool   `json:"crowd_density_increase"`
	RestrictedMovements  bool   `json:"restricted_movements"`
	FireSmokeDetected    bool   `json:"fire_smoke_detected"`
	UnitToDispatch       string `json:"unit_to_dispatch"`
	Recommendations      string `json:"recommendations"`
	Summary              string `json:"summary"`
}

// MarshalJSON emits the same wire schema Validate accepts, so a valid
// analysis round-trips through serialization unchanged.
func (a Analysis) MarshalJSON() ([]byte, error) {
	return json.Marshal(analysisJSON{
		CrowdDensityIncrease: a.crowdDensityIncrease,
		RestrictedMovements:  a.restrictedMovements,
		FireSmokeDetected:    a.fireSmokeDetected,
		UnitToDispatch:       a.unitToDispatch,
		Recommendations:      a.recommendations,
		Summary:              a.summary,
	})
}
