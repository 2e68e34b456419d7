package engine

import "codeberg.org/mutker/ipmifanctl/internal/curve"

// DefaultOverpowerMargin is how far, in °C, a temperature may exceed the
// selected curve's highest threshold before maximum cooling is forced.
const DefaultOverpowerMargin = 15.0

// Overpowered reports whether this cycle must force the selected curve's
// maximum speed. It fires when the effective temperature, or any single
// valid sample regardless of class, exceeds the curve ceiling by more than
// the margin. This is the only hard safety behavior in the controller and
// no configuration can disable it.
func Overpowered(cl Classification, s Summary, active curve.Curve, margin float64) bool {
	limit := active.Ceiling() + margin

	return cl.Effective > limit || s.Peak > limit
}
