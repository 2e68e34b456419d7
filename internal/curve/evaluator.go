package curve

// State is the per-host hysteresis state. One instance exists per controlled
// host, owned exclusively by that host's evaluation path. ActiveIdx is the
// index of the threshold currently holding the fan speed; -1 means the
// temperature sits below the lowest threshold.
type State struct {
	ActiveIdx int
	LastSpeed float64
	LastCurve ID
}

// Evaluator maps effective temperatures to fan speeds against a curve,
// resisting downward moves with the curve's hysteresis margin. It is pure
// state transition logic: it never blocks and cannot fail on a valid curve.
type Evaluator struct {
	state State
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		state: State{
			ActiveIdx: 0,
			LastSpeed: MinSpeedPercent,
		},
	}
}

// State returns a copy of the current hysteresis state.
func (e *Evaluator) State() State {
	return e.state
}

// Evaluate advances the state machine for one cycle and returns the speed
// percentage for effective on c.
//
// Upward threshold moves are adopted immediately. Downward moves are only
// adopted once the temperature has dropped a full hysteresis margin below
// the threshold that currently holds the speed. A curve switch between
// cycles keeps the active index so fan behavior stays continuous across
// dominance flips.
func (e *Evaluator) Evaluate(c Curve, id ID, effective float64) float64 {
	// The previous curve may have had more thresholds than this one.
	if top := len(c.Temperatures) - 1; e.state.ActiveIdx > top {
		e.state.ActiveIdx = top
	}

	idx := -1
	for i, threshold := range c.Temperatures {
		if effective >= threshold {
			idx = i
		}
	}

	switch {
	case idx > e.state.ActiveIdx:
		e.state.ActiveIdx = idx
	case idx < e.state.ActiveIdx:
		if effective < c.Temperatures[e.state.ActiveIdx]-c.Hysteresis {
			e.state.ActiveIdx = idx
		}
	}

	e.state.LastCurve = id
	e.state.LastSpeed = e.speedAt(c, e.state.ActiveIdx)

	return e.state.LastSpeed
}

// ForceMax pins the state to the top threshold and returns the curve's
// maximum speed, bypassing the hysteresis gate for this cycle. The state is
// still updated so the following cycles step down through the normal gate.
func (e *Evaluator) ForceMax(c Curve, id ID) float64 {
	e.state.ActiveIdx = len(c.Temperatures) - 1
	e.state.LastCurve = id
	e.state.LastSpeed = clamp(c.MaxSpeed(), MinSpeedPercent, MaxSpeedPercent)

	return e.state.LastSpeed
}

// PinTop records the top threshold as active without emitting a speed. Used
// when control is handed to hardware firmware: re-entry into manual control
// then passes the same hysteresis gate as any downward move.
func (e *Evaluator) PinTop(c Curve, id ID) {
	e.state.ActiveIdx = len(c.Temperatures) - 1
	e.state.LastCurve = id
}

func (e *Evaluator) speedAt(c Curve, idx int) float64 {
	if idx < 0 {
		idx = 0
	}

	return clamp(c.Speeds[idx], MinSpeedPercent, MaxSpeedPercent)
}
