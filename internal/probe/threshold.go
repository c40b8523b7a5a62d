package probe

// Thresholds maps a numeric reading to a status. A zero level is disabled.
type Thresholds struct {
	Warn float64
	Crit float64
}

// Evaluate returns CRIT at or above Crit, WARN at or above Warn, else OK
func (t Thresholds) Evaluate(v float64) Status {
	switch {
	case t.Crit > 0 && v >= t.Crit:
		return StatusCrit
	case t.Warn > 0 && v >= t.Warn:
		return StatusWarn
	default:
		return StatusOK
	}
}

// orDefault fills unset levels from def
func (t Thresholds) orDefault(def Thresholds) Thresholds {
	if t.Warn == 0 {
		t.Warn = def.Warn
	}
	if t.Crit == 0 {
		t.Crit = def.Crit
	}
	return t
}
