package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Positive fraction, 0.25 = 25% below peak
	CurrentDrawdown float64 `json:"current_drawdown"` // Drawdown of the last value from its peak
	PeakValue       float64 `json:"peak_value"`
	PeakIndex       int     `json:"peak_index"`
}

// CalculateMaxDrawdown calculates the maximum drawdown of a value series
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Returns nil for fewer than two values.
func CalculateMaxDrawdown(values []float64) *float64 {
	metrics := CalculateDrawdownMetrics(values)
	if metrics == nil {
		return nil
	}
	return &metrics.MaxDrawdown
}

// CalculateDrawdownMetrics calculates max and current drawdown along with the running peak
func CalculateDrawdownMetrics(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	current := 0.0
	if last := values[len(values)-1]; peak > 0 && last < peak {
		current = (peak - last) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: current,
		PeakValue:       peak,
		PeakIndex:       peakIndex,
	}
}
