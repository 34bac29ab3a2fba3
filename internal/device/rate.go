package device

import "time"

// DefaultRateSmoothing is the EWMA smoothing factor applied to successive
// |Δenergy/Δt| samples when no override is configured (§4.2).
const DefaultRateSmoothing = 0.4

const (
	minSampleInterval = 10 * time.Second
	minEstimate       = 60 * time.Second
	maxEstimate       = 240 * time.Hour
)

// smoothRate folds a new energy reading into the prior EWMA-smoothed rate.
// Returns the prior rate unchanged (rather than a fresh, noisy sample) when
// the interval since the last reading is too short to trust, or when the
// sign of the delta contradicts the reported charge direction.
func smoothRate(prior *Device, energy float64, state State, now time.Time, alpha float64) float64 {
	if state == StateFullyCharged || state == StateEmpty {
		return 0
	}
	if state != StateCharging && state != StateDischarging {
		return 0
	}
	if prior == nil || prior.UpdateTime == 0 {
		return 0
	}
	dt := now.Sub(time.Unix(prior.UpdateTime, 0))
	if dt < minSampleInterval {
		return prior.EnergyRate
	}

	delta := energy - prior.Energy
	if state == StateCharging && delta < 0 {
		return prior.EnergyRate
	}
	if state == StateDischarging && delta > 0 {
		return prior.EnergyRate
	}

	instant := abs(delta) / dt.Hours()
	if alpha <= 0 {
		alpha = DefaultRateSmoothing
	}
	return alpha*instant + (1-alpha)*prior.EnergyRate
}

// timeToEmpty estimates seconds remaining at the current discharge rate,
// collapsing implausible results (too soon to be useful, too far to be
// trustworthy) to 0 ("unknown") per §4.2.
func timeToEmpty(energy, rate float64) int64 {
	return EstimateSeconds(energy, rate)
}

// timeToFull is the charging analogue of timeToEmpty.
func timeToFull(energyFull, energy, rate float64) int64 {
	return EstimateSeconds(energyFull-energy, rate)
}

// EstimateSeconds converts a remaining energy budget and a rate into a
// time estimate, collapsing the result to 0 ("unknown") outside the
// [60s, 240h] plausibility window. Exported so the aggregator's display-
// device synthesis can apply the same clamp when summing across batteries.
func EstimateSeconds(remainingWh, rateW float64) int64 {
	return clampEstimate(remainingWh, rateW)
}

func clampEstimate(remainingWh, rateW float64) int64 {
	if rateW <= 0 || remainingWh <= 0 {
		return 0
	}
	seconds := time.Duration(remainingWh / rateW * float64(time.Hour))
	if seconds < minEstimate || seconds > maxEstimate {
		return 0
	}
	return int64(seconds.Seconds())
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
