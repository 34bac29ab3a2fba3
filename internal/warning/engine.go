// Package warning computes per-device and global warning levels from the
// percentage/time-to-empty thresholds in the runtime config, with
// hysteresis to prevent chatter at a threshold boundary.
package warning

import (
	"github.com/upowerd/upowerd/internal/config"
	"github.com/upowerd/upowerd/internal/device"
)

// Thresholds mirrors the policy knobs from the runtime config file.
type Thresholds struct {
	PercentageLow      int
	PercentageCritical int
	PercentageAction   int
	TimeLow            int
	TimeCritical       int
	TimeAction         int
	UsePercentageOnly  bool
}

func FromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		PercentageLow:      cfg.PercentageLow,
		PercentageCritical: cfg.PercentageCritical,
		PercentageAction:   cfg.PercentageAction,
		TimeLow:            cfg.TimeLow,
		TimeCritical:       cfg.TimeCritical,
		TimeAction:         cfg.TimeAction,
		UsePercentageOnly:  cfg.UsePercentageForPolicy,
	}
}

type entry struct {
	level              device.WarningLevel
	enteredAtThreshold float64
}

// Engine tracks hysteresis state per object_path across refreshes.
type Engine struct {
	thresholds Thresholds
	state      map[string]entry
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t, state: make(map[string]entry)}
}

// Compute returns the warning level for one device, given its object_path
// (for hysteresis tracking), kind, state, percentage, and time_to_empty.
func (e *Engine) Compute(path string, kind device.Kind, state device.State, percentage float64, timeToEmpty int64) device.WarningLevel {
	if state != device.StateDischarging && state != device.StatePendingDischarge {
		delete(e.state, path)
		return device.WarningNone
	}

	level, threshold := e.rawLevel(percentage, timeToEmpty)
	if level == device.WarningNone && kind == device.KindUPS {
		level = device.WarningDischarging
	}

	prev, tracked := e.state[path]
	if tracked && int(level) < int(prev.level) {
		if percentage < prev.enteredAtThreshold+1 {
			return prev.level
		}
	}

	if level >= device.WarningLow {
		e.state[path] = entry{level: level, enteredAtThreshold: threshold}
	} else {
		delete(e.state, path)
	}
	return level
}

func (e *Engine) rawLevel(percentage float64, timeToEmpty int64) (device.WarningLevel, float64) {
	t := e.thresholds
	timeOK := !t.UsePercentageOnly && timeToEmpty > 0

	switch {
	case percentage <= float64(t.PercentageAction) || (timeOK && timeToEmpty <= int64(t.TimeAction)):
		return device.WarningAction, float64(t.PercentageAction)
	case percentage <= float64(t.PercentageCritical) || (timeOK && timeToEmpty <= int64(t.TimeCritical)):
		return device.WarningCritical, float64(t.PercentageCritical)
	case percentage <= float64(t.PercentageLow) || (timeOK && timeToEmpty <= int64(t.TimeLow)):
		return device.WarningLow, float64(t.PercentageLow)
	default:
		return device.WarningNone, 0
	}
}

// Global returns the worst level among devices that currently supply the
// host, per §4.5. An empty or all-none set yields WarningNone.
func Global(levels []device.WarningLevel) device.WarningLevel {
	worst := device.WarningNone
	for _, l := range levels {
		if l > worst {
			worst = l
		}
	}
	return worst
}
