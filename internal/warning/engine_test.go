package warning

import (
	"testing"

	"github.com/upowerd/upowerd/internal/device"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		PercentageLow:      10,
		PercentageCritical: 5,
		PercentageAction:   2,
		TimeLow:            600,
		TimeCritical:       300,
		TimeAction:         120,
	}
}

func TestComputeBoundaryActionAtExactlyTwoPercent(t *testing.T) {
	e := NewEngine(defaultThresholds())
	level := e.Compute("/dev/BAT0", device.KindBattery, device.StateDischarging, 2.0, 0)
	if level != device.WarningAction {
		t.Errorf("level = %v, want action", level)
	}
}

func TestComputeHysteresisPreventsChatter(t *testing.T) {
	e := NewEngine(defaultThresholds())
	level := e.Compute("/dev/BAT0", device.KindBattery, device.StateDischarging, 2.0, 0)
	if level != device.WarningAction {
		t.Fatalf("initial level = %v, want action", level)
	}
	level = e.Compute("/dev/BAT0", device.KindBattery, device.StateDischarging, 2.5, 0)
	if level != device.WarningAction {
		t.Errorf("level after rising to 2.5%% = %v, want still action (hysteresis)", level)
	}
	level = e.Compute("/dev/BAT0", device.KindBattery, device.StateDischarging, 3.5, 0)
	if level != device.WarningCritical {
		t.Errorf("level after rising to 3.5%% = %v, want critical (risen past threshold+1)", level)
	}
}

func TestComputeNotDischargingIsNone(t *testing.T) {
	e := NewEngine(defaultThresholds())
	level := e.Compute("/dev/BAT0", device.KindBattery, device.StateCharging, 1.0, 0)
	if level != device.WarningNone {
		t.Errorf("level = %v, want none while charging regardless of percentage", level)
	}
}

func TestComputeUPSDischargingBelowLowIsDischargingNotNone(t *testing.T) {
	e := NewEngine(defaultThresholds())
	level := e.Compute("/dev/UPS0", device.KindUPS, device.StateDischarging, 80.0, 0)
	if level != device.WarningDischarging {
		t.Errorf("level = %v, want discharging", level)
	}
}

func TestGlobalTakesWorstLevel(t *testing.T) {
	got := Global([]device.WarningLevel{device.WarningNone, device.WarningLow, device.WarningCritical})
	if got != device.WarningCritical {
		t.Errorf("Global = %v, want critical", got)
	}
}
