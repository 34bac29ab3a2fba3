package device

import (
	"testing"
	"time"
)

func snapshot(kind Kind, scope Scope, attrs map[string]string) RawSnapshot {
	return RawSnapshot{Attrs: attrs, Kind: kind, Scope: scope, NativePath: "BAT0"}
}

func closeEnough(t *testing.T, name string, got, want float64) {
	t.Helper()
	const eps = 0.01
	if got < want-eps || got > want+eps {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestNormalizeOfflineACSingleBattery(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":             "Discharging",
		"present":            "1",
		"energy_full":        "60000000",
		"energy_full_design": "80000000",
		"energy_now":         "48000000",
		"voltage_now":        "12000000",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))

	closeEnough(t, "percentage", d.Percentage, 80.0)
	closeEnough(t, "energy", d.Energy, 48.0)
	closeEnough(t, "energy_full", d.EnergyFull, 60.0)
	closeEnough(t, "energy_full_design", d.EnergyFullDesign, 80.0)
	closeEnough(t, "voltage", d.Voltage, 12.0)
	if d.State != StateDischarging {
		t.Errorf("state = %v, want discharging", d.State)
	}
}

func TestNormalizeCriticalBattery(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":             "Discharging",
		"energy_full":        "60000000",
		"energy_full_design": "80000000",
		"energy_now":         "1500000",
		"voltage_now":        "12000000",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))
	closeEnough(t, "percentage", d.Percentage, 2.5)
}

func TestNormalizeOverfullBatteryRaisesEnergyFull(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":              "Full",
		"charge_now":          "11000000",
		"charge_full":         "10000000",
		"charge_full_design":  "11000000",
		"capacity":            "110",
		"voltage_now":         "12000000",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))

	closeEnough(t, "percentage", d.Percentage, 100.0)
	closeEnough(t, "energy", d.Energy, 132.0)
	closeEnough(t, "energy_full", d.EnergyFull, 132.0)
	closeEnough(t, "energy_full_design", d.EnergyFullDesign, 132.0)
	if d.State != StateFullyCharged {
		t.Errorf("state = %v, want fully_charged", d.State)
	}
	if d.EnergyRate != 0 || d.TimeToEmpty != 0 || d.TimeToFull != 0 {
		t.Errorf("fully_charged device must report zero rate/time, got rate=%v toE=%v toF=%v",
			d.EnergyRate, d.TimeToEmpty, d.TimeToFull)
	}
}

func TestNormalizeCapacityOnlyBattery(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":             "Charging",
		"charge_full":        "10500000",
		"charge_full_design": "11000000",
		"capacity":           "40",
		"voltage_now":        "12000000",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))

	closeEnough(t, "percentage", d.Percentage, 40.0)
	closeEnough(t, "energy", d.Energy, 50.4)
	closeEnough(t, "energy_full", d.EnergyFull, 126.0)
	closeEnough(t, "energy_full_design", d.EnergyFullDesign, 132.0)
}

func TestNormalizePercentageClampedZeroToHundred(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":     "Discharging",
		"energy_now": "0",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))
	if d.Percentage != 0 {
		t.Errorf("percentage = %v, want 0", d.Percentage)
	}
	if d.State != StateDischarging {
		t.Errorf("state = %v, want discharging", d.State)
	}
}

func TestNormalizeEnergyInvariantChainRepaired(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":             "Discharging",
		"energy_now":         "70000000",
		"energy_full":        "60000000",
		"energy_full_design": "50000000",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))
	if d.Energy > d.EnergyFull || d.EnergyFull > d.EnergyFullDesign {
		t.Errorf("invariant violated: energy=%v energy_full=%v energy_full_design=%v",
			d.Energy, d.EnergyFull, d.EnergyFullDesign)
	}
}

func TestNormalizeEnergyNowWithChargeFullFallback(t *testing.T) {
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":      "Discharging",
		"energy_now":  "48000000",
		"charge_full": "10000000",
		"voltage_now": "12000000",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))

	closeEnough(t, "energy", d.Energy, 48.0)
	closeEnough(t, "energy_full", d.EnergyFull, 120.0)
	closeEnough(t, "percentage", d.Percentage, 40.0)
}

func TestNormalizeTimeToEmptyOverriddenByDeviceReport(t *testing.T) {
	snap := snapshot(KindUPS, ScopeSystem, map[string]string{
		"status":                "Discharging",
		"energy_full":           "60000000",
		"energy_now":            "30000000",
		"time_to_empty_minutes": "42",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))
	if d.TimeToEmpty != 42*60 {
		t.Errorf("time_to_empty = %v, want %v (device-reported minutes take priority)", d.TimeToEmpty, 42*60)
	}
}

func TestNormalizeTimeToEmptyIgnoresNegativeSentinel(t *testing.T) {
	snap := snapshot(KindUPS, ScopeSystem, map[string]string{
		"status":                "Discharging",
		"energy_full":           "60000000",
		"energy_now":            "30000000",
		"time_to_empty_minutes": "-1",
	})
	d := Normalize(nil, snap, time.Unix(1000, 0))
	if d.TimeToEmpty < 0 {
		t.Errorf("time_to_empty = %v, want non-negative estimate (sentinel must not override)", d.TimeToEmpty)
	}
}

func TestNormalizeUnknownStateResolvesFromTrend(t *testing.T) {
	prior := &Device{Energy: 40, UpdateTime: 1000}
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"energy_full": "60000000",
		"energy_now":  "45000000",
	})
	d := Normalize(prior, snap, time.Unix(1020, 0))
	if d.State != StateCharging {
		t.Errorf("state = %v, want charging (energy rose from prior sample)", d.State)
	}
}

func TestNormalizeRateSmoothingIgnoresShortInterval(t *testing.T) {
	prior := &Device{Energy: 50, EnergyRate: 10, UpdateTime: 1000}
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":      "Discharging",
		"energy_full": "60000000",
		"energy_now":  "49000000",
	})
	d := Normalize(prior, snap, time.Unix(1005, 0))
	if d.EnergyRate != 10 {
		t.Errorf("rate = %v, want unchanged prior rate (sample too soon)", d.EnergyRate)
	}
}

func TestNormalizeTimeEstimateClampedToUnknown(t *testing.T) {
	prior := &Device{Energy: 60, EnergyRate: 0.0001, UpdateTime: 1000}
	snap := snapshot(KindBattery, ScopeSystem, map[string]string{
		"status":      "Discharging",
		"energy_full": "60000000",
		"energy_now":  "59990000",
	})
	d := Normalize(prior, snap, time.Unix(1020, 0))
	if d.TimeToEmpty != 0 {
		t.Errorf("time_to_empty = %v, want 0 (implausibly long estimate collapses to unknown)", d.TimeToEmpty)
	}
}
