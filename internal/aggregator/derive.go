package aggregator

import (
	"github.com/upowerd/upowerd/internal/device"
	"github.com/upowerd/upowerd/internal/warning"
)

// DisplayDevicePath is the well-known object path of the synthesized
// aggregate device (§4.4).
const DisplayDevicePath = "/org/freedesktop/UPower/devices/DisplayDevice"

// ComputeOnBattery implements §4.4's OnBattery rule: true iff some system
// battery/UPS is discharging and no system line_power source is online. A
// discharging system UPS makes it true even when a line_power source is
// online.
func ComputeOnBattery(devices map[string]device.Device) bool {
	anyDischarging := false
	anyUPSDischarging := false
	anyOnlineMains := false
	anySupply := false

	for _, d := range devices {
		if !d.IsSystemPowerSupply() {
			continue
		}
		anySupply = true
		switch d.Kind {
		case device.KindLinePower:
			if d.Online {
				anyOnlineMains = true
			}
		case device.KindBattery, device.KindUPS:
			if d.State == device.StateDischarging || d.State == device.StatePendingDischarge {
				anyDischarging = true
				if d.Kind == device.KindUPS {
					anyUPSDischarging = true
				}
			}
		}
	}
	if !anySupply {
		return false
	}
	return anyUPSDischarging || (anyDischarging && !anyOnlineMains)
}

// SynthesizeDisplay builds the aggregate display device from every
// power_supply battery/UPS in the registry, per §4.4.
func SynthesizeDisplay(devices map[string]device.Device) device.Device {
	var batteries []device.Device
	for _, d := range devices {
		if d.IsSystemPowerSupply() && (d.Kind == device.KindBattery || d.Kind == device.KindUPS) {
			batteries = append(batteries, d)
		}
	}

	display := device.Device{
		ObjectPath:  DisplayDevicePath,
		Kind:        device.KindBattery,
		PowerSupply: true,
	}

	switch len(batteries) {
	case 0:
		display.Kind = device.KindUnknown
		display.State = device.StateFullyCharged
		display.WarningLevel = device.WarningNone
		return display
	case 1:
		b := batteries[0]
		b.ObjectPath = DisplayDevicePath
		return b
	}

	var energy, energyFull, energyFullDesign, rate float64
	anyCharging, anyDischarging, allFull := false, false, true
	levels := make([]device.WarningLevel, 0, len(batteries))
	for _, b := range batteries {
		energy += b.Energy
		energyFull += b.EnergyFull
		energyFullDesign += b.EnergyFullDesign
		rate += b.EnergyRate
		levels = append(levels, b.WarningLevel)
		switch b.State {
		case device.StateCharging:
			anyCharging = true
			allFull = false
		case device.StateDischarging, device.StatePendingDischarge:
			anyDischarging = true
			allFull = false
		case device.StateFullyCharged:
			// leaves allFull unchanged
		default:
			allFull = false
		}
	}

	display.Energy, display.EnergyFull, display.EnergyFullDesign, display.EnergyRate = energy, energyFull, energyFullDesign, rate
	display.WarningLevel = warning.Global(levels)
	if energyFull > 0 {
		display.Percentage = clamp(energy/energyFull*100, 0, 100)
	}

	switch {
	case anyCharging:
		display.State = device.StateCharging
	case allFull:
		display.State = device.StateFullyCharged
	case anyDischarging:
		display.State = device.StateDischarging
	default:
		display.State = device.StateUnknown
	}

	switch display.State {
	case device.StateDischarging:
		display.TimeToEmpty = device.EstimateSeconds(display.Energy, display.EnergyRate)
	case device.StateCharging:
		display.TimeToFull = device.EstimateSeconds(display.EnergyFull-display.Energy, display.EnergyRate)
	}

	return display
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
