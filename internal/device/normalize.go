package device

import (
	"strings"
	"time"
)

const microToBase = 1e6

// Normalize derives the next Device state from a raw snapshot and whatever
// Device was published for the same object_path last time. It performs no
// I/O and never fails: missing or unparsable raw attributes simply leave
// the corresponding field at its zero value ("unknown").
func Normalize(prior *Device, snap RawSnapshot, now time.Time) Device {
	d := Device{
		ObjectPath: ObjectPath(snap.Kind, snap.NativePath),
		NativePath: snap.NativePath,
		Kind:       snap.Kind,
		Scope:      snap.Scope,
		UpdateTime: now.Unix(),
	}

	d.Vendor = SanitizeText(snap.Str("manufacturer"))
	d.Model = SanitizeText(snap.Str("model_name"))
	d.Serial = SanitizeText(snap.Str("serial_number"))
	d.Technology = TechnologyFromNative(snap.Str("technology"))

	if present, ok := snap.Bool("present"); ok {
		d.IsPresent = present
	} else {
		d.IsPresent = snap.Kind != KindLinePower
	}
	d.Online, _ = snap.Bool("online")
	d.IsRechargeable = snap.Kind != KindLinePower

	switch snap.Kind {
	case KindBattery, KindUPS, KindLinePower:
		d.PowerSupply = snap.Scope == ScopeSystem || snap.Scope == ScopeUnknown
	default:
		d.PowerSupply = false
	}

	if temp, ok := snap.Float("temp"); ok {
		d.Temperature = temp / 10
	}

	energy, energyFull, energyFullDesign, percentage := deriveEnergy(snap)
	d.Energy, d.EnergyFull, d.EnergyFullDesign = energy, energyFull, energyFullDesign
	d.Percentage = clamp(percentage, 0, 100)

	state := parseStatus(snap.Str("status"))
	if state == StateUnknown {
		state = resolveUnknownState(prior, d.Energy, d.Percentage, snap)
	}

	if state == StateFullyCharged && d.Percentage > 100 {
		d.Percentage = 100
		d.EnergyFull = d.Energy
	}
	d.Percentage = clamp(d.Percentage, 0, 100)

	// energy ≤ energy_full ≤ energy_full_design, raised upward on violation.
	if d.EnergyFull < d.Energy {
		d.EnergyFull = d.Energy
	}
	if d.EnergyFullDesign < d.EnergyFull {
		d.EnergyFullDesign = d.EnergyFull
	}

	if voltage, ok := snap.Float("voltage_now"); ok {
		d.Voltage = voltage / microToBase
	}

	if d.EnergyFullDesign > 0 {
		d.Capacity = clamp(d.EnergyFull/d.EnergyFullDesign*100, 0, 100)
	}

	d.State = state
	if state == StateFullyCharged || state == StateEmpty {
		d.EnergyRate = 0
		d.TimeToEmpty = 0
		d.TimeToFull = 0
	} else {
		d.EnergyRate = smoothRate(prior, d.Energy, state, now, DefaultRateSmoothing)
		switch state {
		case StateDischarging:
			d.TimeToEmpty = timeToEmpty(d.Energy, d.EnergyRate)
		case StateCharging:
			d.TimeToFull = timeToFull(d.EnergyFull, d.Energy, d.EnergyRate)
		}
	}

	// A UPS that decodes its own remaining runtime (hidraw feature reports,
	// BSD apm_info) reports it more accurately than the energy/rate estimate
	// above, which has nothing to smooth over on a cold first sample.
	if state == StateDischarging {
		if minutes, ok := snap.Float("time_to_empty_minutes"); ok && minutes >= 0 {
			d.TimeToEmpty = int64(minutes * 60)
		}
	}

	return d
}

// deriveEnergy applies the raw-input precedence table from §4.2: whichever
// combination of energy_*/charge_*/capacity/voltage attributes is present
// wins, in order from most to least direct.
func deriveEnergy(snap RawSnapshot) (energy, energyFull, energyFullDesign, percentage float64) {
	energyFullRaw, hasEnergyFull := snap.Float("energy_full")
	energyNowRaw, hasEnergyNow := snap.Float("energy_now")
	energyFullDesignRaw, hasEnergyFullDesign := snap.Float("energy_full_design")

	chargeFullRaw, hasChargeFull := snap.Float("charge_full")
	chargeNowRaw, hasChargeNow := snap.Float("charge_now")
	chargeFullDesignRaw, hasChargeFullDesign := snap.Float("charge_full_design")

	voltageRaw, hasVoltage := snap.Float("voltage_now")
	voltage := voltageRaw / microToBase

	capacityPct, hasCapacity := snap.Float("capacity")

	switch {
	case hasEnergyFull && hasEnergyNow:
		energyFull = energyFullRaw / microToBase
		energy = energyNowRaw / microToBase
	case hasChargeFull && hasChargeNow && hasVoltage:
		energyFull = (chargeFullRaw / microToBase) * voltage
		energy = (chargeNowRaw / microToBase) * voltage
	case hasChargeFull && hasCapacity && hasVoltage:
		energyFull = (chargeFullRaw / microToBase) * voltage
		energy = energyFull * capacityPct / 100
	case hasEnergyNow && hasChargeFull && hasVoltage:
		energyFull = (chargeFullRaw / microToBase) * voltage
		energy = energyNowRaw / microToBase
	case hasCapacity:
		percentage = capacityPct
	}

	switch {
	case hasEnergyFullDesign:
		energyFullDesign = energyFullDesignRaw / microToBase
	case hasChargeFullDesign && hasVoltage:
		energyFullDesign = (chargeFullDesignRaw / microToBase) * voltage
	default:
		energyFullDesign = energyFull
	}

	if energyFull > 0 {
		percentage = energy / energyFull * 100
	}
	return energy, energyFull, energyFullDesign, percentage
}

func parseStatus(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "charging":
		return StateCharging
	case "discharging":
		return StateDischarging
	case "not charging":
		return StatePendingCharge
	case "full", "fully charged":
		return StateFullyCharged
	case "empty":
		return StateEmpty
	default:
		return StateUnknown
	}
}

// resolveUnknownState covers batteries that report no usable status string.
// A snapshot that also carries its own online attribute (combined AC/UPS
// readings) takes precedence; otherwise the trend of the energy reading
// against the prior sample decides.
func resolveUnknownState(prior *Device, energy, percentage float64, snap RawSnapshot) State {
	if online, ok := snap.Bool("online"); ok {
		if online {
			return StateCharging
		}
		return StateDischarging
	}
	if prior != nil {
		switch {
		case energy > prior.Energy:
			return StateCharging
		case energy < prior.Energy:
			return StateDischarging
		default:
			if percentage >= 99 {
				return StateFullyCharged
			}
		}
	}
	return StateDischarging
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
