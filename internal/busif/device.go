package busif

import (
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/upowerd/upowerd/internal/aggregator"
	"github.com/upowerd/upowerd/internal/device"
	"github.com/upowerd/upowerd/internal/history"
)

// deviceObject implements both org.freedesktop.UPower.Device's methods and
// org.freedesktop.DBus.Properties for one exported device path.
type deviceObject struct {
	srv  *Server
	path string
}

// lookup resolves this object's current Device, special-casing the
// synthesized display device which lives outside the registry map that
// Aggregator.Get reads.
func (d *deviceObject) lookup() (device.Device, bool) {
	if d.path == aggregator.DisplayDevicePath {
		return d.srv.agg.DisplayDevice(), true
	}
	return d.srv.agg.Get(d.path)
}

func (d *deviceObject) Refresh() *godbus.Error {
	// Refresh is advisory: the backend already polls on its own cadence.
	// A bus-triggered Refresh has no dedicated channel back to the owning
	// backend, so this simply confirms the device is still known.
	if _, ok := d.lookup(); !ok {
		return godbus.NewError("org.freedesktop.UPower.Error.NoSuchDevice", nil)
	}
	return nil
}

func (d *deviceObject) GetHistory(seriesType string, timespan uint32, resolution uint32) ([][]interface{}, *godbus.Error) {
	dev, ok := d.lookup()
	if !ok {
		return nil, godbus.NewError("org.freedesktop.UPower.Error.NoSuchDevice", nil)
	}
	if d.srv.hist == nil {
		return nil, nil
	}
	kind, err := seriesKind(seriesType)
	if err != nil {
		return nil, godbus.MakeFailedError(err)
	}
	res := int(resolution)
	if res <= 0 {
		res = 100
	}
	span := time.Duration(timespan) * time.Second
	if span <= 0 {
		span = time.Hour
	}
	samples, gerr := d.srv.hist.GetHistory(device.IdentityHash(dev.NativePath), kind, span, res)
	if gerr != nil {
		return nil, godbus.MakeFailedError(gerr)
	}
	rows := make([][]interface{}, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []interface{}{uint32(s.Time), s.Value, stateCode(s.StateTag)})
	}
	return rows, nil
}

func (d *deviceObject) GetStatistics(seriesType string) ([][]float64, *godbus.Error) {
	dev, ok := d.lookup()
	if !ok {
		return nil, godbus.NewError("org.freedesktop.UPower.Error.NoSuchDevice", nil)
	}
	if d.srv.hist == nil {
		return nil, nil
	}
	kind, err := seriesKind(seriesType)
	if err != nil {
		return nil, godbus.MakeFailedError(err)
	}
	buckets, gerr := d.srv.hist.GetStatistics(device.IdentityHash(dev.NativePath), kind)
	if gerr != nil {
		return nil, godbus.MakeFailedError(gerr)
	}
	rows := make([][]float64, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []float64{b.Value, b.Accuracy})
	}
	return rows, nil
}

func seriesKind(name string) (history.SeriesKind, error) {
	switch name {
	case "rate":
		return history.SeriesRate, nil
	case "charge":
		return history.SeriesCharge, nil
	case "time-full":
		return history.SeriesTimeFull, nil
	case "time-empty":
		return history.SeriesTimeEmpty, nil
	default:
		return "", errUnknownSeries(name)
	}
}

type errUnknownSeries string

func (e errUnknownSeries) Error() string { return "unknown history series: " + string(e) }

func stateCode(tag string) uint32 {
	switch tag {
	case "charging":
		return uint32(device.StateCharging)
	case "discharging":
		return uint32(device.StateDischarging)
	case "empty":
		return uint32(device.StateEmpty)
	case "fully_charged":
		return uint32(device.StateFullyCharged)
	default:
		return uint32(device.StateUnknown)
	}
}

// deviceProperties flattens a Device into its bus property map (§3): every
// exported attribute, enums as the same uint32 codes used on the wire.
func deviceProperties(d device.Device) map[string]any {
	return map[string]any{
		"NativePath":       d.NativePath,
		"Type":             uint32(d.Kind),
		"Scope":            uint32(d.Scope),
		"State":            uint32(d.State),
		"Online":           d.Online,
		"IsPresent":        d.IsPresent,
		"IsRechargeable":   d.IsRechargeable,
		"PowerSupply":      d.PowerSupply,
		"Percentage":       d.Percentage,
		"Energy":           d.Energy,
		"EnergyEmpty":      d.EnergyEmpty,
		"EnergyFull":       d.EnergyFull,
		"EnergyFullDesign": d.EnergyFullDesign,
		"EnergyRate":       d.EnergyRate,
		"Voltage":          d.Voltage,
		"Temperature":      d.Temperature,
		"TimeToEmpty":      d.TimeToEmpty,
		"TimeToFull":       d.TimeToFull,
		"Capacity":         d.Capacity,
		"Technology":       uint32(d.Technology),
		"WarningLevel":     uint32(d.WarningLevel),
		"Vendor":           d.Vendor,
		"Model":            d.Model,
		"Serial":           d.Serial,
		"UpdateTime":       uint64(d.UpdateTime),
	}
}

func (d *deviceObject) Get(iface, prop string) (godbus.Variant, *godbus.Error) {
	dev, ok := d.lookup()
	if !ok {
		return godbus.Variant{}, godbus.NewError("org.freedesktop.UPower.Error.NoSuchDevice", nil)
	}
	v, ok := deviceProperties(dev)[prop]
	if !ok {
		return godbus.Variant{}, godbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", nil)
	}
	return godbus.MakeVariant(v), nil
}

func (d *deviceObject) GetAll(iface string) (map[string]godbus.Variant, *godbus.Error) {
	dev, ok := d.lookup()
	if !ok {
		return nil, godbus.NewError("org.freedesktop.UPower.Error.NoSuchDevice", nil)
	}
	out := make(map[string]godbus.Variant)
	for k, v := range deviceProperties(dev) {
		out[k] = godbus.MakeVariant(v)
	}
	return out, nil
}

func (d *deviceObject) Set(iface, prop string, value godbus.Variant) *godbus.Error {
	return godbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", nil)
}
