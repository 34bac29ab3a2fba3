package busif

import (
	godbus "github.com/godbus/dbus/v5"
)

// managerObject implements the org.freedesktop.UPower methods.
type managerObject struct {
	srv *Server
}

func (m *managerObject) EnumerateDevices() ([]godbus.ObjectPath, *godbus.Error) {
	paths := m.srv.agg.EnumerateDevices()
	out := make([]godbus.ObjectPath, len(paths))
	for i, p := range paths {
		out[i] = godbus.ObjectPath(p)
	}
	return out, nil
}

func (m *managerObject) GetDisplayDevice() (godbus.ObjectPath, *godbus.Error) {
	return godbus.ObjectPath(m.srv.agg.DisplayDevice().ObjectPath), nil
}

func (m *managerObject) GetCriticalAction() (string, *godbus.Error) {
	if m.srv.cfg == nil {
		return "", nil
	}
	return m.srv.cfg.CriticalPowerAction, nil
}

// managerProps implements org.freedesktop.DBus.Properties for the Manager
// object. Lid state is not observed on any platform this daemon targets;
// LidIsPresent is always reported false rather than fabricated.
type managerProps struct {
	srv *Server
}

func (p *managerProps) values() map[string]any {
	return map[string]any{
		"DaemonVersion": daemonVersion,
		"OnBattery":     p.srv.agg.OnBattery(),
		"LidIsClosed":   false,
		"LidIsPresent":  false,
	}
}

func (p *managerProps) Get(iface, prop string) (godbus.Variant, *godbus.Error) {
	v, ok := p.values()[prop]
	if !ok {
		return godbus.Variant{}, godbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", nil)
	}
	return godbus.MakeVariant(v), nil
}

func (p *managerProps) GetAll(iface string) (map[string]godbus.Variant, *godbus.Error) {
	out := make(map[string]godbus.Variant)
	for k, v := range p.values() {
		out[k] = godbus.MakeVariant(v)
	}
	return out, nil
}

func (p *managerProps) Set(iface, prop string, value godbus.Variant) *godbus.Error {
	return godbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", nil)
}
