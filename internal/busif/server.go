// Package busif exposes the aggregator's device registry over D-Bus,
// mirroring the object layout of org.freedesktop.UPower: one Manager
// object, one object per physical device, and a synthetic DisplayDevice.
package busif

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/upowerd/upowerd/internal/aggregator"
	"github.com/upowerd/upowerd/internal/config"
	"github.com/upowerd/upowerd/internal/device"
	"github.com/upowerd/upowerd/internal/history"
)

const (
	busName       = "org.freedesktop.UPower"
	managerPath   = godbus.ObjectPath("/org/freedesktop/UPower")
	managerIface  = "org.freedesktop.UPower"
	deviceIface   = "org.freedesktop.UPower.Device"
	propsIface    = "org.freedesktop.DBus.Properties"
	daemonVersion = "1.0"

	// coalesceWindow bounds how often a single device emits
	// PropertiesChanged, per §4.7's 200ms coalescing requirement.
	coalesceWindow = 200 * time.Millisecond
)

// Server owns the system bus connection and keeps the set of exported
// device objects in sync with the aggregator's registry.
type Server struct {
	agg  *aggregator.Aggregator
	hist *history.Store
	cfg  *config.Config
	log  *slog.Logger

	conn *godbus.Conn

	mu       sync.Mutex
	exported map[string]bool
	pending  map[string]*time.Timer
}

// NewServer constructs a Server. Call Export to acquire the bus and begin
// serving.
func NewServer(agg *aggregator.Aggregator, hist *history.Store, cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		agg:      agg,
		hist:     hist,
		cfg:      cfg,
		log:      log,
		exported: make(map[string]bool),
		pending:  make(map[string]*time.Timer),
	}
}

// Export connects to the system bus, exports the Manager object and every
// currently-registered device, claims the well-known name, and starts the
// goroutine that keeps exported objects in sync with aggregator events.
// replace passes NameFlagReplaceExisting, used by --replace.
func (s *Server) Export(ctx context.Context, replace bool) error {
	conn, err := godbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	s.conn = conn

	if err := conn.Export(&managerObject{s}, managerPath, managerIface); err != nil {
		return fmt.Errorf("export manager object: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(managerIntrospectXML), managerPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export manager introspection: %w", err)
	}
	if err := conn.Export(&managerProps{s}, managerPath, propsIface); err != nil {
		return fmt.Errorf("export manager properties: %w", err)
	}

	for _, path := range s.agg.EnumerateDevices() {
		if d, ok := s.agg.Get(path); ok {
			s.exportDevice(d)
		}
	}
	// The synthesized display device always exists, even with zero
	// registered batteries (§4.4), so it's exported once up front rather
	// than waiting on a DeviceAdded event that will never come for it.
	s.exportDevice(s.agg.DisplayDevice())

	flags := godbus.NameFlagDoNotQueue
	if replace {
		flags |= godbus.NameFlagReplaceExisting
	}
	reply, err := conn.RequestName(busName, flags)
	if err != nil {
		return fmt.Errorf("request name %s: %w", busName, err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already owned on the bus", busName)
	}

	go s.pump(ctx)
	return nil
}

// Close releases the bus connection.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.agg.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Server) handleEvent(ev aggregator.Event) {
	switch ev.Type {
	case aggregator.EventAdded:
		s.exportDevice(ev.Device)
		s.emitManagerSignal("DeviceAdded", ev.Path)
	case aggregator.EventRemoved:
		s.unexportDevice(ev.Path)
		s.emitManagerSignal("DeviceRemoved", ev.Path)
	case aggregator.EventChanged:
		s.scheduleChangeSignal(ev.Path)
	}
	// Any add/remove/change recomputes the synthesized aggregate
	// (internal/aggregator's recompute), so its properties need the same
	// coalesced signal even though it never gets its own Added/Removed
	// event.
	if ev.Path != aggregator.DisplayDevicePath {
		s.scheduleChangeSignal(aggregator.DisplayDevicePath)
	}
}

func (s *Server) exportDevice(d device.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exported[d.ObjectPath] {
		return
	}
	path := godbus.ObjectPath(d.ObjectPath)
	obj := &deviceObject{srv: s, path: d.ObjectPath}
	s.conn.Export(obj, path, deviceIface)
	s.conn.Export(introspect.Introspectable(deviceIntrospectXML), path, "org.freedesktop.DBus.Introspectable")
	s.conn.Export(obj, path, propsIface)
	s.exported[d.ObjectPath] = true
}

func (s *Server) unexportDevice(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exported, path)
	if t, ok := s.pending[path]; ok {
		t.Stop()
		delete(s.pending, path)
	}
	objPath := godbus.ObjectPath(path)
	s.conn.Export(nil, objPath, deviceIface)
	s.conn.Export(nil, objPath, propsIface)
	s.conn.Export(nil, objPath, "org.freedesktop.DBus.Introspectable")
}

// scheduleChangeSignal debounces PropertiesChanged to at most one emission
// per coalesceWindow per device, always carrying the freshest state at the
// moment the timer fires.
func (s *Server) scheduleChangeSignal(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.pending[path]; pending {
		return
	}
	s.pending[path] = time.AfterFunc(coalesceWindow, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		s.emitPropertiesChanged(path)
	})
}

func (s *Server) emitPropertiesChanged(path string) {
	var (
		d  device.Device
		ok = true
	)
	if path == aggregator.DisplayDevicePath {
		d = s.agg.DisplayDevice()
	} else {
		d, ok = s.agg.Get(path)
	}
	if !ok {
		return
	}
	props := deviceProperties(d)
	changed := make(map[string]godbus.Variant, len(props))
	for k, v := range props {
		changed[k] = godbus.MakeVariant(v)
	}
	err := s.conn.Emit(godbus.ObjectPath(path), propsIface+".PropertiesChanged", deviceIface, changed, []string{})
	if err != nil && s.log != nil {
		s.log.Warn("emit PropertiesChanged failed", "path", path, "error", err)
	}
}

func (s *Server) emitManagerSignal(name string, path string) {
	err := s.conn.Emit(managerPath, managerIface+"."+name, godbus.ObjectPath(path))
	if err != nil && s.log != nil {
		s.log.Warn("emit manager signal failed", "signal", name, "error", err)
	}
}
