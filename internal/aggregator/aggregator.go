// Package aggregator holds the device registry, computes system-wide
// derived state (OnBattery, the display device), and fans out change
// notifications to the bus surface. All mutation happens on one goroutine
// (Run) so reads never need to lock against a concurrent writer.
package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/upowerd/upowerd/internal/device"
	"github.com/upowerd/upowerd/internal/warning"
)

// EventType classifies a change notification.
type EventType int

const (
	EventAdded EventType = iota
	EventRemoved
	EventChanged
)

// Event is one change notification fanned out to the bus surface.
type Event struct {
	Type   EventType
	Path   string
	Device device.Device
}

type state struct {
	devices  map[string]device.Device
	warn     *warning.Engine
	onBattery bool
	display  device.Device
}

// Aggregator serializes every registry mutation and derived-state
// recomputation through a single loop goroutine.
type Aggregator struct {
	cmds   chan func(*state)
	events chan Event
	log    *slog.Logger
}

// New constructs an Aggregator. Call Run in its own goroutine to start the
// loop; it returns when ctx is cancelled.
func New(log *slog.Logger) *Aggregator {
	return &Aggregator{
		cmds:   make(chan func(*state), 64),
		events: make(chan Event, 256),
		log:    log,
	}
}

// Events is the fan-out channel the bus surface drains to learn about
// device-added/removed/changed transitions.
func (a *Aggregator) Events() <-chan Event {
	return a.events
}

// Run executes the loop until ctx is cancelled. Must be called exactly
// once, typically in its own goroutine.
func (a *Aggregator) Run(ctx context.Context, warn *warning.Engine) {
	st := &state{devices: make(map[string]device.Device), warn: warn}
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.cmds:
			fn(st)
		}
	}
}

// do enqueues fn to run on the loop goroutine and blocks until it has.
func (a *Aggregator) do(fn func(*state)) {
	done := make(chan struct{})
	a.cmds <- func(st *state) {
		fn(st)
		close(done)
	}
	<-done
}

func (a *Aggregator) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		if a.log != nil {
			a.log.Warn("event channel full, dropping change notification", "path", ev.Path)
		}
	}
}

// Add installs a newly discovered device and recomputes derived state.
func (a *Aggregator) Add(d device.Device) {
	a.do(func(st *state) {
		d.WarningLevel = st.warn.Compute(d.ObjectPath, d.Kind, d.State, d.Percentage, d.TimeToEmpty)
		st.devices[d.ObjectPath] = d
		a.recompute(st)
	})
	a.emit(Event{Type: EventAdded, Path: d.ObjectPath, Device: d})
}

// Update replaces an existing device's state and recomputes derived state.
// forced bypasses the no-op detection that would otherwise suppress a
// signal when nothing observable changed (used for the post-resume
// refresh per §3).
func (a *Aggregator) Update(d device.Device, forced bool) (changed bool) {
	a.do(func(st *state) {
		prior, existed := st.devices[d.ObjectPath]
		d.WarningLevel = st.warn.Compute(d.ObjectPath, d.Kind, d.State, d.Percentage, d.TimeToEmpty)
		st.devices[d.ObjectPath] = d
		changed = forced || !existed || prior != d
		a.recompute(st)
	})
	if changed {
		a.emit(Event{Type: EventChanged, Path: d.ObjectPath, Device: d})
	}
	return changed
}

// Remove deletes a device from the registry.
func (a *Aggregator) Remove(path string) (removed device.Device, ok bool) {
	a.do(func(st *state) {
		removed, ok = st.devices[path]
		delete(st.devices, path)
		a.recompute(st)
	})
	if ok {
		a.emit(Event{Type: EventRemoved, Path: path})
	}
	return removed, ok
}

func (a *Aggregator) recompute(st *state) {
	st.onBattery = ComputeOnBattery(st.devices)
	st.display = SynthesizeDisplay(st.devices)
}

// Get returns one device by path.
func (a *Aggregator) Get(path string) (d device.Device, ok bool) {
	a.do(func(st *state) { d, ok = st.devices[path] })
	return d, ok
}

// EnumerateDevices lists every object_path currently registered.
func (a *Aggregator) EnumerateDevices() []string {
	var paths []string
	a.do(func(st *state) {
		paths = make([]string, 0, len(st.devices))
		for p := range st.devices {
			paths = append(paths, p)
		}
	})
	return paths
}

// DisplayDevice returns the current synthesized aggregate device.
func (a *Aggregator) DisplayDevice() device.Device {
	var d device.Device
	a.do(func(st *state) { d = st.display })
	return d
}

// OnBattery returns the current system-wide on-battery state.
func (a *Aggregator) OnBattery() bool {
	var v bool
	a.do(func(st *state) { v = st.onBattery })
	return v
}

// GlobalWarningLevel is the worst warning level among devices currently
// supplying the host.
func (a *Aggregator) GlobalWarningLevel() device.WarningLevel {
	var levels []device.WarningLevel
	a.do(func(st *state) {
		for _, d := range st.devices {
			if d.SuppliesHost() {
				levels = append(levels, d.WarningLevel)
			}
		}
	})
	return warning.Global(levels)
}

// ResumeForcedRefreshWindow is a 30-second span after a wake signal. No
// package reads it: the backend marks exactly one refresh per device as
// forced for each wake signal, with no time window.
const ResumeForcedRefreshWindow = 30 * time.Second
