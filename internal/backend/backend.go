// Package backend drives one native source adapter: translating its raw
// events into aggregator Add/Update/Remove calls, scheduling refreshes on
// the cadence in §4.3, and debouncing peripheral removals so a kernel
// re-enumeration on wake doesn't look like an unplug/replug to clients.
package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/upowerd/upowerd/internal/aggregator"
	"github.com/upowerd/upowerd/internal/device"
	"github.com/upowerd/upowerd/internal/history"
	"github.com/upowerd/upowerd/internal/source"
)

const (
	lineAndPeripheralInterval = 30 * time.Second
	batteryInterval           = 60 * time.Second
	transientInterval         = 10 * time.Second
	transientWindow           = 2 * time.Minute
	quarantineWindow          = 2 * time.Second
	pollTick                  = 10 * time.Second
)

type sourceEntry struct {
	raw            source.RawSource
	identity       string
	device         device.Device
	lastTransition time.Time
	nextDue        time.Time
}

// Backend owns exactly one native adapter.
type Backend struct {
	name    string
	adapter source.Adapter
	agg     *aggregator.Aggregator
	hist    *history.Store
	log     *slog.Logger

	mu          sync.Mutex
	entries     map[string]*sourceEntry
	quarantined map[string]*sourceEntry
}

// New constructs a Backend. hist may be nil, in which case no time series
// are recorded (used by tests that don't exercise history at all).
func New(name string, adapter source.Adapter, agg *aggregator.Aggregator, hist *history.Store, log *slog.Logger) *Backend {
	return &Backend{
		name:        name,
		adapter:     adapter,
		agg:         agg,
		hist:        hist,
		log:         log,
		entries:     make(map[string]*sourceEntry),
		quarantined: make(map[string]*sourceEntry),
	}
}

// recordHistory persists the four per-device series (§4.6) for one
// refreshed device.
func (b *Backend) recordHistory(identity string, d device.Device, now time.Time) {
	if b.hist == nil {
		return
	}
	hash := device.IdentityHash(identity)
	b.hist.Record(hash, history.SeriesRate, now, d.EnergyRate, d.State.String())
	b.hist.Record(hash, history.SeriesCharge, now, d.Percentage, d.State.String())
	b.hist.Record(hash, history.SeriesTimeFull, now, float64(d.TimeToFull), d.State.String())
	b.hist.Record(hash, history.SeriesTimeEmpty, now, float64(d.TimeToEmpty), d.State.String())
}

// Run performs coldplug, then serves change events and scheduled refreshes
// until ctx is cancelled. wake, if non-nil, delivers resume notifications
// that force an immediate, non-suppressible refresh of every device this
// backend owns.
func (b *Backend) Run(ctx context.Context, wake <-chan struct{}) error {
	if err := b.coldplug(ctx); err != nil {
		return err
	}

	changeCh := make(chan source.ChangeEvent, 32)
	sub, err := b.adapter.Subscribe(ctx, changeCh)
	degraded := err != nil
	if degraded && b.log != nil {
		b.log.Warn("change notification unavailable, falling back to polling", "backend", b.name, "error", err)
	}
	if !degraded {
		defer sub.Close()
	}

	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-changeCh:
			b.handleChangeEvent(ctx, ev)
		case <-ticker.C:
			b.refreshDue(ctx, time.Now())
		case <-wake:
			b.forceRefreshAll(ctx)
		}
	}
}

func (b *Backend) coldplug(ctx context.Context) error {
	sources, err := b.adapter.Enumerate(ctx)
	if err != nil {
		return err
	}
	for _, raw := range sources {
		b.addSource(ctx, raw)
	}
	return nil
}

func (b *Backend) addSource(ctx context.Context, raw source.RawSource) {
	snap, err := b.adapter.Refresh(ctx, raw)
	if err != nil {
		if b.log != nil {
			b.log.Warn("initial refresh failed", "backend", b.name, "identity", raw.Identity(), "error", err)
		}
		return
	}
	now := time.Now()
	d := device.Normalize(nil, snap, now)
	e := &sourceEntry{raw: raw, identity: raw.Identity(), device: d, lastTransition: now}
	e.nextDue = now.Add(b.intervalFor(e))

	b.mu.Lock()
	b.entries[e.identity] = e
	b.mu.Unlock()

	b.agg.Add(d)
	b.recordHistory(e.identity, d, now)
}

func (b *Backend) refreshDue(ctx context.Context, now time.Time) {
	b.mu.Lock()
	var due []*sourceEntry
	for _, e := range b.entries {
		if !now.Before(e.nextDue) {
			due = append(due, e)
		}
	}
	b.mu.Unlock()

	for _, e := range due {
		b.refreshOne(ctx, e, false)
	}
}

func (b *Backend) forceRefreshAll(ctx context.Context) {
	b.mu.Lock()
	all := make([]*sourceEntry, 0, len(b.entries))
	for _, e := range b.entries {
		all = append(all, e)
	}
	b.mu.Unlock()

	for _, e := range all {
		b.refreshOne(ctx, e, true)
	}
}

func (b *Backend) refreshOne(ctx context.Context, e *sourceEntry, forced bool) {
	snap, err := b.adapter.Refresh(ctx, e.raw)
	now := time.Now()
	if err != nil {
		if b.log != nil {
			b.log.Warn("refresh failed", "backend", b.name, "identity", e.identity, "error", err)
		}
		b.mu.Lock()
		e.nextDue = now.Add(b.intervalFor(e))
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	prior := e.device
	d := device.Normalize(&prior, snap, now)
	transitioned := d.State != prior.State
	if transitioned {
		e.lastTransition = now
	}
	e.device = d
	e.nextDue = now.Add(b.intervalFor(e))
	b.mu.Unlock()

	b.agg.Update(d, forced)
	b.recordHistory(e.identity, d, now)
}

func (b *Backend) intervalFor(e *sourceEntry) time.Duration {
	switch e.device.Kind {
	case device.KindBattery, device.KindUPS:
		if time.Since(e.lastTransition) < transientWindow {
			return transientInterval
		}
		return batteryInterval
	default:
		return lineAndPeripheralInterval
	}
}

func (b *Backend) handleChangeEvent(ctx context.Context, ev source.ChangeEvent) {
	if ev.Removed {
		b.handleRemoval(ctx, ev.Identity)
		return
	}

	b.mu.Lock()
	_, known := b.entries[ev.Identity]
	quarantinedEntry, wasQuarantined := b.quarantined[ev.Identity]
	b.mu.Unlock()

	if known {
		b.mu.Lock()
		e := b.entries[ev.Identity]
		b.mu.Unlock()
		if e != nil {
			b.refreshOne(ctx, e, false)
		}
		return
	}

	sources, err := b.adapter.Enumerate(ctx)
	if err != nil {
		if b.log != nil {
			b.log.Warn("re-enumerate after change event failed", "backend", b.name, "error", err)
		}
		return
	}
	var raw source.RawSource
	for _, s := range sources {
		if s.Identity() == ev.Identity {
			raw = s
			break
		}
	}
	if raw == nil {
		return
	}

	if wasQuarantined {
		b.mu.Lock()
		delete(b.quarantined, ev.Identity)
		quarantinedEntry.raw = raw
		b.entries[ev.Identity] = quarantinedEntry
		b.mu.Unlock()
		b.refreshOne(ctx, quarantinedEntry, false)
		return
	}

	b.addSource(ctx, raw)
}

// handleRemoval quarantines a removed peripheral for quarantineWindow
// instead of immediately deleting it, so a kernel re-enumeration on wake
// (the same logical device reappearing under a fresh handle) resurrects
// the existing Device rather than creating a new one (§4.3).
func (b *Backend) handleRemoval(ctx context.Context, identity string) {
	b.mu.Lock()
	e, ok := b.entries[identity]
	if ok {
		delete(b.entries, identity)
		b.quarantined[identity] = e
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	go func() {
		select {
		case <-time.After(quarantineWindow):
			b.mu.Lock()
			_, stillQuarantined := b.quarantined[identity]
			delete(b.quarantined, identity)
			b.mu.Unlock()
			if stillQuarantined {
				b.agg.Remove(e.device.ObjectPath)
			}
		case <-ctx.Done():
		}
	}()
}
