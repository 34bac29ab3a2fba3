package source

import (
	"context"
	"sync"

	"github.com/upowerd/upowerd/internal/device"
)

// DummyAdapter holds a programmable, in-memory inventory of sources. It
// backs the backend's unit tests, which need a deterministic source of
// snapshots without touching the real kernel interface. The
// UPOWER_MOCK_TREE daemon mode reads a sysfs-shaped tree through
// SysfsAdapter instead.
type DummyAdapter struct {
	mu      sync.Mutex
	entries map[string]dummyEntry
	subs    []chan<- ChangeEvent
}

type dummyEntry struct {
	snap device.RawSnapshot
}

func NewDummyAdapter() *DummyAdapter {
	return &DummyAdapter{entries: make(map[string]dummyEntry)}
}

func (a *DummyAdapter) Name() string { return "source.dummy" }

// Set installs or updates a source's snapshot and notifies any active
// subscription, mimicking a real adapter's change event.
func (a *DummyAdapter) Set(identity string, snap device.RawSnapshot) {
	snap.Identity = identity
	a.mu.Lock()
	a.entries[identity] = dummyEntry{snap: snap}
	subs := append([]chan<- ChangeEvent(nil), a.subs...)
	a.mu.Unlock()

	for _, sink := range subs {
		sink <- ChangeEvent{Identity: identity}
	}
}

// Remove deletes a source and notifies subscribers of its removal.
func (a *DummyAdapter) Remove(identity string) {
	a.mu.Lock()
	delete(a.entries, identity)
	subs := append([]chan<- ChangeEvent(nil), a.subs...)
	a.mu.Unlock()

	for _, sink := range subs {
		sink <- ChangeEvent{Identity: identity, Removed: true}
	}
}

func (a *DummyAdapter) Enumerate(ctx context.Context) ([]RawSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RawSource, 0, len(a.entries))
	for id := range a.entries {
		out = append(out, dummySource{identity: id})
	}
	return out, nil
}

func (a *DummyAdapter) Refresh(ctx context.Context, src RawSource) (device.RawSnapshot, error) {
	s := src.(dummySource)
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[s.identity]
	if !ok {
		return device.RawSnapshot{}, errNotFound{s.identity}
	}
	return e.snap, nil
}

func (a *DummyAdapter) Subscribe(ctx context.Context, sink chan<- ChangeEvent) (Subscription, error) {
	a.mu.Lock()
	a.subs = append(a.subs, sink)
	a.mu.Unlock()
	return dummySubscription{adapter: a, sink: sink}, nil
}

type dummySource struct{ identity string }

func (s dummySource) Identity() string { return s.identity }

type dummySubscription struct {
	adapter *DummyAdapter
	sink    chan<- ChangeEvent
}

func (s dummySubscription) Close() error {
	s.adapter.mu.Lock()
	defer s.adapter.mu.Unlock()
	for i, c := range s.adapter.subs {
		if c == s.sink {
			s.adapter.subs = append(s.adapter.subs[:i], s.adapter.subs[i+1:]...)
			break
		}
	}
	return nil
}

type errNotFound struct{ identity string }

func (e errNotFound) Error() string { return "source: no entry for identity " + e.identity }
