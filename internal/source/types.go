// Package source abstracts the OS-specific mechanisms for discovering power
// sources and reading their raw attributes. Every adapter satisfies the
// same Adapter interface regardless of transport (sysfs, ioctl, HID), so
// the backend never branches on OS.
package source

import (
	"context"

	"github.com/upowerd/upowerd/internal/device"
)

// RawSource is an opaque, adapter-owned handle to one power source.
type RawSource interface {
	// Identity is a stable cross-refresh, cross-replug identifier (e.g.
	// vendor+product+address for a peripheral, sysfs path for a system
	// device) used by the backend's debounce logic.
	Identity() string
}

// ChangeEvent signals that a source was added, removed, or may have changed
// attributes. It never carries the new attribute values directly; the
// backend always follows up with Refresh.
type ChangeEvent struct {
	Identity string
	Removed  bool
}

// Subscription is a live change-notification stream; Close stops delivery
// and releases any kernel handle the adapter opened to watch for changes.
type Subscription interface {
	Close() error
}

// Adapter is the uniform operation set every native source backend
// implements.
type Adapter interface {
	// Name identifies the adapter for logging (matches its slog topic).
	Name() string
	// Enumerate lists every source currently visible to this adapter.
	Enumerate(ctx context.Context) ([]RawSource, error)
	// Subscribe delivers ChangeEvents to sink until the returned
	// Subscription is closed or ctx is done. An adapter that cannot
	// establish kernel-level change notification returns an error; the
	// caller falls back to polling Refresh on a timer.
	Subscribe(ctx context.Context, sink chan<- ChangeEvent) (Subscription, error)
	// Refresh rereads one source's attributes.
	Refresh(ctx context.Context, src RawSource) (device.RawSnapshot, error)
}
