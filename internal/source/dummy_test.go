package source

import (
	"context"
	"testing"

	"github.com/upowerd/upowerd/internal/device"
)

func TestDummyAdapterEnumerateAndRefresh(t *testing.T) {
	a := NewDummyAdapter()
	a.Set("bat0", device.RawSnapshot{Attrs: map[string]string{"status": "Discharging"}, Kind: device.KindBattery})

	ctx := context.Background()
	sources, err := a.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("len(sources) = %d, want 1", len(sources))
	}

	snap, err := a.Refresh(ctx, sources[0])
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Attrs["status"] != "Discharging" {
		t.Errorf("status = %q, want Discharging", snap.Attrs["status"])
	}
}

func TestDummyAdapterNotifiesSubscribers(t *testing.T) {
	a := NewDummyAdapter()
	ctx := context.Background()
	sink := make(chan ChangeEvent, 4)
	sub, err := a.Subscribe(ctx, sink)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	a.Set("bat0", device.RawSnapshot{Kind: device.KindBattery})
	select {
	case ev := <-sink:
		if ev.Identity != "bat0" || ev.Removed {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected change event on Set, got none")
	}

	a.Remove("bat0")
	select {
	case ev := <-sink:
		if !ev.Removed {
			t.Errorf("expected Removed=true, got %+v", ev)
		}
	default:
		t.Fatal("expected change event on Remove, got none")
	}
}
