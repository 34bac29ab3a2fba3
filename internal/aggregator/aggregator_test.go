package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/upowerd/upowerd/internal/config"
	"github.com/upowerd/upowerd/internal/device"
	"github.com/upowerd/upowerd/internal/warning"
)

func newTestAggregator(t *testing.T) (*Aggregator, context.CancelFunc) {
	t.Helper()
	warn := warning.NewEngine(warning.FromConfig(config.DefaultConfig()))
	a := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx, warn)
	return a, cancel
}

func TestAggregatorAddEmitsEvent(t *testing.T) {
	a, cancel := newTestAggregator(t)
	defer cancel()

	d := battery("/bat0", device.StateDischarging, 48, 60, 5)
	a.Add(d)

	select {
	case ev := <-a.Events():
		if ev.Type != EventAdded || ev.Path != "/bat0" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DeviceAdded event")
	}

	paths := a.EnumerateDevices()
	if len(paths) != 1 || paths[0] != "/bat0" {
		t.Errorf("EnumerateDevices() = %v, want [/bat0]", paths)
	}
}

func TestAggregatorRemoveDeletesFromRegistry(t *testing.T) {
	a, cancel := newTestAggregator(t)
	defer cancel()

	a.Add(battery("/bat0", device.StateDischarging, 48, 60, 5))
	<-a.Events()

	removed, ok := a.Remove("/bat0")
	if !ok || removed.ObjectPath != "/bat0" {
		t.Fatalf("Remove returned (%+v, %v)", removed, ok)
	}
	<-a.Events()

	if _, ok := a.Get("/bat0"); ok {
		t.Error("expected device gone from registry after Remove")
	}
}

func TestAggregatorUpdateSuppressesUnchangedUnlessForced(t *testing.T) {
	a, cancel := newTestAggregator(t)
	defer cancel()

	d := battery("/bat0", device.StateDischarging, 48, 60, 5)
	a.Add(d)
	<-a.Events()

	if changed := a.Update(d, false); changed {
		t.Error("expected no-op update to report unchanged")
	}
	if changed := a.Update(d, true); !changed {
		t.Error("expected forced update to report changed")
	}
	<-a.Events()
}

func TestAggregatorOnBatteryReflectsRegistry(t *testing.T) {
	a, cancel := newTestAggregator(t)
	defer cancel()

	a.Add(battery("/bat0", device.StateDischarging, 48, 60, 5))
	<-a.Events()

	if !a.OnBattery() {
		t.Error("expected OnBattery=true")
	}
}
