package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/upowerd/upowerd/internal/config"
	"github.com/upowerd/upowerd/internal/device"
)

func writeUevent(t *testing.T, dir string, lines map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var content string
	for k, v := range lines {
		content += "POWER_SUPPLY_" + k + "=" + v + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newMockTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	classDir := filepath.Join(root, "class", "power_supply")

	writeUevent(t, filepath.Join(classDir, "BAT0"), map[string]string{
		"TYPE":               "Battery",
		"SCOPE":              "System",
		"STATUS":             "Discharging",
		"PRESENT":            "1",
		"ENERGY_FULL":        "60000000",
		"ENERGY_FULL_DESIGN": "80000000",
		"ENERGY_NOW":         "48000000",
		"VOLTAGE_NOW":        "12000000",
	})
	writeUevent(t, filepath.Join(classDir, "AC"), map[string]string{
		"TYPE":   "Mains",
		"ONLINE": "0",
	})
	return root
}

func TestSysfsAdapterEnumerateAndRefresh(t *testing.T) {
	root := newMockTree(t)
	a := NewSysfsAdapter(root, nil, nil)

	ctx := context.Background()
	sources, err := a.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}

	var sawBattery, sawLinePower bool
	for _, src := range sources {
		snap, err := a.Refresh(ctx, src)
		if err != nil {
			t.Fatalf("Refresh(%v): %v", src, err)
		}
		switch snap.Kind {
		case device.KindBattery:
			sawBattery = true
			if snap.Attrs["status"] != "Discharging" {
				t.Errorf("battery status = %q, want Discharging", snap.Attrs["status"])
			}
		case device.KindLinePower:
			sawLinePower = true
			if snap.Attrs["online"] != "0" {
				t.Errorf("line_power online = %q, want 0", snap.Attrs["online"])
			}
		}
	}
	if !sawBattery || !sawLinePower {
		t.Errorf("expected both a battery and a line_power source, sawBattery=%v sawLinePower=%v", sawBattery, sawLinePower)
	}
}

func TestSysfsAdapterClassifyUsesPeripheralProfile(t *testing.T) {
	root := t.TempDir()
	classDir := filepath.Join(root, "class", "power_supply")
	entryDir := filepath.Join(classDir, "hidpp_battery_0")

	writeUevent(t, entryDir, map[string]string{
		"TYPE": "Battery",
	})
	devDir := filepath.Join(entryDir, "device")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "idVendor"), []byte("046d\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "idProduct"), []byte("c52b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles := &config.Profiles{
		Peripheral: []config.PeripheralProfile{
			{VendorID: 0x046d, ProductID: 0xc52b, Kind: "mouse"},
		},
	}
	a := NewSysfsAdapter(root, profiles, nil)

	kind, scope := a.classify(entryDir)
	if kind != device.KindMouse {
		t.Errorf("kind = %v, want mouse", kind)
	}
	if scope != device.ScopeDevice {
		t.Errorf("scope = %v, want device", scope)
	}
}
