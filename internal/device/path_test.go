package device

import "testing"

func TestObjectPathStableForSameInputs(t *testing.T) {
	a := ObjectPath(KindBattery, "/sys/class/power_supply/BAT0")
	b := ObjectPath(KindBattery, "/sys/class/power_supply/BAT0")
	if a != b {
		t.Errorf("object path not stable: %q != %q", a, b)
	}
	if a != "/org/freedesktop/UPower/devices/battery_sys_class_power_supply_BAT0" {
		t.Errorf("unexpected object path %q", a)
	}
}

func TestObjectPathDiffersByKind(t *testing.T) {
	a := ObjectPath(KindBattery, "/dev/hidraw0")
	b := ObjectPath(KindUPS, "/dev/hidraw0")
	if a == b {
		t.Errorf("expected distinct paths for distinct kinds, got %q for both", a)
	}
}

func TestIdentityHashStable(t *testing.T) {
	a := IdentityHash("vendor=046d product=c52b address=00:11:22")
	b := IdentityHash("vendor=046d product=c52b address=00:11:22")
	if a != b {
		t.Errorf("identity hash not stable: %q != %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("identity hash length = %d, want 16", len(a))
	}
}
