package resume

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestIsWakeSignalDetectsWakeEdge(t *testing.T) {
	sig := &dbus.Signal{Name: loginManagerIface + ".PrepareForSleep", Body: []interface{}{false}}
	woke, relevant := isWakeSignal(sig)
	if !relevant || !woke {
		t.Errorf("isWakeSignal(active=false) = (%v, %v), want (true, true)", woke, relevant)
	}
}

func TestIsWakeSignalIgnoresSleepOnset(t *testing.T) {
	sig := &dbus.Signal{Name: loginManagerIface + ".PrepareForSleep", Body: []interface{}{true}}
	woke, relevant := isWakeSignal(sig)
	if !relevant || woke {
		t.Errorf("isWakeSignal(active=true) = (%v, %v), want (false, true)", woke, relevant)
	}
}

func TestIsWakeSignalIgnoresOtherSignals(t *testing.T) {
	sig := &dbus.Signal{Name: loginManagerIface + ".PrepareForShutdown", Body: []interface{}{true}}
	_, relevant := isWakeSignal(sig)
	if relevant {
		t.Errorf("isWakeSignal(shutdown) relevant = true, want false")
	}
}
