// Package resume listens for systemd-logind sleep/wake signals so the
// backend can force an out-of-band refresh pass after the system wakes,
// discarding any stale per-device cache left over from before suspend.
package resume

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	loginManagerIface = "org.freedesktop.login1.Manager"
)

// Detector watches org.freedesktop.login1.Manager's PrepareForSleep and
// PrepareForShutdown signals on the system bus.
type Detector struct {
	conn *dbus.Conn
	done chan struct{}
	wake chan struct{}
	log  *slog.Logger
}

// NewDetector connects to the system bus and subscribes to the logind
// sleep/shutdown signals.
func NewDetector(log *slog.Logger) (*Detector, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(loginManagerIface),
			dbus.WithMatchMember(member),
		); err != nil {
			return nil, err
		}
	}

	d := &Detector{
		conn: conn,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
		log:  log,
	}
	go d.listen()
	return d, nil
}

// Wake returns a channel that receives a value each time the system resumes
// from sleep. The backend treats each delivery as a signal to force a
// non-suppressible refresh of every device (§3).
func (d *Detector) Wake() <-chan struct{} {
	return d.wake
}

// Close stops the detector and releases its bus connection.
func (d *Detector) Close() error {
	close(d.done)
	return d.conn.Close()
}

// isWakeSignal reports whether sig is a PrepareForSleep signal, and if so
// whether its edge marks a wake (active == false, i.e. sleep has ended)
// rather than the onset of sleep.
func isWakeSignal(sig *dbus.Signal) (woke, relevant bool) {
	if sig.Name != loginManagerIface+".PrepareForSleep" || len(sig.Body) < 1 {
		return false, false
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return false, false
	}
	return !active, true
}

func (d *Detector) listen() {
	ch := make(chan *dbus.Signal, 16)
	d.conn.Signal(ch)
	defer d.conn.RemoveSignal(ch)

	for {
		select {
		case <-d.done:
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if woke, ok := isWakeSignal(sig); ok {
				if woke {
					if d.log != nil {
						d.log.Info("system woke from sleep")
					}
					select {
					case d.wake <- struct{}{}:
					default:
					}
				} else if d.log != nil {
					d.log.Info("system going to sleep")
				}
			}
		}
	}
}
