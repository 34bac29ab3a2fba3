//go:build !linux

package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/upowerd/upowerd/internal/device"
)

// apmPowerInfo mirrors the fields this daemon reads out of the BSD
// apm_info/acpi composite structure via ioctl; only the subset used to
// synthesize AC and battery sources is represented.
type apmPowerInfo struct {
	ACLineStatus   uint8
	BatteryState   uint8
	BatteryLife    uint8
	MinutesLeft    int16
}

const (
	apmDevicePath = "/dev/apm"
	// apmIOCGETPOWER is the BSD apm(4) ioctl that reads the composite power
	// info structure in one call.
	apmIOCGETPOWER = 0x40106501
)

// BSDPowerAdapter reads the composite AC/battery structure BSD exposes
// through a single device node and ioctl, then synthesizes the same
// line_power + battery RawSources the sysfs adapter would produce on
// Linux.
type BSDPowerAdapter struct {
	log *slog.Logger
}

func NewBSDPowerAdapter(log *slog.Logger) *BSDPowerAdapter {
	return &BSDPowerAdapter{log: log}
}

func (a *BSDPowerAdapter) Name() string { return "source.bsd" }

type bsdSource struct{ identity string }

func (s bsdSource) Identity() string { return s.identity }

func (a *BSDPowerAdapter) Enumerate(ctx context.Context) ([]RawSource, error) {
	if _, err := os.Stat(apmDevicePath); err != nil {
		return nil, fmt.Errorf("bsd: apm device unavailable: %w", err)
	}
	return []RawSource{
		bsdSource{identity: "apm:ac"},
		bsdSource{identity: "apm:battery"},
	}, nil
}

func (a *BSDPowerAdapter) Refresh(ctx context.Context, src RawSource) (device.RawSnapshot, error) {
	s, ok := src.(bsdSource)
	if !ok {
		return device.RawSnapshot{}, fmt.Errorf("bsd: wrong source type %T", src)
	}

	info, err := readAPMPowerInfo()
	if err != nil {
		return device.RawSnapshot{}, fmt.Errorf("bsd: read power info: %w", err)
	}

	switch s.identity {
	case "apm:ac":
		online := "0"
		if info.ACLineStatus == 1 {
			online = "1"
		}
		return device.RawSnapshot{
			Attrs:      map[string]string{"online": online},
			Kind:       device.KindLinePower,
			Scope:      device.ScopeSystem,
			NativePath: "apm:ac",
			Identity:   s.identity,
		}, nil
	default:
		status := "Discharging"
		if info.BatteryState == 1 {
			status = "Charging"
		}
		return device.RawSnapshot{
			Attrs: map[string]string{
				"status":                status,
				"capacity":              fmt.Sprintf("%d", info.BatteryLife),
				"present":               "1",
				"time_to_empty_minutes": fmt.Sprintf("%d", info.MinutesLeft),
			},
			Kind:       device.KindBattery,
			Scope:      device.ScopeSystem,
			NativePath: "apm:battery",
			Identity:   s.identity,
		}, nil
	}
}

// Subscribe blocks a dedicated goroutine in a kevent wait on the apm
// device's file descriptor, translating EVFILT_READ wakeups (the kernel's
// way of signalling an AC/battery state change on this interface) into
// ChangeEvents.
func (a *BSDPowerAdapter) Subscribe(ctx context.Context, sink chan<- ChangeEvent) (Subscription, error) {
	fd, err := unix.Open(apmDevicePath, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("bsd: open %s: %w", apmDevicePath, err)
	}
	kq, err := unix.Kqueue()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bsd: kqueue: %w", err)
	}
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		unix.Close(kq)
		unix.Close(fd)
		return nil, fmt.Errorf("bsd: register kevent: %w", err)
	}

	sub := &bsdSubscription{fd: fd, kq: kq, done: make(chan struct{})}
	go sub.pump(ctx, sink, a.log)
	return sub, nil
}

type bsdSubscription struct {
	fd, kq int
	done   chan struct{}
}

func (s *bsdSubscription) pump(ctx context.Context, sink chan<- ChangeEvent, log *slog.Logger) {
	events := make([]unix.Kevent_t, 1)
	timeout := &unix.Timespec{Sec: 1}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}
		n, err := unix.Kevent(s.kq, nil, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if log != nil {
				log.Warn("bsd kevent wait failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		select {
		case sink <- ChangeEvent{Identity: "apm:ac"}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *bsdSubscription) Close() error {
	close(s.done)
	unix.Close(s.kq)
	return unix.Close(s.fd)
}

func readAPMPowerInfo() (apmPowerInfo, error) {
	fd, err := unix.Open(apmDevicePath, unix.O_RDONLY, 0)
	if err != nil {
		return apmPowerInfo{}, err
	}
	defer unix.Close(fd)

	var info apmPowerInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(apmIOCGETPOWER), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return apmPowerInfo{}, errno
	}
	return info, nil
}
