package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/upowerd/upowerd/internal/config"
	"github.com/upowerd/upowerd/internal/device"
)

// SysfsAdapter enumerates the power_supply class tree. It builds on any OS
// whose filesystem exposes the same layout, which is what makes it usable
// against the UPOWER_MOCK_TREE fixture in tests as well as the real /sys.
type SysfsAdapter struct {
	root     string
	profiles *config.Profiles
	log      *slog.Logger
}

// NewSysfsAdapter constructs an adapter rooted at root (normally "/sys",
// overridable for tests and UPOWER_MOCK_TREE). profiles may be nil, in
// which case classify falls back entirely to the path-string heuristic.
func NewSysfsAdapter(root string, profiles *config.Profiles, log *slog.Logger) *SysfsAdapter {
	return &SysfsAdapter{root: root, profiles: profiles, log: log}
}

func (a *SysfsAdapter) Name() string { return "source.sysfs" }

func (a *SysfsAdapter) classDir() string {
	return filepath.Join(a.root, "class", "power_supply")
}

type sysfsSource struct {
	path     string
	kind     device.Kind
	scope    device.Scope
	identity string
}

func (s sysfsSource) Identity() string { return s.identity }

func (a *SysfsAdapter) Enumerate(ctx context.Context) ([]RawSource, error) {
	entries, err := os.ReadDir(a.classDir())
	if err != nil {
		return nil, fmt.Errorf("sysfs: read class dir: %w", err)
	}
	sources := make([]RawSource, 0, len(entries))
	for _, e := range entries {
		path := filepath.Join(a.classDir(), e.Name())
		kind, scope := a.classify(path)
		sources = append(sources, sysfsSource{
			path:     path,
			kind:     kind,
			scope:    scope,
			identity: path,
		})
	}
	return sources, nil
}

// classify derives Kind/Scope from the uevent "type"/"scope" attributes and,
// for ambiguous peripheral entries, from the device tree the power_supply
// node's symlink resolves into (e.g. an ancestor path segment naming the
// bluetooth or input subsystem).
func (a *SysfsAdapter) classify(path string) (device.Kind, device.Scope) {
	attrs, err := readUevent(filepath.Join(path, "uevent"))
	if err != nil {
		return device.KindUnknown, device.ScopeUnknown
	}

	scope := device.ScopeUnknown
	switch strings.ToLower(attrs["scope"]) {
	case "system":
		scope = device.ScopeSystem
	case "device":
		scope = device.ScopeDevice
	}

	kind := device.KindUnknown
	switch strings.ToLower(attrs["type"]) {
	case "mains", "usb", "wireless":
		kind = device.KindLinePower
	case "battery":
		kind = device.KindBattery
	case "ups":
		kind = device.KindUPS
	}

	if kind == device.KindBattery && scope == device.ScopeUnknown {
		if a.profiles != nil {
			if vendorID, productID, ok := readVendorProductIDs(filepath.Join(path, "device")); ok {
				if profileKind, ok := a.profiles.PeripheralKindFor(vendorID, productID); ok {
					if k, ok := kindFromProfileString(profileKind); ok {
						return k, device.ScopeDevice
					}
				}
			}
		}
		if real, err := filepath.EvalSymlinks(path); err == nil {
			switch {
			case strings.Contains(real, "/bluetooth/"):
				kind, scope = device.KindBluetoothGeneric, device.ScopeDevice
			case strings.Contains(real, "/input/"):
				kind, scope = device.KindMouse, device.ScopeDevice
			default:
				scope = device.ScopeSystem
			}
		} else {
			scope = device.ScopeSystem
		}
	}

	return kind, scope
}

// readVendorProductIDs extracts a USB vendor/product pair from the physical
// device a power_supply class entry's "device" symlink resolves to: first
// the plain USB sysfs idVendor/idProduct files, then the HID_ID field of a
// HID device's own uevent (bus:vendor:product, all hex).
func readVendorProductIDs(devicePath string) (uint16, uint16, bool) {
	vendorRaw, err1 := os.ReadFile(filepath.Join(devicePath, "idVendor"))
	productRaw, err2 := os.ReadFile(filepath.Join(devicePath, "idProduct"))
	if err1 == nil && err2 == nil {
		if v, p, ok := parseHexPair(string(vendorRaw), string(productRaw)); ok {
			return v, p, true
		}
	}

	attrs, err := readUevent(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return 0, 0, false
	}
	hidID, ok := attrs["hid_id"]
	if !ok {
		return 0, 0, false
	}
	parts := strings.Split(hidID, ":")
	if len(parts) != 3 {
		return 0, 0, false
	}
	return parseHexPair(parts[1], parts[2])
}

func parseHexPair(a, b string) (uint16, uint16, bool) {
	v, err1 := strconv.ParseUint(strings.TrimSpace(a), 16, 16)
	p, err2 := strconv.ParseUint(strings.TrimSpace(b), 16, 16)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint16(v), uint16(p), true
}

// kindFromProfileString maps a profiles.toml "kind" string to a device.Kind,
// the inverse of Kind.String for the peripheral subset.
func kindFromProfileString(s string) (device.Kind, bool) {
	switch strings.ToLower(s) {
	case "mouse":
		return device.KindMouse, true
	case "keyboard":
		return device.KindKeyboard, true
	case "pda":
		return device.KindPDA, true
	case "phone":
		return device.KindPhone, true
	case "media_player":
		return device.KindMediaPlayer, true
	case "tablet":
		return device.KindTablet, true
	case "computer":
		return device.KindComputer, true
	case "gaming_input":
		return device.KindGamingInput, true
	case "bluetooth_generic":
		return device.KindBluetoothGeneric, true
	default:
		return device.KindUnknown, false
	}
}

func (a *SysfsAdapter) Refresh(ctx context.Context, src RawSource) (device.RawSnapshot, error) {
	s, ok := src.(sysfsSource)
	if !ok {
		return device.RawSnapshot{}, fmt.Errorf("sysfs: wrong source type %T", src)
	}
	attrs, err := readUevent(filepath.Join(s.path, "uevent"))
	if err != nil {
		return device.RawSnapshot{}, fmt.Errorf("sysfs: read uevent for %s: %w", s.path, err)
	}
	return device.RawSnapshot{
		Attrs:      attrs,
		Kind:       s.kind,
		Scope:      s.scope,
		NativePath: s.path,
		Identity:   s.identity,
	}, nil
}

// Subscribe watches the class directory for create/remove/write events via
// fsnotify as a filesystem-level stand-in for kernel uevents. Each entry
// also gets its own watch once seen, since per-attribute-file writes (e.g.
// capacity updates) don't always bubble up as a directory event.
func (a *SysfsAdapter) Subscribe(ctx context.Context, sink chan<- ChangeEvent) (Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sysfs: fsnotify unavailable: %w", err)
	}
	if err := watcher.Add(a.classDir()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("sysfs: watch class dir: %w", err)
	}

	entries, _ := os.ReadDir(a.classDir())
	for _, e := range entries {
		uevent := filepath.Join(a.classDir(), e.Name(), "uevent")
		_ = watcher.Add(uevent)
	}

	sub := &sysfsSubscription{watcher: watcher, done: make(chan struct{})}
	go sub.pump(ctx, sink, a.log)
	return sub, nil
}

type sysfsSubscription struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func (s *sysfsSubscription) pump(ctx context.Context, sink chan<- ChangeEvent, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			identity := ev.Name
			if filepath.Base(ev.Name) == "uevent" {
				identity = filepath.Dir(ev.Name)
			}
			change := ChangeEvent{Identity: identity, Removed: ev.Op&fsnotify.Remove != 0}
			select {
			case sink <- change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if log != nil {
				log.Warn("sysfs watch error", "error", err)
			}
		}
	}
}

func (s *sysfsSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.watcher.Close()
}

func readUevent(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimPrefix(k, "POWER_SUPPLY_")
		attrs[strings.ToLower(k)] = v
	}
	return attrs, nil
}

// parseIntAttr is a small convenience used by adapters that need an integer
// straight out of a uevent map without going through device.RawSnapshot.
func parseIntAttr(attrs map[string]string, key string) (int64, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return n, err == nil
}
