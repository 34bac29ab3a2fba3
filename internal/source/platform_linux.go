//go:build linux

package source

import (
	"log/slog"
	"time"

	"github.com/upowerd/upowerd/internal/config"
)

// NewPlatformUPSAdapter returns the hidraw-based UPS adapter on Linux.
func NewPlatformUPSAdapter(devDir string, profiles *config.Profiles, poll time.Duration, log *slog.Logger) Adapter {
	return NewHIDUPSAdapter(devDir, profiles, poll, log)
}
