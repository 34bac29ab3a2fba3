//go:build !linux

package source

import (
	"log/slog"
	"time"

	"github.com/upowerd/upowerd/internal/config"
)

// NewPlatformUPSAdapter returns the apm(4)-based adapter on non-Linux
// targets; devDir and poll are unused there, kept for signature parity.
func NewPlatformUPSAdapter(devDir string, profiles *config.Profiles, poll time.Duration, log *slog.Logger) Adapter {
	return NewBSDPowerAdapter(log)
}
