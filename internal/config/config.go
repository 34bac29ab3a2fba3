// Package config loads the daemon's runtime configuration: a flat
// key=value file for policy tunables, and (see profiles.go) a static TOML
// device-profile table for HID-UPS and peripheral classification.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	minPercentage = 0
	maxPercentage = 100
	minSeconds    = 0
	maxSeconds    = 24 * 3600
)

// Config holds the warning-level policy tunables from §6. There are no
// section headers: the key set is small and flat, so a TOML or INI parser
// would be pure overhead.
type Config struct {
	PercentageLow      int
	PercentageCritical int
	PercentageAction   int
	TimeLow            int
	TimeCritical       int
	TimeAction         int
	UsePercentageForPolicy bool
	CriticalPowerAction    string

	// HIDUPSPollSeconds is passed to the hidraw UPS adapter, which only
	// reports it in the error its Subscribe returns. It does not set how
	// often feature reports are read: the backend's refresh cadence for
	// the resulting UPS Device does.
	HIDUPSPollSeconds int
}

func DefaultConfig() *Config {
	return &Config{
		PercentageLow:          10,
		PercentageCritical:     5,
		PercentageAction:       2,
		TimeLow:                600,
		TimeCritical:           300,
		TimeAction:             120,
		UsePercentageForPolicy: false,
		CriticalPowerAction:    "HybridSleep",
		HIDUPSPollSeconds:      30,
	}
}

// Load reads and validates the key=value config file at path. A missing
// file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	assignments, err := parseKeyValue(f)
	if err != nil {
		return nil, err
	}
	if err := apply(cfg, assignments); err != nil {
		return nil, err
	}
	return NormalizeAndValidate(cfg)
}

func parseKeyValue(f *os.File) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("config line %d: expected key=value, got %q", line, text)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return out, nil
}

func apply(cfg *Config, assignments map[string]string) error {
	ints := map[string]*int{
		"PercentageLow":      &cfg.PercentageLow,
		"PercentageCritical": &cfg.PercentageCritical,
		"PercentageAction":   &cfg.PercentageAction,
		"TimeLow":            &cfg.TimeLow,
		"TimeCritical":       &cfg.TimeCritical,
		"TimeAction":         &cfg.TimeAction,
		"HIDUPSPollSeconds":  &cfg.HIDUPSPollSeconds,
	}
	for key, dst := range ints {
		v, ok := assignments[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	if v, ok := assignments["UsePercentageForPolicy"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UsePercentageForPolicy: %w", err)
		}
		cfg.UsePercentageForPolicy = b
	}
	if v, ok := assignments["CriticalPowerAction"]; ok {
		cfg.CriticalPowerAction = v
	}
	return nil
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	sanitized := *cfg

	if err := validateRange("PercentageLow", sanitized.PercentageLow, minPercentage, maxPercentage); err != nil {
		return nil, err
	}
	if err := validateRange("PercentageCritical", sanitized.PercentageCritical, minPercentage, maxPercentage); err != nil {
		return nil, err
	}
	if err := validateRange("PercentageAction", sanitized.PercentageAction, minPercentage, maxPercentage); err != nil {
		return nil, err
	}
	if err := validateRange("TimeLow", sanitized.TimeLow, minSeconds, maxSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("TimeCritical", sanitized.TimeCritical, minSeconds, maxSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("TimeAction", sanitized.TimeAction, minSeconds, maxSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("HIDUPSPollSeconds", sanitized.HIDUPSPollSeconds, 1, maxSeconds); err != nil {
		return nil, err
	}
	if sanitized.PercentageAction > sanitized.PercentageCritical || sanitized.PercentageCritical > sanitized.PercentageLow {
		return nil, fmt.Errorf("percentage thresholds must satisfy Action <= Critical <= Low, got %d/%d/%d",
			sanitized.PercentageAction, sanitized.PercentageCritical, sanitized.PercentageLow)
	}
	if sanitized.TimeAction > sanitized.TimeCritical || sanitized.TimeCritical > sanitized.TimeLow {
		return nil, fmt.Errorf("time thresholds must satisfy Action <= Critical <= Low, got %d/%d/%d",
			sanitized.TimeAction, sanitized.TimeCritical, sanitized.TimeLow)
	}

	return &sanitized, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}
	return nil
}
