package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultProfilesPath is overridden for tests via UPOWER_DEVICE_PROFILES.
const DefaultProfilesPath = "/etc/upowerd/profiles.toml"

// HIDUPSProfile maps a USB vendor/product pair to the HID usage-page
// offsets this daemon knows how to decode for that UPS model, and the
// display name shown in place of the generic hidraw node name.
type HIDUPSProfile struct {
	VendorID    uint16 `toml:"vendor_id"`
	ProductID   uint16 `toml:"product_id"`
	DisplayName string `toml:"display_name"`

	RemainingCapacityOffset int `toml:"remaining_capacity_offset"`
	RunTimeToEmptyOffset    int `toml:"run_time_to_empty_offset"`
	ACPresentOffset         int `toml:"ac_present_offset"`
	ChargingOffset          int `toml:"charging_offset"`
}

// PeripheralProfile overrides the Kind the sysfs adapter would otherwise
// guess for a peripheral whose type attribute alone is ambiguous.
type PeripheralProfile struct {
	VendorID  uint16 `toml:"vendor_id"`
	ProductID uint16 `toml:"product_id"`
	Kind      string `toml:"kind"`
}

// Profiles is the full static device-profile table.
type Profiles struct {
	HIDUPS     []HIDUPSProfile      `toml:"hid_ups"`
	Peripheral []PeripheralProfile  `toml:"peripheral"`
}

// LoadProfiles reads the device-profile TOML file at path. A missing file
// yields an empty table rather than an error, since HID-UPS and peripheral
// overrides are both optional enrichments.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profiles{}, nil
		}
		return nil, fmt.Errorf("read device profiles: %w", err)
	}
	var p Profiles
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse device profiles: %w", err)
	}
	return &p, nil
}

// HIDUPSFor returns the profile matching a vendor/product pair, if any.
func (p *Profiles) HIDUPSFor(vendorID, productID uint16) (HIDUPSProfile, bool) {
	for _, e := range p.HIDUPS {
		if e.VendorID == vendorID && e.ProductID == productID {
			return e, true
		}
	}
	return HIDUPSProfile{}, false
}

// PeripheralKindFor returns the configured kind override for a vendor/
// product pair, if any.
func (p *Profiles) PeripheralKindFor(vendorID, productID uint16) (string, bool) {
	for _, e := range p.Peripheral {
		if e.VendorID == vendorID && e.ProductID == productID {
			return e.Kind, true
		}
	}
	return "", false
}
