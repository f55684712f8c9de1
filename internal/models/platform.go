package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// HiddenSuffix marks a customShipping key holding hidden preset indexes.
const HiddenSuffix = "_hidden"

// CustomPlatform is a user-defined marketplace.
type CustomPlatform struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
}

// ShippingPreset is a named shipping fee offered for a platform.
type ShippingPreset struct {
	Name string          `json:"name"`
	Fee  decimal.Decimal `json:"fee"`
}

// CustomShipping maps a platform id to its presets, and "<platform>_hidden"
// to the indexes of built-in presets the user hid. Values are kept raw so
// both shapes survive a merge untouched.
type CustomShipping map[string]json.RawMessage

// HiddenKey returns the key holding hidden preset indexes for platform.
func HiddenKey(platform string) string {
	return platform + HiddenSuffix
}

// IsHiddenKey reports whether key is a "<platform>_hidden" entry.
func IsHiddenKey(key string) bool {
	return strings.HasSuffix(key, HiddenSuffix)
}

// Presets decodes the presets stored for platform.
func (c CustomShipping) Presets(platform string) ([]ShippingPreset, error) {
	raw, ok := c[platform]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var presets []ShippingPreset
	if err := json.Unmarshal(raw, &presets); err != nil {
		return nil, fmt.Errorf("decode shipping presets for %s: %w", platform, err)
	}
	return presets, nil
}

// SetPresets stores presets for platform.
func (c CustomShipping) SetPresets(platform string, presets []ShippingPreset) error {
	raw, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("encode shipping presets for %s: %w", platform, err)
	}
	c[platform] = raw
	return nil
}

// Hidden decodes the hidden preset indexes for platform.
func (c CustomShipping) Hidden(platform string) ([]int, error) {
	raw, ok := c[HiddenKey(platform)]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var idx []int
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode hidden presets for %s: %w", platform, err)
	}
	return idx, nil
}

// SetHidden stores the hidden preset indexes for platform.
func (c CustomShipping) SetHidden(platform string, idx []int) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode hidden presets for %s: %w", platform, err)
	}
	c[HiddenKey(platform)] = raw
	return nil
}
