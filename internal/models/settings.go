package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Settings is the flat user configuration.
//
// A Settings value remembers which top-level keys it defines: keys read from
// JSON, plus any typed field holding a non-zero value. Only defined keys are
// written back, and unknown keys survive a round trip, so two settings
// documents can be overlaid key by key.
type Settings struct {
	DefaultCommissionRate decimal.Decimal `json:"defaultCommissionRate"`
	DefaultPlatform       string          `json:"defaultPlatform"`
	DefaultShippingFee    decimal.Decimal `json:"defaultShippingFee"`
	DefaultIndirectCosts  decimal.Decimal `json:"defaultIndirectCosts"`
	Currency              string          `json:"currency"`

	keys  map[string]struct{}
	extra map[string]json.RawMessage
}

// Settings keys.
const (
	SettingDefaultCommissionRate = "defaultCommissionRate"
	SettingDefaultPlatform       = "defaultPlatform"
	SettingDefaultShippingFee    = "defaultShippingFee"
	SettingDefaultIndirectCosts  = "defaultIndirectCosts"
	SettingCurrency              = "currency"
)

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() Settings {
	return Settings{
		DefaultCommissionRate: decimal.NewFromInt(10),
		DefaultPlatform:       "mercari",
		Currency:              "JPY",
	}
}

// settingsFields mirrors the typed fields for decoding.
type settingsFields struct {
	DefaultCommissionRate *decimal.Decimal `json:"defaultCommissionRate"`
	DefaultPlatform       *string          `json:"defaultPlatform"`
	DefaultShippingFee    *decimal.Decimal `json:"defaultShippingFee"`
	DefaultIndirectCosts  *decimal.Decimal `json:"defaultIndirectCosts"`
	Currency              *string          `json:"currency"`
}

// Has reports whether the settings define key.
func (s Settings) Has(key string) bool {
	if _, ok := s.keys[key]; ok {
		return true
	}
	if _, ok := s.extra[key]; ok {
		return true
	}
	switch key {
	case SettingDefaultCommissionRate:
		return !s.DefaultCommissionRate.IsZero()
	case SettingDefaultPlatform:
		return s.DefaultPlatform != ""
	case SettingDefaultShippingFee:
		return !s.DefaultShippingFee.IsZero()
	case SettingDefaultIndirectCosts:
		return !s.DefaultIndirectCosts.IsZero()
	case SettingCurrency:
		return s.Currency != ""
	}
	return false
}

// Fields returns every defined key with its encoded value.
func (s Settings) Fields() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(s.extra)+5)
	for k, v := range s.extra {
		out[k] = append(json.RawMessage(nil), v...)
	}

	typed := []struct {
		key   string
		value interface{}
	}{
		{SettingDefaultCommissionRate, s.DefaultCommissionRate},
		{SettingDefaultPlatform, s.DefaultPlatform},
		{SettingDefaultShippingFee, s.DefaultShippingFee},
		{SettingDefaultIndirectCosts, s.DefaultIndirectCosts},
		{SettingCurrency, s.Currency},
	}
	for _, f := range typed {
		if !s.Has(f.key) {
			continue
		}
		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		out[f.key] = raw
	}
	return out, nil
}

// MarshalJSON writes the defined keys only.
func (s Settings) MarshalJSON() ([]byte, error) {
	fields, err := s.Fields()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes onto the current value and records the keys seen.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var typed settingsFields
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}

	keys := make(map[string]struct{}, len(s.keys)+len(raw))
	for k := range s.keys {
		keys[k] = struct{}{}
	}
	extra := make(map[string]json.RawMessage, len(s.extra))
	for k, v := range s.extra {
		extra[k] = v
	}

	for k, v := range raw {
		switch k {
		case SettingDefaultCommissionRate, SettingDefaultPlatform, SettingDefaultShippingFee,
			SettingDefaultIndirectCosts, SettingCurrency:
			keys[k] = struct{}{}
		default:
			extra[k] = append(json.RawMessage(nil), v...)
		}
	}

	if typed.DefaultCommissionRate != nil {
		s.DefaultCommissionRate = *typed.DefaultCommissionRate
	}
	if typed.DefaultPlatform != nil {
		s.DefaultPlatform = *typed.DefaultPlatform
	}
	if typed.DefaultShippingFee != nil {
		s.DefaultShippingFee = *typed.DefaultShippingFee
	}
	if typed.DefaultIndirectCosts != nil {
		s.DefaultIndirectCosts = *typed.DefaultIndirectCosts
	}
	if typed.Currency != nil {
		s.Currency = *typed.Currency
	}
	s.keys = keys
	s.extra = extra
	return nil
}

// OverlaySettings returns base with every key defined by top written over it.
// The second result reports whether a key defined on both sides differed.
func OverlaySettings(base, top Settings) (Settings, bool, error) {
	fields, err := base.Fields()
	if err != nil {
		return Settings{}, false, err
	}
	over, err := top.Fields()
	if err != nil {
		return Settings{}, false, err
	}

	differs := false
	for k, v := range over {
		if prev, ok := fields[k]; ok && !jsonEqual(prev, v) {
			differs = true
		}
		fields[k] = v
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return Settings{}, false, err
	}
	var out Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return Settings{}, false, err
	}
	return out, differs, nil
}

// jsonEqual compares two encoded values after normalizing them.
func jsonEqual(a, b json.RawMessage) bool {
	var x, y interface{}
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return string(a) == string(b)
	}
	xb, _ := json.Marshal(x)
	yb, _ := json.Marshal(y)
	return string(xb) == string(yb)
}
