// Package uuid provides unit tests for id generation.
package uuid

import (
	"strings"
	"testing"
)

// TestNew tests that New() generates valid UUID v4 strings.
func TestNew(t *testing.T) {
	id := New()
	if !IsValid(id) {
		t.Errorf("Generated UUID does not match v4 format: %s", id)
	}
}

// TestNewUniqueness tests that New() generates unique IDs.
func TestNewUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if ids[id] {
			t.Errorf("Duplicate UUID generated: %s", id)
		}
		ids[id] = true
	}
}

// TestNewDeviceID tests the device id prefix and uniqueness.
func TestNewDeviceID(t *testing.T) {
	a, b := NewDeviceID(), NewDeviceID()
	if !strings.HasPrefix(a, "dev-") {
		t.Errorf("device id %q missing prefix", a)
	}
	if a == b {
		t.Error("device ids should differ")
	}
}

// TestNewUserCode tests generated codes always parse.
func TestNewUserCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewUserCode()
		if err != nil {
			t.Fatalf("NewUserCode() error = %v", err)
		}
		if _, err := ParseUserCode(code); err != nil {
			t.Errorf("generated code %q does not parse: %v", code, err)
		}
	}
}

// TestParseUserCode tests normalization and rejection.
func TestParseUserCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ABC123", "ABC123", false},
		{" abc123 ", "ABC123", false},
		{"ABC12", "", true},
		{"ABC1234", "", true},
		{"ABC-12", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUserCode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseUserCode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseUserCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestIsValid tests UUID validation.
func TestIsValid(t *testing.T) {
	if !IsValid("123e4567-e89b-42d3-a456-426614174000") {
		t.Error("valid v4 rejected")
	}
	if IsValid("123e4567-e89b-12d3-a456-426614174000") {
		t.Error("v1 accepted")
	}
	if IsValid("not-a-uuid") {
		t.Error("garbage accepted")
	}
}
