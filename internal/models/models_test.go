package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// =====================================================
// Sales
// =====================================================

// TestSortSales verifies newest-first order with id as the tie breaker.
func TestSortSales(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }
	sales := []Sale{
		{ID: "b", Date: day(1)},
		{ID: "c", Date: day(3)},
		{ID: "a", Date: day(1)},
		{ID: "d", Date: day(2)},
	}

	SortSales(sales)

	var got []string
	for _, s := range sales {
		got = append(got, s.ID)
	}
	if strings.Join(got, ",") != "c,d,a,b" {
		t.Errorf("Order = %v, want [c d a b]", got)
	}
}

// TestSale_JSONAmounts verifies amounts encode as bare numbers.
func TestSale_JSONAmounts(t *testing.T) {
	sale := Sale{ID: "s1", SellingPrice: decimal.RequireFromString("2500.5")}
	raw, err := json.Marshal(sale)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"sellingPrice":2500.5`) {
		t.Errorf("Expected unquoted amount in %s", raw)
	}

	var decoded Sale
	if err := json.Unmarshal([]byte(`{"id":"s1","sellingPrice":"1200"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal of quoted amount failed: %v", err)
	}
	if !decoded.SellingPrice.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("SellingPrice = %s, want 1200", decoded.SellingPrice)
	}
}

func TestSale_Timestamp(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sale := Sale{Date: at}
	if sale.Timestamp() != at.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", sale.Timestamp(), at.UnixMilli())
	}
}

// =====================================================
// Snapshot
// =====================================================

// TestNewSnapshot verifies every collection is present and empty.
func TestNewSnapshot(t *testing.T) {
	s := NewSnapshot()
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, c := range Collections {
		v, ok := fields[string(c)]
		if !ok {
			t.Errorf("Collection %s missing", c)
			continue
		}
		if string(v) == "null" {
			t.Errorf("Collection %s should be present, got null", c)
		}
	}
	if s.Version != SnapshotVersion {
		t.Errorf("Version = %q, want %q", s.Version, SnapshotVersion)
	}
}

func TestSnapshot_Stamp(t *testing.T) {
	s := &Snapshot{}
	s.Stamp(time.Date(2026, 10, 19, 9, 0, 0, 0, time.FixedZone("JST", 9*3600)))
	if s.ExportDate != "2026-10-19T00:00:00Z" {
		t.Errorf("ExportDate = %q, want UTC RFC3339", s.ExportDate)
	}
	if s.Version != SnapshotVersion {
		t.Errorf("Version = %q", s.Version)
	}
}

func TestSnapshot_Find(t *testing.T) {
	s := &Snapshot{
		Sales:     []Sale{{ID: "s1", ProductName: "Tote"}, {ID: "s2"}},
		Materials: []Material{{ID: "m1", Name: "Canvas"}},
	}

	if ids := s.SaleIDs(); len(ids) != 2 || ids[0] != "s1" {
		t.Errorf("SaleIDs = %v", ids)
	}
	if sale, ok := s.FindSale("s1"); !ok || sale.ProductName != "Tote" {
		t.Errorf("FindSale(s1) = %+v, %v", sale, ok)
	}
	if _, ok := s.FindSale("missing"); ok {
		t.Error("FindSale(missing) should report false")
	}
	if m, ok := s.FindMaterial("m1"); !ok || m.Name != "Canvas" {
		t.Errorf("FindMaterial(m1) = %+v, %v", m, ok)
	}
	if _, ok := s.FindMaterial("m2"); ok {
		t.Error("FindMaterial(m2) should report false")
	}
}

// =====================================================
// Shipping Presets
// =====================================================

func TestCustomShipping_PresetsAndHidden(t *testing.T) {
	c := CustomShipping{}

	presets, err := c.Presets("mercari")
	if err != nil || presets != nil {
		t.Errorf("Empty presets = %v, %v", presets, err)
	}

	if err := c.SetPresets("mercari", []ShippingPreset{{Name: "Nekopos", Fee: decimal.NewFromInt(210)}}); err != nil {
		t.Fatalf("SetPresets failed: %v", err)
	}
	if err := c.SetHidden("mercari", []int{0, 3}); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}

	presets, err = c.Presets("mercari")
	if err != nil || len(presets) != 1 || !presets[0].Fee.Equal(decimal.NewFromInt(210)) {
		t.Errorf("Presets = %+v, %v", presets, err)
	}
	hidden, err := c.Hidden("mercari")
	if err != nil || len(hidden) != 2 || hidden[1] != 3 {
		t.Errorf("Hidden = %v, %v", hidden, err)
	}
	if _, ok := c["mercari_hidden"]; !ok {
		t.Error("Expected the _hidden key")
	}
}

func TestCustomShipping_DecodeErrors(t *testing.T) {
	c := CustomShipping{
		"yahoo":        json.RawMessage(`{"not":"a list"}`),
		"yahoo_hidden": json.RawMessage(`"x"`),
	}
	if _, err := c.Presets("yahoo"); err == nil {
		t.Error("Expected a decode error for presets")
	}
	if _, err := c.Hidden("yahoo"); err == nil {
		t.Error("Expected a decode error for hidden indexes")
	}
}

func TestIsHiddenKey(t *testing.T) {
	tests := map[string]bool{
		"mercari_hidden": true,
		HiddenKey("x"):   true,
		"mercari":        false,
		"hidden_mercari": false,
	}
	for key, want := range tests {
		if got := IsHiddenKey(key); got != want {
			t.Errorf("IsHiddenKey(%q) = %v, want %v", key, got, want)
		}
	}
}

// =====================================================
// Settings
// =====================================================

// TestSettings_DefinedKeys verifies only defined keys are written and
// unknown keys survive a round trip.
func TestSettings_DefinedKeys(t *testing.T) {
	var s Settings
	if err := json.Unmarshal([]byte(`{"defaultPlatform":"yahoo","defaultIndirectCosts":0,"theme":"dark"}`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !s.Has(SettingDefaultIndirectCosts) {
		t.Error("A key read as zero should still count as defined")
	}
	if s.Has(SettingCurrency) {
		t.Error("currency was never defined")
	}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(raw)
	for _, want := range []string{`"defaultPlatform":"yahoo"`, `"defaultIndirectCosts":0`, `"theme":"dark"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Marshal() = %s, missing %s", out, want)
		}
	}
	if strings.Contains(out, "currency") {
		t.Errorf("Marshal() = %s, should not define currency", out)
	}
}

// TestOverlaySettings verifies remote-as-base with local keys on top.
func TestOverlaySettings(t *testing.T) {
	base := DefaultSettings()
	base.DefaultIndirectCosts = decimal.NewFromInt(150)
	top := Settings{DefaultPlatform: "rakuma"}

	merged, differs, err := OverlaySettings(base, top)
	if err != nil {
		t.Fatalf("OverlaySettings() error = %v", err)
	}
	if !differs {
		t.Error("defaultPlatform differs on both sides")
	}
	if merged.DefaultPlatform != "rakuma" || merged.Currency != "JPY" {
		t.Errorf("merged = %+v, want local platform over remote currency", merged)
	}
	if !merged.DefaultIndirectCosts.Equal(decimal.NewFromInt(150)) {
		t.Errorf("DefaultIndirectCosts = %s, want 150", merged.DefaultIndirectCosts)
	}

	_, differs, err = OverlaySettings(base, base)
	if err != nil || differs {
		t.Errorf("OverlaySettings(same) = differs %v, err %v", differs, err)
	}
}

// =====================================================
// Goals and Logs
// =====================================================

func TestGoal_AchievementRate(t *testing.T) {
	tests := []struct {
		name    string
		target  int64
		current int64
		want    string
	}{
		{"half", 10000, 5000, "50"},
		{"over", 10000, 12500, "125"},
		{"no target", 0, 5000, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Goal{TargetAmount: decimal.NewFromInt(tt.target), CurrentAmount: decimal.NewFromInt(tt.current)}
			if got := g.AchievementRate(); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("AchievementRate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTimeHelpers(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	c := ConflictLog{DetectedAt: at.Unix()}
	if !c.DetectedAtTime().Equal(at) {
		t.Errorf("DetectedAtTime = %v", c.DetectedAtTime())
	}
	e := ChangeEvent{Timestamp: at.UnixMilli()}
	if !e.Time().Equal(at) {
		t.Errorf("ChangeEvent.Time = %v", e.Time())
	}
	q := SyncQueue{CreatedAt: at.UnixMilli()}
	if !q.CreatedAtTime().Equal(at) {
		t.Errorf("CreatedAtTime = %v", q.CreatedAtTime())
	}
}

func TestTableNames(t *testing.T) {
	if (RemoteDocument{}).TableName() != "user_data" {
		t.Error("RemoteDocument table should be user_data")
	}
	if (ConflictLog{}).TableName() != "conflict_log" {
		t.Error("ConflictLog table should be conflict_log")
	}
	if (SyncQueue{}).TableName() != "sync_queue" {
		t.Error("SyncQueue table should be sync_queue")
	}
}
