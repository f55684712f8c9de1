// Package db tests for the entity store.
package db

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
)

func testSale(id string, date time.Time, price int64) *models.Sale {
	return &models.Sale{
		ID:           id,
		Date:         date,
		ProductName:  "Vintage camera " + id,
		Platform:     "mercari",
		SellingPrice: decimal.NewFromInt(price),
		NetIncome:    decimal.NewFromInt(price - 100),
	}
}

func collectEvents(repo *Repository) *[]models.ChangeEvent {
	var events []models.ChangeEvent
	repo.Subscribe(func(e models.ChangeEvent) { events = append(events, e) })
	return &events
}

func snapshotJSON(t *testing.T, s *models.Snapshot) string {
	t.Helper()
	clone := *s
	clone.ExportDate = ""
	data, err := json.Marshal(&clone)
	require.NoError(t, err)
	return string(data)
}

// =====================================================
// Sale Operations
// =====================================================

// TestSales_CRUD verifies save, get, update and delete of sales.
func TestSales_CRUD(t *testing.T) {
	repo, _ := openTestRepository(t)
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	older := testSale("s1", base, 1000)
	newer := testSale("s2", base.Add(48*time.Hour), 2000)
	require.NoError(t, repo.SaveSale(older))
	require.NoError(t, repo.SaveSale(newer))

	sales, err := repo.GetSales()
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "s2", sales[0].ID, "sales should be newest first")
	assert.Equal(t, "s1", sales[1].ID)

	updated, err := repo.UpdateSale("s1", func(s *models.Sale) error {
		s.ID = "hijack"
		s.SellingPrice = decimal.NewFromInt(1500)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", updated.ID, "ids are immutable")

	got, err := repo.GetSale("s1")
	require.NoError(t, err)
	assert.True(t, got.SellingPrice.Equal(decimal.NewFromInt(1500)))

	require.NoError(t, repo.DeleteSale("s1"))
	_, err = repo.GetSale("s1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, repo.DeleteSale("missing"), "deleting a missing id is not an error")
}

// TestSaveSale_assignsDefaults verifies id and date are filled in.
func TestSaveSale_assignsDefaults(t *testing.T) {
	repo, _ := openTestRepository(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	sale := &models.Sale{ProductName: "Tote bag", SellingPrice: decimal.NewFromInt(800)}
	require.NoError(t, repo.SaveSale(sale))

	assert.NotEmpty(t, sale.ID)
	assert.True(t, sale.Date.Equal(fixed))
}

// TestUpdateSale_errors verifies not-found and patch failures.
func TestUpdateSale_errors(t *testing.T) {
	repo, _ := openTestRepository(t)

	_, err := repo.UpdateSale("nope", func(*models.Sale) error { return nil })
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, repo.SaveSale(testSale("s1", time.Now(), 100)))
	_, err = repo.UpdateSale("s1", func(*models.Sale) error { return errors.New("bad patch") })
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

// TestListSales verifies period, platform and text filters.
func TestListSales(t *testing.T) {
	repo, _ := openTestRepository(t)
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	recent := testSale("recent", now.Add(-2*24*time.Hour), 1000)
	recent.Materials = []models.SaleMaterial{{ID: "m1", Name: "Bubble Wrap"}}
	lastMonth := testSale("last-month", now.Add(-20*24*time.Hour), 1000)
	lastMonth.Platform = "rakuma"
	old := testSale("old", now.AddDate(-2, 0, 0), 1000)
	for _, s := range []*models.Sale{recent, lastMonth, old} {
		require.NoError(t, repo.SaveSale(s))
	}

	ids := func(filter SalesFilter) []string {
		sales, err := repo.ListSales(filter)
		require.NoError(t, err)
		var out []string
		for _, s := range sales {
			out = append(out, s.ID)
		}
		return out
	}

	assert.Equal(t, []string{"recent", "last-month", "old"}, ids(SalesFilter{Now: now}))
	assert.Equal(t, []string{"recent"}, ids(SalesFilter{Period: PeriodWeek, Now: now}))
	assert.Equal(t, []string{"recent", "last-month"}, ids(SalesFilter{Period: PeriodMonth, Now: now}))
	assert.Equal(t, []string{"last-month"}, ids(SalesFilter{Platform: "rakuma", Now: now}))
	assert.Equal(t, []string{"recent"}, ids(SalesFilter{Query: "bubble", Now: now}))
	assert.Equal(t, []string{"old"}, ids(SalesFilter{Query: "camera old", Now: now}))
}

// =====================================================
// Document Collections
// =====================================================

// TestMaterials_CRUD verifies material save, replace, update and delete.
func TestMaterials_CRUD(t *testing.T) {
	repo, _ := openTestRepository(t)
	stock := 5

	m := &models.Material{Name: "Box S", UnitPrice: decimal.NewFromInt(50), Stock: &stock}
	require.NoError(t, repo.SaveMaterial(m))
	require.NotEmpty(t, m.ID)
	require.NoError(t, repo.SaveMaterial(&models.Material{ID: "tape", Name: "Tape"}))

	m.Name = "Box Small"
	require.NoError(t, repo.SaveMaterial(m))

	materials, err := repo.GetMaterials()
	require.NoError(t, err)
	require.Len(t, materials, 2)
	assert.Equal(t, "Box Small", materials[0].Name, "saving an existing id replaces in place")

	updated, err := repo.UpdateMaterial(m.ID, func(mat *models.Material) error {
		n := 3
		mat.Stock = &n
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, *updated.Stock)

	require.NoError(t, repo.DeleteMaterial(m.ID))
	_, err = repo.GetMaterial(m.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = repo.UpdateMaterial("missing", func(*models.Material) error { return nil })
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

// TestSettings_defaults verifies defaults before the first save.
func TestSettings_defaults(t *testing.T) {
	repo, _ := openTestRepository(t)

	settings, err := repo.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, "mercari", settings.DefaultPlatform)
	assert.Equal(t, "JPY", settings.Currency)

	settings.DefaultPlatform = "yahoo"
	require.NoError(t, repo.SaveSettings(settings))

	settings, err = repo.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, "yahoo", settings.DefaultPlatform)
}

// TestGoals verifies keyed goal storage.
func TestGoals(t *testing.T) {
	repo, _ := openTestRepository(t)

	assert.True(t, apperrors.Is(repo.SaveGoal(models.Goal{}), apperrors.ErrValidation))

	require.NoError(t, repo.SaveGoal(models.Goal{YearMonth: "2024-01", TargetAmount: decimal.NewFromInt(50000)}))
	require.NoError(t, repo.SaveGoal(models.Goal{YearMonth: "2024-02", TargetAmount: decimal.NewFromInt(60000)}))

	goal, err := repo.GetGoal("2024-01")
	require.NoError(t, err)
	assert.True(t, goal.TargetAmount.Equal(decimal.NewFromInt(50000)))

	require.NoError(t, repo.DeleteGoal("2024-01"))
	goals, err := repo.GetGoals()
	require.NoError(t, err)
	assert.Len(t, goals, 1)
	_, err = repo.GetGoal("2024-01")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

// TestFavoriteMaterials_toggle verifies toggling adds then removes.
func TestFavoriteMaterials_toggle(t *testing.T) {
	repo, _ := openTestRepository(t)

	fav, err := repo.ToggleFavoriteMaterial("m1")
	require.NoError(t, err)
	assert.True(t, fav)
	_, err = repo.ToggleFavoriteMaterial("m2")
	require.NoError(t, err)

	fav, err = repo.ToggleFavoriteMaterial("m1")
	require.NoError(t, err)
	assert.False(t, fav)

	ids, err := repo.GetFavoriteMaterials()
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids)
}

// TestCustomShippingAndPlatforms verifies the remaining document collections.
func TestCustomShippingAndPlatforms(t *testing.T) {
	repo, _ := openTestRepository(t)

	shipping := models.CustomShipping{}
	require.NoError(t, shipping.SetPresets("mercari", []models.ShippingPreset{{Name: "Nekopos", Fee: decimal.NewFromInt(210)}}))
	require.NoError(t, shipping.SetHidden("mercari", []int{0, 2}))
	require.NoError(t, repo.SaveCustomShipping(shipping))

	got, err := repo.GetCustomShipping()
	require.NoError(t, err)
	hidden, err := got.Hidden("mercari")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, hidden)

	p := &models.CustomPlatform{Name: "Minne", CommissionRate: decimal.NewFromInt(10)}
	require.NoError(t, repo.SaveCustomPlatform(p))
	assert.Contains(t, p.ID, "custom_")

	platforms, err := repo.GetCustomPlatforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)

	require.NoError(t, repo.DeleteCustomPlatform(p.ID))
	platforms, err = repo.GetCustomPlatforms()
	require.NoError(t, err)
	assert.Empty(t, platforms)
}

// =====================================================
// Change Events
// =====================================================

// TestSubscribe verifies every mutation emits exactly one event and
// unsubscribing stops delivery.
func TestSubscribe(t *testing.T) {
	repo, _ := openTestRepository(t)

	var events []models.ChangeEvent
	unsubscribe := repo.Subscribe(func(e models.ChangeEvent) { events = append(events, e) })

	require.NoError(t, repo.SaveSale(testSale("s1", time.Now(), 100)))
	_, err := repo.UpdateSale("s1", func(*models.Sale) error { return nil })
	require.NoError(t, err)
	require.NoError(t, repo.DeleteSale("s1"))
	require.NoError(t, repo.SaveMaterial(&models.Material{ID: "m1"}))
	require.NoError(t, repo.SaveSettings(models.DefaultSettings()))
	require.NoError(t, repo.SaveGoal(models.Goal{YearMonth: "2024-01"}))
	require.NoError(t, repo.SaveFavoriteMaterials([]string{"m1"}))
	require.NoError(t, repo.SaveCustomShipping(models.CustomShipping{}))
	require.NoError(t, repo.SaveCustomPlatform(&models.CustomPlatform{Name: "x"}))

	require.Len(t, events, 9)
	assert.Equal(t, models.CollectionSales, events[0].Collection)
	assert.Equal(t, models.OperationCreate, events[0].Operation)
	assert.Equal(t, "s1", events[0].ItemID)
	assert.Equal(t, models.OperationUpdate, events[1].Operation)
	assert.Equal(t, models.OperationDelete, events[2].Operation)
	assert.Equal(t, models.CollectionCustomPlatforms, events[8].Collection)

	unsubscribe()
	unsubscribe()
	require.NoError(t, repo.SaveSale(testSale("s2", time.Now(), 100)))
	assert.Len(t, events, 9)
}

// TestImportSnapshot_noEvents verifies imports are silent.
func TestImportSnapshot_noEvents(t *testing.T) {
	repo, _ := openTestRepository(t)
	events := collectEvents(repo)

	snapshot := models.NewSnapshot()
	snapshot.Sales = []models.Sale{*testSale("s1", time.Now(), 100)}
	require.NoError(t, repo.ImportSnapshot(snapshot))

	assert.Empty(t, *events)
}

// TestClearAllData verifies every collection is emptied and announced.
func TestClearAllData(t *testing.T) {
	repo, _ := openTestRepository(t)
	require.NoError(t, repo.SaveSale(testSale("s1", time.Now(), 100)))
	require.NoError(t, repo.SaveMaterial(&models.Material{ID: "m1"}))
	events := collectEvents(repo)

	require.NoError(t, repo.ClearAllData())

	sales, err := repo.GetSales()
	require.NoError(t, err)
	assert.Empty(t, sales)
	materials, err := repo.GetMaterials()
	require.NoError(t, err)
	assert.Empty(t, materials)
	assert.Len(t, *events, len(models.Collections))
}

// =====================================================
// Snapshot Export / Import
// =====================================================

// TestSnapshot_roundTrip verifies importing an export changes nothing.
func TestSnapshot_roundTrip(t *testing.T) {
	repo, _ := openTestRepository(t)
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveSale(testSale("s1", base, 1000)))
	require.NoError(t, repo.SaveSale(testSale("s2", base.Add(time.Hour), 2500)))
	require.NoError(t, repo.SaveMaterial(&models.Material{ID: "m1", Name: "Box", UnitPrice: decimal.RequireFromString("12.5")}))
	require.NoError(t, repo.SaveGoal(models.Goal{YearMonth: "2024-01", TargetAmount: decimal.NewFromInt(30000)}))
	require.NoError(t, repo.SaveRecords(models.Records{MaxMonthlySales: models.AmountRecord{Amount: decimal.NewFromInt(3500), YearMonth: "2024-01"}}))
	require.NoError(t, repo.SaveFavoriteMaterials([]string{"m1"}))
	require.NoError(t, repo.SaveCustomPlatform(&models.CustomPlatform{ID: "custom_1", Name: "Minne"}))

	before, err := repo.ExportSnapshot()
	require.NoError(t, err)
	assert.NotEmpty(t, before.ExportDate)
	assert.Equal(t, models.SnapshotVersion, before.Version)

	require.NoError(t, repo.ImportSnapshot(before))

	after, err := repo.ExportSnapshot()
	require.NoError(t, err)
	assert.JSONEq(t, snapshotJSON(t, before), snapshotJSON(t, after))
}

// TestImportSnapshot_absentKeysUntouched verifies nil collections are skipped
// and empty ones clear.
func TestImportSnapshot_absentKeysUntouched(t *testing.T) {
	repo, _ := openTestRepository(t)
	require.NoError(t, repo.SaveSale(testSale("s1", time.Now(), 100)))
	require.NoError(t, repo.SaveMaterial(&models.Material{ID: "m1"}))

	require.NoError(t, repo.ImportSnapshot(&models.Snapshot{Materials: []models.Material{}}))

	sales, err := repo.GetSales()
	require.NoError(t, err)
	assert.Len(t, sales, 1, "absent sales must be left alone")

	materials, err := repo.GetMaterials()
	require.NoError(t, err)
	assert.Empty(t, materials, "present empty materials must clear")
}

// TestImportSnapshot_sortsSales verifies imported sales come back newest first.
func TestImportSnapshot_sortsSales(t *testing.T) {
	repo, _ := openTestRepository(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.ImportSnapshot(&models.Snapshot{Sales: []models.Sale{
		*testSale("a", base, 1),
		*testSale("c", base.Add(2*time.Hour), 1),
		*testSale("b", base.Add(time.Hour), 1),
	}}))

	snapshot, err := repo.ExportSnapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, snapshot.SaleIDs())
}

// TestImportSnapshot_nil verifies a nil snapshot is rejected.
func TestImportSnapshot_nil(t *testing.T) {
	repo, _ := openTestRepository(t)
	assert.True(t, apperrors.Is(repo.ImportSnapshot(nil), apperrors.ErrImportFailed))
}

// =====================================================
// Sync Metadata
// =====================================================

// TestMeta verifies key/value persistence.
func TestMeta(t *testing.T) {
	repo, _ := openTestRepository(t)

	_, ok, err := repo.GetMeta("last_data_hash")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetMeta("last_data_hash", "abc"))
	require.NoError(t, repo.SetMeta("last_data_hash", "def"))
	value, ok, err := repo.GetMeta("last_data_hash")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", value)

	require.NoError(t, repo.DeleteMeta("last_data_hash"))
	_, ok, err = repo.GetMeta("last_data_hash")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSetMetas verifies several keys are written together.
func TestSetMetas(t *testing.T) {
	repo, _ := openTestRepository(t)
	require.NoError(t, repo.SetMeta("user_id", "OLD111"))

	require.NoError(t, repo.SetMetas(map[string]string{
		"user_id":        "NEW222",
		"last_data_hash": "",
		"sync_version":   "0",
	}))

	for key, want := range map[string]string{"user_id": "NEW222", "last_data_hash": "", "sync_version": "0"} {
		value, ok, err := repo.GetMeta(key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, want, value, key)
	}
}

// TestSyncQueue_persistence verifies queue order survives a save/load cycle.
func TestSyncQueue_persistence(t *testing.T) {
	repo, _ := openTestRepository(t)

	items := []*models.SyncQueue{
		{ID: "q2", Action: "sync", Payload: json.RawMessage(`{"sales":[]}`), CreatedAt: 2},
		{ID: "q1", Action: "sync", Payload: json.RawMessage(`{}`), CreatedAt: 1},
	}
	require.NoError(t, repo.SaveSyncQueue(items))

	loaded, err := repo.LoadSyncQueue()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "q2", loaded[0].ID, "order is positional, not by time")
	assert.JSONEq(t, `{"sales":[]}`, string(loaded[0].Payload))

	require.NoError(t, repo.SaveSyncQueue(nil))
	loaded, err = repo.LoadSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// TestConflictLog verifies conflict entries are stored newest first.
func TestConflictLog(t *testing.T) {
	repo, _ := openTestRepository(t)

	require.NoError(t, repo.CreateConflictLog(&models.ConflictLog{
		Collection: models.CollectionSales, ItemID: "s1", Resolution: "kept_remote", Policy: "newer_timestamp", DetectedAt: 100,
	}))
	require.NoError(t, repo.CreateConflictLog(&models.ConflictLog{
		Collection: models.CollectionMaterials, ItemID: "m1", Resolution: "kept_local", Policy: "local_wins", DetectedAt: 200,
	}))

	logs, err := repo.ListConflictLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "m1", logs[0].ItemID)
	assert.Equal(t, models.CollectionMaterials, logs[0].Collection)
	assert.NotEmpty(t, logs[1].ID)
}
