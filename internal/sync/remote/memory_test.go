package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

func testDocument(userID string, version int64) *models.RemoteDocument {
	return &models.RemoteDocument{
		UserID:      userID,
		DeviceID:    "device-1",
		SyncVersion: version,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data: &models.Snapshot{
			Version: "1.0",
			Sales: []models.Sale{
				{ID: "s1", ProductName: "Tote bag", SellingPrice: decimal.NewFromInt(2500)},
			},
		},
	}
}

func TestMemoryStore_FetchMissing(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.Fetch(context.Background(), "ABC123")
	assert.ErrorIs(t, err, syncpkg.ErrRemoteNotFound)
}

func TestMemoryStore_UpsertFetch(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, testDocument("ABC123", 1)))
	require.NoError(t, m.Upsert(ctx, testDocument("ABC123", 2)))

	doc, err := m.Fetch(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.SyncVersion)
	require.NotNil(t, doc.Data)
	require.Len(t, doc.Data.Sales, 1)
	assert.Equal(t, "Tote bag", doc.Data.Sales[0].ProductName)

	upserts, fetches := m.Stats()
	assert.Equal(t, 2, upserts)
	assert.Equal(t, 1, fetches)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	doc := testDocument("ABC123", 1)
	require.NoError(t, m.Upsert(ctx, doc))
	doc.Data.Sales[0].ProductName = "changed"

	got, err := m.Fetch(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Tote bag", got.Data.Sales[0].ProductName)
}

func TestMemoryStore_FailNext(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailNext(2, boom)
	assert.ErrorIs(t, m.Upsert(ctx, testDocument("ABC123", 1)), boom)
	_, err := m.Fetch(ctx, "ABC123")
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, m.Upsert(ctx, testDocument("ABC123", 1)))
}

func TestMemoryStore_Offline(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.SetOffline(true)
	assert.Error(t, m.Ping(ctx))
	assert.Error(t, m.Upsert(ctx, testDocument("ABC123", 1)))

	m.SetOffline(false)
	assert.NoError(t, m.Ping(ctx))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	m := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Upsert(ctx, testDocument("ABC123", 1)), context.Canceled)
	upserts, _ := m.Stats()
	assert.Zero(t, upserts)
}

func TestMemoryStore_Beacon(t *testing.T) {
	m := NewMemoryStore()

	m.SendBeacon(testDocument("ABC123", 3))
	require.True(t, m.WaitBeacons(time.Second))

	doc, err := m.Fetch(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.SyncVersion)
}
