package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/resaletally/internal/models"
)

func TestHashSnapshot_ignoresExportDate(t *testing.T) {
	a := models.NewSnapshot()
	a.Stamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := models.NewSnapshot()
	b.Stamp(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	ha, err := HashSnapshot(a)
	require.NoError(t, err)
	hb, err := HashSnapshot(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.NotEmpty(t, a.ExportDate, "input is not modified")
}

func TestHashSnapshot_detectsChanges(t *testing.T) {
	a := models.NewSnapshot()
	b := models.NewSnapshot()
	b.FavoriteMaterials = []string{"m1"}

	ha, err := HashSnapshot(a)
	require.NoError(t, err)
	hb, err := HashSnapshot(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestHashSnapshot_mapOrderIndependent(t *testing.T) {
	a := models.NewSnapshot()
	b := models.NewSnapshot()
	for _, ym := range []string{"2024-01", "2024-02", "2024-03"} {
		a.Goals[ym] = models.Goal{YearMonth: ym}
	}
	for _, ym := range []string{"2024-03", "2024-01", "2024-02"} {
		b.Goals[ym] = models.Goal{YearMonth: ym}
	}

	ha, _ := HashSnapshot(a)
	hb, _ := HashSnapshot(b)
	assert.Equal(t, ha, hb)
}

func TestHashSnapshot_nil(t *testing.T) {
	_, err := HashSnapshot(nil)
	assert.Error(t, err)
}
