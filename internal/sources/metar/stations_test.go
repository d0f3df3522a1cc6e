package metar

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim/noawx/pkg/logger"
)

func newTestIndex(t *testing.T) *StationIndex {
	t.Helper()
	idx, err := NewStationIndex(filepath.Join(t.TempDir(), "stations.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func seedStations(t *testing.T, idx *StationIndex) {
	t.Helper()
	require.NoError(t, idx.Upsert([]Station{
		{ICAO: "CYYZ", Lat: 43.6772, Lon: -79.6306, ElevationM: 173},
		{ICAO: "CYTZ", Lat: 43.6275, Lon: -79.3962, ElevationM: 77},
		{ICAO: "KBUF", Lat: 42.9405, Lon: -78.7322, ElevationM: 218},
	}))
}

func TestClosestStation(t *testing.T) {
	idx := newTestIndex(t)
	seedStations(t, idx)

	// Downtown Toronto: the island airport wins.
	s, dist, err := idx.Closest(43.65, -79.38, nil)
	require.NoError(t, err)
	assert.Equal(t, "CYTZ", s.ICAO)
	assert.Less(t, dist, 5000.0)

	// Ignoring it falls through to the next closest.
	s, _, err = idx.Closest(43.65, -79.38, []string{"CYTZ"})
	require.NoError(t, err)
	assert.Equal(t, "CYYZ", s.ICAO)
}

func TestClosestEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)
	_, _, err := idx.Closest(0, 0, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpsertRefreshesExisting(t *testing.T) {
	idx := newTestIndex(t)
	seedStations(t, idx)

	require.NoError(t, idx.Upsert([]Station{
		{ICAO: "CYYZ", Lat: 43.6772, Lon: -79.6306, ElevationM: 180},
	}))

	s, err := idx.Get("CYYZ")
	require.NoError(t, err)
	assert.Equal(t, 180.0, s.ElevationM)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGetUnknownStation(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Get("ZZZZ")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
