package metar

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/skysim/noawx/internal/physics"
	"github.com/skysim/noawx/pkg/logger"
)

// Station is one report-issuing station with its location.
type Station struct {
	ICAO       string
	Lat        float64
	Lon        float64
	ElevationM float64
}

// StationIndex is the persistent station location cache. Every parsed report
// upserts its station, so the closest-station lookup works across restarts
// even before the first fetch of a session completes.
type StationIndex struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStationIndex opens (and if needed creates) the index database.
func NewStationIndex(dbPath string, log *logger.Logger) (*StationIndex, error) {
	idxLogger := log.Named("station-index")

	idxLogger.Info("Opening station index", logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open station index: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS stations (
			icao TEXT PRIMARY KEY,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			elevation_m REAL NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stations table: %w", err)
	}

	return &StationIndex{db: db, logger: idxLogger}, nil
}

// Close closes the database connection
func (i *StationIndex) Close() error {
	if i.db != nil {
		return i.db.Close()
	}
	return nil
}

// Upsert stores or refreshes a batch of stations in one transaction.
func (i *StationIndex) Upsert(stations []Station) error {
	if len(stations) == 0 {
		return nil
	}

	tx, err := i.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO stations (icao, lat, lon, elevation_m)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(icao) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			elevation_m = excluded.elevation_m
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range stations {
		if _, err := stmt.Exec(s.ICAO, s.Lat, s.Lon, s.ElevationM); err != nil {
			return fmt.Errorf("failed to upsert station %s: %w", s.ICAO, err)
		}
	}

	return tx.Commit()
}

// Closest returns the nearest station to a point and its distance in meters,
// skipping ignored stations. Returns sql.ErrNoRows when the index is empty.
func (i *StationIndex) Closest(lat, lon float64, ignore []string) (*Station, float64, error) {
	ignored := make(map[string]struct{}, len(ignore))
	for _, icao := range ignore {
		ignored[icao] = struct{}{}
	}

	rows, err := i.db.Query(`SELECT icao, lat, lon, elevation_m FROM stations`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var best *Station
	bestDist := 0.0

	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.ICAO, &s.Lat, &s.Lon, &s.ElevationM); err != nil {
			return nil, 0, fmt.Errorf("failed to scan station: %w", err)
		}
		if _, skip := ignored[s.ICAO]; skip {
			continue
		}

		d := physics.DistanceM(lat, lon, s.Lat, s.Lon)
		if best == nil || d < bestDist {
			station := s
			best = &station
			bestDist = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if best == nil {
		return nil, 0, sql.ErrNoRows
	}

	return best, bestDist, nil
}

// Get returns one station by ICAO code.
func (i *StationIndex) Get(icao string) (*Station, error) {
	var s Station
	err := i.db.QueryRow(
		`SELECT icao, lat, lon, elevation_m FROM stations WHERE icao = ?`, icao,
	).Scan(&s.ICAO, &s.Lat, &s.Lon, &s.ElevationM)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Count returns the number of indexed stations.
func (i *StationIndex) Count() (int, error) {
	var n int
	err := i.db.QueryRow(`SELECT COUNT(*) FROM stations`).Scan(&n)
	return n, err
}
