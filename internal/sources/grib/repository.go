package grib

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

// Repository tracks the newest available cycle per forecast kind and serves
// point-localized data from it. Cycle files are named <kind>_<cycle>.msgpack.zst
// so lexicographic order is cycle order.
type Repository struct {
	cfg    config.GribConfig
	logger *logger.Logger

	mu     sync.RWMutex
	cycles map[Kind]*CycleGrid
}

func NewRepository(cfg config.GribConfig, log *logger.Logger) *Repository {
	return &Repository{
		cfg:    cfg,
		logger: log.Named("grib"),
		cycles: make(map[Kind]*CycleGrid),
	}
}

const cycleFileSuffix = ".msgpack.zst"

// Rescan walks the cache directory and loads the newest cycle file per kind,
// replacing any previously loaded cycle. Files that fail to decode are
// skipped with a warning so one corrupt download cannot stall updates.
func (r *Repository) Rescan() error {
	entries, err := os.ReadDir(r.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scanning cycle cache: %w", err)
	}

	newest := make(map[Kind]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), cycleFileSuffix) {
			continue
		}
		kind, ok := kindFromFilename(e.Name())
		if !ok {
			continue
		}
		if e.Name() > newest[kind] {
			newest[kind] = e.Name()
		}
	}

	for kind, name := range newest {
		r.mu.RLock()
		current := r.cycles[kind]
		r.mu.RUnlock()
		if current != nil && cycleFilename(kind, current.Cycle) == name {
			continue
		}

		grid, err := ReadCycleFile(filepath.Join(r.cfg.CacheDir, name))
		if err != nil {
			r.logger.Warn("Skipping unreadable cycle file",
				logger.String("file", name), logger.Error(err))
			continue
		}
		if grid.Kind != kind {
			r.logger.Warn("Cycle file kind mismatch",
				logger.String("file", name), logger.String("kind", string(grid.Kind)))
			continue
		}

		r.mu.Lock()
		r.cycles[kind] = grid
		r.mu.Unlock()
		r.logger.Info("Loaded forecast cycle",
			logger.String("kind", string(kind)),
			logger.String("cycle", grid.Cycle),
			logger.Int("points", len(grid.Points)))
	}

	return nil
}

// Cycle returns the identifier of the loaded cycle for a kind, or "" when
// none has been loaded yet.
func (r *Repository) Cycle(kind Kind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g := r.cycles[kind]; g != nil {
		return g.Cycle
	}
	return ""
}

// ParseGribData localizes the loaded GFS cycle to a position. Returns nil
// when no cycle is loaded or the position falls outside the grid.
func (r *Repository) ParseGribData(lat, lon float64) *wxdata.GridData {
	r.mu.RLock()
	grid := r.cycles[KindGFS]
	r.mu.RUnlock()
	if grid == nil {
		return nil
	}
	col, ok := grid.Column(lat, lon)
	if !ok {
		return nil
	}
	return col.GridData()
}

// ParseTurbulence localizes the loaded WAFS cycle to a position.
func (r *Repository) ParseTurbulence(lat, lon float64) []wxdata.TurbulenceBand {
	r.mu.RLock()
	grid := r.cycles[KindWAFS]
	r.mu.RUnlock()
	if grid == nil {
		return nil
	}
	col, ok := grid.Column(lat, lon)
	if !ok {
		return nil
	}
	return col.TurbulenceBands()
}

// Store writes a cycle grid into the cache directory and loads it if it is
// newer than the current cycle for its kind.
func (r *Repository) Store(grid *CycleGrid) error {
	if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(r.cfg.CacheDir, cycleFilename(grid.Kind, grid.Cycle))
	if err := WriteCycleFile(path, grid); err != nil {
		return err
	}

	r.mu.Lock()
	current := r.cycles[grid.Kind]
	if current == nil || grid.Cycle > current.Cycle {
		r.cycles[grid.Kind] = grid
	}
	r.mu.Unlock()
	return nil
}

// CachedCycles lists the cycle identifiers present in the cache directory
// per kind, newest first. Used by the status API.
func (r *Repository) CachedCycles() map[Kind][]string {
	out := make(map[Kind][]string)
	entries, err := os.ReadDir(r.cfg.CacheDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), cycleFileSuffix) {
			continue
		}
		kind, ok := kindFromFilename(e.Name())
		if !ok {
			continue
		}
		base := strings.TrimSuffix(e.Name(), cycleFileSuffix)
		out[kind] = append(out[kind], strings.TrimPrefix(base, string(kind)+"_"))
	}
	for kind := range out {
		sort.Sort(sort.Reverse(sort.StringSlice(out[kind])))
	}
	return out
}

func cycleFilename(kind Kind, cycle string) string {
	return fmt.Sprintf("%s_%s%s", kind, cycle, cycleFileSuffix)
}

func kindFromFilename(name string) (Kind, bool) {
	switch {
	case strings.HasPrefix(name, string(KindGFS)+"_"):
		return KindGFS, true
	case strings.HasPrefix(name, string(KindWAFS)+"_"):
		return KindWAFS, true
	}
	return "", false
}
