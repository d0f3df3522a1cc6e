package metar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/pkg/logger"
)

// Fetcher pulls observations from the upstream report API with retries and a
// circuit breaker, so an upstream outage degrades to stale cached reports
// instead of a retry storm.
type Fetcher struct {
	logger *logger.Logger

	mu      sync.Mutex
	cfg     config.MetarConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewFetcher(cfg config.MetarConfig, log *logger.Logger) *Fetcher {
	f := &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		},
		logger: log.Named("metar-fetch"),
	}
	f.breaker = f.newBreaker()
	return f
}

// Reconfigure swaps in freshly loaded source settings. The breaker restarts
// closed since the upstream may have changed.
func (f *Fetcher) Reconfigure(cfg config.MetarConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.client = &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
	}
	f.breaker = f.newBreaker()
}

func (f *Fetcher) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "metar-upstream",
		Timeout: 2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("Upstream breaker state change",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
}

// Reset discards breaker state. Used by the station-source reset command.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaker = f.newBreaker()
}

func (f *Fetcher) snapshotCfg() config.MetarConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// ByBBox fetches every report inside the lat/lon box.
func (f *Fetcher) ByBBox(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]awMetar, error) {
	url := fmt.Sprintf("%s/metar?bbox=%.2f,%.2f,%.2f,%.2f&format=json",
		f.snapshotCfg().SourceBaseURL, latMin, lonMin, latMax, lonMax)
	return f.fetch(ctx, url)
}

// ByICAO fetches the latest report for one station.
func (f *Fetcher) ByICAO(ctx context.Context, icao string) (*awMetar, error) {
	url := fmt.Sprintf("%s/metar?ids=%s&format=json", f.snapshotCfg().SourceBaseURL, icao)
	obs, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no report for %s", icao)
	}
	return &obs[0], nil
}

// fetch performs the request with retry and exponential backoff, all inside
// the breaker so consecutive failures eventually short-circuit.
func (f *Fetcher) fetch(ctx context.Context, url string) ([]awMetar, error) {
	f.mu.Lock()
	breaker := f.breaker
	maxRetries := f.cfg.MaxRetries
	f.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			f.logger.Info("Retrying report fetch",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			return f.doRequest(ctx, url)
		})
		if err != nil {
			lastErr = err
			if err == gobreaker.ErrOpenState || ctx.Err() != nil {
				break
			}
			continue
		}
		return result.([]awMetar), nil
	}

	f.logger.Error("Report fetch failed",
		logger.String("url", url),
		logger.Int("max_attempts", maxRetries+1),
		logger.Error(lastErr))
	return nil, lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, url string) ([]awMetar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	client := f.client
	f.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting reports: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var obs []awMetar
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		return nil, fmt.Errorf("decoding reports: %w", err)
	}
	return obs, nil
}
