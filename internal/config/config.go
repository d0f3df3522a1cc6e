package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the full configuration shared by the weather server
// daemon and the in-process client/engine.
type Config struct {
	Server     ServerConfig     `toml:"server"`     // UDP protocol endpoint settings
	Status     StatusConfig     `toml:"status"`     // Read-only status HTTP API
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Wind       WindConfig       `toml:"wind"`       // Wind transition and interpolation knobs
	Clouds     CloudConfig      `toml:"clouds"`     // Cloud assembly bounds
	Turbulence TurbulenceConfig `toml:"turbulence"` // Turbulence shaping
	Metar      MetarConfig      `toml:"metar"`      // Station report source and injection limits
	Grib       GribConfig       `toml:"grib"`       // Forecast cycle repository settings
	Client     ClientConfig     `toml:"client"`     // Consumer-side query pacing
	Visibility VisibilityConfig `toml:"visibility"` // Visibility bounds
}

// ServerConfig contains the UDP endpoint the client and server share
type ServerConfig struct {
	Host string `toml:"host"` // Bind/connect address; the protocol is localhost-only by design
	Port int    `toml:"port"` // UDP port for the weather channel
}

// StatusConfig contains the daemon's read-only HTTP status API settings
type StatusConfig struct {
	Enabled bool   `toml:"enabled"` // Serve the status API and snapshot websocket
	Host    string `toml:"host"`    // Address to bind the status server to
	Port    int    `toml:"port"`    // HTTP port for the status server
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// WindConfig contains the transition rates the resolver applies to wind
// values each frame. Rates are per second of elapsed wall-clock time.
type WindConfig struct {
	HeadingRateDegSec   float64 `toml:"heading_rate_deg_sec"`   // Max heading change while transitioning (deg/s)
	SpeedRateKtSec      float64 `toml:"speed_rate_kt_sec"`      // Max speed change while transitioning (kt/s)
	GustRateKtSec       float64 `toml:"gust_rate_kt_sec"`       // Max gust change while transitioning (kt/s)
	PressureRateInHgSec float64 `toml:"pressure_rate_inhg_sec"` // Max sea-level pressure change (inHg/s)
}

// CloudConfig contains geometric bounds for assembled cloud layers
type CloudConfig struct {
	MaxCloudHeightFt float64 `toml:"max_cloud_height_ft"` // Ceiling on layer thickness; lower values reduce redraw cost
}

// TurbulenceConfig contains turbulence shaping knobs
type TurbulenceConfig struct {
	Probability float64 `toml:"probability"` // Severity multiplier, 0..1
}

// MetarConfig contains the station-report source and surface injection limits
type MetarConfig struct {
	AGLOffsetFt         float64  `toml:"agl_offset_ft"`          // Height above station elevation for the synthetic surface wind layer
	StationDistanceKm   float64  `toml:"station_distance_km"`    // Ignore reports from stations farther than this
	IgnoreStations      []string `toml:"ignore_stations"`        // ICAO codes never used as closest station
	SourceBaseURL       string   `toml:"source_base_url"`        // Upstream report API base URL
	RefreshIntervalMins int      `toml:"refresh_interval_mins"`  // How often the server refreshes station reports
	RequestTimeoutSecs  int      `toml:"request_timeout_secs"`   // HTTP timeout for upstream fetches
	MaxRetries          int      `toml:"max_retries"`            // Upstream fetch retry attempts
}

// GribConfig contains the forecast cycle repository settings
type GribConfig struct {
	CacheDir           string `toml:"cache_dir"`            // Directory holding pre-parsed cycle files (relative to the sim root)
	RescanIntervalMins int    `toml:"rescan_interval_mins"` // How often the server rescans for new cycles
}

// ClientConfig contains consumer-side query pacing
type ClientConfig struct {
	QueryIntervalSecs float64 `toml:"query_interval_secs"` // Minimum spacing between position queries
}

// VisibilityConfig contains visibility bounds
type VisibilityConfig struct {
	MaxVisibilitySM float64 `toml:"max_visibility_sm"` // Reported visibility is capped here (performance tweak)
}

// Default returns the documented default configuration
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8950},
		Status:  StatusConfig{Enabled: true, Host: "127.0.0.1", Port: 8951},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Wind: WindConfig{
			HeadingRateDegSec:   0.5,
			SpeedRateKtSec:      0.5,
			GustRateKtSec:       1.0,
			PressureRateInHgSec: 0.005,
		},
		Clouds:     CloudConfig{MaxCloudHeightFt: 40000},
		Turbulence: TurbulenceConfig{Probability: 1.0},
		Metar: MetarConfig{
			AGLOffsetFt:         2000,
			StationDistanceKm:   100,
			SourceBaseURL:       "https://aviationweather.gov/api/data",
			RefreshIntervalMins: 10,
			RequestTimeoutSecs:  10,
			MaxRetries:          2,
		},
		Grib:       GribConfig{CacheDir: "cache", RescanIntervalMins: 30},
		Client:     ClientConfig{QueryIntervalSecs: 2},
		Visibility: VisibilityConfig{MaxVisibilitySM: 40},
	}
}

// Load reads a configuration file and applies safe-bound clamping
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.Clamp()
	return cfg, nil
}

// LoadOrCreate loads the config under the sim root, writing the defaults on
// first run the way the original server did.
func LoadOrCreate(rootPath string) (*Config, error) {
	path := FilePath(rootPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Save writes the configuration as TOML, creating parent directories
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Clamp forces out-of-range knobs back to documented safe bounds. Bad values
// are corrected rather than rejected: a weather glitch must never take the
// host down.
func (c *Config) Clamp() {
	d := Default()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Status.Port <= 0 || c.Status.Port > 65535 {
		c.Status.Port = d.Status.Port
	}
	if c.Status.Host == "" {
		c.Status.Host = d.Status.Host
	}

	if c.Wind.HeadingRateDegSec <= 0 {
		c.Wind.HeadingRateDegSec = d.Wind.HeadingRateDegSec
	}
	if c.Wind.SpeedRateKtSec <= 0 {
		c.Wind.SpeedRateKtSec = d.Wind.SpeedRateKtSec
	}
	if c.Wind.GustRateKtSec <= 0 {
		c.Wind.GustRateKtSec = d.Wind.GustRateKtSec
	}
	if c.Wind.PressureRateInHgSec <= 0 {
		c.Wind.PressureRateInHgSec = d.Wind.PressureRateInHgSec
	}

	// The assembler needs at least one minimum-thickness layer of headroom
	if c.Clouds.MaxCloudHeightFt < 2000 {
		c.Clouds.MaxCloudHeightFt = 2000
	}

	if c.Turbulence.Probability < 0 {
		c.Turbulence.Probability = 0
	} else if c.Turbulence.Probability > 1 {
		c.Turbulence.Probability = 1
	}

	if c.Metar.AGLOffsetFt < 0 {
		c.Metar.AGLOffsetFt = d.Metar.AGLOffsetFt
	}
	if c.Metar.StationDistanceKm <= 0 {
		c.Metar.StationDistanceKm = d.Metar.StationDistanceKm
	}
	if c.Metar.RefreshIntervalMins <= 0 {
		c.Metar.RefreshIntervalMins = d.Metar.RefreshIntervalMins
	}
	if c.Metar.RequestTimeoutSecs <= 0 {
		c.Metar.RequestTimeoutSecs = d.Metar.RequestTimeoutSecs
	}
	if c.Metar.MaxRetries < 0 {
		c.Metar.MaxRetries = 0
	}
	for i, code := range c.Metar.IgnoreStations {
		c.Metar.IgnoreStations[i] = strings.ToUpper(strings.TrimSpace(code))
	}

	if c.Grib.RescanIntervalMins <= 0 {
		c.Grib.RescanIntervalMins = d.Grib.RescanIntervalMins
	}

	if c.Client.QueryIntervalSecs <= 0 {
		c.Client.QueryIntervalSecs = d.Client.QueryIntervalSecs
	}

	if c.Visibility.MaxVisibilitySM <= 0 {
		c.Visibility.MaxVisibilitySM = d.Visibility.MaxVisibilitySM
	}
}

// Dir returns the daemon's working directory under the sim root
func Dir(rootPath string) string {
	return filepath.Join(rootPath, "noawx")
}

// FilePath returns the config file location under the sim root
func FilePath(rootPath string) string {
	return filepath.Join(Dir(rootPath), "config.toml")
}

// CacheDir returns the cycle cache directory under the sim root
func (c *Config) CacheDir(rootPath string) string {
	if filepath.IsAbs(c.Grib.CacheDir) {
		return c.Grib.CacheDir
	}
	return filepath.Join(Dir(rootPath), c.Grib.CacheDir)
}

// LogFile returns the daemon log file location under the sim root
func LogFile(rootPath string) string {
	return filepath.Join(Dir(rootPath), "wxserver.log")
}
