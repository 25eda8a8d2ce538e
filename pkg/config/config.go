package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Request  RequestConfig  `yaml:"request"`
	Registry RegistryConfig `yaml:"registry"`
	Assets   AssetsConfig   `yaml:"assets"`
	Stitch   StitchConfig   `yaml:"stitch"`
	Markers  MarkersConfig  `yaml:"markers"`
	Nav      NavConfig      `yaml:"nav"`
	Coverage CoverageConfig `yaml:"coverage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// RequestConfig holds HTTP client settings for the registry fetch.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// RegistryConfig holds scene registry settings.
type RegistryConfig struct {
	// URL of the worlds.json document. file:// and plain paths are read
	// from disk.
	URL string `yaml:"url"`
	// WatchDir is polled for freshly generated splats with a metadata
	// sidecar; empty disables ingest.
	WatchDir      string   `yaml:"watch_dir"`
	WatchInterval Duration `yaml:"watch_interval"`
}

// AssetsConfig holds splat asset serving settings.
type AssetsConfig struct {
	// BaseURL is prefixed to every scene asset reference handed to the
	// renderer. Resolved here at load time, never from the environment
	// inside the engines.
	BaseURL string `yaml:"base_url"`
	// Dir is the local directory served under /splats/.
	Dir string `yaml:"dir"`
}

// StitchConfig holds stitching engine settings.
type StitchConfig struct {
	// Scale is the meters-per-local-unit calibration factor.
	Scale float64 `yaml:"scale"`
	// LoadRadius bounds the resident set. Required, finite and positive;
	// there is deliberately no "load everything" fallback.
	LoadRadius Distance `yaml:"load_radius"`
}

// MarkersConfig holds point-of-interest settings.
type MarkersConfig struct {
	// Path of the marker definitions document.
	Path string `yaml:"path"`
}

// NavConfig holds sequential navigation settings.
type NavConfig struct {
	// MinBlackout is the minimum time the occluder stays fully opaque.
	MinBlackout Duration `yaml:"min_blackout"`
	// LoadTimeout aborts a transition whose target never reports load
	// completion. Zero disables the timeout and keeps the occluder up.
	LoadTimeout Duration `yaml:"load_timeout"`
}

// CoverageConfig holds mini-map coverage settings.
type CoverageConfig struct {
	// Resolution is the H3 cell resolution for the coverage layer.
	Resolution int `yaml:"resolution"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:2140",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/globerun.db",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(15 * time.Second),
			},
		},
		Registry: RegistryConfig{
			URL:           "./data/worlds.json",
			WatchDir:      "",
			WatchInterval: Duration(10 * time.Second),
		},
		Assets: AssetsConfig{
			BaseURL: "/splats/",
			Dir:     "./data/splats",
		},
		Stitch: StitchConfig{
			Scale:      1.25,
			LoadRadius: Distance(60),
		},
		Markers: MarkersConfig{
			Path: "./data/markers.json",
		},
		Nav: NavConfig{
			MinBlackout: Duration(500 * time.Millisecond),
			LoadTimeout: 0,
		},
		Coverage: CoverageConfig{
			Resolution: 11,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults; an existing file is merged over the defaults but
// not written back, preserving user formatting. The asset base URL may be
// overridden by GLOBERUN_ASSET_BASE_URL, resolved here so the engines never
// touch the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if base := os.Getenv("GLOBERUN_ASSET_BASE_URL"); base != "" {
		cfg.Assets.BaseURL = base
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the engines rely on.
func (c *Config) Validate() error {
	r := float64(c.Stitch.LoadRadius)
	if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
		return fmt.Errorf("stitch.load_radius must be a finite positive distance, got %v", r)
	}
	if c.Stitch.Scale <= 0 || math.IsInf(c.Stitch.Scale, 0) || math.IsNaN(c.Stitch.Scale) {
		return fmt.Errorf("stitch.scale must be a finite positive factor, got %v", c.Stitch.Scale)
	}
	if c.Coverage.Resolution < 0 || c.Coverage.Resolution > 15 {
		return fmt.Errorf("coverage.resolution must be within [0, 15], got %d", c.Coverage.Resolution)
	}
	if c.Nav.MinBlackout < 0 {
		return fmt.Errorf("nav.min_blackout must not be negative")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Globerun Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), ft (feet)

`)
	data = append(header, data...)

	// Inject a comment above load_radius: the one knob that must stay finite.
	reRadius := regexp.MustCompile(`(?m)^(\s+)load_radius:`)
	data = reRadius.ReplaceAll(data, []byte("${1}# Finite and positive. Unbounded loading is not supported.\n${1}load_radius:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
