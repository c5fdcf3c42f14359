package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type GraphConfig struct {
	MinSegmentMeters float64            `toml:"min_segment_meters"`
	CoordPrecision   int                `toml:"coord_precision"`
	ProximityMeters  float64            `toml:"proximity_meters"`
	WalkingSpeedKph  float64            `toml:"walking_speed_kph"`
	DefaultSpeedKph  float64            `toml:"default_speed_kph"`
	DefaultHighway   string             `toml:"default_highway"`
	Workers          int                `toml:"workers"`
	Speeds           map[string]float64 `toml:"speeds"`
	DriveExclude     []string           `toml:"drive_exclude"`
}

type MergeConfig struct {
	DuplicateMeters   float64 `toml:"duplicate_meters"`
	DriftIgnoreMeters float64 `toml:"drift_ignore_meters"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type LoggerConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"` // console or json
	ServiceName string `toml:"service_name"`
	LogFile     string `toml:"log_file"`
	MaxSize     int    `toml:"max_size"`
	MaxBackups  int    `toml:"max_backups"`
	MaxAge      int    `toml:"max_age"`
	Compress    bool   `toml:"compress"`
}

type Config struct {
	Graph    GraphConfig    `toml:"graph"`
	Merge    MergeConfig    `toml:"merge"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Server   ServerConfig   `toml:"server"`
	Logger   LoggerConfig   `toml:"logger"`
}

// Default returns the built-in configuration. Speeds are coarse km/h
// defaults per highway class.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			MinSegmentMeters: 0.5,
			CoordPrecision:   6,
			ProximityMeters:  500,
			WalkingSpeedKph:  5,
			DefaultSpeedKph:  20,
			DefaultHighway:   "footway",
			Speeds: map[string]float64{
				"footway":       5,
				"path":          5,
				"pedestrian":    5,
				"steps":         3,
				"service":       20,
				"residential":   30,
				"living_street": 15,
				"tertiary":      40,
				"secondary":     50,
			},
			DriveExclude: []string{"footway", "path", "pedestrian", "steps"},
		},
		Merge: MergeConfig{
			DuplicateMeters:   10,
			DriftIgnoreMeters: 2.5,
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "waygraph",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      28,
		},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	speeds := cfg.Graph.Speeds
	cfg.Graph.Speeds = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	// [graph.speeds] extends the built-in table instead of replacing it
	if cfg.Graph.Speeds == nil {
		cfg.Graph.Speeds = make(map[string]float64, len(speeds))
	}
	for class, speed := range speeds {
		if _, ok := cfg.Graph.Speeds[class]; !ok {
			cfg.Graph.Speeds[class] = speed
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) Validate() error {
	switch {
	case c.Graph.MinSegmentMeters < 0:
		return fmt.Errorf("%w: graph.min_segment_meters must be >= 0", ErrInvalidConfig)
	case c.Graph.CoordPrecision < 0 || c.Graph.CoordPrecision > 9:
		return fmt.Errorf("%w: graph.coord_precision must be within [0,9]", ErrInvalidConfig)
	case c.Graph.ProximityMeters < 0:
		return fmt.Errorf("%w: graph.proximity_meters must be >= 0", ErrInvalidConfig)
	case c.Graph.WalkingSpeedKph <= 0 || c.Graph.DefaultSpeedKph <= 0:
		return fmt.Errorf("%w: speeds must be > 0", ErrInvalidConfig)
	case c.Merge.DuplicateMeters <= 0:
		return fmt.Errorf("%w: merge.duplicate_meters must be > 0", ErrInvalidConfig)
	case c.Merge.DriftIgnoreMeters < 0 || c.Merge.DriftIgnoreMeters > c.Merge.DuplicateMeters:
		return fmt.Errorf("%w: merge.drift_ignore_meters must be within [0, duplicate_meters]", ErrInvalidConfig)
	}
	for class, speed := range c.Graph.Speeds {
		if speed <= 0 {
			return fmt.Errorf("%w: speed for %q must be > 0", ErrInvalidConfig, class)
		}
	}
	return nil
}

// ApplyEnv overrides connection and logging settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}
