package configs

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigError reports an invalid configuration value. It is fatal at
// startup: the pipeline constants are policy, not hints.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// DatabaseConfig holds the index store connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, mysql or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	// Path is only used by the sqlite driver.
	Path string `yaml:"path"`
}

// CrawlerConfig controls directory ingestion.
type CrawlerConfig struct {
	TargetDir           string   `yaml:"target_dir"`
	SupportedExtensions []string `yaml:"supported_extensions"`
	MaxWorkers          int      `yaml:"max_workers"`
	// FingerprintLimit N truncates every channel of each file to its
	// first N*1000 samples before fingerprinting. 0 or -1 means the
	// entire track.
	FingerprintLimit int `yaml:"fingerprint_limit"`
}

// FingerprintConfig holds the DSP pipeline tunables.
type FingerprintConfig struct {
	SpecWinSize  int     `yaml:"spec_win_size"`
	SpecOverlap  float64 `yaml:"spec_overlap"`
	SpecFreq     int     `yaml:"spec_freq"`
	PeakWinSize  int     `yaml:"peak_win_size"`
	PeakMinAmp   float64 `yaml:"peak_min_amp"`
	NNeighbours  int     `yaml:"n_neighbours"`
	HashDeltaMin int     `yaml:"hash_delta_min"`
	HashDeltaMax int     `yaml:"hash_delta_max"`
	// Reduction is kept for parity with the reference parameter set but
	// is not applied by the hashing path.
	Reduction int `yaml:"reduction"`
	TopN      int `yaml:"top_n"`
}

// Config is the root configuration object.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
}

// Default returns the baseline configuration. YAML and environment
// overrides are applied on top of it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			Name:    "reverb",
			User:    "postgres",
			SSLMode: "disable",
		},
		Crawler: CrawlerConfig{
			TargetDir:           "/audio/raw",
			SupportedExtensions: []string{"mp3", "mpeg", "wav", "ogg"},
			MaxWorkers:          0, // 0 means one worker per CPU
			FingerprintLimit:    0,
		},
		Fingerprint: FingerprintConfig{
			SpecWinSize:  4096,
			SpecOverlap:  0.5,
			SpecFreq:     44100,
			PeakWinSize:  10,
			PeakMinAmp:   10,
			NNeighbours:  15,
			HashDeltaMin: 0,
			HashDeltaMax: 200,
			Reduction:    20,
			TopN:         2,
		},
	}
}

// LoadConfig reads the YAML file at path (if it exists), applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays connection settings and the target directory from
// the environment. A .env file in the working directory is honoured if
// present.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("TARGET_DIR"); v != "" {
		c.Crawler.TargetDir = v
	}
}

// Validate checks the fingerprint parameter set. Invalid parameters are
// a startup failure, never a silent fallback.
func (c *Config) Validate() error {
	fp := c.Fingerprint
	if fp.SpecWinSize <= 0 || fp.SpecWinSize&(fp.SpecWinSize-1) != 0 {
		return &ConfigError{Field: "fingerprint.spec_win_size", Reason: "must be a positive power of two"}
	}
	if fp.SpecOverlap <= 0 || fp.SpecOverlap >= 1 {
		return &ConfigError{Field: "fingerprint.spec_overlap", Reason: "must be inside (0, 1)"}
	}
	if fp.SpecFreq <= 0 {
		return &ConfigError{Field: "fingerprint.spec_freq", Reason: "must be positive"}
	}
	if fp.PeakWinSize < 1 {
		return &ConfigError{Field: "fingerprint.peak_win_size", Reason: "must be at least 1"}
	}
	if fp.NNeighbours < 1 {
		return &ConfigError{Field: "fingerprint.n_neighbours", Reason: "must be at least 1"}
	}
	if fp.HashDeltaMin < 0 {
		return &ConfigError{Field: "fingerprint.hash_delta_min", Reason: "must not be negative"}
	}
	if fp.HashDeltaMin > fp.HashDeltaMax {
		return &ConfigError{Field: "fingerprint.hash_delta_min", Reason: "must not exceed hash_delta_max"}
	}
	if fp.HashDeltaMax > 0xFFFF {
		return &ConfigError{Field: "fingerprint.hash_delta_max", Reason: "must fit in 16 bits"}
	}
	if fp.TopN < 1 {
		return &ConfigError{Field: "fingerprint.top_n", Reason: "must be at least 1"}
	}
	if len(c.Crawler.SupportedExtensions) == 0 {
		return &ConfigError{Field: "crawler.supported_extensions", Reason: "must not be empty"}
	}
	return nil
}
