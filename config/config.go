package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Ssmdquery ServiceConfig   `yaml:"ssmdquery"`
	GCS       GCSConfig       `yaml:"gcs"`
	API       APIConfig       `yaml:"api"`
	Freshness FreshnessConfig `yaml:"freshness"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	// Endpoint is the S3-compatible endpoint the analytical engine talks to.
	Endpoint string `yaml:"endpoint"`
	// Transport selects the listing/copy backend: "gsutil" or "sdk".
	Transport string `yaml:"transport"`
	// CacheDir is the scratch directory for downloaded objects. Cached files
	// are never revalidated against the remote copy; operators clear the
	// directory to force re-downloads.
	CacheDir string `yaml:"cache_dir"`
	// FeedPaths overrides the default feed path prefixes inside the bucket.
	FeedPaths map[string]string `yaml:"feed_paths"`
}

type APIConfig struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

type FreshnessConfig struct {
	StaleThresholdHours float64 `yaml:"stale_threshold_hours"`
	MaxDates            int     `yaml:"max_dates"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func defaultConfig() Config {
	return Config{
		Ssmdquery: ServiceConfig{
			Name:    "ssmdquery",
			Version: "0.1.0",
		},
		GCS: GCSConfig{
			Endpoint:  "storage.googleapis.com",
			Transport: "gsutil",
			CacheDir:  os.TempDir(),
		},
		API: APIConfig{
			Timeout: 30 * time.Second,
		},
		Freshness: FreshnessConfig{
			StaleThresholdHours: 7,
			MaxDates:            3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// LoadConfig reads the YAML configuration file and applies environment
// variable overrides. A missing file is not an error: the server can run
// entirely from environment variables.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(resolveEnvSpecificPath(path))
	if err == nil {
		if err := yaml.Unmarshal(expandEnvRefs(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override from environment variables if available
	if v := os.Getenv("SSMD_API_URL"); v != "" {
		config.API.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SSMD_API_KEY"); v != "" {
		config.API.Key = strings.TrimSpace(v)
	}
	if v := os.Getenv("SSMD_GCS_BUCKET"); v != "" {
		config.GCS.Bucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("SSMD_CACHE_DIR"); v != "" {
		config.GCS.CacheDir = strings.TrimSpace(v)
	}

	config.GCS.Bucket = strings.TrimSpace(config.GCS.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// RemoteConfigured reports whether any remote data source is reachable in
// principle: either the ssmd-data-ts API or a GCS bucket.
func (c *Config) RemoteConfigured() bool {
	return c.API.URL != "" || c.GCS.Bucket != ""
}

func validateConfig(cfg *Config) error {
	if cfg.Ssmdquery.Name == "" {
		return fmt.Errorf("ssmdquery.name is required")
	}

	if cfg.Ssmdquery.Version == "" {
		return fmt.Errorf("ssmdquery.version is required")
	}

	switch cfg.GCS.Transport {
	case "gsutil", "sdk":
	default:
		return fmt.Errorf("gcs.transport must be 'gsutil' or 'sdk', got '%s'", cfg.GCS.Transport)
	}

	if cfg.GCS.Bucket != "" && !isValidBucket(cfg.GCS.Bucket) {
		return fmt.Errorf("gcs.bucket '%s' is invalid", cfg.GCS.Bucket)
	}

	if cfg.Freshness.StaleThresholdHours <= 0 {
		return fmt.Errorf("freshness.stale_threshold_hours must be greater than 0")
	}
	if cfg.Freshness.MaxDates <= 0 {
		return fmt.Errorf("freshness.max_dates must be greater than 0")
	}

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be greater than 0")
	}

	return nil
}

var envRefRegexp = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs substitutes ${VAR} references in the raw config with the
// environment value before parsing. Only the braced form is expanded; a
// reference to an unset variable becomes empty.
func expandEnvRefs(data []byte) []byte {
	return envRefRegexp.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRefRegexp.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

var bucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)

func isValidBucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return bucketRegexp.MatchString(name)
}
