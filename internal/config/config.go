package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	StorageMemory    = "memory"
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Timezone string `yaml:"timezone"`

	GCPProjectID string `yaml:"gcp_project"`
	GCPLocation  string `yaml:"gcp_location"`
	ModelName    string `yaml:"model_name"`

	StorageBackend string `yaml:"storage_backend"` // "memory", "sqlite" or "firestore"
	SQLitePath     string `yaml:"sqlite_path"`
	RedisAddr      string `yaml:"redis_addr"` // empty = in-memory invalidation
	UseMockLLM     bool   `yaml:"use_mock_llm"`

	SaveQuietPeriod  time.Duration `yaml:"save_quiet_period"`
	SaveMaxAttempts  int           `yaml:"save_max_attempts"`
	SaveRetryBackoff time.Duration `yaml:"save_retry_backoff"`
	TypingSpeed      float64       `yaml:"typing_speed"` // delay multiplier, 0 = instant
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Mode:             ModeLocal,
		Port:             "8080",
		LogLevel:         "info",
		Timezone:         "Local",
		GCPLocation:      "us-central1",
		ModelName:        "gemini-2.5-flash",
		StorageBackend:   StorageSQLite,
		SQLitePath:       "data/nutria.db",
		SaveQuietPeriod:  time.Second,
		SaveMaxAttempts:  3,
		SaveRetryBackoff: 200 * time.Millisecond,
		TypingSpeed:      1,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// Load builds the config from defaults, then the YAML file named by
// NUTRIA_CONFIG (if any), then env vars.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("NUTRIA_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	switch getEnv("NUTRIA_MODE", string(c.Mode)) {
	case "gcp":
		c.Mode = ModeGCP
	default:
		c.Mode = ModeLocal
	}

	c.Port = getEnv("NUTRIA_PORT", getEnv("PORT", c.Port))
	c.LogLevel = getEnv("NUTRIA_LOG_LEVEL", c.LogLevel)
	c.Timezone = getEnv("NUTRIA_TIMEZONE", c.Timezone)

	c.GCPProjectID = getEnv("NUTRIA_GCP_PROJECT", c.GCPProjectID)
	c.GCPLocation = getEnv("NUTRIA_GCP_LOCATION", c.GCPLocation)
	c.ModelName = getEnv("NUTRIA_MODEL_NAME", c.ModelName)

	c.StorageBackend = strings.ToLower(getEnv("NUTRIA_STORAGE_BACKEND", c.StorageBackend))
	c.SQLitePath = getEnv("NUTRIA_SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getEnv("NUTRIA_REDIS_ADDR", c.RedisAddr)
	c.UseMockLLM = getBoolEnv("NUTRIA_USE_MOCK_LLM", c.UseMockLLM || c.Mode == ModeLocal)

	var err error
	if c.SaveQuietPeriod, err = getDurationEnv("NUTRIA_SAVE_QUIET_PERIOD", c.SaveQuietPeriod); err != nil {
		return err
	}
	if c.SaveMaxAttempts, err = getIntEnv("NUTRIA_SAVE_MAX_ATTEMPTS", c.SaveMaxAttempts); err != nil {
		return err
	}
	if c.SaveRetryBackoff, err = getDurationEnv("NUTRIA_SAVE_RETRY_BACKOFF", c.SaveRetryBackoff); err != nil {
		return err
	}
	if c.TypingSpeed, err = getFloatEnv("NUTRIA_TYPING_SPEED", c.TypingSpeed); err != nil {
		return err
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("NUTRIA_GCP_PROJECT must be set in gcp mode")
	}
	if !c.UseMockLLM && (c.GCPProjectID == "" || c.GCPLocation == "") {
		return fmt.Errorf("NUTRIA_GCP_PROJECT and NUTRIA_GCP_LOCATION must be set to use Vertex")
	}

	switch c.StorageBackend {
	case StorageMemory, StorageSQLite:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("NUTRIA_GCP_PROJECT is required for firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.SaveQuietPeriod <= 0 {
		return fmt.Errorf("save quiet period must be positive")
	}
	if c.SaveMaxAttempts < 1 {
		return fmt.Errorf("save max attempts must be at least 1")
	}
	if c.TypingSpeed < 0 {
		return fmt.Errorf("typing speed must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
