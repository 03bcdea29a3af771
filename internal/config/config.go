// Package config loads the run configuration from YAML plus VORTEX_-prefixed
// environment overrides, the same Load/Validate shape the teacher's config
// package uses for its own YAML document.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/makutaku/vortex-go/internal/errs"
)

// Config is the complete run configuration, per spec.md §6.
type Config struct {
	General   GeneralConfig             `yaml:"general"`
	DateRange DateRangeConfig           `yaml:"dateRange"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// GeneralConfig holds output and run-mode options.
type GeneralConfig struct {
	OutputDirectory string `yaml:"outputDirectory"`
	BackupEnabled   bool   `yaml:"backupEnabled"`
	ForceBackup     bool   `yaml:"forceBackup"`
	DryRun          bool   `yaml:"dryRun"`
	RandomSleepMax  int    `yaml:"randomSleepMax"`
	// ParallelProviders enables the optional errgroup-based worker pool
	// keyed by provider (§6 of the expanded design). Off by default; the
	// scheduler stays single-threaded.
	ParallelProviders bool `yaml:"parallelProviders"`
}

// DateRangeConfig bounds the default planning window.
type DateRangeConfig struct {
	StartYear int `yaml:"startYear"`
	EndYear   int `yaml:"endYear"`
}

// ProviderConfig holds opaque per-provider settings: credentials,
// endpoints, quotas.
type ProviderConfig struct {
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Extra    map[string]string `yaml:"extra"`
}

func defaultConfig() Config {
	return Config{
		General: GeneralConfig{
			OutputDirectory: "./data",
			RandomSleepMax:  10,
		},
		DateRange: DateRangeConfig{
			StartYear: 2000,
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Load reads path, applies VORTEX_-prefixed environment overrides, and
// validates the result. A missing file or malformed key is a Config error,
// fatal at startup, per spec.md §7.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "load_config", err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "load_config", err, "parsing config file %s", path)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides mirrors the teacher's env-var-override helpers, scoped
// to a VORTEX_ prefix and the general/dateRange keys listed below.
// providers.<name> settings have no environment override.
func applyEnvOverrides(cfg *Config) {
	if v, ok := getEnv("VORTEX_GENERAL_OUTPUT_DIRECTORY"); ok {
		cfg.General.OutputDirectory = v
	}
	if v, ok := getEnvAsBool("VORTEX_GENERAL_BACKUP_ENABLED"); ok {
		cfg.General.BackupEnabled = v
	}
	if v, ok := getEnvAsBool("VORTEX_GENERAL_FORCE_BACKUP"); ok {
		cfg.General.ForceBackup = v
	}
	if v, ok := getEnvAsBool("VORTEX_GENERAL_DRY_RUN"); ok {
		cfg.General.DryRun = v
	}
	if v, ok := getEnvAsInt("VORTEX_GENERAL_RANDOM_SLEEP_MAX"); ok {
		cfg.General.RandomSleepMax = v
	}
	if v, ok := getEnvAsBool("VORTEX_GENERAL_PARALLEL_PROVIDERS"); ok {
		cfg.General.ParallelProviders = v
	}
	if v, ok := getEnvAsInt("VORTEX_DATE_RANGE_START_YEAR"); ok {
		cfg.DateRange.StartYear = v
	}
	if v, ok := getEnvAsInt("VORTEX_DATE_RANGE_END_YEAR"); ok {
		cfg.DateRange.EndYear = v
	}
}

func getEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func getEnvAsBool(key string) (bool, bool) {
	v, ok := getEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func getEnvAsInt(key string) (int, bool) {
	v, ok := getEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.General.OutputDirectory) == "" {
		return errs.New(errs.KindConfig, "validate_config", "general.outputDirectory is required")
	}
	if c.General.RandomSleepMax < 0 {
		return errs.New(errs.KindConfig, "validate_config", "general.randomSleepMax must be >= 0")
	}
	if c.DateRange.EndYear != 0 && c.DateRange.StartYear > c.DateRange.EndYear {
		return errs.New(errs.KindConfig, "validate_config", "dateRange.startYear must be <= dateRange.endYear")
	}
	return nil
}

// Provider looks up a named provider's config, returning an empty
// ProviderConfig if none was declared.
func (c *Config) Provider(name string) ProviderConfig {
	if cfg, ok := c.Providers[name]; ok {
		return cfg
	}
	return ProviderConfig{}
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{outputDir=%s, startYear=%d, endYear=%d, dryRun=%v}",
		c.General.OutputDirectory, c.DateRange.StartYear, c.DateRange.EndYear, c.General.DryRun)
}
