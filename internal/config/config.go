package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is looked up from the working directory upwards
const LocalConfigName = "musicgen-worker.toml"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Storage       StorageConfig       `toml:"storage"`
	Generator     GeneratorConfig     `toml:"generator"`
	Cost          CostConfig          `toml:"cost"`
	Logging       LoggingConfig       `toml:"logging"`
	Notifications NotificationsConfig `toml:"notifications"`
	Schedules     []ScheduleConfig    `toml:"schedule" validate:"dive"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	JobsFile     string `toml:"jobs_file" validate:"required"`
	TempDir      string `toml:"temp_dir"`
	DatabasePath string `toml:"database_path"`
}

// StorageConfig selects and configures the object store
type StorageConfig struct {
	Backend  string `toml:"backend" validate:"oneof=s3 local"`
	Bucket   string `toml:"bucket" validate:"required_if=Backend s3,omitempty,s3bucket"`
	Region   string `toml:"region" validate:"required_if=Backend s3"`
	Prefix   string `toml:"prefix"`
	Endpoint string `toml:"endpoint" validate:"omitempty,url"`
	LocalDir string `toml:"local_dir" validate:"required_if=Backend local"`
}

// GeneratorConfig configures the generation adapter
type GeneratorConfig struct {
	Backend         string   `toml:"backend" validate:"oneof=command tone"`
	Command         string   `toml:"command" validate:"required_if=Backend command"`
	Args            []string `toml:"args"`
	Model           string   `toml:"model"`
	ChunkSeconds    int      `toml:"chunk_seconds" validate:"gt=0"`
	SampleRate      int      `toml:"sample_rate" validate:"gt=0"`
	TokensPerSecond int      `toml:"tokens_per_second" validate:"gt=0"`
}

// CostConfig holds the rate used for cost estimates
type CostConfig struct {
	HourlyRateUSD float64 `toml:"hourly_rate_usd" validate:"gte=0"`
	InstanceType  string  `toml:"instance_type"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=console stdout file"`
	File   string   `toml:"file"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop       bool   `toml:"desktop"`
	SlackWebhook  string `toml:"slack_webhook" validate:"omitempty,url"`
	RedisAddr     string `toml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db" validate:"gte=0"`
	RedisStream   string `toml:"redis_stream"`
	RedisMaxLen   int64  `toml:"redis_max_len" validate:"gte=0"`
}

// ScheduleConfig is a cron-triggered run of a job file
type ScheduleConfig struct {
	Name     string `toml:"name" validate:"required"`
	Cron     string `toml:"cron" validate:"required,cronexpr"`
	JobsFile string `toml:"jobs_file"`
}

// instancePricing is the on-demand hourly price used when no explicit rate
// is configured
var instancePricing = map[string]float64{
	"g4dn.xlarge":  0.526,
	"g4dn.2xlarge": 0.752,
	"m5.large":     0.096,
	"m5.xlarge":    0.192,
}

const defaultHourlyRate = 0.40

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			JobsFile:     "prompts.txt",
			DatabasePath: filepath.Join(home, ".musicgen-worker", "runs.db"),
		},
		Storage: StorageConfig{
			Backend:  "s3",
			LocalDir: filepath.Join(home, ".musicgen-worker", "objects"),
		},
		Generator: GeneratorConfig{
			Backend:         "command",
			Command:         "python3",
			Args:            []string{"musicgen_generate.py"},
			Model:           "facebook/musicgen-medium",
			ChunkSeconds:    30,
			SampleRate:      32000,
			TokensPerSecond: 50,
		},
		Cost: CostConfig{
			InstanceType: "g4dn.xlarge",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console", "file"},
			File:   "/var/log/musicgen-worker.log",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.expandPaths()
	return cfg, nil
}

// LoadWithLocalFallback loads the explicit path if given, else a local
// config found from the working directory, else the user config
func LoadWithLocalFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig walks up from the working directory looking for LocalConfigName
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file settings with the worker's environment variables
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := clean(getenv("MUSICGEN_S3_BUCKET")); v != "" {
		c.Storage.Bucket = v
	}
	if v := clean(getenv("AWS_DEFAULT_REGION")); v != "" {
		c.Storage.Region = v
	} else if v := clean(getenv("AWS_REGION")); v != "" {
		c.Storage.Region = v
	}
	if v := clean(getenv("MUSICGEN_S3_PREFIX")); v != "" {
		c.Storage.Prefix = v
	}
	if v := clean(getenv("MUSICGEN_JOBS_FILE")); v != "" {
		c.General.JobsFile = v
	}
	if v := clean(getenv("INSTANCE_TYPE")); v != "" {
		c.Cost.InstanceType = v
	}
	if v := clean(getenv("MUSICGEN_HOURLY_COST")); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MUSICGEN_HOURLY_COST: invalid number %q", v)
		}
		c.Cost.HourlyRateUSD = rate
	}
	if v := clean(getenv("MUSICGEN_REDIS_ADDR")); v != "" {
		c.Notifications.RedisAddr = v
	}
	if v := clean(getenv("MUSICGEN_REDIS_PASSWORD")); v != "" {
		c.Notifications.RedisPassword = v
	}
	return nil
}

// HourlyRate returns the explicit rate, or the price of the configured
// instance type when none is set
func (c *Config) HourlyRate() float64 {
	if c.Cost.HourlyRateUSD > 0 {
		return c.Cost.HourlyRateUSD
	}
	if rate, ok := instancePricing[c.Cost.InstanceType]; ok {
		return rate
	}
	return defaultHourlyRate
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) expandPaths() {
	c.General.JobsFile = ExpandPath(c.General.JobsFile)
	c.General.TempDir = ExpandPath(c.General.TempDir)
	c.General.DatabasePath = ExpandPath(c.General.DatabasePath)
	c.Storage.LocalDir = ExpandPath(c.Storage.LocalDir)
	c.Logging.File = ExpandPath(c.Logging.File)
	for i := range c.Schedules {
		c.Schedules[i].JobsFile = ExpandPath(c.Schedules[i].JobsFile)
	}
}

// clean trims whitespace and stray carriage returns left by .env files
// edited on Windows
func clean(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), "\r\n"))
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "musicgen-worker", "config.toml")
}
