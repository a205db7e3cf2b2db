package config

import (
	"strings"
	"testing"
)

func validS3Config() *Config {
	cfg := Default()
	cfg.Storage.Bucket = "musicgen-output"
	cfg.Storage.Region = "us-east-1"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	if err := validS3Config().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, "Storage.Bucket is required"},
		{"missing region", func(c *Config) { c.Storage.Region = "" }, "Storage.Region is required"},
		{"bad bucket name", func(c *Config) { c.Storage.Bucket = "Bad_Bucket" }, "not a valid S3 bucket name"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "gcs" }, "Storage.Backend must be one of"},
		{"zero chunk", func(c *Config) { c.Generator.ChunkSeconds = 0 }, "Generator.ChunkSeconds must be greater than 0"},
		{"negative rate", func(c *Config) { c.Cost.HourlyRateUSD = -1 }, "Cost.HourlyRateUSD must be at least 0"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Logging.Level must be one of"},
		{"bad redis addr", func(c *Config) { c.Notifications.RedisAddr = "localhost" }, "must be host:port"},
		{"bad cron", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "x", Cron: "every day"}}
		}, "not a valid cron expression"},
		{"unnamed schedule", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Cron: "0 2 * * *"}}
		}, "Schedules[0].Name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validS3Config()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_LocalBackendNeedsNoBucket(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalDir = "/tmp/objects"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidBucketName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"musicgen-output", true},
		{"abc", true},
		{"my.bucket.name", true},
		{"ab", false},
		{"-leading", false},
		{"trailing-", false},
		{"Upper", false},
		{"under_score", false},
		{"double..dot", false},
		{strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		if got := ValidBucketName(tt.name); got != tt.want {
			t.Errorf("ValidBucketName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
