package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scheduler.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", cfg.Scheduler.HistorySize)
	}
	if cfg.Scheduler.StartupDelay != 30*time.Second {
		t.Errorf("StartupDelay = %s", cfg.Scheduler.StartupDelay)
	}
	if cfg.Scheduler.AdapterHealth.Interval != 15*time.Minute || !cfg.Scheduler.AdapterHealth.Enabled {
		t.Errorf("AdapterHealth = %+v", cfg.Scheduler.AdapterHealth)
	}
	if cfg.Collection.BatchSize != 5 || cfg.Collection.MaxRetries != 3 {
		t.Errorf("Collection = %+v", cfg.Collection)
	}
	if cfg.Notification.MinSeverity != "error" {
		t.Errorf("MinSeverity = %q", cfg.Notification.MinSeverity)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SCHEDULER_HISTORY_SIZE", "250")
	t.Setenv("JOB_ALERT_ESCALATION_ENABLED", "false")
	t.Setenv("JOB_EVIDENCE_COLLECTION_INTERVAL", "90m")
	t.Setenv("MONITORING_FRAMEWORKS", "soc2, hipaa ,")
	t.Setenv("COLLECTION_RATE_LIMIT", "2.5")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scheduler.HistorySize != 250 {
		t.Errorf("HistorySize = %d", cfg.Scheduler.HistorySize)
	}
	if cfg.Scheduler.AlertEscalation.Enabled {
		t.Error("alert escalation should be disabled")
	}
	if cfg.Scheduler.EvidenceCollection.Interval != 90*time.Minute {
		t.Errorf("EvidenceCollection.Interval = %s", cfg.Scheduler.EvidenceCollection.Interval)
	}
	if got := strings.Join(cfg.Monitoring.Frameworks, ","); got != "soc2,hipaa" {
		t.Errorf("Frameworks = %q", got)
	}
	if cfg.Collection.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v", cfg.Collection.RateLimit)
	}
	// unparsable values fall back to the default
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"zero batch", func(c *Config) { c.Collection.BatchSize = 0 }, "batch size"},
		{"inverted backoff", func(c *Config) { c.Collection.MaxDelay = c.Collection.BaseDelay / 2 }, "backoff window"},
		{"zero history", func(c *Config) { c.Scheduler.HistorySize = 0 }, "history size"},
		{"enabled job without interval", func(c *Config) { c.Scheduler.AdapterHealth.Interval = 0 }, "adapter_health"},
		{"disabled job without interval", func(c *Config) {
			c.Scheduler.AdapterHealth = JobConfig{Enabled: false}
		}, ""},
		{"short credential key", func(c *Config) { c.Security.CredentialKey = "abcd" }, "CREDENTIAL_KEY"},
		{"production without token", func(c *Config) { c.Server.Environment = "production" }, "OPS_API_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
