package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
	Collection   CollectionConfig
	Scheduler    SchedulerConfig
	Monitoring   MonitoringConfig
	Notification NotificationConfig
	Security     SecurityConfig
}

// ServerConfig contains ops HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Environment     string
	// Bearer token guarding /api/v1, required in production
	APIToken  string
	RateLimit float64
	RateBurst int
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// CollectionConfig tunes adapter fan-out and the outbound retry policy
type CollectionConfig struct {
	BatchSize      int
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxJitter      time.Duration
	RequestTimeout time.Duration
	// Outbound requests per second per adapter, 0 disables limiting
	RateLimit float64
	RateBurst int

	BreakerFailures uint32
	BreakerCooldown time.Duration

	DefaultLookback time.Duration
	AdapterFile     string
}

// JobConfig enables a job and sets its interval
type JobConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SchedulerConfig contains job table configuration
type SchedulerConfig struct {
	Enabled      bool
	StartupDelay time.Duration
	HistorySize  int

	EvidenceCollection   JobConfig
	ComplianceMonitoring JobConfig
	AdapterHealth        JobConfig
	AlertEscalation      JobConfig
}

// MonitoringConfig contains monitoring engine configuration
type MonitoringConfig struct {
	Frameworks        []string
	AssessmentWindow  time.Duration
	ExpiryWarningDays int
	EscalateAfter     time.Duration
}

// NotificationConfig contains alert delivery configuration
type NotificationConfig struct {
	SlackWebhookURL string
	SlackChannel    string
	MinSeverity     string
}

// SecurityConfig contains secrets handling configuration
type SecurityConfig struct {
	// Hex-encoded 32 byte key sealing adapter credentials at rest
	CredentialKey string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsSlice("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			Environment:     getEnv("ENVIRONMENT", "development"),
			APIToken:        getEnv("OPS_API_TOKEN", ""),
			RateLimit:       getEnvAsFloat("SERVER_RATE_LIMIT", 20),
			RateBurst:       getEnvAsInt("SERVER_RATE_BURST", 40),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "complyflow"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./complyflow.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Collection: CollectionConfig{
			BatchSize:       getEnvAsInt("COLLECTION_BATCH_SIZE", 5),
			MaxRetries:      getEnvAsInt("COLLECTION_MAX_RETRIES", 3),
			BaseDelay:       getEnvAsDuration("COLLECTION_BASE_DELAY", time.Second),
			MaxDelay:        getEnvAsDuration("COLLECTION_MAX_DELAY", 30*time.Second),
			MaxJitter:       getEnvAsDuration("COLLECTION_MAX_JITTER", time.Second),
			RequestTimeout:  getEnvAsDuration("COLLECTION_REQUEST_TIMEOUT", 30*time.Second),
			RateLimit:       getEnvAsFloat("COLLECTION_RATE_LIMIT", 10),
			RateBurst:       getEnvAsInt("COLLECTION_RATE_BURST", 5),
			BreakerFailures: uint32(getEnvAsInt("COLLECTION_BREAKER_FAILURES", 3)),
			BreakerCooldown: getEnvAsDuration("COLLECTION_BREAKER_COOLDOWN", 5*time.Minute),
			DefaultLookback: getEnvAsDuration("COLLECTION_DEFAULT_LOOKBACK", 24*time.Hour),
			AdapterFile:     getEnv("COLLECTION_ADAPTER_FILE", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
			StartupDelay: getEnvAsDuration("SCHEDULER_STARTUP_DELAY", 30*time.Second),
			HistorySize:  getEnvAsInt("SCHEDULER_HISTORY_SIZE", 100),
			EvidenceCollection: JobConfig{
				Enabled:  getEnvAsBool("JOB_EVIDENCE_COLLECTION_ENABLED", true),
				Interval: getEnvAsDuration("JOB_EVIDENCE_COLLECTION_INTERVAL", 6*time.Hour),
			},
			ComplianceMonitoring: JobConfig{
				Enabled:  getEnvAsBool("JOB_COMPLIANCE_MONITORING_ENABLED", true),
				Interval: getEnvAsDuration("JOB_COMPLIANCE_MONITORING_INTERVAL", 24*time.Hour),
			},
			AdapterHealth: JobConfig{
				Enabled:  getEnvAsBool("JOB_ADAPTER_HEALTH_ENABLED", true),
				Interval: getEnvAsDuration("JOB_ADAPTER_HEALTH_INTERVAL", 15*time.Minute),
			},
			AlertEscalation: JobConfig{
				Enabled:  getEnvAsBool("JOB_ALERT_ESCALATION_ENABLED", true),
				Interval: getEnvAsDuration("JOB_ALERT_ESCALATION_INTERVAL", time.Hour),
			},
		},
		Monitoring: MonitoringConfig{
			Frameworks:        getEnvAsSlice("MONITORING_FRAMEWORKS", []string{"soc2", "iso27001", "pci_dss", "hipaa"}),
			AssessmentWindow:  getEnvAsDuration("MONITORING_ASSESSMENT_WINDOW", 30*24*time.Hour),
			ExpiryWarningDays: getEnvAsInt("MONITORING_EXPIRY_WARNING_DAYS", 30),
			EscalateAfter:     getEnvAsDuration("MONITORING_ESCALATE_AFTER", 72*time.Hour),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			SlackChannel:    getEnv("SLACK_CHANNEL", "#compliance-alerts"),
			MinSeverity:     getEnv("NOTIFY_MIN_SEVERITY", "error"),
		},
		Security: SecurityConfig{
			CredentialKey: getEnv("CREDENTIAL_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.Environment == "production" && c.Server.APIToken == "" {
		return fmt.Errorf("OPS_API_TOKEN is required in production")
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Collection.BatchSize < 1 {
		return fmt.Errorf("collection batch size must be positive: %d", c.Collection.BatchSize)
	}

	if c.Collection.MaxRetries < 0 {
		return fmt.Errorf("collection max retries must not be negative: %d", c.Collection.MaxRetries)
	}

	if c.Collection.BaseDelay <= 0 || c.Collection.MaxDelay < c.Collection.BaseDelay {
		return fmt.Errorf("invalid backoff window: base %s, max %s", c.Collection.BaseDelay, c.Collection.MaxDelay)
	}

	if c.Scheduler.HistorySize < 1 {
		return fmt.Errorf("scheduler history size must be positive: %d", c.Scheduler.HistorySize)
	}

	for name, job := range map[string]JobConfig{
		"evidence_collection":   c.Scheduler.EvidenceCollection,
		"compliance_monitoring": c.Scheduler.ComplianceMonitoring,
		"adapter_health":        c.Scheduler.AdapterHealth,
		"alert_escalation":      c.Scheduler.AlertEscalation,
	} {
		if job.Enabled && job.Interval <= 0 {
			return fmt.Errorf("job %s needs a positive interval", name)
		}
	}

	if k := c.Security.CredentialKey; k != "" && len(k) != 64 {
		return fmt.Errorf("CREDENTIAL_KEY must be 64 hex characters")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
