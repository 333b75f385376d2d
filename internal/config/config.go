package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string `mapstructure:"PORT"`
	Env                 string `mapstructure:"ENV"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32  `mapstructure:"DB_MIN_CONNS"`
	PatientsURL         string `mapstructure:"PATIENTS_URL"`
	PatientsHealthURL   string `mapstructure:"PATIENTS_HEALTH_URL"`
	ProceduresURL       string `mapstructure:"PROCEDURES_URL"`
	ProceduresHealthURL string `mapstructure:"PROCEDURES_HEALTH_URL"`
	ContractsURL        string `mapstructure:"CONTRACTS_URL"`
	ContractsHealthURL  string `mapstructure:"CONTRACTS_HEALTH_URL"`
	AuditURL            string `mapstructure:"AUDIT_URL"`
	AuthURL             string `mapstructure:"AUTH_URL"`
	AuthToken           string `mapstructure:"AUTH_TOKEN"`
	AuthRefreshToken    string `mapstructure:"AUTH_REFRESH_TOKEN"`
	DefaultOperatorID   string `mapstructure:"DEFAULT_OPERATOR_ID"`
	HTTPTimeoutSeconds  int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	UploadMaxBytes      int64  `mapstructure:"UPLOAD_MAX_BYTES"`
	SyncImport          bool   `mapstructure:"SYNC_IMPORT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_OPERATOR_ID", "5460ecf6-3ea2-4088-bd8a-6198cfe2d76f")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("UPLOAD_MAX_BYTES", 3*1024*1024)
	v.SetDefault("SYNC_IMPORT", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("PATIENTS_URL")
	v.BindEnv("PATIENTS_HEALTH_URL")
	v.BindEnv("PROCEDURES_URL")
	v.BindEnv("PROCEDURES_HEALTH_URL")
	v.BindEnv("CONTRACTS_URL")
	v.BindEnv("CONTRACTS_HEALTH_URL")
	v.BindEnv("AUDIT_URL")
	v.BindEnv("AUTH_URL")
	v.BindEnv("AUTH_TOKEN")
	v.BindEnv("AUTH_REFRESH_TOKEN")
	v.BindEnv("DEFAULT_OPERATOR_ID")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")
	v.BindEnv("UPLOAD_MAX_BYTES")
	v.BindEnv("SYNC_IMPORT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HTTPTimeout is the bound applied to every outbound service call.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. The remote service
// endpoints have no sensible defaults outside development, so they must be
// set explicitly.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"PATIENTS_URL", c.PatientsURL},
		{"PATIENTS_HEALTH_URL", c.PatientsHealthURL},
		{"PROCEDURES_URL", c.ProceduresURL},
		{"PROCEDURES_HEALTH_URL", c.ProceduresHealthURL},
		{"CONTRACTS_URL", c.ContractsURL},
		{"CONTRACTS_HEALTH_URL", c.ContractsHealthURL},
		{"AUDIT_URL", c.AuditURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	if c.AuthToken == "" && c.AuthRefreshToken == "" {
		return fmt.Errorf("AUTH_TOKEN or AUTH_REFRESH_TOKEN is required for outbound service calls")
	}
	if c.AuthRefreshToken != "" && c.AuthURL == "" {
		return fmt.Errorf("AUTH_URL is required when AUTH_REFRESH_TOKEN is set")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes)
	}
	return nil
}
