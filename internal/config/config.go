package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the auth core
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Security     SecurityConfig     `mapstructure:"security"`
	MFA          MFAConfig          `mapstructure:"mfa"`
	Email        EmailConfig        `mapstructure:"email"`
	Captcha      CaptchaConfig      `mapstructure:"captcha"`
	Verification VerificationConfig `mapstructure:"verification"`
	Audit        AuditConfig        `mapstructure:"audit"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Password      PasswordConfig      `mapstructure:"password"`
	Tokens        TokenConfig         `mapstructure:"tokens"`
	LoginThrottle LoginThrottleConfig `mapstructure:"login_throttle"`
}

// PasswordConfig holds password hashing and policy configuration
type PasswordConfig struct {
	MinLength         int    `mapstructure:"min_length"`
	Argon2Memory      uint32 `mapstructure:"argon2_memory"`
	Argon2Iterations  uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism uint8  `mapstructure:"argon2_parallelism"`
}

// TokenConfig holds session and single-use token configuration
type TokenConfig struct {
	SigningSecret  string        `mapstructure:"signing_secret"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	Issuer         string        `mapstructure:"issuer"`
	ResetTTL       time.Duration `mapstructure:"reset_ttl"`
	VerifyTTL      time.Duration `mapstructure:"verify_ttl"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// LoginThrottleConfig holds failed-login escalation configuration
type LoginThrottleConfig struct {
	CaptchaThreshold int           `mapstructure:"captcha_threshold"`
	AttemptTTL       time.Duration `mapstructure:"attempt_ttl"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
}

// MFAConfig holds two-factor authentication configuration
type MFAConfig struct {
	TOTP TOTPConfig `mapstructure:"totp"`
}

// TOTPConfig holds TOTP configuration
type TOTPConfig struct {
	Issuer string `mapstructure:"issuer"`
	Digits int    `mapstructure:"digits"`
	Period int    `mapstructure:"period"`
	Skew   int    `mapstructure:"skew"`
}

// EmailConfig holds outbound email configuration
type EmailConfig struct {
	AppName string `mapstructure:"app_name"`
	BaseURL string `mapstructure:"base_url"`
}

// CaptchaConfig holds human-verification configuration
type CaptchaConfig struct {
	VerifyURL string        `mapstructure:"verify_url"`
	Secret    string        `mapstructure:"secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// VerificationConfig holds email verification settings
type VerificationConfig struct {
	Required bool `mapstructure:"required"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// PIIFields lists field-name substrings whose values are masked in diffs
	PIIFields []string `mapstructure:"pii_fields"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/crmauth")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CRMAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "crmauth")
	v.SetDefault("database.user", "crmauth")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.password.min_length", 12)
	v.SetDefault("security.password.argon2_memory", 65536)
	v.SetDefault("security.password.argon2_iterations", 3)
	v.SetDefault("security.password.argon2_parallelism", 4)

	v.SetDefault("security.tokens.signing_secret", "")
	v.SetDefault("security.tokens.session_ttl", "15m")
	v.SetDefault("security.tokens.issuer", "crmauth")
	v.SetDefault("security.tokens.reset_ttl", "1h")
	v.SetDefault("security.tokens.verify_ttl", "24h")
	v.SetDefault("security.tokens.resend_cooldown", "60s")
	v.SetDefault("security.tokens.sweep_interval", "15m")

	v.SetDefault("security.login_throttle.captcha_threshold", 5)
	v.SetDefault("security.login_throttle.attempt_ttl", "1h")
	v.SetDefault("security.login_throttle.store_timeout", "500ms")

	// MFA defaults
	v.SetDefault("mfa.totp.issuer", "CRM")
	v.SetDefault("mfa.totp.digits", 6)
	v.SetDefault("mfa.totp.period", 30)
	v.SetDefault("mfa.totp.skew", 1)

	// Email defaults
	v.SetDefault("email.app_name", "CRM")
	v.SetDefault("email.base_url", "http://localhost:3000")

	// Captcha defaults
	v.SetDefault("captcha.verify_url", "")
	v.SetDefault("captcha.secret", "")
	v.SetDefault("captcha.timeout", "3s")

	// Verification defaults
	v.SetDefault("verification.required", true)

	// Audit defaults
	v.SetDefault("audit.pii_fields", []string{
		"email", "password", "phone", "nationalid", "taxnumber", "iban", "bankaccount", "cardnumber",
	})
}
