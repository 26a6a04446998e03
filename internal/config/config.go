// Package config provides centralized configuration management for hostdesk.
// It loads configuration from CLI flags and environment variables, validates
// required fields, and provides sensible defaults.
//
// CLI flags control which services are mocked (--no-email).
// Environment variables provide secrets and service configuration.
package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/hostdesk/internal/obs"
	"github.com/kuitang/hostdesk/internal/ratelimit"
	"github.com/kuitang/hostdesk/internal/splittoken"
	"golang.org/x/crypto/bcrypt"
)

// Token hasher names accepted by TOKEN_HASHER.
const (
	HasherArgon2id = "argon2id"
	HasherArgon2i  = "argon2i"
	HasherBcrypt   = "bcrypt"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	LogLevel   slog.Level

	logLevelRaw string

	// Database and encryption
	DatabasePath string // SQLite file path
	MasterKey    string // optional, 64 hex characters (32 bytes); enables SQLCipher

	// Mock service flags (controlled by CLI flags, not env vars)
	NoEmail bool // If true, use mock email service (--no-email)

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string

	// Split tokens
	ResetTokenTTL        time.Duration
	EmailChangeTokenTTL  time.Duration
	TokenHasher          string
	Argon2MemoryKiB      int
	Argon2Time           int
	Argon2Threads        int
	BcryptCost           int
	TokenCleanupInterval time.Duration

	// Plan administration; empty leaves plan writes open (development only)
	AdminToken string

	// Reverse proxies allowed to set X-Forwarded-For; empty trusts none
	TrustedProxies []netip.Prefix

	trustedProxiesErr error

	// Rate limiting
	RateLimitConfig ratelimit.Config
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags and returns them. Call before LoadConfig.
func ParseFlags() (noEmail bool, addr string) {
	flag.BoolVar(&noEmail, "no-email", false, "Use mock email service (logs emails to console)")
	flag.StringVar(&addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.Parse()
	return noEmail, addr
}

// LoadConfig loads configuration from environment variables and CLI flag values.
// The addr flag overrides the LISTEN_ADDR env var if non-empty.
func LoadConfig(noEmail bool, addr string) (*Config, error) {
	cfg := &Config{NoEmail: noEmail}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("BASE_URL", ""), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.logLevelRaw = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogLevel, _ = obs.ParseLevel(cfg.logLevelRaw)

	// Database and encryption
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "./hostdesk.db")
	cfg.MasterKey = getEnvOrDefault("MASTER_KEY", "")

	// Resend Email
	cfg.ResendAPIKey = getEnvOrDefault("RESEND_API_KEY", "")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "noreply@hostdesk.local")

	// Split tokens
	cfg.ResetTokenTTL = parseDurationOrDefault("RESET_TOKEN_TTL", time.Hour)
	cfg.EmailChangeTokenTTL = parseDurationOrDefault("EMAIL_CHANGE_TOKEN_TTL", 24*time.Hour)
	cfg.TokenHasher = strings.ToLower(getEnvOrDefault("TOKEN_HASHER", HasherArgon2id))
	cfg.Argon2MemoryKiB = parseIntOrDefault("ARGON2_MEMORY_KIB", int(splittoken.DefaultArgon2Params.MemoryKiB))
	cfg.Argon2Time = parseIntOrDefault("ARGON2_TIME", int(splittoken.DefaultArgon2Params.Time))
	cfg.Argon2Threads = parseIntOrDefault("ARGON2_THREADS", int(splittoken.DefaultArgon2Params.Threads))
	cfg.BcryptCost = parseIntOrDefault("BCRYPT_COST", splittoken.DefaultBcryptCost)
	cfg.TokenCleanupInterval = parseDurationOrDefault("TOKEN_CLEANUP_INTERVAL", 15*time.Minute)

	cfg.AdminToken = getEnvOrDefault("ADMIN_TOKEN", "")
	cfg.TrustedProxies, cfg.trustedProxiesErr = obs.ParseTrustedProxies(getEnvOrDefault("TRUSTED_PROXIES", ""))

	// Rate limiting
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	// Email: require Resend API key unless --no-email
	if !c.NoEmail && c.ResendAPIKey == "" {
		errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if _, err := obs.ParseLevel(c.logLevelRaw); c.logLevelRaw != "" && err != nil {
		errs = append(errs, "LOG_LEVEL must be one of debug, info, warn, error")
	}

	if c.trustedProxiesErr != nil {
		errs = append(errs, fmt.Sprintf("TRUSTED_PROXIES: %v", c.trustedProxiesErr))
	}

	if c.MasterKey != "" {
		if len(c.MasterKey) != 64 {
			errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
		} else if _, err := hex.DecodeString(c.MasterKey); err != nil {
			errs = append(errs, "MASTER_KEY must be hex encoded")
		}
	}

	if c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH must not be empty")
	}

	if c.ResetTokenTTL <= 0 {
		errs = append(errs, "RESET_TOKEN_TTL must be positive")
	}
	if c.EmailChangeTokenTTL <= 0 {
		errs = append(errs, "EMAIL_CHANGE_TOKEN_TTL must be positive")
	}
	if c.TokenCleanupInterval <= 0 {
		errs = append(errs, "TOKEN_CLEANUP_INTERVAL must be positive")
	}

	switch c.TokenHasher {
	case HasherArgon2id, HasherArgon2i:
		if c.Argon2MemoryKiB < 8*c.Argon2Threads || c.Argon2MemoryKiB <= 0 {
			errs = append(errs, "ARGON2_MEMORY_KIB must be at least 8 * ARGON2_THREADS")
		}
		if c.Argon2Time <= 0 {
			errs = append(errs, "ARGON2_TIME must be positive")
		}
		if c.Argon2Threads <= 0 || c.Argon2Threads > 255 {
			errs = append(errs, "ARGON2_THREADS must be between 1 and 255")
		}
	case HasherBcrypt:
		if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
			errs = append(errs, fmt.Sprintf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
		}
	default:
		errs = append(errs, fmt.Sprintf("TOKEN_HASHER must be one of %s, %s, %s", HasherArgon2id, HasherArgon2i, HasherBcrypt))
	}

	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// NewTokenHasher builds the verifier hasher selected by TOKEN_HASHER.
func (c *Config) NewTokenHasher() splittoken.Hasher {
	switch c.TokenHasher {
	case HasherBcrypt:
		return splittoken.NewBcryptHasher(c.BcryptCost)
	case HasherArgon2i:
		return splittoken.NewArgon2Hasher(c.argon2Params(splittoken.Argon2i))
	default:
		return splittoken.NewArgon2Hasher(c.argon2Params(splittoken.Argon2id))
	}
}

// NewPasswordHasher builds the account password hasher. Passwords always use
// argon2id with the configured cost, whatever TOKEN_HASHER says.
func (c *Config) NewPasswordHasher() splittoken.Hasher {
	return splittoken.NewArgon2Hasher(c.argon2Params(splittoken.Argon2id))
}

func (c *Config) argon2Params(variant splittoken.Argon2Variant) splittoken.Argon2Params {
	p := splittoken.DefaultArgon2Params
	p.Variant = variant
	p.MemoryKiB = uint32(c.Argon2MemoryKiB)
	p.Time = uint32(c.Argon2Time)
	p.Threads = uint8(c.Argon2Threads)
	return p
}

// IsDevelopment returns true if any mock services are enabled.
func (c *Config) IsDevelopment() bool {
	return c.NoEmail
}

// DatabaseEncrypted reports whether the database is opened with a key.
func (c *Config) DatabaseEncrypted() bool {
	return c.MasterKey != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "hostdesk server starting...")

	if c.NoEmail {
		fmt.Fprintln(os.Stderr, "  Email:    Mock (--no-email)")
	} else {
		fmt.Fprintf(os.Stderr, "  Email:    Resend (real, from: %s)\n", c.ResendFromEmail)
	}

	if c.DatabaseEncrypted() {
		fmt.Fprintf(os.Stderr, "  Database: %s (SQLCipher, key from MASTER_KEY)\n", c.DatabasePath)
	} else {
		fmt.Fprintf(os.Stderr, "  Database: %s (unencrypted)\n", c.DatabasePath)
	}

	fmt.Fprintf(os.Stderr, "  Tokens:   %s, reset ttl %s, email ttl %s\n", c.TokenHasher, c.ResetTokenTTL, c.EmailChangeTokenTTL)
	if c.AdminToken == "" {
		fmt.Fprintln(os.Stderr, "  Plans:    writes OPEN (ADMIN_TOKEN not set)")
	} else {
		fmt.Fprintln(os.Stderr, "  Plans:    writes require ADMIN_TOKEN")
	}
	fmt.Fprintf(os.Stderr, "  Logging:  %s\n", c.LogLevel)
	if len(c.TrustedProxies) == 0 {
		fmt.Fprintln(os.Stderr, "  Proxies:  none trusted (client IP from peer address)")
	} else {
		fmt.Fprintf(os.Stderr, "  Proxies:  %d trusted prefix(es)\n", len(c.TrustedProxies))
	}
	fmt.Fprintf(os.Stderr, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:     %s\n", c.BaseURL)
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(noEmail bool, addr string) *Config {
	cfg, err := LoadConfig(noEmail, addr)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
