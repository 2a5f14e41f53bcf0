package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds everything the service reads from the environment. Loaded and
// validated once at startup; a missing token secret in production is fatal
// here, never at request time.
type Config struct {
	Addr        string
	Environment string
	LogLevel    string

	PostgresDSN string

	TokenSecret string
	TokenIssuer string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	LoginMaxAttempts  int
	LoginWindow       time.Duration
	SignupMaxAttempts int
	SignupWindow      time.Duration

	SweepInterval time.Duration
}

// Production reports whether the service runs in production mode. Cookie
// Secure/SameSite attributes key off this.
func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

// Load reads configuration from CREW_* environment variables.
func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("CREW_ADDR", ":8080"),
		Environment: strings.ToLower(getEnv("CREW_ENV", EnvDevelopment)),
		LogLevel:    getEnv("CREW_LOG_LEVEL", "info"),
		PostgresDSN: os.Getenv("CREW_PG_DSN"),
		TokenSecret: strings.TrimSpace(os.Getenv("CREW_AUTH_SECRET")),
		TokenIssuer: getEnv("CREW_AUTH_ISSUER", "crewhub"),
	}

	if cfg.Environment != EnvProduction && cfg.Environment != EnvDevelopment {
		return Config{}, fmt.Errorf("invalid CREW_ENV: %q", cfg.Environment)
	}
	if cfg.Production() && cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("CREW_AUTH_SECRET is required in production")
	}
	if cfg.TokenSecret == "" {
		// Development fallback so a fresh checkout can run without setup.
		cfg.TokenSecret = "crewhub-dev-secret"
	}

	var err error
	if cfg.AccessTTL, err = getEnvDuration("CREW_ACCESS_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getEnvDuration("CREW_REFRESH_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LoginMaxAttempts, err = getEnvInt("CREW_LOGIN_MAX_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	if cfg.LoginWindow, err = getEnvDuration("CREW_LOGIN_WINDOW", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SignupMaxAttempts, err = getEnvInt("CREW_SIGNUP_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.SignupWindow, err = getEnvDuration("CREW_SIGNUP_WINDOW", 60*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getEnvDuration("CREW_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.AccessTTL >= cfg.RefreshTTL {
		return Config{}, fmt.Errorf("CREW_ACCESS_TTL must be shorter than CREW_REFRESH_TTL")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}
