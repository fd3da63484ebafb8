// Package config reads the server's settings from environment variables.
//
// main calls godotenv.Load() first, so a local .env file fills in anything
// the real environment does not set. Every value except JWT_SECRET has a
// default; a value that is present but malformed is a startup error naming
// the variable.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/campus-clubs/internal/auth"
)

// Config holds everything the server needs to start.
type Config struct {
	Port           int
	DBPath         string
	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	AllowedOrigins []string
	RequestTimeout time.Duration
	LogLevel       slog.Level

	// Credential endpoints (login, register) are throttled per client IP.
	LoginRatePerMinute int

	// Forwarding headers are only honoured when the socket peer falls in
	// one of these ranges. Empty means the peer address is the client.
	TrustedProxies []netip.Prefix
}

// Defaults.
const (
	DefaultPort               = 8080
	DefaultDBPath             = "data/clubs.db"
	DefaultRequestTimeout     = 10 * time.Second
	DefaultLoginRatePerMinute = 10
	DefaultAllowedOrigin      = "http://localhost:3000"
	MinJWTSecretLength        = 16
)

// Load builds a Config from the process environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

// load takes the lookup function so tests don't depend on the real env.
func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		DBPath:         DefaultDBPath,
		AllowedOrigins: []string{DefaultAllowedOrigin},
		LogLevel:       slog.LevelInfo,
	}
	var err error

	if cfg.Port, err = intVar(getenv, "PORT", DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: PORT must be between 1 and 65535, got %d", cfg.Port)
	}

	if v := strings.TrimSpace(getenv("DB_PATH")); v != "" {
		cfg.DBPath = v
	}

	// === JWT SECRET ===
	// No default. The server refuses to start without one.
	cfg.JWTSecret = getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return Config{}, fmt.Errorf("config: JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}

	if cfg.TokenTTL, err = durationVar(getenv, "TOKEN_TTL", auth.DefaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("config: TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}

	if cfg.BcryptCost, err = intVar(getenv, "BCRYPT_COST", auth.DefaultCost); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("config: BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost)
	}

	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if cfg.RequestTimeout, err = durationVar(getenv, "REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		return Config{}, err
	}

	if cfg.LoginRatePerMinute, err = intVar(getenv, "LOGIN_RATE_PER_MINUTE", DefaultLoginRatePerMinute); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerMinute < 0 {
		return Config{}, fmt.Errorf("config: LOGIN_RATE_PER_MINUTE must not be negative, got %d", cfg.LoginRatePerMinute)
	}

	if cfg.TrustedProxies, err = prefixList(getenv, "TRUSTED_PROXIES"); err != nil {
		return Config{}, err
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("config: LOG_LEVEL %q: %w", v, err)
		}
	}

	return cfg, nil
}

func intVar(getenv func(string) string, name string, def int) (int, error) {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", name, v)
	}
	return n, nil
}

func durationVar(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration like 30s or 1h, got %q", name, v)
	}
	return d, nil
}

// prefixList parses a comma list of CIDRs. A bare address is taken as a
// single-host prefix.
func prefixList(getenv func(string) string, name string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range splitList(getenv(name)) {
		if p, err := netip.ParsePrefix(v); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s entry %q is not an address or CIDR", name, v)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// splitList turns "a, b,,c" into [a b c].
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
