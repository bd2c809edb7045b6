// Package config loads environment variables into a typed Config.
// Defaults let the server run locally with no environment at all; optional
// integrations (Telegram avatars, Redis cache, identity tokens) stay disabled
// until their variables are set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// Matchmaking
	MaxLobbies          int
	MatchConfirmTimeout time.Duration

	// Telegram avatar lookup
	TelegramBotToken string
	TelegramAPIBase  string

	// Redis avatar cache
	RedisAddr      string
	RedisDB        int
	AvatarCacheTTL time.Duration

	// Admin & identity
	AdminKey                string
	IdentityTokenSecret     string
	IdentityTokenTTL        time.Duration // 0 means tokens never expire
	RequireVerifiedIdentity bool

	OriginPatterns []string
}

// Load reads the environment and applies defaults. Malformed numeric, duration
// or boolean values are errors.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		TelegramAPIBase: strings.TrimRight(getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"), "/"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		AdminKey:        os.Getenv("ADMIN_KEY"),

		IdentityTokenSecret: os.Getenv("IDENTITY_TOKEN_SECRET"),
	}

	// the bot process historically exported BOT_TOKEN
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", os.Getenv("BOT_TOKEN"))

	var err error
	if cfg.MaxLobbies, err = getEnvInt("MAX_LOBBIES", 10); err != nil {
		return nil, err
	}
	if cfg.MaxLobbies <= 0 {
		return nil, fmt.Errorf("invalid MAX_LOBBIES: must be positive")
	}
	if cfg.MatchConfirmTimeout, err = getEnvDuration("MATCH_CONFIRM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AvatarCacheTTL, err = getEnvDuration("AVATAR_CACHE_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequireVerifiedIdentity, err = getEnvBool("REQUIRE_VERIFIED_IDENTITY", false); err != nil {
		return nil, err
	}

	switch ttl := os.Getenv("IDENTITY_TOKEN_TTL"); ttl {
	case "":
		cfg.IdentityTokenTTL = 24 * time.Hour
	case "never", "0":
		cfg.IdentityTokenTTL = 0
	default:
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid IDENTITY_TOKEN_TTL: %w", err)
		}
		cfg.IdentityTokenTTL = d
	}

	for _, p := range strings.Split(getEnv("ORIGIN_PATTERNS", "*"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.OriginPatterns = append(cfg.OriginPatterns, p)
		}
	}

	return cfg, nil
}

// AvatarsEnabled reports whether Telegram avatar lookup is configured.
func (c *Config) AvatarsEnabled() bool {
	return c.TelegramBotToken != ""
}

// TokensEnabled reports whether identity tokens can be minted and verified.
func (c *Config) TokensEnabled() bool {
	return c.IdentityTokenSecret != ""
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getEnvDuration accepts Go durations ("45s") and bare integers as seconds.
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
