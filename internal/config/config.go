// Package config reads the moderator's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/whisper/modbot/internal/bot"
)

// Config holds application configuration.
type Config struct {
	DiscordToken     string
	RulesFile        string
	ForbiddenTerms   []string
	DeleteDelay      time.Duration
	DeleteTimeout    time.Duration
	BotMessagePolicy bot.Policy
	NATSURL          string
	NATSQueue        string
	RedisAddr        string
	RedisPassword    string
	ClaimTTL         time.Duration
	ReplicaName      string
	OpsAddr          string
	LogLevel         string
	LogFormat        string
}

// Load builds a Config from environment variables, applying defaults for
// anything unset. An unparsable BOT_MESSAGE_POLICY is kept verbatim so
// Validate can report it.
func Load() *Config {
	hostname, _ := os.Hostname()

	return &Config{
		DiscordToken:     getEnv("DISCORD_TOKEN", ""),
		RulesFile:        getEnv("RULES_FILE", ""),
		ForbiddenTerms:   getEnvAsList("FORBIDDEN_TERMS"),
		DeleteDelay:      getEnvAsDuration("DELETE_DELAY", 3*time.Second),
		DeleteTimeout:    getEnvAsDuration("DELETE_TIMEOUT", 10*time.Second),
		BotMessagePolicy: bot.Policy(getEnv("BOT_MESSAGE_POLICY", string(bot.PolicyInspect))),
		NATSURL:          getEnv("NATS_URL", ""),
		NATSQueue:        getEnv("NATS_QUEUE", "modbot"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		ClaimTTL:         getEnvAsDuration("CLAIM_TTL", 10*time.Minute),
		ReplicaName:      getEnv("REPLICA_NAME", hostname),
		OpsAddr:          getEnv("OPS_ADDR", ":9090"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}
}

// Validate reports settings the moderator cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.DiscordToken == "" && c.NATSURL == "" {
		errs = append(errs, errors.New("neither DISCORD_TOKEN nor NATS_URL is set, nothing to moderate"))
	}
	if c.DeleteDelay < 0 {
		errs = append(errs, fmt.Errorf("DELETE_DELAY must not be negative, got %s", c.DeleteDelay))
	}
	if _, err := bot.ParsePolicy(string(c.BotMessagePolicy)); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
