// Package config reads process configuration from the environment,
// following the same GetEnv/parse-with-default idiom the rest of the
// stack uses rather than a config-file framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is everything the composition root needs to wire up an
// Orchestrator, its adapters, and its operator surface.
type Config struct {
	ProjectID       string
	StatePath       string
	AuditPath       string
	PolicyPath      string
	TemplatesDir    string
	TickInterval    time.Duration
	AdapterTimeout  time.Duration
	HTTPAddr        string
	ReleaseSecret   string
	MaxFailedAttempts int
	MockMode        bool

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	WebhookURL string
	SiteURL    string
	SocialURL  string
}

// FromEnv builds a Config from CO_*-prefixed environment variables,
// defaulting every field that is safe to default.
func FromEnv() Config {
	return Config{
		ProjectID:         getEnv("CO_PROJECT_ID", "default"),
		StatePath:         getEnv("CO_STATE_PATH", "data/state.json"),
		AuditPath:         getEnv("CO_AUDIT_PATH", "data/audit.log"),
		PolicyPath:        getEnv("CO_POLICY_PATH", "configs/policy.yaml"),
		TemplatesDir:      getEnv("CO_TEMPLATES_DIR", "configs/templates"),
		TickInterval:      getEnvDuration("CO_TICK_INTERVAL", time.Minute),
		AdapterTimeout:    getEnvDuration("CO_ADAPTER_TIMEOUT", 10*time.Second),
		HTTPAddr:          getEnv("CO_HTTP_ADDR", ":8099"),
		ReleaseSecret:     getEnv("CO_RELEASE_SECRET", ""),
		MaxFailedAttempts: getEnvInt("CO_MAX_FAILED_ATTEMPTS", 3),
		MockMode:          getEnvBool("CO_MOCK_MODE", false),

		SMTPHost: getEnv("CO_SMTP_HOST", ""),
		SMTPPort: getEnvInt("CO_SMTP_PORT", 587),
		SMTPUser: getEnv("CO_SMTP_USER", ""),
		SMTPPass: getEnv("CO_SMTP_PASS", ""),
		SMTPFrom: getEnv("CO_SMTP_FROM", ""),

		WebhookURL: getEnv("CO_WEBHOOK_URL", ""),
		SiteURL:    getEnv("CO_SITE_PUBLISH_URL", ""),
		SocialURL:  getEnv("CO_SOCIAL_URL", ""),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
