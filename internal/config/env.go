// Package config handles environment-based configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir string

	// Network
	ListenAddress string
	Port          int

	// Auth
	AdminToken string

	// Interception
	UserIDField          string
	ClientEventPath      string
	UseCookies           bool
	AutologRequestMethod bool
	AutologRequestPath   bool
	AutologResponseCode  bool
	SessionCookieName    string

	// Reporting
	BotDenylist       []string
	TopValues         int
	ChartCacheTTL     time.Duration
	ChartCacheEntries int

	// Maintenance
	DBMaintenanceSchedule string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("WHISTLE_STATE_DIR", "/var/lib/whistle")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("WHISTLE_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("WHISTLE_PORT", 2280, &errs)

	// --- Auth (must be defined; empty means auth disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("WHISTLE_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Interception ---
	cfg.UserIDField = strings.TrimSpace(envStr("WHISTLE_USER_ID_FIELD", "id"))
	cfg.ClientEventPath = strings.TrimSpace(envStr("WHISTLE_CLIENT_EVENT_PATH", "/whistle"))
	cfg.UseCookies = envBool("WHISTLE_COOKIES", true, &errs)
	cfg.AutologRequestMethod = envBool("WHISTLE_AUTOLOG_REQUEST_METHOD", true, &errs)
	cfg.AutologRequestPath = envBool("WHISTLE_AUTOLOG_REQUEST_PATH", true, &errs)
	cfg.AutologResponseCode = envBool("WHISTLE_AUTOLOG_RESPONSE_CODE", true, &errs)
	cfg.SessionCookieName = strings.TrimSpace(envStr("WHISTLE_SESSION_COOKIE_NAME", "whistle_session"))

	// --- Reporting ---
	cfg.BotDenylist = envStringSlice("WHISTLE_BOT_DENYLIST", []string{"bot", "headlesschrome"}, &errs)
	cfg.TopValues = envInt("WHISTLE_TOP_VALUES", 5, &errs)
	cfg.ChartCacheTTL = envDuration("WHISTLE_CHART_CACHE_TTL", 30*time.Second, &errs)
	cfg.ChartCacheEntries = envInt("WHISTLE_CHART_CACHE_ENTRIES", 64, &errs)

	// --- Maintenance ---
	cfg.DBMaintenanceSchedule = envStr("WHISTLE_DB_MAINTENANCE_SCHEDULE", "0 4 * * *")

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "WHISTLE_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "WHISTLE_LISTEN_ADDRESS must not be empty")
	}
	validatePort("WHISTLE_PORT", cfg.Port, &errs)
	if cfg.UserIDField == "" {
		errs = append(errs, "WHISTLE_USER_ID_FIELD must not be empty")
	}
	if !strings.HasPrefix(cfg.ClientEventPath, "/") {
		errs = append(errs, fmt.Sprintf("WHISTLE_CLIENT_EVENT_PATH must start with '/', got %q", cfg.ClientEventPath))
	}
	if cfg.SessionCookieName == "" {
		errs = append(errs, "WHISTLE_SESSION_COOKIE_NAME must not be empty")
	}
	validatePositive("WHISTLE_TOP_VALUES", cfg.TopValues, &errs)
	validatePositive("WHISTLE_CHART_CACHE_ENTRIES", cfg.ChartCacheEntries, &errs)
	if cfg.ChartCacheTTL <= 0 {
		errs = append(errs, "WHISTLE_CHART_CACHE_TTL must be positive")
	}
	if _, err := cron.ParseStandard(cfg.DBMaintenanceSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("WHISTLE_DB_MAINTENANCE_SCHEDULE: invalid cron expression %q: %v", cfg.DBMaintenanceSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func envStringSlice(key string, defaultVal []string, errs *[]string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid JSON string array %q", key, v))
		return defaultVal
	}
	if out == nil {
		return []string{}
	}
	return out
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
