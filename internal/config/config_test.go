package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

var requiredEnv = map[string]string{
	"POSTGRES_URL":                "postgres://u:p@localhost:5432/db?sslmode=disable",
	"TWITTER_CONSUMER_KEY":        "ck",
	"TWITTER_CONSUMER_SECRET":     "cs",
	"TWITTER_ACCESS_TOKEN":        "at",
	"TWITTER_ACCESS_TOKEN_SECRET": "ats",
	"EMAIL_API_KEY":               "re_123",
	"EMAIL_FROM":                  "News <news@example.com>",
	"AUTH_JWT_SECRET":             "0123456789abcdef0123456789abcdef",
	"SERVICE_API_KEY":             "service-key-123456",
}

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range requiredEnv {
		t.Setenv(k, v)
	}
}

func TestLoadAll_HappyPath_NoRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != requiredEnv["POSTGRES_URL"] {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if !cfg.Database.RunMigrations {
		t.Fatalf("expected RunMigrations default true")
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Scheduler.Interval != 60*time.Second {
		t.Fatalf("unexpected Scheduler.Interval default: %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.BatchSize != 25 {
		t.Fatalf("unexpected Scheduler.BatchSize default: %d", cfg.Scheduler.BatchSize)
	}
	if !cfg.Scheduler.AutoStart {
		t.Fatalf("expected AutoStart default true")
	}
	if cfg.Email.CampaignBatch != 5 || cfg.Email.SendBatch != 50 || cfg.Email.RatePerSecond != 10 {
		t.Fatalf("unexpected email defaults: %+v", cfg.Email)
	}
	if cfg.Reaper.StaleAfter != 15*time.Minute {
		t.Fatalf("unexpected StaleAfter default: %v", cfg.Reaper.StaleAfter)
	}
	if cfg.Provider.Timeout != 10*time.Second {
		t.Fatalf("unexpected provider timeout default: %v", cfg.Provider.Timeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}

	tw := cfg.Credentials.Twitter()
	if tw.ConsumerKey != "ck" || tw.AccessTokenSecret != "ats" {
		t.Fatalf("unexpected twitter credentials: %+v", tw)
	}
	if err := tw.Validate(); err != nil {
		t.Fatalf("expected complete twitter credentials, got %v", err)
	}

	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_HappyPath_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	for key := range requiredEnv {
		t.Run("missing "+key, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)
			_ = os.Unsetenv(key)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error mentioning %s, got: %v", key, err)
			}
		})
	}
}

func TestLoadAll_ReportsAllMissingAtOnce(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for key := range requiredEnv {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error mentioning %s, got: %v", key, err)
		}
	}
}

func TestLoadAll_InvalidValues(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid SCHED_INTERVAL_SECONDS", "SCHED_INTERVAL_SECONDS", "nope"},
		{"invalid SCHED_BATCH_SIZE", "SCHED_BATCH_SIZE", "x"},
		{"invalid SCHED_AUTOSTART", "SCHED_AUTOSTART", "maybe"},
		{"invalid EMAIL_SEND_BATCH", "EMAIL_SEND_BATCH", "fifty"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REDIS_TTL_SECONDS", "REDIS_TTL_SECONDS", "bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)

			// Enable redis only for redis-related invalid ints.
			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}

			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		key string
		val string
	}{
		{"SCHED_BATCH_SIZE", "0"},
		{"SCHED_INTERVAL_SECONDS", "0"},
		{"EMAIL_CAMPAIGN_BATCH", "-1"},
		{"EMAIL_RATE_PER_SECOND", "0"},
		{"STALE_AFTER_MINUTES", "0"},
		{"LOG_FORMAT", "xml"},
		{"LOG_LEVEL", "loud"},
		{"TWITTER_API_URL", "not a url"},
		{"AUTH_JWT_SECRET", "short"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestGetEnvBool(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvBool("MISSING", true)
	if err != nil || !got {
		t.Fatalf("expected default true, got %v err=%v", got, err)
	}

	t.Setenv("A", "false")
	got, err = getEnvBool("A", true)
	if err != nil || got {
		t.Fatalf("expected false, got %v err=%v", got, err)
	}

	t.Setenv("BAD", "sometimes")
	if _, err := getEnvBool("BAD", true); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS",
		"RUN_MIGRATIONS",
		"SCHED_INTERVAL_SECONDS",
		"SCHED_BATCH_SIZE",
		"SCHED_AUTOSTART",
		"EMAIL_SWEEP_INTERVAL_SECONDS",
		"EMAIL_CAMPAIGN_BATCH",
		"EMAIL_SEND_BATCH",
		"EMAIL_RATE_PER_SECOND",
		"STALE_AFTER_MINUTES",
		"PROVIDER_TIMEOUT_SECONDS",
		"TWITTER_API_URL",
		"EMAIL_API_URL",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for k := range requiredEnv {
		keys = append(keys, k)
	}
	for _, k := range keys {
		// Register with t.Setenv so the original value is restored.
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}
