package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so defaults apply, regardless of
// the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
		"API_BASE_PATH", "DB_PATH", "EST_BASE_SECONDS", "EST_PER_JOB_SECONDS",
		"CRON_SECRET", "REWARDS_BASE_URL", "ACHIEVEMENTS_BASE_URL",
		"RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"IDEMPOTENCY_TTL",
		"AI_BASE_URL", "AI_API_KEY", "AI_MODEL", "AI_CALL_TIMEOUT", "AI_MAX_ATTEMPTS",
		"WORKER_CONCURRENCY", "WORKER_QUEUE_SIZE", "WORKER_STALL_AFTER",
		"WORKER_MAX_STALLED_RETRIES", "WORKER_REAP_INTERVAL", "WORKER_DRIVE_BATCH_SIZE",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.DBPath != "app.db" {
		t.Fatalf("unexpected app defaults: %+v", cfg)
	}
	if cfg.BaseProcessingSeconds != 20 || cfg.PerJobDelaySeconds != 15 {
		t.Fatalf("unexpected estimate defaults: %d/%d", cfg.BaseProcessingSeconds, cfg.PerJobDelaySeconds)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("idempotency ttl = %v", cfg.IdempotencyTTL)
	}
	if cfg.AI.Model != "gpt-4o-mini" || cfg.AI.CallTimeout != 60*time.Second || cfg.AI.MaxAttempts != 3 {
		t.Fatalf("unexpected AI defaults: %+v", cfg.AI)
	}
	w := cfg.Worker
	if w.Concurrency != 4 || w.QueueSize != 256 || w.StallAfter != 5*time.Minute ||
		w.MaxStalledRetries != 2 || w.ReapInterval != time.Minute || w.DriveBatchSize != 10 {
		t.Fatalf("unexpected worker defaults: %+v", w)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 || cfg.OTEL.ServiceName != "go-reading-backend" {
		t.Fatalf("unexpected OTEL defaults: %+v", cfg.OTEL)
	}
	if cfg.CronSecret != "" || cfg.SwaggerEnabled {
		t.Fatalf("unsafe defaults: %+v", cfg)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "WARNING") // normalizes to "warn"
	t.Setenv("GIN_MODE", "speedy")   // unknown falls back to release
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("WORKER_STALL_AFTER", "90s")
	t.Setenv("AI_MAX_ATTEMPTS", "5")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" || cfg.LogLevel != "warn" || cfg.GinMode != "release" {
		t.Fatalf("normalization wrong: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path = %q", cfg.APIBasePath)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Worker.StallAfter != 90*time.Second || cfg.AI.MaxAttempts != 5 {
		t.Fatalf("overrides lost: %+v %+v", cfg.Worker, cfg.AI)
	}
	if cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("sample ratio = %v", cfg.OTEL.SampleRatio)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		value   string
		wantSub string
	}{
		{"bad log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"zero attempts", "AI_MAX_ATTEMPTS", "0", "AI_MAX_ATTEMPTS"},
		{"zero concurrency", "WORKER_CONCURRENCY", "0", "WORKER_CONCURRENCY"},
		{"zero queue", "WORKER_QUEUE_SIZE", "0", "WORKER_QUEUE_SIZE"},
		{"negative retries", "WORKER_MAX_STALLED_RETRIES", "-1", "WORKER_MAX_STALLED_RETRIES"},
		{"zero drive batch", "WORKER_DRIVE_BATCH_SIZE", "0", "WORKER_DRIVE_BATCH_SIZE"},
		{"zero burst", "RATE_BURST", "0", "RATE_BURST"},
		{"negative rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"negative estimate", "EST_BASE_SECONDS", "-5", "estimate"},
		{"sampler out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
		{"zero header bytes", "MAX_HEADER_BYTES", "-1", "MAX_HEADER_BYTES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load accepted %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "On")
	if !getbool("X_BOOL", false) {
		t.Fatal("getbool failed to parse On")
	}
	t.Setenv("X_BOOL", "off")
	if getbool("X_BOOL", true) {
		t.Fatal("getbool failed to parse off")
	}
	t.Setenv("X_BOOL", "maybe")
	if !getbool("X_BOOL", true) {
		t.Fatal("getbool should keep the default for junk input")
	}

	t.Setenv("X_INT", "junk")
	if getint("X_INT", 7) != 7 {
		t.Fatal("getint should keep the default for junk input")
	}
	t.Setenv("X_DUR", "250ms")
	if getdur("X_DUR", time.Second) != 250*time.Millisecond {
		t.Fatal("getdur failed to parse 250ms")
	}

	if got := normalizeBasePath(""); got != "/" {
		t.Fatalf("empty base path = %q", got)
	}
	if got := normalizeBasePath("v1/"); got != "/v1" {
		t.Fatalf("base path = %q", got)
	}
	if got := normalizeBasePath("/"); got != "/" {
		t.Fatalf("root base path = %q", got)
	}
	if got := splitCSV(""); got != nil {
		t.Fatalf("splitCSV empty = %v", got)
	}
}
