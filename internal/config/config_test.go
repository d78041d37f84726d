package config

import (
	"testing"
	"time"

	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_RunModeValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_RUN_MODE", "daemon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_RUN_MODE")
	}
}

func TestLoad_TestSequenceValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_TEST_SEQUENCE", "strobe")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_TEST_SEQUENCE")
	}
}

func TestLoad_ParticleRequiresTokenWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("PARTICLE_ENABLED", "true")
	t.Setenv("PARTICLE_ACCESS_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when PARTICLE_ENABLED=true without PARTICLE_ACCESS_TOKEN")
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_ImminentWindowMustExceedPregameLead(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("TRACKER_PREGAME_LEAD", "10m")
	t.Setenv("TRACKER_IMMINENT_WINDOW", "5m")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when TRACKER_IMMINENT_WINDOW <= TRACKER_PREGAME_LEAD")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ServiceName != "nhl-goal-light" {
		t.Fatalf("unexpected ServiceName: %q", cfg.ServiceName)
	}
	if cfg.RunMode != RunModePeriodic {
		t.Fatalf("unexpected RunMode: %q", cfg.RunMode)
	}
	if cfg.TestSequence != TestSequenceGameDayGoal {
		t.Fatalf("unexpected TestSequence: %q", cfg.TestSequence)
	}
	if cfg.FeedBaseURL != "http://live.nhle.com/GameData/GCScoreboard" {
		t.Fatalf("unexpected FeedBaseURL: %q", cfg.FeedBaseURL)
	}
	if cfg.FeedMaxRetries != 0 {
		t.Fatalf("unexpected FeedMaxRetries: %d", cfg.FeedMaxRetries)
	}
	if cfg.TrackerLiveInterval != 60*time.Second {
		t.Fatalf("unexpected TrackerLiveInterval: %s", cfg.TrackerLiveInterval)
	}
	if cfg.TrackerIdleInterval != 60*time.Minute {
		t.Fatalf("unexpected TrackerIdleInterval: %s", cfg.TrackerIdleInterval)
	}
	if cfg.TrackerFallbackInterval != 10*time.Minute {
		t.Fatalf("unexpected TrackerFallbackInterval: %s", cfg.TrackerFallbackInterval)
	}
	if cfg.TrackerPregameLead != 5*time.Minute {
		t.Fatalf("unexpected TrackerPregameLead: %s", cfg.TrackerPregameLead)
	}
	if cfg.TrackerImminentWindow != 65*time.Minute {
		t.Fatalf("unexpected TrackerImminentWindow: %s", cfg.TrackerImminentWindow)
	}
	if cfg.DispatchLiveInterval != 60*time.Second {
		t.Fatalf("unexpected DispatchLiveInterval: %s", cfg.DispatchLiveInterval)
	}
	if cfg.DispatchIdleInterval != 10*time.Minute {
		t.Fatalf("unexpected DispatchIdleInterval: %s", cfg.DispatchIdleInterval)
	}
	if cfg.DispatchWarmup != 20*time.Second {
		t.Fatalf("unexpected DispatchWarmup: %s", cfg.DispatchWarmup)
	}
	if cfg.DispatchWorkers != 4 {
		t.Fatalf("unexpected DispatchWorkers: %d", cfg.DispatchWorkers)
	}
	if cfg.ParticleEnabled {
		t.Fatalf("expected ParticleEnabled=false by default")
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("unexpected LogLevel: %s", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("APP_RUN_MODE", "Test")
	t.Setenv("APP_TEST_SEQUENCE", "GameDay:Goal")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("NHL_FEED_BASE_URL", "http://feed.internal/scoreboard")
	t.Setenv("NHL_FEED_MAX_RETRIES", "2")
	t.Setenv("TRACKER_LIVE_INTERVAL", "30s")
	t.Setenv("PARTICLE_ENABLED", "true")
	t.Setenv("PARTICLE_ACCESS_TOKEN", " token-abc ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.RunMode != RunModeTest {
		t.Fatalf("expected run mode normalized, got %q", cfg.RunMode)
	}
	if cfg.TestSequence != TestSequenceGameDayGoal {
		t.Fatalf("expected test sequence normalized, got %q", cfg.TestSequence)
	}
	if cfg.FeedBaseURL != "http://feed.internal/scoreboard" {
		t.Fatalf("unexpected FeedBaseURL: %q", cfg.FeedBaseURL)
	}
	if cfg.FeedMaxRetries != 2 {
		t.Fatalf("unexpected FeedMaxRetries: %d", cfg.FeedMaxRetries)
	}
	if cfg.TrackerLiveInterval != 30*time.Second {
		t.Fatalf("unexpected TrackerLiveInterval: %s", cfg.TrackerLiveInterval)
	}
	if cfg.ParticleAccessToken != "token-abc" {
		t.Fatalf("expected token trimmed, got %q", cfg.ParticleAccessToken)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("unexpected LogLevel: %s", cfg.LogLevel)
	}
}

func TestLoad_UptraceDSNFromOTLPHeaders(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", `uptrace-dsn="https://token@api.uptrace.dev/123"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UptraceDSN != "https://token@api.uptrace.dev/123" {
		t.Fatalf("unexpected UptraceDSN: %q", cfg.UptraceDSN)
	}
}
