package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                        string
	ServiceName                   string
	ServiceVersion                string
	RunMode                       string
	TestSequence                  string
	FeedBaseURL                   string
	FeedTimeout                   time.Duration
	FeedMaxRetries                int
	FeedCircuitEnabled            bool
	FeedCircuitFailureCount       int
	FeedCircuitOpenTimeout        time.Duration
	FeedCircuitHalfOpenMaxReq     int
	ParticleEnabled               bool
	ParticleBaseURL               string
	ParticleAccessToken           string
	ParticleTimeout               time.Duration
	ParticleCircuitEnabled        bool
	ParticleCircuitFailureCount   int
	ParticleCircuitOpenTimeout    time.Duration
	ParticleCircuitHalfOpenMaxReq int
	TrackerLiveInterval           time.Duration
	TrackerIdleInterval           time.Duration
	TrackerFallbackInterval       time.Duration
	TrackerPregameLead            time.Duration
	TrackerImminentWindow         time.Duration
	DispatchLiveInterval          time.Duration
	DispatchIdleInterval          time.Duration
	DispatchWarmup                time.Duration
	DispatchWorkers               int
	UptraceEnabled                bool
	UptraceDSN                    string
	PyroscopeEnabled              bool
	PyroscopeServerAddress        string
	PyroscopeAppName              string
	PyroscopeAuthToken            string
	PyroscopeBasicAuthUser        string
	PyroscopeBasicAuthPassword    string
	PyroscopeUploadRate           time.Duration
	LogLevel                      logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	runMode, err := parseRunMode(getEnv("APP_RUN_MODE", RunModePeriodic))
	if err != nil {
		return Config{}, err
	}

	testSequence, err := parseTestSequence(getEnv("APP_TEST_SEQUENCE", TestSequenceGameDayGoal))
	if err != nil {
		return Config{}, err
	}

	feedTimeout, err := time.ParseDuration(getEnv("NHL_FEED_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NHL_FEED_TIMEOUT: %w", err)
	}
	if feedTimeout <= 0 {
		return Config{}, fmt.Errorf("NHL_FEED_TIMEOUT must be > 0")
	}
	feedMaxRetries, err := getEnvAsInt("NHL_FEED_MAX_RETRIES", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse NHL_FEED_MAX_RETRIES: %w", err)
	}
	if feedMaxRetries < 0 {
		return Config{}, fmt.Errorf("NHL_FEED_MAX_RETRIES must be >= 0")
	}
	feedCircuitEnabled, err := strconv.ParseBool(getEnv("NHL_FEED_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NHL_FEED_CIRCUIT_ENABLED: %w", err)
	}
	feedCircuitFailureCount, err := getEnvAsInt("NHL_FEED_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse NHL_FEED_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if feedCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("NHL_FEED_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	feedCircuitOpenTimeout, err := time.ParseDuration(getEnv("NHL_FEED_CIRCUIT_OPEN_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse NHL_FEED_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if feedCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("NHL_FEED_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	feedCircuitHalfOpenMaxReq, err := getEnvAsInt("NHL_FEED_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse NHL_FEED_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if feedCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("NHL_FEED_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	particleEnabled, err := strconv.ParseBool(getEnv("PARTICLE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PARTICLE_ENABLED: %w", err)
	}
	particleAccessToken := strings.TrimSpace(getEnv("PARTICLE_ACCESS_TOKEN", ""))
	if particleEnabled && particleAccessToken == "" {
		return Config{}, fmt.Errorf("PARTICLE_ACCESS_TOKEN is required when PARTICLE_ENABLED=true")
	}
	particleTimeout, err := time.ParseDuration(getEnv("PARTICLE_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PARTICLE_TIMEOUT: %w", err)
	}
	if particleTimeout <= 0 {
		return Config{}, fmt.Errorf("PARTICLE_TIMEOUT must be > 0")
	}
	particleCircuitEnabled, err := strconv.ParseBool(getEnv("PARTICLE_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PARTICLE_CIRCUIT_ENABLED: %w", err)
	}
	particleCircuitFailureCount, err := getEnvAsInt("PARTICLE_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse PARTICLE_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if particleCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("PARTICLE_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	particleCircuitOpenTimeout, err := time.ParseDuration(getEnv("PARTICLE_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PARTICLE_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if particleCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("PARTICLE_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	particleCircuitHalfOpenMaxReq, err := getEnvAsInt("PARTICLE_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse PARTICLE_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if particleCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("PARTICLE_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	trackerLiveInterval, err := getEnvAsDuration("TRACKER_LIVE_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	trackerIdleInterval, err := getEnvAsDuration("TRACKER_IDLE_INTERVAL", "60m")
	if err != nil {
		return Config{}, err
	}
	trackerFallbackInterval, err := getEnvAsDuration("TRACKER_FALLBACK_INTERVAL", "10m")
	if err != nil {
		return Config{}, err
	}
	trackerPregameLead, err := getEnvAsDuration("TRACKER_PREGAME_LEAD", "5m")
	if err != nil {
		return Config{}, err
	}
	trackerImminentWindow, err := getEnvAsDuration("TRACKER_IMMINENT_WINDOW", "65m")
	if err != nil {
		return Config{}, err
	}
	if trackerImminentWindow <= trackerPregameLead {
		return Config{}, fmt.Errorf("TRACKER_IMMINENT_WINDOW must be > TRACKER_PREGAME_LEAD")
	}

	dispatchLiveInterval, err := getEnvAsDuration("DISPATCH_LIVE_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	dispatchIdleInterval, err := getEnvAsDuration("DISPATCH_IDLE_INTERVAL", "10m")
	if err != nil {
		return Config{}, err
	}
	dispatchWarmup, err := getEnvAsDuration("DISPATCH_WARMUP", "20s")
	if err != nil {
		return Config{}, err
	}
	dispatchWorkers, err := getEnvAsInt("DISPATCH_WORKERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse DISPATCH_WORKERS: %w", err)
	}
	if dispatchWorkers < 1 {
		return Config{}, fmt.Errorf("DISPATCH_WORKERS must be >= 1")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	logLevel := parseLogLevel(getEnv("APP_LOG_LEVEL", "info"))

	cfg := Config{
		AppEnv:                        appEnv,
		ServiceName:                   getEnv("APP_SERVICE_NAME", "nhl-goal-light"),
		ServiceVersion:                getEnv("APP_SERVICE_VERSION", "dev"),
		RunMode:                       runMode,
		TestSequence:                  testSequence,
		FeedBaseURL:                   strings.TrimSpace(getEnv("NHL_FEED_BASE_URL", "http://live.nhle.com/GameData/GCScoreboard")),
		FeedTimeout:                   feedTimeout,
		FeedMaxRetries:                feedMaxRetries,
		FeedCircuitEnabled:            feedCircuitEnabled,
		FeedCircuitFailureCount:       feedCircuitFailureCount,
		FeedCircuitOpenTimeout:        feedCircuitOpenTimeout,
		FeedCircuitHalfOpenMaxReq:     feedCircuitHalfOpenMaxReq,
		ParticleEnabled:               particleEnabled,
		ParticleBaseURL:               strings.TrimSpace(getEnv("PARTICLE_BASE_URL", "https://api.particle.io")),
		ParticleAccessToken:           particleAccessToken,
		ParticleTimeout:               particleTimeout,
		ParticleCircuitEnabled:        particleCircuitEnabled,
		ParticleCircuitFailureCount:   particleCircuitFailureCount,
		ParticleCircuitOpenTimeout:    particleCircuitOpenTimeout,
		ParticleCircuitHalfOpenMaxReq: particleCircuitHalfOpenMaxReq,
		TrackerLiveInterval:           trackerLiveInterval,
		TrackerIdleInterval:           trackerIdleInterval,
		TrackerFallbackInterval:       trackerFallbackInterval,
		TrackerPregameLead:            trackerPregameLead,
		TrackerImminentWindow:         trackerImminentWindow,
		DispatchLiveInterval:          dispatchLiveInterval,
		DispatchIdleInterval:          dispatchIdleInterval,
		DispatchWarmup:                dispatchWarmup,
		DispatchWorkers:               dispatchWorkers,
		UptraceEnabled:                uptraceEnabled,
		UptraceDSN:                    uptraceDSN,
		PyroscopeEnabled:              pyroscopeEnabled,
		PyroscopeServerAddress:        pyroscopeServerAddress,
		PyroscopeAuthToken:            strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:        strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword:    strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:           pyroscopeUploadRate,
		LogLevel:                      logLevel,
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsDuration(key, fallback string) (time.Duration, error) {
	out, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}

	return out, nil
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Run modes. Periodic is the normal long-running service; once performs a
// single refresh-and-push cycle; test pushes a canned sequence to the device
// without touching the feed.
const (
	RunModePeriodic = "periodic"
	RunModeOnce     = "once"
	RunModeTest     = "test"
)

// Test sequences for RunModeTest.
const (
	TestSequenceGoal        = "goal"
	TestSequenceGameDay     = "gameday"
	TestSequenceGameDayGoal = "gameday:goal"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseRunMode(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case RunModePeriodic, RunModeOnce, RunModeTest:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_RUN_MODE %q: valid values are %s, %s, %s", v, RunModePeriodic, RunModeOnce, RunModeTest)
	}
}

func parseTestSequence(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case TestSequenceGoal, TestSequenceGameDay, TestSequenceGameDayGoal:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_TEST_SEQUENCE %q: valid values are %s, %s, %s", v, TestSequenceGoal, TestSequenceGameDay, TestSequenceGameDayGoal)
	}
}
