package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string
	LogLevel string

	// CheckOut account API (required).
	CheckoutAPIURL  string
	CheckoutAPIKey  string
	CheckoutTimeout time.Duration

	// Scraped check-in portal.
	CheckinURL string
	CodesPath  string

	// State store backend: "file" or "postgres".
	StateBackend string
	StateFile    string
	DatabaseURL  string

	// Command queue backend: "memory" or "redis".
	QueueBackend string
	RedisAddr    string

	RateLimitPerMin int

	// Check-in scheduler timing.
	InitialDelay    time.Duration
	RunInitialCycle bool
	MinCycle        time.Duration
	MaxCycle        time.Duration
	MinAccountDelay time.Duration
	MaxAccountDelay time.Duration

	// Connection monitor cadence.
	MonitorRetry  time.Duration
	MonitorUpdate time.Duration

	// Single-account local variant.
	LocalUserFile      string
	LocalFetchInterval time.Duration
	LocalMaxLogs       int
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "5000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CheckoutAPIURL:  strings.TrimSuffix(getEnv("CHECKOUT_API_URL", ""), "/"),
		CheckoutAPIKey:  getEnv("CHECKOUT_API_KEY", ""),
		CheckoutTimeout: durationEnv("CHECKOUT_TIMEOUT", 10*time.Second),

		CheckinURL: strings.TrimSuffix(getEnv("CHECKIN_URL", "https://checkin.york.ac.uk"), "/"),
		CodesPath:  getEnv("CODES_PATH", "codes/yrk/cs/2"),

		StateBackend: getEnv("STATE_BACKEND", "file"),
		StateFile:    getEnv("STATE_FILE", "data/state.json"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		QueueBackend: getEnv("QUEUE_BACKEND", "memory"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),

		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),

		InitialDelay:    durationEnv("SCHED_INITIAL_DELAY", 5*time.Second),
		RunInitialCycle: boolEnv("SCHED_RUN_INITIAL_CYCLE", false),
		MinCycle:        durationEnv("SCHED_MIN_CYCLE", time.Hour),
		MaxCycle:        durationEnv("SCHED_MAX_CYCLE", 5*time.Hour),
		MinAccountDelay: durationEnv("SCHED_MIN_ACCOUNT_DELAY", 0),
		MaxAccountDelay: durationEnv("SCHED_MAX_ACCOUNT_DELAY", 10*time.Minute),

		MonitorRetry:  durationEnv("MONITOR_RETRY_INTERVAL", time.Minute),
		MonitorUpdate: durationEnv("MONITOR_UPDATE_INTERVAL", time.Hour),

		LocalUserFile:      getEnv("LOCAL_USER_FILE", "data/user.json"),
		LocalFetchInterval: durationEnv("LOCAL_FETCH_INTERVAL", 10*time.Second),
		LocalMaxLogs:       intEnv("LOCAL_MAX_LOGS", 100),
	}
}

// Validate checks the settings that have no usable fallback. Failing here is
// the only configuration problem that should stop startup; everything else
// degrades with a logged fallback.
func (a App) Validate() error {
	if a.CheckoutAPIURL == "" || a.CheckoutAPIKey == "" {
		return errors.New("CHECKOUT_API_URL and CHECKOUT_API_KEY must be set")
	}
	if a.StateBackend == "postgres" && a.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set when STATE_BACKEND=postgres")
	}
	if a.MinCycle > a.MaxCycle {
		return fmt.Errorf("SCHED_MIN_CYCLE %s exceeds SCHED_MAX_CYCLE %s", a.MinCycle, a.MaxCycle)
	}
	if a.MinAccountDelay > a.MaxAccountDelay {
		return fmt.Errorf("SCHED_MIN_ACCOUNT_DELAY %s exceeds SCHED_MAX_ACCOUNT_DELAY %s", a.MinAccountDelay, a.MaxAccountDelay)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
