// README: Config loader with env defaults for HTTP, storage, maps, Firebase and dispatch settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	// AuthEnabled requires a Firebase ID token on every dispatch route.
	AuthEnabled bool
}

type MapsConfig struct {
	// APIKey selects the Google Maps backend; without it durations are
	// estimated from straight-line distance.
	APIKey          string
	BaseURL         string
	Language        string
	Region          string
	Timeout         time.Duration
	Retries         int
	GeocodeCacheTTL time.Duration
	EstimateKmh     float64
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	DatabaseURL     string
	DeviceToken     string
	Sound           string
	Feed            bool
}

type DispatchConfig struct {
	DriverID        string
	Cooldown        time.Duration
	ResponseTimeout time.Duration
	// LedgerRetention bounds how long Redis keeps a driver's pending and
	// abandoned orders after the last ledger write. Zero keeps them.
	LedgerRetention time.Duration
	PushTimeout     time.Duration
	SolverIter      int
	SolverBudget    time.Duration
	Tactics         int
	DefaultMode     string

	DetourMax           float64
	EasyDetour          float64
	HighProfitThreshold float64
	RadiusMinutes       float64
	LocalityDetourMax   float64
}

type Config struct {
	HTTP HTTPConfig
	DB   struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Maps     MapsConfig
	Firebase FirebaseConfig
	Dispatch DispatchConfig
	Log      struct {
		Level string
	}
}

// Load reads the DISPATCH_* environment. DB and Redis are optional: an
// empty DSN or address keeps that state in memory.
func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("DISPATCH_HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = envOrDefaultDuration("DISPATCH_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.HTTP.AuthEnabled = envOrDefaultBool("DISPATCH_HTTP_AUTH", false)

	cfg.DB.DSN = os.Getenv("DISPATCH_DB_DSN")
	cfg.Redis.Addr = os.Getenv("DISPATCH_REDIS_ADDR")

	cfg.Maps.APIKey = os.Getenv("DISPATCH_MAPS_API_KEY")
	cfg.Maps.BaseURL = os.Getenv("DISPATCH_MAPS_BASE_URL")
	cfg.Maps.Language = envOrDefault("DISPATCH_MAPS_LANGUAGE", "zh-CN")
	cfg.Maps.Region = envOrDefault("DISPATCH_MAPS_REGION", "cn")
	cfg.Maps.Timeout = envOrDefaultDuration("DISPATCH_MAPS_TIMEOUT", 5*time.Second)
	cfg.Maps.Retries = envOrDefaultInt("DISPATCH_MAPS_RETRIES", 3)
	cfg.Maps.GeocodeCacheTTL = envOrDefaultDuration("DISPATCH_MAPS_GEOCODE_TTL", 7*24*time.Hour)
	cfg.Maps.EstimateKmh = envOrDefaultFloat("DISPATCH_MAPS_ESTIMATE_KMH", 30)

	cfg.Firebase.ProjectID = os.Getenv("DISPATCH_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("DISPATCH_FIREBASE_CREDENTIALS")
	cfg.Firebase.DatabaseURL = os.Getenv("DISPATCH_FIREBASE_DATABASE_URL")
	cfg.Firebase.DeviceToken = os.Getenv("DISPATCH_FCM_DEVICE_TOKEN")
	cfg.Firebase.Sound = envOrDefault("DISPATCH_FCM_SOUND", "default")
	cfg.Firebase.Feed = envOrDefaultBool("DISPATCH_FIREBASE_FEED", true)

	cfg.Dispatch.DriverID = envOrDefault("DISPATCH_DRIVER_ID", "default")
	cfg.Dispatch.Cooldown = envOrDefaultDuration("DISPATCH_COOLDOWN", 30*time.Minute)
	cfg.Dispatch.ResponseTimeout = envOrDefaultDuration("DISPATCH_RESPONSE_TIMEOUT", 300*time.Second)
	cfg.Dispatch.LedgerRetention = envOrDefaultDuration("DISPATCH_LEDGER_RETENTION", 24*time.Hour)
	cfg.Dispatch.PushTimeout = envOrDefaultDuration("DISPATCH_PUSH_TIMEOUT", 5*time.Second)
	cfg.Dispatch.SolverIter = envOrDefaultInt("DISPATCH_SOLVER_ITERATIONS", 2000)
	cfg.Dispatch.SolverBudget = envOrDefaultDuration("DISPATCH_SOLVER_BUDGET", 200*time.Millisecond)
	cfg.Dispatch.Tactics = envOrDefaultInt("DISPATCH_TACTICS", 0)
	cfg.Dispatch.DefaultMode = envOrDefault("DISPATCH_DEFAULT_MODE", "threshold")
	cfg.Dispatch.DetourMax = envOrDefaultFloat("DISPATCH_MODE2_DETOUR_MAX", 15)
	cfg.Dispatch.EasyDetour = envOrDefaultFloat("DISPATCH_MODE2_EASY_DETOUR", 10)
	cfg.Dispatch.HighProfitThreshold = envOrDefaultFloat("DISPATCH_MODE2_HIGH_PROFIT", 100)
	cfg.Dispatch.RadiusMinutes = envOrDefaultFloat("DISPATCH_MODE3_RADIUS_MINUTES", 20)
	cfg.Dispatch.LocalityDetourMax = envOrDefaultFloat("DISPATCH_MODE3_DETOUR_MAX", 10)

	cfg.Log.Level = envOrDefault("DISPATCH_LOG_LEVEL", "info")
	return cfg, cfg.Validate()
}

// Validate reports every bad value at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("DISPATCH_HTTP_ADDR must not be empty"))
	}
	if c.Maps.Timeout <= 0 {
		errs = append(errs, errors.New("DISPATCH_MAPS_TIMEOUT must be positive"))
	}
	if c.Maps.EstimateKmh <= 0 {
		errs = append(errs, errors.New("DISPATCH_MAPS_ESTIMATE_KMH must be positive"))
	}
	if c.Dispatch.Cooldown <= 0 {
		errs = append(errs, errors.New("DISPATCH_COOLDOWN must be positive"))
	}
	if c.Dispatch.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("DISPATCH_RESPONSE_TIMEOUT must be positive"))
	}
	if r := c.Dispatch.LedgerRetention; r < 0 || (r > 0 && (r < c.Dispatch.Cooldown || r < c.Dispatch.ResponseTimeout)) {
		errs = append(errs, errors.New("DISPATCH_LEDGER_RETENTION must be 0 or at least the cooldown and response timeout"))
	}
	if c.Dispatch.SolverIter <= 0 || c.Dispatch.SolverBudget <= 0 {
		errs = append(errs, errors.New("solver iterations and budget must be positive"))
	}
	for name, v := range map[string]float64{
		"DISPATCH_MODE2_DETOUR_MAX":     c.Dispatch.DetourMax,
		"DISPATCH_MODE2_EASY_DETOUR":    c.Dispatch.EasyDetour,
		"DISPATCH_MODE2_HIGH_PROFIT":    c.Dispatch.HighProfitThreshold,
		"DISPATCH_MODE3_RADIUS_MINUTES": c.Dispatch.RadiusMinutes,
		"DISPATCH_MODE3_DETOUR_MAX":     c.Dispatch.LocalityDetourMax,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.HTTP.AuthEnabled && c.Firebase.ProjectID == "" {
		errs = append(errs, errors.New("DISPATCH_HTTP_AUTH needs DISPATCH_FIREBASE_PROJECT_ID"))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envOrDefaultDuration accepts Go durations ("90s") or bare seconds ("90").
func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
