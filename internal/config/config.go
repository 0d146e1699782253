package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix namespaces every setting, e.g. EDUADMIN_API_BASE_URL.
const EnvPrefix = "EDUADMIN"

// DefaultAPIBaseURL is the REST API root the console talks to when nothing is configured.
const DefaultAPIBaseURL = "http://0.0.0.0:8000/"

// Route gate policies.
const (
	PolicyPermissive = "permissive"
	PolicyStrict     = "strict"
)

// Config is the fully resolved process configuration.
type Config struct {
	Addr          string
	Env           string
	APIBaseURL    string
	APITimeout    time.Duration // zero means no client-side timeout
	APIPageSize   int
	DBPath        string
	StaticDir     string
	RoutePolicy   string
	LogLevel      string
	SentryDSN     string
	Release       string
	ResendKey     string
	EmailFrom     string
	RateLimit     int
	SlowRequestMs int
	SlowQueryMs   int
	SecureCookies bool
	CSRFKey       []byte
	SessionKey    [32]byte
}

// IsProduction reports whether secrets must be supplied explicitly.
func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

var (
	ErrBadKey      = errors.New("key must be 64 hex characters (32 bytes)")
	ErrMissingKey  = errors.New("key is required in production")
	ErrBadPolicy   = errors.New("route policy must be permissive or strict")
	ErrBadPageSize = errors.New("api page size must be positive")
)

// Load reads an optional .env file, then the environment, and validates the result.
// PRE: none
// POST: returns a Config with every key resolved, or the first validation error
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("env", "development")
	v.SetDefault("api_base_url", DefaultAPIBaseURL)
	v.SetDefault("api_timeout", time.Duration(0))
	v.SetDefault("api_page_size", 10)
	v.SetDefault("db_path", "eduadmin.db")
	v.SetDefault("static_dir", "")
	v.SetDefault("route_policy", PolicyPermissive)
	v.SetDefault("log_level", "info")
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("release", "")
	v.SetDefault("resend_key", "")
	v.SetDefault("email_from", "noreply@localhost")
	v.SetDefault("rate_limit", 10)
	v.SetDefault("slow_request_ms", 200)
	v.SetDefault("slow_query_ms", 50)
	v.SetDefault("csrf_key", "")
	v.SetDefault("session_key", "")

	cfg := Config{
		Addr:          v.GetString("addr"),
		Env:           strings.ToLower(v.GetString("env")),
		APIBaseURL:    v.GetString("api_base_url"),
		APITimeout:    v.GetDuration("api_timeout"),
		APIPageSize:   v.GetInt("api_page_size"),
		DBPath:        v.GetString("db_path"),
		StaticDir:     v.GetString("static_dir"),
		RoutePolicy:   strings.ToLower(v.GetString("route_policy")),
		LogLevel:      v.GetString("log_level"),
		SentryDSN:     v.GetString("sentry_dsn"),
		Release:       v.GetString("release"),
		ResendKey:     v.GetString("resend_key"),
		EmailFrom:     v.GetString("email_from"),
		RateLimit:     v.GetInt("rate_limit"),
		SlowRequestMs: v.GetInt("slow_request_ms"),
		SlowQueryMs:   v.GetInt("slow_query_ms"),
	}
	cfg.SecureCookies = cfg.IsProduction()
	if !strings.HasSuffix(cfg.APIBaseURL, "/") {
		cfg.APIBaseURL += "/"
	}

	if cfg.RoutePolicy != PolicyPermissive && cfg.RoutePolicy != PolicyStrict {
		return Config{}, fmt.Errorf("%s_ROUTE_POLICY=%q: %w", EnvPrefix, cfg.RoutePolicy, ErrBadPolicy)
	}
	if cfg.APIPageSize <= 0 {
		return Config{}, ErrBadPageSize
	}

	csrfKey, err := loadKey("csrf_key", v.GetString("csrf_key"), cfg.IsProduction())
	if err != nil {
		return Config{}, err
	}
	cfg.CSRFKey = csrfKey

	sessionKey, err := loadKey("session_key", v.GetString("session_key"), cfg.IsProduction())
	if err != nil {
		return Config{}, err
	}
	copy(cfg.SessionKey[:], sessionKey)

	return cfg, nil
}

// loadKey decodes a hex-encoded 32 byte secret. Outside production a missing key is
// replaced by a random one, so sessions and CSRF tokens do not survive a restart.
func loadKey(name, keyHex string, production bool) ([]byte, error) {
	envName := EnvPrefix + "_" + strings.ToUpper(name)
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%s: %w", envName, ErrBadKey)
		}
		return key, nil
	}
	if production {
		return nil, fmt.Errorf("%s: %w", envName, ErrMissingKey)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate %s: %w", envName, err)
	}
	zap.S().Warnw("random_key_generated", "key", envName)
	return key, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
