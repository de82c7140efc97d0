package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	defaultServerAddress     = ":8080"
	defaultDatabaseDSN       = ""
	defaultChapaBaseURL      = "https://api.chapa.co/v1"
	defaultCallbackBaseURL   = "http://localhost:8080"
	defaultCurrency          = "ETB"
	defaultAppEnv            = "development"
	defaultLogLevel          = "debug"
	defaultReconcileInterval = 30 * time.Second
)

// Config holds the full configuration surface. It is constructed once and
// passed to the components explicitly; nothing reads the environment later.
type Config struct {
	ServerAddr         string
	DatabaseDSN        string
	ChapaBaseURL       string
	ChapaSecretKey     string
	WebhookSecret      string
	CallbackBaseURL    string
	Currency           string
	AppEnv             string
	SkipSignatureCheck bool
	ReconcileInterval  time.Duration
	AuthTokenKey       string
	LogLevel           string
}

var (
	once      sync.Once
	singleton *Config
)

// New returns new Config. It parses command line and environment variables only once.
func New() (*Config, error) {
	once.Do(func() {
		cfg := Config{}

		// initialize flags
		flag.StringVar(&cfg.ServerAddr, "a", defaultServerAddress, "gebeya server address")
		flag.StringVar(&cfg.DatabaseDSN, "d", defaultDatabaseDSN, "gebeya database DSN")
		flag.StringVar(&cfg.ChapaBaseURL, "c", defaultChapaBaseURL, "chapa gateway base URL")
		flag.StringVar(&cfg.CallbackBaseURL, "b", defaultCallbackBaseURL, "payment callback base URL")
		flag.StringVar(&cfg.AppEnv, "e", defaultAppEnv, "execution mode: production, development or test")
		flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")
		flag.DurationVar(&cfg.ReconcileInterval, "i", defaultReconcileInterval, "pending order reconcile interval")
		flag.Parse()

		cfg.Currency = defaultCurrency

		// if environment variable is set, then using it
		if runAddrEnv := os.Getenv("RUN_ADDRESS"); runAddrEnv != "" {
			cfg.ServerAddr = runAddrEnv
		}
		if dataBaseURIEnv := os.Getenv("DATABASE_URI"); dataBaseURIEnv != "" {
			cfg.DatabaseDSN = dataBaseURIEnv
		}
		if baseURLEnv := os.Getenv("CHAPA_BASE_URL"); baseURLEnv != "" {
			cfg.ChapaBaseURL = baseURLEnv
		}
		if callbackEnv := os.Getenv("CALLBACK_BASE_URL"); callbackEnv != "" {
			cfg.CallbackBaseURL = callbackEnv
		}
		if appEnv := os.Getenv("APP_ENV"); appEnv != "" {
			cfg.AppEnv = appEnv
		}
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			cfg.LogLevel = logLevelEnv
		}
		if intervalEnv := os.Getenv("RECONCILE_INTERVAL"); intervalEnv != "" {
			if d, err := time.ParseDuration(intervalEnv); err == nil {
				cfg.ReconcileInterval = d
			}
		}
		if skipEnv := os.Getenv("CHAPA_SKIP_SIGNATURE"); skipEnv != "" {
			if v, err := strconv.ParseBool(skipEnv); err == nil {
				cfg.SkipSignatureCheck = v
			}
		}

		// secrets come from the environment only
		cfg.ChapaSecretKey = os.Getenv("CHAPA_SECRET_KEY")
		cfg.WebhookSecret = os.Getenv("CHAPA_WEBHOOK_SECRET")
		cfg.AuthTokenKey = os.Getenv("AUTH_TOKEN_KEY")

		singleton = &cfg
	})

	return singleton, nil
}

// IsProduction reports whether the service runs in production mode.
// Outside production the reconciler re-verifies webhook statuses against
// the gateway instead of trusting the delivered payload.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks that required secrets and URLs are present.
func (c *Config) Validate() error {
	if c.ChapaSecretKey == "" {
		return errors.New("CHAPA_SECRET_KEY is not configured")
	}
	if c.WebhookSecret == "" && !c.SkipSignatureCheck {
		return errors.New("CHAPA_WEBHOOK_SECRET is not configured")
	}
	if c.SkipSignatureCheck && c.IsProduction() {
		return errors.New("CHAPA_SKIP_SIGNATURE must not be set in production")
	}
	if c.AuthTokenKey == "" {
		return errors.New("AUTH_TOKEN_KEY is not configured")
	}
	return nil
}
