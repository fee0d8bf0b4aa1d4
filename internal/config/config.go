package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/LeventeLantos/outreach-scheduler/internal/oauth1"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Scheduler   SchedulerConfig
	Email       EmailConfig
	Reaper      ReaperConfig
	Provider    ProviderConfig
	Log         LogConfig
	Credentials Credentials
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS" validate:"required"`
}

type DatabaseConfig struct {
	PostgresURL   string `env:"POSTGRES_URL" validate:"omitempty,url"`
	RunMigrations bool   `env:"RUN_MIGRATIONS"`
}

type RedisConfig struct {
	Enabled  bool
	Address  string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" validate:"gte=0"`
	TTL      time.Duration `env:"REDIS_TTL_SECONDS" validate:"omitempty,gt=0"`
}

type SchedulerConfig struct {
	Interval  time.Duration `env:"SCHED_INTERVAL_SECONDS" validate:"gt=0"`
	BatchSize int           `env:"SCHED_BATCH_SIZE" validate:"gt=0"`
	AutoStart bool          `env:"SCHED_AUTOSTART"`
}

type EmailConfig struct {
	SweepInterval time.Duration `env:"EMAIL_SWEEP_INTERVAL_SECONDS" validate:"gt=0"`
	CampaignBatch int           `env:"EMAIL_CAMPAIGN_BATCH" validate:"gt=0"`
	SendBatch     int           `env:"EMAIL_SEND_BATCH" validate:"gt=0"`
	RatePerSecond int           `env:"EMAIL_RATE_PER_SECOND" validate:"gt=0"`
	From          string        `env:"EMAIL_FROM"`
}

type ReaperConfig struct {
	StaleAfter time.Duration `env:"STALE_AFTER_MINUTES" validate:"gt=0"`
}

type ProviderConfig struct {
	Timeout    time.Duration `env:"PROVIDER_TIMEOUT_SECONDS" validate:"gt=0"`
	TwitterURL string        `env:"TWITTER_API_URL" validate:"omitempty,url"`
	EmailURL   string        `env:"EMAIL_API_URL" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	Format string `env:"LOG_FORMAT" validate:"oneof=json console"`
}

// Credentials are the secrets injected into the signer, the email client
// and the auth middleware at construction. They are never logged.
type Credentials struct {
	TwitterConsumerKey       string `env:"TWITTER_CONSUMER_KEY"`
	TwitterConsumerSecret    string `env:"TWITTER_CONSUMER_SECRET"`
	TwitterAccessToken       string `env:"TWITTER_ACCESS_TOKEN"`
	TwitterAccessTokenSecret string `env:"TWITTER_ACCESS_TOKEN_SECRET"`
	EmailAPIKey              string `env:"EMAIL_API_KEY"`
	JWTSecret                string `env:"AUTH_JWT_SECRET" validate:"omitempty,min=32"`
	ServiceAPIKey            string `env:"SERVICE_API_KEY" validate:"omitempty,min=16"`
}

func (c Credentials) Twitter() oauth1.Credentials {
	return oauth1.Credentials{
		ConsumerKey:       c.TwitterConsumerKey,
		ConsumerSecret:    c.TwitterConsumerSecret,
		AccessToken:       c.TwitterAccessToken,
		AccessTokenSecret: c.TwitterAccessTokenSecret,
	}
}

// LoadAll reads the environment and reports every problem at once.
func LoadAll() (*Config, error) {
	var errs []error

	str := func(key, def string) string {
		return getEnv(key, def)
	}
	req := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: str("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL:   req("POSTGRES_URL"),
			RunMigrations: flag("RUN_MIGRATIONS", true),
		},
		Scheduler: SchedulerConfig{
			Interval:  time.Duration(num("SCHED_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize: num("SCHED_BATCH_SIZE", 25),
			AutoStart: flag("SCHED_AUTOSTART", true),
		},
		Email: EmailConfig{
			SweepInterval: time.Duration(num("EMAIL_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
			CampaignBatch: num("EMAIL_CAMPAIGN_BATCH", 5),
			SendBatch:     num("EMAIL_SEND_BATCH", 50),
			RatePerSecond: num("EMAIL_RATE_PER_SECOND", 10),
			From:          req("EMAIL_FROM"),
		},
		Reaper: ReaperConfig{
			StaleAfter: time.Duration(num("STALE_AFTER_MINUTES", 15)) * time.Minute,
		},
		Provider: ProviderConfig{
			Timeout:    time.Duration(num("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
			TwitterURL: str("TWITTER_API_URL", ""),
			EmailURL:   str("EMAIL_API_URL", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(str("LOG_LEVEL", "info")),
			Format: strings.ToLower(str("LOG_FORMAT", "json")),
		},
		Credentials: Credentials{
			TwitterConsumerKey:       req("TWITTER_CONSUMER_KEY"),
			TwitterConsumerSecret:    req("TWITTER_CONSUMER_SECRET"),
			TwitterAccessToken:       req("TWITTER_ACCESS_TOKEN"),
			TwitterAccessTokenSecret: req("TWITTER_ACCESS_TOKEN_SECRET"),
			EmailAPIKey:              req("EMAIL_API_KEY"),
			JWTSecret:                req("AUTH_JWT_SECRET"),
			ServiceAPIKey:            req("SERVICE_API_KEY"),
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis = RedisConfig{
			Enabled:  true,
			Address:  addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       num("REDIS_DB", 0),
			TTL:      time.Duration(num("REDIS_TTL_SECONDS", 86400)) * time.Second,
		}
	}

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = func() func(*Config) []error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	return func(cfg *Config) []error {
		err := v.Struct(cfg)
		if err == nil {
			return nil
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []error{err}
		}
		out := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fmt.Errorf("invalid %s: must satisfy %s", fe.Field(), constraint(fe)))
		}
		return out
	}
}()

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return v, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
