package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath            = "config.toml"
	DefaultHTTPAddr              = ":8080"
	DefaultPGHost                = "127.0.0.1"
	DefaultPGPort                = 5432
	DefaultPGUser                = "postgres"
	DefaultPGDatabase            = "ledgerchat"
	DefaultPGSSLMode             = "disable"
	DefaultWhatsAppBaseURL       = "https://graph.facebook.com"
	DefaultWhatsAppAPIVersion    = "v21.0"
	DefaultOpenAIModel           = "gpt-4o-mini"
	DefaultTranscriptionModel    = "whisper-1"
	DefaultScratchDir            = "data/media"
	DefaultRateMaxRequests       = 20
	DefaultRateWindowSeconds     = 60
	DefaultIdentityMaxAttempts   = 5
	DefaultIdentityWindowSeconds = 600
	DefaultSweepSchedule         = "@every 1m"
	DefaultWorkers               = 4
	DefaultQueueSize             = 256
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Media     MediaConfig     `toml:"media"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" env:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" env:"HTTP_ADDR"`
}

type PostgresConfig struct {
	Host     string `toml:"host" env:"PGHOST"`
	Port     int    `toml:"port" env:"PGPORT"`
	User     string `toml:"user" env:"PGUSER"`
	Password string `toml:"password" env:"PGPASSWORD"`
	Database string `toml:"database" env:"PGDATABASE"`
	SSLMode  string `toml:"sslmode" env:"PGSSLMODE"`
}

// DSN renders the connection string consumed by pgx and golang-migrate.
// Credentials are percent-escaped.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

type WhatsAppConfig struct {
	VerifyToken   string `toml:"verify_token" env:"WHATSAPP_VERIFY_TOKEN" validate:"required"`
	AccessToken   string `toml:"access_token" env:"WHATSAPP_ACCESS_TOKEN" validate:"required"`
	PhoneNumberID string `toml:"phone_number_id" env:"WHATSAPP_PHONE_NUMBER_ID" validate:"required"`
	APIVersion    string `toml:"api_version" env:"WHATSAPP_API_VERSION"`
	BaseURL       string `toml:"base_url" env:"WHATSAPP_BASE_URL" validate:"omitempty,url"`

	// AppSecret enables X-Hub-Signature-256 checks on inbound posts when set.
	AppSecret string `toml:"app_secret" env:"WHATSAPP_APP_SECRET"`
}

type OpenAIConfig struct {
	APIKey             string `toml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL            string `toml:"base_url" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Model              string `toml:"model" env:"OPENAI_MODEL"`
	TranscriptionModel string `toml:"transcription_model" env:"OPENAI_TRANSCRIPTION_MODEL"`
}

type RateLimitConfig struct {
	MaxRequests           int    `toml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" validate:"gt=0"`
	WindowSeconds         int    `toml:"window_seconds" env:"RATE_LIMIT_WINDOW_SECONDS" validate:"gt=0"`
	IdentityMaxAttempts   int    `toml:"identity_max_attempts" validate:"gt=0"`
	IdentityWindowSeconds int    `toml:"identity_window_seconds" validate:"gt=0"`
	SweepSchedule         string `toml:"sweep_schedule"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c RateLimitConfig) IdentityWindow() time.Duration {
	return time.Duration(c.IdentityWindowSeconds) * time.Second
}

type MediaConfig struct {
	ScratchDir     string `toml:"scratch_dir" env:"MEDIA_SCRATCH_DIR"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c MediaConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 30)
}

type DispatchConfig struct {
	Workers                int `toml:"workers" validate:"gt=0"`
	QueueSize              int `toml:"queue_size" validate:"gt=0"`
	IntentTimeoutSeconds   int `toml:"intent_timeout_seconds"`
	SendTimeoutSeconds     int `toml:"send_timeout_seconds"`
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

func (c DispatchConfig) IntentTimeout() time.Duration {
	return secondsOr(c.IntentTimeoutSeconds, 30)
}

func (c DispatchConfig) SendTimeout() time.Duration {
	return secondsOr(c.SendTimeoutSeconds, 15)
}

func (c DispatchConfig) ShutdownTimeout() time.Duration {
	return secondsOr(c.ShutdownTimeoutSeconds, 20)
}

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// Load reads the TOML file at path on top of the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		WhatsApp: WhatsAppConfig{
			APIVersion: DefaultWhatsAppAPIVersion,
			BaseURL:    DefaultWhatsAppBaseURL,
		},
		OpenAI: OpenAIConfig{
			Model:              DefaultOpenAIModel,
			TranscriptionModel: DefaultTranscriptionModel,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:           DefaultRateMaxRequests,
			WindowSeconds:         DefaultRateWindowSeconds,
			IdentityMaxAttempts:   DefaultIdentityMaxAttempts,
			IdentityWindowSeconds: DefaultIdentityWindowSeconds,
			SweepSchedule:         DefaultSweepSchedule,
		},
		Media: MediaConfig{
			ScratchDir:     DefaultScratchDir,
			TimeoutSeconds: 30,
		},
		Dispatch: DispatchConfig{
			Workers:                DefaultWorkers,
			QueueSize:              DefaultQueueSize,
			IntentTimeoutSeconds:   30,
			SendTimeoutSeconds:     15,
			ShutdownTimeoutSeconds: 20,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields that have a matching environment variable set.
// Unset variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields the webhook service cannot run without.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
