package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "NAVAUTH_"

// Config contains client and mock backend configuration.
type Config struct {
	BaseURL        string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DataDir        string        `env:"DATA_DIR"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"text"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	// StorageSecret, when set, derives the storage wrapping key instead of
	// the key file in DataDir.
	StorageSecret string `env:"STORAGE_SECRET"`
	Flow          Flow   `envPrefix:"FLOW_"`
	Mock          Mock   `envPrefix:"MOCK_"`
}

// Flow contains the credential flow's delays.
type Flow struct {
	OTPCountdown int           `env:"OTP_COUNTDOWN" envDefault:"30"`
	CloseDelay   time.Duration `env:"CLOSE_DELAY" envDefault:"300ms"`
	SuccessDelay time.Duration `env:"SUCCESS_DELAY" envDefault:"1500ms"`
}

// Mock contains mock backend parameters.
type Mock struct {
	Addr      string        `env:"ADDR" envDefault:"127.0.0.1:8080"`
	JWTSecret string        `env:"JWT_SECRET" envDefault:"devsecret"`
	AccessTTL time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	OTPTTL    time.Duration `env:"OTP_TTL" envDefault:"5m"`
	EchoOTP   bool          `env:"ECHO_OTP" envDefault:"true"`
}

// Load reads configuration from NAVAUTH_-prefixed environment variables.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
