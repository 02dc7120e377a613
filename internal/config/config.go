package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Sync     Sync   `envPrefix:"SYNC_"`
	API      API    `envPrefix:"API_"`
	Server   Server `envPrefix:"SERVER_"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Sync configures the realtime client and its transport.
type Sync struct {
	URL                 string        `env:"URL" envDefault:"http://localhost:3000"`
	Path                string        `env:"PATH" envDefault:"/socket.io/"`
	Token               string        `env:"TOKEN"`
	ReconnectAttempts   int           `env:"RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay      time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`
	ReconnectDelayMax   time.Duration `env:"RECONNECT_DELAY_MAX" envDefault:"5s"`
	HandshakeTimeout    time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"20s"`
	MaxConnectionErrors int           `env:"MAX_CONNECTION_ERRORS" envDefault:"5"`
	TypingTimeout       time.Duration `env:"TYPING_TIMEOUT" envDefault:"5s"`
	PingInterval        time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	DesktopNotify       bool          `env:"DESKTOP_NOTIFY" envDefault:"false"`
	// Channels are joined on every connect; Kits and Channels are backfilled
	// from the REST API before connecting.
	Channels []int64 `env:"CHANNELS"`
	Kits     []int64 `env:"KITS"`
}

// API configures the REST history client. An empty URL means Sync.URL.
type API struct {
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// Server configures the development backend.
type Server struct {
	Port         int           `env:"PORT" envDefault:"3000"`
	MasterSecret string        `env:"MASTER_SECRET"`
	GinMode      string        `env:"GIN_MODE" envDefault:"release"`
	TLSCertFile  string        `env:"TLS_CERT_FILE"`
	TLSKeyFile   string        `env:"TLS_KEY_FILE"`
	TokenExpiry  time.Duration `env:"TOKEN_EXPIRY" envDefault:"168h"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromEnv reads only the given variables, ignoring the process
// environment.
func LoadConfigFromEnv(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) APIURL() string {
	if c.API.URL != "" {
		return c.API.URL
	}
	return c.Sync.URL
}

func ValidateClient(c Config) error {
	var errs []error
	u, err := url.Parse(c.Sync.URL)
	switch {
	case c.Sync.URL == "":
		errs = append(errs, errors.New("SYNC_URL is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid SYNC_URL: %w", err))
	default:
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("invalid SYNC_URL scheme %q", u.Scheme))
		}
	}
	if c.Sync.Token == "" {
		errs = append(errs, errors.New("SYNC_TOKEN is required"))
	}
	if c.Sync.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("invalid SYNC_RECONNECT_ATTEMPTS"))
	}
	if c.Sync.MaxConnectionErrors <= 0 {
		errs = append(errs, errors.New("invalid SYNC_MAX_CONNECTION_ERRORS"))
	}
	if c.Sync.ReconnectDelayMax < c.Sync.ReconnectDelay {
		errs = append(errs, errors.New("SYNC_RECONNECT_DELAY_MAX is below SYNC_RECONNECT_DELAY"))
	}
	return errors.Join(errs...)
}

func ValidateServer(c Config) error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("invalid SERVER_PORT"))
	}
	if c.Server.MasterSecret == "" {
		errs = append(errs, errors.New("SERVER_MASTER_SECRET is required"))
	}
	if c.Server.TokenExpiry <= 0 {
		errs = append(errs, errors.New("invalid SERVER_TOKEN_EXPIRY"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("SERVER_TLS_CERT_FILE and SERVER_TLS_KEY_FILE must be set together"))
	}
	return errors.Join(errs...)
}
