package config

import (
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envPrefix = "PRODUCTAPP"

type Config struct {
	ServiceName        string        `envconfig:"SERVICE_NAME" default:"product-console"`
	ListenAddr         string        `envconfig:"LISTEN_ADDR" default:":8080"`
	JaegerEndpoint     string        `envconfig:"JAEGER_ENDPOINT"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	Remote             Remote        `envconfig:"REMOTE"`
}

// Remote configures the record service client.
type Remote struct {
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8081/services/apexrest/ProductTableController"`
	Token   string `envconfig:"TOKEN"`
	// Zero means the client never gives up on its own.
	Timeout             time.Duration `envconfig:"TIMEOUT" default:"0s"`
	BreakerMaxFailures  int           `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerResetTimeout time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address must not be empty")
	}
	if c.SessionIdleTimeout < 0 {
		return errors.New("session idle timeout must not be negative")
	}
	return c.Remote.Validate()
}

func (r Remote) Validate() error {
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return errors.Wrap(err, "invalid remote base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("remote base url must be http(s), got %q", r.BaseURL)
	}
	if r.Timeout < 0 {
		return errors.New("remote timeout must not be negative")
	}
	if r.BreakerMaxFailures < 1 {
		return errors.New("breaker max failures must be at least 1")
	}
	return nil
}
