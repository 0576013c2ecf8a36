// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gmqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/absmach/gmqtt/pkg/breaker"
	"github.com/absmach/gmqtt/pkg/client"
	"github.com/absmach/gmqtt/pkg/packet"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of all gmqtt environment variables.
const EnvPrefix = "GMQTT_"

var errInvalidConfig = errors.New("invalid config")

// Config holds the client process configuration.
type Config struct {
	// Broker
	URL            string        `env:"URL"             envDefault:"mqtt://localhost:1883"`
	Version        uint8         `env:"VERSION"         envDefault:"4"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT"    envDefault:"10s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`

	// Session
	ClientID      string        `env:"CLIENT_ID"`
	Username      string        `env:"USERNAME"`
	Password      string        `env:"PASSWORD"`
	CleanStart    bool          `env:"CLEAN_START"    envDefault:"true"`
	KeepAlive     time.Duration `env:"KEEP_ALIVE"     envDefault:"60s"`
	Subscriptions []string      `env:"SUBSCRIPTIONS"  envSeparator:","`
	SubscribeQoS  uint8         `env:"SUBSCRIBE_QOS"  envDefault:"0"`

	// Reconnect
	AutoReconnect       bool          `env:"AUTO_RECONNECT"        envDefault:"true"`
	MinBackoff          time.Duration `env:"MIN_BACKOFF"           envDefault:"1s"`
	MaxBackoff          time.Duration `env:"MAX_BACKOFF"           envDefault:"30s"`
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Rate Limiting
	PublishRate  int64 `env:"PUBLISH_RATE"  envDefault:"0"`
	PublishBurst int64 `env:"PUBLISH_BURST" envDefault:"0"`

	// TLS
	CertFile           string `env:"CERT_FILE"`
	KeyFile            string `env:"KEY_FILE"`
	ServerCAFile       string `env:"SERVER_CA_FILE"`
	InsecureSkipVerify bool   `env:"INSECURE_SKIP_VERIFY" envDefault:"false"`

	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`
}

// NewConfig parses Config from the environment.
func NewConfig(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	switch c.Version {
	case packet.V31, packet.V311, packet.V5:
	default:
		return Config{}, fmt.Errorf("%w: unsupported protocol version %d", errInvalidConfig, c.Version)
	}
	if c.SubscribeQoS > 2 {
		return Config{}, fmt.Errorf("%w: subscribe qos %d", errInvalidConfig, c.SubscribeQoS)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return Config{}, fmt.Errorf("%w: cert and key files must be set together", errInvalidConfig)
	}

	return c, nil
}

// TLSConfig loads the configured client certificate and server CA.
// It returns nil when no TLS material is configured.
func (c Config) TLSConfig() (*tls.Config, error) {
	if c.CertFile == "" && c.ServerCAFile == "" && !c.InsecureSkipVerify {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.ServerCAFile != "" {
		caPEM, err := os.ReadFile(c.ServerCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read server CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse server CA bundle: %s", c.ServerCAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// ClientConfig converts Config into a client configuration. Logger and
// metrics are left for the caller to set.
func (c Config) ClientConfig() (client.Config, error) {
	tlsCfg, err := c.TLSConfig()
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.Config{
		URL:            c.URL,
		TLSConfig:      tlsCfg,
		DialTimeout:    c.DialTimeout,
		ConnectTimeout: c.ConnectTimeout,
		Version:        c.Version,
		ClientID:       c.ClientID,
		Username:       c.Username,
		CleanStart:     c.CleanStart,
		KeepAlive:      c.KeepAlive,
		AutoReconnect:  c.AutoReconnect,
		MinBackoff:     c.MinBackoff,
		MaxBackoff:     c.MaxBackoff,
		Breaker: breaker.Config{
			MaxFailures:  c.BreakerMaxFailures,
			ResetTimeout: c.BreakerResetTimeout,
		},
		PublishRate:  c.PublishRate,
		PublishBurst: c.PublishBurst,
	}
	if c.Password != "" {
		cfg.Password = []byte(c.Password)
	}
	for _, topic := range c.Subscriptions {
		cfg.Subscriptions = append(cfg.Subscriptions, packet.Subscription{Topic: topic, QoS: c.SubscribeQoS})
	}

	return cfg, nil
}
