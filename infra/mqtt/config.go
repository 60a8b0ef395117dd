package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/qetesh/bratwurstpower/core/model"
)

const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultPublishTimeout = 2 * time.Second
	disconnectQuiesce     = 250

	statusOnline  = "online"
	statusOffline = "offline"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	PublishTimeout time.Duration

	UseTLS             bool
	ClientCert         string
	ClientKey          string
	CABundle           string
	InsecureSkipVerify bool
	TLSConfig          *tls.Config
}

func (c Config) withDefaults() Config {
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	return c
}

// WithUniqueClientID returns a copy of c whose client id carries a random
// suffix, so a short-lived CLI session does not kick the daemon off the broker.
func (c Config) WithUniqueClientID() Config {
	base := c.ClientID
	if base == "" {
		base = "bratwurstpower"
	}
	c.ClientID = base + "-" + uuid.NewString()[:8]
	return c
}

// NewClientOptions builds paho options from Config. The will marks the host
// offline on its status topic.
func NewClientOptions(cfg Config, topics model.Topics) (*paho.ClientOptions, error) {
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.SetWill(topics.Status(), statusOffline, cfg.QoS, true)
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
// The client certificate is optional; if given, both cert and key are needed.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.InsecureSkipVerify}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return nil, errors.New("tls config requires both client_cert and client_key")
	}
	if c.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates in %s", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
