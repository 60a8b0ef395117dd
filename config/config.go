// Package config loads the daemon configuration from a YAML or JSON file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/core/pins"
	"github.com/qetesh/bratwurstpower/infra/hw"
	"github.com/qetesh/bratwurstpower/infra/hw/monitor"
	"github.com/qetesh/bratwurstpower/infra/mqtt"
)

// EnvPrefix prefixes environment overrides. Nesting uses a double
// underscore, e.g. BWP_MQTT__BROKER sets mqtt.broker.
const EnvPrefix = "BWP_"

// FileName is the config file looked up by Find.
const FileName = "bratwurstpower.yaml"

// SearchPaths are the directories Find looks in, in order.
var SearchPaths = []string{".", "/etc"}

// ErrNotFound is returned by Find when no config file exists.
var ErrNotFound = errors.New("no config file found")

type Config struct {
	General GeneralConfig    `json:"general"`
	MQTT    MQTTConfig       `json:"mqtt"`
	I2C     I2CConfig        `json:"i2c"`
	Sensors []monitor.Config `json:"sensors"`
	Pins    []pins.Def       `json:"pins"`
	Metrics metrics.Config   `json:"metrics"`
}

// GeneralConfig holds the sampling schedule and process settings.
type GeneralConfig struct {
	// MeasurementInterval is the sampling period in seconds.
	MeasurementInterval float64 `json:"measurement_interval"`
	PollIntervalMS      int     `json:"poll_interval_ms"`
	RuntimeDirectory    string  `json:"runtime_directory"`
	LogLevel            string  `json:"log_level"`
	// Hostname names the device in topics and unique ids. Empty means the
	// system host name.
	Hostname string `json:"hostname"`
}

// MQTTConfig configures the broker session.
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	// Server and Port are used when Broker is empty.
	Server              string `json:"server"`
	Port                int    `json:"port"`
	ClientID            string `json:"client_id"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	BaseTopic           string `json:"base_topic"`
	HassDiscoveryPrefix string `json:"hass_discovery_prefix"`
	KeepAliveSeconds    int    `json:"keepalive_seconds"`
	PublishTimeoutMS    int    `json:"publish_timeout_ms"`
	QoS                 byte   `json:"qos"`
	UseTLS              bool   `json:"use_tls"`
	ClientCert          string `json:"client_cert"`
	ClientKey           string `json:"client_key"`
	CABundle            string `json:"ca_bundle"`
	InsecureSkipVerify  bool   `json:"insecure_skip_verify"`
}

// I2CConfig selects the bus and the transfer retry budget.
type I2CConfig struct {
	// Bus is a periph bus name such as "1" or "/dev/i2c-1". Empty picks the
	// first available bus.
	Bus             string `json:"bus"`
	ExpanderAddress uint16 `json:"expander_address"`
	Retries         int    `json:"retries"`
	BackoffMS       int    `json:"backoff_ms"`
}

// Find returns the first existing config file in SearchPaths.
func Find() (string, error) {
	for _, dir := range SearchPaths {
		p := filepath.Join(dir, FileName)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: looked for %s in %s", ErrNotFound, FileName, strings.Join(SearchPaths, ", "))
}

// Load reads path, applies environment overrides and defaults, and validates
// the result. An empty path uses Find.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Find()
		if err != nil {
			return nil, err
		}
		path = p
	}
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	prefix := strings.ToLower(EnvPrefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), prefix)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Sensors, cfg.Pins = nil, nil
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// SetDefaults fills in everything the file left empty.
func (c *Config) SetDefaults() {
	def := Default()
	if c.Sensors == nil {
		c.Sensors = def.Sensors
	}
	if c.Pins == nil {
		c.Pins = def.Pins
	}
	if c.General.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.General.Hostname = h
		}
	}
	if c.MQTT.Broker == "" && c.MQTT.Server != "" {
		port := c.MQTT.Port
		if port == 0 {
			port = 1883
		}
		scheme := "tcp"
		if c.MQTT.UseTLS {
			scheme = "ssl"
		}
		c.MQTT.Broker = fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.Server, port)
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.General.MeasurementInterval <= 0 {
		errs = append(errs, errors.New("general.measurement_interval must be positive"))
	}
	if c.General.PollIntervalMS <= 0 {
		errs = append(errs, errors.New("general.poll_interval_ms must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker or mqtt.server is required when mqtt is enabled"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS))
	}
	if c.I2C.ExpanderAddress > 0x7F {
		errs = append(errs, fmt.Errorf("i2c.expander_address 0x%X is not a 7-bit address", c.I2C.ExpanderAddress))
	}
	if c.I2C.Retries < 0 {
		errs = append(errs, errors.New("i2c.retries must not be negative"))
	}
	seen := map[string]bool{}
	for _, s := range c.Sensors {
		switch {
		case s.Name == "":
			errs = append(errs, errors.New("sensor without name"))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("duplicate sensor name %q", s.Name))
		}
		seen[s.Name] = true
		if s.Address > 0x7F {
			errs = append(errs, fmt.Errorf("sensor %s: address 0x%X is not a 7-bit address", s.Name, s.Address))
		}
		if s.ShuntOhms <= 0 || s.MaxAmps <= 0 {
			errs = append(errs, fmt.Errorf("sensor %s: shunt_ohms and max_amps must be positive", s.Name))
		}
	}
	seen = map[string]bool{}
	for _, p := range c.Pins {
		switch {
		case p.Name == "":
			errs = append(errs, errors.New("pin without name"))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("duplicate pin name %q", p.Name))
		}
		seen[p.Name] = true
		if p.Pin < 0 || p.Pin > 7 {
			errs = append(errs, fmt.Errorf("pin %s: index %d outside 0..7", p.Name, p.Pin))
		}
	}
	return errors.Join(errs...)
}

// MeasurementInterval returns the sampling period.
func (c Config) MeasurementInterval() time.Duration {
	return time.Duration(c.General.MeasurementInterval * float64(time.Second))
}

// PollInterval returns the wake-up granularity of the sampling loop.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.General.PollIntervalMS) * time.Millisecond
}

// ClientConfig converts the MQTT section for infra/mqtt.
func (c Config) ClientConfig() mqtt.Config {
	m := c.MQTT
	clientID := m.ClientID
	if clientID == "" {
		clientID = "bratwurstpower-" + c.General.Hostname
	}
	return mqtt.Config{
		Broker:             m.Broker,
		ClientID:           clientID,
		Username:           m.Username,
		Password:           m.Password,
		QoS:                m.QoS,
		KeepAlive:          time.Duration(m.KeepAliveSeconds) * time.Second,
		PublishTimeout:     time.Duration(m.PublishTimeoutMS) * time.Millisecond,
		UseTLS:             m.UseTLS,
		ClientCert:         m.ClientCert,
		ClientKey:          m.ClientKey,
		CABundle:           m.CABundle,
		InsecureSkipVerify: m.InsecureSkipVerify,
	}
}

// RetryConfig converts the I2C section for the retrying bus.
func (c Config) RetryConfig() hw.RetryConfig {
	return hw.RetryConfig{Retries: c.I2C.Retries, Backoff: time.Duration(c.I2C.BackoffMS) * time.Millisecond}
}
