// Package mqtt connects the daemon to the broker with Eclipse Paho: it
// publishes snapshots, availability and Home Assistant discovery, and feeds
// incoming pin commands to the dispatcher.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/qetesh/bratwurstpower/core/discovery"
	"github.com/qetesh/bratwurstpower/core/logger"
	"github.com/qetesh/bratwurstpower/core/model"
	coremqtt "github.com/qetesh/bratwurstpower/core/mqtt"
	"github.com/qetesh/bratwurstpower/core/pins"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// CommandApplier executes a command document.
type CommandApplier interface {
	Apply(payload []byte) pins.Report
}

// Client is the broker session of one host.
type Client struct {
	cli    pahoClient
	cfg    Config
	topics model.Topics
	log    logger.Logger

	commands  CommandApplier
	discovery []discovery.Message
	// passive clients do not speak for the device's availability.
	passive bool

	closeOnce sync.Once
}

var (
	_ coremqtt.Publisher = (*Client)(nil)
	_ coremqtt.Commander = (*Client)(nil)
)

// Option customises a Client.
type Option func(*Client)

// WithCommands subscribes the command topic on every connect and forwards
// received documents to the applier.
func WithCommands(a CommandApplier) Option {
	return func(c *Client) { c.commands = a }
}

// WithDiscovery republishes the discovery burst on every connect.
func WithDiscovery(msgs []discovery.Message) Option {
	return func(c *Client) { c.discovery = msgs }
}

// Passive turns off the will and the online/offline markers, for clients
// such as the CLI that share the broker with the running daemon.
func Passive() Option {
	return func(c *Client) { c.passive = true }
}

// NewClient starts connecting to the broker. An unreachable broker is not an
// error: paho keeps retrying in the background and the session is set up
// once the connection comes up.
func NewClient(cfg Config, topics model.Topics, log logger.Logger, options ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	opts, err := NewClientOptions(cfg, topics)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, topics: topics, log: log}
	for _, o := range options {
		o(c)
	}
	if c.passive {
		opts.UnsetWill()
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	})

	c.cli = newMQTTClient(opts)
	token := c.cli.Connect()
	if !token.WaitTimeout(cfg.PublishTimeout) {
		log.Warnf("broker %s not reachable yet, retrying in background", cfg.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return c, nil
}

// onConnect runs after every successful (re)connect. Clean sessions lose
// their subscriptions, so everything is set up again.
func (c *Client) onConnect(_ paho.Client) {
	c.log.Infof("MQTT connected to %s", c.cfg.Broker)
	if c.commands != nil {
		token := c.cli.Subscribe(c.topics.Command(), c.cfg.QoS, c.onCommand)
		if err := c.wait(token); err != nil {
			c.log.Errorf("subscribe %s: %v", c.topics.Command(), err)
		}
	}
	if !c.passive {
		if err := c.Publish(c.topics.Status(), []byte(statusOnline), true); err != nil {
			c.log.Errorf("publish availability: %v", err)
		}
	}
	for _, m := range c.discovery {
		if err := c.Publish(m.Topic, m.Payload, true); err != nil {
			c.log.Errorf("publish discovery %s: %v", m.Topic, err)
		}
	}
	c.log.Debugw("session ready", map[string]any{"discovery": len(c.discovery)})
}

func (c *Client) onCommand(_ paho.Client, msg paho.Message) {
	rep := c.commands.Apply(msg.Payload())
	c.log.Debugw("command handled", map[string]any{
		"applied": rep.Applied,
		"unknown": rep.Unknown,
		"invalid": rep.Invalid,
	})
	if rep.Err != nil {
		c.log.Errorf("command on %s: %v", msg.Topic(), rep.Err)
	}
}

func (c *Client) wait(token paho.Token) error {
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		return coremqtt.ErrPublishTimeout
	}
	return token.Error()
}

// Publish sends payload and waits at most PublishTimeout for the broker.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if err := c.wait(c.cli.Publish(topic, c.cfg.QoS, retained, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the session is up.
func (c *Client) Connected() bool { return c.cli.IsConnected() }

// HandleSnapshot publishes the two state documents. Snapshots taken while
// disconnected are dropped, not queued.
func (c *Client) HandleSnapshot(_ context.Context, snap model.Snapshot) error {
	if !c.cli.IsConnected() {
		c.log.Debugf("not connected, skipping snapshot")
		return nil
	}
	power, err := json.Marshal(snap.Power)
	if err != nil {
		return fmt.Errorf("encode powerstats: %w", err)
	}
	pinDoc, err := json.Marshal(snap.Pins)
	if err != nil {
		return fmt.Errorf("encode pinstates: %w", err)
	}
	if err := c.Publish(c.topics.PowerStats(), power, false); err != nil {
		return err
	}
	return c.Publish(c.topics.PinStates(), pinDoc, false)
}

// SendCommand publishes a single-pin command document.
func (c *Client) SendCommand(pin, value string) error {
	if !c.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	payload, err := json.Marshal(map[string]string{pin: value})
	if err != nil {
		return err
	}
	return c.Publish(c.topics.Command(), payload, false)
}

// Close publishes the offline marker and disconnects. It is safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cli.IsConnected() && !c.passive {
			if err := c.Publish(c.topics.Status(), []byte(statusOffline), true); err != nil {
				c.log.Warnf("publish offline marker: %v", err)
			}
		}
		c.cli.Disconnect(disconnectQuiesce)
		c.log.Infof("MQTT disconnected")
	})
}
