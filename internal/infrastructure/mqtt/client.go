package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/config"
)

// Logger receives handler failures and reconnect notices.
// *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is called for every message on a subscribed topic, on a
// paho goroutine. A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// route is a subscription kept for replay after a reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Client is a broker session mirroring Vega state onto MQTT topics.
//
// The session reconnects on its own; subscriptions are replayed and the
// retained presence message is republished each time it comes back.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu     sync.RWMutex
	routes map[string]route

	online       atomic.Bool
	onConnect    atomic.Pointer[func()]
	onDisconnect atomic.Pointer[func(error)]
	logger       atomic.Pointer[Logger]
}

// Connect opens a session with the broker described by cfg.
//
// Returns:
//   - *Client: Connected session; online presence already published
//   - error: ErrDisabled when MQTT is off, ErrConnectionFailed otherwise
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := newClient(cfg)
	tok := c.paho.Connect()
	if err := wait(tok, ErrConnectionFailed); err != nil {
		c.paho.Disconnect(0)
		return nil, err
	}

	// The OnConnect hook runs asynchronously; mark online now so callers
	// can publish straight away.
	c.online.Store(true)
	return c, nil
}

// newClient builds a session without dialling.
func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		routes: make(map[string]route),
	}

	opts := brokerOptions(cfg)
	setWill(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.getLogger(); log != nil {
			log.Warn("mqtt reconnecting", "host", cfg.Broker.Host, "port", cfg.Broker.Port)
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	return c
}

// Topics returns the topic builders for this session's prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) handleConnect() {
	c.online.Store(true)

	c.mu.RLock()
	for topic, r := range c.routes {
		c.paho.Subscribe(topic, r.qos, c.dispatch(r.handler))
	}
	c.mu.RUnlock()

	c.paho.Publish(c.topics.SystemStatus(), c.qos(), true, presencePayload(presenceOnline, c.cfg.Broker.ClientID, ""))

	if fn := c.onConnect.Load(); fn != nil {
		(*fn)()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.online.Store(false)
	if fn := c.onDisconnect.Load(); fn != nil {
		(*fn)(err)
	}
}

// Close publishes a graceful offline presence and disconnects. A nil
// client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		tok := c.paho.Publish(c.topics.SystemStatus(), c.qos(), true,
			presencePayload(presenceOffline, c.cfg.Broker.ClientID, reasonShutdown))
		tok.WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMS)
	c.online.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.paho.IsConnected()
}

// SetOnConnect installs a hook run after every (re)connect. Nil clears it.
func (c *Client) SetOnConnect(fn func()) {
	if fn == nil {
		c.onConnect.Store(nil)
		return
	}
	c.onConnect.Store(&fn)
}

// SetOnDisconnect installs a hook run when the session drops. Nil clears it.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	if fn == nil {
		c.onDisconnect.Store(nil)
		return
	}
	c.onDisconnect.Store(&fn)
}

// SetLogger sets the logger for handler failures. Nil silences them.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		c.logger.Store(nil)
		return
	}
	c.logger.Store(&logger)
}

func (c *Client) getLogger() Logger {
	if p := c.logger.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- validated 0..2 by config
}

// dispatch adapts a MessageHandler to paho, logging errors and panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		log := c.getLogger()
		defer func() {
			if r := recover(); r != nil && log != nil {
				log.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil && log != nil {
			log.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
