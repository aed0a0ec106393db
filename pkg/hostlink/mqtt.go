package hostlink

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig describes a broker-backed host link.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"` // topics are <prefix>/command and <prefix>/event
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

// DefaultMQTTPrefix is used when Prefix is empty.
const DefaultMQTTPrefix = "sculpture"

// CommandTopic is where the host publishes set_state lines.
func (c MQTTConfig) CommandTopic() string {
	return c.prefix() + "/command"
}

// EventTopic is where the sculpture publishes event lines.
func (c MQTTConfig) EventTopic() string {
	return c.prefix() + "/event"
}

func (c MQTTConfig) prefix() string {
	p := strings.TrimRight(c.Prefix, "/")
	if p == "" {
		return DefaultMQTTPrefix
	}
	return p
}

// MQTT is a Link over an MQTT broker.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
	q      *lineQueue
	logger *slog.Logger
	closed atomic.Bool
}

// DialMQTT connects to the broker and subscribes to the command topic. The
// subscription is renewed on every reconnect.
func DialMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("hostlink: mqtt broker required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = randomClientID()
	}

	m := &MQTT{cfg: cfg, q: newLineQueue(DefaultQueueSize), logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe(cfg.CommandTopic(), cfg.QoS, m.handle)
		if token.Wait() && token.Error() != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.CommandTopic(), "error", token.Error())
			return
		}
		logger.Info("host link subscribed", "broker", cfg.Broker, "topic", cfg.CommandTopic())
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("hostlink: mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	m.client = client
	return m, nil
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	m.q.pushText(string(msg.Payload()))
}

// TryReadLine implements Link.
func (m *MQTT) TryReadLine() (string, bool) {
	return m.q.TryReadLine()
}

// WriteLine publishes line to the event topic. It does not wait for the
// broker; publish failures are logged from a background goroutine.
func (m *MQTT) WriteLine(line string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	token := m.client.Publish(m.cfg.EventTopic(), m.cfg.QoS, false, line)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			m.logger.Warn("mqtt publish failed", "topic", m.cfg.EventTopic(), "error", token.Error())
		}
	}()
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.client.Disconnect(250)
	return nil
}

func randomClientID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sculpture-%d", time.Now().UnixNano())
	}
	return "sculpture-" + hex.EncodeToString(b)
}
