// Package broker maintains MQTT connections to the configured LoRaWAN
// network servers and feeds uplinks into the ingest pipeline.
package broker

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"agrisense/internal/config"
)

// Ingester is the downstream consumer of uplinks. Pre-decoded object
// payloads go through Ingest, raw binary ones through IngestRaw.
type Ingester interface {
	Ingest(ctx context.Context, serial string, readings map[string]float64) (int, error)
	IngestRaw(ctx context.Context, serial string, data []byte, port int) (int, error)
}

// Manager owns one MQTT client per configured broker.
type Manager struct {
	brokers  []config.BrokerConfig
	clients  []mqtt.Client
	ingester Ingester
	log      *zap.Logger
}

// NewManager creates a manager for the configured brokers. Connections
// are not opened until Start.
func NewManager(brokers []config.BrokerConfig, ingester Ingester, log *zap.Logger) *Manager {
	return &Manager{brokers: brokers, ingester: ingester, log: log}
}

// Start connects every broker. A broker that is down at startup keeps
// retrying in the background rather than failing the whole service.
func (m *Manager) Start() error {
	if len(m.brokers) == 0 {
		m.log.Warn("no MQTT brokers configured, ingestion runs HTTP-only")
		return nil
	}
	for i := range m.brokers {
		client, err := m.connect(&m.brokers[i])
		if err != nil {
			return fmt.Errorf("broker %s: %w", m.brokers[i].URL, err)
		}
		m.clients = append(m.clients, client)
	}
	return nil
}

func (m *Manager) connect(bc *config.BrokerConfig) (mqtt.Client, error) {
	reconnect := time.Duration(bc.ReconnectDelay) * time.Second
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	topic := bc.UplinkTopic

	opts := mqtt.NewClientOptions().
		AddBroker(bc.URL).
		SetClientID(bc.ClientID).
		SetUsername(bc.Username).
		SetPassword(bc.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnect).
		SetMaxReconnectInterval(reconnect).
		SetOnConnectHandler(func(c mqtt.Client) {
			m.log.Info("broker connected", zap.String("broker", bc.URL))
			if token := c.Subscribe(topic, 0, m.handleUplink); token.Wait() && token.Error() != nil {
				m.log.Error("uplink subscribe failed",
					zap.String("broker", bc.URL),
					zap.String("topic", topic),
					zap.Error(token.Error()))
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Warn("broker connection lost",
				zap.String("broker", bc.URL), zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

func (m *Manager) handleUplink(_ mqtt.Client, msg mqtt.Message) {
	env, err := parseUplink(msg.Payload())
	if err != nil {
		m.log.Warn("dropping malformed uplink",
			zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A network server that already ran its own codec ships the result
	// in the object field; only codec-less uplinks get decoded locally.
	var n int
	if len(env.Object) > 0 {
		n, err = m.ingester.Ingest(ctx, env.DevEUI, env.Object)
	} else {
		n, err = m.ingester.IngestRaw(ctx, env.DevEUI, env.Data, env.FPort)
	}
	if err != nil {
		// Unknown devices are routine on shared network servers.
		m.log.Warn("uplink ingest failed",
			zap.String("device", env.DevEUI), zap.Error(err))
		return
	}
	m.log.Debug("uplink ingested",
		zap.String("device", env.DevEUI), zap.Int("readings", n))
}

// Stop disconnects all brokers, allowing in-flight handlers to finish.
func (m *Manager) Stop() {
	for _, c := range m.clients {
		c.Disconnect(250)
	}
	m.log.Info("brokers disconnected")
}
