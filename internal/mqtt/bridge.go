// Package mqtt bridges microbot to a chat platform over a long-lived
// MQTT connection. Inbound messages arrive as JSON on one topic;
// reply envelopes are published to another. Connection management and
// re-subscription on reconnect are delegated to autopaho.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hankl/microbot/internal/bus"
	"github.com/hankl/microbot/internal/config"
)

// Handler is the orchestrator surface the bridge needs.
type Handler interface {
	HandleMessage(ctx context.Context, msg bus.InboundMessage) (bus.Outbound, error)
}

// Bridge connects an MQTT broker to the orchestrator.
type Bridge struct {
	cfg    config.MQTTConfig
	agent  Handler
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewBridge creates a bridge but does not connect. Call
// [Bridge.Start] to begin.
func NewBridge(cfg config.MQTTConfig, agent Handler, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "microbot"
	}
	if cfg.InboundTopic == "" {
		cfg.InboundTopic = "microbot/inbound"
	}
	if cfg.OutboundTopic == "" {
		cfg.OutboundTopic = "microbot/outbound"
	}
	if cfg.KeepAliveSec <= 0 {
		cfg.KeepAliveSec = 30
	}
	return &Bridge{
		cfg:    cfg,
		agent:  agent,
		logger: logger,
	}
}

// Start connects to the broker and serves messages until ctx is
// cancelled. Subscriptions are re-established on every (re-)connect.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       uint16(b.cfg.KeepAliveSec),
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.BrokerURL)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: b.cfg.InboundTopic, QoS: 1},
				},
			}); err != nil {
				b.logger.Warn("mqtt subscribe failed", "topic", b.cfg.InboundTopic, "error", err)
			}
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					go b.process(ctx, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	return b.cm.Disconnect(ctx)
}

// process handles one inbound payload end to end and publishes the
// reply envelope. Validation failures are logged and dropped.
func (b *Bridge) process(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling mqtt message", "panic", r)
		}
	}()

	msg, err := DecodeInbound(payload)
	if err != nil {
		b.logger.Warn("undecodable mqtt payload dropped", "error", err)
		return
	}

	out, err := b.agent.HandleMessage(ctx, msg)
	if err != nil {
		if bus.IsValidation(err) {
			b.logger.Warn("rejected invalid inbound message", "error", err)
			return
		}
		b.logger.Error("message handling failed", "error", err)
		out = bus.ErrorReply("Something went wrong while handling your message.", err)
	}

	b.publish(ctx, out)
}

// publish sends one reply envelope to the outbound topic.
func (b *Bridge) publish(ctx context.Context, out bus.Outbound) {
	data, err := json.Marshal(out)
	if err != nil {
		b.logger.Error("marshal outbound envelope", "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := b.cm.Publish(pubCtx, &paho.Publish{
		Topic:   b.cfg.OutboundTopic,
		QoS:     1,
		Payload: data,
	}); err != nil {
		b.logger.Warn("mqtt publish failed", "topic", b.cfg.OutboundTopic, "error", err)
	}
}

// DecodeInbound parses an inbound JSON payload into a bus message.
func DecodeInbound(payload []byte) (bus.InboundMessage, error) {
	var msg bus.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return bus.InboundMessage{}, fmt.Errorf("decode inbound payload: %w", err)
	}
	return msg, nil
}
