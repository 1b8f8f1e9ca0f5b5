package device

import (
	"crypto/tls"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Transport is the narrow slice of an MQTT session the client depends on.
// Tests substitute a fake; production uses the paho client over TLS.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	IsConnected() bool
	Close()
}

// DialFunc opens one connected transport. onLost fires at most once, when
// an established transport drops unexpectedly.
type DialFunc func(cfg Config, onLost func(error)) (Transport, error)

// DialMQTT connects to the printer's control channel. LAN printers present
// a self-signed certificate, so verification is skipped on this endpoint;
// the access code is the authentication boundary.
func DialMQTT(cfg Config, onLost func(error)) (Transport, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tls://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID("printctl-" + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.AccessCode)
	opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	// Reconnection is owned by the client's backoff loop, not paho.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		onLost(err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: connect timeout after %s", ErrConnection, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &pahoTransport{client: client, cfg: cfg}, nil
}

type pahoTransport struct {
	client mqtt.Client
	cfg    Config
}

func (t *pahoTransport) Publish(topic string, payload []byte) error {
	token := t.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(t.cfg.WriteTimeout) {
		return fmt.Errorf("device: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("device: publish on %s: %w", topic, err)
	}
	return nil
}

func (t *pahoTransport) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := t.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return fmt.Errorf("%w: subscribe timeout on %s", ErrConnection, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: subscribe on %s: %v", ErrConnection, topic, err)
	}
	return nil
}

func (t *pahoTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t *pahoTransport) Close() {
	t.client.Disconnect(250)
}
