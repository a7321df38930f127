package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/fleetsink-io/fleetsink/pkg/log"
)

// reconnectDelay is the fixed pause between broker reconnect attempts.
const reconnectDelay = 3 * time.Second

// publisher implements Client on top of autopaho's ConnectionManager.
// The agent never subscribes, so there is no inbound routing here.
type publisher struct {
	cfg    *ClientConfig
	broker *url.URL

	cm *autopaho.ConnectionManager
}

// NewClient checks cfg and returns an unconnected Client. The broker URL
// is parsed once here and reused for every reconnect.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}
	applyDefaults(cfg)

	if cfg.BrokerURL == "" {
		return nil, errors.New("broker url is required")
	}
	broker, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}

	return &publisher{cfg: cfg, broker: broker}, nil
}

// Start hands the connection to autopaho, which dials and re-dials in the
// background until ctx is canceled or Disconnect is called.
func (p *publisher) Start(ctx context.Context) error {
	log.Info("Connecting to MQTT broker", "broker", p.broker.Redacted(), "clientID", p.cfg.ClientID)

	cm, err := autopaho.NewConnection(ctx, p.connectionConfig())
	if err != nil {
		return err
	}
	p.cm = cm
	return nil
}

// Disconnect performs a clean MQTT disconnect. The broker discards the
// will message on a clean close.
func (p *publisher) Disconnect(ctx context.Context) {
	if p.cm == nil {
		return
	}
	if err := p.cm.Disconnect(ctx); err != nil {
		log.Debug("MQTT disconnect", "err", err)
	}
}

func (p *publisher) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if p.cm == nil {
		return errors.New("mqtt client not started")
	}

	// autopaho holds Publish until the connection is up, so a broker
	// outage surfaces as ctx expiry rather than an instant error.
	_, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// AwaitConnection blocks until the first CONNACK or ctx expiry.
func (p *publisher) AwaitConnection(ctx context.Context) error {
	if p.cm == nil {
		return errors.New("mqtt client not started")
	}
	return p.cm.AwaitConnection(ctx)
}

// connectionConfig maps ClientConfig onto autopaho's form and wires the
// lifecycle callbacks to the agent log.
func (p *publisher) connectionConfig() autopaho.ClientConfig {
	cc := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{p.broker},
		KeepAlive:                     p.cfg.KeepAlive,
		CleanStartOnInitialConnection: p.cfg.CleanStart,
		SessionExpiryInterval:         p.cfg.SessionExpiry,
		ConnectTimeout:                p.cfg.ConnectTimeout,
		ConnectUsername:               p.cfg.Username,
		ConnectPassword:               []byte(p.cfg.Password),
		ReconnectBackoff:              autopaho.NewConstantBackoff(reconnectDelay),
		WillMessage:                   p.will(),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Info("MQTT connection up", "broker", p.broker.Host)
		},
		OnConnectError: func(err error) {
			log.Warn("MQTT connect attempt failed, will retry", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
			OnClientError: func(err error) {
				log.Error(err, "MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					log.Info("Broker requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					log.Info("Broker requested disconnect", "reasonCode", d.ReasonCode)
				}
			},
		},
	}

	// A nil TlsCfg gives full certificate verification on the tls, ssl,
	// mqtts and wss schemes.
	if p.cfg.InsecureSkipVerify {
		cc.TlsCfg = &tls.Config{InsecureSkipVerify: true}
	}

	return cc
}

func (p *publisher) will() *paho.WillMessage {
	if p.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   p.cfg.WillTopic,
		Payload: p.cfg.WillPayload,
		QoS:     p.cfg.WillQoS,
		Retain:  p.cfg.WillRetain,
	}
}
