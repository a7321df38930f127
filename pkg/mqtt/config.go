package mqtt

import "time"

// ClientConfig carries everything needed to reach one broker. The zero
// value is not usable; BrokerURL is mandatory.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive is the MQTT keep-alive interval in seconds. Zero means 60.
	KeepAlive uint16

	// ConnectTimeout bounds each connection attempt. Zero means 5s.
	ConnectTimeout time.Duration

	// SessionExpiry is the MQTT 5 session expiry interval in seconds. A
	// non-zero value lets the broker hold QoS 1 events across short drops.
	SessionExpiry uint32

	// CleanStart requests a fresh session on the first connect.
	CleanStart bool

	// InsecureSkipVerify disables certificate verification for tls://
	// and ssl:// brokers.
	InsecureSkipVerify bool

	// Will describes the message the broker publishes when the client
	// drops off without a clean disconnect. Empty topic disables it.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

// applyDefaults fills the timing fields a caller left at zero.
func applyDefaults(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}
