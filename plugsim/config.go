package plugsim

import (
	"errors"
	"time"
)

// Default settings for the plug simulator, mirroring broker/config.go's
// functional-options shape (teacher's options.go convention).
const (
	DefaultReconnectFast   = 200 * time.Millisecond
	DefaultReconnectSteady = 5 * time.Second

	// DefaultHeartbeatMin/Max must stay inside the broker's own jitter
	// window (§4.2) or the two sides will disagree about who pings whom.
	DefaultHeartbeatMin = 29 * time.Second
	DefaultHeartbeatMax = 31 * time.Second
)

var ErrInvalidConfig = errors.New("plugsim: invalid configuration")

// Config holds runtime settings for a simulated plug.
type Config struct {
	BrokerAddr string

	ReconnectFast   time.Duration
	ReconnectSteady time.Duration

	HeartbeatMin time.Duration
	HeartbeatMax time.Duration
}

// Option is a functional option for NewConfig.
type Option func(*Config)

// NewConfig builds a Config from library defaults with the given options
// applied on top. BrokerAddr has no default; it is the required first
// argument, and Validate rejects an empty one.
func NewConfig(brokerAddr string, opts ...Option) *Config {
	cfg := &Config{
		BrokerAddr:      brokerAddr,
		ReconnectFast:   DefaultReconnectFast,
		ReconnectSteady: DefaultReconnectSteady,
		HeartbeatMin:    DefaultHeartbeatMin,
		HeartbeatMax:    DefaultHeartbeatMax,
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.BrokerAddr == "" {
		return ErrInvalidConfig
	}
	if c.HeartbeatMin <= 0 || c.HeartbeatMax < c.HeartbeatMin {
		return ErrInvalidConfig
	}
	if c.ReconnectFast <= 0 || c.ReconnectSteady < c.ReconnectFast {
		return ErrInvalidConfig
	}
	return nil
}

// WithReconnectBackoff overrides the fast/steady reconnect interval pair.
func WithReconnectBackoff(fast, steady time.Duration) Option {
	return func(c *Config) {
		if fast > 0 {
			c.ReconnectFast = fast
		}
		if steady >= fast {
			c.ReconnectSteady = steady
		}
	}
}

// WithHeartbeatJitter overrides the [min, max) receive-timeout window.
func WithHeartbeatJitter(min, max time.Duration) Option {
	return func(c *Config) {
		if min > 0 {
			c.HeartbeatMin = min
		}
		if max >= min {
			c.HeartbeatMax = max
		}
	}
}
