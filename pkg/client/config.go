package client

import (
	"net/url"
	"time"
)

// Config holds configuration for a Client.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8080/collaboration/ws".
	URL string

	// Token is the bearer token presented on connect and on lock API calls.
	Token string

	// APIBase is the base URL of the lock REST API. Derived from URL when
	// empty ("ws://host/collaboration/ws" becomes "http://host").
	APIBase string

	// HeartbeatInterval is the time between protocol pings. Default: 30s.
	HeartbeatInterval time.Duration

	// DialTimeout bounds one connection attempt. Default: 10s.
	DialTimeout time.Duration

	// ReconnectBase is the first reconnect delay; it doubles per attempt.
	// Default: 1s.
	ReconnectBase time.Duration

	// MaxReconnectAttempts bounds the reconnect loop. Default: 5.
	MaxReconnectAttempts int

	// TypingTimeout is how long after the last keystroke a typing
	// indicator auto-stops. Default: 3s.
	TypingTimeout time.Duration

	// RequestTimeout bounds one lock API call. Default: 10s.
	RequestTimeout time.Duration

	// OnStateChange, if set, is called with every connection state
	// transition. Called from the connection goroutine; do not block.
	OnStateChange func(State)
}

// DefaultConfig returns a Config with sensible defaults. URL and Token
// must still be supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval:    30 * time.Second,
		DialTimeout:          10 * time.Second,
		ReconnectBase:        time.Second,
		MaxReconnectAttempts: 5,
		TypingTimeout:        3 * time.Second,
		RequestTimeout:       10 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	d := DefaultConfig()
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = d.ReconnectBase
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.TypingTimeout == 0 {
		c.TypingTimeout = d.TypingTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.APIBase == "" {
		c.APIBase = apiBaseFromURL(c.URL)
	}
	return c
}

// apiBaseFromURL derives the REST base from the WebSocket URL: same
// host, http(s) scheme, path dropped.
func apiBaseFromURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
