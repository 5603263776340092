package config

import "time"

// Role defines the upstream role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Config represents the gateway configuration
type Config struct {
	Host           string           `json:"host"`
	Port           int              `json:"port"`
	LogLevel       string           `json:"logLevel"`
	RequestTimeout int              `json:"requestTimeout"` // ms
	Upstreams      []UpstreamConfig `json:"upstreams"`
	Memo           *MemoConfig      `json:"memo,omitempty"`
	BatchMethods   []string         `json:"batchMethods"` // "model.method" pairs routed through the batch path
}

// UpstreamConfig describes one remote JSON-RPC endpoint
type UpstreamConfig struct {
	Name     string `json:"name"`
	RPCURL   string `json:"rpcUrl"`
	WSURL    string `json:"wsUrl"`
	PreferWS bool   `json:"preferWs"`
	Role     Role   `json:"role"`
}

// MemoConfig configures the transport-level response memo
type MemoConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// Default values
const (
	DefaultHost           = "localhost"
	DefaultPort           = 8650
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 5000 // ms
	DefaultUpstreamRole   = RoleMain
	DefaultMemoTTL        = 60 // s
	DefaultMemoSize       = 4096
)

// GetRequestTimeoutDuration returns the request timeout as a Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetMemoTTLDuration returns the memo TTL as a Duration
func (m *MemoConfig) GetMemoTTLDuration() time.Duration {
	return time.Duration(m.TTL) * time.Second
}
