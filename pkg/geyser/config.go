package geyser

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Default configuration values.
const (
	// DefaultKeepaliveTime is the default interval for HTTP/2 keepalive pings.
	DefaultKeepaliveTime = 10 * time.Second

	// DefaultKeepaliveTimeout is the default timeout for keepalive responses.
	DefaultKeepaliveTimeout = 5 * time.Second

	// DefaultReconnectMinDelay is the minimum delay before resubscribing.
	DefaultReconnectMinDelay = 1 * time.Second

	// DefaultReconnectMaxDelay is the maximum delay before resubscribing.
	DefaultReconnectMaxDelay = 60 * time.Second

	// DefaultUpdateBufferSize is the number of updates a session buffers
	// ahead of the consumer.
	DefaultUpdateBufferSize = 1024

	// DefaultSlowConsumerTimeout is how long a full buffer may stay full.
	DefaultSlowConsumerTimeout = 10 * time.Second

	// DefaultMaxMessageSize is the default maximum gRPC message size (1GB).
	// Solana blocks can be large due to many transactions.
	DefaultMaxMessageSize = 1024 * 1024 * 1024

	// DefaultPingInterval is the interval between stream ping messages.
	DefaultPingInterval = 15 * time.Second

	// DefaultPongTimeout is how long a stream ping may stay unanswered.
	DefaultPongTimeout = 30 * time.Second

	// DefaultRequestTimeout bounds unary calls made without a deadline.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultDrainTimeout bounds how long Close waits for in-flight frames.
	DefaultDrainTimeout = 2 * time.Second
)

// Configuration errors.
var (
	ErrNoEndpoint    = errors.New("geyser endpoint is required")
	ErrInvalidConfig = errors.New("invalid geyser configuration")
)

// Config holds the configuration for the Geyser client.
type Config struct {
	// Endpoint is the gRPC endpoint, e.g. "https://grpc.example.com" or
	// "localhost:10000". Required.
	Endpoint string

	// Token is the authentication token for the gRPC service.
	// Secure endpoints carry it as x-token, plaintext ones as x-access-token.
	// Can use environment variable expansion with ${VAR_NAME}.
	Token string

	// UseTLS selects TLS for endpoints given without a scheme.
	UseTLS bool

	// Keepalive configuration for the HTTP/2 transport.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Resubscribe configuration used by Follow.
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	MaxReconnects     int // 0 = unlimited

	// UpdateBufferSize is the capacity of a session's update buffer.
	UpdateBufferSize int

	// SlowConsumerTimeout is how long the reader waits for buffer space
	// before failing the session with ErrSlowConsumer.
	SlowConsumerTimeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int

	// PingInterval is the interval between stream pings. Negative disables them.
	PingInterval time.Duration

	// PongTimeout is how long a stream ping may go unanswered.
	PongTimeout time.Duration

	// RequestTimeout applies to unary calls whose context has no deadline.
	RequestTimeout time.Duration

	// DrainTimeout bounds how long Close drains in-flight frames.
	DrainTimeout time.Duration

	// Headers are additional headers to send with every gRPC call.
	// Useful for custom authentication schemes.
	Headers map[string]string

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// DialOptions are appended to the options the client builds.
	DialOptions []grpc.DialOption

	// OnConnect is called by Follow when a session is established (optional).
	OnConnect func()

	// OnDisconnect is called by Follow when a session ends with an error (optional).
	OnDisconnect func(error)

	// OnReconnect is called by Follow when resubscribing succeeds (optional).
	OnReconnect func(attempt int)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UseTLS: true,

		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,

		ReconnectMinDelay: DefaultReconnectMinDelay,
		ReconnectMaxDelay: DefaultReconnectMaxDelay,
		MaxReconnects:     0, // unlimited

		UpdateBufferSize:    DefaultUpdateBufferSize,
		SlowConsumerTimeout: DefaultSlowConsumerTimeout,
		MaxMessageSize:      DefaultMaxMessageSize,
		PingInterval:        DefaultPingInterval,
		PongTimeout:         DefaultPongTimeout,
		RequestTimeout:      DefaultRequestTimeout,
		DrainTimeout:        DefaultDrainTimeout,

		Headers: make(map[string]string),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}

	if c.UpdateBufferSize <= 0 {
		return fmt.Errorf("%w: update buffer size must be positive", ErrInvalidConfig)
	}

	if c.SlowConsumerTimeout <= 0 {
		return fmt.Errorf("%w: slow consumer timeout must be positive", ErrInvalidConfig)
	}

	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}

	if c.KeepaliveTime <= 0 {
		return fmt.Errorf("%w: keepalive time must be positive", ErrInvalidConfig)
	}

	if c.KeepaliveTimeout <= 0 {
		return fmt.Errorf("%w: keepalive timeout must be positive", ErrInvalidConfig)
	}

	if c.ReconnectMinDelay <= 0 {
		return fmt.Errorf("%w: reconnect min delay must be positive", ErrInvalidConfig)
	}

	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		return fmt.Errorf("%w: reconnect max delay must be >= min delay", ErrInvalidConfig)
	}

	if c.MaxReconnects < 0 {
		return fmt.Errorf("%w: max reconnects must not be negative", ErrInvalidConfig)
	}

	if c.PingInterval > 0 && c.PongTimeout <= 0 {
		return fmt.Errorf("%w: pong timeout must be positive when pings are enabled", ErrInvalidConfig)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}

	if c.DrainTimeout <= 0 {
		return fmt.Errorf("%w: drain timeout must be positive", ErrInvalidConfig)
	}

	return nil
}

// WithDefaults returns a new config with default values applied for any
// zero values in the original config.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.KeepaliveTime == 0 {
		c.KeepaliveTime = defaults.KeepaliveTime
	}
	if c.KeepaliveTimeout == 0 {
		c.KeepaliveTimeout = defaults.KeepaliveTimeout
	}
	if c.ReconnectMinDelay == 0 {
		c.ReconnectMinDelay = defaults.ReconnectMinDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = defaults.ReconnectMaxDelay
	}
	if c.UpdateBufferSize == 0 {
		c.UpdateBufferSize = defaults.UpdateBufferSize
	}
	if c.SlowConsumerTimeout == 0 {
		c.SlowConsumerTimeout = defaults.SlowConsumerTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaults.PongTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = defaults.DrainTimeout
	}
	if c.Headers == nil {
		c.Headers = defaults.Headers
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return c
}

// ExpandedToken returns the token with environment variable expansion.
// Supports ${VAR_NAME} syntax.
func (c *Config) ExpandedToken() string {
	return expandEnvVars(c.Token)
}

// expandEnvVars expands ${VAR} references in a string.
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := result[start+2 : end]
		varValue := os.Getenv(varName)
		result = result[:start] + varValue + result[end+1:]
	}
	return result
}

// ConfigBuilder provides a fluent interface for building Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder creates a new ConfigBuilder with default values.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: DefaultConfig(),
	}
}

// Endpoint sets the gRPC endpoint.
func (b *ConfigBuilder) Endpoint(endpoint string) *ConfigBuilder {
	b.config.Endpoint = endpoint
	return b
}

// Token sets the authentication token.
func (b *ConfigBuilder) Token(token string) *ConfigBuilder {
	b.config.Token = token
	return b
}

// UseTLS enables or disables TLS.
func (b *ConfigBuilder) UseTLS(useTLS bool) *ConfigBuilder {
	b.config.UseTLS = useTLS
	return b
}

// UpdateBufferSize sets the session update buffer capacity.
func (b *ConfigBuilder) UpdateBufferSize(size int) *ConfigBuilder {
	b.config.UpdateBufferSize = size
	return b
}

// Liveness sets the stream ping interval and the pong deadline.
func (b *ConfigBuilder) Liveness(pingInterval, pongTimeout time.Duration) *ConfigBuilder {
	b.config.PingInterval = pingInterval
	b.config.PongTimeout = pongTimeout
	return b
}

// RequestTimeout sets the default unary call timeout.
func (b *ConfigBuilder) RequestTimeout(d time.Duration) *ConfigBuilder {
	b.config.RequestTimeout = d
	return b
}

// ReconnectPolicy sets the resubscribe parameters.
func (b *ConfigBuilder) ReconnectPolicy(minDelay, maxDelay time.Duration, maxAttempts int) *ConfigBuilder {
	b.config.ReconnectMinDelay = minDelay
	b.config.ReconnectMaxDelay = maxDelay
	b.config.MaxReconnects = maxAttempts
	return b
}

// Header adds a custom header.
func (b *ConfigBuilder) Header(key, value string) *ConfigBuilder {
	if b.config.Headers == nil {
		b.config.Headers = make(map[string]string)
	}
	b.config.Headers[key] = value
	return b
}

// Logger sets the logger.
func (b *ConfigBuilder) Logger(logger *zap.Logger) *ConfigBuilder {
	b.config.Logger = logger
	return b
}

// DialOptions appends gRPC dial options.
func (b *ConfigBuilder) DialOptions(opts ...grpc.DialOption) *ConfigBuilder {
	b.config.DialOptions = append(b.config.DialOptions, opts...)
	return b
}

// OnConnect sets the connect callback.
func (b *ConfigBuilder) OnConnect(fn func()) *ConfigBuilder {
	b.config.OnConnect = fn
	return b
}

// OnDisconnect sets the disconnect callback.
func (b *ConfigBuilder) OnDisconnect(fn func(error)) *ConfigBuilder {
	b.config.OnDisconnect = fn
	return b
}

// OnReconnect sets the reconnect callback.
func (b *ConfigBuilder) OnReconnect(fn func(int)) *ConfigBuilder {
	b.config.OnReconnect = fn
	return b
}

// Build validates and returns the Config.
func (b *ConfigBuilder) Build() (Config, error) {
	cfg := b.config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustBuild validates and returns the Config, panicking on error.
func (b *ConfigBuilder) MustBuild() Config {
	cfg, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("invalid geyser config: %v", err))
	}
	return cfg
}

// ProviderConfig contains provider-specific configuration presets.
type ProviderConfig struct {
	// Name is the provider name for logging.
	Name string

	// AuthHeader is an extra header carrying the token, for providers that
	// read it from somewhere other than x-token / x-access-token.
	AuthHeader string

	// UseTLS indicates if the provider requires TLS.
	UseTLS bool
}

// Common provider presets.
var (
	// TritonProvider is the configuration preset for Triton One (Dragon's Mouth).
	TritonProvider = ProviderConfig{
		Name:   "triton",
		UseTLS: true,
	}

	// HeliusProvider is the configuration preset for Helius.
	HeliusProvider = ProviderConfig{
		Name:   "helius",
		UseTLS: true,
	}

	// QuickNodeProvider is the configuration preset for QuickNode.
	QuickNodeProvider = ProviderConfig{
		Name:   "quicknode",
		UseTLS: true,
	}

	// ChainstackProvider is the configuration preset for Chainstack.
	ChainstackProvider = ProviderConfig{
		Name:       "chainstack",
		AuthHeader: "authorization",
		UseTLS:     true,
	}

	// LocalProvider targets a plaintext node on localhost.
	LocalProvider = ProviderConfig{
		Name:   "local",
		UseTLS: false,
	}
)

// ApplyProvider applies a provider preset to a config builder.
func (b *ConfigBuilder) ApplyProvider(provider ProviderConfig, endpoint, token string) *ConfigBuilder {
	b.config.Endpoint = endpoint
	b.config.Token = token
	b.config.UseTLS = provider.UseTLS
	if provider.AuthHeader != "" && token != "" {
		b.Header(provider.AuthHeader, token)
	}
	return b
}

// ProviderByName returns the preset with the given name.
func ProviderByName(name string) (ProviderConfig, bool) {
	for _, p := range []ProviderConfig{TritonProvider, HeliusProvider, QuickNodeProvider, ChainstackProvider, LocalProvider} {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
