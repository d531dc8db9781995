package geyser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// Metadata keys carrying the token. Secure and plaintext deployments read
// different keys, so the asymmetry is kept as is.
const (
	TokenHeaderSecure   = "x-token"
	TokenHeaderInsecure = "x-access-token"
)

// Client errors.
var (
	ErrClosed = errors.New("geyser client is closed")
)

// Client owns one gRPC connection and derives sessions and the control
// channel from it.
//
// NewClient performs no network I/O: the connection is dialed lazily by the
// transport on the first call.
type Client struct {
	config Config
	logger *zap.Logger

	target string
	secure bool

	conn    *grpc.ClientConn
	control *ControlClient

	closed atomic.Bool
}

// NewClient creates a new Geyser client with the given configuration.
func NewClient(config Config) (*Client, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	target, secure, err := resolveEndpoint(config.Endpoint, config.UseTLS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c := &Client{
		config: config,
		logger: config.Logger.Named("geyser"),
		target: target,
		secure: secure,
	}

	conn, err := grpc.NewClient(target, c.dialOptions()...)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	c.conn = conn
	c.control = newControlClient(conn, config)

	c.logger.Info("geyser client created",
		zap.String("target", target),
		zap.Bool("tls", secure),
		zap.Bool("auth", config.Token != ""))

	return c, nil
}

// resolveEndpoint turns an endpoint into a gRPC target and picks transport
// security. https:// and http:// URLs decide security themselves and get
// their default ports; anything else is used as is with useTLS.
func resolveEndpoint(endpoint string, useTLS bool) (target string, secure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useTLS, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	}

	var port string
	switch u.Scheme {
	case "https":
		secure, port = true, "443"
	case "http":
		secure, port = false, "80"
	default:
		// Resolver schemes such as dns:/// or passthrough:///.
		return endpoint, useTLS, nil
	}

	if u.Hostname() == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if u.Port() != "" {
		port = u.Port()
	}
	return net.JoinHostPort(u.Hostname(), port), secure, nil
}

func (c *Client) dialOptions() []grpc.DialOption {
	cfg := c.config

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(wire.Codec{}),
			grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
			grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
		),
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[strings.ToLower(k)] = v
	}
	token := cfg.ExpandedToken()

	if c.secure {
		opts = append(opts, grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{
				MinVersion: tls.VersionTLS12,
			}),
		))
		if token != "" {
			opts = append(opts, grpc.WithPerRPCCredentials(&tokenAuth{token: token}))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if token != "" {
			headers[TokenHeaderInsecure] = token
		}
	}

	if len(headers) > 0 {
		md := metadata.New(headers)
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(headerUnaryInterceptor(md)),
			grpc.WithChainStreamInterceptor(headerStreamInterceptor(md)),
		)
	}

	return append(opts, cfg.DialOptions...)
}

// Target returns the resolved gRPC target.
func (c *Client) Target() string { return c.target }

// Secure reports whether the connection uses TLS.
func (c *Client) Secure() bool { return c.secure }

// Control returns the unary control channel.
func (c *Client) Control() *ControlClient { return c.control }

// Subscribe opens a session with no filters. The server sends nothing until
// the first ReplaceFilters. ctx bounds the lifetime of the session.
func (c *Client) Subscribe(ctx context.Context) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return openSession(ctx, c.conn, c.config, nil)
}

// SubscribeWith opens a session and writes fs as its first frame.
func (c *Client) SubscribeWith(ctx context.Context, fs FilterSet) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return openSession(ctx, c.conn, c.config, &fs)
}

// Close closes the connection. Open sessions fail with a transport error.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("geyser client closed")
	return c.conn.Close()
}

// tokenAuth implements grpc.PerRPCCredentials for token authentication.
type tokenAuth struct {
	token string
}

// GetRequestMetadata returns the authentication metadata.
func (t *tokenAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		TokenHeaderSecure: t.token,
	}, nil
}

// RequireTransportSecurity returns whether TLS is required.
func (t *tokenAuth) RequireTransportSecurity() bool {
	return true
}

func headerUnaryInterceptor(md metadata.MD) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(withHeaders(ctx, md), method, req, reply, cc, opts...)
	}
}

func headerStreamInterceptor(md metadata.MD) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(withHeaders(ctx, md), desc, cc, method, opts...)
	}
}

func withHeaders(ctx context.Context, md metadata.MD) context.Context {
	kv := make([]string, 0, 2*md.Len())
	for k, vs := range md {
		for _, v := range vs {
			kv = append(kv, k, v)
		}
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}
