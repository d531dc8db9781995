// geyserctl talks to a Yellowstone Geyser gRPC endpoint from the command line.
//
// The control commands print one JSON document each; subscribe prints one
// JSON line per update until interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/fortiblox/geyser-stream/pkg/geyser"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

var (
	endpointFlag = &cli.StringFlag{
		Name:    "endpoint",
		Aliases: []string{"e"},
		Usage:   "gRPC endpoint, host:port or an http(s):// URL",
		EnvVars: []string{"GEYSER_ENDPOINT"},
		Value:   "http://127.0.0.1:10000",
	}
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Aliases: []string{"t"},
		Usage:   "access token, ${VAR} references are expanded",
		EnvVars: []string{"GEYSER_TOKEN"},
	}
	tlsFlag = &cli.BoolFlag{
		Name:  "tls",
		Usage: "use TLS for host:port endpoints",
	}
	providerFlag = &cli.StringFlag{
		Name:    "provider",
		Usage:   "provider preset: triton, helius, quicknode, chainstack, local",
		EnvVars: []string{"GEYSER_PROVIDER"},
	}
	headerFlag = &cli.StringSliceFlag{
		Name:  "header",
		Usage: "extra request header as key=value, repeatable",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "deadline for control calls",
		Value: geyser.DefaultRequestTimeout,
	}
	commitmentFlag = &cli.StringFlag{
		Name:  "commitment",
		Usage: "commitment level: processed, confirmed, finalized",
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log level: debug, info, warn, error",
		EnvVars: []string{"GEYSER_LOG_LEVEL"},
		Value:   "warn",
	}
)

// dialOptionsKey holds extra []grpc.DialOption in App.Metadata.
const dialOptionsKey = "dialOptions"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "geyserctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "geyserctl",
		Usage:                  "query and stream a Yellowstone Geyser endpoint",
		Version:                fmt.Sprintf("%s (%s)", Version, GitCommit),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			endpointFlag,
			tokenFlag,
			tlsFlag,
			providerFlag,
			headerFlag,
			timeoutFlag,
			logLevelFlag,
		},
		Commands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "unary ping, echoes the count",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "count", Value: 1}},
				Action: cmdPing,
			},
			{
				Name:   "blockhash",
				Usage:  "latest blockhash and its last valid block height",
				Flags:  []cli.Flag{commitmentFlag},
				Action: cmdBlockhash,
			},
			{
				Name:   "height",
				Usage:  "current block height",
				Flags:  []cli.Flag{commitmentFlag},
				Action: cmdHeight,
			},
			{
				Name:   "slot",
				Usage:  "current slot",
				Flags:  []cli.Flag{commitmentFlag},
				Action: cmdSlot,
			},
			{
				Name:      "valid",
				Usage:     "check whether a blockhash can still land a transaction",
				ArgsUsage: "<blockhash>",
				Flags:     []cli.Flag{commitmentFlag},
				Action:    cmdValid,
			},
			{
				Name:   "version",
				Usage:  "server version",
				Action: cmdVersion,
			},
			subscribeCommand,
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.String(logLevelFlag.Name))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// configFromCLI builds the client config from the global flags.
func configFromCLI(c *cli.Context, logger *zap.Logger) (geyser.Config, error) {
	b := geyser.NewConfigBuilder()
	if name := c.String(providerFlag.Name); name != "" {
		p, ok := geyser.ProviderByName(name)
		if !ok {
			return geyser.Config{}, fmt.Errorf("unknown provider %q", name)
		}
		b.ApplyProvider(p, c.String(endpointFlag.Name), c.String(tokenFlag.Name))
	} else {
		b.Endpoint(c.String(endpointFlag.Name)).
			Token(c.String(tokenFlag.Name)).
			UseTLS(c.Bool(tlsFlag.Name))
	}

	for _, h := range c.StringSlice(headerFlag.Name) {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return geyser.Config{}, fmt.Errorf("bad header %q, want key=value", h)
		}
		b.Header(k, v)
	}

	if opts, ok := c.App.Metadata[dialOptionsKey].([]grpc.DialOption); ok {
		b.DialOptions(opts...)
	}

	if c.IsSet("ping") {
		b.Liveness(c.Duration("ping"), geyser.DefaultPongTimeout)
	}

	return b.RequestTimeout(c.Duration(timeoutFlag.Name)).
		Logger(logger).
		Build()
}

// withClient runs fn with a client built from the global flags and a
// context cancelled on SIGINT or SIGTERM.
func withClient(c *cli.Context, fn func(ctx context.Context, client *geyser.Client, logger *zap.Logger) error) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := configFromCLI(c, logger)
	if err != nil {
		return err
	}
	client, err := geyser.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, client, logger)
}

func commitmentFromCLI(c *cli.Context) (*geyser.CommitmentLevel, error) {
	s := c.String(commitmentFlag.Name)
	if s == "" {
		return nil, nil
	}
	level, err := geyser.ParseCommitment(s)
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func printJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func cmdPing(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *geyser.Client, _ *zap.Logger) error {
		start := time.Now()
		count, err := client.Control().Ping(ctx, int32(c.Int("count")))
		if err != nil {
			return fmt.Errorf("could not ping: %w", err)
		}
		return printJSON(c.App.Writer, map[string]any{"count": count, "rtt": time.Since(start).String()})
	})
}

func cmdBlockhash(c *cli.Context) error {
	commitment, err := commitmentFromCLI(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *geyser.Client, _ *zap.Logger) error {
		latest, err := client.Control().GetLatestBlockhash(ctx, commitment)
		if err != nil {
			return fmt.Errorf("could not fetch blockhash: %w", err)
		}
		return printJSON(c.App.Writer, map[string]any{
			"slot":                 latest.Slot,
			"blockhash":            latest.Blockhash,
			"lastValidBlockHeight": latest.LastValidBlockHeight,
		})
	})
}

func cmdHeight(c *cli.Context) error {
	commitment, err := commitmentFromCLI(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *geyser.Client, _ *zap.Logger) error {
		height, err := client.Control().GetBlockHeight(ctx, commitment)
		if err != nil {
			return fmt.Errorf("could not fetch block height: %w", err)
		}
		return printJSON(c.App.Writer, map[string]any{"blockHeight": height})
	})
}

func cmdSlot(c *cli.Context) error {
	commitment, err := commitmentFromCLI(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *geyser.Client, _ *zap.Logger) error {
		slot, err := client.Control().GetSlot(ctx, commitment)
		if err != nil {
			return fmt.Errorf("could not fetch slot: %w", err)
		}
		return printJSON(c.App.Writer, map[string]any{"slot": slot})
	})
}

func cmdValid(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one blockhash")
	}
	hash, err := parseHash(c.Args().First())
	if err != nil {
		return err
	}
	commitment, err := commitmentFromCLI(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *geyser.Client, _ *zap.Logger) error {
		v, err := client.Control().IsBlockhashValid(ctx, hash, commitment)
		if err != nil {
			return fmt.Errorf("could not check blockhash: %w", err)
		}
		return printJSON(c.App.Writer, map[string]any{"slot": v.Slot, "valid": v.Valid})
	})
}

func cmdVersion(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *geyser.Client, _ *zap.Logger) error {
		version, err := client.Control().GetVersion(ctx)
		if err != nil {
			return fmt.Errorf("could not fetch version: %w", err)
		}
		if json.Valid([]byte(version)) {
			_, err = fmt.Fprintln(c.App.Writer, version)
			return err
		}
		return printJSON(c.App.Writer, map[string]any{"version": version})
	})
}
