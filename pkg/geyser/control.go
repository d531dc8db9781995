package geyser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// LatestBlockhash is the result of GetLatestBlockhash.
type LatestBlockhash struct {
	Slot                 uint64
	Blockhash            types.Hash
	LastValidBlockHeight uint64
}

// BlockhashValidity is the result of IsBlockhashValid.
type BlockhashValidity struct {
	Slot  uint64
	Valid bool
}

// ControlClient issues the unary Geyser calls. It shares the connection of
// the Client that created it and is safe for concurrent use, including
// alongside open sessions.
type ControlClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

func newControlClient(conn grpc.ClientConnInterface, cfg Config) *ControlClient {
	return &ControlClient{
		conn:    conn,
		timeout: cfg.RequestTimeout,
		logger:  cfg.Logger.Named("geyser.control"),
	}
}

// invoke runs one unary call. Config.RequestTimeout applies when ctx has no deadline.
func (c *ControlClient) invoke(ctx context.Context, method string, req, resp any) error {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.conn.Invoke(ctx, method, req, resp)
	if err != nil {
		err = classifyRPCError(method, err)
		c.logger.Debug("call failed", zap.String("method", method), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	return nil
}

// Ping sends count and returns the count echoed by the server.
func (c *ControlClient) Ping(ctx context.Context, count int32) (int32, error) {
	resp := new(wire.PongResponse)
	if err := c.invoke(ctx, wire.MethodPing, &wire.PingRequest{Count: count}, resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// GetLatestBlockhash returns the latest blockhash at the given commitment,
// or the server default when commitment is nil.
func (c *ControlClient) GetLatestBlockhash(ctx context.Context, commitment *CommitmentLevel) (*LatestBlockhash, error) {
	resp := new(wire.GetLatestBlockhashResponse)
	if err := c.invoke(ctx, wire.MethodGetLatestBlockhash, wire.NewGetLatestBlockhashRequest(commitment.wire()), resp); err != nil {
		return nil, err
	}
	hash, err := types.HashFromBase58(resp.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("geyser %s: blockhash %q: %w", wire.MethodGetLatestBlockhash, resp.Blockhash, err)
	}
	return &LatestBlockhash{
		Slot:                 resp.Slot,
		Blockhash:            hash,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

// GetBlockHeight returns the current block height.
func (c *ControlClient) GetBlockHeight(ctx context.Context, commitment *CommitmentLevel) (uint64, error) {
	resp := new(wire.GetBlockHeightResponse)
	if err := c.invoke(ctx, wire.MethodGetBlockHeight, wire.NewGetBlockHeightRequest(commitment.wire()), resp); err != nil {
		return 0, err
	}
	return resp.BlockHeight, nil
}

// GetSlot returns the current slot.
func (c *ControlClient) GetSlot(ctx context.Context, commitment *CommitmentLevel) (uint64, error) {
	resp := new(wire.GetSlotResponse)
	if err := c.invoke(ctx, wire.MethodGetSlot, wire.NewGetSlotRequest(commitment.wire()), resp); err != nil {
		return 0, err
	}
	return resp.Slot, nil
}

// IsBlockhashValid reports whether blockhash can still land a transaction.
func (c *ControlClient) IsBlockhashValid(ctx context.Context, blockhash types.Hash, commitment *CommitmentLevel) (*BlockhashValidity, error) {
	req := &wire.IsBlockhashValidRequest{
		Blockhash:  blockhash.String(),
		Commitment: commitment.wire(),
	}
	resp := new(wire.IsBlockhashValidResponse)
	if err := c.invoke(ctx, wire.MethodIsBlockhashValid, req, resp); err != nil {
		return nil, err
	}
	return &BlockhashValidity{Slot: resp.Slot, Valid: resp.Valid}, nil
}

// GetVersion returns the server version string, usually a JSON document.
func (c *ControlClient) GetVersion(ctx context.Context) (string, error) {
	resp := new(wire.GetVersionResponse)
	if err := c.invoke(ctx, wire.MethodGetVersion, &wire.GetVersionRequest{}, resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}
