package wire

import "google.golang.org/protobuf/encoding/protowire"

// PingRequest carries a counter echoed back by the server.
type PingRequest struct {
	Count int32
}

func (x *PingRequest) appendFields(b []byte) []byte { return appendInt32(b, 1, x.Count) }

func (x *PingRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.Count, n, err = consumeInt32(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// PongResponse answers PingRequest.
type PongResponse struct {
	Count int32
}

func (x *PongResponse) appendFields(b []byte) []byte { return appendInt32(b, 1, x.Count) }

func (x *PongResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.Count, n, err = consumeInt32(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// commitmentRequest is the shape shared by the unary requests that take only a commitment.
type commitmentRequest struct {
	Commitment *CommitmentLevel
}

func (x *commitmentRequest) appendFields(b []byte) []byte {
	return appendOptCommitment(b, 1, x.Commitment)
}

func (x *commitmentRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return consumeOptCommitment(typ, b, &x.Commitment)
	}
	return skipField(num, typ, b)
}

// GetLatestBlockhashRequest asks for the newest blockhash at a commitment.
type GetLatestBlockhashRequest struct{ commitmentRequest }

// GetBlockHeightRequest asks for the block height at a commitment.
type GetBlockHeightRequest struct{ commitmentRequest }

// GetSlotRequest asks for the slot at a commitment.
type GetSlotRequest struct{ commitmentRequest }

// NewGetLatestBlockhashRequest builds a request; a nil commitment leaves the server default.
func NewGetLatestBlockhashRequest(c *CommitmentLevel) *GetLatestBlockhashRequest {
	return &GetLatestBlockhashRequest{commitmentRequest{Commitment: c}}
}

// NewGetBlockHeightRequest builds a request; a nil commitment leaves the server default.
func NewGetBlockHeightRequest(c *CommitmentLevel) *GetBlockHeightRequest {
	return &GetBlockHeightRequest{commitmentRequest{Commitment: c}}
}

// NewGetSlotRequest builds a request; a nil commitment leaves the server default.
func NewGetSlotRequest(c *CommitmentLevel) *GetSlotRequest {
	return &GetSlotRequest{commitmentRequest{Commitment: c}}
}

// GetLatestBlockhashResponse describes the newest blockhash and its expiry height.
type GetLatestBlockhashResponse struct {
	Slot                 uint64
	Blockhash            string
	LastValidBlockHeight uint64
}

func (x *GetLatestBlockhashResponse) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendString(b, 2, x.Blockhash)
	b = appendUint64(b, 3, x.LastValidBlockHeight)
	return b
}

func (x *GetLatestBlockhashResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		x.Blockhash, n, err = consumeString(typ, b)
	case 3:
		x.LastValidBlockHeight, n, err = consumeUint64(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// GetBlockHeightResponse carries a block height.
type GetBlockHeightResponse struct {
	BlockHeight uint64
}

func (x *GetBlockHeightResponse) appendFields(b []byte) []byte {
	return appendUint64(b, 1, x.BlockHeight)
}

func (x *GetBlockHeightResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.BlockHeight, n, err = consumeUint64(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// GetSlotResponse carries a slot number.
type GetSlotResponse struct {
	Slot uint64
}

func (x *GetSlotResponse) appendFields(b []byte) []byte { return appendUint64(b, 1, x.Slot) }

func (x *GetSlotResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.Slot, n, err = consumeUint64(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// GetVersionRequest has no fields.
type GetVersionRequest struct{}

func (x *GetVersionRequest) appendFields(b []byte) []byte { return b }

func (x *GetVersionRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return skipField(num, typ, b)
}

// GetVersionResponse carries the server version as an opaque string, usually JSON.
type GetVersionResponse struct {
	Version string
}

func (x *GetVersionResponse) appendFields(b []byte) []byte { return appendString(b, 1, x.Version) }

func (x *GetVersionResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.Version, n, err = consumeString(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// IsBlockhashValidRequest asks whether a blockhash can still land a transaction.
type IsBlockhashValidRequest struct {
	Blockhash  string
	Commitment *CommitmentLevel
}

func (x *IsBlockhashValidRequest) appendFields(b []byte) []byte {
	b = appendString(b, 1, x.Blockhash)
	b = appendOptCommitment(b, 2, x.Commitment)
	return b
}

func (x *IsBlockhashValidRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Blockhash, n, err = consumeString(typ, b)
	case 2:
		n, err = consumeOptCommitment(typ, b, &x.Commitment)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// IsBlockhashValidResponse answers IsBlockhashValidRequest.
type IsBlockhashValidResponse struct {
	Slot  uint64
	Valid bool
}

func (x *IsBlockhashValidResponse) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendBool(b, 2, x.Valid)
	return b
}

func (x *IsBlockhashValidResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		x.Valid, n, err = consumeBool(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}
