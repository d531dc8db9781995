// Package geyser provides a client for consuming Solana Geyser data via gRPC.
//
// This package implements a Yellowstone/Dragon's Mouth compatible client:
// a Session owns one bidirectional Subscribe stream, a ControlClient issues the
// unary calls, and a Client ties both to a single lazily dialed connection.
//
// The client supports:
// - Named, immutable filter sets replaced wholesale on a live stream
// - Account, slot, transaction, block, block meta and entry updates
// - Stream keepalive with ping answering and pong liveness tracking
// - Caller-side resubscription with exponential backoff (Follow)
package geyser

import (
	"time"

	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/txencoding"
	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// CommitmentLevel represents the confirmation status for subscriptions.
// This mirrors the Solana/Yellowstone gRPC commitment levels.
type CommitmentLevel int32

const (
	// CommitmentProcessed indicates data is processed by the node but may rollback.
	CommitmentProcessed CommitmentLevel = 0

	// CommitmentConfirmed indicates data has received 2/3+ stake votes.
	CommitmentConfirmed CommitmentLevel = 1

	// CommitmentFinalized indicates data is permanent and irreversible.
	CommitmentFinalized CommitmentLevel = 2
)

// String returns the string representation of the commitment level.
func (c CommitmentLevel) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentConfirmed:
		return "confirmed"
	case CommitmentFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Ptr returns a pointer to c, for the optional commitment arguments.
func (c CommitmentLevel) Ptr() *CommitmentLevel { return &c }

// ParseCommitment parses "processed", "confirmed" or "finalized".
func ParseCommitment(s string) (CommitmentLevel, error) {
	switch s {
	case "processed":
		return CommitmentProcessed, nil
	case "confirmed":
		return CommitmentConfirmed, nil
	case "finalized":
		return CommitmentFinalized, nil
	default:
		return 0, &InvalidFilterError{Field: "commitment", Reason: "unknown level " + s}
	}
}

func (c CommitmentLevel) valid() bool {
	return c >= CommitmentProcessed && c <= CommitmentFinalized
}

func (c *CommitmentLevel) wire() *wire.CommitmentLevel {
	if c == nil {
		return nil
	}
	w := wire.CommitmentLevel(*c)
	return &w
}

// SlotStatus represents the status of a slot in the cluster.
type SlotStatus int32

const (
	// SlotStatusProcessed indicates the slot was processed by this node.
	SlotStatusProcessed SlotStatus = 0

	// SlotStatusConfirmed indicates the slot received supermajority votes.
	SlotStatusConfirmed SlotStatus = 1

	// SlotStatusFinalized indicates the slot is permanently finalized.
	SlotStatusFinalized SlotStatus = 2

	SlotStatusFirstShredReceived SlotStatus = 3
	SlotStatusCompleted          SlotStatus = 4
	SlotStatusCreatedBank        SlotStatus = 5

	// SlotStatusDead indicates the slot was abandoned; the update carries the reason.
	SlotStatusDead SlotStatus = 6
)

// String returns the string representation of the slot status.
func (s SlotStatus) String() string {
	switch s {
	case SlotStatusProcessed:
		return "processed"
	case SlotStatusConfirmed:
		return "confirmed"
	case SlotStatusFinalized:
		return "finalized"
	case SlotStatusFirstShredReceived:
		return "first_shred_received"
	case SlotStatusCompleted:
		return "completed"
	case SlotStatusCreatedBank:
		return "created_bank"
	case SlotStatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// SubscribeUpdate is one event received on a Subscribe stream.
type SubscribeUpdate struct {
	// Filters are the ids of the filters that matched, restricted to the
	// filters of the most recently accepted FilterSet.
	Filters []string

	// CreatedAt is when the server produced the update. Zero if not sent.
	CreatedAt time.Time

	// Payload is exactly one of *AccountUpdate, *SlotUpdate, *TransactionUpdate,
	// *TransactionStatusUpdate, *Block, *BlockMeta, *Entry, *PingUpdate or *PongUpdate.
	Payload Payload
}

// Payload is the closed set of update kinds.
type Payload interface {
	payload()
}

func (*AccountUpdate) payload()           {}
func (*SlotUpdate) payload()              {}
func (*TransactionUpdate) payload()       {}
func (*TransactionStatusUpdate) payload() {}
func (*Block) payload()                   {}
func (*BlockMeta) payload()               {}
func (*Entry) payload()                   {}
func (*PingUpdate) payload()              {}
func (*PongUpdate) payload()              {}

// Block represents a complete block received from Geyser.
type Block struct {
	// Slot is the slot number of this block.
	Slot uint64

	// ParentSlot is the parent slot number.
	ParentSlot uint64

	// Blockhash is the unique hash identifying this block.
	Blockhash types.Hash

	// ParentBlockhash links to the parent block.
	ParentBlockhash types.Hash

	// BlockTime is the Unix timestamp when the block was produced.
	// May be nil if not available.
	BlockTime *int64

	// BlockHeight is the block height (number of blocks since genesis).
	// May be nil for older blocks.
	BlockHeight *uint64

	// Transactions contains the block's transactions when the filter asked for them.
	Transactions []Transaction

	// Accounts contains the accounts written in the block when the filter asked for them.
	Accounts []AccountInfo

	// Entries contains the PoH entries when the filter asked for them.
	Entries []Entry

	// Rewards contains staking/voting rewards distributed in this block.
	Rewards []Reward

	ExecutedTransactionCount uint64
	UpdatedAccountCount      uint64
	EntriesCount             uint64
}

// BlockMeta is a block header without transactions, accounts or entries.
type BlockMeta struct {
	Slot                     uint64
	ParentSlot               uint64
	Blockhash                types.Hash
	ParentBlockhash          types.Hash
	BlockTime                *int64
	BlockHeight              *uint64
	Rewards                  []Reward
	ExecutedTransactionCount uint64
	EntriesCount             uint64
}

// Transaction represents a transaction with its execution metadata.
type Transaction struct {
	// Signature is the primary signature (transaction ID).
	Signature types.Signature

	// Signatures contains all signatures on this transaction.
	Signatures []types.Signature

	// Message contains the transaction message.
	Message TransactionMessage

	// Meta contains execution metadata.
	Meta *TransactionMeta

	// IsVote indicates if this is a vote transaction.
	IsVote bool

	// Index is the transaction's position in the block.
	Index uint64
}

// TransactionUpdate is a transaction matched by a transactions filter.
type TransactionUpdate struct {
	Slot        uint64
	Transaction Transaction

	raw *wire.SubscribeUpdateTransactionInfo
}

// Encode renders the transaction in an RPC display encoding.
func (u *TransactionUpdate) Encode(encoding txencoding.Encoding, maxSupportedVersion *uint8, showRewards bool) (string, error) {
	raw, err := wire.Marshal(u.raw)
	if err != nil {
		return "", err
	}
	return txencoding.EncodeTransaction(raw, encoding, maxSupportedVersion, showRewards)
}

// TransactionStatusUpdate is the outcome of a transaction without its body.
type TransactionStatusUpdate struct {
	Slot      uint64
	Signature types.Signature
	IsVote    bool
	Index     uint64

	// Err is nil when the transaction succeeded.
	Err *TransactionError
}

// TransactionMessage represents a transaction message.
type TransactionMessage struct {
	// Header contains message header info.
	Header MessageHeader

	// AccountKeys lists all accounts referenced by this transaction.
	AccountKeys []types.Pubkey

	// RecentBlockhash is the blockhash used for this transaction.
	RecentBlockhash types.Hash

	// Instructions contains the compiled instructions.
	Instructions []CompiledInstruction

	// AddressTableLookups for versioned transactions.
	AddressTableLookups []AddressTableLookup

	// IsLegacy indicates if this is a legacy (non-versioned) transaction.
	IsLegacy bool
}

// MessageHeader describes the account types in a transaction.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction represents a compiled instruction in a transaction.
type CompiledInstruction struct {
	// ProgramIDIndex is the index of the program account in AccountKeys.
	ProgramIDIndex uint8

	// AccountIndexes lists the account indexes this instruction uses.
	AccountIndexes []uint8

	// Data is the instruction data passed to the program.
	Data []byte

	// StackHeight is the invocation depth of an inner instruction, when recorded.
	StackHeight *uint32
}

// AddressTableLookup represents a lookup into an address lookup table.
type AddressTableLookup struct {
	AccountKey      types.Pubkey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// TransactionMeta contains metadata about transaction execution.
type TransactionMeta struct {
	// Err contains the error if the transaction failed, nil on success.
	Err *TransactionError

	// Fee is the transaction fee in lamports.
	Fee uint64

	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance

	// InnerInstructions contains CPI instructions.
	InnerInstructions []InnerInstructions

	// LogMessages contains program log output. Nil when logs were not recorded.
	LogMessages []string

	Rewards []Reward

	// ComputeUnitsConsumed is the total compute units used, when reported.
	ComputeUnitsConsumed *uint64

	// CostUnits is the cost model estimate, when reported.
	CostUnits *uint64

	LoadedWritableAddresses []types.Pubkey
	LoadedReadonlyAddresses []types.Pubkey

	// ReturnData contains the return data from the transaction.
	ReturnData *ReturnData
}

// TransactionError represents a transaction execution error.
type TransactionError struct {
	// Raw is the bincode-serialized error as sent by the node.
	Raw []byte

	// Message is the RPC JSON rendering of Raw, e.g. {"InstructionError":[0,{"Custom":1}]}.
	// Empty if Raw could not be decoded.
	Message string
}

// Error implements error.
func (e *TransactionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "undecodable transaction error"
}

// TokenBalance represents a token account balance.
type TokenBalance struct {
	AccountIndex  uint8
	Mint          types.Pubkey
	Owner         types.Pubkey
	UITokenAmount UITokenAmount
	ProgramID     types.Pubkey
}

// UITokenAmount represents a token amount with UI formatting.
type UITokenAmount struct {
	Amount         string
	Decimals       uint8
	UIAmount       *float64
	UIAmountString string
}

// InnerInstructions groups CPI instructions by their invoking instruction.
type InnerInstructions struct {
	Index        uint8
	Instructions []CompiledInstruction
}

// ReturnData contains the return data from a transaction.
type ReturnData struct {
	ProgramID types.Pubkey
	Data      []byte
}

// Entry represents a PoH entry.
type Entry struct {
	Slot                     uint64
	Index                    uint64
	NumHashes                uint64
	Hash                     types.Hash
	ExecutedTransactionCount uint64
	StartingTransactionIndex uint64
}

// Reward represents a staking/voting reward.
type Reward struct {
	// Pubkey is the account that received the reward.
	Pubkey types.Pubkey

	// Lamports is the reward amount (can be negative for penalties).
	Lamports int64

	// PostBalance is the account balance after the reward.
	PostBalance uint64

	// RewardType describes the type of reward.
	RewardType RewardType

	// Commission is the vote account commission when the reward was credited.
	Commission *uint8
}

// RewardType identifies the type of reward.
type RewardType int32

const (
	RewardTypeUnspecified RewardType = 0
	RewardTypeFee         RewardType = 1
	RewardTypeRent        RewardType = 2
	RewardTypeStaking     RewardType = 3
	RewardTypeVoting      RewardType = 4
)

// String returns the string representation of the reward type.
func (r RewardType) String() string {
	switch r {
	case RewardTypeFee:
		return "fee"
	case RewardTypeRent:
		return "rent"
	case RewardTypeStaking:
		return "staking"
	case RewardTypeVoting:
		return "voting"
	default:
		return "unspecified"
	}
}

// SlotUpdate represents a slot status update from Geyser.
type SlotUpdate struct {
	// Slot is the slot number.
	Slot uint64

	// ParentSlot is the parent slot (for fork tracking).
	ParentSlot *uint64

	// Status is the current slot status.
	Status SlotStatus

	// DeadError explains a SlotStatusDead update. Nil for every other status,
	// so that "no error" and "empty error" stay distinguishable.
	DeadError *string
}

// AccountInfo is the state of an account after a write.
type AccountInfo struct {
	// Pubkey is the account address.
	Pubkey types.Pubkey

	// Lamports is the account balance.
	Lamports uint64

	// Owner is the program that owns the account.
	Owner types.Pubkey

	// Executable indicates if the account contains executable code.
	Executable bool

	// RentEpoch is the epoch at which rent is due.
	RentEpoch uint64

	// Data is the account data, already cut to the requested data slices.
	Data []byte

	// WriteVersion is a monotonic version for ordering updates.
	WriteVersion uint64

	// TxnSignature is the transaction that caused this write, if any.
	TxnSignature *types.Signature
}

// AccountUpdate represents an account update from Geyser.
type AccountUpdate struct {
	AccountInfo

	// Slot is the slot where this update occurred.
	Slot uint64

	// IsStartup marks updates replayed from a snapshot at validator startup.
	IsStartup bool
}

// PingUpdate is a keepalive sent by the server. The session answers it
// automatically; it is still delivered so callers can observe liveness.
type PingUpdate struct {
	ID int32
}

// PongUpdate answers a ping sent on the stream.
type PongUpdate struct {
	// ID is the ping ID being responded to.
	ID int32
}
