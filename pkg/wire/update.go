package wire

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// SlotStatus is the lifecycle tag of a slot update.
type SlotStatus int32

const (
	SlotProcessed          SlotStatus = 0
	SlotConfirmed          SlotStatus = 1
	SlotFinalized          SlotStatus = 2
	SlotFirstShredReceived SlotStatus = 3
	SlotCompleted          SlotStatus = 4
	SlotCreatedBank        SlotStatus = 5
	SlotDead               SlotStatus = 6
)

// SubscribeUpdate is a frame pushed by the server on the Subscribe stream.
//
// The payload fields form a oneof. On the wire nothing prevents a sender from
// setting several of them, so decoders must check Variants before trusting
// the frame.
type SubscribeUpdate struct {
	Filters   []string
	CreatedAt *Timestamp

	Account           *SubscribeUpdateAccount
	Slot              *SubscribeUpdateSlot
	Transaction       *SubscribeUpdateTransaction
	TransactionStatus *SubscribeUpdateTransactionStatus
	Block             *SubscribeUpdateBlock
	Ping              *SubscribeUpdatePing
	Pong              *SubscribeUpdatePong
	BlockMeta         *SubscribeUpdateBlockMeta
	Entry             *SubscribeUpdateEntry
}

// Variants returns the names of the payload fields that are set.
func (x *SubscribeUpdate) Variants() []string {
	var set []string
	if x.Account != nil {
		set = append(set, "account")
	}
	if x.Slot != nil {
		set = append(set, "slot")
	}
	if x.Transaction != nil {
		set = append(set, "transaction")
	}
	if x.TransactionStatus != nil {
		set = append(set, "transaction_status")
	}
	if x.Block != nil {
		set = append(set, "block")
	}
	if x.Ping != nil {
		set = append(set, "ping")
	}
	if x.Pong != nil {
		set = append(set, "pong")
	}
	if x.BlockMeta != nil {
		set = append(set, "block_meta")
	}
	if x.Entry != nil {
		set = append(set, "entry")
	}
	return set
}

func (x *SubscribeUpdate) appendFields(b []byte) []byte {
	b = appendStrings(b, 1, x.Filters)
	if x.Account != nil {
		b = appendMessage(b, 2, x.Account)
	}
	if x.Slot != nil {
		b = appendMessage(b, 3, x.Slot)
	}
	if x.Transaction != nil {
		b = appendMessage(b, 4, x.Transaction)
	}
	if x.Block != nil {
		b = appendMessage(b, 5, x.Block)
	}
	if x.Ping != nil {
		b = appendMessage(b, 6, x.Ping)
	}
	if x.BlockMeta != nil {
		b = appendMessage(b, 7, x.BlockMeta)
	}
	if x.Entry != nil {
		b = appendMessage(b, 8, x.Entry)
	}
	if x.Pong != nil {
		b = appendMessage(b, 9, x.Pong)
	}
	if x.TransactionStatus != nil {
		b = appendMessage(b, 10, x.TransactionStatus)
	}
	if x.CreatedAt != nil {
		b = appendMessage(b, 11, x.CreatedAt)
	}
	return b
}

func (x *SubscribeUpdate) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeStrings(typ, b, &x.Filters)
	case 2:
		return consumeMessage(typ, b, &x.Account)
	case 3:
		return consumeMessage(typ, b, &x.Slot)
	case 4:
		return consumeMessage(typ, b, &x.Transaction)
	case 5:
		return consumeMessage(typ, b, &x.Block)
	case 6:
		return consumeMessage(typ, b, &x.Ping)
	case 7:
		return consumeMessage(typ, b, &x.BlockMeta)
	case 8:
		return consumeMessage(typ, b, &x.Entry)
	case 9:
		return consumeMessage(typ, b, &x.Pong)
	case 10:
		return consumeMessage(typ, b, &x.TransactionStatus)
	case 11:
		return consumeMessage(typ, b, &x.CreatedAt)
	default:
		return skipField(num, typ, b)
	}
}

// Timestamp is google.protobuf.Timestamp.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// NewTimestamp converts t to a Timestamp.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// AsTime converts the timestamp to a time.Time in UTC.
func (x *Timestamp) AsTime() time.Time {
	if x == nil {
		return time.Time{}
	}
	return time.Unix(x.Seconds, int64(x.Nanos)).UTC()
}

func (x *Timestamp) appendFields(b []byte) []byte {
	b = appendInt64(b, 1, x.Seconds)
	b = appendInt32(b, 2, x.Nanos)
	return b
}

func (x *Timestamp) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Seconds, n, err = consumeInt64(typ, b)
	case 2:
		x.Nanos, n, err = consumeInt32(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateAccount is an account write observed at Slot.
type SubscribeUpdateAccount struct {
	Account   *SubscribeUpdateAccountInfo
	Slot      uint64
	IsStartup bool
}

func (x *SubscribeUpdateAccount) appendFields(b []byte) []byte {
	if x.Account != nil {
		b = appendMessage(b, 1, x.Account)
	}
	b = appendUint64(b, 2, x.Slot)
	b = appendBool(b, 3, x.IsStartup)
	return b
}

func (x *SubscribeUpdateAccount) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		n, err = consumeMessage(typ, b, &x.Account)
	case 2:
		x.Slot, n, err = consumeUint64(typ, b)
	case 3:
		x.IsStartup, n, err = consumeBool(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateAccountInfo is the account state after a write.
type SubscribeUpdateAccountInfo struct {
	Pubkey       []byte
	Lamports     uint64
	Owner        []byte
	Executable   bool
	RentEpoch    uint64
	Data         []byte
	WriteVersion uint64
	TxnSignature []byte
}

func (x *SubscribeUpdateAccountInfo) appendFields(b []byte) []byte {
	b = appendBytes(b, 1, x.Pubkey)
	b = appendUint64(b, 2, x.Lamports)
	b = appendBytes(b, 3, x.Owner)
	b = appendBool(b, 4, x.Executable)
	b = appendUint64(b, 5, x.RentEpoch)
	b = appendBytes(b, 6, x.Data)
	b = appendUint64(b, 7, x.WriteVersion)
	b = appendOptBytes(b, 8, x.TxnSignature)
	return b
}

func (x *SubscribeUpdateAccountInfo) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Pubkey, n, err = consumeBytes(typ, b)
	case 2:
		x.Lamports, n, err = consumeUint64(typ, b)
	case 3:
		x.Owner, n, err = consumeBytes(typ, b)
	case 4:
		x.Executable, n, err = consumeBool(typ, b)
	case 5:
		x.RentEpoch, n, err = consumeUint64(typ, b)
	case 6:
		x.Data, n, err = consumeBytes(typ, b)
	case 7:
		x.WriteVersion, n, err = consumeUint64(typ, b)
	case 8:
		x.TxnSignature, n, err = consumeBytes(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateSlot is a slot status transition. DeadError is set only for SlotDead.
type SubscribeUpdateSlot struct {
	Slot      uint64
	Parent    *uint64
	Status    SlotStatus
	DeadError *string
}

func (x *SubscribeUpdateSlot) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendOptUint64(b, 2, x.Parent)
	b = appendInt32(b, 3, int32(x.Status))
	b = appendOptString(b, 4, x.DeadError)
	return b
}

func (x *SubscribeUpdateSlot) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		n, err = consumeOptUint64(typ, b, &x.Parent)
	case 3:
		var v int32
		v, n, err = consumeInt32(typ, b)
		x.Status = SlotStatus(v)
	case 4:
		n, err = consumeOptString(typ, b, &x.DeadError)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateTransaction is a transaction matched by a transactions filter.
type SubscribeUpdateTransaction struct {
	Transaction *SubscribeUpdateTransactionInfo
	Slot        uint64
}

func (x *SubscribeUpdateTransaction) appendFields(b []byte) []byte {
	if x.Transaction != nil {
		b = appendMessage(b, 1, x.Transaction)
	}
	b = appendUint64(b, 2, x.Slot)
	return b
}

func (x *SubscribeUpdateTransaction) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		n, err = consumeMessage(typ, b, &x.Transaction)
	case 2:
		x.Slot, n, err = consumeUint64(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateTransactionInfo is a transaction with its status meta.
type SubscribeUpdateTransactionInfo struct {
	Signature   []byte
	IsVote      bool
	Transaction *Transaction
	Meta        *TransactionStatusMeta
	Index       uint64
}

func (x *SubscribeUpdateTransactionInfo) appendFields(b []byte) []byte {
	b = appendBytes(b, 1, x.Signature)
	b = appendBool(b, 2, x.IsVote)
	if x.Transaction != nil {
		b = appendMessage(b, 3, x.Transaction)
	}
	if x.Meta != nil {
		b = appendMessage(b, 4, x.Meta)
	}
	b = appendUint64(b, 5, x.Index)
	return b
}

func (x *SubscribeUpdateTransactionInfo) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Signature, n, err = consumeBytes(typ, b)
	case 2:
		x.IsVote, n, err = consumeBool(typ, b)
	case 3:
		n, err = consumeMessage(typ, b, &x.Transaction)
	case 4:
		n, err = consumeMessage(typ, b, &x.Meta)
	case 5:
		x.Index, n, err = consumeUint64(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateTransactionStatus is the outcome of a transaction without its body.
type SubscribeUpdateTransactionStatus struct {
	Slot      uint64
	Signature []byte
	IsVote    bool
	Index     uint64
	Err       *TransactionError
}

func (x *SubscribeUpdateTransactionStatus) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendBytes(b, 2, x.Signature)
	b = appendBool(b, 3, x.IsVote)
	b = appendUint64(b, 4, x.Index)
	if x.Err != nil {
		b = appendMessage(b, 5, x.Err)
	}
	return b
}

func (x *SubscribeUpdateTransactionStatus) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		x.Signature, n, err = consumeBytes(typ, b)
	case 3:
		x.IsVote, n, err = consumeBool(typ, b)
	case 4:
		x.Index, n, err = consumeUint64(typ, b)
	case 5:
		n, err = consumeMessage(typ, b, &x.Err)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateBlock is a complete block, optionally with transactions, accounts and entries inlined.
type SubscribeUpdateBlock struct {
	Slot                     uint64
	Blockhash                string
	Rewards                  *Rewards
	BlockTime                *UnixTimestamp
	BlockHeight              *BlockHeight
	ParentSlot               uint64
	ParentBlockhash          string
	ExecutedTransactionCount uint64
	Transactions             []*SubscribeUpdateTransactionInfo
	UpdatedAccountCount      uint64
	Accounts                 []*SubscribeUpdateAccountInfo
	EntriesCount             uint64
	Entries                  []*SubscribeUpdateEntry
}

func (x *SubscribeUpdateBlock) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendString(b, 2, x.Blockhash)
	if x.Rewards != nil {
		b = appendMessage(b, 3, x.Rewards)
	}
	if x.BlockTime != nil {
		b = appendMessage(b, 4, x.BlockTime)
	}
	if x.BlockHeight != nil {
		b = appendMessage(b, 5, x.BlockHeight)
	}
	b = appendList(b, 6, x.Transactions)
	b = appendUint64(b, 7, x.ParentSlot)
	b = appendString(b, 8, x.ParentBlockhash)
	b = appendUint64(b, 9, x.ExecutedTransactionCount)
	b = appendUint64(b, 10, x.UpdatedAccountCount)
	b = appendList(b, 11, x.Accounts)
	b = appendUint64(b, 12, x.EntriesCount)
	b = appendList(b, 13, x.Entries)
	return b
}

func (x *SubscribeUpdateBlock) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		x.Blockhash, n, err = consumeString(typ, b)
	case 3:
		n, err = consumeMessage(typ, b, &x.Rewards)
	case 4:
		n, err = consumeMessage(typ, b, &x.BlockTime)
	case 5:
		n, err = consumeMessage(typ, b, &x.BlockHeight)
	case 6:
		n, err = consumeList(typ, b, &x.Transactions)
	case 7:
		x.ParentSlot, n, err = consumeUint64(typ, b)
	case 8:
		x.ParentBlockhash, n, err = consumeString(typ, b)
	case 9:
		x.ExecutedTransactionCount, n, err = consumeUint64(typ, b)
	case 10:
		x.UpdatedAccountCount, n, err = consumeUint64(typ, b)
	case 11:
		n, err = consumeList(typ, b, &x.Accounts)
	case 12:
		x.EntriesCount, n, err = consumeUint64(typ, b)
	case 13:
		n, err = consumeList(typ, b, &x.Entries)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateBlockMeta is a block header without its contents.
type SubscribeUpdateBlockMeta struct {
	Slot                     uint64
	Blockhash                string
	Rewards                  *Rewards
	BlockTime                *UnixTimestamp
	BlockHeight              *BlockHeight
	ParentSlot               uint64
	ParentBlockhash          string
	ExecutedTransactionCount uint64
	EntriesCount             uint64
}

func (x *SubscribeUpdateBlockMeta) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendString(b, 2, x.Blockhash)
	if x.Rewards != nil {
		b = appendMessage(b, 3, x.Rewards)
	}
	if x.BlockTime != nil {
		b = appendMessage(b, 4, x.BlockTime)
	}
	if x.BlockHeight != nil {
		b = appendMessage(b, 5, x.BlockHeight)
	}
	b = appendUint64(b, 6, x.ParentSlot)
	b = appendString(b, 7, x.ParentBlockhash)
	b = appendUint64(b, 8, x.ExecutedTransactionCount)
	b = appendUint64(b, 9, x.EntriesCount)
	return b
}

func (x *SubscribeUpdateBlockMeta) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		x.Blockhash, n, err = consumeString(typ, b)
	case 3:
		n, err = consumeMessage(typ, b, &x.Rewards)
	case 4:
		n, err = consumeMessage(typ, b, &x.BlockTime)
	case 5:
		n, err = consumeMessage(typ, b, &x.BlockHeight)
	case 6:
		x.ParentSlot, n, err = consumeUint64(typ, b)
	case 7:
		x.ParentBlockhash, n, err = consumeString(typ, b)
	case 8:
		x.ExecutedTransactionCount, n, err = consumeUint64(typ, b)
	case 9:
		x.EntriesCount, n, err = consumeUint64(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdateEntry is a PoH ledger entry.
type SubscribeUpdateEntry struct {
	Slot                     uint64
	Index                    uint64
	NumHashes                uint64
	Hash                     []byte
	ExecutedTransactionCount uint64
	StartingTransactionIndex uint64
}

func (x *SubscribeUpdateEntry) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Slot)
	b = appendUint64(b, 2, x.Index)
	b = appendUint64(b, 3, x.NumHashes)
	b = appendBytes(b, 4, x.Hash)
	b = appendUint64(b, 5, x.ExecutedTransactionCount)
	b = appendUint64(b, 6, x.StartingTransactionIndex)
	return b
}

func (x *SubscribeUpdateEntry) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Slot, n, err = consumeUint64(typ, b)
	case 2:
		x.Index, n, err = consumeUint64(typ, b)
	case 3:
		x.NumHashes, n, err = consumeUint64(typ, b)
	case 4:
		x.Hash, n, err = consumeBytes(typ, b)
	case 5:
		x.ExecutedTransactionCount, n, err = consumeUint64(typ, b)
	case 6:
		x.StartingTransactionIndex, n, err = consumeUint64(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeUpdatePing is a server keepalive. Upstream servers send it empty;
// ID (field 1) is read when present so it can be echoed back.
type SubscribeUpdatePing struct {
	ID int32
}

func (x *SubscribeUpdatePing) appendFields(b []byte) []byte {
	return appendInt32(b, 1, x.ID)
}

func (x *SubscribeUpdatePing) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.ID, n, err = consumeInt32(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// SubscribeUpdatePong answers a SubscribeRequestPing.
type SubscribeUpdatePong struct {
	ID int32
}

func (x *SubscribeUpdatePong) appendFields(b []byte) []byte {
	return appendInt32(b, 1, x.ID)
}

func (x *SubscribeUpdatePong) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.ID, n, err = consumeInt32(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}
