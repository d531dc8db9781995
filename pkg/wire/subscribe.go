package wire

import "google.golang.org/protobuf/encoding/protowire"

// CommitmentLevel mirrors geyser.CommitmentLevel.
type CommitmentLevel int32

const (
	CommitmentProcessed CommitmentLevel = 0
	CommitmentConfirmed CommitmentLevel = 1
	CommitmentFinalized CommitmentLevel = 2
)

// SubscribeRequest is the only frame a client writes on the Subscribe stream.
type SubscribeRequest struct {
	Accounts           map[string]*SubscribeRequestFilterAccounts
	Slots              map[string]*SubscribeRequestFilterSlots
	Transactions       map[string]*SubscribeRequestFilterTransactions
	TransactionsStatus map[string]*SubscribeRequestFilterTransactions
	Blocks             map[string]*SubscribeRequestFilterBlocks
	BlocksMeta         map[string]*SubscribeRequestFilterBlocksMeta
	Entry              map[string]*SubscribeRequestFilterEntry
	Commitment         *CommitmentLevel
	AccountsDataSlice  []*SubscribeRequestAccountsDataSlice
	Ping               *SubscribeRequestPing
	FromSlot           *uint64
}

// IsPingOnly reports whether the request carries a ping and nothing else.
func (x *SubscribeRequest) IsPingOnly() bool {
	return x.Ping != nil &&
		len(x.Accounts) == 0 && len(x.Slots) == 0 &&
		len(x.Transactions) == 0 && len(x.TransactionsStatus) == 0 &&
		len(x.Blocks) == 0 && len(x.BlocksMeta) == 0 && len(x.Entry) == 0 &&
		x.Commitment == nil && len(x.AccountsDataSlice) == 0 && x.FromSlot == nil
}

func (x *SubscribeRequest) appendFields(b []byte) []byte {
	b = appendMap(b, 1, x.Accounts)
	b = appendMap(b, 2, x.Slots)
	b = appendMap(b, 3, x.Transactions)
	b = appendMap(b, 4, x.Blocks)
	b = appendMap(b, 5, x.BlocksMeta)
	b = appendOptCommitment(b, 6, x.Commitment)
	b = appendList(b, 7, x.AccountsDataSlice)
	b = appendMap(b, 8, x.Entry)
	if x.Ping != nil {
		b = appendMessage(b, 9, x.Ping)
	}
	b = appendMap(b, 10, x.TransactionsStatus)
	b = appendOptUint64(b, 11, x.FromSlot)
	return b
}

func (x *SubscribeRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeMap(typ, b, &x.Accounts)
	case 2:
		return consumeMap(typ, b, &x.Slots)
	case 3:
		return consumeMap(typ, b, &x.Transactions)
	case 4:
		return consumeMap(typ, b, &x.Blocks)
	case 5:
		return consumeMap(typ, b, &x.BlocksMeta)
	case 6:
		return consumeOptCommitment(typ, b, &x.Commitment)
	case 7:
		return consumeList(typ, b, &x.AccountsDataSlice)
	case 8:
		return consumeMap(typ, b, &x.Entry)
	case 9:
		return consumeMessage(typ, b, &x.Ping)
	case 10:
		return consumeMap(typ, b, &x.TransactionsStatus)
	case 11:
		return consumeOptUint64(typ, b, &x.FromSlot)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterAccounts selects account updates.
type SubscribeRequestFilterAccounts struct {
	Account              []string
	Owner                []string
	Filters              []*SubscribeRequestFilterAccountsFilter
	NonemptyTxnSignature *bool
}

func (x *SubscribeRequestFilterAccounts) appendFields(b []byte) []byte {
	b = appendStrings(b, 2, x.Account)
	b = appendStrings(b, 3, x.Owner)
	b = appendList(b, 4, x.Filters)
	b = appendOptBool(b, 5, x.NonemptyTxnSignature)
	return b
}

func (x *SubscribeRequestFilterAccounts) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 2:
		return consumeStrings(typ, b, &x.Account)
	case 3:
		return consumeStrings(typ, b, &x.Owner)
	case 4:
		return consumeList(typ, b, &x.Filters)
	case 5:
		return consumeOptBool(typ, b, &x.NonemptyTxnSignature)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterAccountsFilter is a oneof: exactly one field is expected to be set.
type SubscribeRequestFilterAccountsFilter struct {
	Memcmp            *SubscribeRequestFilterAccountsFilterMemcmp
	Datasize          *uint64
	TokenAccountState *bool
	Lamports          *SubscribeRequestFilterAccountsFilterLamports
}

func (x *SubscribeRequestFilterAccountsFilter) appendFields(b []byte) []byte {
	if x.Memcmp != nil {
		b = appendMessage(b, 1, x.Memcmp)
	}
	b = appendOptUint64(b, 2, x.Datasize)
	b = appendOptBool(b, 3, x.TokenAccountState)
	if x.Lamports != nil {
		b = appendMessage(b, 4, x.Lamports)
	}
	return b
}

func (x *SubscribeRequestFilterAccountsFilter) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeMessage(typ, b, &x.Memcmp)
	case 2:
		return consumeOptUint64(typ, b, &x.Datasize)
	case 3:
		return consumeOptBool(typ, b, &x.TokenAccountState)
	case 4:
		return consumeMessage(typ, b, &x.Lamports)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterAccountsFilterMemcmp compares account data at Offset.
// The data oneof is one of Bytes, Base58 or Base64.
type SubscribeRequestFilterAccountsFilterMemcmp struct {
	Offset uint64
	Bytes  []byte
	Base58 *string
	Base64 *string
}

func (x *SubscribeRequestFilterAccountsFilterMemcmp) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Offset)
	b = appendOptBytes(b, 2, x.Bytes)
	b = appendOptString(b, 3, x.Base58)
	b = appendOptString(b, 4, x.Base64)
	return b
}

func (x *SubscribeRequestFilterAccountsFilterMemcmp) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Offset, n, err = consumeUint64(typ, b)
	case 2:
		x.Bytes, n, err = consumeBytes(typ, b)
	case 3:
		n, err = consumeOptString(typ, b, &x.Base58)
	case 4:
		n, err = consumeOptString(typ, b, &x.Base64)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeRequestFilterAccountsFilterLamports is a oneof comparator on the balance.
type SubscribeRequestFilterAccountsFilterLamports struct {
	Eq *uint64
	Ne *uint64
	Lt *uint64
	Gt *uint64
}

func (x *SubscribeRequestFilterAccountsFilterLamports) appendFields(b []byte) []byte {
	b = appendOptUint64(b, 1, x.Eq)
	b = appendOptUint64(b, 2, x.Ne)
	b = appendOptUint64(b, 3, x.Lt)
	b = appendOptUint64(b, 4, x.Gt)
	return b
}

func (x *SubscribeRequestFilterAccountsFilterLamports) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeOptUint64(typ, b, &x.Eq)
	case 2:
		return consumeOptUint64(typ, b, &x.Ne)
	case 3:
		return consumeOptUint64(typ, b, &x.Lt)
	case 4:
		return consumeOptUint64(typ, b, &x.Gt)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterSlots selects slot status updates.
type SubscribeRequestFilterSlots struct {
	FilterByCommitment *bool
	InterslotUpdates   *bool
}

func (x *SubscribeRequestFilterSlots) appendFields(b []byte) []byte {
	b = appendOptBool(b, 1, x.FilterByCommitment)
	b = appendOptBool(b, 2, x.InterslotUpdates)
	return b
}

func (x *SubscribeRequestFilterSlots) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeOptBool(typ, b, &x.FilterByCommitment)
	case 2:
		return consumeOptBool(typ, b, &x.InterslotUpdates)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterTransactions selects transactions and transaction statuses.
type SubscribeRequestFilterTransactions struct {
	Vote            *bool
	Failed          *bool
	Signature       *string
	AccountInclude  []string
	AccountExclude  []string
	AccountRequired []string
}

func (x *SubscribeRequestFilterTransactions) appendFields(b []byte) []byte {
	b = appendOptBool(b, 1, x.Vote)
	b = appendOptBool(b, 2, x.Failed)
	b = appendStrings(b, 3, x.AccountInclude)
	b = appendStrings(b, 4, x.AccountExclude)
	b = appendOptString(b, 5, x.Signature)
	b = appendStrings(b, 6, x.AccountRequired)
	return b
}

func (x *SubscribeRequestFilterTransactions) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeOptBool(typ, b, &x.Vote)
	case 2:
		return consumeOptBool(typ, b, &x.Failed)
	case 3:
		return consumeStrings(typ, b, &x.AccountInclude)
	case 4:
		return consumeStrings(typ, b, &x.AccountExclude)
	case 5:
		return consumeOptString(typ, b, &x.Signature)
	case 6:
		return consumeStrings(typ, b, &x.AccountRequired)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterBlocks selects full blocks.
type SubscribeRequestFilterBlocks struct {
	AccountInclude      []string
	IncludeTransactions *bool
	IncludeAccounts     *bool
	IncludeEntries      *bool
}

func (x *SubscribeRequestFilterBlocks) appendFields(b []byte) []byte {
	b = appendStrings(b, 1, x.AccountInclude)
	b = appendOptBool(b, 2, x.IncludeTransactions)
	b = appendOptBool(b, 3, x.IncludeAccounts)
	b = appendOptBool(b, 4, x.IncludeEntries)
	return b
}

func (x *SubscribeRequestFilterBlocks) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeStrings(typ, b, &x.AccountInclude)
	case 2:
		return consumeOptBool(typ, b, &x.IncludeTransactions)
	case 3:
		return consumeOptBool(typ, b, &x.IncludeAccounts)
	case 4:
		return consumeOptBool(typ, b, &x.IncludeEntries)
	default:
		return skipField(num, typ, b)
	}
}

// SubscribeRequestFilterBlocksMeta has no fields.
type SubscribeRequestFilterBlocksMeta struct{}

func (x *SubscribeRequestFilterBlocksMeta) appendFields(b []byte) []byte { return b }

func (x *SubscribeRequestFilterBlocksMeta) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return skipField(num, typ, b)
}

// SubscribeRequestFilterEntry has no fields.
type SubscribeRequestFilterEntry struct{}

func (x *SubscribeRequestFilterEntry) appendFields(b []byte) []byte { return b }

func (x *SubscribeRequestFilterEntry) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return skipField(num, typ, b)
}

// SubscribeRequestAccountsDataSlice bounds the account data returned in updates.
type SubscribeRequestAccountsDataSlice struct {
	Offset uint64
	Length uint64
}

func (x *SubscribeRequestAccountsDataSlice) appendFields(b []byte) []byte {
	b = appendUint64(b, 1, x.Offset)
	b = appendUint64(b, 2, x.Length)
	return b
}

func (x *SubscribeRequestAccountsDataSlice) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Offset, n, err = consumeUint64(typ, b)
	case 2:
		x.Length, n, err = consumeUint64(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// SubscribeRequestPing asks the server for a Pong carrying ID.
type SubscribeRequestPing struct {
	ID int32
}

func (x *SubscribeRequestPing) appendFields(b []byte) []byte {
	return appendInt32(b, 1, x.ID)
}

func (x *SubscribeRequestPing) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.ID, n, err = consumeInt32(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}
