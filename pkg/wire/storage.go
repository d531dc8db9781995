package wire

import "google.golang.org/protobuf/encoding/protowire"

// Message shapes from solana-storage.proto embedded in transaction and block updates.

// Transaction is a compiled transaction.
type Transaction struct {
	Signatures [][]byte
	Message    *Message
}

func (x *Transaction) appendFields(b []byte) []byte {
	b = appendBytesList(b, 1, x.Signatures)
	if x.Message != nil {
		b = appendMessage(b, 2, x.Message)
	}
	return b
}

func (x *Transaction) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeBytesList(typ, b, &x.Signatures)
	case 2:
		return consumeMessage(typ, b, &x.Message)
	default:
		return skipField(num, typ, b)
	}
}

// Message is a legacy or v0 transaction message.
type Message struct {
	Header              *MessageHeader
	AccountKeys         [][]byte
	RecentBlockhash     []byte
	Instructions        []*CompiledInstruction
	Versioned           bool
	AddressTableLookups []*MessageAddressTableLookup
}

func (x *Message) appendFields(b []byte) []byte {
	if x.Header != nil {
		b = appendMessage(b, 1, x.Header)
	}
	b = appendBytesList(b, 2, x.AccountKeys)
	b = appendBytes(b, 3, x.RecentBlockhash)
	b = appendList(b, 4, x.Instructions)
	b = appendBool(b, 5, x.Versioned)
	b = appendList(b, 6, x.AddressTableLookups)
	return b
}

func (x *Message) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		n, err = consumeMessage(typ, b, &x.Header)
	case 2:
		n, err = consumeBytesList(typ, b, &x.AccountKeys)
	case 3:
		x.RecentBlockhash, n, err = consumeBytes(typ, b)
	case 4:
		n, err = consumeList(typ, b, &x.Instructions)
	case 5:
		x.Versioned, n, err = consumeBool(typ, b)
	case 6:
		n, err = consumeList(typ, b, &x.AddressTableLookups)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// MessageHeader counts signer and read-only accounts.
type MessageHeader struct {
	NumRequiredSignatures       uint32
	NumReadonlySignedAccounts   uint32
	NumReadonlyUnsignedAccounts uint32
}

func (x *MessageHeader) appendFields(b []byte) []byte {
	b = appendUint32(b, 1, x.NumRequiredSignatures)
	b = appendUint32(b, 2, x.NumReadonlySignedAccounts)
	b = appendUint32(b, 3, x.NumReadonlyUnsignedAccounts)
	return b
}

func (x *MessageHeader) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.NumRequiredSignatures, n, err = consumeUint32(typ, b)
	case 2:
		x.NumReadonlySignedAccounts, n, err = consumeUint32(typ, b)
	case 3:
		x.NumReadonlyUnsignedAccounts, n, err = consumeUint32(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// CompiledInstruction references accounts by index into the message keys.
type CompiledInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte
	Data           []byte
}

func (x *CompiledInstruction) appendFields(b []byte) []byte {
	b = appendUint32(b, 1, x.ProgramIDIndex)
	b = appendBytes(b, 2, x.Accounts)
	b = appendBytes(b, 3, x.Data)
	return b
}

func (x *CompiledInstruction) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.ProgramIDIndex, n, err = consumeUint32(typ, b)
	case 2:
		x.Accounts, n, err = consumeBytes(typ, b)
	case 3:
		x.Data, n, err = consumeBytes(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// MessageAddressTableLookup loads extra accounts from an address lookup table.
type MessageAddressTableLookup struct {
	AccountKey      []byte
	WritableIndexes []byte
	ReadonlyIndexes []byte
}

func (x *MessageAddressTableLookup) appendFields(b []byte) []byte {
	b = appendBytes(b, 1, x.AccountKey)
	b = appendBytes(b, 2, x.WritableIndexes)
	b = appendBytes(b, 3, x.ReadonlyIndexes)
	return b
}

func (x *MessageAddressTableLookup) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.AccountKey, n, err = consumeBytes(typ, b)
	case 2:
		x.WritableIndexes, n, err = consumeBytes(typ, b)
	case 3:
		x.ReadonlyIndexes, n, err = consumeBytes(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// TransactionStatusMeta is the execution result of a transaction.
// The *None flags distinguish "not recorded" from "recorded as empty".
type TransactionStatusMeta struct {
	Err                     *TransactionError
	Fee                     uint64
	PreBalances             []uint64
	PostBalances            []uint64
	InnerInstructions       []*InnerInstructions
	InnerInstructionsNone   bool
	LogMessages             []string
	LogMessagesNone         bool
	PreTokenBalances        []*TokenBalance
	PostTokenBalances       []*TokenBalance
	Rewards                 []*Reward
	LoadedWritableAddresses [][]byte
	LoadedReadonlyAddresses [][]byte
	ReturnData              *ReturnData
	ReturnDataNone          bool
	ComputeUnitsConsumed    *uint64
	CostUnits               *uint64
}

func (x *TransactionStatusMeta) appendFields(b []byte) []byte {
	if x.Err != nil {
		b = appendMessage(b, 1, x.Err)
	}
	b = appendUint64(b, 2, x.Fee)
	b = appendPackedUint64(b, 3, x.PreBalances)
	b = appendPackedUint64(b, 4, x.PostBalances)
	b = appendList(b, 5, x.InnerInstructions)
	b = appendStrings(b, 6, x.LogMessages)
	b = appendList(b, 7, x.PreTokenBalances)
	b = appendList(b, 8, x.PostTokenBalances)
	b = appendList(b, 9, x.Rewards)
	b = appendBool(b, 10, x.InnerInstructionsNone)
	b = appendBool(b, 11, x.LogMessagesNone)
	b = appendBytesList(b, 12, x.LoadedWritableAddresses)
	b = appendBytesList(b, 13, x.LoadedReadonlyAddresses)
	if x.ReturnData != nil {
		b = appendMessage(b, 14, x.ReturnData)
	}
	b = appendBool(b, 15, x.ReturnDataNone)
	b = appendOptUint64(b, 16, x.ComputeUnitsConsumed)
	b = appendOptUint64(b, 17, x.CostUnits)
	return b
}

func (x *TransactionStatusMeta) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		n, err = consumeMessage(typ, b, &x.Err)
	case 2:
		x.Fee, n, err = consumeUint64(typ, b)
	case 3:
		n, err = consumePackedUint64(typ, b, &x.PreBalances)
	case 4:
		n, err = consumePackedUint64(typ, b, &x.PostBalances)
	case 5:
		n, err = consumeList(typ, b, &x.InnerInstructions)
	case 6:
		n, err = consumeStrings(typ, b, &x.LogMessages)
	case 7:
		n, err = consumeList(typ, b, &x.PreTokenBalances)
	case 8:
		n, err = consumeList(typ, b, &x.PostTokenBalances)
	case 9:
		n, err = consumeList(typ, b, &x.Rewards)
	case 10:
		x.InnerInstructionsNone, n, err = consumeBool(typ, b)
	case 11:
		x.LogMessagesNone, n, err = consumeBool(typ, b)
	case 12:
		n, err = consumeBytesList(typ, b, &x.LoadedWritableAddresses)
	case 13:
		n, err = consumeBytesList(typ, b, &x.LoadedReadonlyAddresses)
	case 14:
		n, err = consumeMessage(typ, b, &x.ReturnData)
	case 15:
		x.ReturnDataNone, n, err = consumeBool(typ, b)
	case 16:
		n, err = consumeOptUint64(typ, b, &x.ComputeUnitsConsumed)
	case 17:
		n, err = consumeOptUint64(typ, b, &x.CostUnits)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// TransactionError holds a bincode-serialized TransactionError.
type TransactionError struct {
	Err []byte
}

func (x *TransactionError) appendFields(b []byte) []byte {
	return appendBytes(b, 1, x.Err)
}

func (x *TransactionError) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.Err, n, err = consumeBytes(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// InnerInstructions groups the CPI instructions of one top-level instruction.
type InnerInstructions struct {
	Index        uint32
	Instructions []*InnerInstruction
}

func (x *InnerInstructions) appendFields(b []byte) []byte {
	b = appendUint32(b, 1, x.Index)
	b = appendList(b, 2, x.Instructions)
	return b
}

func (x *InnerInstructions) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Index, n, err = consumeUint32(typ, b)
	case 2:
		n, err = consumeList(typ, b, &x.Instructions)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// InnerInstruction is a CPI instruction with its invocation depth.
type InnerInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte
	Data           []byte
	StackHeight    *uint32
}

func (x *InnerInstruction) appendFields(b []byte) []byte {
	b = appendUint32(b, 1, x.ProgramIDIndex)
	b = appendBytes(b, 2, x.Accounts)
	b = appendBytes(b, 3, x.Data)
	b = appendOptUint32(b, 4, x.StackHeight)
	return b
}

func (x *InnerInstruction) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.ProgramIDIndex, n, err = consumeUint32(typ, b)
	case 2:
		x.Accounts, n, err = consumeBytes(typ, b)
	case 3:
		x.Data, n, err = consumeBytes(typ, b)
	case 4:
		n, err = consumeOptUint32(typ, b, &x.StackHeight)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// TokenBalance is an SPL token balance snapshot.
type TokenBalance struct {
	AccountIndex  uint32
	Mint          string
	UiTokenAmount *UiTokenAmount
	Owner         string
	ProgramID     string
}

func (x *TokenBalance) appendFields(b []byte) []byte {
	b = appendUint32(b, 1, x.AccountIndex)
	b = appendString(b, 2, x.Mint)
	if x.UiTokenAmount != nil {
		b = appendMessage(b, 3, x.UiTokenAmount)
	}
	b = appendString(b, 4, x.Owner)
	b = appendString(b, 5, x.ProgramID)
	return b
}

func (x *TokenBalance) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.AccountIndex, n, err = consumeUint32(typ, b)
	case 2:
		x.Mint, n, err = consumeString(typ, b)
	case 3:
		n, err = consumeMessage(typ, b, &x.UiTokenAmount)
	case 4:
		x.Owner, n, err = consumeString(typ, b)
	case 5:
		x.ProgramID, n, err = consumeString(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// UiTokenAmount is a token amount in raw and display forms.
type UiTokenAmount struct {
	UiAmount       float64
	Decimals       uint32
	Amount         string
	UiAmountString string
}

func (x *UiTokenAmount) appendFields(b []byte) []byte {
	b = appendDouble(b, 1, x.UiAmount)
	b = appendUint32(b, 2, x.Decimals)
	b = appendString(b, 3, x.Amount)
	b = appendString(b, 4, x.UiAmountString)
	return b
}

func (x *UiTokenAmount) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.UiAmount, n, err = consumeDouble(typ, b)
	case 2:
		x.Decimals, n, err = consumeUint32(typ, b)
	case 3:
		x.Amount, n, err = consumeString(typ, b)
	case 4:
		x.UiAmountString, n, err = consumeString(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// RewardType identifies why a reward was credited.
type RewardType int32

const (
	RewardTypeUnspecified RewardType = 0
	RewardTypeFee         RewardType = 1
	RewardTypeRent        RewardType = 2
	RewardTypeStaking     RewardType = 3
	RewardTypeVoting      RewardType = 4
)

// Reward is a balance change credited outside of instruction execution.
type Reward struct {
	Pubkey      string
	Lamports    int64
	PostBalance uint64
	RewardType  RewardType
	Commission  string
}

func (x *Reward) appendFields(b []byte) []byte {
	b = appendString(b, 1, x.Pubkey)
	b = appendInt64(b, 2, x.Lamports)
	b = appendUint64(b, 3, x.PostBalance)
	b = appendInt32(b, 4, int32(x.RewardType))
	b = appendString(b, 5, x.Commission)
	return b
}

func (x *Reward) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.Pubkey, n, err = consumeString(typ, b)
	case 2:
		x.Lamports, n, err = consumeInt64(typ, b)
	case 3:
		x.PostBalance, n, err = consumeUint64(typ, b)
	case 4:
		var v int32
		v, n, err = consumeInt32(typ, b)
		x.RewardType = RewardType(v)
	case 5:
		x.Commission, n, err = consumeString(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}

// Rewards wraps the rewards of a block.
type Rewards struct {
	Rewards       []*Reward
	NumPartitions *NumPartitions
}

func (x *Rewards) appendFields(b []byte) []byte {
	b = appendList(b, 1, x.Rewards)
	if x.NumPartitions != nil {
		b = appendMessage(b, 2, x.NumPartitions)
	}
	return b
}

func (x *Rewards) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeList(typ, b, &x.Rewards)
	case 2:
		return consumeMessage(typ, b, &x.NumPartitions)
	default:
		return skipField(num, typ, b)
	}
}

// NumPartitions is the partition count of partitioned epoch rewards.
type NumPartitions struct {
	NumPartitions uint64
}

func (x *NumPartitions) appendFields(b []byte) []byte {
	return appendUint64(b, 1, x.NumPartitions)
}

func (x *NumPartitions) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.NumPartitions, n, err = consumeUint64(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// UnixTimestamp is a block production time in seconds.
type UnixTimestamp struct {
	Timestamp int64
}

func (x *UnixTimestamp) appendFields(b []byte) []byte {
	return appendInt64(b, 1, x.Timestamp)
}

func (x *UnixTimestamp) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.Timestamp, n, err = consumeInt64(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// BlockHeight wraps a block height so that absence can be expressed.
type BlockHeight struct {
	BlockHeight uint64
}

func (x *BlockHeight) appendFields(b []byte) []byte {
	return appendUint64(b, 1, x.BlockHeight)
}

func (x *BlockHeight) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	if num == 1 {
		x.BlockHeight, n, err = consumeUint64(typ, b)
		return n, err
	}
	return skipField(num, typ, b)
}

// ReturnData is the data a program returned from a transaction.
type ReturnData struct {
	ProgramID []byte
	Data      []byte
}

func (x *ReturnData) appendFields(b []byte) []byte {
	b = appendBytes(b, 1, x.ProgramID)
	b = appendBytes(b, 2, x.Data)
	return b
}

func (x *ReturnData) consumeField(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
	switch num {
	case 1:
		x.ProgramID, n, err = consumeBytes(typ, b)
	case 2:
		x.Data, n, err = consumeBytes(typ, b)
	default:
		n, err = skipField(num, typ, b)
	}
	return n, err
}
