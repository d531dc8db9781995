// Package txencoding renders captured transactions, transaction errors and
// account data in the display encodings used by Solana JSON-RPC.
package txencoding

import (
	"errors"
	"fmt"
)

// Encoding is an output encoding for transactions and account data.
type Encoding string

const (
	EncodingBinary     Encoding = "binary"
	EncodingBase58     Encoding = "base58"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
	EncodingJSON       Encoding = "json"
	EncodingJSONParsed Encoding = "jsonParsed"
)

// Errors returned by the encoders.
var (
	ErrUnsupportedEncoding           = errors.New("unsupported encoding")
	ErrUnsupportedTransactionVersion = errors.New("transaction version is not supported by the requested max version")
	ErrMissingTransaction            = errors.New("transaction info carries no transaction")
	ErrMalformedError                = errors.New("malformed transaction error")
)

// ParseEncoding parses the RPC name of an encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(s); e {
	case EncodingBinary, EncodingBase58, EncodingBase64, EncodingBase64Zstd, EncodingJSON, EncodingJSONParsed:
		return e, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEncoding, s)
	}
}

// EncodedTransactionWithMeta is the top-level object produced by EncodeTransaction.
type EncodedTransactionWithMeta struct {
	Transaction any                      `json:"transaction"`
	Meta        *UiTransactionStatusMeta `json:"meta"`
	Version     any                      `json:"version,omitempty"`
}

// UiTransaction is a transaction rendered as JSON.
type UiTransaction struct {
	Signatures []string `json:"signatures"`
	Message    any      `json:"message"`
}

// UiRawMessage is a message with accounts referenced by index.
type UiRawMessage struct {
	Header              UiMessageHeader         `json:"header"`
	AccountKeys         []string                `json:"accountKeys"`
	RecentBlockhash     string                  `json:"recentBlockhash"`
	Instructions        []UiCompiledInstruction `json:"instructions"`
	AddressTableLookups []UiAddressTableLookup  `json:"addressTableLookups,omitempty"`
}

// UiMessageHeader mirrors the message header counts.
type UiMessageHeader struct {
	NumRequiredSignatures       uint8 `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   uint8 `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts uint8 `json:"numReadonlyUnsignedAccounts"`
}

// UiCompiledInstruction is an instruction with account indexes.
type UiCompiledInstruction struct {
	ProgramIDIndex uint8   `json:"programIdIndex"`
	Accounts       []int   `json:"accounts"`
	Data           string  `json:"data"`
	StackHeight    *uint32 `json:"stackHeight"`
}

// UiAddressTableLookup references an address lookup table.
type UiAddressTableLookup struct {
	AccountKey      string `json:"accountKey"`
	WritableIndexes []int  `json:"writableIndexes"`
	ReadonlyIndexes []int  `json:"readonlyIndexes"`
}

// UiParsedMessage is a message with account keys resolved to addresses.
type UiParsedMessage struct {
	AccountKeys         []ParsedAccountKey     `json:"accountKeys"`
	RecentBlockhash     string                 `json:"recentBlockhash"`
	Instructions        []UiPartiallyDecoded   `json:"instructions"`
	AddressTableLookups []UiAddressTableLookup `json:"addressTableLookups,omitempty"`
}

// ParsedAccountKey is an account key with its role in the message.
type ParsedAccountKey struct {
	Pubkey   string `json:"pubkey"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
	Source   string `json:"source"`
}

// UiPartiallyDecoded is an instruction whose accounts are resolved but whose data is left raw.
type UiPartiallyDecoded struct {
	ProgramID   string   `json:"programId"`
	Accounts    []string `json:"accounts"`
	Data        string   `json:"data"`
	StackHeight *uint32  `json:"stackHeight"`
}

// UiTransactionStatusMeta is the execution metadata of a transaction.
type UiTransactionStatusMeta struct {
	Err                  any                   `json:"err"`
	Status               map[string]any        `json:"status"`
	Fee                  uint64                `json:"fee"`
	PreBalances          []uint64              `json:"preBalances"`
	PostBalances         []uint64              `json:"postBalances"`
	InnerInstructions    []UiInnerInstructions `json:"innerInstructions,omitempty"`
	LogMessages          []string              `json:"logMessages,omitempty"`
	PreTokenBalances     []UiTokenBalance      `json:"preTokenBalances"`
	PostTokenBalances    []UiTokenBalance      `json:"postTokenBalances"`
	Rewards              []UiReward            `json:"rewards,omitempty"`
	LoadedAddresses      *UiLoadedAddresses    `json:"loadedAddresses,omitempty"`
	ReturnData           *UiReturnData         `json:"returnData,omitempty"`
	ComputeUnitsConsumed *uint64               `json:"computeUnitsConsumed,omitempty"`
	CostUnits            *uint64               `json:"costUnits,omitempty"`
}

// UiInnerInstructions groups CPI instructions by the index of their top-level instruction.
type UiInnerInstructions struct {
	Index        uint8 `json:"index"`
	Instructions []any `json:"instructions"`
}

// UiTokenBalance is a token balance snapshot.
type UiTokenBalance struct {
	AccountIndex  uint8         `json:"accountIndex"`
	Mint          string        `json:"mint"`
	UiTokenAmount UiTokenAmount `json:"uiTokenAmount"`
	Owner         string        `json:"owner,omitempty"`
	ProgramID     string        `json:"programId,omitempty"`
}

// UiTokenAmount is a token amount in raw and display forms.
type UiTokenAmount struct {
	UiAmount       *float64 `json:"uiAmount"`
	Decimals       uint8    `json:"decimals"`
	Amount         string   `json:"amount"`
	UiAmountString string   `json:"uiAmountString"`
}

// UiReward is a reward credited by a transaction or block.
type UiReward struct {
	Pubkey      string  `json:"pubkey"`
	Lamports    int64   `json:"lamports"`
	PostBalance uint64  `json:"postBalance"`
	RewardType  *string `json:"rewardType"`
	Commission  *uint8  `json:"commission"`
}

// UiLoadedAddresses lists addresses loaded from lookup tables.
type UiLoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// UiReturnData is program return data as [base64, "base64"].
type UiReturnData struct {
	ProgramID string    `json:"programId"`
	Data      [2]string `json:"data"`
}
