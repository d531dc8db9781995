package txencoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

const (
	versionPrefix = 0x80

	sourceTransaction = "transaction"
	sourceLookupTable = "lookupTable"
)

// EncodeTransaction renders a captured transaction in the requested encoding.
//
// raw is the wire encoding of a SubscribeUpdateTransactionInfo. The result is
// a JSON object {"transaction", "meta", "version"} shaped like getTransaction.
// version is emitted only when maxSupportedVersion is set; a versioned
// transaction without maxSupportedVersion fails with ErrUnsupportedTransactionVersion.
// Rewards are included in meta only when showRewards is set.
func EncodeTransaction(raw []byte, encoding Encoding, maxSupportedVersion *uint8, showRewards bool) (string, error) {
	info := &wire.SubscribeUpdateTransactionInfo{}
	if err := wire.Unmarshal(raw, info); err != nil {
		return "", fmt.Errorf("decode transaction info: %w", err)
	}
	out, err := EncodeTransactionInfo(info, encoding, maxSupportedVersion, showRewards)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return string(b), nil
}

// EncodeTransactionInfo is EncodeTransaction on an already decoded transaction.
func EncodeTransactionInfo(info *wire.SubscribeUpdateTransactionInfo, encoding Encoding, maxSupportedVersion *uint8, showRewards bool) (*EncodedTransactionWithMeta, error) {
	tx := info.Transaction
	if tx == nil || tx.Message == nil {
		return nil, ErrMissingTransaction
	}
	msg := tx.Message

	var version any
	switch {
	case msg.Versioned && maxSupportedVersion == nil:
		return nil, ErrUnsupportedTransactionVersion
	case maxSupportedVersion != nil && msg.Versioned:
		version = 0
	case maxSupportedVersion != nil:
		version = "legacy"
	}

	out := &EncodedTransactionWithMeta{Version: version}

	switch encoding {
	case EncodingBinary:
		out.Transaction = base58.Encode(SerializeTransaction(tx))
	case EncodingBase58:
		out.Transaction = [2]string{base58.Encode(SerializeTransaction(tx)), string(EncodingBase58)}
	case EncodingBase64:
		out.Transaction = [2]string{base64.StdEncoding.EncodeToString(SerializeTransaction(tx)), string(EncodingBase64)}
	case EncodingJSON:
		out.Transaction = UiTransaction{Signatures: encodeSignatures(tx.Signatures), Message: rawMessage(msg)}
	case EncodingJSONParsed:
		out.Transaction = UiTransaction{Signatures: encodeSignatures(tx.Signatures), Message: parsedMessage(msg, info.Meta)}
	default:
		return nil, fmt.Errorf("%w for transactions: %q", ErrUnsupportedEncoding, encoding)
	}

	if info.Meta != nil {
		meta, err := encodeMeta(info.Meta, msg, encoding, showRewards)
		if err != nil {
			return nil, err
		}
		out.Meta = meta
	}
	return out, nil
}

// SerializeTransaction returns the Solana wire serialization of a transaction.
func SerializeTransaction(tx *wire.Transaction) []byte {
	b := appendCompactU16(nil, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		b = append(b, sig...)
	}
	if tx.Message != nil {
		b = appendMessage(b, tx.Message)
	}
	return b
}

func appendMessage(b []byte, msg *wire.Message) []byte {
	if msg.Versioned {
		b = append(b, versionPrefix)
	}
	if h := msg.Header; h != nil {
		b = append(b, uint8(h.NumRequiredSignatures), uint8(h.NumReadonlySignedAccounts), uint8(h.NumReadonlyUnsignedAccounts))
	} else {
		b = append(b, 0, 0, 0)
	}
	b = appendCompactU16(b, len(msg.AccountKeys))
	for _, key := range msg.AccountKeys {
		b = append(b, key...)
	}
	b = append(b, msg.RecentBlockhash...)
	b = appendCompactU16(b, len(msg.Instructions))
	for _, ix := range msg.Instructions {
		b = append(b, uint8(ix.ProgramIDIndex))
		b = appendCompactU16(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = appendCompactU16(b, len(ix.Data))
		b = append(b, ix.Data...)
	}
	if msg.Versioned {
		b = appendCompactU16(b, len(msg.AddressTableLookups))
		for _, l := range msg.AddressTableLookups {
			b = append(b, l.AccountKey...)
			b = appendCompactU16(b, len(l.WritableIndexes))
			b = append(b, l.WritableIndexes...)
			b = appendCompactU16(b, len(l.ReadonlyIndexes))
			b = append(b, l.ReadonlyIndexes...)
		}
	}
	return b
}

// appendCompactU16 writes the shortvec length prefix: 7 bits per byte, high bit set on all but the last.
func appendCompactU16(b []byte, n int) []byte {
	v := uint16(n)
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func encodeSignatures(sigs [][]byte) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = base58.Encode(s)
	}
	return out
}

func encodeKeys(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = base58.Encode(k)
	}
	return out
}

func header(msg *wire.Message) UiMessageHeader {
	if msg.Header == nil {
		return UiMessageHeader{}
	}
	return UiMessageHeader{
		NumRequiredSignatures:       uint8(msg.Header.NumRequiredSignatures),
		NumReadonlySignedAccounts:   uint8(msg.Header.NumReadonlySignedAccounts),
		NumReadonlyUnsignedAccounts: uint8(msg.Header.NumReadonlyUnsignedAccounts),
	}
}

func rawMessage(msg *wire.Message) UiRawMessage {
	out := UiRawMessage{
		Header:          header(msg),
		AccountKeys:     encodeKeys(msg.AccountKeys),
		RecentBlockhash: base58.Encode(msg.RecentBlockhash),
		Instructions:    make([]UiCompiledInstruction, len(msg.Instructions)),
	}
	for i, ix := range msg.Instructions {
		out.Instructions[i] = UiCompiledInstruction{
			ProgramIDIndex: uint8(ix.ProgramIDIndex),
			Accounts:       indexes(ix.Accounts),
			Data:           base58.Encode(ix.Data),
		}
	}
	if msg.Versioned {
		out.AddressTableLookups = lookups(msg.AddressTableLookups)
	}
	return out
}

func lookups(in []*wire.MessageAddressTableLookup) []UiAddressTableLookup {
	out := make([]UiAddressTableLookup, len(in))
	for i, l := range in {
		out[i] = UiAddressTableLookup{
			AccountKey:      base58.Encode(l.AccountKey),
			WritableIndexes: indexes(l.WritableIndexes),
			ReadonlyIndexes: indexes(l.ReadonlyIndexes),
		}
	}
	return out
}

// indexes widens index lists so they marshal as JSON arrays rather than base64.
func indexes(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// accountKeys lists static keys followed by addresses loaded from lookup tables.
func accountKeys(msg *wire.Message, meta *wire.TransactionStatusMeta) []ParsedAccountKey {
	h := header(msg)
	n := len(msg.AccountKeys)
	keys := make([]ParsedAccountKey, 0, n)
	for i, k := range msg.AccountKeys {
		signer := i < int(h.NumRequiredSignatures)
		var writable bool
		if signer {
			writable = i < int(h.NumRequiredSignatures)-int(h.NumReadonlySignedAccounts)
		} else {
			writable = i < n-int(h.NumReadonlyUnsignedAccounts)
		}
		keys = append(keys, ParsedAccountKey{Pubkey: base58.Encode(k), Writable: writable, Signer: signer, Source: sourceTransaction})
	}
	if meta != nil && msg.Versioned {
		for _, k := range meta.LoadedWritableAddresses {
			keys = append(keys, ParsedAccountKey{Pubkey: base58.Encode(k), Writable: true, Source: sourceLookupTable})
		}
		for _, k := range meta.LoadedReadonlyAddresses {
			keys = append(keys, ParsedAccountKey{Pubkey: base58.Encode(k), Source: sourceLookupTable})
		}
	}
	return keys
}

func parsedMessage(msg *wire.Message, meta *wire.TransactionStatusMeta) UiParsedMessage {
	keys := accountKeys(msg, meta)
	out := UiParsedMessage{
		AccountKeys:     keys,
		RecentBlockhash: base58.Encode(msg.RecentBlockhash),
		Instructions:    make([]UiPartiallyDecoded, len(msg.Instructions)),
	}
	for i, ix := range msg.Instructions {
		out.Instructions[i] = partiallyDecoded(keys, ix.ProgramIDIndex, ix.Accounts, ix.Data, nil)
	}
	if msg.Versioned {
		out.AddressTableLookups = lookups(msg.AddressTableLookups)
	}
	return out
}

func partiallyDecoded(keys []ParsedAccountKey, program uint32, accounts, data []byte, stackHeight *uint32) UiPartiallyDecoded {
	resolve := func(i int) string {
		if i < len(keys) {
			return keys[i].Pubkey
		}
		return ""
	}
	out := UiPartiallyDecoded{
		ProgramID:   resolve(int(program)),
		Accounts:    make([]string, len(accounts)),
		Data:        base58.Encode(data),
		StackHeight: stackHeight,
	}
	for i, a := range accounts {
		out.Accounts[i] = resolve(int(a))
	}
	return out
}

func encodeMeta(meta *wire.TransactionStatusMeta, msg *wire.Message, encoding Encoding, showRewards bool) (*UiTransactionStatusMeta, error) {
	out := &UiTransactionStatusMeta{
		Fee:                  meta.Fee,
		PreBalances:          nonNil(meta.PreBalances),
		PostBalances:         nonNil(meta.PostBalances),
		PreTokenBalances:     tokenBalances(meta.PreTokenBalances),
		PostTokenBalances:    tokenBalances(meta.PostTokenBalances),
		ComputeUnitsConsumed: meta.ComputeUnitsConsumed,
		CostUnits:            meta.CostUnits,
		Status:               map[string]any{"Ok": nil},
	}

	if meta.Err != nil && len(meta.Err.Err) > 0 {
		txErr, err := decodeTransactionError(meta.Err.Err)
		if err != nil {
			return nil, err
		}
		out.Err = txErr
		out.Status = map[string]any{"Err": txErr}
	}

	if !meta.LogMessagesNone {
		out.LogMessages = nonNil(meta.LogMessages)
	}

	if !meta.InnerInstructionsNone {
		var keys []ParsedAccountKey
		if encoding == EncodingJSONParsed {
			keys = accountKeys(msg, meta)
		}
		out.InnerInstructions = make([]UiInnerInstructions, len(meta.InnerInstructions))
		for i, group := range meta.InnerInstructions {
			ixs := make([]any, len(group.Instructions))
			for j, ix := range group.Instructions {
				if encoding == EncodingJSONParsed {
					ixs[j] = partiallyDecoded(keys, ix.ProgramIDIndex, ix.Accounts, ix.Data, ix.StackHeight)
					continue
				}
				ixs[j] = UiCompiledInstruction{
					ProgramIDIndex: uint8(ix.ProgramIDIndex),
					Accounts:       indexes(ix.Accounts),
					Data:           base58.Encode(ix.Data),
					StackHeight:    ix.StackHeight,
				}
			}
			out.InnerInstructions[i] = UiInnerInstructions{Index: uint8(group.Index), Instructions: ixs}
		}
	}

	if showRewards {
		out.Rewards = Rewards(meta.Rewards)
		if out.Rewards == nil {
			out.Rewards = []UiReward{}
		}
	}

	// Loaded addresses are folded into the account keys in jsonParsed output.
	if encoding != EncodingJSONParsed {
		out.LoadedAddresses = &UiLoadedAddresses{
			Writable: encodeKeys(meta.LoadedWritableAddresses),
			Readonly: encodeKeys(meta.LoadedReadonlyAddresses),
		}
	}

	if meta.ReturnData != nil && !meta.ReturnDataNone {
		out.ReturnData = &UiReturnData{
			ProgramID: base58.Encode(meta.ReturnData.ProgramID),
			Data:      [2]string{base64.StdEncoding.EncodeToString(meta.ReturnData.Data), string(EncodingBase64)},
		}
	}
	return out, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func tokenBalances(in []*wire.TokenBalance) []UiTokenBalance {
	out := make([]UiTokenBalance, len(in))
	for i, tb := range in {
		out[i] = UiTokenBalance{
			AccountIndex: uint8(tb.AccountIndex),
			Mint:         tb.Mint,
			Owner:        tb.Owner,
			ProgramID:    tb.ProgramID,
		}
		if amt := tb.UiTokenAmount; amt != nil {
			out[i].UiTokenAmount = UiTokenAmount{
				Decimals:       uint8(amt.Decimals),
				Amount:         amt.Amount,
				UiAmountString: amt.UiAmountString,
			}
			if amt.UiAmount != 0 {
				v := amt.UiAmount
				out[i].UiTokenAmount.UiAmount = &v
			}
		}
	}
	return out
}

// Rewards renders rewards the way getBlock and getTransaction do.
func Rewards(in []*wire.Reward) []UiReward {
	if len(in) == 0 {
		return nil
	}
	out := make([]UiReward, len(in))
	for i, r := range in {
		out[i] = UiReward{
			Pubkey:      r.Pubkey,
			Lamports:    r.Lamports,
			PostBalance: r.PostBalance,
			RewardType:  rewardType(r.RewardType),
		}
		if c, err := strconv.ParseUint(r.Commission, 10, 8); err == nil {
			v := uint8(c)
			out[i].Commission = &v
		}
	}
	return out
}

func rewardType(t wire.RewardType) *string {
	var s string
	switch t {
	case wire.RewardTypeFee:
		s = "Fee"
	case wire.RewardTypeRent:
		s = "Rent"
	case wire.RewardTypeStaking:
		s = "Staking"
	case wire.RewardTypeVoting:
		s = "Voting"
	default:
		return nil
	}
	return &s
}
