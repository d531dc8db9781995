package txencoding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

func ptr[T any](v T) *T { return &v }

func fill(n int, b byte) []byte { return bytes.Repeat([]byte{b}, n) }

// sampleInfo is a transfer-shaped transaction: a fee payer and a read-only program.
func sampleInfo(versioned bool) *wire.SubscribeUpdateTransactionInfo {
	msg := &wire.Message{
		Header:          &wire.MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
		AccountKeys:     [][]byte{fill(32, 1), fill(32, 2)},
		RecentBlockhash: fill(32, 3),
		Instructions:    []*wire.CompiledInstruction{{ProgramIDIndex: 1, Accounts: []byte{0}, Data: []byte{2, 3}}},
		Versioned:       versioned,
	}
	if versioned {
		msg.AddressTableLookups = []*wire.MessageAddressTableLookup{{AccountKey: fill(32, 4), WritableIndexes: []byte{0}}}
	}
	meta := &wire.TransactionStatusMeta{
		Fee:          5000,
		PreBalances:  []uint64{10000, 1},
		PostBalances: []uint64{5000, 1},
		LogMessages:  []string{"Program log: ok"},
		Rewards:      []*wire.Reward{{Pubkey: "R", Lamports: 7, PostBalance: 8, RewardType: wire.RewardTypeFee}},
	}
	if versioned {
		meta.LoadedWritableAddresses = [][]byte{fill(32, 5)}
	}
	return &wire.SubscribeUpdateTransactionInfo{
		Signature: fill(64, 9),
		Transaction: &wire.Transaction{
			Signatures: [][]byte{fill(64, 9)},
			Message:    msg,
		},
		Meta: meta,
	}
}

func encode(t *testing.T, info *wire.SubscribeUpdateTransactionInfo, enc Encoding, maxVersion *uint8, rewards bool) map[string]any {
	t.Helper()
	raw, err := wire.Marshal(info)
	require.NoError(t, err)
	out, err := EncodeTransaction(raw, enc, maxVersion, rewards)
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

// ===== DecodeTransactionError =====

func TestDecodeTransactionError(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"unit variant", []byte{0, 0, 0, 0}, `"AccountInUse"`},
		{"last variant", []byte{38, 0, 0, 0}, `"CommitCancelled"`},
		{"instruction custom", []byte{8, 0, 0, 0, 0, 24, 0, 0, 0, 1, 0, 0, 0}, `{"InstructionError":[0,{"Custom":1}]}`},
		{"instruction unit", []byte{8, 0, 0, 0, 1, 0, 0, 0, 0}, `{"InstructionError":[1,"GenericError"]}`},
		{"instruction borsh", []byte{8, 0, 0, 0, 2, 43, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 'b', 'a', 'd'}, `{"InstructionError":[2,{"BorshIoError":"bad"}]}`},
		{"duplicate instruction", []byte{30, 0, 0, 0, 5}, `{"DuplicateInstruction":5}`},
		{"insufficient funds for rent", []byte{31, 0, 0, 0, 2}, `{"InsufficientFundsForRent":{"account_index":2}}`},
		{"temporarily restricted", []byte{35, 0, 0, 0, 1}, `{"ProgramExecutionTemporarilyRestricted":{"account_index":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTransactionError(tt.raw)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestDecodeTransactionError_Malformed(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty":           nil,
		"unknown variant": {99, 0, 0, 0},
		"truncated":       {8, 0, 0, 0},
		"trailing bytes":  {0, 0, 0, 0, 1},
		"unknown inner":   {8, 0, 0, 0, 0, 200, 0, 0, 0},
		"long string":     {8, 0, 0, 0, 0, 43, 0, 0, 0, 9, 0, 0, 0, 0, 0, 0, 0, 'x'},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTransactionError(raw)
			assert.ErrorIs(t, err, ErrMalformedError)
		})
	}
}

// ===== Wire serialization =====

func TestAppendCompactU16(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, appendCompactU16(nil, tt.n), "n=%d", tt.n)
	}
}

func TestSerializeTransaction_Legacy(t *testing.T) {
	info := sampleInfo(false)

	var want []byte
	want = append(want, 1)
	want = append(want, fill(64, 9)...)
	want = append(want, 1, 0, 1)
	want = append(want, 2)
	want = append(want, fill(32, 1)...)
	want = append(want, fill(32, 2)...)
	want = append(want, fill(32, 3)...)
	want = append(want, 1, 1, 1, 0, 2, 2, 3)

	assert.Equal(t, want, SerializeTransaction(info.Transaction))
}

func TestSerializeTransaction_Versioned(t *testing.T) {
	got := SerializeTransaction(sampleInfo(true).Transaction)
	assert.Equal(t, byte(0x80), got[65], "version prefix follows the signatures")

	tail := append([]byte{1}, fill(32, 4)...)
	tail = append(tail, 1, 0, 0)
	assert.True(t, bytes.HasSuffix(got, tail))
}

// ===== EncodeTransaction =====

func TestEncodeTransaction_JSON(t *testing.T) {
	v := encode(t, sampleInfo(false), EncodingJSON, nil, false)

	_, hasVersion := v["version"]
	assert.False(t, hasVersion)

	tx := v["transaction"].(map[string]any)
	assert.Equal(t, []any{base58.Encode(fill(64, 9))}, tx["signatures"])

	msg := tx["message"].(map[string]any)
	assert.Equal(t, []any{base58.Encode(fill(32, 1)), base58.Encode(fill(32, 2))}, msg["accountKeys"])
	assert.Equal(t, base58.Encode(fill(32, 3)), msg["recentBlockhash"])
	_, hasLookups := msg["addressTableLookups"]
	assert.False(t, hasLookups)

	ix := msg["instructions"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), ix["programIdIndex"])
	assert.Equal(t, []any{float64(0)}, ix["accounts"])
	assert.Equal(t, base58.Encode([]byte{2, 3}), ix["data"])

	meta := v["meta"].(map[string]any)
	assert.Equal(t, float64(5000), meta["fee"])
	assert.Nil(t, meta["err"])
	assert.Equal(t, map[string]any{"Ok": nil}, meta["status"])
	_, hasRewards := meta["rewards"]
	assert.False(t, hasRewards)
	assert.Contains(t, meta, "loadedAddresses")
}

func TestEncodeTransaction_Version(t *testing.T) {
	v := encode(t, sampleInfo(false), EncodingJSON, ptr(uint8(0)), false)
	assert.Equal(t, "legacy", v["version"])

	v = encode(t, sampleInfo(true), EncodingJSON, ptr(uint8(0)), false)
	assert.Equal(t, float64(0), v["version"])
	msg := v["transaction"].(map[string]any)["message"].(map[string]any)
	assert.Len(t, msg["addressTableLookups"], 1)

	raw, err := wire.Marshal(sampleInfo(true))
	require.NoError(t, err)
	_, err = EncodeTransaction(raw, EncodingJSON, nil, false)
	assert.ErrorIs(t, err, ErrUnsupportedTransactionVersion)
}

func TestEncodeTransaction_JSONParsed(t *testing.T) {
	v := encode(t, sampleInfo(true), EncodingJSONParsed, ptr(uint8(0)), false)
	msg := v["transaction"].(map[string]any)["message"].(map[string]any)

	keys := msg["accountKeys"].([]any)
	require.Len(t, keys, 3)
	payer := keys[0].(map[string]any)
	assert.Equal(t, true, payer["signer"])
	assert.Equal(t, true, payer["writable"])
	assert.Equal(t, "transaction", payer["source"])

	program := keys[1].(map[string]any)
	assert.Equal(t, false, program["signer"])
	assert.Equal(t, false, program["writable"])

	loaded := keys[2].(map[string]any)
	assert.Equal(t, "lookupTable", loaded["source"])
	assert.Equal(t, true, loaded["writable"])

	ix := msg["instructions"].([]any)[0].(map[string]any)
	assert.Equal(t, base58.Encode(fill(32, 2)), ix["programId"])
	assert.Equal(t, []any{base58.Encode(fill(32, 1))}, ix["accounts"])

	meta := v["meta"].(map[string]any)
	_, hasLoaded := meta["loadedAddresses"]
	assert.False(t, hasLoaded)
}

func TestEncodeTransaction_Binary(t *testing.T) {
	info := sampleInfo(false)
	serialized := SerializeTransaction(info.Transaction)

	v := encode(t, info, EncodingBase64, nil, false)
	assert.Equal(t, []any{base64.StdEncoding.EncodeToString(serialized), "base64"}, v["transaction"])

	v = encode(t, info, EncodingBase58, nil, false)
	assert.Equal(t, []any{base58.Encode(serialized), "base58"}, v["transaction"])

	v = encode(t, info, EncodingBinary, nil, false)
	assert.Equal(t, base58.Encode(serialized), v["transaction"])
}

func TestEncodeTransaction_RewardsAndError(t *testing.T) {
	info := sampleInfo(false)
	info.Meta.Err = &wire.TransactionError{Err: []byte{8, 0, 0, 0, 0, 24, 0, 0, 0, 1, 0, 0, 0}}

	v := encode(t, info, EncodingJSON, nil, true)
	meta := v["meta"].(map[string]any)

	want := map[string]any{"InstructionError": []any{float64(0), map[string]any{"Custom": float64(1)}}}
	assert.Equal(t, want, meta["err"])
	assert.Equal(t, map[string]any{"Err": want}, meta["status"])

	rewards := meta["rewards"].([]any)
	require.Len(t, rewards, 1)
	r := rewards[0].(map[string]any)
	assert.Equal(t, "Fee", r["rewardType"])
	assert.Nil(t, r["commission"])
}

func TestEncodeTransaction_Errors(t *testing.T) {
	_, err := EncodeTransaction([]byte{0xff}, EncodingJSON, nil, false)
	assert.Error(t, err)

	raw, err := wire.Marshal(&wire.SubscribeUpdateTransactionInfo{Index: 1})
	require.NoError(t, err)
	_, err = EncodeTransaction(raw, EncodingJSON, nil, false)
	assert.ErrorIs(t, err, ErrMissingTransaction)

	raw, err = wire.Marshal(sampleInfo(false))
	require.NoError(t, err)
	_, err = EncodeTransaction(raw, EncodingBase64Zstd, nil, false)
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

// ===== Account data =====

func TestAccountData_RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("geyser"), 100)
	for _, enc := range []Encoding{EncodingBase58, EncodingBase64, EncodingBase64Zstd} {
		t.Run(string(enc), func(t *testing.T) {
			pair, err := EncodeAccountData(data, enc)
			require.NoError(t, err)
			assert.Equal(t, string(enc), pair[1])

			got, err := DecodeAccountData(pair[0], enc)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}

	_, err := EncodeAccountData(data, EncodingJSONParsed)
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestApplyDataSlice(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}
	assert.Equal(t, []byte{1, 2}, ApplyDataSlice(data, 1, 2))
	assert.Equal(t, []byte{3, 4}, ApplyDataSlice(data, 3, 10))
	assert.Equal(t, []byte{}, ApplyDataSlice(data, 9, 1))
	assert.Equal(t, []byte{4}, ApplyDataSlice(data, 4, ^uint64(0)))
}

func TestParseEncoding(t *testing.T) {
	e, err := ParseEncoding("jsonParsed")
	require.NoError(t, err)
	assert.Equal(t, EncodingJSONParsed, e)

	_, err = ParseEncoding("xml")
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}
