package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func ptr[T any](v T) *T { return &v }

// ===== SubscribeRequest =====

func TestSubscribeRequest_RoundTrip(t *testing.T) {
	in := &SubscribeRequest{
		Accounts: map[string]*SubscribeRequestFilterAccounts{
			"x": {
				Account: []string{"AAA"},
				Owner:   []string{"Tok"},
				Filters: []*SubscribeRequestFilterAccountsFilter{
					{Datasize: ptr(uint64(165))},
					{Memcmp: &SubscribeRequestFilterAccountsFilterMemcmp{Offset: 32, Base58: ptr("abc")}},
					{Lamports: &SubscribeRequestFilterAccountsFilterLamports{Gt: ptr(uint64(0))}},
				},
			},
		},
		Slots:      map[string]*SubscribeRequestFilterSlots{"s": {FilterByCommitment: ptr(true)}},
		Commitment: ptr(CommitmentProcessed),
		AccountsDataSlice: []*SubscribeRequestAccountsDataSlice{
			{Offset: 0, Length: 64},
		},
		FromSlot: ptr(uint64(0)),
	}

	data, err := Marshal(in)
	require.NoError(t, err)

	out := &SubscribeRequest{}
	require.NoError(t, Unmarshal(data, out))

	assert.Equal(t, in, out)
}

func TestSubscribeRequest_ExplicitZeroPresence(t *testing.T) {
	// A processed commitment and from_slot 0 must reach the server even though both are zero.
	in := &SubscribeRequest{Commitment: ptr(CommitmentProcessed), FromSlot: ptr(uint64(0))}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	out := &SubscribeRequest{}
	require.NoError(t, Unmarshal(data, out))
	require.NotNil(t, out.Commitment)
	assert.Equal(t, CommitmentProcessed, *out.Commitment)
	require.NotNil(t, out.FromSlot)
	assert.Zero(t, *out.FromSlot)
}

func TestSubscribeRequest_DeterministicMaps(t *testing.T) {
	build := func() *SubscribeRequest {
		return &SubscribeRequest{
			Transactions: map[string]*SubscribeRequestFilterTransactions{
				"c": {Vote: ptr(false)},
				"a": {Failed: ptr(true)},
				"b": {AccountInclude: []string{"k"}},
			},
		}
	}
	first, err := Marshal(build())
	require.NoError(t, err)
	for range 20 {
		again, err := Marshal(build())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSubscribeRequest_EmptyFilterEntry(t *testing.T) {
	in := &SubscribeRequest{
		BlocksMeta: map[string]*SubscribeRequestFilterBlocksMeta{"meta": {}},
		Entry:      map[string]*SubscribeRequestFilterEntry{"e": nil},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	out := &SubscribeRequest{}
	require.NoError(t, Unmarshal(data, out))
	assert.Contains(t, out.BlocksMeta, "meta")
	assert.Contains(t, out.Entry, "e")
	assert.NotNil(t, out.Entry["e"])
}

func TestSubscribeRequest_IsPingOnly(t *testing.T) {
	tests := []struct {
		name string
		req  *SubscribeRequest
		want bool
	}{
		{"ping only", &SubscribeRequest{Ping: &SubscribeRequestPing{ID: 3}}, true},
		{"no ping", &SubscribeRequest{}, false},
		{"ping with slots", &SubscribeRequest{
			Ping:  &SubscribeRequestPing{ID: 1},
			Slots: map[string]*SubscribeRequestFilterSlots{"s": {}},
		}, false},
		{"ping with commitment", &SubscribeRequest{
			Ping:       &SubscribeRequestPing{},
			Commitment: ptr(CommitmentFinalized),
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.IsPingOnly())
		})
	}
}

// ===== SubscribeUpdate =====

func TestSubscribeUpdate_Variants(t *testing.T) {
	u := &SubscribeUpdate{}
	assert.Empty(t, u.Variants())

	u.Slot = &SubscribeUpdateSlot{Slot: 1}
	assert.Equal(t, []string{"slot"}, u.Variants())

	u.Account = &SubscribeUpdateAccount{}
	assert.Equal(t, []string{"account", "slot"}, u.Variants())
}

func TestSubscribeUpdate_DecodesTwoVariants(t *testing.T) {
	// Hand-built frame carrying both slot (3) and ping (6).
	var slot []byte
	slot = protowire.AppendTag(slot, 1, protowire.VarintType)
	slot = protowire.AppendVarint(slot, 42)

	var b []byte
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, slot)
	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	u := &SubscribeUpdate{}
	require.NoError(t, Unmarshal(b, u))
	assert.Len(t, u.Variants(), 2)
	assert.Equal(t, uint64(42), u.Slot.Slot)
}

func TestSubscribeUpdate_SlotDeadError(t *testing.T) {
	in := &SubscribeUpdate{
		Filters:   []string{"s"},
		CreatedAt: &Timestamp{Seconds: 1700000000, Nanos: 5},
		Slot:      &SubscribeUpdateSlot{Slot: 10, Parent: ptr(uint64(9)), Status: SlotDead, DeadError: ptr("bank hash mismatch")},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	out := &SubscribeUpdate{}
	require.NoError(t, Unmarshal(data, out))
	assert.Equal(t, in, out)
	assert.Equal(t, int64(1700000000), out.CreatedAt.AsTime().Unix())
}

func TestSubscribeUpdate_Transaction(t *testing.T) {
	in := &SubscribeUpdate{
		Filters: []string{"t"},
		Transaction: &SubscribeUpdateTransaction{
			Slot: 77,
			Transaction: &SubscribeUpdateTransactionInfo{
				Signature: []byte{1, 2, 3},
				Index:     4,
				Transaction: &Transaction{
					Signatures: [][]byte{{1, 2, 3}},
					Message: &Message{
						Header:          &MessageHeader{NumRequiredSignatures: 1},
						AccountKeys:     [][]byte{{9}, {8}},
						RecentBlockhash: []byte{7},
						Instructions:    []*CompiledInstruction{{ProgramIDIndex: 1, Accounts: []byte{0}, Data: []byte{5}}},
					},
				},
				Meta: &TransactionStatusMeta{
					Fee:                  5000,
					PreBalances:          []uint64{10, 0},
					PostBalances:         []uint64{5, 0},
					LogMessages:          []string{"Program log: hi"},
					ComputeUnitsConsumed: ptr(uint64(0)),
					PreTokenBalances: []*TokenBalance{{
						Mint:          "M",
						UiTokenAmount: &UiTokenAmount{UiAmount: 1.5, Decimals: 6, Amount: "1500000"},
					}},
				},
			},
		},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	out := &SubscribeUpdate{}
	require.NoError(t, Unmarshal(data, out))
	assert.Equal(t, in, out)
}

// ===== Decoding edge cases =====

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 12)

	out := &GetSlotResponse{}
	require.NoError(t, Unmarshal(b, out))
	assert.Equal(t, uint64(12), out.Slot)
}

func TestUnmarshal_WrongWireType(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "nope")

	err := Unmarshal(b, &GetSlotResponse{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWireType)
}

func TestUnmarshal_Truncated(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = append(b, 10, 'a')

	assert.Error(t, Unmarshal(b, &GetVersionResponse{}))
}

func TestUnmarshal_UnpackedBalances(t *testing.T) {
	var b []byte
	for _, v := range []uint64{3, 4} {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	out := &TransactionStatusMeta{}
	require.NoError(t, Unmarshal(b, out))
	assert.Equal(t, []uint64{3, 4}, out.PreBalances)
}

func TestMarshal_RejectsForeignTypes(t *testing.T) {
	_, err := Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, Unmarshal(nil, &struct{}{}))
}

// ===== Unary =====

func TestUnary_RoundTrip(t *testing.T) {
	req := NewGetLatestBlockhashRequest(ptr(CommitmentConfirmed))
	data, err := Codec{}.Marshal(req)
	require.NoError(t, err)

	got := &GetLatestBlockhashRequest{}
	require.NoError(t, Codec{}.Unmarshal(data, got))
	require.NotNil(t, got.Commitment)
	assert.Equal(t, CommitmentConfirmed, *got.Commitment)

	resp := &IsBlockhashValidResponse{Slot: 8, Valid: true}
	data, err = Codec{}.Marshal(resp)
	require.NoError(t, err)
	gotResp := &IsBlockhashValidResponse{}
	require.NoError(t, Codec{}.Unmarshal(data, gotResp))
	assert.Equal(t, resp, gotResp)

	assert.Equal(t, "proto", Codec{}.Name())
	assert.Equal(t, "/geyser.Geyser/Subscribe", MethodSubscribe)
}
