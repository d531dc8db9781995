package geyser

import (
	"strconv"

	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/txencoding"
	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// convertUpdate converts a decoded frame into a SubscribeUpdate.
// A frame that does not carry exactly one payload is a ProtocolError.
func convertUpdate(pb *wire.SubscribeUpdate) (*SubscribeUpdate, error) {
	if variants := pb.Variants(); len(variants) != 1 {
		return nil, &ProtocolError{Variants: variants}
	}

	update := &SubscribeUpdate{
		Filters: pb.Filters,
	}
	if pb.CreatedAt != nil {
		update.CreatedAt = pb.CreatedAt.AsTime()
	}

	switch {
	case pb.Account != nil:
		update.Payload = convertAccountUpdate(pb.Account)
	case pb.Slot != nil:
		update.Payload = convertSlotUpdate(pb.Slot)
	case pb.Transaction != nil:
		update.Payload = convertTransactionUpdate(pb.Transaction)
	case pb.TransactionStatus != nil:
		update.Payload = convertTransactionStatus(pb.TransactionStatus)
	case pb.Block != nil:
		update.Payload = convertBlock(pb.Block)
	case pb.BlockMeta != nil:
		update.Payload = convertBlockMeta(pb.BlockMeta)
	case pb.Entry != nil:
		entry := convertEntry(pb.Entry)
		update.Payload = &entry
	case pb.Ping != nil:
		update.Payload = &PingUpdate{ID: pb.Ping.ID}
	case pb.Pong != nil:
		update.Payload = &PongUpdate{ID: pb.Pong.ID}
	}
	return update, nil
}

func convertAccountUpdate(pb *wire.SubscribeUpdateAccount) *AccountUpdate {
	update := &AccountUpdate{
		Slot:      pb.Slot,
		IsStartup: pb.IsStartup,
	}
	if pb.Account != nil {
		update.AccountInfo = convertAccountInfo(pb.Account)
	}
	return update
}

func convertAccountInfo(pb *wire.SubscribeUpdateAccountInfo) AccountInfo {
	info := AccountInfo{
		Lamports:     pb.Lamports,
		Executable:   pb.Executable,
		RentEpoch:    pb.RentEpoch,
		Data:         pb.Data,
		WriteVersion: pb.WriteVersion,
	}
	info.Pubkey = pubkeyFromBytes(pb.Pubkey)
	info.Owner = pubkeyFromBytes(pb.Owner)

	if len(pb.TxnSignature) == types.SignatureSize {
		var sig types.Signature
		copy(sig[:], pb.TxnSignature)
		info.TxnSignature = &sig
	}
	return info
}

// convertSlotUpdate keeps DeadError as sent, so an absent reason stays nil.
func convertSlotUpdate(pb *wire.SubscribeUpdateSlot) *SlotUpdate {
	return &SlotUpdate{
		Slot:       pb.Slot,
		ParentSlot: pb.Parent,
		Status:     SlotStatus(pb.Status),
		DeadError:  pb.DeadError,
	}
}

func convertTransactionUpdate(pb *wire.SubscribeUpdateTransaction) *TransactionUpdate {
	update := &TransactionUpdate{
		Slot: pb.Slot,
		raw:  pb.Transaction,
	}
	if pb.Transaction != nil {
		update.Transaction = convertTransaction(pb.Transaction)
	} else {
		update.raw = &wire.SubscribeUpdateTransactionInfo{}
	}
	return update
}

func convertTransactionStatus(pb *wire.SubscribeUpdateTransactionStatus) *TransactionStatusUpdate {
	return &TransactionStatusUpdate{
		Slot:      pb.Slot,
		Signature: signatureFromBytes(pb.Signature),
		IsVote:    pb.IsVote,
		Index:     pb.Index,
		Err:       convertTransactionError(pb.Err),
	}
}

// convertBlock converts a block frame to our Block type.
func convertBlock(pb *wire.SubscribeUpdateBlock) *Block {
	block := &Block{
		Slot:                     pb.Slot,
		ParentSlot:               pb.ParentSlot,
		ExecutedTransactionCount: pb.ExecutedTransactionCount,
		UpdatedAccountCount:      pb.UpdatedAccountCount,
		EntriesCount:             pb.EntriesCount,
		Blockhash:                hashFromBase58(pb.Blockhash),
		ParentBlockhash:          hashFromBase58(pb.ParentBlockhash),
		BlockTime:                blockTime(pb.BlockTime),
		BlockHeight:              blockHeight(pb.BlockHeight),
		Rewards:                  convertRewards(pb.Rewards),
	}

	if len(pb.Transactions) > 0 {
		block.Transactions = make([]Transaction, len(pb.Transactions))
		for i, txInfo := range pb.Transactions {
			block.Transactions[i] = convertTransaction(txInfo)
		}
	}

	if len(pb.Accounts) > 0 {
		block.Accounts = make([]AccountInfo, len(pb.Accounts))
		for i, acc := range pb.Accounts {
			block.Accounts[i] = convertAccountInfo(acc)
		}
	}

	if len(pb.Entries) > 0 {
		block.Entries = make([]Entry, len(pb.Entries))
		for i, entry := range pb.Entries {
			block.Entries[i] = convertEntry(entry)
		}
	}

	return block
}

func convertBlockMeta(pb *wire.SubscribeUpdateBlockMeta) *BlockMeta {
	return &BlockMeta{
		Slot:                     pb.Slot,
		ParentSlot:               pb.ParentSlot,
		Blockhash:                hashFromBase58(pb.Blockhash),
		ParentBlockhash:          hashFromBase58(pb.ParentBlockhash),
		BlockTime:                blockTime(pb.BlockTime),
		BlockHeight:              blockHeight(pb.BlockHeight),
		Rewards:                  convertRewards(pb.Rewards),
		ExecutedTransactionCount: pb.ExecutedTransactionCount,
		EntriesCount:             pb.EntriesCount,
	}
}

// convertTransaction converts a transaction frame to our Transaction type.
func convertTransaction(pb *wire.SubscribeUpdateTransactionInfo) Transaction {
	tx := Transaction{
		Signature: signatureFromBytes(pb.Signature),
		IsVote:    pb.IsVote,
		Index:     pb.Index,
	}

	if pb.Transaction != nil {
		tx.Signatures = make([]types.Signature, len(pb.Transaction.Signatures))
		for i, sig := range pb.Transaction.Signatures {
			tx.Signatures[i] = signatureFromBytes(sig)
		}
		if pb.Transaction.Message != nil {
			tx.Message = convertMessage(pb.Transaction.Message)
		}
	}

	if pb.Meta != nil {
		tx.Meta = convertMeta(pb.Meta)
	}

	return tx
}

func convertMessage(pb *wire.Message) TransactionMessage {
	msg := TransactionMessage{
		IsLegacy: !pb.Versioned,
	}

	if pb.Header != nil {
		msg.Header = MessageHeader{
			NumRequiredSignatures:       uint8(pb.Header.NumRequiredSignatures),
			NumReadonlySignedAccounts:   uint8(pb.Header.NumReadonlySignedAccounts),
			NumReadonlyUnsignedAccounts: uint8(pb.Header.NumReadonlyUnsignedAccounts),
		}
	}

	msg.AccountKeys = pubkeys(pb.AccountKeys)

	if len(pb.RecentBlockhash) == types.HashSize {
		copy(msg.RecentBlockhash[:], pb.RecentBlockhash)
	}

	msg.Instructions = make([]CompiledInstruction, len(pb.Instructions))
	for i, ix := range pb.Instructions {
		msg.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: uint8(ix.ProgramIDIndex),
			AccountIndexes: ix.Accounts,
			Data:           ix.Data,
		}
	}

	if len(pb.AddressTableLookups) > 0 {
		msg.AddressTableLookups = make([]AddressTableLookup, len(pb.AddressTableLookups))
		for i, lookup := range pb.AddressTableLookups {
			msg.AddressTableLookups[i] = AddressTableLookup{
				AccountKey:      pubkeyFromBytes(lookup.AccountKey),
				WritableIndexes: lookup.WritableIndexes,
				ReadonlyIndexes: lookup.ReadonlyIndexes,
			}
		}
	}

	return msg
}

// convertMeta converts execution metadata. The *None flags distinguish
// "not recorded" (nil) from "recorded and empty".
func convertMeta(pb *wire.TransactionStatusMeta) *TransactionMeta {
	meta := &TransactionMeta{
		Err:                     convertTransactionError(pb.Err),
		Fee:                     pb.Fee,
		PreBalances:             pb.PreBalances,
		PostBalances:            pb.PostBalances,
		PreTokenBalances:        convertTokenBalances(pb.PreTokenBalances),
		PostTokenBalances:       convertTokenBalances(pb.PostTokenBalances),
		Rewards:                 convertRewardList(pb.Rewards),
		ComputeUnitsConsumed:    pb.ComputeUnitsConsumed,
		CostUnits:               pb.CostUnits,
		LoadedWritableAddresses: pubkeys(pb.LoadedWritableAddresses),
		LoadedReadonlyAddresses: pubkeys(pb.LoadedReadonlyAddresses),
	}

	if !pb.LogMessagesNone {
		meta.LogMessages = pb.LogMessages
		if meta.LogMessages == nil {
			meta.LogMessages = []string{}
		}
	}

	if !pb.InnerInstructionsNone && len(pb.InnerInstructions) > 0 {
		meta.InnerInstructions = make([]InnerInstructions, len(pb.InnerInstructions))
		for i, inner := range pb.InnerInstructions {
			meta.InnerInstructions[i] = InnerInstructions{
				Index:        uint8(inner.Index),
				Instructions: make([]CompiledInstruction, len(inner.Instructions)),
			}
			for j, ix := range inner.Instructions {
				meta.InnerInstructions[i].Instructions[j] = CompiledInstruction{
					ProgramIDIndex: uint8(ix.ProgramIDIndex),
					AccountIndexes: ix.Accounts,
					Data:           ix.Data,
					StackHeight:    ix.StackHeight,
				}
			}
		}
	}

	if !pb.ReturnDataNone && pb.ReturnData != nil {
		meta.ReturnData = &ReturnData{
			ProgramID: pubkeyFromBytes(pb.ReturnData.ProgramID),
			Data:      pb.ReturnData.Data,
		}
	}

	return meta
}

// convertTransactionError keeps the raw bincode bytes and renders them
// the way RPC does. Nil or empty means success.
func convertTransactionError(pb *wire.TransactionError) *TransactionError {
	if pb == nil || len(pb.Err) == 0 {
		return nil
	}
	te := &TransactionError{Raw: pb.Err}
	if msg, err := txencoding.DecodeTransactionError(pb.Err); err == nil {
		te.Message = msg
	}
	return te
}

func convertTokenBalances(pb []*wire.TokenBalance) []TokenBalance {
	if len(pb) == 0 {
		return nil
	}
	balances := make([]TokenBalance, len(pb))
	for i, tb := range pb {
		balances[i] = TokenBalance{
			AccountIndex: uint8(tb.AccountIndex),
			Mint:         pubkeyFromBase58(tb.Mint),
			Owner:        pubkeyFromBase58(tb.Owner),
			ProgramID:    pubkeyFromBase58(tb.ProgramID),
		}

		if tb.UiTokenAmount != nil {
			balances[i].UITokenAmount = UITokenAmount{
				Amount:         tb.UiTokenAmount.Amount,
				Decimals:       uint8(tb.UiTokenAmount.Decimals),
				UIAmountString: tb.UiTokenAmount.UiAmountString,
			}
			if tb.UiTokenAmount.UiAmount != 0 {
				uiAmount := tb.UiTokenAmount.UiAmount
				balances[i].UITokenAmount.UIAmount = &uiAmount
			}
		}
	}
	return balances
}

func convertEntry(pb *wire.SubscribeUpdateEntry) Entry {
	entry := Entry{
		Slot:                     pb.Slot,
		Index:                    pb.Index,
		NumHashes:                pb.NumHashes,
		ExecutedTransactionCount: pb.ExecutedTransactionCount,
		StartingTransactionIndex: pb.StartingTransactionIndex,
	}
	if len(pb.Hash) == types.HashSize {
		copy(entry.Hash[:], pb.Hash)
	}
	return entry
}

func convertRewards(pb *wire.Rewards) []Reward {
	if pb == nil {
		return nil
	}
	return convertRewardList(pb.Rewards)
}

func convertRewardList(pb []*wire.Reward) []Reward {
	if len(pb) == 0 {
		return nil
	}
	rewards := make([]Reward, len(pb))
	for i, r := range pb {
		rewards[i] = convertReward(r)
	}
	return rewards
}

func convertReward(pb *wire.Reward) Reward {
	r := Reward{
		Pubkey:      pubkeyFromBase58(pb.Pubkey),
		Lamports:    pb.Lamports,
		PostBalance: pb.PostBalance,
		RewardType:  RewardType(pb.RewardType),
	}
	if pb.Commission != "" {
		if c, err := strconv.ParseUint(pb.Commission, 10, 8); err == nil {
			commission := uint8(c)
			r.Commission = &commission
		}
	}
	return r
}

func blockTime(pb *wire.UnixTimestamp) *int64 {
	if pb == nil {
		return nil
	}
	ts := pb.Timestamp
	return &ts
}

func blockHeight(pb *wire.BlockHeight) *uint64 {
	if pb == nil {
		return nil
	}
	h := pb.BlockHeight
	return &h
}

// Malformed keys convert to the zero value, as the node never sends them.

func pubkeyFromBytes(b []byte) types.Pubkey {
	var p types.Pubkey
	if len(b) == types.PubkeySize {
		copy(p[:], b)
	}
	return p
}

func pubkeyFromBase58(s string) types.Pubkey {
	p, _ := types.PubkeyFromBase58(s)
	return p
}

func signatureFromBytes(b []byte) types.Signature {
	var s types.Signature
	if len(b) == types.SignatureSize {
		copy(s[:], b)
	}
	return s
}

func hashFromBase58(s string) types.Hash {
	h, _ := types.HashFromBase58(s)
	return h
}

func pubkeys(keys [][]byte) []types.Pubkey {
	if len(keys) == 0 {
		return nil
	}
	out := make([]types.Pubkey, len(keys))
	for i, k := range keys {
		out[i] = pubkeyFromBytes(k)
	}
	return out
}
