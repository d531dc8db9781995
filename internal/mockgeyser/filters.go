package mockgeyser

import (
	"bytes"
	"encoding/base64"
	"slices"
	"sort"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// PublishAccount sends an account write to every stream with a matching
// accounts filter, tagged with the matching filter names and cut to the
// stream's data slices. It returns the number of streams that got it.
func (s *Server) PublishAccount(info *wire.SubscribeUpdateAccountInfo, slot uint64) int {
	return s.publish(func(req *wire.SubscribeRequest) *wire.SubscribeUpdate {
		var names []string
		for name, f := range req.Accounts {
			if matchAccount(f, info) {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return nil
		}
		sort.Strings(names)

		out := *info
		out.Data = sliceData(info.Data, req.AccountsDataSlice)
		return &wire.SubscribeUpdate{
			Filters: names,
			Account: &wire.SubscribeUpdateAccount{Account: &out, Slot: slot},
		}
	})
}

// PublishSlot sends a slot status to every stream with a slots filter.
// Statuses other than processed, confirmed and finalized only reach
// filters that asked for interslot updates.
func (s *Server) PublishSlot(update *wire.SubscribeUpdateSlot) int {
	interslot := update.Status != wire.SlotProcessed &&
		update.Status != wire.SlotConfirmed &&
		update.Status != wire.SlotFinalized

	return s.publish(func(req *wire.SubscribeRequest) *wire.SubscribeUpdate {
		var names []string
		for name, f := range req.Slots {
			if interslot && (f.InterslotUpdates == nil || !*f.InterslotUpdates) {
				continue
			}
			if f.FilterByCommitment != nil && *f.FilterByCommitment && req.Commitment != nil &&
				update.Status != wire.SlotStatus(*req.Commitment) {
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			return nil
		}
		sort.Strings(names)
		out := *update
		return &wire.SubscribeUpdate{Filters: names, Slot: &out}
	})
}

// PublishTransaction sends a transaction to every stream whose
// transactions filters match it, and its status to every stream whose
// transaction status filters match it.
func (s *Server) PublishTransaction(info *wire.SubscribeUpdateTransactionInfo, slot uint64) int {
	return s.publish(func(req *wire.SubscribeRequest) *wire.SubscribeUpdate {
		if names := matchTransactions(req.Transactions, info); len(names) > 0 {
			return &wire.SubscribeUpdate{
				Filters:     names,
				Transaction: &wire.SubscribeUpdateTransaction{Transaction: info, Slot: slot},
			}
		}
		if names := matchTransactions(req.TransactionsStatus, info); len(names) > 0 {
			status := &wire.SubscribeUpdateTransactionStatus{
				Slot:      slot,
				Signature: info.Signature,
				IsVote:    info.IsVote,
				Index:     info.Index,
			}
			if info.Meta != nil {
				status.Err = info.Meta.Err
			}
			return &wire.SubscribeUpdate{Filters: names, TransactionStatus: status}
		}
		return nil
	})
}

// PublishBlockMeta sends a block header to every stream with a blocks meta filter.
func (s *Server) PublishBlockMeta(meta *wire.SubscribeUpdateBlockMeta) int {
	return s.publish(func(req *wire.SubscribeRequest) *wire.SubscribeUpdate {
		names := sortedKeys(req.BlocksMeta)
		if len(names) == 0 {
			return nil
		}
		return &wire.SubscribeUpdate{Filters: names, BlockMeta: meta}
	})
}

// PublishEntry sends an entry to every stream with an entry filter.
func (s *Server) PublishEntry(entry *wire.SubscribeUpdateEntry) int {
	return s.publish(func(req *wire.SubscribeRequest) *wire.SubscribeUpdate {
		names := sortedKeys(req.Entry)
		if len(names) == 0 {
			return nil
		}
		return &wire.SubscribeUpdate{Filters: names, Entry: entry}
	})
}

func matchAccount(f *wire.SubscribeRequestFilterAccounts, info *wire.SubscribeUpdateAccountInfo) bool {
	if len(f.Account) > 0 && !slices.Contains(f.Account, base58.Encode(info.Pubkey)) {
		return false
	}
	if len(f.Owner) > 0 && !slices.Contains(f.Owner, base58.Encode(info.Owner)) {
		return false
	}
	if f.NonemptyTxnSignature != nil && *f.NonemptyTxnSignature != (len(info.TxnSignature) > 0) {
		return false
	}
	for _, sub := range f.Filters {
		if !matchAccountData(sub, info) {
			return false
		}
	}
	return true
}

func matchAccountData(f *wire.SubscribeRequestFilterAccountsFilter, info *wire.SubscribeUpdateAccountInfo) bool {
	switch {
	case f.Memcmp != nil:
		want, ok := memcmpBytes(f.Memcmp)
		if !ok {
			return false
		}
		off := f.Memcmp.Offset
		if off > uint64(len(info.Data)) || uint64(len(want)) > uint64(len(info.Data))-off {
			return false
		}
		return bytes.Equal(info.Data[off:off+uint64(len(want))], want)

	case f.Datasize != nil:
		return uint64(len(info.Data)) == *f.Datasize

	case f.TokenAccountState != nil:
		owner, err := types.PubkeyFromBytes(info.Owner)
		isToken := err == nil && types.IsTokenProgram(owner) && len(info.Data) == types.TokenAccountSize
		return isToken == *f.TokenAccountState

	case f.Lamports != nil:
		l := f.Lamports
		switch {
		case l.Eq != nil:
			return info.Lamports == *l.Eq
		case l.Ne != nil:
			return info.Lamports != *l.Ne
		case l.Lt != nil:
			return info.Lamports < *l.Lt
		case l.Gt != nil:
			return info.Lamports > *l.Gt
		}
	}
	return false
}

func memcmpBytes(m *wire.SubscribeRequestFilterAccountsFilterMemcmp) ([]byte, bool) {
	switch {
	case m.Bytes != nil:
		return m.Bytes, true
	case m.Base58 != nil:
		b, err := base58.Decode(*m.Base58)
		return b, err == nil
	case m.Base64 != nil:
		b, err := base64.StdEncoding.DecodeString(*m.Base64)
		return b, err == nil
	}
	return nil, false
}

func sliceData(data []byte, slicesReq []*wire.SubscribeRequestAccountsDataSlice) []byte {
	if len(slicesReq) == 0 {
		return data
	}
	var out []byte
	for _, ds := range slicesReq {
		if ds.Offset >= uint64(len(data)) {
			continue
		}
		end := min(ds.Offset+ds.Length, uint64(len(data)))
		out = append(out, data[ds.Offset:end]...)
	}
	if out == nil {
		out = []byte{}
	}
	return out
}

func matchTransactions(filters map[string]*wire.SubscribeRequestFilterTransactions, info *wire.SubscribeUpdateTransactionInfo) []string {
	var names []string
	for name, f := range filters {
		if matchTransaction(f, info) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func matchTransaction(f *wire.SubscribeRequestFilterTransactions, info *wire.SubscribeUpdateTransactionInfo) bool {
	if f.Vote != nil && *f.Vote != info.IsVote {
		return false
	}
	failed := info.Meta != nil && info.Meta.Err != nil && len(info.Meta.Err.Err) > 0
	if f.Failed != nil && *f.Failed != failed {
		return false
	}
	if f.Signature != nil && *f.Signature != base58.Encode(info.Signature) {
		return false
	}

	keys := transactionKeys(info)
	if len(f.AccountInclude) > 0 && !slices.ContainsFunc(f.AccountInclude, keys.has) {
		return false
	}
	if slices.ContainsFunc(f.AccountExclude, keys.has) {
		return false
	}
	for _, k := range f.AccountRequired {
		if !keys.has(k) {
			return false
		}
	}
	return true
}

type keySet map[string]struct{}

func (k keySet) has(addr string) bool {
	_, ok := k[addr]
	return ok
}

func transactionKeys(info *wire.SubscribeUpdateTransactionInfo) keySet {
	keys := make(keySet)
	if info.Transaction != nil && info.Transaction.Message != nil {
		for _, k := range info.Transaction.Message.AccountKeys {
			keys[base58.Encode(k)] = struct{}{}
		}
	}
	if info.Meta != nil {
		for _, k := range info.Meta.LoadedWritableAddresses {
			keys[base58.Encode(k)] = struct{}{}
		}
		for _, k := range info.Meta.LoadedReadonlyAddresses {
			keys[base58.Encode(k)] = struct{}{}
		}
	}
	return keys
}

func sortedKeys[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
