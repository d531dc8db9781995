package geyser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"

	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// FilterKind identifies which of the filter maps a named filter lives in.
type FilterKind int

const (
	KindAccounts FilterKind = iota + 1
	KindSlots
	KindTransactions
	KindTransactionsStatus
	KindBlocks
	KindBlocksMeta
	KindEntries
)

func (k FilterKind) String() string {
	switch k {
	case KindAccounts:
		return "accounts"
	case KindSlots:
		return "slots"
	case KindTransactions:
		return "transactions"
	case KindTransactionsStatus:
		return "transactions_status"
	case KindBlocks:
		return "blocks"
	case KindBlocksMeta:
		return "blocks_meta"
	case KindEntries:
		return "entry"
	default:
		return "unknown"
	}
}

// AccountsFilter selects account writes.
// Empty Accounts or Owners match any; all Filters must hold.
type AccountsFilter struct {
	Accounts []string
	Owners   []string
	Filters  []AccountsSubFilter

	// NonemptyTxnSignature, when set, gates on whether the write carries a
	// transaction signature.
	NonemptyTxnSignature *bool
}

// AccountsSubFilter is one predicate on account data or balance.
// Build it with Memcmp, MemcmpBase58, MemcmpBase64, DataSize,
// TokenAccountState or one of the Lamports helpers.
type AccountsSubFilter struct {
	f *wire.SubscribeRequestFilterAccountsFilter
}

// Memcmp matches accounts whose data at offset equals data.
func Memcmp(offset uint64, data []byte) AccountsSubFilter {
	return AccountsSubFilter{&wire.SubscribeRequestFilterAccountsFilter{
		Memcmp: &wire.SubscribeRequestFilterAccountsFilterMemcmp{Offset: offset, Bytes: bytes.Clone(data)},
	}}
}

// MemcmpBase58 is Memcmp with the comparison bytes given as base58 text.
func MemcmpBase58(offset uint64, data string) AccountsSubFilter {
	return AccountsSubFilter{&wire.SubscribeRequestFilterAccountsFilter{
		Memcmp: &wire.SubscribeRequestFilterAccountsFilterMemcmp{Offset: offset, Base58: &data},
	}}
}

// MemcmpBase64 is Memcmp with the comparison bytes given as base64 text.
func MemcmpBase64(offset uint64, data string) AccountsSubFilter {
	return AccountsSubFilter{&wire.SubscribeRequestFilterAccountsFilter{
		Memcmp: &wire.SubscribeRequestFilterAccountsFilterMemcmp{Offset: offset, Base64: &data},
	}}
}

// DataSize matches accounts whose data is exactly size bytes long.
func DataSize(size uint64) AccountsSubFilter {
	return AccountsSubFilter{&wire.SubscribeRequestFilterAccountsFilter{Datasize: &size}}
}

// TokenAccountState matches SPL token accounts.
func TokenAccountState() AccountsSubFilter {
	t := true
	return AccountsSubFilter{&wire.SubscribeRequestFilterAccountsFilter{TokenAccountState: &t}}
}

// LamportsEq and its siblings compare the account balance against v.
func LamportsEq(v uint64) AccountsSubFilter { return lamports(&wire.SubscribeRequestFilterAccountsFilterLamports{Eq: &v}) }
func LamportsNe(v uint64) AccountsSubFilter { return lamports(&wire.SubscribeRequestFilterAccountsFilterLamports{Ne: &v}) }
func LamportsLt(v uint64) AccountsSubFilter { return lamports(&wire.SubscribeRequestFilterAccountsFilterLamports{Lt: &v}) }
func LamportsGt(v uint64) AccountsSubFilter { return lamports(&wire.SubscribeRequestFilterAccountsFilterLamports{Gt: &v}) }

func lamports(l *wire.SubscribeRequestFilterAccountsFilterLamports) AccountsSubFilter {
	return AccountsSubFilter{&wire.SubscribeRequestFilterAccountsFilter{Lamports: l}}
}

// SlotsFilter selects slot status updates.
type SlotsFilter struct {
	// FilterByCommitment delivers only the status matching the request commitment.
	FilterByCommitment *bool

	// InterslotUpdates also delivers intermediate statuses such as first shred received.
	InterslotUpdates *bool
}

// TransactionsFilter selects transactions, or transaction statuses.
type TransactionsFilter struct {
	Vote      *bool
	Failed    *bool
	Signature *string

	// AccountInclude matches transactions touching any of these accounts.
	AccountInclude []string
	// AccountExclude drops transactions touching any of these accounts.
	AccountExclude []string
	// AccountRequired matches transactions touching all of these accounts.
	AccountRequired []string
}

// BlocksFilter selects full blocks.
type BlocksFilter struct {
	AccountInclude      []string
	IncludeTransactions *bool
	IncludeAccounts     *bool
	IncludeEntries      *bool
}

// BlocksMetaFilter selects block headers. It has no fields.
type BlocksMetaFilter struct{}

// EntryFilter selects PoH entries. It has no fields.
type EntryFilter struct{}

// DataSlice bounds the account data returned with each account update.
type DataSlice struct {
	Offset uint64
	Length uint64
}

// FilterSet is the complete filter state of one Subscribe stream.
//
// A FilterSet is an immutable value: the With* methods return a modified
// copy and never touch the receiver, so a set can be shared between
// goroutines and handed to a Session while the caller builds the next one.
// Filter names are unique across kinds; adding a name that already exists
// replaces the previous filter, whatever its kind. The zero value is an
// empty set.
type FilterSet struct {
	accounts           map[string]AccountsFilter
	slots              map[string]SlotsFilter
	transactions       map[string]TransactionsFilter
	transactionsStatus map[string]TransactionsFilter
	blocks             map[string]BlocksFilter
	blocksMeta         map[string]BlocksMetaFilter
	entries            map[string]EntryFilter

	commitment *CommitmentLevel
	dataSlices []DataSlice
	fromSlot   *uint64
}

// NewFilterSet returns an empty FilterSet.
func NewFilterSet() FilterSet {
	return FilterSet{}
}

func (fs FilterSet) clone() FilterSet {
	return FilterSet{
		accounts:           maps.Clone(fs.accounts),
		slots:              maps.Clone(fs.slots),
		transactions:       maps.Clone(fs.transactions),
		transactionsStatus: maps.Clone(fs.transactionsStatus),
		blocks:             maps.Clone(fs.blocks),
		blocksMeta:         maps.Clone(fs.blocksMeta),
		entries:            maps.Clone(fs.entries),
		commitment:         fs.commitment,
		dataSlices:         fs.dataSlices,
		fromSlot:           fs.fromSlot,
	}
}

func (fs *FilterSet) remove(name string) {
	delete(fs.accounts, name)
	delete(fs.slots, name)
	delete(fs.transactions, name)
	delete(fs.transactionsStatus, name)
	delete(fs.blocks, name)
	delete(fs.blocksMeta, name)
	delete(fs.entries, name)
}

func put[T any](m map[string]T, name string, v T) map[string]T {
	if m == nil {
		m = make(map[string]T)
	}
	m[name] = v
	return m
}

// WithAccounts returns a copy of fs with the named accounts filter.
func (fs FilterSet) WithAccounts(name string, f AccountsFilter) FilterSet {
	out := fs.clone()
	out.remove(name)
	f.Accounts = slices.Clone(f.Accounts)
	f.Owners = slices.Clone(f.Owners)
	f.Filters = slices.Clone(f.Filters)
	f.NonemptyTxnSignature = clonePtr(f.NonemptyTxnSignature)
	out.accounts = put(out.accounts, name, f)
	return out
}

// WithSlots returns a copy of fs with the named slots filter.
func (fs FilterSet) WithSlots(name string, f SlotsFilter) FilterSet {
	out := fs.clone()
	out.remove(name)
	f.FilterByCommitment = clonePtr(f.FilterByCommitment)
	f.InterslotUpdates = clonePtr(f.InterslotUpdates)
	out.slots = put(out.slots, name, f)
	return out
}

// WithTransactions returns a copy of fs with the named transactions filter.
func (fs FilterSet) WithTransactions(name string, f TransactionsFilter) FilterSet {
	out := fs.clone()
	out.remove(name)
	out.transactions = put(out.transactions, name, cloneTransactionsFilter(f))
	return out
}

// WithTransactionsStatus returns a copy of fs with the named transaction status filter.
func (fs FilterSet) WithTransactionsStatus(name string, f TransactionsFilter) FilterSet {
	out := fs.clone()
	out.remove(name)
	out.transactionsStatus = put(out.transactionsStatus, name, cloneTransactionsFilter(f))
	return out
}

// WithBlocks returns a copy of fs with the named blocks filter.
func (fs FilterSet) WithBlocks(name string, f BlocksFilter) FilterSet {
	out := fs.clone()
	out.remove(name)
	f.AccountInclude = slices.Clone(f.AccountInclude)
	f.IncludeTransactions = clonePtr(f.IncludeTransactions)
	f.IncludeAccounts = clonePtr(f.IncludeAccounts)
	f.IncludeEntries = clonePtr(f.IncludeEntries)
	out.blocks = put(out.blocks, name, f)
	return out
}

// WithBlocksMeta returns a copy of fs with the named block meta filter.
func (fs FilterSet) WithBlocksMeta(name string) FilterSet {
	out := fs.clone()
	out.remove(name)
	out.blocksMeta = put(out.blocksMeta, name, BlocksMetaFilter{})
	return out
}

// WithEntries returns a copy of fs with the named entry filter.
func (fs FilterSet) WithEntries(name string) FilterSet {
	out := fs.clone()
	out.remove(name)
	out.entries = put(out.entries, name, EntryFilter{})
	return out
}

// Without returns a copy of fs without the named filter.
func (fs FilterSet) Without(name string) FilterSet {
	out := fs.clone()
	out.remove(name)
	return out
}

// WithCommitment returns a copy of fs with the minimum commitment level set.
func (fs FilterSet) WithCommitment(c CommitmentLevel) FilterSet {
	out := fs.clone()
	out.commitment = &c
	return out
}

// WithDataSlices returns a copy of fs whose account updates carry only the given data ranges.
func (fs FilterSet) WithDataSlices(ds ...DataSlice) FilterSet {
	out := fs.clone()
	out.dataSlices = slices.Clone(ds)
	return out
}

// WithFromSlot returns a copy of fs that asks the server to replay from slot.
func (fs FilterSet) WithFromSlot(slot uint64) FilterSet {
	out := fs.clone()
	out.fromSlot = &slot
	return out
}

// Commitment returns the minimum commitment, if set.
func (fs FilterSet) Commitment() (CommitmentLevel, bool) {
	if fs.commitment == nil {
		return 0, false
	}
	return *fs.commitment, true
}

// FromSlot returns the replay starting slot, if set.
func (fs FilterSet) FromSlot() (uint64, bool) {
	if fs.fromSlot == nil {
		return 0, false
	}
	return *fs.fromSlot, true
}

// DataSlices returns a copy of the data slice list.
func (fs FilterSet) DataSlices() []DataSlice {
	return slices.Clone(fs.dataSlices)
}

// Kind returns the kind of the named filter.
func (fs FilterSet) Kind(name string) (FilterKind, bool) {
	switch {
	case hasKey(fs.accounts, name):
		return KindAccounts, true
	case hasKey(fs.slots, name):
		return KindSlots, true
	case hasKey(fs.transactions, name):
		return KindTransactions, true
	case hasKey(fs.transactionsStatus, name):
		return KindTransactionsStatus, true
	case hasKey(fs.blocks, name):
		return KindBlocks, true
	case hasKey(fs.blocksMeta, name):
		return KindBlocksMeta, true
	case hasKey(fs.entries, name):
		return KindEntries, true
	}
	return 0, false
}

// Has reports whether fs contains a filter with the given name.
func (fs FilterSet) Has(name string) bool {
	_, ok := fs.Kind(name)
	return ok
}

// Len returns the number of named filters.
func (fs FilterSet) Len() int {
	return len(fs.accounts) + len(fs.slots) + len(fs.transactions) + len(fs.transactionsStatus) +
		len(fs.blocks) + len(fs.blocksMeta) + len(fs.entries)
}

// Names returns the filter names in sorted order.
func (fs FilterSet) Names() []string {
	names := make([]string, 0, fs.Len())
	names = appendKeys(names, fs.accounts)
	names = appendKeys(names, fs.slots)
	names = appendKeys(names, fs.transactions)
	names = appendKeys(names, fs.transactionsStatus)
	names = appendKeys(names, fs.blocks)
	names = appendKeys(names, fs.blocksMeta)
	names = appendKeys(names, fs.entries)
	sort.Strings(names)
	return names
}

// Equal reports whether fs and other describe the same filter state.
func (fs FilterSet) Equal(other FilterSet) bool {
	return bytes.Equal(fs.encode(), other.encode())
}

// Fingerprint returns a BLAKE3-256 digest of the filter state. Equal sets
// have equal fingerprints.
func (fs FilterSet) Fingerprint() [32]byte {
	return blake3.Sum256(fs.encode())
}

// String returns a short description for logs.
func (fs FilterSet) String() string {
	fp := fs.Fingerprint()
	return fmt.Sprintf("FilterSet{%d filters, %x}", fs.Len(), fp[:6])
}

// Validate checks the set before it is written on a stream.
func (fs FilterSet) Validate() error {
	for _, name := range fs.Names() {
		if name == "" {
			return &InvalidFilterError{Field: "name", Reason: "filter name must not be empty"}
		}
	}

	for name, f := range fs.accounts {
		if err := validatePubkeys("accounts."+name+".account", f.Accounts); err != nil {
			return err
		}
		if err := validatePubkeys("accounts."+name+".owner", f.Owners); err != nil {
			return err
		}
		for i, sub := range f.Filters {
			if err := validateSubFilter(fmt.Sprintf("accounts.%s.filters[%d]", name, i), sub); err != nil {
				return err
			}
		}
	}

	for kind, m := range map[string]map[string]TransactionsFilter{
		"transactions":        fs.transactions,
		"transactions_status": fs.transactionsStatus,
	} {
		for name, f := range m {
			field := kind + "." + name
			if f.Signature != nil {
				if _, err := types.SignatureFromBase58(*f.Signature); err != nil {
					return &InvalidFilterError{Field: field + ".signature", Reason: err.Error()}
				}
			}
			if err := validatePubkeys(field+".account_include", f.AccountInclude); err != nil {
				return err
			}
			if err := validatePubkeys(field+".account_exclude", f.AccountExclude); err != nil {
				return err
			}
			if err := validatePubkeys(field+".account_required", f.AccountRequired); err != nil {
				return err
			}
		}
	}

	for name, f := range fs.blocks {
		if err := validatePubkeys("blocks."+name+".account_include", f.AccountInclude); err != nil {
			return err
		}
	}

	if fs.commitment != nil && !fs.commitment.valid() {
		return &InvalidFilterError{Field: "commitment", Reason: fmt.Sprintf("unknown level %d", *fs.commitment)}
	}

	sorted := slices.Clone(fs.dataSlices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		if prev.Length > sorted[i].Offset-prev.Offset {
			return &InvalidFilterError{
				Field:  "accounts_data_slice",
				Reason: fmt.Sprintf("slice at %d overlaps slice at %d", sorted[i].Offset, prev.Offset),
			}
		}
	}
	return nil
}

func validatePubkeys(field string, addrs []string) error {
	for _, a := range addrs {
		if _, err := types.PubkeyFromBase58(a); err != nil {
			return &InvalidFilterError{Field: field, Reason: fmt.Sprintf("%q: %v", a, err)}
		}
	}
	return nil
}

func validateSubFilter(field string, sub AccountsSubFilter) error {
	f := sub.f
	if f == nil {
		return &InvalidFilterError{Field: field, Reason: "empty sub-filter"}
	}
	if f.Memcmp != nil {
		m := f.Memcmp
		arms := 0
		if m.Bytes != nil {
			arms++
		}
		if m.Base58 != nil {
			arms++
			if _, err := base58.Decode(*m.Base58); err != nil {
				return &InvalidFilterError{Field: field + ".memcmp", Reason: "bad base58 data"}
			}
		}
		if m.Base64 != nil {
			arms++
			if _, err := base64.StdEncoding.DecodeString(*m.Base64); err != nil {
				return &InvalidFilterError{Field: field + ".memcmp", Reason: "bad base64 data"}
			}
		}
		if arms != 1 {
			return &InvalidFilterError{Field: field + ".memcmp", Reason: "exactly one data form is required"}
		}
	}
	return nil
}

// request builds the full snapshot written on the stream. Every map is
// non-nil so that an empty kind clears the server state for that kind.
func (fs FilterSet) request() *wire.SubscribeRequest {
	req := &wire.SubscribeRequest{
		Accounts:           make(map[string]*wire.SubscribeRequestFilterAccounts, len(fs.accounts)),
		Slots:              make(map[string]*wire.SubscribeRequestFilterSlots, len(fs.slots)),
		Transactions:       make(map[string]*wire.SubscribeRequestFilterTransactions, len(fs.transactions)),
		TransactionsStatus: make(map[string]*wire.SubscribeRequestFilterTransactions, len(fs.transactionsStatus)),
		Blocks:             make(map[string]*wire.SubscribeRequestFilterBlocks, len(fs.blocks)),
		BlocksMeta:         make(map[string]*wire.SubscribeRequestFilterBlocksMeta, len(fs.blocksMeta)),
		Entry:              make(map[string]*wire.SubscribeRequestFilterEntry, len(fs.entries)),
		Commitment:         fs.commitment.wire(),
		FromSlot:           clonePtr(fs.fromSlot),
	}

	for name, f := range fs.accounts {
		w := &wire.SubscribeRequestFilterAccounts{
			Account:              slices.Clone(f.Accounts),
			Owner:                slices.Clone(f.Owners),
			NonemptyTxnSignature: clonePtr(f.NonemptyTxnSignature),
		}
		for _, sub := range f.Filters {
			if sub.f != nil {
				w.Filters = append(w.Filters, sub.f)
			}
		}
		req.Accounts[name] = w
	}
	for name, f := range fs.slots {
		req.Slots[name] = &wire.SubscribeRequestFilterSlots{
			FilterByCommitment: clonePtr(f.FilterByCommitment),
			InterslotUpdates:   clonePtr(f.InterslotUpdates),
		}
	}
	for name, f := range fs.transactions {
		req.Transactions[name] = transactionsRequest(f)
	}
	for name, f := range fs.transactionsStatus {
		req.TransactionsStatus[name] = transactionsRequest(f)
	}
	for name, f := range fs.blocks {
		req.Blocks[name] = &wire.SubscribeRequestFilterBlocks{
			AccountInclude:      slices.Clone(f.AccountInclude),
			IncludeTransactions: clonePtr(f.IncludeTransactions),
			IncludeAccounts:     clonePtr(f.IncludeAccounts),
			IncludeEntries:      clonePtr(f.IncludeEntries),
		}
	}
	for name := range fs.blocksMeta {
		req.BlocksMeta[name] = &wire.SubscribeRequestFilterBlocksMeta{}
	}
	for name := range fs.entries {
		req.Entry[name] = &wire.SubscribeRequestFilterEntry{}
	}
	for _, ds := range fs.dataSlices {
		req.AccountsDataSlice = append(req.AccountsDataSlice,
			&wire.SubscribeRequestAccountsDataSlice{Offset: ds.Offset, Length: ds.Length})
	}
	return req
}

func (fs FilterSet) encode() []byte {
	b, err := wire.Marshal(fs.request())
	if err != nil {
		// SubscribeRequest always implements the wire message interface.
		panic(err)
	}
	return b
}

func transactionsRequest(f TransactionsFilter) *wire.SubscribeRequestFilterTransactions {
	f = cloneTransactionsFilter(f)
	return &wire.SubscribeRequestFilterTransactions{
		Vote:            f.Vote,
		Failed:          f.Failed,
		Signature:       f.Signature,
		AccountInclude:  f.AccountInclude,
		AccountExclude:  f.AccountExclude,
		AccountRequired: f.AccountRequired,
	}
}

func cloneTransactionsFilter(f TransactionsFilter) TransactionsFilter {
	return TransactionsFilter{
		Vote:            clonePtr(f.Vote),
		Failed:          clonePtr(f.Failed),
		Signature:       clonePtr(f.Signature),
		AccountInclude:  slices.Clone(f.AccountInclude),
		AccountExclude:  slices.Clone(f.AccountExclude),
		AccountRequired: slices.Clone(f.AccountRequired),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func hasKey[T any](m map[string]T, k string) bool {
	_, ok := m[k]
	return ok
}

func appendKeys[T any](dst []string, m map[string]T) []string {
	for k := range m {
		dst = append(dst, k)
	}
	return dst
}
