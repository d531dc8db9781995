package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/geyser"
	"github.com/fortiblox/geyser-stream/pkg/txencoding"
)

var subscribeCommand = &cli.Command{
	Name:  "subscribe",
	Usage: "stream updates as JSON lines",
	Flags: []cli.Flag{
		commitmentFlag,
		&cli.StringSliceFlag{Name: "accounts", Usage: "account addresses to watch"},
		&cli.StringSliceFlag{Name: "owners", Usage: "owner programs whose accounts to watch"},
		&cli.Uint64Flag{Name: "datasize", Usage: "only accounts with exactly this many data bytes"},
		&cli.StringSliceFlag{Name: "data-slice", Usage: "offset:length of account data to return, repeatable"},
		&cli.BoolFlag{Name: "slots", Usage: "stream slot updates"},
		&cli.BoolFlag{Name: "interslot", Usage: "include intermediate slot statuses"},
		&cli.BoolFlag{Name: "transactions", Usage: "stream transactions"},
		&cli.BoolFlag{Name: "transactions-status", Usage: "stream transaction statuses only"},
		&cli.StringFlag{Name: "vote", Usage: "true or false to filter vote transactions"},
		&cli.StringFlag{Name: "failed", Usage: "true or false to filter failed transactions"},
		&cli.StringSliceFlag{Name: "tx-include", Usage: "transactions touching any of these accounts"},
		&cli.StringSliceFlag{Name: "tx-exclude", Usage: "drop transactions touching these accounts"},
		&cli.StringSliceFlag{Name: "tx-required", Usage: "transactions touching all of these accounts"},
		&cli.BoolFlag{Name: "blocks-meta", Usage: "stream block headers"},
		&cli.BoolFlag{Name: "entries", Usage: "stream PoH entries"},
		&cli.Uint64Flag{Name: "from-slot", Usage: "replay from this slot if the server still has it"},
		&cli.StringFlag{Name: "account-encoding", Value: string(txencoding.EncodingBase64), Usage: "base58, base64 or base64+zstd"},
		&cli.StringFlag{Name: "tx-encoding", Value: string(txencoding.EncodingJSON), Usage: "json, base58 or base64"},
		&cli.IntFlag{Name: "max-supported-version", Value: 0, Usage: "highest transaction version to render, -1 for legacy only"},
		&cli.BoolFlag{Name: "show-rewards", Usage: "include rewards in transaction meta"},
		&cli.BoolFlag{Name: "reconnect", Usage: "resubscribe on retryable failures"},
		&cli.IntFlag{Name: "limit", Usage: "stop after this many updates, 0 for no limit"},
		&cli.DurationFlag{Name: "ping", Usage: "stream ping interval, 0 for the default, negative to disable"},
	},
	Action: cmdSubscribe,
}

func cmdSubscribe(c *cli.Context) error {
	fs, err := filtersFromCLI(c)
	if err != nil {
		return err
	}
	if fs.Len() == 0 {
		return errors.New("no filters given, see --help")
	}

	out, err := newPrinter(c)
	if err != nil {
		return err
	}

	return withClient(c, func(ctx context.Context, client *geyser.Client, logger *zap.Logger) error {
		logger.Info("subscribing", zap.Strings("filters", fs.Names()), zap.Stringer("set", fs))

		limit := c.Int("limit")
		seen := 0
		errLimit := errors.New("limit reached")
		handle := func(_ *geyser.Session, u *geyser.SubscribeUpdate) error {
			if err := out.print(u); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return errLimit
			}
			return nil
		}

		if c.Bool("reconnect") {
			err = client.Follow(ctx, fs, handle)
		} else {
			err = subscribeOnce(ctx, client, fs, handle)
		}

		switch {
		case errors.Is(err, errLimit), errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			logger.Info("interrupted", zap.Int("updates", seen))
			return nil
		}
		return err
	})
}

func subscribeOnce(ctx context.Context, client *geyser.Client, fs geyser.FilterSet, handle geyser.Handler) error {
	s, err := client.SubscribeWith(ctx, fs)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		u, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if err := handle(s, u); err != nil {
			return err
		}
	}
}

func filtersFromCLI(c *cli.Context) (geyser.FilterSet, error) {
	fs := geyser.NewFilterSet()

	if accounts, owners := c.StringSlice("accounts"), c.StringSlice("owners"); len(accounts) > 0 || len(owners) > 0 {
		af := geyser.AccountsFilter{Accounts: accounts, Owners: owners}
		if c.IsSet("datasize") {
			af.Filters = append(af.Filters, geyser.DataSize(c.Uint64("datasize")))
		}
		fs = fs.WithAccounts("accounts", af)
	}

	var slices []geyser.DataSlice
	for _, s := range c.StringSlice("data-slice") {
		ds, err := parseDataSlice(s)
		if err != nil {
			return fs, err
		}
		slices = append(slices, ds)
	}
	if len(slices) > 0 {
		fs = fs.WithDataSlices(slices...)
	}

	if c.Bool("slots") {
		sf := geyser.SlotsFilter{}
		if c.Bool("interslot") {
			t := true
			sf.InterslotUpdates = &t
		}
		fs = fs.WithSlots("slots", sf)
	}

	if c.Bool("transactions") || c.Bool("transactions-status") {
		tf := geyser.TransactionsFilter{
			AccountInclude:  c.StringSlice("tx-include"),
			AccountExclude:  c.StringSlice("tx-exclude"),
			AccountRequired: c.StringSlice("tx-required"),
		}
		var err error
		if tf.Vote, err = optBool(c, "vote"); err != nil {
			return fs, err
		}
		if tf.Failed, err = optBool(c, "failed"); err != nil {
			return fs, err
		}
		if c.Bool("transactions") {
			fs = fs.WithTransactions("transactions", tf)
		} else {
			fs = fs.WithTransactionsStatus("transactions_status", tf)
		}
	}

	if c.Bool("blocks-meta") {
		fs = fs.WithBlocksMeta("blocks_meta")
	}
	if c.Bool("entries") {
		fs = fs.WithEntries("entries")
	}

	commitment, err := commitmentFromCLI(c)
	if err != nil {
		return fs, err
	}
	if commitment != nil {
		fs = fs.WithCommitment(*commitment)
	}
	if c.IsSet("from-slot") {
		fs = fs.WithFromSlot(c.Uint64("from-slot"))
	}

	return fs, fs.Validate()
}

func optBool(c *cli.Context, name string) (*bool, error) {
	s := c.String(name)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &b, nil
}

func parseDataSlice(s string) (geyser.DataSlice, error) {
	off, length, ok := strings.Cut(s, ":")
	if !ok {
		return geyser.DataSlice{}, fmt.Errorf("bad data slice %q, want offset:length", s)
	}
	o, err := strconv.ParseUint(off, 10, 64)
	if err != nil {
		return geyser.DataSlice{}, fmt.Errorf("bad data slice offset %q: %w", off, err)
	}
	l, err := strconv.ParseUint(length, 10, 64)
	if err != nil {
		return geyser.DataSlice{}, fmt.Errorf("bad data slice length %q: %w", length, err)
	}
	return geyser.DataSlice{Offset: o, Length: l}, nil
}

func parseHash(s string) (types.Hash, error) {
	h, err := types.HashFromBase58(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("bad blockhash %q: %w", s, err)
	}
	return h, nil
}

// printer renders updates as JSON lines.
type printer struct {
	w                   io.Writer
	accountEncoding     txencoding.Encoding
	txEncoding          txencoding.Encoding
	maxSupportedVersion *uint8
	showRewards         bool
}

func newPrinter(c *cli.Context) (*printer, error) {
	accEnc, err := txencoding.ParseEncoding(c.String("account-encoding"))
	if err != nil {
		return nil, err
	}
	txEnc, err := txencoding.ParseEncoding(c.String("tx-encoding"))
	if err != nil {
		return nil, err
	}
	p := &printer{
		w:               c.App.Writer,
		accountEncoding: accEnc,
		txEncoding:      txEnc,
		showRewards:     c.Bool("show-rewards"),
	}
	if v := c.Int("max-supported-version"); v >= 0 {
		if v > 255 {
			return nil, fmt.Errorf("--max-supported-version %d out of range", v)
		}
		version := uint8(v)
		p.maxSupportedVersion = &version
	}
	return p, nil
}

type updateLine struct {
	Filters   []string  `json:"filters"`
	CreatedAt time.Time `json:"createdAt"`
	Type      string    `json:"type"`
	Update    any       `json:"update"`
}

type accountLine struct {
	Slot         uint64           `json:"slot"`
	IsStartup    bool             `json:"isStartup"`
	Pubkey       types.Pubkey     `json:"pubkey"`
	Owner        types.Pubkey     `json:"owner"`
	Lamports     uint64           `json:"lamports"`
	Executable   bool             `json:"executable"`
	RentEpoch    uint64           `json:"rentEpoch"`
	Data         [2]string        `json:"data"`
	WriteVersion uint64           `json:"writeVersion"`
	TxnSignature *types.Signature `json:"txnSignature,omitempty"`
}

type slotLine struct {
	Slot      uint64  `json:"slot"`
	Parent    *uint64 `json:"parent,omitempty"`
	Status    string  `json:"status"`
	DeadError *string `json:"deadError,omitempty"`
}

type transactionLine struct {
	Slot        uint64          `json:"slot"`
	Signature   types.Signature `json:"signature"`
	IsVote      bool            `json:"isVote"`
	Index       uint64          `json:"index"`
	Transaction json.RawMessage `json:"transaction"`
}

type statusLine struct {
	Slot      uint64          `json:"slot"`
	Signature types.Signature `json:"signature"`
	IsVote    bool            `json:"isVote"`
	Index     uint64          `json:"index"`
	Err       json.RawMessage `json:"err"`
}

type blockLine struct {
	Slot                     uint64     `json:"slot"`
	ParentSlot               uint64     `json:"parentSlot"`
	Blockhash                types.Hash `json:"blockhash"`
	ParentBlockhash          types.Hash `json:"parentBlockhash"`
	BlockTime                *int64     `json:"blockTime"`
	BlockHeight              *uint64    `json:"blockHeight"`
	ExecutedTransactionCount uint64     `json:"executedTransactionCount"`
	EntriesCount             uint64     `json:"entriesCount"`
	Transactions             int        `json:"transactions,omitempty"`
	Accounts                 int        `json:"accounts,omitempty"`
}

func (p *printer) print(u *geyser.SubscribeUpdate) error {
	line := updateLine{Filters: u.Filters, CreatedAt: u.CreatedAt}

	switch v := u.Payload.(type) {
	case *geyser.AccountUpdate:
		data, err := txencoding.EncodeAccountData(v.Data, p.accountEncoding)
		if err != nil {
			return err
		}
		line.Type = "account"
		line.Update = accountLine{
			Slot:         v.Slot,
			IsStartup:    v.IsStartup,
			Pubkey:       v.Pubkey,
			Owner:        v.Owner,
			Lamports:     v.Lamports,
			Executable:   v.Executable,
			RentEpoch:    v.RentEpoch,
			Data:         data,
			WriteVersion: v.WriteVersion,
			TxnSignature: v.TxnSignature,
		}

	case *geyser.SlotUpdate:
		line.Type = "slot"
		line.Update = slotLine{Slot: v.Slot, Parent: v.ParentSlot, Status: v.Status.String(), DeadError: v.DeadError}

	case *geyser.TransactionUpdate:
		encoded, err := v.Encode(p.txEncoding, p.maxSupportedVersion, p.showRewards)
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", v.Transaction.Signature, err)
		}
		line.Type = "transaction"
		line.Update = transactionLine{
			Slot:        v.Slot,
			Signature:   v.Transaction.Signature,
			IsVote:      v.Transaction.IsVote,
			Index:       v.Transaction.Index,
			Transaction: json.RawMessage(encoded),
		}

	case *geyser.TransactionStatusUpdate:
		line.Type = "transactionStatus"
		st := statusLine{Slot: v.Slot, Signature: v.Signature, IsVote: v.IsVote, Index: v.Index, Err: json.RawMessage("null")}
		if v.Err != nil {
			st.Err = txErrJSON(v.Err)
		}
		line.Update = st

	case *geyser.Block:
		line.Type = "block"
		line.Update = blockLine{
			Slot:                     v.Slot,
			ParentSlot:               v.ParentSlot,
			Blockhash:                v.Blockhash,
			ParentBlockhash:          v.ParentBlockhash,
			BlockTime:                v.BlockTime,
			BlockHeight:              v.BlockHeight,
			ExecutedTransactionCount: v.ExecutedTransactionCount,
			EntriesCount:             v.EntriesCount,
			Transactions:             len(v.Transactions),
			Accounts:                 len(v.Accounts),
		}

	case *geyser.BlockMeta:
		line.Type = "blockMeta"
		line.Update = blockLine{
			Slot:                     v.Slot,
			ParentSlot:               v.ParentSlot,
			Blockhash:                v.Blockhash,
			ParentBlockhash:          v.ParentBlockhash,
			BlockTime:                v.BlockTime,
			BlockHeight:              v.BlockHeight,
			ExecutedTransactionCount: v.ExecutedTransactionCount,
			EntriesCount:             v.EntriesCount,
		}

	case *geyser.Entry:
		line.Type = "entry"
		line.Update = v

	case *geyser.PingUpdate:
		line.Type = "ping"
		line.Update = v

	case *geyser.PongUpdate:
		line.Type = "pong"
		line.Update = v

	default:
		return fmt.Errorf("unexpected payload %T", u.Payload)
	}

	return printJSON(p.w, line)
}

// txErrJSON returns the RPC rendering of a transaction error, or the raw
// bytes when they could not be decoded.
func txErrJSON(e *geyser.TransactionError) json.RawMessage {
	if e.Message != "" && json.Valid([]byte(e.Message)) {
		return json.RawMessage(e.Message)
	}
	b, _ := json.Marshal(map[string]any{"raw": e.Raw})
	return b
}
