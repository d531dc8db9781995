package geyser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fortiblox/geyser-stream/internal/mockgeyser"
	"github.com/fortiblox/geyser-stream/internal/types"
	"github.com/fortiblox/geyser-stream/pkg/wire"
)

const waitTimeout = 2 * time.Second

func newTestServer(t *testing.T) *mockgeyser.Server {
	t.Helper()
	srv := mockgeyser.New(nil)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *mockgeyser.Server, modify func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Endpoint = mockgeyser.Target
	cfg.UseTLS = false
	cfg.PingInterval = -1
	cfg.ReconnectMinDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 50 * time.Millisecond
	cfg.DrainTimeout = 500 * time.Millisecond
	cfg.Logger = zaptest.NewLogger(t)
	cfg.DialOptions = append(cfg.DialOptions, srv.DialOption())
	if modify != nil {
		modify(&cfg)
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func subscribeWith(t *testing.T, client *Client, fs FilterSet) *Session {
	t.Helper()
	s, err := client.SubscribeWith(context.Background(), fs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nextRequest(t *testing.T, srv *mockgeyser.Server) *wire.SubscribeRequest {
	t.Helper()
	select {
	case req := <-srv.Requests():
		return req
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for subscribe request")
		return nil
	}
}

func next(t *testing.T, s *Session) *SubscribeUpdate {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	u, err := s.Next(ctx)
	require.NoError(t, err)
	return u
}

func nextErr(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for {
		_, err := s.Next(ctx)
		if err != nil {
			return err
		}
	}
}

func testPubkey(b byte) []byte {
	pk := make([]byte, 32)
	pk[0] = b
	return pk
}

func accountInfo(pubkey []byte) *wire.SubscribeUpdateAccountInfo {
	return &wire.SubscribeUpdateAccountInfo{
		Pubkey:   pubkey,
		Lamports: 1,
		Owner:    types.SystemProgramAddr.Bytes(),
		Data:     []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestSession_AccountFilter(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	aaa, bbb := testPubkey(1), testPubkey(2)
	fs := NewFilterSet().WithAccounts("watch", AccountsFilter{Accounts: []string{base58.Encode(aaa)}})
	s := subscribeWith(t, client, fs)
	req := nextRequest(t, srv)
	assert.Contains(t, req.Accounts, "watch")

	assert.Equal(t, 0, srv.PublishAccount(accountInfo(bbb), 10))
	assert.Equal(t, 1, srv.PublishAccount(accountInfo(aaa), 11))

	u := next(t, s)
	assert.Equal(t, []string{"watch"}, u.Filters)
	au, ok := u.Payload.(*AccountUpdate)
	require.True(t, ok)
	assert.Equal(t, aaa, au.Pubkey.Bytes())
	assert.EqualValues(t, 11, au.Slot)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestSession_DataSlices(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	aaa := testPubkey(1)
	fs := NewFilterSet().
		WithAccounts("watch", AccountsFilter{Accounts: []string{base58.Encode(aaa)}}).
		WithDataSlices(DataSlice{Offset: 1, Length: 2})
	s := subscribeWith(t, client, fs)
	nextRequest(t, srv)

	srv.PublishAccount(accountInfo(aaa), 1)
	au := next(t, s).Payload.(*AccountUpdate)
	assert.Equal(t, []byte{0xad, 0xbe}, au.Data)
}

func TestSession_ReplaceFilters(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("old", SlotsFilter{}))
	nextRequest(t, srv)

	next2 := NewFilterSet().WithSlots("new", SlotsFilter{})
	require.NoError(t, s.ReplaceFilters(context.Background(), next2))
	req := nextRequest(t, srv)
	assert.NotContains(t, req.Slots, "old")
	assert.Contains(t, req.Slots, "new")
	assert.True(t, s.Filters().Equal(next2))

	// A frame that raced the cutover only carries the old name.
	srv.EmitRaw(&wire.SubscribeUpdate{Filters: []string{"old"}, Slot: &wire.SubscribeUpdateSlot{Slot: 1}})
	srv.EmitRaw(&wire.SubscribeUpdate{Filters: []string{"old", "new"}, Slot: &wire.SubscribeUpdateSlot{Slot: 2}})
	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 3, Status: wire.SlotConfirmed})

	u := next(t, s)
	assert.Equal(t, []string{"new"}, u.Filters)
	assert.EqualValues(t, 2, u.Payload.(*SlotUpdate).Slot)

	u = next(t, s)
	assert.Equal(t, []string{"new"}, u.Filters)
	assert.EqualValues(t, 3, u.Payload.(*SlotUpdate).Slot)

	assert.EqualValues(t, 1, s.Stats().StaleDropped)
}

func TestSession_ConcurrentReplaceFilters(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("initial", SlotsFilter{}))
	nextRequest(t, srv)

	const n = 16
	sets := make(map[string]FilterSet, n)
	for i := range n {
		name := fmt.Sprintf("set-%d", i)
		sets[name] = NewFilterSet().
			WithSlots(name, SlotsFilter{}).
			WithEntries(name + "-entries").
			WithCommitment(CommitmentConfirmed)
	}

	var wg sync.WaitGroup
	for _, fs := range sets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.ReplaceFilters(context.Background(), fs))
		}()
	}
	wg.Wait()

	// Every write reaches the server as one whole snapshot.
	seen := make(map[string]bool, n)
	var last string
	for range n {
		req := nextRequest(t, srv)
		require.Len(t, req.Slots, 1)
		for name := range req.Slots {
			last = name
		}
		assert.Contains(t, sets, last)
		assert.False(t, seen[last], "snapshot %s written twice", last)
		seen[last] = true
		assert.Len(t, req.Entry, 1)
		assert.Contains(t, req.Entry, last+"-entries")
		require.NotNil(t, req.Commitment)
	}
	assert.Len(t, seen, n)

	// The accepted state is the snapshot the server saw last.
	assert.True(t, s.Filters().Equal(sets[last]))
}

func TestSession_ReplaceFiltersClearsKinds(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	aaa := testPubkey(1)
	fs := NewFilterSet().
		WithAccounts("acct", AccountsFilter{Accounts: []string{base58.Encode(aaa)}}).
		WithSlots("slots", SlotsFilter{})
	s := subscribeWith(t, client, fs)
	nextRequest(t, srv)

	require.NoError(t, s.ReplaceFilters(context.Background(), fs.Without("acct")))
	req := nextRequest(t, srv)
	assert.Empty(t, req.Accounts)
	assert.Contains(t, req.Slots, "slots")

	assert.Equal(t, 0, srv.PublishAccount(accountInfo(aaa), 1))
}

func TestSession_ReplaceFiltersInvalid(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	fs := NewFilterSet().WithSlots("slots", SlotsFilter{})
	s := subscribeWith(t, client, fs)
	nextRequest(t, srv)

	bad := NewFilterSet().WithAccounts("acct", AccountsFilter{Owners: []string{"nope"}})
	err := s.ReplaceFilters(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.True(t, s.Filters().Equal(fs))
	assert.Equal(t, StateOpen, s.State())
}

func TestSession_SubscribeWithInvalid(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	_, err := client.SubscribeWith(context.Background(), NewFilterSet().WithEntries(""))
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.Equal(t, 0, srv.StreamCount())
}

func TestSession_SlotStatuses(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{InterslotUpdates: boolPtr(true)}))
	nextRequest(t, srv)

	reason := "duplicate block"
	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 5, Status: wire.SlotDead, DeadError: &reason})
	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 6, Status: wire.SlotFinalized})

	dead := next(t, s).Payload.(*SlotUpdate)
	assert.Equal(t, SlotStatusDead, dead.Status)
	require.NotNil(t, dead.DeadError)
	assert.Equal(t, reason, *dead.DeadError)

	final := next(t, s).Payload.(*SlotUpdate)
	assert.Equal(t, SlotStatusFinalized, final.Status)
	assert.Nil(t, final.DeadError)
}

func TestSession_InterslotGating(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	assert.Equal(t, 0, srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 5, Status: wire.SlotFirstShredReceived}))
	assert.Equal(t, 1, srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 5, Status: wire.SlotProcessed}))
	assert.Equal(t, SlotStatusProcessed, next(t, s).Payload.(*SlotUpdate).Status)
}

func TestSession_CloseDeliversNothing(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	for i := range 10 {
		srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: uint64(i), Status: wire.SlotProcessed})
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Err())

	for _, err := range []error{
		s.ReplaceFilters(context.Background(), NewFilterSet()),
		s.Ping(context.Background(), 1),
	} {
		var serr *StreamError
		assert.ErrorAs(t, err, &serr)
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.False(t, IsRetryable(err))
	}

	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session goroutines still running after Close")
	}
	assert.Eventually(t, func() bool { return srv.StreamCount() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestSession_ServerEnd(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 1, Status: wire.SlotProcessed})
	next(t, s)

	srv.DropStreams(nil)
	assert.ErrorIs(t, nextErr(t, s), io.EOF)
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_ServerError(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	srv.DropStreams(status.Error(codes.Unavailable, "node restarting"))
	err := nextErr(t, s)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, StateErrored, s.State())
	assert.Equal(t, err, s.Err())
}

func TestSession_ProtocolError(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	srv.EmitRaw(&wire.SubscribeUpdate{
		Filters: []string{"slots"},
		Slot:    &wire.SubscribeUpdateSlot{Slot: 1},
		Entry:   &wire.SubscribeUpdateEntry{Slot: 1},
	})

	err := nextErr(t, s)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"slot", "entry"}, perr.Variants)
	assert.False(t, IsRetryable(err))
}

func TestSession_ServerPingAnswered(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	srv.SendPing(77)

	u := next(t, s)
	assert.Equal(t, &PingUpdate{ID: 77}, u.Payload)

	select {
	case id := <-srv.PingReplies():
		assert.EqualValues(t, 77, id)
	case <-time.After(waitTimeout):
		t.Fatal("server ping was not answered")
	}
	assert.EqualValues(t, 1, s.Stats().ServerPings)
}

func TestSession_PingPong(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s, err := client.Subscribe(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Ping(context.Background(), 9))

	u := next(t, s)
	assert.Equal(t, &PongUpdate{ID: 9}, u.Payload)
	assert.EqualValues(t, 1, s.Stats().PingsSent)
	assert.EqualValues(t, 1, s.Stats().PongsReceived)
}

func TestSession_Liveness(t *testing.T) {
	srv := newTestServer(t)
	srv.SetAnswerPings(false)
	client := newTestClient(t, srv, func(c *Config) {
		c.PingInterval = 20 * time.Millisecond
		c.PongTimeout = 100 * time.Millisecond
	})

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))

	err := nextErr(t, s)
	assert.ErrorIs(t, err, ErrLivenessTimeout)
	var lerr *LivenessError
	require.ErrorAs(t, err, &lerr)
	assert.Greater(t, lerr.Elapsed, 100*time.Millisecond)
	assert.True(t, IsRetryable(err))
}

func TestSession_KeepaliveHealthy(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, func(c *Config) {
		c.PingInterval = 20 * time.Millisecond
		c.PongTimeout = 100 * time.Millisecond
	})

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	for {
		u, err := s.Next(ctx)
		if err != nil {
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			break
		}
		assert.IsType(t, &PongUpdate{}, u.Payload)
	}
	assert.Equal(t, StateOpen, s.State())
	assert.Greater(t, s.Stats().PongsReceived, uint64(0))
}

func TestSession_SlowConsumer(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, func(c *Config) {
		c.UpdateBufferSize = 1
		c.SlowConsumerTimeout = 50 * time.Millisecond
	})

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	for i := range 3 {
		srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: uint64(i), Status: wire.SlotProcessed})
	}

	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not fail on a stalled consumer")
	}

	// The buffered update comes first, then the failure.
	u := next(t, s)
	assert.EqualValues(t, 0, u.Payload.(*SlotUpdate).Slot)
	assert.ErrorIs(t, nextErr(t, s), ErrSlowConsumer)
}

func TestSession_ContextCancel(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := client.SubscribeWith(ctx, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	nextRequest(t, srv)

	cancel()
	err = nextErr(t, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestSession_Ordering(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	const n = 200
	go func() {
		for i := range n {
			srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: uint64(i), Status: wire.SlotProcessed})
		}
	}()
	for i := range n {
		assert.EqualValues(t, i, next(t, s).Payload.(*SlotUpdate).Slot)
	}
}

func TestSession_Headers(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, func(c *Config) {
		c.Token = "secret"
		c.Headers = map[string]string{"X-Client": "geyserctl"}
	})

	subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	md := srv.LastMetadata(wire.MethodSubscribe)
	assert.Equal(t, []string{"secret"}, md.Get(TokenHeaderInsecure))
	assert.Equal(t, []string{"geyserctl"}, md.Get("x-client"))
	assert.Empty(t, md.Get(TokenHeaderSecure))
}

func TestTokenAuth(t *testing.T) {
	auth := &tokenAuth{token: "secret"}
	md, err := auth.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{TokenHeaderSecure: "secret"}, md)
	assert.True(t, auth.RequireTransportSecurity())
}

// =============================================================================
// Control channel
// =============================================================================

func TestControl_Calls(t *testing.T) {
	srv := newTestServer(t)
	srv.SetVersion(`{"version":"1.2.3"}`)
	client := newTestClient(t, srv, func(c *Config) { c.Token = "secret" })
	ctl := client.Control()
	ctx := context.Background()

	count, err := ctl.Ping(ctx, 42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, count)
	assert.Equal(t, []string{"secret"}, srv.LastMetadata(wire.MethodPing).Get(TokenHeaderInsecure))

	slot, err := ctl.GetSlot(ctx, CommitmentFinalized.Ptr())
	require.NoError(t, err)
	assert.Greater(t, slot, uint64(0))

	height, err := ctl.GetBlockHeight(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.Height(), height)

	version, err := ctl.GetVersion(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.2.3"}`, version)
}

func TestControl_BlockhashValidity(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)
	ctl := client.Control()
	ctx := context.Background()

	latest, err := ctl.GetLatestBlockhash(ctx, CommitmentConfirmed.Ptr())
	require.NoError(t, err)
	assert.Equal(t, srv.Height()+mockgeyser.BlockhashLifetime, latest.LastValidBlockHeight)

	v, err := ctl.IsBlockhashValid(ctx, latest.Blockhash, nil)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	srv.AdvanceBlocks(mockgeyser.BlockhashLifetime)
	v, err = ctl.IsBlockhashValid(ctx, latest.Blockhash, nil)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	srv.AdvanceBlocks(1)
	v, err = ctl.IsBlockhashValid(ctx, latest.Blockhash, nil)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	v, err = ctl.IsBlockhashValid(ctx, types.Hash{}, nil)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestControl_Deadline(t *testing.T) {
	srv := newTestServer(t)
	srv.SetUnaryDelay(time.Second)
	client := newTestClient(t, srv, func(c *Config) { c.RequestTimeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := client.Control().GetSlot(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	var derr *DeadlineError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, wire.MethodGetSlot, derr.Method)
}

func TestControl_AlongsideSession(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	s := subscribeWith(t, client, NewFilterSet().WithSlots("slots", SlotsFilter{}))
	nextRequest(t, srv)

	_, err := client.Control().GetSlot(context.Background(), nil)
	require.NoError(t, err)

	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 1, Status: wire.SlotProcessed})
	next(t, s)
}

// =============================================================================
// Follow
// =============================================================================

func TestFollow_Resubscribes(t *testing.T) {
	srv := newTestServer(t)

	var reconnects atomic.Int32
	client := newTestClient(t, srv, func(c *Config) {
		c.OnReconnect = func(int) { reconnects.Add(1) }
	})

	errStop := errors.New("stop")
	got := make(chan uint64, 4)
	done := make(chan error, 1)

	fs := NewFilterSet().WithSlots("slots", SlotsFilter{})
	go func() {
		done <- client.Follow(context.Background(), fs, func(_ *Session, u *SubscribeUpdate) error {
			slot := u.Payload.(*SlotUpdate).Slot
			got <- slot
			if slot == 2 {
				return errStop
			}
			return nil
		})
	}()

	nextRequest(t, srv)
	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 1, Status: wire.SlotProcessed})
	assert.EqualValues(t, 1, <-got)

	srv.DropStreams(status.Error(codes.Unavailable, "restart"))

	req := nextRequest(t, srv)
	assert.Contains(t, req.Slots, "slots")
	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 2, Status: wire.SlotProcessed})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStop)
	case <-time.After(waitTimeout):
		t.Fatal("Follow did not return")
	}
	assert.EqualValues(t, 2, <-got)
	assert.EqualValues(t, 1, reconnects.Load())
}

func TestFollow_KeepsReplacedFilters(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	errStop := errors.New("stop")
	done := make(chan error, 1)
	replaced := NewFilterSet().WithSlots("replaced", SlotsFilter{})

	go func() {
		done <- client.Follow(context.Background(), NewFilterSet().WithSlots("initial", SlotsFilter{}),
			func(s *Session, u *SubscribeUpdate) error {
				if u.Payload.(*SlotUpdate).Slot == 1 {
					return s.ReplaceFilters(context.Background(), replaced)
				}
				return errStop
			})
	}()

	nextRequest(t, srv)
	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 1, Status: wire.SlotProcessed})
	nextRequest(t, srv)

	srv.DropStreams(nil)
	req := nextRequest(t, srv)
	assert.Contains(t, req.Slots, "replaced")
	assert.NotContains(t, req.Slots, "initial")

	srv.PublishSlot(&wire.SubscribeUpdateSlot{Slot: 2, Status: wire.SlotProcessed})
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStop)
	case <-time.After(waitTimeout):
		t.Fatal("Follow did not return")
	}
}

func TestFollow_StopsOnProtocolError(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	done := make(chan error, 1)
	go func() {
		done <- client.Follow(context.Background(), NewFilterSet().WithSlots("slots", SlotsFilter{}),
			func(*Session, *SubscribeUpdate) error { return nil })
	}()

	nextRequest(t, srv)
	srv.EmitRaw(&wire.SubscribeUpdate{
		Slot: &wire.SubscribeUpdateSlot{Slot: 1},
		Ping: &wire.SubscribeUpdatePing{ID: 1},
	})

	select {
	case err := <-done:
		var perr *ProtocolError
		assert.ErrorAs(t, err, &perr)
	case <-time.After(waitTimeout):
		t.Fatal("Follow did not return")
	}
}

func TestFollow_MaxReconnects(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, func(c *Config) { c.MaxReconnects = 2 })

	done := make(chan error, 1)
	go func() {
		done <- client.Follow(context.Background(), NewFilterSet().WithSlots("slots", SlotsFilter{}),
			func(*Session, *SubscribeUpdate) error { return nil })
	}()

	for range 3 {
		nextRequest(t, srv)
		srv.DropStreams(status.Error(codes.Unavailable, "flapping"))
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrMaxReconnects)
	case <-time.After(waitTimeout):
		t.Fatal("Follow did not give up")
	}
}

func TestFollow_InvalidFilters(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(t, srv, nil)

	err := client.Follow(context.Background(), NewFilterSet().WithEntries(""),
		func(*Session, *SubscribeUpdate) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidFilter)
}
