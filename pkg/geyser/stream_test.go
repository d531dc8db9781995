package geyser

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// scriptedConn hands out a single scriptedStream.
type scriptedConn struct {
	stream *scriptedStream
}

func (c *scriptedConn) Invoke(context.Context, string, any, any, ...grpc.CallOption) error {
	return io.ErrUnexpectedEOF
}

func (c *scriptedConn) NewStream(ctx context.Context, _ *grpc.StreamDesc, _ string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	c.stream.ctx = ctx
	return c.stream, nil
}

// scriptedStream records writes and replays updates pushed by the test.
// While the gate is held, SendMsg blocks before recording.
type scriptedStream struct {
	ctx     context.Context
	inbound chan *wire.SubscribeUpdate
	gate    chan struct{}
	entered chan struct{}

	mu   sync.Mutex
	sent []*wire.SubscribeRequest
}

func newScriptedStream() *scriptedStream {
	gate := make(chan struct{})
	close(gate)
	return &scriptedStream{
		inbound: make(chan *wire.SubscribeUpdate, 64),
		gate:    gate,
		entered: make(chan struct{}, 64),
	}
}

func (st *scriptedStream) hold() { st.gate = make(chan struct{}) }

func (st *scriptedStream) release() { close(st.gate) }

func (st *scriptedStream) Header() (metadata.MD, error) { return nil, nil }
func (st *scriptedStream) Trailer() metadata.MD         { return nil }
func (st *scriptedStream) CloseSend() error             { return nil }
func (st *scriptedStream) Context() context.Context     { return st.ctx }

func (st *scriptedStream) SendMsg(m any) error {
	st.entered <- struct{}{}
	select {
	case <-st.gate:
	case <-st.ctx.Done():
		return io.EOF
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sent = append(st.sent, m.(*wire.SubscribeRequest))
	return nil
}

func (st *scriptedStream) RecvMsg(m any) error {
	select {
	case u := <-st.inbound:
		*m.(*wire.SubscribeUpdate) = *u
		return nil
	case <-st.ctx.Done():
		return st.ctx.Err()
	}
}

func (st *scriptedStream) written() []*wire.SubscribeRequest {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]*wire.SubscribeRequest(nil), st.sent...)
}

func (st *scriptedStream) serverPing(id int32) {
	st.inbound <- &wire.SubscribeUpdate{Ping: &wire.SubscribeUpdatePing{ID: id}}
}

func (st *scriptedStream) serverPong(id int32) {
	st.inbound <- &wire.SubscribeUpdate{Pong: &wire.SubscribeUpdatePong{ID: id}}
}

func openScripted(t *testing.T, modify func(*Config)) (*Session, *scriptedStream) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Endpoint = "scripted"
	cfg.PingInterval = -1
	cfg.DrainTimeout = 50 * time.Millisecond
	cfg.Logger = zaptest.NewLogger(t)
	if modify != nil {
		modify(&cfg)
	}

	st := newScriptedStream()
	s, err := openSession(context.Background(), &scriptedConn{stream: st}, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, st
}

func queued(s *Session) int {
	s.outbox.mu.Lock()
	defer s.outbox.mu.Unlock()
	return len(s.outbox.items)
}

func TestSession_PingAnswerQueuesBehindWrites(t *testing.T) {
	s, st := openScripted(t, nil)
	st.hold()

	first := NewFilterSet().WithSlots("first", SlotsFilter{})
	second := NewFilterSet().WithSlots("second", SlotsFilter{})

	errs := make(chan error, 2)
	go func() { errs <- s.ReplaceFilters(context.Background(), first) }()
	// The writer picks up the first set and blocks inside SendMsg.
	select {
	case <-st.entered:
	case <-time.After(waitTimeout):
		t.Fatal("first write never reached the stream")
	}

	go func() { errs <- s.ReplaceFilters(context.Background(), second) }()
	require.Eventually(t, func() bool { return queued(s) == 1 }, waitTimeout, time.Millisecond)

	st.serverPing(5)
	require.Eventually(t, func() bool { return queued(s) == 2 }, waitTimeout, time.Millisecond)

	st.release()
	for range 2 {
		require.NoError(t, <-errs)
	}
	require.Eventually(t, func() bool { return len(st.written()) == 3 }, waitTimeout, time.Millisecond)

	sent := st.written()
	assert.Contains(t, sent[0].Slots, "first")
	assert.Contains(t, sent[1].Slots, "second")
	require.NotNil(t, sent[2].Ping)
	assert.True(t, sent[2].IsPingOnly())
	assert.EqualValues(t, 5, sent[2].Ping.ID)
	assert.True(t, s.Filters().Equal(second))
}

func TestSession_PongSettlesOldestPing(t *testing.T) {
	s, st := openScripted(t, func(c *Config) { c.PongTimeout = 100 * time.Millisecond })

	// The answer to a server ping and a caller ping share id 0. A single
	// pong only settles the answer, which went out first.
	st.serverPing(0)
	require.Eventually(t, func() bool { return len(st.written()) == 1 }, waitTimeout, time.Millisecond)
	require.NoError(t, s.Ping(context.Background(), 0))
	st.serverPong(0)

	err := nextErr(t, s)
	var lerr *LivenessError
	require.ErrorAs(t, err, &lerr)
	assert.EqualValues(t, 0, lerr.PingID)
	assert.True(t, IsRetryable(err))
}

func TestSession_ReusedPingIDsAnswered(t *testing.T) {
	s, st := openScripted(t, func(c *Config) { c.PongTimeout = 100 * time.Millisecond })

	st.serverPing(1)
	require.Eventually(t, func() bool { return len(st.written()) == 1 }, waitTimeout, time.Millisecond)
	require.NoError(t, s.Ping(context.Background(), 1))
	require.NoError(t, s.Ping(context.Background(), 1))
	for range 3 {
		st.serverPong(1)
	}

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, StateOpen, s.State())
	assert.NoError(t, s.Err())

	s.mu.Lock()
	assert.Empty(t, s.pending)
	s.mu.Unlock()
}

func TestSession_UnansweredServerPingAnswerIsForgotten(t *testing.T) {
	s, st := openScripted(t, func(c *Config) { c.PongTimeout = 30 * time.Millisecond })

	st.serverPing(2)
	require.Eventually(t, func() bool { return len(st.written()) == 1 }, waitTimeout, time.Millisecond)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 0
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, StateOpen, s.State())
}
