package geyser

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// SessionStats holds counters for one session.
type SessionStats struct {
	Received      uint64 // frames read from the stream
	Delivered     uint64 // updates returned by Next
	StaleDropped  uint64 // updates whose filters were all replaced
	PingsSent     uint64 // pings written, including answers to server pings
	PongsReceived uint64
	ServerPings   uint64
}

type sessionCounters struct {
	received      atomic.Uint64
	delivered     atomic.Uint64
	staleDropped  atomic.Uint64
	pingsSent     atomic.Uint64
	pongsReceived atomic.Uint64
	serverPings   atomic.Uint64
}

var subscribeStreamDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// Session owns one Subscribe stream.
//
// Frames written by ReplaceFilters, Ping and the automatic ping answers go
// through a single writer goroutine in submission order. A reader goroutine
// decodes inbound frames into a bounded buffer consumed by Next. A Session
// never reconnects; see Client.Follow for that.
type Session struct {
	id     string
	cfg    Config
	logger *zap.Logger

	stream grpc.ClientStream
	cancel context.CancelFunc

	state   atomic.Int32
	outbox  *outbox
	updates chan *SubscribeUpdate

	closing    chan struct{}
	closeOnce  sync.Once
	readerDone chan struct{}
	done       chan struct{}

	mu       sync.Mutex
	filters  FilterSet
	active   map[string]struct{}
	pending  map[int32][]sentPing
	err      error
	autoPing int32

	stats sessionCounters
}

// openSession opens a Subscribe stream on conn. When initial is non-nil it
// is validated and written before openSession returns. ctx bounds the
// lifetime of the whole session.
func openSession(ctx context.Context, conn grpc.ClientConnInterface, cfg Config, initial *FilterSet) (*Session, error) {
	if initial != nil {
		if err := initial.Validate(); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	s := &Session{
		id:         id,
		cfg:        cfg,
		logger:     cfg.Logger.Named("geyser").With(zap.String("session", id)),
		outbox:     newOutbox(),
		updates:    make(chan *SubscribeUpdate, cfg.UpdateBufferSize),
		closing:    make(chan struct{}),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
		active:     make(map[string]struct{}),
		pending:    make(map[int32][]sentPing),
	}
	s.state.Store(int32(StateIdle))

	streamCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(streamCtx)

	stream, err := conn.NewStream(gctx, &subscribeStreamDesc, wire.MethodSubscribe)
	if err != nil {
		cancel()
		return nil, classifyStreamError("subscribe", err)
	}
	s.stream = stream
	s.cancel = cancel

	if initial != nil {
		if err := stream.SendMsg(initial.request()); err != nil {
			cancel()
			return nil, classifyStreamError("subscribe", err)
		}
		s.filters = *initial
		s.active = nameSet(initial.Names())
	}

	s.state.Store(int32(StateOpen))
	s.logger.Debug("session opened", zap.Int("filters", s.filters.Len()))

	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.keepaliveLoop(gctx) })
	go func() {
		_ = g.Wait()
		close(s.done)
	}()

	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Err returns the error that ended the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Filters returns the most recently accepted FilterSet.
func (s *Session) Filters() FilterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Received:      s.stats.received.Load(),
		Delivered:     s.stats.delivered.Load(),
		StaleDropped:  s.stats.staleDropped.Load(),
		PingsSent:     s.stats.pingsSent.Load(),
		PongsReceived: s.stats.pongsReceived.Load(),
		ServerPings:   s.stats.serverPings.Load(),
	}
}

// Next returns the next update in server order. It returns io.EOF once the
// server ended the stream or the session was closed, and the session error
// after a failure. Updates buffered before a failure are returned first.
func (s *Session) Next(ctx context.Context) (*SubscribeUpdate, error) {
	if s.isClosing() {
		return nil, io.EOF
	}

	select {
	case u, ok := <-s.updates:
		if !ok {
			return nil, s.endErr()
		}
		if s.isClosing() {
			return nil, io.EOF
		}
		s.stats.delivered.Add(1)
		return u, nil
	case <-s.closing:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReplaceFilters makes fs the complete filter state of the stream. It
// returns once the transport accepted the frame; from then on delivered
// updates only carry filter names present in fs.
func (s *Session) ReplaceFilters(ctx context.Context, fs FilterSet) error {
	if err := fs.Validate(); err != nil {
		return err
	}
	return s.submit(ctx, &writeOp{req: fs.request(), filters: &fs, done: make(chan error, 1)})
}

// Ping writes a stream ping with the given id. The server must answer with a
// Pong carrying the same id within Config.PongTimeout, or the session fails
// with a LivenessError.
func (s *Session) Ping(ctx context.Context, id int32) error {
	return s.submit(ctx, &writeOp{req: pingRequest(id), timed: true, done: make(chan error, 1)})
}

// Close half-closes the stream, discards in-flight frames for at most
// Config.DrainTimeout and releases the stream. Pending and later calls to
// Next return io.EOF. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		close(s.closing)

		timer := time.NewTimer(s.cfg.DrainTimeout)
		defer timer.Stop()
		select {
		case <-s.readerDone:
		case <-timer.C:
			s.logger.Debug("drain timeout, cancelling stream")
		}

		s.cancel()
		<-s.done
		s.state.CompareAndSwap(int32(StateClosing), int32(StateClosed))
		s.logger.Debug("session closed", zap.Any("stats", s.Stats()))
	})
	return nil
}

// Done is closed once every goroutine of the session has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Session) endErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return io.EOF
}

// fail records the first fatal error. Errors after Close are ignored.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.err == nil && !s.isClosing() {
		s.err = err
		s.state.Store(int32(StateErrored))
		s.logger.Warn("session failed", zap.Error(err))
	}
	s.mu.Unlock()
	return err
}

func (s *Session) submit(ctx context.Context, op *writeOp) error {
	if s.isClosing() {
		return errSessionClosed
	}
	if err := s.outbox.push(op); err != nil {
		return err
	}
	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop is the only goroutine that writes to the stream.
func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-s.outbox.signal:
		case <-s.closing:
			s.outbox.close(errSessionClosed)
			if err := s.stream.CloseSend(); err != nil {
				s.logger.Debug("close send failed", zap.Error(err))
			}
			return nil
		case <-ctx.Done():
			s.outbox.close(s.writeErr())
			return nil
		}

		batch := s.outbox.take()
		for i, op := range batch {
			if err := s.write(op); err != nil {
				for _, rest := range batch[i+1:] {
					rest.done <- err
				}
				s.outbox.close(err)
				if errors.Is(err, io.EOF) {
					// The reader observes the final status.
					return nil
				}
				return s.fail(err)
			}
		}
	}
}

func (s *Session) write(op *writeOp) error {
	if op.filters != nil {
		// Names of the new set are accepted before the write so updates
		// racing the server's cutover are kept.
		s.mu.Lock()
		for _, name := range op.filters.Names() {
			s.active[name] = struct{}{}
		}
		s.mu.Unlock()
	}
	if op.req.Ping != nil && s.cfg.PongTimeout > 0 {
		// Recorded before the write so a fast pong always finds its entry.
		id := op.req.Ping.ID
		s.mu.Lock()
		s.pending[id] = append(s.pending[id], sentPing{at: time.Now(), timed: op.timed})
		s.mu.Unlock()
	}

	if err := s.stream.SendMsg(op.req); err != nil {
		err = &StreamError{Err: err}
		op.done <- err
		return err
	}

	if op.filters != nil {
		s.mu.Lock()
		s.filters = *op.filters
		s.active = nameSet(op.filters.Names())
		s.mu.Unlock()
		s.logger.Debug("filters replaced", zap.Stringer("filters", *op.filters))
	}
	if op.req.Ping != nil {
		s.stats.pingsSent.Add(1)
	}
	op.done <- nil
	return nil
}

func (s *Session) writeErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	if s.isClosing() {
		return errSessionClosed
	}
	return &StreamError{Err: io.EOF}
}

// readLoop decodes frames until the stream ends. It is the only sender on
// s.updates and closes it on exit.
func (s *Session) readLoop(ctx context.Context) error {
	defer close(s.updates)
	defer close(s.readerDone)

	for {
		pb := new(wire.SubscribeUpdate)
		if err := s.stream.RecvMsg(pb); err != nil {
			if errors.Is(err, io.EOF) {
				if s.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
					s.logger.Debug("stream ended by server")
				}
				s.cancel()
				return nil
			}
			if s.isClosing() || s.Err() != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.fail(&StreamError{Err: ctxErr})
			}
			return s.fail(classifyStreamError("recv", err))
		}
		s.stats.received.Add(1)

		if s.isClosing() {
			continue
		}

		update, err := convertUpdate(pb)
		if err != nil {
			return s.fail(&StreamError{Err: err})
		}

		switch p := update.Payload.(type) {
		case *PingUpdate:
			s.stats.serverPings.Add(1)
			// Answered through the outbox so the reply queues behind earlier writes.
			if err := s.outbox.push(&writeOp{req: pingRequest(p.ID), done: make(chan error, 1)}); err != nil {
				s.logger.Debug("ping answer dropped", zap.Error(err))
			}
		case *PongUpdate:
			s.stats.pongsReceived.Add(1)
			s.pongReceived(p.ID)
		}

		if !s.prune(update) {
			s.stats.staleDropped.Add(1)
			continue
		}

		if err := s.deliver(ctx, update); err != nil {
			return err
		}
	}
}

// prune drops filter names that are no longer active and reports whether
// the update should still be delivered.
func (s *Session) prune(u *SubscribeUpdate) bool {
	if len(u.Filters) == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := u.Filters[:0]
	for _, name := range u.Filters {
		if _, ok := s.active[name]; ok {
			kept = append(kept, name)
		}
	}
	u.Filters = kept
	return len(kept) > 0
}

func (s *Session) deliver(ctx context.Context, u *SubscribeUpdate) error {
	select {
	case s.updates <- u:
		return nil
	default:
	}

	timer := time.NewTimer(s.cfg.SlowConsumerTimeout)
	defer timer.Stop()

	select {
	case s.updates <- u:
		return nil
	case <-s.closing:
		return nil
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return s.fail(&StreamError{Err: ErrSlowConsumer})
	}
}

// keepaliveLoop sends periodic pings and fails the session when a ping
// stays unanswered for longer than PongTimeout.
func (s *Session) keepaliveLoop(ctx context.Context) error {
	if s.cfg.PongTimeout <= 0 {
		return nil
	}

	var pingC <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	check := time.NewTicker(max(s.cfg.PongTimeout/4, 10*time.Millisecond))
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil

		case <-pingC:
			s.mu.Lock()
			s.autoPing++
			id := s.autoPing
			s.mu.Unlock()
			if err := s.outbox.push(&writeOp{req: pingRequest(id), timed: true, done: make(chan error, 1)}); err != nil {
				return nil
			}

		case now := <-check.C:
			if err := s.overduePing(now); err != nil {
				return s.fail(err)
			}
		}
	}
}

// pongReceived settles the oldest ping written with id. The server answers
// every stream ping in write order, so pongs for a reused id arrive in the
// order the pings went out.
func (s *Session) pongReceived(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := s.pending[id]
	switch len(sent) {
	case 0:
	case 1:
		delete(s.pending, id)
	default:
		s.pending[id] = sent[1:]
	}
}

// overduePing returns a LivenessError for the first timed ping older than
// PongTimeout. Untimed entries of that age are forgotten.
func (s *Session) overduePing(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sent := range s.pending {
		kept := sent[:0]
		for _, p := range sent {
			elapsed := now.Sub(p.at)
			if elapsed <= s.cfg.PongTimeout {
				kept = append(kept, p)
				continue
			}
			if p.timed {
				return &LivenessError{PingID: id, Elapsed: elapsed}
			}
		}
		if len(kept) == 0 {
			delete(s.pending, id)
		} else {
			s.pending[id] = kept
		}
	}
	return nil
}

func pingRequest(id int32) *wire.SubscribeRequest {
	return &wire.SubscribeRequest{Ping: &wire.SubscribeRequestPing{ID: id}}
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

type writeOp struct {
	req     *wire.SubscribeRequest
	filters *FilterSet
	timed   bool // ping must be answered within PongTimeout
	done    chan error
}

// sentPing is a ping written on the stream and not yet answered. Answers to
// server pings are untimed: the server pongs them too, but a missing pong
// for them is not a liveness failure.
type sentPing struct {
	at    time.Time
	timed bool
}

// outbox is an unbounded FIFO so the reader can queue ping answers without
// blocking behind a flow-controlled write.
type outbox struct {
	mu     sync.Mutex
	items  []*writeOp
	err    error
	signal chan struct{}
}

func newOutbox() *outbox {
	return &outbox{signal: make(chan struct{}, 1)}
}

func (o *outbox) push(op *writeOp) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.items = append(o.items, op)
	select {
	case o.signal <- struct{}{}:
	default:
	}
	return nil
}

func (o *outbox) take() []*writeOp {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}

// close rejects further pushes and fails queued ops with err.
func (o *outbox) close(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
	for _, op := range o.items {
		op.done <- o.err
	}
	o.items = nil
}
