// Package mockgeyser is an in-process Geyser server for tests.
//
// It serves the Subscribe stream and the unary calls over a bufconn
// listener, applies subscription filters the way a validator plugin does,
// and keeps a small blockhash/height model for the control calls.
package mockgeyser

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

const (
	bufSize = 1 << 20

	// Target is the endpoint to dial together with DialOption.
	Target = "passthrough:///bufnet"

	// BlockhashLifetime is how many blocks a blockhash stays valid.
	BlockhashLifetime = 150

	initialSlot   = 1000
	initialHeight = 900
)

// Server is a mock Geyser server.
type Server struct {
	lis    *bufconn.Listener
	srv    *grpc.Server
	logger *zap.Logger

	requests    chan *wire.SubscribeRequest
	pingReplies chan int32

	mu          sync.Mutex
	streams     map[*stream]struct{}
	metadata    map[string]metadata.MD
	answerPings bool
	unaryDelay  time.Duration
	version     string

	slot        uint64
	height      uint64
	latest      string
	blockhashes map[string]uint64 // blockhash -> last valid block height
}

// New starts a mock server. Stop it with Close.
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		lis:         bufconn.Listen(bufSize),
		logger:      logger.Named("mockgeyser"),
		requests:    make(chan *wire.SubscribeRequest, 256),
		pingReplies: make(chan int32, 256),
		streams:     make(map[*stream]struct{}),
		metadata:    make(map[string]metadata.MD),
		answerPings: true,
		version:     `{"version":"mock","extra":{"hostname":"bufnet"}}`,
		slot:        initialSlot,
		height:      initialHeight,
		blockhashes: make(map[string]uint64),
	}
	s.AdvanceBlocks(1)

	s.srv = grpc.NewServer(grpc.ForceServerCodec(wire.Codec{}))
	s.srv.RegisterService(&serviceDesc, s)
	go func() {
		if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("serve failed", zap.Error(err))
		}
	}()
	return s
}

// Close stops the server and drops every open stream.
func (s *Server) Close() {
	s.srv.Stop()
	_ = s.lis.Close()
}

// Dialer returns a dialer connecting to the in-process listener.
func (s *Server) Dialer() func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	}
}

// DialOption routes a client dialing Target to this server.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(s.Dialer())
}

// Requests yields every Subscribe request that changed filters, after the
// filters were applied.
func (s *Server) Requests() <-chan *wire.SubscribeRequest { return s.requests }

// PingReplies yields the id of every ping request received on a stream.
func (s *Server) PingReplies() <-chan int32 { return s.pingReplies }

// SetAnswerPings controls whether ping requests get a Pong.
func (s *Server) SetAnswerPings(answer bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerPings = answer
}

// SetUnaryDelay delays every unary response by d.
func (s *Server) SetUnaryDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unaryDelay = d
}

// SetVersion sets the GetVersion response.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// LastMetadata returns the incoming metadata of the latest call to method.
func (s *Server) LastMetadata(method string) metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata[method].Copy()
}

// StreamCount returns the number of open Subscribe streams.
func (s *Server) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// DropStreams ends every open stream with err. A nil err ends them cleanly.
func (s *Server) DropStreams(err error) {
	for _, st := range s.snapshot() {
		select {
		case st.drop <- err:
		default:
		}
	}
}

// AdvanceBlocks produces n blocks, each with a fresh blockhash.
func (s *Server) AdvanceBlocks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.slot++
		s.height++
		var seed [8]byte
		binary.LittleEndian.PutUint64(seed[:], s.slot)
		sum := blake3.Sum256(seed[:])
		s.latest = base58.Encode(sum[:])
		s.blockhashes[s.latest] = s.height + BlockhashLifetime
	}
}

// Height returns the current block height.
func (s *Server) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

func (s *Server) recordMetadata(ctx context.Context, method string) {
	md, _ := metadata.FromIncomingContext(ctx)
	s.mu.Lock()
	s.metadata[method] = md.Copy()
	s.mu.Unlock()
}

func (s *Server) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.unaryDelay
	s.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) snapshot() []*stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		out = append(out, st)
	}
	return out
}

// stream is one open Subscribe call.
type stream struct {
	ss   grpc.ServerStream
	drop chan error

	sendMu sync.Mutex

	mu  sync.Mutex
	req *wire.SubscribeRequest
}

func (st *stream) send(u *wire.SubscribeUpdate) error {
	st.sendMu.Lock()
	defer st.sendMu.Unlock()
	return st.ss.SendMsg(u)
}

func (st *stream) filters() *wire.SubscribeRequest {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.req
}

func (s *Server) subscribe(ss grpc.ServerStream) error {
	s.recordMetadata(ss.Context(), wire.MethodSubscribe)

	st := &stream{ss: ss, drop: make(chan error, 1)}
	s.mu.Lock()
	s.streams[st] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, st)
		s.mu.Unlock()
	}()

	recvErr := make(chan error, 1)
	go func() {
		for {
			req := new(wire.SubscribeRequest)
			if err := ss.RecvMsg(req); err != nil {
				recvErr <- err
				return
			}
			s.handleRequest(st, req)
		}
	}()

	select {
	case err := <-recvErr:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	case err := <-st.drop:
		return err
	case <-ss.Context().Done():
		return ss.Context().Err()
	}
}

func (s *Server) handleRequest(st *stream, req *wire.SubscribeRequest) {
	if req.Ping != nil {
		select {
		case s.pingReplies <- req.Ping.ID:
		default:
		}
		s.mu.Lock()
		answer := s.answerPings
		s.mu.Unlock()
		if answer {
			if err := st.send(&wire.SubscribeUpdate{
				CreatedAt: wire.NewTimestamp(time.Now()),
				Pong:      &wire.SubscribeUpdatePong{ID: req.Ping.ID},
			}); err != nil {
				s.logger.Debug("pong failed", zap.Error(err))
			}
		}
	}
	if req.IsPingOnly() {
		return
	}

	st.mu.Lock()
	st.req = req
	st.mu.Unlock()

	select {
	case s.requests <- req:
	default:
		s.logger.Warn("request channel full, dropping notification")
	}
}

// EmitRaw sends u to every open stream as is and returns how many streams got it.
func (s *Server) EmitRaw(u *wire.SubscribeUpdate) int {
	n := 0
	for _, st := range s.snapshot() {
		if st.send(u) == nil {
			n++
		}
	}
	return n
}

// SendPing sends a server ping carrying id to every open stream.
func (s *Server) SendPing(id int32) int {
	return s.EmitRaw(&wire.SubscribeUpdate{
		CreatedAt: wire.NewTimestamp(time.Now()),
		Ping:      &wire.SubscribeUpdatePing{ID: id},
	})
}

// publish sends to every stream the update built by match, skipping
// streams for which match returns nil.
func (s *Server) publish(match func(req *wire.SubscribeRequest) *wire.SubscribeUpdate) int {
	n := 0
	for _, st := range s.snapshot() {
		req := st.filters()
		if req == nil {
			continue
		}
		u := match(req)
		if u == nil {
			continue
		}
		u.CreatedAt = wire.NewTimestamp(time.Now())
		if err := st.send(u); err != nil {
			s.logger.Debug("publish failed", zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (s *Server) String() string {
	return fmt.Sprintf("mockgeyser(streams=%d)", s.StreamCount())
}
