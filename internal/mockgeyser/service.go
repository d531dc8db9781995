package mockgeyser

import (
	"context"

	"google.golang.org/grpc"

	"github.com/fortiblox/geyser-stream/pkg/wire"
)

// geyserService is the handler type registered with grpc.Server.
type geyserService interface {
	subscribe(grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*geyserService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", (*Server).ping),
		unary("GetLatestBlockhash", (*Server).getLatestBlockhash),
		unary("GetBlockHeight", (*Server).getBlockHeight),
		unary("GetSlot", (*Server).getSlot),
		unary("IsBlockhashValid", (*Server).isBlockhashValid),
		unary("GetVersion", (*Server).getVersion),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			ServerStreams: true,
			ClientStreams: true,
			Handler: func(srv any, ss grpc.ServerStream) error {
				return srv.(geyserService).subscribe(ss)
			},
		},
	},
	Metadata: "geyser.proto",
}

func unary[Req any](name string, fn func(*Server, context.Context, *Req) (any, error)) grpc.MethodDesc {
	method := "/" + wire.ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			s.recordMetadata(ctx, method)
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			return fn(s, ctx, req)
		},
	}
}

func (s *Server) ping(_ context.Context, req *wire.PingRequest) (any, error) {
	return &wire.PongResponse{Count: req.Count}, nil
}

func (s *Server) getLatestBlockhash(_ context.Context, _ *wire.GetLatestBlockhashRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &wire.GetLatestBlockhashResponse{
		Slot:                 s.slot,
		Blockhash:            s.latest,
		LastValidBlockHeight: s.blockhashes[s.latest],
	}, nil
}

func (s *Server) getBlockHeight(_ context.Context, _ *wire.GetBlockHeightRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &wire.GetBlockHeightResponse{BlockHeight: s.height}, nil
}

func (s *Server) getSlot(_ context.Context, _ *wire.GetSlotRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &wire.GetSlotResponse{Slot: s.slot}, nil
}

func (s *Server) isBlockhashValid(_ context.Context, req *wire.IsBlockhashValidRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lastValid, known := s.blockhashes[req.Blockhash]
	return &wire.IsBlockhashValidResponse{
		Slot:  s.slot,
		Valid: known && s.height <= lastValid,
	}, nil
}

func (s *Server) getVersion(_ context.Context, _ *wire.GetVersionRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &wire.GetVersionResponse{Version: s.version}, nil
}
