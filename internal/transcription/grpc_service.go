package transcription

import (
	"context"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	EngineServiceName      = "parakeet.v1.Engine"
	EngineTranscribeMethod = "/" + EngineServiceName + "/Transcribe"

	mdPrefix   = "x-parakeet-"
	mdLanguage = mdPrefix + "language"
)

// EngineServer is the sidecar side of the engine call. Samples travel as
// little-endian float32 in a BytesValue; the transcript comes back as a
// StringValue.
type EngineServer interface {
	Transcribe(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

var engineServiceDesc = grpc.ServiceDesc{
	ServiceName: EngineServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transcribe",
			Handler:    engineTranscribeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parakeet/v1/engine.proto",
}

func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&engineServiceDesc, srv)
}

func engineTranscribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EngineServer).Transcribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: EngineTranscribeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EngineServer).Transcribe(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

type engineServer struct {
	engine Engine
}

// NewEngineServer exposes any Engine over the sidecar protocol.
func NewEngineServer(engine Engine) EngineServer {
	return &engineServer{engine: engine}
}

func (s *engineServer) Transcribe(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if len(in.GetValue())%4 != 0 {
		return nil, status.Error(codes.InvalidArgument, "samples must be float32 aligned")
	}

	var opts Options
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(mdLanguage); len(v) > 0 {
			opts.Language = v[0]
		}
	}

	text, err := s.engine.Transcribe(ctx, audio.BytesToFloat32(in.GetValue()), opts)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(text), nil
}
