package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	serviceName = "classquiz.v1.QuizService"

	methodSubmitQuiz     = "/" + serviceName + "/SubmitQuiz"
	methodGetLeaderboard = "/" + serviceName + "/GetLeaderboard"

	metadataAuthorization = "authorization"
)

type QuizServiceServer interface {
	SubmitQuiz(context.Context, *SubmitQuizRequest) (*SubmitQuizResponse, error)
	GetLeaderboard(context.Context, *GetLeaderboardRequest) (*GetLeaderboardResponse, error)
}

func RegisterQuizServiceServer(s grpc.ServiceRegistrar, srv QuizServiceServer) {
	s.RegisterService(&quizServiceDesc, srv)
}

var quizServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*QuizServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitQuiz",
			Handler:    submitQuizHandler,
		},
		{
			MethodName: "GetLeaderboard",
			Handler:    getLeaderboardHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "classquiz/v1/quiz",
}

func submitQuizHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitQuizRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuizServiceServer).SubmitQuiz(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodSubmitQuiz,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuizServiceServer).SubmitQuiz(ctx, req.(*SubmitQuizRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getLeaderboardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLeaderboardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuizServiceServer).GetLeaderboard(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetLeaderboard,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuizServiceServer).GetLeaderboard(ctx, req.(*GetLeaderboardRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func (a *API) SubmitQuiz(ctx context.Context, req *SubmitQuizRequest) (*SubmitQuizResponse, error) {
	if err := binding.Validator.ValidateStruct(req); err != nil {
		return nil, invalidRequest(err)
	}

	resp, err := a.submitQuiz(ctx, credentialFromMetadata(ctx), req)
	if err != nil {
		return nil, publicError(ctx, err)
	}

	return resp, nil
}

func (a *API) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	resp, err := a.getLeaderboard(ctx, credentialFromMetadata(ctx), req.QuizID)
	if err != nil {
		return nil, publicError(ctx, err)
	}

	return resp, nil
}

func credentialFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	return strings.Join(md.Get(metadataAuthorization), "")
}

type QuizServiceClient interface {
	SubmitQuiz(ctx context.Context, in *SubmitQuizRequest, opts ...grpc.CallOption) (*SubmitQuizResponse, error)
	GetLeaderboard(ctx context.Context, in *GetLeaderboardRequest, opts ...grpc.CallOption) (*GetLeaderboardResponse, error)
}

type quizServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewQuizServiceClient returns a client that speaks the JSON content-subtype regardless of the connection's defaults.
func NewQuizServiceClient(cc grpc.ClientConnInterface) QuizServiceClient {
	return &quizServiceClient{cc: cc}
}

func (c *quizServiceClient) SubmitQuiz(ctx context.Context, in *SubmitQuizRequest, opts ...grpc.CallOption) (*SubmitQuizResponse, error) {
	out := new(SubmitQuizResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodSubmitQuiz, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *quizServiceClient) GetLeaderboard(ctx context.Context, in *GetLeaderboardRequest, opts ...grpc.CallOption) (*GetLeaderboardResponse, error) {
	out := new(GetLeaderboardResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodGetLeaderboard, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
