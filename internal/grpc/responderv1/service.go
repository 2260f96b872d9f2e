package responderv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Responder_AnalyzeAlert_FullMethodName    = "/mirador.responder.v1.Responder/AnalyzeAlert"
	Responder_ResolveDecision_FullMethodName = "/mirador.responder.v1.Responder/ResolveDecision"
	Responder_SubmitFeedback_FullMethodName  = "/mirador.responder.v1.Responder/SubmitFeedback"
	Responder_GetKnowledge_FullMethodName    = "/mirador.responder.v1.Responder/GetKnowledge"
	Responder_HealthCheck_FullMethodName     = "/mirador.responder.v1.Responder/HealthCheck"
)

// ResponderClient is the client API for the Responder service.
type ResponderClient interface {
	AnalyzeAlert(ctx context.Context, in *AnalyzeAlertRequest, opts ...grpc.CallOption) (*AnalyzeAlertResponse, error)
	ResolveDecision(ctx context.Context, in *ResolveDecisionRequest, opts ...grpc.CallOption) (*ResolveDecisionResponse, error)
	SubmitFeedback(ctx context.Context, in *SubmitFeedbackRequest, opts ...grpc.CallOption) (*FeedbackAck, error)
	GetKnowledge(ctx context.Context, in *GetKnowledgeRequest, opts ...grpc.CallOption) (*GetKnowledgeResponse, error)
	HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
}

type responderClient struct {
	cc grpc.ClientConnInterface
}

// NewResponderClient returns a client that forces the Responder codec on every call.
func NewResponderClient(cc grpc.ClientConnInterface) ResponderClient {
	return &responderClient{cc}
}

func (c *responderClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *responderClient) AnalyzeAlert(ctx context.Context, in *AnalyzeAlertRequest, opts ...grpc.CallOption) (*AnalyzeAlertResponse, error) {
	out := new(AnalyzeAlertResponse)
	if err := c.invoke(ctx, Responder_AnalyzeAlert_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *responderClient) ResolveDecision(ctx context.Context, in *ResolveDecisionRequest, opts ...grpc.CallOption) (*ResolveDecisionResponse, error) {
	out := new(ResolveDecisionResponse)
	if err := c.invoke(ctx, Responder_ResolveDecision_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *responderClient) SubmitFeedback(ctx context.Context, in *SubmitFeedbackRequest, opts ...grpc.CallOption) (*FeedbackAck, error) {
	out := new(FeedbackAck)
	if err := c.invoke(ctx, Responder_SubmitFeedback_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *responderClient) GetKnowledge(ctx context.Context, in *GetKnowledgeRequest, opts ...grpc.CallOption) (*GetKnowledgeResponse, error) {
	out := new(GetKnowledgeResponse)
	if err := c.invoke(ctx, Responder_GetKnowledge_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *responderClient) HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, Responder_HealthCheck_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ResponderServer is the server API for the Responder service.
type ResponderServer interface {
	AnalyzeAlert(context.Context, *AnalyzeAlertRequest) (*AnalyzeAlertResponse, error)
	ResolveDecision(context.Context, *ResolveDecisionRequest) (*ResolveDecisionResponse, error)
	SubmitFeedback(context.Context, *SubmitFeedbackRequest) (*FeedbackAck, error)
	GetKnowledge(context.Context, *GetKnowledgeRequest) (*GetKnowledgeResponse, error)
	HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error)
	mustEmbedUnimplementedResponderServer()
}

// UnimplementedResponderServer must be embedded for forward compatibility.
type UnimplementedResponderServer struct{}

func (UnimplementedResponderServer) AnalyzeAlert(context.Context, *AnalyzeAlertRequest) (*AnalyzeAlertResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AnalyzeAlert not implemented")
}
func (UnimplementedResponderServer) ResolveDecision(context.Context, *ResolveDecisionRequest) (*ResolveDecisionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ResolveDecision not implemented")
}
func (UnimplementedResponderServer) SubmitFeedback(context.Context, *SubmitFeedbackRequest) (*FeedbackAck, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubmitFeedback not implemented")
}
func (UnimplementedResponderServer) GetKnowledge(context.Context, *GetKnowledgeRequest) (*GetKnowledgeResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetKnowledge not implemented")
}
func (UnimplementedResponderServer) HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method HealthCheck not implemented")
}
func (UnimplementedResponderServer) mustEmbedUnimplementedResponderServer() {}

// RegisterResponderServer attaches srv to s.
func RegisterResponderServer(s grpc.ServiceRegistrar, srv ResponderServer) {
	s.RegisterService(&Responder_ServiceDesc, srv)
}

func _Responder_AnalyzeAlert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AnalyzeAlertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResponderServer).AnalyzeAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Responder_AnalyzeAlert_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResponderServer).AnalyzeAlert(ctx, req.(*AnalyzeAlertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Responder_ResolveDecision_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveDecisionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResponderServer).ResolveDecision(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Responder_ResolveDecision_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResponderServer).ResolveDecision(ctx, req.(*ResolveDecisionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Responder_SubmitFeedback_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitFeedbackRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResponderServer).SubmitFeedback(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Responder_SubmitFeedback_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResponderServer).SubmitFeedback(ctx, req.(*SubmitFeedbackRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Responder_GetKnowledge_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetKnowledgeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResponderServer).GetKnowledge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Responder_GetKnowledge_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResponderServer).GetKnowledge(ctx, req.(*GetKnowledgeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Responder_HealthCheck_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResponderServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Responder_HealthCheck_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResponderServer).HealthCheck(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Responder_ServiceDesc is the grpc.ServiceDesc for the Responder service.
var Responder_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "mirador.responder.v1.Responder",
	HandlerType: (*ResponderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeAlert", Handler: _Responder_AnalyzeAlert_Handler},
		{MethodName: "ResolveDecision", Handler: _Responder_ResolveDecision_Handler},
		{MethodName: "SubmitFeedback", Handler: _Responder_SubmitFeedback_Handler},
		{MethodName: "GetKnowledge", Handler: _Responder_GetKnowledge_Handler},
		{MethodName: "HealthCheck", Handler: _Responder_HealthCheck_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/responder/v1/responder.proto",
}
