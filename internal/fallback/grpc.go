package fallback

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
)

// The service carries google.protobuf.Struct both ways, so no generated
// stubs are needed on either side.
const (
	generativeService = "refund.v1.Generative"
	analyzeMethod     = "/" + generativeService + "/Analyze"
)

// #region client
// GRPCBackend calls a remote generative service over gRPC.
type GRPCBackend struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
	addr string
}

// NewGRPCBackend connects to addr without transport security.
func NewGRPCBackend(addr string, opts ...grpc.DialOption) (*GRPCBackend, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCBackend{conn: conn, cc: conn, addr: addr}, nil
}

// NewGRPCBackendWithConn wraps an existing connection. Close is then the
// caller's responsibility.
func NewGRPCBackendWithConn(cc grpc.ClientConnInterface) *GRPCBackend {
	return &GRPCBackend{cc: cc, addr: "injected"}
}

func (g *GRPCBackend) Name() string { return "grpc:" + g.addr }

// Close shuts down a connection opened by NewGRPCBackend.
func (g *GRPCBackend) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}

func (g *GRPCBackend) Analyze(ctx context.Context, p Prompt) (Suggestion, error) {
	in, err := promptToStruct(p)
	if err != nil {
		return Suggestion{}, fmt.Errorf("encode analyze request: %w", err)
	}
	out := &structpb.Struct{}
	if err := g.cc.Invoke(ctx, analyzeMethod, in, out); err != nil {
		return Suggestion{}, fmt.Errorf("%w: analyze rpc: %v", ErrBackendUnavailable, err)
	}
	return suggestionFromFields(out.AsMap())
}

// #endregion client

// #region server
// GenerativeServer is the server side of the generative service.
type GenerativeServer interface {
	Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var generativeServiceDesc = grpc.ServiceDesc{
	ServiceName: generativeService,
	HandlerType: (*GenerativeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "refund/v1/generative.proto",
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GenerativeServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GenerativeServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterGenerativeServer registers srv on s.
func RegisterGenerativeServer(s grpc.ServiceRegistrar, srv GenerativeServer) {
	s.RegisterService(&generativeServiceDesc, srv)
}

// backendServer exposes any Backend as a GenerativeServer.
type backendServer struct {
	backend Backend
}

// NewGenerativeServer serves b over the generative service.
func NewGenerativeServer(b Backend) GenerativeServer {
	return &backendServer{backend: b}
}

func (s *backendServer) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := promptFromStruct(in)
	if err != nil {
		return nil, err
	}
	sg, err := s.backend.Analyze(ctx, p)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"decisao":       string(sg.Verdict),
		"confianca":     sg.Confidence,
		"justificativa": sg.Explanation,
		"model":         sg.Model,
	})
}

// #endregion server

// #region wire
func promptToStruct(p Prompt) (*structpb.Struct, error) {
	policies := make([]any, len(p.Policies))
	for i, r := range p.Policies {
		policies[i] = map[string]any{
			"id":        r.Document.ID,
			"category":  string(r.Document.Category),
			"question":  r.Document.Question,
			"answer":    r.Document.Answer,
			"relevance": r.Relevance,
		}
	}
	return structpb.NewStruct(map[string]any{
		"category":        string(p.Request.Category),
		"order_status":    string(p.Request.OrderStatus),
		"reason_code":     string(p.Request.ReasonCode),
		"order_value":     p.Request.OrderValue,
		"elapsed_minutes": p.Request.ElapsedMinutes,
		"free_text":       p.Request.FreeText,
		"summary":         p.Request.Summary(),
		"context":         p.Context,
		"prompt":          p.Text(),
		"policies":        policies,
	})
}

func promptFromStruct(in *structpb.Struct) (Prompt, error) {
	m := in.AsMap()
	str := func(k string) string { s, _ := m[k].(string); return s }
	num := func(k string) float64 { f, _ := m[k].(float64); return f }

	p := Prompt{
		Request: refund.Request{
			Category:       refund.Category(str("category")),
			OrderStatus:    refund.OrderStatus(str("order_status")),
			ReasonCode:     refund.ReasonCode(str("reason_code")),
			OrderValue:     num("order_value"),
			ElapsedMinutes: int(num("elapsed_minutes")),
			FreeText:       str("free_text"),
		},
		Context: str("context"),
	}
	if err := p.Request.Validate(); err != nil {
		return Prompt{}, status.Error(codes.InvalidArgument, err.Error())
	}
	list, _ := m["policies"].([]any)
	for _, item := range list {
		pm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := pm["id"].(string)
		cat, _ := pm["category"].(string)
		q, _ := pm["question"].(string)
		a, _ := pm["answer"].(string)
		rel, _ := pm["relevance"].(float64)
		p.Policies = append(p.Policies, retrieval.Result{
			Document:  corpus.PolicyDocument{ID: id, Category: refund.Category(cat), Question: q, Answer: a},
			Relevance: rel,
		})
	}
	return p, nil
}

// #endregion wire
