package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/core/service"
)

const (
	ticketServiceName = "ticketing.TicketService"
	codecName         = "json"
)

// jsonCodec lets the ticket service speak gRPC without generated protobuf
// types. Clients select it with grpc.CallContentSubtype("json").
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CreateIntentRequest struct {
	EventID    string          `json:"eventId"`
	TicketType string          `json:"ticketType"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

type CreateIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type ConfirmRequest struct {
	CreateIntentRequest
	PaymentIntentID string `json:"paymentIntentId"`
}

type CancelRequest struct {
	TicketID string `json:"ticketId"`
}

type TicketResponse struct {
	Message string         `json:"message"`
	Ticket  *domain.Ticket `json:"ticket"`
}

type TicketServiceServer interface {
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error)
	Confirm(ctx context.Context, req *ConfirmRequest) (*TicketResponse, error)
	Cancel(ctx context.Context, req *CancelRequest) (*TicketResponse, error)
}

type GRPCHandler struct {
	tickets *service.TicketService
}

func NewGRPCHandler(tickets *service.TicketService) *GRPCHandler {
	return &GRPCHandler{tickets: tickets}
}

func (h *GRPCHandler) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	intent, err := h.tickets.CreateIntent(ctx, p, req.toPurchase())
	if err != nil {
		return nil, grpcError(err)
	}
	return &CreateIntentResponse{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.PaymentIntentID}, nil
}

func (h *GRPCHandler) Confirm(ctx context.Context, req *ConfirmRequest) (*TicketResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := h.tickets.Confirm(ctx, p, service.ConfirmRequest{
		PurchaseRequest: req.toPurchase(),
		PaymentIntentID: req.PaymentIntentID,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &TicketResponse{Message: "Ticket booked successfully", Ticket: ticket}, nil
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *CancelRequest) (*TicketResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := h.tickets.Cancel(ctx, p, req.TicketID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &TicketResponse{Message: "Ticket cancelled and refund processed successfully", Ticket: ticket}, nil
}

func (r *CreateIntentRequest) toPurchase() service.PurchaseRequest {
	return service.PurchaseRequest{
		EventID:  r.EventID,
		TierName: domain.TierName(r.TicketType),
		Quantity: r.Quantity,
		Price:    r.Price,
	}
}

func principal(ctx context.Context) (domain.Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return domain.Principal{}, status.Error(codes.Unauthenticated, "missing credentials")
	}
	return p, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrPaymentNotCompleted),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrInsufficientInventory),
		errors.Is(err, service.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrRefundFailed):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, service.ErrGateway):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

// AuthInterceptor resolves the bearer token in the authorization metadata.
func AuthInterceptor(auth *Auth) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, errMissingToken.Error())
		}
		raw, err := bearerToken(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		p, err := auth.ParseToken(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		if err := auth.admit(ctx, p); err != nil {
			if errors.Is(err, service.ErrForbidden) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Internal, "internal server error")
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

func RegisterTicketServiceServer(s grpc.ServiceRegistrar, srv TicketServiceServer) {
	s.RegisterService(&ticketServiceDesc, srv)
}

var ticketServiceDesc = grpc.ServiceDesc{
	ServiceName: ticketServiceName,
	HandlerType: (*TicketServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateIntent",
			Handler: unaryHandler("CreateIntent", func(srv TicketServiceServer, ctx context.Context, req *CreateIntentRequest) (any, error) {
				return srv.CreateIntent(ctx, req)
			}),
		},
		{
			MethodName: "Confirm",
			Handler: unaryHandler("Confirm", func(srv TicketServiceServer, ctx context.Context, req *ConfirmRequest) (any, error) {
				return srv.Confirm(ctx, req)
			}),
		},
		{
			MethodName: "Cancel",
			Handler: unaryHandler("Cancel", func(srv TicketServiceServer, ctx context.Context, req *CancelRequest) (any, error) {
				return srv.Cancel(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ticketing",
}

func unaryHandler[Req any](method string, call func(TicketServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TicketServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ticketServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TicketServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TicketServiceClient calls the ticket service with the JSON codec.
type TicketServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTicketServiceClient(cc grpc.ClientConnInterface) *TicketServiceClient {
	return &TicketServiceClient{cc: cc}
}

func (c *TicketServiceClient) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	out := new(CreateIntentResponse)
	if err := c.invoke(ctx, "CreateIntent", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TicketServiceClient) Confirm(ctx context.Context, req *ConfirmRequest) (*TicketResponse, error) {
	out := new(TicketResponse)
	if err := c.invoke(ctx, "Confirm", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TicketServiceClient) Cancel(ctx context.Context, req *CancelRequest) (*TicketResponse, error) {
	out := new(TicketResponse)
	if err := c.invoke(ctx, "Cancel", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TicketServiceClient) invoke(ctx context.Context, method string, req, out any) error {
	return c.cc.Invoke(ctx, "/"+ticketServiceName+"/"+method, req, out, grpc.CallContentSubtype(codecName))
}

// WithBearer attaches a bearer token to outgoing calls.
func WithBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
