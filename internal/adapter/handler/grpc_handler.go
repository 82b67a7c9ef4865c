package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/core/service"
)

const (
	VoucherServiceName = "review.v1.VoucherService"
	PurchaseMethod     = "/" + VoucherServiceName + "/Purchase"
	GetShopMethod      = "/" + VoucherServiceName + "/GetShop"
)

// VoucherServiceServer is the gRPC surface. Messages are structpb.Struct so no generated code is needed.
type VoucherServiceServer interface {
	Purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetShop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var VoucherServiceDesc = grpc.ServiceDesc{
	ServiceName: VoucherServiceName,
	HandlerType: (*VoucherServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Purchase", Handler: unaryHandler(PurchaseMethod, VoucherServiceServer.Purchase)},
		{MethodName: "GetShop", Handler: unaryHandler(GetShopMethod, VoucherServiceServer.GetShop)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "review/v1/voucher.proto",
}

func unaryHandler(fullMethod string, call func(VoucherServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VoucherServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(VoucherServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterVoucherServiceServer(s grpc.ServiceRegistrar, srv VoucherServiceServer) {
	s.RegisterService(&VoucherServiceDesc, srv)
}

type GRPCHandler struct {
	shops    ShopService
	vouchers VoucherService
	logger   *zap.Logger
}

func NewGRPCHandler(shops ShopService, vouchers VoucherService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{shops: shops, vouchers: vouchers, logger: logger}
}

// Purchase takes {voucherId, userId}. Business outcomes come back as success=false with a message;
// the order id is a string because structpb numbers are doubles.
func (h *GRPCHandler) Purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	voucherID, err := int64Arg(req, "voucherId")
	if err != nil {
		return nil, err
	}
	userID, err := int64Arg(req, "userId")
	if err != nil {
		return nil, err
	}

	orderID, err := h.vouchers.PurchaseVoucher(ctx, voucherID, userID)
	if err != nil {
		code, message := grpcStatusFor(err)
		if code == codes.OK {
			return purchaseResponse(false, message, "")
		}
		if code == codes.Internal {
			h.logger.Error("grpc purchase failed", zap.Int64("voucherId", voucherID), zap.Int64("userId", userID), zap.Error(err))
		}
		return nil, status.Error(code, message)
	}
	return purchaseResponse(true, "order placed successfully", strconv.FormatInt(orderID, 10))
}

// GetShop takes {id} and returns the shop in its JSON field layout.
func (h *GRPCHandler) GetShop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := int64Arg(req, "id")
	if err != nil {
		return nil, err
	}
	shop, err := h.shops.GetShop(ctx, id)
	if err != nil {
		code, message := grpcStatusFor(err)
		if code == codes.OK {
			code = codes.FailedPrecondition
		}
		if code == codes.Internal {
			h.logger.Error("grpc get shop failed", zap.Int64("shopId", id), zap.Error(err))
		}
		return nil, status.Error(code, message)
	}

	raw, err := json.Marshal(shop)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode shop")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Error(codes.Internal, "encode shop")
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode shop")
	}
	return out, nil
}

// grpcStatusFor returns codes.OK for expected purchase outcomes that belong in the response body.
func grpcStatusFor(err error) (codes.Code, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return codes.InvalidArgument, "invalid argument"
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound, "not found"
	case errors.Is(err, service.ErrCacheBusy):
		return codes.Unavailable, "busy, retry later"
	case errors.Is(err, domain.ErrDuplicatePurchase):
		return codes.OK, "each user may buy only once"
	case errors.Is(err, domain.ErrOutOfStock):
		return codes.OK, "sold out"
	case errors.Is(err, domain.ErrEnded):
		return codes.OK, "sale has ended"
	case errors.Is(err, domain.ErrNotYetOpen):
		return codes.OK, "sale has not started"
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, "deadline exceeded"
	case errors.Is(err, context.Canceled):
		return codes.Canceled, "canceled"
	default:
		return codes.Internal, "internal error"
	}
}

func purchaseResponse(success bool, message, orderID string) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"success": success,
		"message": message,
	}
	if orderID != "" {
		fields["orderId"] = orderID
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func int64Arg(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := int64(kind.NumberValue)
		if float64(n) != kind.NumberValue || n <= 0 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
		}
		return n, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil || n <= 0 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
}

// UnaryLoggingInterceptor logs each call with its method, code and latency.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
