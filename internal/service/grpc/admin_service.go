package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
)

// Полные имена методов административного API.
const (
	ServiceName = "bgshop.admin.v1.AdminService"

	MethodGetDeliveryConfig    = "/" + ServiceName + "/GetDeliveryConfig"
	MethodUpdateDeliveryConfig = "/" + ServiceName + "/UpdateDeliveryConfig"
	MethodGetOrder             = "/" + ServiceName + "/GetOrder"
	MethodCompleteOrder        = "/" + ServiceName + "/CompleteOrder"
)

// ConfigStore: редактируемая конфигурация магазина с кэшем.
type ConfigStore interface {
	Get(ctx context.Context) (domain.DeliveryConfig, error)
	Update(ctx context.Context, cfg domain.DeliveryConfig) (domain.DeliveryConfig, error)
}

// AdminServer описывает административный API магазина (конфигурация доставки и выдача заказов).
// Сообщения передаются как google.protobuf.Struct.
type AdminServer interface {
	GetDeliveryConfig(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	UpdateDeliveryConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
	CompleteOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
}

// AdminService реализует AdminServer поверх Manager и хранилища конфигурации.
type AdminService struct {
	orders *order.Manager
	config ConfigStore
	logger *log.Entry
}

// NewAdminService конструирует сервис с зависимостями.
func NewAdminService(orders *order.Manager, config ConfigStore, logger *log.Entry) *AdminService {
	if logger == nil {
		logger = log.New().WithField("component", "admin-grpc")
	}
	return &AdminService{orders: orders, config: config, logger: logger}
}

// RegisterAdminServer регистрирует сервис на gRPC-сервере.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

func (s *AdminService) GetDeliveryConfig(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, s.toStatus(err, "GetDeliveryConfig")
	}
	return configToStruct(cfg)
}

// UpdateDeliveryConfig применяет переданные поля поверх текущей конфигурации.
func (s *AdminService) UpdateDeliveryConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, s.toStatus(err, "UpdateDeliveryConfig")
	}
	if err := applyConfigPatch(&cfg, req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	updated, err := s.config.Update(ctx, cfg)
	if err != nil {
		return nil, s.toStatus(err, "UpdateDeliveryConfig")
	}
	return configToStruct(updated)
}

func (s *AdminService) GetOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	if req == nil || req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "order id is required")
	}

	details, err := s.orders.Get(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	return detailsToStruct(details)
}

func (s *AdminService) CompleteOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	if req == nil || req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "order id is required")
	}

	if _, err := s.orders.Complete(ctx, req.GetValue()); err != nil {
		return nil, s.toStatus(err, "CompleteOrder")
	}

	details, err := s.orders.Get(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(err, "CompleteOrder")
	}
	return detailsToStruct(details)
}

func (s *AdminService) toStatus(err error, operation string) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrDeliveryCostNegative), domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("admin request failed")
		return status.Error(codes.Internal, "internal error")
	}
}

var configMoneyFields = map[string]func(*domain.DeliveryConfig) *decimal.Decimal{
	"ordinaryDeliveryCost":       func(c *domain.DeliveryConfig) *decimal.Decimal { return &c.OrdinaryDeliveryCost },
	"expressDeliveryExtraCharge": func(c *domain.DeliveryConfig) *decimal.Decimal { return &c.ExpressDeliveryExtraCharge },
	"freeDeliveryBoundary":       func(c *domain.DeliveryConfig) *decimal.Decimal { return &c.FreeDeliveryBoundary },
}

var configTextFields = map[string]func(*domain.DeliveryConfig) *string{
	"companyInfo":  func(c *domain.DeliveryConfig) *string { return &c.CompanyInfo },
	"legalAddress": func(c *domain.DeliveryConfig) *string { return &c.LegalAddress },
	"mainPhone":    func(c *domain.DeliveryConfig) *string { return &c.MainPhone },
	"mainEmail":    func(c *domain.DeliveryConfig) *string { return &c.MainEmail },
}

// applyConfigPatch принимает суммы строкой ("5.00") или числом.
func applyConfigPatch(cfg *domain.DeliveryConfig, patch *structpb.Struct) error {
	for key, value := range patch.GetFields() {
		if field, ok := configMoneyFields[key]; ok {
			amount, err := decimalFromValue(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*field(cfg) = amount
			continue
		}
		if field, ok := configTextFields[key]; ok {
			text, ok := value.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return fmt.Errorf("%s: must be a string", key)
			}
			*field(cfg) = text.StringValue
			continue
		}
		return fmt.Errorf("unknown field %q", key)
	}
	return nil
}

func decimalFromValue(value *structpb.Value) (decimal.Decimal, error) {
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		return decimal.NewFromString(kind.StringValue)
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue).Round(2), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("must be a number or a decimal string")
	}
}

func configToStruct(cfg domain.DeliveryConfig) (*structpb.Struct, error) {
	fields := make(map[string]any, len(configMoneyFields)+len(configTextFields))
	for key, field := range configMoneyFields {
		fields[key] = field(&cfg).StringFixed(2)
	}
	for key, field := range configTextFields {
		fields[key] = *field(&cfg)
	}
	return structpb.NewStruct(fields)
}

func detailsToStruct(d order.Details) (*structpb.Struct, error) {
	products := make([]any, 0, len(d.Items))
	for _, item := range d.Items {
		products = append(products, map[string]any{
			"productId": strconv.FormatInt(item.ProductID, 10),
			"title":     d.Products[item.ProductID].Title,
			"price":     item.Price.StringFixed(2),
			"count":     item.Count,
		})
	}

	timeline := make([]any, 0, len(d.Timeline))
	for _, ev := range d.Timeline {
		timeline = append(timeline, map[string]any{
			"type":     ev.Type,
			"reason":   ev.Reason,
			"unixTime": ev.Occurred.Unix(),
		})
	}

	fields := map[string]any{
		"id":           strconv.FormatInt(d.Order.ID, 10),
		"userId":       strconv.FormatInt(d.Order.UserID, 10),
		"status":       string(d.Order.Status),
		"paid":         d.Order.Paid,
		"deliveryType": string(d.Order.DeliveryType),
		"paymentType":  string(d.Order.PaymentType),
		"city":         d.Order.City,
		"address":      d.Order.Address,
		"comment":      d.Order.Comment,
		"deliveryCost": d.DeliveryCost.StringFixed(2),
		"totalCost":    d.TotalCost.StringFixed(2),
		"products":     products,
		"timeline":     timeline,
	}
	if d.Payment != nil {
		fields["paymentId"] = d.Payment.ExternalID
	}
	return structpb.NewStruct(fields)
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(AdminServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(*Req))
		})
	}
}

// AdminServiceDesc описывает сервис для grpc.Server.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetDeliveryConfig",
			Handler:    unaryHandler(MethodGetDeliveryConfig, AdminServer.GetDeliveryConfig),
		},
		{
			MethodName: "UpdateDeliveryConfig",
			Handler:    unaryHandler(MethodUpdateDeliveryConfig, AdminServer.UpdateDeliveryConfig),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(MethodGetOrder, AdminServer.GetOrder),
		},
		{
			MethodName: "CompleteOrder",
			Handler:    unaryHandler(MethodCompleteOrder, AdminServer.CompleteOrder),
		},
	},
	Metadata: "bgshop/admin/v1/admin.proto",
}

// AdminClient вызывает AdminService через grpc.ClientConnInterface.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient создаёт клиента.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) GetDeliveryConfig(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetDeliveryConfig, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) UpdateDeliveryConfig(ctx context.Context, patch *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodUpdateDeliveryConfig, patch, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) GetOrder(ctx context.Context, orderID int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetOrder, wrapperspb.Int64(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) CompleteOrder(ctx context.Context, orderID int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodCompleteOrder, wrapperspb.Int64(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var _ AdminServer = (*AdminService)(nil)
