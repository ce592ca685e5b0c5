// Package payment принимает уведомления платёжного шлюза и инициирует тестовые оплаты.
package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/metrics"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
)

// Notification: тело webhook платёжного шлюза.
type Notification struct {
	Signature string               `json:"PAYMENT_SERVICE_SIGNATURE"`
	Status    domain.PaymentStatus `json:"status"`
	OrderID   int64                `json:"order_id"`
	PaymentID string               `json:"payment_id"`
	Errors    []string             `json:"errors,omitempty"`
}

// Результаты обработки webhook, они же значения label result в метриках.
const (
	ResultPaid      = "paid"
	ResultRejected  = "rejected"
	ResultConflict  = "conflict"
	ResultForbidden = "forbidden"
	ResultInvalid   = "invalid"
	ResultNotFound  = "not_found"
	ResultError     = "error"
)

// WebhookHandler: единственное место, где заказ становится оплаченным.
type WebhookHandler struct {
	store   domain.Store
	orders  *order.Manager
	secret  string
	logger  *log.Entry
	metrics *metrics.ShopMetrics
	now     func() time.Time
}

// NewWebhookHandler создаёт обработчик, проверяющий подпись secret.
func NewWebhookHandler(store domain.Store, orders *order.Manager, secret string, logger *log.Entry, m *metrics.ShopMetrics) *WebhookHandler {
	if logger == nil {
		logger = log.New().WithField("component", "payment-webhook")
	}
	return &WebhookHandler{
		store:   store,
		orders:  orders,
		secret:  secret,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Handle применяет уведомление к заказу.
// Ошибки: ErrInvalidSignature, ErrOrderNotFound, ErrAlreadyPaid, ErrUnknownPaymentStatus,
// ErrInvalidTransition для заказа не в статусе accepted.
func (h *WebhookHandler) Handle(ctx context.Context, n Notification) (domain.Order, error) {
	result, err := h.handle(ctx, n)
	h.metrics.RecordPaymentWebhook(classify(err, result))

	entry := h.logger.WithFields(log.Fields{
		"order_id":   n.OrderID,
		"payment_id": n.PaymentID,
		"status":     n.Status,
	})
	if err != nil {
		entry.WithError(err).Warn("payment webhook rejected")
		return domain.Order{}, err
	}
	entry.Info("payment webhook processed")
	return result, nil
}

func (h *WebhookHandler) handle(ctx context.Context, n Notification) (domain.Order, error) {
	if subtle.ConstantTimeCompare([]byte(n.Signature), []byte(h.secret)) != 1 || h.secret == "" {
		return domain.Order{}, domain.ErrInvalidSignature
	}

	var current domain.Order
	err := h.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		current, err = tx.Orders().Get(ctx, n.OrderID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	if current.Paid {
		return domain.Order{}, domain.ErrAlreadyPaid
	}

	switch n.Status {
	case domain.PaymentStatusSuccess:
		return h.markPaid(ctx, n)
	case domain.PaymentStatusFail:
		reason := "payment failed"
		if len(n.Errors) > 0 {
			reason = strings.Join(n.Errors, "; ")
		}
		return h.orders.Reject(ctx, n.OrderID, reason)
	default:
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrUnknownPaymentStatus, n.Status)
	}
}

// markPaid под блокировкой строки заказа отмечает оплату и создаёт запись платежа.
// Оплатить можно только заказ в статусе accepted.
func (h *WebhookHandler) markPaid(ctx context.Context, n Notification) (domain.Order, error) {
	payment := domain.Payment{OrderID: n.OrderID, ExternalID: n.PaymentID, CreatedAt: h.now().UTC()}
	if errs := payment.Validate(); len(errs) > 0 {
		verr := &domain.ValidationError{}
		for _, e := range errs {
			verr.Add("payment_id", e.Error())
		}
		return domain.Order{}, verr
	}

	var paid domain.Order
	err := h.store.WithinTx(ctx, func(tx domain.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, n.OrderID)
		if err != nil {
			return err
		}
		if o.Paid {
			return domain.ErrAlreadyPaid
		}
		if o.Status != domain.OrderStatusAccepted {
			return fmt.Errorf("pay order in status %s: %w", o.Status, domain.ErrInvalidTransition)
		}

		o.Paid = true
		if err := tx.Orders().Save(ctx, o); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if _, err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  o.ID,
			Type:     domain.TimelineOrderPaid,
			Reason:   n.PaymentID,
			Occurred: payment.CreatedAt,
		}); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}
		paid = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	h.metrics.RecordTimelineEvent()
	return paid, nil
}

func classify(err error, o domain.Order) string {
	switch {
	case err == nil && o.Status == domain.OrderStatusRejected:
		return ResultRejected
	case err == nil:
		return ResultPaid
	case errors.Is(err, domain.ErrInvalidSignature):
		return ResultForbidden
	case errors.Is(err, domain.ErrAlreadyPaid), errors.Is(err, domain.ErrInvalidTransition):
		return ResultConflict
	case errors.Is(err, domain.ErrOrderNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrUnknownPaymentStatus), domain.IsValidation(err):
		return ResultInvalid
	default:
		return ResultError
	}
}
