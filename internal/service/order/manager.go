// Package order управляет жизненным циклом заказа: корзина, оформление, подтверждение, отклонение, выдача.
package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/metrics"
	"github.com/vladislavdragonenkov/bgshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/bgshop/internal/service/lineitem"
	"github.com/vladislavdragonenkov/bgshop/internal/service/pricing"
	"github.com/vladislavdragonenkov/bgshop/internal/service/tasks"
)

// Checkout: данные, которые покупатель передаёт при подтверждении заказа.
type Checkout struct {
	DeliveryType domain.DeliveryType
	PaymentType  domain.PaymentType
	City         string
	Address      string
	Comment      string
	Phone        string
	Email        string
}

// Manager: машина состояний заказа. Все изменения выполняются в одной транзакции хранилища.
type Manager struct {
	store      domain.Store
	reconciler *lineitem.Reconciler
	ledger     *inventory.Ledger
	config     domain.DeliveryConfigSource
	tasks      domain.TaskQueue
	logger     *log.Entry
	metrics    *metrics.ShopMetrics
	now        func() time.Time
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics включает бизнес-метрики.
func WithMetrics(sm *metrics.ShopMetrics) Option {
	return func(m *Manager) { m.metrics = sm }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager собирает Manager. tasks может быть nil: тогда уведомления не ставятся.
func NewManager(
	store domain.Store,
	reconciler *lineitem.Reconciler,
	ledger *inventory.Ledger,
	config domain.DeliveryConfigSource,
	taskQueue domain.TaskQueue,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:      store,
		reconciler: reconciler,
		ledger:     ledger,
		config:     config,
		tasks:      taskQueue,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New().WithField("component", "orders")
	}
	return m
}

// Create создаёт заказ в статусе editing с заданными полями и позициями.
func (m *Manager) Create(ctx context.Context, userID int64, attrs domain.OrderAttrs, desired []domain.DesiredItem) (domain.Order, error) {
	order := domain.NewOrder(userID, domain.OrderStatusEditing, m.now())
	attrs.Apply(&order)
	if err := validateOrder(&order); err != nil {
		return domain.Order{}, err
	}

	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		created, err := tx.Orders().Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order = created

		if len(desired) > 0 {
			if err := m.reconciler.Reconcile(ctx, tx, order.ID, desired); err != nil {
				return err
			}
		}
		return m.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCreated, "")
	})
	if err != nil {
		return domain.Order{}, err
	}

	m.metrics.RecordOrderCreated()
	m.logger.WithFields(log.Fields{"order_id": order.ID, "user_id": userID}).Info("order created")
	return order, nil
}

// GetOrCreateCart возвращает корзину пользователя, создавая её при отсутствии.
// Работает внутри транзакции вызывающего. Гонка двух созданий даёт ErrCartOrderExists.
func (m *Manager) GetOrCreateCart(ctx context.Context, tx domain.Tx, userID int64) (domain.Order, error) {
	cart, err := tx.Orders().FindCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, fmt.Errorf("find cart: %w", err)
	}

	cart, err = tx.Orders().Create(ctx, domain.NewOrder(userID, domain.OrderStatusCart, m.now()))
	if err != nil {
		return domain.Order{}, err
	}
	return cart, nil
}

// Edit переводит заказ в editing, применяет поля и, если reconcile, синхронизирует позиции.
// Работает внутри транзакции вызывающего и сохраняет заказ.
func (m *Manager) Edit(ctx context.Context, tx domain.Tx, order *domain.Order, attrs domain.OrderAttrs, desired []domain.DesiredItem, reconcile bool) error {
	order.Status = domain.OrderStatusEditing
	attrs.Apply(order)
	if err := validateOrder(order); err != nil {
		return err
	}

	if reconcile {
		if err := m.reconciler.Reconcile(ctx, tx, order.ID, desired); err != nil {
			return err
		}
	}

	if err := tx.Orders().Save(ctx, *order); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// SubmitCart превращает корзину пользователя в оформляемый заказ.
// Непустой desired заменяет позиции корзины.
func (m *Manager) SubmitCart(ctx context.Context, userID int64, desired []domain.DesiredItem) (domain.Order, error) {
	var order domain.Order
	err := m.WithCartRetry(ctx, func(tx domain.Tx) error {
		cart, err := m.GetOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := m.Edit(ctx, tx, &cart, domain.OrderAttrs{}, desired, len(desired) > 0); err != nil {
			return err
		}
		order = cart
		return m.appendTimeline(ctx, tx, cart.ID, domain.TimelineOrderEditing, "")
	})
	if err != nil {
		return domain.Order{}, err
	}

	m.logger.WithFields(log.Fields{"order_id": order.ID, "user_id": userID}).Info("cart submitted for checkout")
	return order, nil
}

// WithCartRetry выполняет fn в транзакции и один раз повторяет её, если параллельный запрос
// успел создать корзину того же пользователя.
func (m *Manager) WithCartRetry(ctx context.Context, fn func(tx domain.Tx) error) error {
	err := m.store.WithinTx(ctx, fn)
	if errors.Is(err, domain.ErrCartOrderExists) {
		m.logger.Debug("cart order created concurrently, retrying")
		err = m.store.WithinTx(ctx, fn)
	}
	return err
}

// Confirm подтверждает заказ пользователя: списывает остатки, фиксирует цены, переводит в accepted.
// Заказ чужой, не в editing или отсутствующий: ErrOrderNotFound.
// После фиксации ставится задача order.confirmed; её ошибка только логируется.
func (m *Manager) Confirm(ctx context.Context, orderID, userID int64, checkout Checkout) (domain.Order, error) {
	start := time.Now()

	attrs := domain.OrderAttrs{
		DeliveryType: &checkout.DeliveryType,
		PaymentType:  &checkout.PaymentType,
		City:         &checkout.City,
		Address:      &checkout.Address,
		Comment:      &checkout.Comment,
	}

	var (
		order domain.Order
		items []domain.LineItem
	)
	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.OwnedBy(userID) || order.Status != domain.OrderStatusEditing {
			return domain.ErrOrderNotFound
		}

		if err := m.Edit(ctx, tx, &order, attrs, nil, false); err != nil {
			return err
		}

		items, err = tx.LineItems().ListByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list line items: %w", err)
		}
		if err := m.ledger.Deduct(ctx, tx, items); err != nil {
			return err
		}
		if items, err = m.reconciler.RefreshPrices(ctx, tx, items); err != nil {
			return err
		}

		order.Status = domain.OrderStatusAccepted
		if err := tx.Orders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		return m.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderAccepted, "")
	})
	if err != nil {
		m.metrics.RecordConfirmFailed(confirmFailureReason(err))
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"user_id":  userID,
		}).Warn("order confirmation failed")
		return domain.Order{}, err
	}

	m.metrics.RecordOrderConfirmed(time.Since(start))
	m.logger.WithFields(log.Fields{"order_id": order.ID, "user_id": userID}).Info("order confirmed")
	m.notifyConfirmed(ctx, order, items, checkout.Email)
	return order, nil
}

func (m *Manager) notifyConfirmed(ctx context.Context, order domain.Order, items []domain.LineItem, email string) {
	if m.tasks == nil {
		return
	}

	payload := tasks.OrderConfirmed{OrderID: order.ID, UserID: order.UserID, Email: email}
	if cfg, err := m.config.Get(ctx); err == nil {
		payload.TotalCost = pricing.TotalCost(cfg, order.DeliveryType, items).StringFixed(2)
	} else {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("delivery config unavailable for notification")
	}

	task, err := tasks.NewTask(domain.TaskOrderConfirmed, strconv.FormatInt(order.ID, 10), payload)
	if err == nil {
		err = m.tasks.Enqueue(ctx, task)
	}
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue order confirmed notification")
	}
}

// Reject отклоняет подтверждённый заказ и возвращает товар на склад.
// Отклонить можно только неоплаченный заказ в статусе accepted.
func (m *Manager) Reject(ctx context.Context, orderID int64, reason string) (domain.Order, error) {
	var order domain.Order
	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Paid {
			return domain.ErrAlreadyPaid
		}
		if order.Status != domain.OrderStatusAccepted {
			return fmt.Errorf("reject order in status %s: %w", order.Status, domain.ErrInvalidTransition)
		}

		order.Status = domain.OrderStatusRejected
		if err := tx.Orders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		items, err := tx.LineItems().ListByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list line items: %w", err)
		}
		if err := m.ledger.Return(ctx, tx, items); err != nil {
			return err
		}
		return m.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderRejected, reason)
	})
	if err != nil {
		return domain.Order{}, err
	}

	m.metrics.RecordOrderRejected()
	m.logger.WithFields(log.Fields{"order_id": order.ID, "reason": reason}).Info("order rejected")
	return order, nil
}

// Complete выдаёт оплаченный подтверждённый заказ.
func (m *Manager) Complete(ctx context.Context, orderID int64) (domain.Order, error) {
	var order domain.Order
	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.IsActive {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.OrderStatusAccepted || !order.Paid {
			return fmt.Errorf("complete order in status %s (paid=%t): %w", order.Status, order.Paid, domain.ErrInvalidTransition)
		}

		order.Status = domain.OrderStatusCompleted
		if err := tx.Orders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		return m.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCompleted, "")
	})
	if err != nil {
		return domain.Order{}, err
	}

	m.metrics.RecordOrderCompleted()
	m.logger.WithField("order_id", order.ID).Info("order completed")
	return order, nil
}

func (m *Manager) appendTimeline(ctx context.Context, tx domain.Tx, orderID int64, eventType, reason string) error {
	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: m.now().UTC(),
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	m.metrics.RecordTimelineEvent()
	return nil
}

func validateOrder(order *domain.Order) error {
	errs := order.ValidateInvariants()
	if len(errs) == 0 {
		return nil
	}

	verr := &domain.ValidationError{}
	for _, err := range errs {
		verr.Add(fieldOf(err), err.Error())
	}
	return verr
}

func fieldOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserRequired):
		return "user"
	case errors.Is(err, domain.ErrOrderStatusInvalid):
		return "status"
	case errors.Is(err, domain.ErrDeliveryTypeInvalid):
		return "deliveryType"
	case errors.Is(err, domain.ErrPaymentTypeInvalid):
		return "paymentType"
	case errors.Is(err, domain.ErrCityTooLong):
		return "city"
	case errors.Is(err, domain.ErrTextTooLong):
		return "address"
	default:
		return "order"
	}
}

func confirmFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCannotFulfill), errors.Is(err, domain.ErrProductNotFound):
		return inventory.ReasonLabel(err)
	case errors.Is(err, domain.ErrOrderNotFound):
		return "not_found"
	case domain.IsValidation(err):
		return "validation"
	default:
		return "error"
	}
}
