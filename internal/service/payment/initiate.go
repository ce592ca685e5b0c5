package payment

import (
	"context"
	"regexp"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/tasks"
)

var cardNumberPattern = regexp.MustCompile(`^\d{8}$`)

// SimulateRequest: полезная нагрузка задачи payment.simulate.
type SimulateRequest struct {
	OrderID    int64  `json:"orderId"`
	CardNumber string `json:"cardNumber"`
}

// Initiator ставит в очередь тестовую оплату заказа.
type Initiator struct {
	store  domain.Store
	tasks  domain.TaskQueue
	logger *log.Entry
}

// NewInitiator создаёт Initiator.
func NewInitiator(store domain.Store, taskQueue domain.TaskQueue, logger *log.Entry) *Initiator {
	if logger == nil {
		logger = log.New().WithField("component", "payment")
	}
	return &Initiator{store: store, tasks: taskQueue, logger: logger}
}

// ValidateCardNumber проверяет, что номер карты состоит ровно из 8 цифр.
func ValidateCardNumber(card string) error {
	if !cardNumberPattern.MatchString(card) {
		return domain.NewValidationError("cardNumber", "card number must be exactly 8 digits")
	}
	return nil
}

// Initiate проверяет владельца заказа и ставит задачу payment.simulate.
// Чужой, удалённый заказ и корзина дают ErrOrderNotFound.
func (i *Initiator) Initiate(ctx context.Context, userID, orderID int64, cardNumber string) error {
	if err := ValidateCardNumber(cardNumber); err != nil {
		return err
	}

	err := i.store.WithinTx(ctx, func(tx domain.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.OwnedBy(userID) || o.Status == domain.OrderStatusCart {
			return domain.ErrOrderNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	task, err := tasks.NewTask(domain.TaskPaymentSimulate, strconv.FormatInt(orderID, 10), SimulateRequest{
		OrderID:    orderID,
		CardNumber: cardNumber,
	})
	if err != nil {
		return err
	}
	if err := i.tasks.Enqueue(ctx, task); err != nil {
		return err
	}

	i.logger.WithFields(log.Fields{"order_id": orderID, "user_id": userID}).Info("payment simulation enqueued")
	return nil
}
