package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type paymentRepositoryInMemory struct {
	st *state
}

// Create сохраняет платёж; на заказ допускается только одна запись.
func (r *paymentRepositoryInMemory) Create(_ context.Context, payment domain.Payment) (domain.Payment, error) {
	if _, exists := r.st.payments[payment.OrderID]; exists {
		return domain.Payment{}, domain.ErrAlreadyPaid
	}
	if _, ok := r.st.orders[payment.OrderID]; !ok {
		return domain.Payment{}, domain.ErrOrderNotFound
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	r.st.paymentSeq++
	payment.ID = r.st.paymentSeq
	r.st.payments[payment.OrderID] = payment
	return payment, nil
}

func (r *paymentRepositoryInMemory) GetByOrder(_ context.Context, orderID int64) (domain.Payment, error) {
	payment, ok := r.st.payments[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrOrderNotFound
	}
	return payment, nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
