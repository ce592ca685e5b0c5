package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type paymentRepository struct {
	q queryer
}

// Create сохраняет платёж; уникальность order_id гарантирует не больше одной оплаты на заказ.
func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, payment_id, created_at)
		VALUES ($1,$2,$3)
		RETURNING id
	`, payment.OrderID, payment.ExternalID, payment.CreatedAt).Scan(&payment.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err) && violatedConstraint(err) == constraintPaymentOrder:
			return domain.Payment{}, domain.ErrAlreadyPaid
		case isForeignKeyViolation(err):
			return domain.Payment{}, domain.ErrOrderNotFound
		}
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) GetByOrder(ctx context.Context, orderID int64) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var payment domain.Payment
	err := r.q.QueryRowContext(ctx, `
		SELECT id, order_id, payment_id, created_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&payment.ID, &payment.OrderID, &payment.ExternalID, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrOrderNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	return payment, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
