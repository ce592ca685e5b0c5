package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

const orderColumns = `id, user_id, created_at, delivery_type, status, paid, payment_type, city, address, comment, is_active`

type orderRepository struct {
	q queryer
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (
			user_id, created_at, delivery_type, status, paid, payment_type, city, address, comment, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`,
		order.UserID, order.CreatedAt, string(order.DeliveryType), string(order.Status), order.Paid,
		string(order.PaymentType), order.City, order.Address, order.Comment, order.IsActive,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) && violatedConstraint(err) == constraintOneCartPerUser {
			return domain.Order{}, domain.ErrCartOrderExists
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

// FindCart возвращает самую раннюю активную корзину пользователя.
func (r *orderRepository) FindCart(ctx context.Context, userID int64) (domain.Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND status = 'cart' AND is_active
		ORDER BY id
		LIMIT 1
	`, userID)
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND is_active AND status <> 'cart'
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET delivery_type = $2,
		    status = $3,
		    paid = $4,
		    payment_type = $5,
		    city = $6,
		    address = $7,
		    comment = $8,
		    is_active = $9
		WHERE id = $1
	`,
		order.ID, string(order.DeliveryType), string(order.Status), order.Paid,
		string(order.PaymentType), order.City, order.Address, order.Comment, order.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) && violatedConstraint(err) == constraintOneCartPerUser {
			return domain.ErrCartOrderExists
		}
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var deliveryType, status, paymentType string
	if err := row.Scan(
		&order.ID, &order.UserID, &order.CreatedAt, &deliveryType, &status, &order.Paid,
		&paymentType, &order.City, &order.Address, &order.Comment, &order.IsActive,
	); err != nil {
		return domain.Order{}, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.DeliveryType = domain.DeliveryType(deliveryType)
	order.Status = domain.OrderStatus(status)
	order.PaymentType = domain.PaymentType(paymentType)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
