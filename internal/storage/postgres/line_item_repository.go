package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type lineItemRepository struct {
	q queryer
}

func (r *lineItemRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	grouped, err := r.ListByOrders(ctx, []int64{orderID})
	if err != nil {
		return nil, err
	}
	return grouped[orderID], nil
}

// ListByOrders загружает позиции всех заказов одним запросом.
func (r *lineItemRepository) ListByOrders(ctx context.Context, orderIDs []int64) (map[int64][]domain.LineItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result := make(map[int64][]domain.LineItem, len(orderIDs))
	for _, id := range orderIDs {
		result[id] = make([]domain.LineItem, 0)
	}
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, price, count
		FROM line_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	return result, nil
}

func (r *lineItemRepository) Get(ctx context.Context, orderID, productID int64) (domain.LineItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanLineItem(r.q.QueryRowContext(ctx, `
		SELECT id, order_id, product_id, price, count
		FROM line_items
		WHERE order_id = $1 AND product_id = $2
	`, orderID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LineItem{}, domain.ErrLineItemNotFound
		}
		return domain.LineItem{}, fmt.Errorf("select line item: %w", err)
	}
	return item, nil
}

func (r *lineItemRepository) Create(ctx context.Context, item domain.LineItem) (domain.LineItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO line_items (order_id, product_id, price, count)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, item.OrderID, item.ProductID, item.Price, item.Count).Scan(&item.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err) && violatedConstraint(err) == constraintLineItemUnique:
			return domain.LineItem{}, domain.ErrLineItemExists
		case isForeignKeyViolation(err) && violatedConstraint(err) == "line_items_order_id_fkey":
			return domain.LineItem{}, domain.ErrOrderNotFound
		case isForeignKeyViolation(err):
			return domain.LineItem{}, domain.ErrProductNotFound
		}
		return domain.LineItem{}, fmt.Errorf("insert line item: %w", err)
	}
	return item, nil
}

func (r *lineItemRepository) Update(ctx context.Context, item domain.LineItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE line_items SET price = $2, count = $3 WHERE id = $1
	`, item.ID, item.Price, item.Count)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	return expectAffected(res, domain.ErrLineItemNotFound)
}

func (r *lineItemRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM line_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete line item: %w", err)
	}
	return expectAffected(res, domain.ErrLineItemNotFound)
}

func scanLineItem(row rowScanner) (domain.LineItem, error) {
	var item domain.LineItem
	if err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Price, &item.Count); err != nil {
		return domain.LineItem{}, err
	}
	return item, nil
}

// expectAffected возвращает notFound, если запрос не затронул ни одной строки.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.LineItemRepository = (*lineItemRepository)(nil)
