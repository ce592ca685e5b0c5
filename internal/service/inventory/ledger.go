// Package inventory ведёт складской учёт: списание остатков при подтверждении заказа и возврат при отклонении.
package inventory

import (
	"context"
	"errors"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/metrics"
)

// Ledger меняет остатки товаров. Все методы работают внутри транзакции вызывающего.
type Ledger struct {
	logger  *log.Entry
	metrics *metrics.ShopMetrics
}

// NewLedger создаёт складской учёт. metrics может быть nil.
func NewLedger(logger *log.Entry, m *metrics.ShopMetrics) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{logger: logger, metrics: m}
}

// Deduct списывает количество каждой позиции со склада по принципу всё или ничего.
// Строки товаров блокируются по возрастанию ID, затем проверяются все позиции, и только потом меняются остатки.
// Нехватка и неактивный товар возвращаются как *domain.FulfillmentError.
func (l *Ledger) Deduct(ctx context.Context, tx domain.Tx, items []domain.LineItem) error {
	need, ids := aggregate(items)
	if len(ids) == 0 {
		return nil
	}

	products, err := tx.Products().LockForUpdate(ctx, ids)
	if err != nil {
		return err
	}

	for _, id := range ids {
		product := products[id]
		var reason error
		switch {
		case !product.IsActive:
			reason = domain.ErrProductInactive
		case product.Count < need[id]:
			reason = domain.ErrInsufficientStock
		}
		if reason != nil {
			l.logger.WithFields(log.Fields{
				"product_id": id,
				"requested":  need[id],
				"available":  product.Count,
				"reason":     ReasonLabel(reason),
			}).Warn("cannot fulfill line item")
			return &domain.FulfillmentError{ProductID: id, Reason: reason}
		}
	}

	units := 0
	for _, id := range ids {
		if err := tx.Products().AddStock(ctx, id, -need[id]); err != nil {
			return err
		}
		units += need[id]
	}
	l.metrics.RecordStockMovement("deducted", units)
	return nil
}

// Return возвращает количество позиций на склад без дополнительных проверок.
func (l *Ledger) Return(ctx context.Context, tx domain.Tx, items []domain.LineItem) error {
	need, ids := aggregate(items)
	if len(ids) == 0 {
		return nil
	}

	if _, err := tx.Products().LockForUpdate(ctx, ids); err != nil {
		return err
	}

	units := 0
	for _, id := range ids {
		if err := tx.Products().AddStock(ctx, id, need[id]); err != nil {
			return err
		}
		units += need[id]
	}
	l.metrics.RecordStockMovement("returned", units)
	return nil
}

// aggregate суммирует количество по товарам и возвращает ID по возрастанию.
func aggregate(items []domain.LineItem) (map[int64]int, []int64) {
	need := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Count <= 0 {
			continue
		}
		need[item.ProductID] += item.Count
	}

	ids := make([]int64, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return need, ids
}

// ReasonLabel возвращает метку причины отказа для логов и метрик.
func ReasonLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductInactive):
		return "product_inactive"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	default:
		return "error"
	}
}
