package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type lineItemRepositoryInMemory struct {
	st *state
}

func (r *lineItemRepositoryInMemory) ListByOrder(_ context.Context, orderID int64) ([]domain.LineItem, error) {
	result := make([]domain.LineItem, 0)
	for _, item := range r.st.lineItems {
		if item.OrderID == orderID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *lineItemRepositoryInMemory) ListByOrders(ctx context.Context, orderIDs []int64) (map[int64][]domain.LineItem, error) {
	result := make(map[int64][]domain.LineItem, len(orderIDs))
	for _, id := range orderIDs {
		items, err := r.ListByOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		result[id] = items
	}
	return result, nil
}

func (r *lineItemRepositoryInMemory) Get(_ context.Context, orderID, productID int64) (domain.LineItem, error) {
	for _, item := range r.st.lineItems {
		if item.OrderID == orderID && item.ProductID == productID {
			return item, nil
		}
	}
	return domain.LineItem{}, domain.ErrLineItemNotFound
}

// Create проверяет внешние ключи и уникальность пары (заказ, товар).
func (r *lineItemRepositoryInMemory) Create(ctx context.Context, item domain.LineItem) (domain.LineItem, error) {
	if _, ok := r.st.orders[item.OrderID]; !ok {
		return domain.LineItem{}, domain.ErrOrderNotFound
	}
	if _, ok := r.st.products[item.ProductID]; !ok {
		return domain.LineItem{}, domain.ErrProductNotFound
	}
	if _, err := r.Get(ctx, item.OrderID, item.ProductID); err == nil {
		return domain.LineItem{}, domain.ErrLineItemExists
	}

	r.st.lineItemSeq++
	item.ID = r.st.lineItemSeq
	r.st.lineItems[item.ID] = item
	return item, nil
}

func (r *lineItemRepositoryInMemory) Update(_ context.Context, item domain.LineItem) error {
	if _, ok := r.st.lineItems[item.ID]; !ok {
		return domain.ErrLineItemNotFound
	}
	r.st.lineItems[item.ID] = item
	return nil
}

func (r *lineItemRepositoryInMemory) Delete(_ context.Context, id int64) error {
	if _, ok := r.st.lineItems[id]; !ok {
		return domain.ErrLineItemNotFound
	}
	delete(r.st.lineItems, id)
	return nil
}

var _ domain.LineItemRepository = (*lineItemRepositoryInMemory)(nil)
