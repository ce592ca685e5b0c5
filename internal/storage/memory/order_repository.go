package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

// orderRepositoryInMemory: in-memory реализация OrderRepository поверх состояния транзакции.
type orderRepositoryInMemory struct {
	st *state
}

// Create присваивает ID и сохраняет заказ. Вторая активная корзина пользователя запрещена.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	if order.Status == domain.OrderStatusCart && order.IsActive {
		if _, ok := r.findCart(order.UserID); ok {
			return domain.Order{}, domain.ErrCartOrderExists
		}
	}

	r.st.orderSeq++
	order.ID = r.st.orderSeq
	r.st.orders[order.ID] = order
	return order, nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// GetForUpdate совпадает с Get: транзакции и так сериализованы.
func (r *orderRepositoryInMemory) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.Get(ctx, id)
}

func (r *orderRepositoryInMemory) FindCart(_ context.Context, userID int64) (domain.Order, error) {
	order, ok := r.findCart(userID)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) findCart(userID int64) (domain.Order, bool) {
	var (
		found domain.Order
		ok    bool
	)
	for _, order := range r.st.orders {
		if order.UserID != userID || order.Status != domain.OrderStatusCart || !order.IsActive {
			continue
		}
		if !ok || order.ID < found.ID {
			found, ok = order, true
		}
	}
	return found, ok
}

// ListByUser возвращает активные заказы пользователя без корзины, новые первыми.
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if order.UserID != userID || !order.IsActive || order.Status == domain.OrderStatusCart {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// Save перезаписывает заказ целиком.
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status == domain.OrderStatusCart && order.IsActive && current.Status != domain.OrderStatusCart {
		if _, exists := r.findCart(order.UserID); exists {
			return domain.ErrCartOrderExists
		}
	}
	r.st.orders[order.ID] = order
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
