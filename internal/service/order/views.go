package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/pricing"
)

// View: заказ вместе с позициями, карточками товаров и стоимостью.
type View struct {
	Order        domain.Order
	Items        []domain.LineItem
	Products     map[int64]domain.Product
	DeliveryCost decimal.Decimal
	TotalCost    decimal.Decimal
}

// Details расширяет View историей заказа и платежом (для администратора).
type Details struct {
	View
	Timeline []domain.TimelineEvent
	Payment  *domain.Payment
}

// History возвращает активные заказы пользователя, кроме корзины, новые первыми.
func (m *Manager) History(ctx context.Context, userID int64) ([]View, error) {
	var views []View
	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		orders, err := tx.Orders().ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		views, err = m.loadViews(ctx, tx, orders)
		return err
	})
	if err != nil {
		return nil, err
	}

	cfg, err := m.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load delivery config: %w", err)
	}
	for i := range views {
		views[i].price(cfg)
	}
	return views, nil
}

// GetForUser возвращает заказ пользователя. Чужой, удалённый заказ и корзина дают ErrOrderNotFound.
func (m *Manager) GetForUser(ctx context.Context, userID, orderID int64) (View, error) {
	var view View
	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.OwnedBy(userID) || order.Status == domain.OrderStatusCart {
			return domain.ErrOrderNotFound
		}

		views, err := m.loadViews(ctx, tx, []domain.Order{order})
		if err != nil {
			return err
		}
		view = views[0]
		return nil
	})
	if err != nil {
		return View{}, err
	}

	cfg, err := m.config.Get(ctx)
	if err != nil {
		return View{}, fmt.Errorf("load delivery config: %w", err)
	}
	view.price(cfg)
	return view, nil
}

// Get возвращает любой заказ с историей и платежом.
func (m *Manager) Get(ctx context.Context, orderID int64) (Details, error) {
	var details Details
	err := m.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		views, err := m.loadViews(ctx, tx, []domain.Order{order})
		if err != nil {
			return err
		}
		details.View = views[0]

		if details.Timeline, err = tx.Timeline().List(ctx, orderID); err != nil {
			return fmt.Errorf("list timeline: %w", err)
		}

		payment, err := tx.Payments().GetByOrder(ctx, orderID)
		switch {
		case err == nil:
			details.Payment = &payment
		case !errors.Is(err, domain.ErrOrderNotFound):
			return fmt.Errorf("get payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Details{}, err
	}

	cfg, err := m.config.Get(ctx)
	if err != nil {
		return Details{}, fmt.Errorf("load delivery config: %w", err)
	}
	details.price(cfg)
	return details, nil
}

// loadViews загружает позиции и товары всех заказов двумя выборками.
func (m *Manager) loadViews(ctx context.Context, tx domain.Tx, orders []domain.Order) ([]View, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	itemsByOrder, err := tx.LineItems().ListByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}

	var productIDs []int64
	for _, items := range itemsByOrder {
		for _, item := range items {
			productIDs = append(productIDs, item.ProductID)
		}
	}
	products, err := tx.Products().GetMany(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	views := make([]View, 0, len(orders))
	for _, o := range orders {
		items := itemsByOrder[o.ID]
		own := make(map[int64]domain.Product, len(items))
		for _, item := range items {
			if p, ok := byID[item.ProductID]; ok {
				own[item.ProductID] = p
			}
		}
		views = append(views, View{Order: o, Items: items, Products: own})
	}
	return views, nil
}

func (v *View) price(cfg domain.DeliveryConfig) {
	main := pricing.MainCost(v.Items)
	v.DeliveryCost = pricing.DeliveryCost(cfg, v.Order.DeliveryType, main)
	v.TotalCost = main.Add(v.DeliveryCost)
}
