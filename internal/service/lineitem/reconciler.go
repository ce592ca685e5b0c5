// Package lineitem синхронизирует позиции заказа с желаемым набором товаров.
package lineitem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/pricing"
)

// Reconciler меняет позиции заказа внутри транзакции вызывающего.
// Цена позиции всегда берётся через pricing.DiscountedPrice на текущую дату.
type Reconciler struct {
	now func() time.Time
}

// NewReconciler создаёт Reconciler. nil now означает time.Now.
func NewReconciler(now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{now: now}
}

// Collapse сворачивает список в карту product_id -> количество.
// Повтор товара перезаписывает предыдущее значение. Второй результат хранит порядок первого появления.
func Collapse(desired []domain.DesiredItem) (map[int64]int, []int64) {
	counts := make(map[int64]int, len(desired))
	order := make([]int64, 0, len(desired))
	for _, item := range desired {
		if _, seen := counts[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		counts[item.ProductID] = item.Count
	}
	return counts, order
}

// Reconcile приводит позиции заказа к desired: лишние удаляются, совпавшие получают новое
// количество и актуальную цену, недостающие создаются. Количество <= 0 означает отсутствие товара.
func (r *Reconciler) Reconcile(ctx context.Context, tx domain.Tx, orderID int64, desired []domain.DesiredItem) error {
	counts, order := Collapse(desired)
	for _, id := range order {
		if counts[id] > domain.MaxLineItemCount {
			return fmt.Errorf("product %d: %w", id, domain.ErrQuantityTooLarge)
		}
	}

	existing, err := tx.LineItems().ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list line items: %w", err)
	}

	ids := make([]int64, 0, len(order))
	for _, id := range order {
		if counts[id] > 0 {
			ids = append(ids, id)
		}
	}
	products, err := r.loadProducts(ctx, tx, ids)
	if err != nil {
		return err
	}

	now := r.now()
	for _, item := range existing {
		count, ok := counts[item.ProductID]
		delete(counts, item.ProductID)
		if !ok || count <= 0 {
			if err := tx.LineItems().Delete(ctx, item.ID); err != nil {
				return fmt.Errorf("delete line item %d: %w", item.ID, err)
			}
			continue
		}

		item.Count = count
		item.Price = pricing.DiscountedPrice(products[item.ProductID], now)
		if err := tx.LineItems().Update(ctx, item); err != nil {
			return fmt.Errorf("update line item %d: %w", item.ID, err)
		}
	}

	for _, productID := range order {
		count, ok := counts[productID]
		if !ok || count <= 0 {
			continue
		}
		if _, err := tx.LineItems().Create(ctx, domain.LineItem{
			OrderID:   orderID,
			ProductID: productID,
			Price:     pricing.DiscountedPrice(products[productID], now),
			Count:     count,
		}); err != nil {
			return fmt.Errorf("create line item for product %d: %w", productID, err)
		}
	}

	return nil
}

// AddItem увеличивает количество товара в заказе или, при override, устанавливает его.
// Отрицательное количество без override превращается в SubtractItem.
// Итоговое количество <= 0 удаляет позицию.
func (r *Reconciler) AddItem(ctx context.Context, tx domain.Tx, orderID, productID int64, qty int, override bool) error {
	if !override && qty < 0 {
		return r.SubtractItem(ctx, tx, orderID, productID, -qty)
	}

	product, err := tx.Products().Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product %d: %w", productID, err)
	}

	item, err := tx.LineItems().Get(ctx, orderID, productID)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrLineItemNotFound) {
		return fmt.Errorf("get line item: %w", err)
	}

	count := qty
	if exists && !override {
		count = item.Count + qty
	}

	if count <= 0 {
		if !exists {
			return nil
		}
		return r.delete(ctx, tx, item)
	}
	if count > domain.MaxLineItemCount {
		return fmt.Errorf("product %d: %w", productID, domain.ErrQuantityTooLarge)
	}

	price := pricing.DiscountedPrice(product, r.now())
	if !exists {
		_, err := tx.LineItems().Create(ctx, domain.LineItem{
			OrderID:   orderID,
			ProductID: productID,
			Price:     price,
			Count:     count,
		})
		if err != nil {
			return fmt.Errorf("create line item: %w", err)
		}
		return nil
	}

	item.Count = count
	item.Price = price
	if err := tx.LineItems().Update(ctx, item); err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	return nil
}

// SubtractItem уменьшает количество товара; если вычитается не меньше, чем есть, позиция удаляется.
func (r *Reconciler) SubtractItem(ctx context.Context, tx domain.Tx, orderID, productID int64, qty int) error {
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}

	item, err := tx.LineItems().Get(ctx, orderID, productID)
	if err != nil {
		return err
	}

	if item.Count <= qty {
		return r.delete(ctx, tx, item)
	}

	item.Count -= qty
	if err := tx.LineItems().Update(ctx, item); err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	return nil
}

// RefreshPrices пересчитывает цены позиций на текущую дату и сохраняет их.
func (r *Reconciler) RefreshPrices(ctx context.Context, tx domain.Tx, items []domain.LineItem) ([]domain.LineItem, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := r.loadProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	now := r.now()
	refreshed := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		item.Price = pricing.DiscountedPrice(products[item.ProductID], now)
		if err := tx.LineItems().Update(ctx, item); err != nil {
			return nil, fmt.Errorf("update line item %d: %w", item.ID, err)
		}
		refreshed = append(refreshed, item)
	}
	return refreshed, nil
}

func (r *Reconciler) delete(ctx context.Context, tx domain.Tx, item domain.LineItem) error {
	if err := tx.LineItems().Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("delete line item %d: %w", item.ID, err)
	}
	return nil
}

// loadProducts загружает товары одной выборкой; отсутствие любого из них: ErrProductNotFound.
func (r *Reconciler) loadProducts(ctx context.Context, tx domain.Tx, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	products, err := tx.Products().GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, p := range products {
		result[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
		}
	}
	return result, nil
}
