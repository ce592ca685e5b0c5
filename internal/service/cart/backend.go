package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/lineitem"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
)

// Режимы корзины, они же значения label mode в метриках.
const (
	ModeSession = "session"
	ModeOrder   = "order"
)

// Entry: товар и его количество в корзине.
type Entry struct {
	ProductID int64
	Count     int
}

// Backend: хранилище корзины конкретного покупателя.
type Backend interface {
	Mode() string
	// Add увеличивает количество товара или, при override, устанавливает его.
	Add(ctx context.Context, productID int64, qty int, override bool) error
	// Remove уменьшает количество; позиция с количеством <= 0 удаляется.
	Remove(ctx context.Context, productID int64, qty int) error
	// Entries возвращает содержимое корзины по возрастанию product_id.
	Entries(ctx context.Context) ([]Entry, error)
}

// SessionBackend хранит корзину анонимного покупателя в сессии.
type SessionBackend struct {
	store     domain.SessionCartStore
	sessionID string
	logger    *log.Entry
}

// NewSessionBackend создаёт корзину поверх сессии sessionID.
func NewSessionBackend(store domain.SessionCartStore, sessionID string, logger *log.Entry) *SessionBackend {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &SessionBackend{store: store, sessionID: sessionID, logger: logger}
}

func (b *SessionBackend) Mode() string { return ModeSession }

func (b *SessionBackend) Add(ctx context.Context, productID int64, qty int, override bool) error {
	cart, err := b.store.Load(ctx, b.sessionID)
	if err != nil {
		return fmt.Errorf("load session cart: %w", err)
	}

	key := strconv.FormatInt(productID, 10)
	count := qty
	if !override {
		count += cart[key]
	}
	if count > domain.MaxLineItemCount {
		return domain.ErrQuantityTooLarge
	}
	if count <= 0 {
		delete(cart, key)
	} else {
		cart[key] = count
	}
	return b.save(ctx, cart)
}

func (b *SessionBackend) Remove(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}

	cart, err := b.store.Load(ctx, b.sessionID)
	if err != nil {
		return fmt.Errorf("load session cart: %w", err)
	}

	key := strconv.FormatInt(productID, 10)
	current, ok := cart[key]
	if !ok {
		return nil
	}
	if current <= qty {
		delete(cart, key)
	} else {
		cart[key] = current - qty
	}
	return b.save(ctx, cart)
}

func (b *SessionBackend) Entries(ctx context.Context) ([]Entry, error) {
	cart, err := b.store.Load(ctx, b.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session cart: %w", err)
	}

	entries := make([]Entry, 0, len(cart))
	for key, count := range cart {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 || count <= 0 {
			b.logger.WithFields(log.Fields{"key": key, "count": count}).Warn("skipping malformed session cart entry")
			continue
		}
		entries = append(entries, Entry{ProductID: id, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProductID < entries[j].ProductID })
	return entries, nil
}

// Clear удаляет корзину сессии.
func (b *SessionBackend) Clear(ctx context.Context) error {
	return b.store.Clear(ctx, b.sessionID)
}

func (b *SessionBackend) save(ctx context.Context, cart map[string]int) error {
	if err := b.store.Save(ctx, b.sessionID, cart); err != nil {
		return fmt.Errorf("save session cart: %w", err)
	}
	return nil
}

// PersistedBackend хранит корзину пользователя как заказ в статусе cart.
type PersistedBackend struct {
	store      domain.Store
	orders     *order.Manager
	reconciler *lineitem.Reconciler
	userID     int64
}

// NewPersistedBackend создаёт корзину пользователя userID.
func NewPersistedBackend(store domain.Store, orders *order.Manager, reconciler *lineitem.Reconciler, userID int64) *PersistedBackend {
	return &PersistedBackend{store: store, orders: orders, reconciler: reconciler, userID: userID}
}

func (b *PersistedBackend) Mode() string { return ModeOrder }

// Add создаёт заказ-корзину при первом обращении.
func (b *PersistedBackend) Add(ctx context.Context, productID int64, qty int, override bool) error {
	return b.orders.WithCartRetry(ctx, func(tx domain.Tx) error {
		cart, err := b.orders.GetOrCreateCart(ctx, tx, b.userID)
		if err != nil {
			return err
		}
		return b.reconciler.AddItem(ctx, tx, cart.ID, productID, qty, override)
	})
}

func (b *PersistedBackend) Remove(ctx context.Context, productID int64, qty int) error {
	return b.store.WithinTx(ctx, func(tx domain.Tx) error {
		cart, err := tx.Orders().FindCart(ctx, b.userID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.ErrLineItemNotFound
		}
		if err != nil {
			return fmt.Errorf("find cart: %w", err)
		}
		return b.reconciler.SubtractItem(ctx, tx, cart.ID, productID, qty)
	})
}

func (b *PersistedBackend) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := b.store.WithinTx(ctx, func(tx domain.Tx) error {
		cart, err := tx.Orders().FindCart(ctx, b.userID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find cart: %w", err)
		}

		items, err := tx.LineItems().ListByOrder(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("list line items: %w", err)
		}
		entries = make([]Entry, 0, len(items))
		for _, item := range items {
			entries = append(entries, Entry{ProductID: item.ProductID, Count: item.Count})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ProductID < entries[j].ProductID })
	return entries, nil
}

// Merge переносит корзину сессии в заказ-корзину. Количество из сессии заменяет имеющееся.
// Товары, исчезнувшие из каталога, пропускаются.
func (b *PersistedBackend) Merge(ctx context.Context, entries []Entry, logger *log.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return b.orders.WithCartRetry(ctx, func(tx domain.Tx) error {
		cart, err := b.orders.GetOrCreateCart(ctx, tx, b.userID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			err := b.reconciler.AddItem(ctx, tx, cart.ID, entry.ProductID, entry.Count, true)
			if errors.Is(err, domain.ErrProductNotFound) {
				logger.WithField("product_id", entry.ProductID).Warn("dropping unknown product from merged cart")
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

var (
	_ Backend = (*SessionBackend)(nil)
	_ Backend = (*PersistedBackend)(nil)
)
