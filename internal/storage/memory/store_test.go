package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/memory"
)

var errBoom = errors.New("boom")

func seedProduct(t *testing.T, store *memory.Store, count int) domain.Product {
	t.Helper()

	var created domain.Product
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		var err error
		created, err = tx.Products().Create(context.Background(), domain.Product{
			Title:    "Catan",
			Price:    decimal.RequireFromString("100.00"),
			Count:    count,
			IsActive: true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return created
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	product := seedProduct(t, store, 10)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.Products().AddStock(ctx, product.ID, -5); err != nil {
			return err
		}
		if _, err := tx.Orders().Create(ctx, domain.NewOrder(1, domain.OrderStatusEditing, time.Now())); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	_ = store.WithinTx(ctx, func(tx domain.Tx) error {
		got, err := tx.Products().Get(ctx, product.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if got.Count != 10 {
			t.Fatalf("stock must be untouched after rollback, got %d", got.Count)
		}
		orders, err := tx.Orders().ListByUser(ctx, 1)
		if err != nil {
			t.Fatalf("list orders: %v", err)
		}
		if len(orders) != 0 {
			t.Fatalf("order must not survive rollback: %+v", orders)
		}
		return nil
	})
}

func TestStore_WithinTxCanceledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(domain.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled error without calling fn, got %v called=%v", err, called)
	}
}

func TestOrderRepository_SingleCartPerUser(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		first, err := tx.Orders().Create(ctx, domain.NewOrder(5, domain.OrderStatusCart, time.Now()))
		if err != nil {
			return err
		}
		if _, err := tx.Orders().Create(ctx, domain.NewOrder(5, domain.OrderStatusCart, time.Now())); !errors.Is(err, domain.ErrCartOrderExists) {
			t.Fatalf("expected ErrCartOrderExists, got %v", err)
		}
		cart, err := tx.Orders().FindCart(ctx, 5)
		if err != nil {
			return err
		}
		if cart.ID != first.ID {
			t.Fatalf("unexpected cart id %d", cart.ID)
		}
		if _, err := tx.Orders().FindCart(ctx, 6); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound for user without cart, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestOrderRepository_ListByUserSkipsCartAndInactive(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		repo := tx.Orders()
		if _, err := repo.Create(ctx, domain.NewOrder(1, domain.OrderStatusCart, base)); err != nil {
			return err
		}
		older, err := repo.Create(ctx, domain.NewOrder(1, domain.OrderStatusAccepted, base))
		if err != nil {
			return err
		}
		newer, err := repo.Create(ctx, domain.NewOrder(1, domain.OrderStatusEditing, base.Add(time.Hour)))
		if err != nil {
			return err
		}
		hidden := domain.NewOrder(1, domain.OrderStatusRejected, base)
		hidden.IsActive = false
		if _, err := repo.Create(ctx, hidden); err != nil {
			return err
		}
		if _, err := repo.Create(ctx, domain.NewOrder(2, domain.OrderStatusAccepted, base)); err != nil {
			return err
		}

		orders, err := repo.ListByUser(ctx, 1)
		if err != nil {
			return err
		}
		if len(orders) != 2 || orders[0].ID != newer.ID || orders[1].ID != older.ID {
			t.Fatalf("unexpected history: %+v", orders)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestLineItemRepository_UniquePerOrderAndProduct(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	product := seedProduct(t, store, 3)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Create(ctx, domain.NewOrder(1, domain.OrderStatusCart, time.Now()))
		if err != nil {
			return err
		}
		item, err := tx.LineItems().Create(ctx, domain.LineItem{OrderID: order.ID, ProductID: product.ID, Price: product.Price, Count: 1})
		if err != nil {
			return err
		}
		if _, err := tx.LineItems().Create(ctx, domain.LineItem{OrderID: order.ID, ProductID: product.ID, Count: 2}); !errors.Is(err, domain.ErrLineItemExists) {
			t.Fatalf("expected ErrLineItemExists, got %v", err)
		}
		if _, err := tx.LineItems().Create(ctx, domain.LineItem{OrderID: order.ID, ProductID: 999, Count: 2}); !errors.Is(err, domain.ErrProductNotFound) {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}

		item.Count = 4
		if err := tx.LineItems().Update(ctx, item); err != nil {
			return err
		}
		got, err := tx.LineItems().Get(ctx, order.ID, product.ID)
		if err != nil {
			return err
		}
		if got.Count != 4 {
			t.Fatalf("unexpected count %d", got.Count)
		}

		if err := tx.LineItems().Delete(ctx, item.ID); err != nil {
			return err
		}
		if _, err := tx.LineItems().Get(ctx, order.ID, product.ID); !errors.Is(err, domain.ErrLineItemNotFound) {
			t.Fatalf("expected ErrLineItemNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestPaymentRepository_OnePerOrder(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Create(ctx, domain.NewOrder(1, domain.OrderStatusAccepted, time.Now()))
		if err != nil {
			return err
		}
		if _, err := tx.Payments().Create(ctx, domain.Payment{OrderID: order.ID, ExternalID: "p-1"}); err != nil {
			return err
		}
		if _, err := tx.Payments().Create(ctx, domain.Payment{OrderID: order.ID, ExternalID: "p-2"}); !errors.Is(err, domain.ErrAlreadyPaid) {
			t.Fatalf("expected ErrAlreadyPaid, got %v", err)
		}
		got, err := tx.Payments().GetByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if got.ExternalID != "p-1" {
			t.Fatalf("unexpected payment %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestOutbox_AutoCommitLifecycle(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	outbox := store.Outbox()

	first, err := outbox.Enqueue(ctx, domain.OutboxMessage{EventType: domain.TaskOrderConfirmed, AggregateID: "1"})
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	second, err := outbox.Enqueue(ctx, domain.OutboxMessage{EventType: domain.TaskPaymentSimulate, AggregateID: "2"})
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if first.ID == "" || second.ID == "" {
		t.Fatal("expected generated ids")
	}

	pending, err := outbox.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("unexpected pending order: %+v", pending)
	}

	if err := outbox.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := outbox.MarkFailed(ctx, second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := outbox.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}

	stats, err := outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDeliveryConfigRepository(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.DeliveryConfig().Get(ctx); !errors.Is(err, domain.ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got %v", err)
		}
		return tx.DeliveryConfig().Save(ctx, domain.DeliveryConfig{OrdinaryDeliveryCost: decimal.NewFromInt(5)})
	})
	if err != nil {
		t.Fatalf("save config: %v", err)
	}

	_ = store.WithinTx(ctx, func(tx domain.Tx) error {
		cfg, err := tx.DeliveryConfig().Get(ctx)
		if err != nil {
			t.Fatalf("get config: %v", err)
		}
		if !cfg.OrdinaryDeliveryCost.Equal(decimal.NewFromInt(5)) || cfg.UpdatedAt.IsZero() {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		return nil
	})
}

func TestTimelineRepository_ListOrdered(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: 1, Type: domain.TimelineOrderAccepted, Occurred: now.Add(time.Second)}); err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: 1, Type: domain.TimelineOrderEditing, Occurred: now}); err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: 2, Type: domain.TimelineOrderCreated})
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	_ = store.WithinTx(ctx, func(tx domain.Tx) error {
		events, err := tx.Timeline().List(ctx, 1)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) != 2 || events[0].Type != domain.TimelineOrderEditing {
			t.Fatalf("unexpected events: %+v", events)
		}
		return nil
	})
}

func TestSessionCartStore(t *testing.T) {
	store := memory.NewSessionCartStore()
	ctx := context.Background()

	cart, err := store.Load(ctx, "s1")
	if err != nil || len(cart) != 0 {
		t.Fatalf("expected empty cart, got %v %v", cart, err)
	}

	cart["1"] = 2
	if err := store.Save(ctx, "s1", cart); err != nil {
		t.Fatalf("save: %v", err)
	}
	cart["1"] = 100

	loaded, _ := store.Load(ctx, "s1")
	if loaded["1"] != 2 {
		t.Fatalf("store must keep its own copy, got %v", loaded)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	loaded, _ = store.Load(ctx, "s1")
	if len(loaded) != 0 {
		t.Fatalf("expected cleared cart, got %v", loaded)
	}
}
