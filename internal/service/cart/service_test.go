package cart_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/cart"
	"github.com/vladislavdragonenkov/bgshop/internal/service/dynconfig"
	"github.com/vladislavdragonenkov/bgshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/bgshop/internal/service/lineitem"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/memory"
)

var testNow = time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	sessions *memory.SessionCartStore
	service  *cart.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	store := memory.NewStore()
	sessions := memory.NewSessionCartStore()
	clock := func() time.Time { return testNow }
	config := dynconfig.NewStore(store, dynconfig.DefaultDeliveryConfig(), nil)
	reconciler := lineitem.NewReconciler(clock)
	manager := order.NewManager(store, reconciler, inventory.NewLedger(nil, nil), config, nil, order.WithClock(clock))

	return fixture{
		store:    store,
		sessions: sessions,
		service:  cart.NewService(store, manager, reconciler, sessions, config, nil, cart.WithClock(clock)),
	}
}

func (f fixture) seed(t *testing.T, products ...domain.Product) []domain.Product {
	t.Helper()

	created := make([]domain.Product, 0, len(products))
	require.NoError(t, f.store.WithinTx(context.Background(), func(tx domain.Tx) error {
		for _, p := range products {
			p.IsActive = true
			p.Count = 10
			saved, err := tx.Products().Create(context.Background(), p)
			if err != nil {
				return err
			}
			created = append(created, saved)
		}
		return nil
	}))
	return created
}

func counts(t *testing.T, items []cart.Item) map[int64]int {
	t.Helper()

	result := make(map[int64]int, len(items))
	for _, item := range items {
		result[item.Product.ID] = item.Count
	}
	return result
}

func TestService_SessionCartAddRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seed(t, domain.Product{Title: "Кодовые имена", Price: decimal.NewFromInt(15)})[0]
	anon := cart.Identity{SessionID: "s1"}

	require.NoError(t, f.service.Add(ctx, anon, p.ID, 2, false))
	require.NoError(t, f.service.Add(ctx, anon, p.ID, 3, false))

	items, err := f.service.Items(ctx, anon)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{p.ID: 5}, counts(t, items))

	require.NoError(t, f.service.Add(ctx, anon, p.ID, 1, true))
	require.NoError(t, f.service.Remove(ctx, anon, p.ID, 4))

	raw, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, raw)

	require.NoError(t, f.service.Remove(ctx, anon, p.ID, 1))
	raw, err = f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, raw)

	require.ErrorIs(t, f.service.Add(ctx, anon, 999, 1, false), domain.ErrProductNotFound)
	require.ErrorIs(t, f.service.Add(ctx, anon, p.ID, 0, false), domain.ErrQuantityInvalid)
}

func TestService_RejectsOversizedQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seed(t, domain.Product{Title: "Каркассон", Price: decimal.NewFromInt(25)})[0]

	anon := cart.Identity{SessionID: "s-big"}
	require.NoError(t, f.service.Add(ctx, anon, p.ID, domain.MaxLineItemCount, false))
	require.ErrorIs(t, f.service.Add(ctx, anon, p.ID, 1, false), domain.ErrQuantityTooLarge)

	user := cart.Identity{UserID: 11}
	require.ErrorIs(t, f.service.Add(ctx, user, p.ID, domain.MaxLineItemCount+1, false), domain.ErrQuantityTooLarge)

	items, err := f.service.Items(ctx, user)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestService_PersistedCartCreatesCartOrderOnDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seed(t, domain.Product{Title: "Колонизаторы", Price: decimal.NewFromInt(40)})[0]
	user := cart.Identity{UserID: 7}

	items, err := f.service.Items(ctx, user)
	require.NoError(t, err)
	require.Empty(t, items)

	require.ErrorIs(t, f.service.Remove(ctx, user, p.ID, 1), domain.ErrLineItemNotFound)

	require.NoError(t, f.service.Add(ctx, user, p.ID, 2, false))
	require.NoError(t, f.service.Add(ctx, user, p.ID, 1, false))
	require.NoError(t, f.service.Remove(ctx, user, p.ID, 1))

	items, err = f.service.Items(ctx, user)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{p.ID: 2}, counts(t, items))

	var carts int
	require.NoError(t, f.store.WithinTx(ctx, func(tx domain.Tx) error {
		c, err := tx.Orders().FindCart(ctx, 7)
		if err != nil {
			return err
		}
		require.Equal(t, domain.OrderStatusCart, c.Status)
		carts++
		return nil
	}))
	require.Equal(t, 1, carts)

	require.ErrorIs(t, f.service.Add(ctx, user, 999, 1, false), domain.ErrProductNotFound)
}

func TestService_ItemsCarryDisplayData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	products := f.seed(t,
		domain.Product{
			Title: "Манчкин",
			Price: decimal.NewFromInt(100),
			Sales: []domain.Sale{{Discount: 20, DateFrom: testNow, DateTo: testNow}},
		},
		domain.Product{Title: "Уно", Price: decimal.RequireFromString("9.99")},
	)
	anon := cart.Identity{SessionID: "s2"}

	require.NoError(t, f.service.Add(ctx, anon, products[1].ID, 1, false))
	require.NoError(t, f.service.Add(ctx, anon, products[0].ID, 3, false))

	items, err := f.service.Items(ctx, anon)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, products[0].ID, items[0].Product.ID)
	require.Equal(t, "80.00", items[0].Price.StringFixed(2))
	require.Equal(t, 3, items[0].Count)
	require.True(t, items[0].FreeDelivery)

	require.Equal(t, "9.99", items[1].Price.StringFixed(2))
	require.False(t, items[1].FreeDelivery)
}

func TestService_MergeSessionOverridesOrderCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	products := f.seed(t,
		domain.Product{Title: "Билет на поезд", Price: decimal.NewFromInt(30)},
		domain.Product{Title: "Диксит", Price: decimal.NewFromInt(25)},
	)
	p1, p2 := products[0], products[1]

	user := cart.Identity{UserID: 42}
	require.NoError(t, f.service.Add(ctx, user, p1.ID, 3, false))
	require.NoError(t, f.service.Add(ctx, user, p2.ID, 1, false))

	anon := cart.Identity{SessionID: "login-session"}
	require.NoError(t, f.service.Add(ctx, anon, p1.ID, 2, false))

	require.NoError(t, f.service.Merge(ctx, 42, "login-session"))

	items, err := f.service.Items(ctx, user)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{p1.ID: 2, p2.ID: 1}, counts(t, items))

	raw, err := f.sessions.Load(ctx, "login-session")
	require.NoError(t, err)
	require.Empty(t, raw)
}

func TestService_MergeCreatesCartAndSkipsUnknownProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seed(t, domain.Product{Title: "Эволюция", Price: decimal.NewFromInt(12)})[0]

	session := map[string]int{"999": 4, "not-a-number": 1}
	session[strconv.FormatInt(p.ID, 10)] = 5
	require.NoError(t, f.sessions.Save(ctx, "s3", session))

	require.NoError(t, f.service.Merge(ctx, 9, "s3"))

	items, err := f.service.Items(ctx, cart.Identity{UserID: 9})
	require.NoError(t, err)
	require.Equal(t, map[int64]int{p.ID: 5}, counts(t, items))

	require.NoError(t, f.service.Merge(ctx, 9, "s3"))
}
