package orders

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	outbox   *memory.OutboxRepository
	timeline *memory.TimelineRepository
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()

	svc := NewServiceWithoutMetrics(
		store.DishRepository(),
		store.OrderRepository(),
		store.CategoryRepository(),
		outbox,
		timeline,
		log.New().WithField("component", "orders-test"),
	)

	return &fixture{store: store, outbox: outbox, timeline: timeline, svc: svc}
}

func (f *fixture) seedDish(t *testing.T, stock int32, price int64) domain.Dish {
	t.Helper()

	now := time.Now().UTC()
	dish := domain.Dish{
		ID:         uuid.NewString(),
		CategoryID: uuid.NewString(),
		Name:       "Ndole aux crevettes",
		PriceMinor: price,
		Stock:      stock,
		Available:  stock > 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.store.DishRepository().Create(dish); err != nil {
		t.Fatalf("seed dish: %v", err)
	}
	return dish
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 5, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{
		CustomerID: "customer-1",
		DishID:     dish.ID,
		Quantity:   2,
		Notes:      "sans piment",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.AmountMinor != 9000 {
		t.Fatalf("expected amount 9000, got %d", order.AmountMinor)
	}

	updated, err := f.store.DishRepository().Get(dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if updated.Stock != 3 {
		t.Fatalf("expected stock 3 after reserve, got %d", updated.Stock)
	}

	events, err := f.timeline.List(order.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 1 || events[0].Type != "order.placed" {
		t.Fatalf("expected one order.placed event, got %+v", events)
	}

	pending, err := f.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "order.placed" {
		t.Fatalf("expected one outbox event, got %+v", pending)
	}
}

func TestPlaceOrderDefaultsQuantity(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 5, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", order.Quantity)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 5, 4500)

	if _, err := f.svc.PlaceOrder(PlaceOrderRequest{DishID: dish.ID}); !errors.Is(err, domain.ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
	if _, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1"}); !errors.Is(err, domain.ErrDishRequired) {
		t.Fatalf("expected ErrDishRequired, got %v", err)
	}
}

func TestPlaceOrderStockGuard(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 1, 4500)

	if _, err := f.svc.PlaceOrder(PlaceOrderRequest{
		CustomerID: "customer-1",
		DishID:     dish.ID,
		Quantity:   3,
	}); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	// Последняя порция уходит, блюдо снимается с витрины, delisted-событие в outbox.
	if _, err := f.svc.PlaceOrder(PlaceOrderRequest{
		CustomerID: "customer-1",
		DishID:     dish.ID,
	}); err != nil {
		t.Fatalf("place last portion: %v", err)
	}

	if _, err := f.svc.PlaceOrder(PlaceOrderRequest{
		CustomerID: "customer-2",
		DishID:     dish.ID,
	}); !errors.Is(err, domain.ErrDishUnavailable) {
		t.Fatalf("expected ErrDishUnavailable, got %v", err)
	}

	pending, err := f.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	var sawDelisted bool
	for _, msg := range pending {
		if msg.EventType == "menu.dish_delisted" {
			sawDelisted = true
		}
	}
	if !sawDelisted {
		t.Fatal("expected menu.dish_delisted event after draining stock")
	}
}

func TestPriceChangeDoesNotAffectPlacedOrder(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 5, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	current, err := f.store.DishRepository().Get(dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	current.PriceMinor = 9999
	if err := f.store.DishRepository().Save(current); err != nil {
		t.Fatalf("save dish: %v", err)
	}

	got, err := f.store.OrderRepository().Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.AmountMinor != 4500 {
		t.Fatalf("amount snapshot must survive price change, got %d", got.AmountMinor)
	}

	// Пересчёт — только явное административное действие.
	recomputed, err := f.svc.RecomputeAmount(order.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if recomputed.AmountMinor != 9999 {
		t.Fatalf("expected recomputed amount 9999, got %d", recomputed.AmountMinor)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 3, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	canceled, err := f.svc.CancelOrder(order.ID, "customer-1", "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", canceled.Status)
	}

	restored, err := f.store.DishRepository().Get(dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if restored.Stock != 3 {
		t.Fatalf("expected stock restored to 3, got %d", restored.Stock)
	}

	// Заказ уже failed: повторная отмена отклоняется,
	// остаток возвращён ровно один раз.
	if _, err := f.svc.CancelOrder(order.ID, "customer-1", "again"); !errors.Is(err, domain.ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable on second cancel, got %v", err)
	}
	final, err := f.store.DishRepository().Get(dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if final.Stock != 3 {
		t.Fatalf("double cancel must not double the stock, got %d", final.Stock)
	}
}

func TestCancelOrderGuards(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 3, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if _, err := f.svc.CancelOrder(order.ID, "stranger", "not mine"); !errors.Is(err, domain.ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	// Кухня уже готовит: клиентская отмена запрещена.
	if _, err := f.svc.AdvanceOrders([]string{order.ID}, domain.OrderStatusPreparing); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := f.svc.CancelOrder(order.ID, "customer-1", "too late"); !errors.Is(err, domain.ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable, got %v", err)
	}

	if _, err := f.svc.CancelOrder(uuid.NewString(), "customer-1", ""); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestReorder(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 5, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// Активный заказ повторить нельзя.
	if _, err := f.svc.Reorder(order.ID, "customer-1"); !errors.Is(err, domain.ErrOrderNotReorderable) {
		t.Fatalf("expected ErrOrderNotReorderable, got %v", err)
	}

	if _, err := f.svc.AdvanceOrders([]string{order.ID}, domain.OrderStatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Цена выросла: повтор идёт по новой цене.
	current, err := f.store.DishRepository().Get(dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	current.PriceMinor = 5000
	if err := f.store.DishRepository().Save(current); err != nil {
		t.Fatalf("save dish: %v", err)
	}

	fresh, err := f.svc.Reorder(order.ID, "customer-1")
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if fresh.ID == order.ID {
		t.Fatal("reorder must create a new order")
	}
	if fresh.Quantity != 2 {
		t.Fatalf("reorder must keep quantity, got %d", fresh.Quantity)
	}
	if fresh.AmountMinor != 10000 {
		t.Fatalf("expected fresh snapshot 10000, got %d", fresh.AmountMinor)
	}
	if fresh.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", fresh.Status)
	}
}

func TestReorderGuards(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 2, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := f.svc.AdvanceOrders([]string{order.ID}, domain.OrderStatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := f.svc.Reorder(order.ID, "stranger"); !errors.Is(err, domain.ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	// Остаток распродан: повтор отклоняется стражем склада.
	if _, err := f.svc.Reorder(order.ID, "customer-1"); !errors.Is(err, domain.ErrDishUnavailable) {
		t.Fatalf("expected ErrDishUnavailable, got %v", err)
	}

	// Блюдо удалено из каталога: повтор невозможен.
	if err := f.store.DishRepository().Delete(dish.ID); err != nil {
		t.Fatalf("delete dish: %v", err)
	}
	if _, err := f.svc.Reorder(order.ID, "customer-1"); !errors.Is(err, domain.ErrDishNotFound) {
		t.Fatalf("expected ErrDishNotFound, got %v", err)
	}
}

func TestOrderDetailWithDeletedDish(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 3, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	detail, err := f.svc.OrderDetail(order.ID, "customer-1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.DishMissing {
		t.Fatal("dish must be present before deletion")
	}
	if detail.DishName != "Ndole aux crevettes" {
		t.Fatalf("unexpected dish name %q", detail.DishName)
	}
	if !detail.IsRecent {
		t.Fatal("fresh order must be recent")
	}

	if err := f.store.DishRepository().Delete(dish.ID); err != nil {
		t.Fatalf("delete dish: %v", err)
	}

	detail, err = f.svc.OrderDetail(order.ID, "customer-1")
	if err != nil {
		t.Fatalf("detail after deletion: %v", err)
	}
	if !detail.DishMissing {
		t.Fatal("detail must flag the missing dish")
	}
	if detail.AmountMinor != 4500 {
		t.Fatalf("amount must survive dish deletion, got %d", detail.AmountMinor)
	}

	if _, err := f.svc.OrderDetail(order.ID, "stranger"); !errors.Is(err, domain.ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestConcurrentPlacementSingleWinner(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 1, 4500)

	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.PlaceOrder(PlaceOrderRequest{
				CustomerID: "customer-1",
				DishID:     dish.ID,
			}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful placement, got %d", succeeded)
	}

	final, err := f.store.DishRepository().Get(dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if final.Stock != 0 {
		t.Fatalf("stock must never go negative, got %d", final.Stock)
	}
}

func TestTimelineOwnership(t *testing.T) {
	f := newFixture(t)
	dish := f.seedDish(t, 3, 4500)

	order, err := f.svc.PlaceOrder(PlaceOrderRequest{CustomerID: "customer-1", DishID: dish.ID})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := f.svc.CancelOrder(order.ID, "customer-1", "test"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	events, err := f.svc.Timeline(order.ID, "customer-1")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected placed+canceled events, got %d", len(events))
	}

	if _, err := f.svc.Timeline(order.ID, "stranger"); !errors.Is(err, domain.ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}
