package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	outbox *memory.OutboxRepository
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	outbox := memory.NewOutboxRepository()
	svc := NewService(
		store.DishRepository(),
		store.CategoryRepository(),
		outbox,
		log.New().WithField("component", "catalog-test"),
	)
	return &fixture{store: store, outbox: outbox, svc: svc}
}

func (f *fixture) seedCategory(t *testing.T, name string, order int32) domain.Category {
	t.Helper()

	category, err := f.svc.CreateCategory(CategoryRequest{
		Name:         name,
		DisplayOrder: order,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return category
}

func TestCreateDish(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Plats principaux", 1)

	dish, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Poulet DG",
		PriceMinor: 5500,
		Stock:      10,
		Available:  true,
	})
	if err != nil {
		t.Fatalf("create dish: %v", err)
	}
	if !dish.IsOrderable() {
		t.Fatal("stocked dish must be orderable")
	}

	// Нулевой остаток принудительно снимает блюдо с витрины.
	hidden, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Okok sucré",
		PriceMinor: 3000,
		Stock:      0,
		Available:  true,
	})
	if err != nil {
		t.Fatalf("create sold-out dish: %v", err)
	}
	if hidden.Available {
		t.Fatal("sold-out dish must not be available")
	}
}

func TestCreateDishValidation(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Desserts", 3)

	cases := []struct {
		name string
		req  DishRequest
		want error
	}{
		{"missing name", DishRequest{CategoryID: category.ID, PriceMinor: 100}, domain.ErrDishNameRequired},
		{"missing category", DishRequest{Name: "Beignets"}, domain.ErrCategoryRequired},
		{"negative price", DishRequest{CategoryID: category.ID, Name: "Beignets", PriceMinor: -1}, domain.ErrPriceNegative},
		{"unknown category", DishRequest{CategoryID: uuid.NewString(), Name: "Beignets"}, domain.ErrCategoryNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateDish(tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateDishKeepsStock(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Plats principaux", 1)

	dish, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Poulet DG",
		PriceMinor: 5500,
		Stock:      10,
		Available:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := f.svc.UpdateDish(dish.ID, DishRequest{
		CategoryID: category.ID,
		Name:       "Poulet DG royal",
		PriceMinor: 6500,
		Stock:      999, // игнорируется: остаток меняет только Restock
		Available:  true,
		IsSpecial:  true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Poulet DG royal" || updated.PriceMinor != 6500 || !updated.IsSpecial {
		t.Fatalf("card fields not applied: %+v", updated)
	}
	if updated.Stock != 10 {
		t.Fatalf("update must not touch stock, got %d", updated.Stock)
	}
	if updated.Version != dish.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
}

func TestSetAvailable(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Plats principaux", 1)

	dish, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Eru",
		PriceMinor: 3500,
		Stock:      4,
		Available:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	hidden, err := f.svc.SetAvailable(dish.ID, false)
	if err != nil {
		t.Fatalf("hide: %v", err)
	}
	if hidden.Available {
		t.Fatal("dish must be hidden")
	}

	shown, err := f.svc.SetAvailable(dish.ID, true)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !shown.Available {
		t.Fatal("dish must be visible again")
	}
}

func TestSetAvailableRequiresStock(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Plats principaux", 1)

	dish, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Eru",
		PriceMinor: 3500,
		Stock:      0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.SetAvailable(dish.ID, true); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Plats principaux", 1)

	dish, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Koki",
		PriceMinor: 2500,
		Stock:      0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	restocked, err := f.svc.Restock(dish.ID, 12)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if restocked.Stock != 12 {
		t.Fatalf("expected stock 12, got %d", restocked.Stock)
	}
	// Пополнение возвращает блюдо на витрину.
	if !restocked.Available {
		t.Fatal("restocked dish must be relisted")
	}

	pending, err := f.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "menu.dish_restocked" {
		t.Fatalf("expected menu.dish_restocked event, got %+v", pending)
	}

	if _, err := f.svc.Restock(dish.ID, 0); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
	if _, err := f.svc.Restock(uuid.NewString(), 1); !errors.Is(err, domain.ErrDishNotFound) {
		t.Fatalf("expected ErrDishNotFound, got %v", err)
	}
}

func TestDeleteDish(t *testing.T) {
	f := newFixture(t)
	category := f.seedCategory(t, "Plats principaux", 1)

	dish, err := f.svc.CreateDish(DishRequest{
		CategoryID: category.ID,
		Name:       "Sanga",
		PriceMinor: 2000,
		Stock:      3,
		Available:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.DeleteDish(dish.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetDish(dish.ID); !errors.Is(err, domain.ErrDishNotFound) {
		t.Fatalf("expected ErrDishNotFound, got %v", err)
	}
	if err := f.svc.DeleteDish(dish.ID); !errors.Is(err, domain.ErrDishNotFound) {
		t.Fatalf("expected ErrDishNotFound on double delete, got %v", err)
	}
}

func TestListMenuGroupsByCategory(t *testing.T) {
	f := newFixture(t)
	mains := f.seedCategory(t, "Plats principaux", 1)
	desserts := f.seedCategory(t, "Desserts", 2)
	f.seedCategory(t, "Boissons", 3) // без блюд — в меню не попадает

	mustCreate := func(categoryID, name string, stock int32) {
		t.Helper()
		if _, err := f.svc.CreateDish(DishRequest{
			CategoryID: categoryID,
			Name:       name,
			PriceMinor: 1000,
			Stock:      stock,
			Available:  stock > 0,
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	mustCreate(mains.ID, "Ndole", 5)
	mustCreate(mains.ID, "Eru", 0) // распродано — не на витрине
	mustCreate(desserts.ID, "Beignets", 8)

	sections, err := f.svc.ListMenu("")
	if err != nil {
		t.Fatalf("list menu: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Category.ID != mains.ID || sections[1].Category.ID != desserts.ID {
		t.Fatalf("sections out of display order: %+v", sections)
	}
	if len(sections[0].Dishes) != 1 || sections[0].Dishes[0].Name != "Ndole" {
		t.Fatalf("unexpected mains section: %+v", sections[0].Dishes)
	}

	filtered, err := f.svc.ListMenu(desserts.ID)
	if err != nil {
		t.Fatalf("filtered menu: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Category.ID != desserts.ID {
		t.Fatalf("expected only desserts, got %+v", filtered)
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.CreateCategory(CategoryRequest{}); !errors.Is(err, domain.ErrCategoryNameRequired) {
		t.Fatalf("expected ErrCategoryNameRequired, got %v", err)
	}

	category, err := f.svc.CreateCategory(CategoryRequest{Name: "Entrées", Active: true})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if category.ID == "" || category.CreatedAt.After(time.Now().Add(time.Minute)) {
		t.Fatalf("unexpected category %+v", category)
	}

	list, err := f.svc.ListCategories()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one category, got %d", len(list))
	}
}
