package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TangB5/restaurant/internal/domain"
)

func insertTestDish(t *testing.T, store *Store, stock int32) domain.Dish {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	dish := domain.Dish{
		ID:         uuid.NewString(),
		Name:       "Eru aux tubercules",
		PriceMinor: 3500,
		Stock:      stock,
		Available:  stock > 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := NewDishRepository(store).Create(dish); err != nil {
		t.Fatalf("create dish: %v", err)
	}
	return dish
}

func TestDishRepository_ReserveRelease(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewDishRepository(store)

	dish := insertTestDish(t, store, 3)

	reserved, err := repo.Reserve(dish.ID, 2)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserved.Stock != 1 || !reserved.Available {
		t.Fatalf("unexpected dish after reserve: stock=%d available=%v", reserved.Stock, reserved.Available)
	}

	drained, err := repo.Reserve(dish.ID, 1)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained.Stock != 0 || drained.Available {
		t.Fatal("sold-out dish must be delisted")
	}

	if _, err := repo.Reserve(dish.ID, 1); !errors.Is(err, domain.ErrDishUnavailable) {
		t.Fatalf("expected ErrDishUnavailable, got %v", err)
	}

	released, err := repo.Release(dish.ID, 1)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Stock != 1 || !released.Available {
		t.Fatal("restocked dish must come back to the menu")
	}
}

func TestDishRepository_ReserveDiagnosis(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewDishRepository(store)

	if _, err := repo.Reserve(uuid.NewString(), 1); !errors.Is(err, domain.ErrDishNotFound) {
		t.Fatalf("expected ErrDishNotFound, got %v", err)
	}

	dish := insertTestDish(t, store, 1)
	if _, err := repo.Reserve(dish.ID, 5); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestDishRepository_SaveVersionConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewDishRepository(store)

	dish := insertTestDish(t, store, 5)

	fresh, err := repo.Get(dish.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fresh.PriceMinor = 4000
	if err := repo.Save(fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Повторное сохранение со старой версией должно отклоняться.
	if err := repo.Save(fresh); !errors.Is(err, domain.ErrDishVersionConflict) {
		t.Fatalf("expected ErrDishVersionConflict, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("23505 must be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("22001 must not be a unique violation")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be a unique violation")
	}
}
