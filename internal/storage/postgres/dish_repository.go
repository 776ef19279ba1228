package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TangB5/restaurant/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	dishColumns = `id, category_id, name, description, price_minor, stock, available, is_special, version, created_at, updated_at`
)

// querier покрывает *sql.DB и *sql.Tx, чтобы резервирование остатка
// работало и отдельно, и внутри транзакции размещения заказа.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type dishRepository struct {
	db *sql.DB
}

// NewDishRepository создаёт PostgreSQL-реализацию DishRepository.
func NewDishRepository(store *Store) domain.DishRepository {
	return &dishRepository{db: store.DB()}
}

func (r *dishRepository) Create(dish domain.Dish) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dishes (
			id, category_id, name, description, price_minor, stock,
			available, is_special, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		dish.ID, nullableID(dish.CategoryID), dish.Name, dish.Description,
		dish.PriceMinor, dish.Stock, dish.Available, dish.IsSpecial,
		dish.Version, dish.CreatedAt, dish.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDishVersionConflict
		}
		return fmt.Errorf("insert dish: %w", err)
	}

	return nil
}

func (r *dishRepository) Get(id string) (domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	dish, err := scanDish(r.db.QueryRowContext(ctx, `
		SELECT `+dishColumns+`
		FROM dishes
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Dish{}, domain.ErrDishNotFound
		}
		return domain.Dish{}, fmt.Errorf("select dish: %w", err)
	}

	return dish, nil
}

func (r *dishRepository) Save(dish domain.Dish) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE dishes
		SET category_id = $1,
		    name = $2,
		    description = $3,
		    price_minor = $4,
		    stock = $5,
		    available = $6,
		    is_special = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		nullableID(dish.CategoryID), dish.Name, dish.Description,
		dish.PriceMinor, dish.Stock, dish.Available, dish.IsSpecial,
		time.Now().UTC(), dish.ID, dish.Version,
	)
	if err != nil {
		return fmt.Errorf("update dish: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM dishes WHERE id = $1`, dish.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrDishNotFound
		}
		if err != nil {
			return fmt.Errorf("check dish exists: %w", err)
		}
		return domain.ErrDishVersionConflict
	}

	return nil
}

// Delete удаляет блюдо; ссылки в заказах обнуляются на уровне схемы
// (ON DELETE SET NULL), история заказов при этом сохраняется.
func (r *dishRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM dishes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDishNotFound
	}

	return nil
}

func (r *dishRepository) ListOrderable(categoryID string) ([]domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT d.id, d.category_id, d.name, d.description, d.price_minor, d.stock,
		       d.available, d.is_special, d.version, d.created_at, d.updated_at
		FROM dishes d
		LEFT JOIN categories c ON c.id = d.category_id
		WHERE d.available AND d.stock > 0
	`
	args := []any{}
	if categoryID != "" {
		query += ` AND d.category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY COALESCE(c.display_order, 0), LOWER(d.name)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orderable dishes: %w", err)
	}
	defer rows.Close()

	return collectDishes(rows)
}

func (r *dishRepository) ListAll() ([]domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dishColumns+`
		FROM dishes
		ORDER BY LOWER(name)
	`)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	defer rows.Close()

	return collectDishes(rows)
}

func (r *dishRepository) Reserve(dishID string, qty int32) (domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return reserveStock(ctx, r.db, dishID, qty)
}

func (r *dishRepository) Release(dishID string, qty int32) (domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return releaseStock(ctx, r.db, dishID, qty)
}

// reserveStock списывает остаток одним UPDATE: проверка условия и запись
// происходят атомарно, поэтому конкурентные заказы не могут уйти в минус.
func reserveStock(ctx context.Context, q querier, dishID string, qty int32) (domain.Dish, error) {
	dish, err := scanDish(q.QueryRowContext(ctx, `
		UPDATE dishes
		SET stock = stock - $2,
		    available = (stock - $2) > 0,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND available
		  AND stock >= $2
		RETURNING `+dishColumns,
		dishID, qty,
	))
	if err == nil {
		return dish, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Dish{}, fmt.Errorf("reserve stock: %w", err)
	}

	return domain.Dish{}, diagnoseReserveFailure(ctx, q, dishID)
}

// diagnoseReserveFailure различает причины отказа и заодно чинит
// устаревший флаг доступности у распроданного блюда.
func diagnoseReserveFailure(ctx context.Context, q querier, dishID string) error {
	var (
		available bool
		stock     int32
	)
	err := q.QueryRowContext(ctx, `
		SELECT available, stock FROM dishes WHERE id = $1
	`, dishID).Scan(&available, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDishNotFound
	}
	if err != nil {
		return fmt.Errorf("diagnose reserve failure: %w", err)
	}

	if !available {
		return domain.ErrDishUnavailable
	}
	if stock <= 0 {
		if _, err := q.ExecContext(ctx, `
			UPDATE dishes
			SET available = FALSE, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND stock <= 0
		`, dishID); err != nil {
			return fmt.Errorf("delist sold-out dish: %w", err)
		}
	}
	return domain.ErrOutOfStock
}

// releaseStock возвращает остаток и поднимает флаг доступности:
// пополнение всегда возвращает блюдо на витрину.
func releaseStock(ctx context.Context, q querier, dishID string, qty int32) (domain.Dish, error) {
	dish, err := scanDish(q.QueryRowContext(ctx, `
		UPDATE dishes
		SET stock = stock + $2,
		    available = TRUE,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+dishColumns,
		dishID, qty,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Dish{}, domain.ErrDishNotFound
		}
		return domain.Dish{}, fmt.Errorf("release stock: %w", err)
	}

	return dish, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDish(row rowScanner) (domain.Dish, error) {
	var (
		dish       domain.Dish
		categoryID sql.NullString
	)
	if err := row.Scan(
		&dish.ID, &categoryID, &dish.Name, &dish.Description,
		&dish.PriceMinor, &dish.Stock, &dish.Available, &dish.IsSpecial,
		&dish.Version, &dish.CreatedAt, &dish.UpdatedAt,
	); err != nil {
		return domain.Dish{}, err
	}
	dish.CategoryID = categoryID.String
	return dish, nil
}

func collectDishes(rows *sql.Rows) ([]domain.Dish, error) {
	dishes := make([]domain.Dish, 0)
	for rows.Next() {
		dish, err := scanDish(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dish row: %w", err)
		}
		dishes = append(dishes, dish)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dish rows: %w", err)
	}

	return dishes, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.DishRepository = (*dishRepository)(nil)
