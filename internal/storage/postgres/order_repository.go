package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TangB5/restaurant/internal/domain"
)

const orderColumns = `id, customer_id, dish_id, quantity, amount_minor, status, notes, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, q domain.OrderQuery) ([]domain.Order, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	where := ` WHERE o.customer_id = $1`
	args := []any{customerID}

	if q.Status != nil {
		args = append(args, string(*q.Status))
		where += fmt.Sprintf(` AND o.status = $%d`, len(args))
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		// Поиск покрывает заметки заказа и название блюда.
		where += fmt.Sprintf(` AND (o.notes ILIKE $%d OR d.name ILIKE $%d)`, len(args), len(args))
	}

	from := ` FROM orders o LEFT JOIN dishes d ON d.id = o.dish_id`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, q.Limit(), q.Offset())
	query := `
		SELECT o.id, o.customer_id, o.dish_id, o.quantity, o.amount_minor,
		       o.status, o.notes, o.version, o.created_at, o.updated_at
	` + from + where + fmt.Sprintf(`
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) ListByStatus(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $2`, string(status), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    amount_minor = $2,
		    notes = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		  AND version = $6
	`,
		string(order.Status), order.AmountMinor, order.Notes,
		time.Now().UTC(), order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

// PlaceReserving списывает остаток и создаёт заказ в одной транзакции.
// При отказе резервирования заказ не появляется вовсе.
func (r *orderRepository) PlaceReserving(order domain.Order) (domain.Order, domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.Dish{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var dish domain.Dish
	dish, err = reserveStock(ctx, tx, order.DishID, order.Quantity)
	if err != nil {
		// Заказ не вставлен, а снятие распроданного блюда с витрины
		// должно пережить отказ, поэтому фиксируем транзакцию.
		_ = tx.Commit()
		return domain.Order{}, domain.Dish{}, err
	}

	// Снимок цены фиксируется из той же строки, которую только что
	// заблокировал UPDATE, поэтому цена не может измениться между шагами.
	if order.AmountMinor == 0 {
		order.AmountMinor = dish.PriceMinor * int64(order.Quantity)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, dish_id, quantity, amount_minor,
			status, notes, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.CustomerID, nullableID(order.DishID), order.Quantity,
		order.AmountMinor, string(order.Status), order.Notes, order.Version,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrOrderVersionConflict
			return domain.Order{}, domain.Dish{}, err
		}
		return domain.Order{}, domain.Dish{}, fmt.Errorf("insert order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, domain.Dish{}, fmt.Errorf("commit place order: %w", err)
	}

	return order, dish, nil
}

// FinishReleasing переводит заказ в терминальный статус и возвращает остаток
// на склад в одной транзакции. Если блюдо удалено, возврат пропускается.
func (r *orderRepository) FinishReleasing(order domain.Order) (domain.Order, domain.Dish, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.Dish{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    notes = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`,
		string(order.Status), order.Notes, time.Now().UTC(), order.ID, order.Version,
	)
	if err != nil {
		return domain.Order{}, domain.Dish{}, fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, domain.Dish{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := r.orderExists(ctx, order.ID)
		if checkErr != nil {
			err = checkErr
			return domain.Order{}, domain.Dish{}, err
		}
		if !exists {
			err = domain.ErrOrderNotFound
		} else {
			err = domain.ErrOrderVersionConflict
		}
		return domain.Order{}, domain.Dish{}, err
	}

	var dish domain.Dish
	if order.DishID != "" {
		dish, err = releaseStock(ctx, tx, order.DishID, order.Quantity)
		if errors.Is(err, domain.ErrDishNotFound) {
			dish, err = domain.Dish{}, nil
		}
		if err != nil {
			return domain.Order{}, domain.Dish{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, domain.Dish{}, fmt.Errorf("commit finish order: %w", err)
	}

	order.Version++
	return order, dish, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		dishID sql.NullString
		status string
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &dishID, &order.Quantity,
		&order.AmountMinor, &status, &order.Notes, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.DishID = dishID.String
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
