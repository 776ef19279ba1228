package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TangB5/restaurant/internal/domain"
)

// Store — in-memory хранилище каталога и заказов для локальной разработки и тестов.
// Оба агрегата живут под одним мьютексом, поэтому парные записи «резерв + заказ»
// атомарны ровно так же, как в SQL-реализации с транзакцией.
type Store struct {
	mu         sync.RWMutex
	dishes     map[string]domain.Dish
	categories map[string]domain.Category
	orders     map[string]domain.Order
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		dishes:     make(map[string]domain.Dish),
		categories: make(map[string]domain.Category),
		orders:     make(map[string]domain.Order),
	}
}

// DishRepository возвращает представление хранилища для каталога.
func (s *Store) DishRepository() domain.DishRepository {
	return &dishRepository{store: s}
}

// CategoryRepository возвращает представление хранилища для категорий меню.
func (s *Store) CategoryRepository() domain.CategoryRepository {
	return &categoryRepository{store: s}
}

// OrderRepository возвращает представление хранилища для заказов.
func (s *Store) OrderRepository() domain.OrderRepository {
	return &orderRepository{store: s}
}

// reserveLocked списывает остаток под мьютексом вызывающего.
func (s *Store) reserveLocked(dishID string, qty int32) (domain.Dish, error) {
	dish, ok := s.dishes[dishID]
	if !ok {
		return domain.Dish{}, domain.ErrDishNotFound
	}
	if !dish.Available {
		return domain.Dish{}, domain.ErrDishUnavailable
	}
	if dish.Stock < qty {
		// Самолечение устаревшего флага: распроданное блюдо уходит с витрины.
		if dish.Stock <= 0 {
			dish.Available = false
			dish.Version++
			dish.UpdatedAt = time.Now().UTC()
			s.dishes[dishID] = dish
		}
		return domain.Dish{}, domain.ErrOutOfStock
	}

	dish.Stock -= qty
	if dish.Stock == 0 {
		dish.Available = false
	}
	dish.Version++
	dish.UpdatedAt = time.Now().UTC()
	s.dishes[dishID] = dish
	return dish, nil
}

// releaseLocked возвращает остаток под мьютексом вызывающего.
// Пополнение всегда возвращает блюдо на витрину.
func (s *Store) releaseLocked(dishID string, qty int32) (domain.Dish, error) {
	dish, ok := s.dishes[dishID]
	if !ok {
		return domain.Dish{}, domain.ErrDishNotFound
	}

	dish.Stock += qty
	dish.Available = true
	dish.Version++
	dish.UpdatedAt = time.Now().UTC()
	s.dishes[dishID] = dish
	return dish, nil
}

// categoryOrderLocked возвращает ключ сортировки витрины для блюда.
func (s *Store) categoryOrderLocked(dish domain.Dish) int32 {
	if cat, ok := s.categories[dish.CategoryID]; ok {
		return cat.DisplayOrder
	}
	return 0
}

type dishRepository struct {
	store *Store
}

func (r *dishRepository) Create(dish domain.Dish) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.dishes[dish.ID]; exists {
		return domain.ErrDishVersionConflict
	}
	r.store.dishes[dish.ID] = dish
	return nil
}

func (r *dishRepository) Get(id string) (domain.Dish, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	dish, ok := r.store.dishes[id]
	if !ok {
		return domain.Dish{}, domain.ErrDishNotFound
	}
	return dish, nil
}

func (r *dishRepository) Save(dish domain.Dish) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.dishes[dish.ID]
	if !ok {
		return domain.ErrDishNotFound
	}
	if current.Version != dish.Version {
		return domain.ErrDishVersionConflict
	}
	dish.Version++
	r.store.dishes[dish.ID] = dish
	return nil
}

// Delete удаляет блюдо и обнуляет ссылку в исторических заказах (SET NULL).
func (r *dishRepository) Delete(id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.dishes[id]; !ok {
		return domain.ErrDishNotFound
	}
	delete(r.store.dishes, id)

	for orderID, order := range r.store.orders {
		if order.DishID == id {
			order.DishID = ""
			r.store.orders[orderID] = order
		}
	}
	return nil
}

func (r *dishRepository) ListOrderable(categoryID string) ([]domain.Dish, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Dish, 0, len(r.store.dishes))
	for _, dish := range r.store.dishes {
		if !dish.IsOrderable() {
			continue
		}
		if categoryID != "" && dish.CategoryID != categoryID {
			continue
		}
		result = append(result, dish)
	}

	sort.Slice(result, func(i, j int) bool {
		oi := r.store.categoryOrderLocked(result[i])
		oj := r.store.categoryOrderLocked(result[j])
		if oi != oj {
			return oi < oj
		}
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})

	return result, nil
}

func (r *dishRepository) ListAll() ([]domain.Dish, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Dish, 0, len(r.store.dishes))
	for _, dish := range r.store.dishes {
		result = append(result, dish)
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func (r *dishRepository) Reserve(dishID string, qty int32) (domain.Dish, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.reserveLocked(dishID, qty)
}

func (r *dishRepository) Release(dishID string, qty int32) (domain.Dish, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.releaseLocked(dishID, qty)
}

type categoryRepository struct {
	store *Store
}

func (r *categoryRepository) Create(category domain.Category) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.categories[category.ID]; exists {
		return domain.ErrDishVersionConflict
	}
	r.store.categories[category.ID] = category
	return nil
}

func (r *categoryRepository) Get(id string) (domain.Category, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	category, ok := r.store.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return category, nil
}

func (r *categoryRepository) List() ([]domain.Category, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Category, 0, len(r.store.categories))
	for _, category := range r.store.categories {
		if !category.Active {
			continue
		}
		result = append(result, category)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DisplayOrder != result[j].DisplayOrder {
			return result[i].DisplayOrder < result[j].DisplayOrder
		}
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

var (
	_ domain.DishRepository     = (*dishRepository)(nil)
	_ domain.CategoryRepository = (*categoryRepository)(nil)
)
