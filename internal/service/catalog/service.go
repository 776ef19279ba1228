// Package catalog реализует бэк-офисное управление меню: карточки блюд,
// категории, остатки и флаг витрины.
package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/messaging/kafka"
)

// maxSaveAttempts ограничивает повторы при конфликте версий карточки блюда.
const maxSaveAttempts = 3

// Service предоставляет операции каталога для бэк-офиса и витрины.
type Service struct {
	dishes     domain.DishRepository
	categories domain.CategoryRepository
	outbox     domain.OutboxRepository
	logger     *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(
	dishes domain.DishRepository,
	categories domain.CategoryRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{
		dishes:     dishes,
		categories: categories,
		outbox:     outbox,
		logger:     logger,
	}
}

// DishRequest — карточка блюда, как её присылает бэк-офис.
type DishRequest struct {
	CategoryID  string
	Name        string
	Description string
	PriceMinor  int64
	Stock       int32
	Available   bool
	IsSpecial   bool
}

// CreateDish добавляет блюдо в каталог.
func (s *Service) CreateDish(req DishRequest) (domain.Dish, error) {
	now := time.Now().UTC()
	dish := domain.Dish{
		ID:          uuid.NewString(),
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		PriceMinor:  req.PriceMinor,
		Stock:       req.Stock,
		Available:   req.Available,
		IsSpecial:   req.IsSpecial,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// Нулевой остаток сразу снимает блюдо с витрины, что бы ни прислал клиент.
	dish.SyncAvailability()
	if errs := dish.ValidateInvariants(); len(errs) > 0 {
		return domain.Dish{}, errs[0]
	}
	if s.categories != nil {
		if _, err := s.categories.Get(dish.CategoryID); err != nil {
			return domain.Dish{}, err
		}
	}

	if err := s.dishes.Create(dish); err != nil {
		return domain.Dish{}, err
	}

	s.logger.WithFields(log.Fields{
		"dish_id": dish.ID,
		"name":    dish.Name,
		"stock":   dish.Stock,
	}).Info("dish created")
	return dish, nil
}

// UpdateDish перезаписывает карточку блюда. Остаток меняется только через
// Restock: правка карточки не должна гоняться с резервами заказов.
func (s *Service) UpdateDish(dishID string, req DishRequest) (domain.Dish, error) {
	for attempt := 0; ; attempt++ {
		dish, err := s.dishes.Get(dishID)
		if err != nil {
			return domain.Dish{}, err
		}

		dish.CategoryID = req.CategoryID
		dish.Name = req.Name
		dish.Description = req.Description
		dish.PriceMinor = req.PriceMinor
		dish.Available = req.Available
		dish.IsSpecial = req.IsSpecial
		dish.UpdatedAt = time.Now().UTC()
		dish.SyncAvailability()

		if errs := dish.ValidateInvariants(); len(errs) > 0 {
			return domain.Dish{}, errs[0]
		}

		err = s.dishes.Save(dish)
		if domain.IsVersionConflict(err) && attempt < maxSaveAttempts-1 {
			continue
		}
		if err != nil {
			return domain.Dish{}, err
		}
		dish.Version++
		return dish, nil
	}
}

// SetAvailable вручную показывает или скрывает блюдо на витрине.
// Показать распроданное блюдо нельзя: сначала пополнение.
func (s *Service) SetAvailable(dishID string, available bool) (domain.Dish, error) {
	for attempt := 0; ; attempt++ {
		dish, err := s.dishes.Get(dishID)
		if err != nil {
			return domain.Dish{}, err
		}
		if available && dish.Stock <= 0 {
			return domain.Dish{}, domain.ErrOutOfStock
		}

		dish.Available = available
		dish.UpdatedAt = time.Now().UTC()

		err = s.dishes.Save(dish)
		if domain.IsVersionConflict(err) && attempt < maxSaveAttempts-1 {
			continue
		}
		if err != nil {
			return domain.Dish{}, err
		}
		dish.Version++

		s.logger.WithFields(log.Fields{
			"dish_id":   dish.ID,
			"available": available,
		}).Info("dish availability changed")
		return dish, nil
	}
}

// Restock атомарно добавляет qty единиц к остатку и возвращает блюдо на витрину.
func (s *Service) Restock(dishID string, qty int32) (domain.Dish, error) {
	if qty <= 0 {
		return domain.Dish{}, domain.ErrQuantityInvalid
	}

	dish, err := s.dishes.Release(dishID, qty)
	if err != nil {
		return domain.Dish{}, err
	}

	s.logger.WithFields(log.Fields{
		"dish_id": dish.ID,
		"added":   qty,
		"stock":   dish.Stock,
	}).Info("dish restocked")
	s.emitMenuEvent(dish, kafka.EventTypeDishRestocked)
	return dish, nil
}

// DeleteDish удаляет блюдо из каталога. Исторические заказы переживают
// удаление: хранилище обнуляет их ссылку на блюдо.
func (s *Service) DeleteDish(dishID string) error {
	if err := s.dishes.Delete(dishID); err != nil {
		return err
	}
	s.logger.WithField("dish_id", dishID).Info("dish deleted")
	return nil
}

// MenuSection — категория витрины со своими блюдами.
type MenuSection struct {
	Category domain.Category
	Dishes   []domain.Dish
}

// ListMenu возвращает витрину: заказываемые блюда, сгруппированные по
// активным категориям в их порядке показа. Пустой categoryID — всё меню.
func (s *Service) ListMenu(categoryID string) ([]MenuSection, error) {
	dishes, err := s.dishes.ListOrderable(categoryID)
	if err != nil {
		return nil, err
	}
	categories, err := s.categories.List()
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string][]domain.Dish, len(categories))
	for _, dish := range dishes {
		byCategory[dish.CategoryID] = append(byCategory[dish.CategoryID], dish)
	}

	sections := make([]MenuSection, 0, len(categories))
	for _, category := range categories {
		if categoryID != "" && category.ID != categoryID {
			continue
		}
		list, ok := byCategory[category.ID]
		if !ok {
			continue
		}
		sections = append(sections, MenuSection{Category: category, Dishes: list})
	}
	return sections, nil
}

// ListCatalog возвращает весь каталог для бэк-офиса, включая скрытые блюда.
func (s *Service) ListCatalog() ([]domain.Dish, error) {
	return s.dishes.ListAll()
}

// GetDish возвращает карточку блюда.
func (s *Service) GetDish(dishID string) (domain.Dish, error) {
	return s.dishes.Get(dishID)
}

// CategoryRequest — данные категории от бэк-офиса.
type CategoryRequest struct {
	Name         string
	Description  string
	DisplayOrder int32
	Active       bool
}

// CreateCategory добавляет категорию меню.
func (s *Service) CreateCategory(req CategoryRequest) (domain.Category, error) {
	if req.Name == "" {
		return domain.Category{}, domain.ErrCategoryNameRequired
	}

	now := time.Now().UTC()
	category := domain.Category{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
		Active:       req.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.categories.Create(category); err != nil {
		return domain.Category{}, err
	}

	s.logger.WithFields(log.Fields{
		"category_id": category.ID,
		"name":        category.Name,
	}).Info("category created")
	return category, nil
}

// ListCategories возвращает активные категории в порядке показа.
func (s *Service) ListCategories() ([]domain.Category, error) {
	return s.categories.List()
}

func (s *Service) emitMenuEvent(dish domain.Dish, eventType kafka.EventType) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"dish_id":   dish.ID,
		"name":      dish.Name,
		"stock":     dish.Stock,
		"available": dish.Available,
	})
	if err != nil {
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "dish",
		AggregateID:   dish.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("dish_id", dish.ID).Error("enqueue menu event failed")
	}
}
