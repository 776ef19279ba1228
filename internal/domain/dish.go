package domain

import "time"

// StockStatus — укрупнённая оценка остатка блюда для витрины и бэк-офиса.
type StockStatus string

const (
	// StockStatusOut — остаток нулевой, блюдо нельзя заказать.
	StockStatusOut StockStatus = "out_of_stock"
	// StockStatusLow — остаток на исходе (1..5 единиц).
	StockStatusLow StockStatus = "low"
	// StockStatusNormal — остаток достаточный.
	StockStatusNormal StockStatus = "normal"
)

// lowStockThreshold — верхняя граница остатка, при котором блюдо считается «заканчивается».
const lowStockThreshold = 5

// Category группирует блюда меню (закуски, основные блюда, десерты).
type Category struct {
	ID          string
	Name        string
	Description string
	// DisplayOrder задаёт порядок вывода категории на витрине.
	DisplayOrder int32
	// Active позволяет скрыть категорию целиком, не трогая её блюда.
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dish — позиция меню: цена в минимальных денежных единицах и складской остаток.
type Dish struct {
	ID          string
	CategoryID  string
	Name        string
	Description string
	// PriceMinor — цена за единицу в минимальных денежных единицах (без дробной части).
	PriceMinor int64
	// Stock — количество единиц, доступных к заказу. Никогда не уходит ниже нуля.
	Stock int32
	// Available — флаг витрины. Нулевой остаток всегда снимает блюдо с витрины;
	// обратное не выполняется: блюдо можно скрыть вручную при ненулевом остатке.
	Available bool
	// IsSpecial — признак «блюдо дня».
	IsSpecial bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOrderable сообщает, можно ли блюдо заказать прямо сейчас.
func (d *Dish) IsOrderable() bool {
	return d.Available && d.Stock > 0
}

// StockStatus возвращает укрупнённый статус остатка.
func (d *Dish) StockStatus() StockStatus {
	switch {
	case d.Stock <= 0:
		return StockStatusOut
	case d.Stock <= lowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusNormal
	}
}

// SyncAvailability приводит флаг витрины в соответствие с остатком:
// нулевой остаток снимает блюдо с продажи. Ручное скрытие не отменяется.
func (d *Dish) SyncAvailability() {
	if d.Stock <= 0 {
		d.Available = false
	}
}

// ValidateInvariants проверяет базовые инварианты блюда и возвращает список замечаний.
func (d *Dish) ValidateInvariants() []error {
	var errs []error

	if d.Name == "" {
		errs = append(errs, ErrDishNameRequired)
	}
	if d.CategoryID == "" {
		errs = append(errs, ErrCategoryRequired)
	}
	if d.PriceMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if d.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	// Ключевой инвариант склада: распроданное блюдо не может оставаться на витрине.
	if d.Stock <= 0 && d.Available {
		errs = append(errs, ErrAvailabilityStale)
	}

	return errs
}
