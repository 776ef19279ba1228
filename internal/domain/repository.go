package domain

// DishRepository описывает требования к хранилищу каталога.
type DishRepository interface {
	// Create сохраняет новое блюдо. Возвращает ошибку, если запись с таким ID уже существует.
	Create(dish Dish) error
	// Get возвращает блюдо по идентификатору или ErrDishNotFound, если его нет.
	Get(id string) (Dish, error)
	// Save применяет правки бэк-офиса с учётом optimistic locking.
	Save(dish Dish) error
	// Delete удаляет блюдо. Исторические заказы сохраняются: их ссылка на блюдо
	// обнуляется (эквивалент SET NULL).
	Delete(id string) error
	// ListOrderable возвращает блюда, доступные к заказу, в порядке
	// (порядок категории, название). Пустой categoryID — без фильтра по категории.
	ListOrderable(categoryID string) ([]Dish, error)
	// ListAll возвращает весь каталог для бэк-офиса.
	ListAll() ([]Dish, error)

	// Reserve атомарно проверяет «доступно и хватает остатка», списывает qty единиц
	// и снимает блюдо с витрины при обнулении остатка. Единый read-modify-write:
	// параллельные заказы не могут увести остаток в минус.
	Reserve(dishID string, qty int32) (Dish, error)
	// Release атомарно возвращает qty единиц и поднимает флаг витрины:
	// любое пополнение снова делает блюдо заказываемым, даже после ручного скрытия.
	Release(dishID string, qty int32) (Dish, error)
}

// CategoryRepository описывает требования к хранилищу категорий меню.
type CategoryRepository interface {
	Create(category Category) error
	Get(id string) (Category, error)
	// List возвращает активные категории в порядке display_order, затем название.
	List() ([]Category, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает страницу заказов клиента, новые первыми,
	// и общее число совпадений до пагинации.
	ListByCustomer(customerID string, q OrderQuery) ([]Order, int, error)
	// ListByStatus возвращает заказы в статусе, старые первыми (limit <= 0 — без ограничения).
	ListByStatus(status OrderStatus, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error

	// PlaceReserving выполняет парную запись размещения в одной единице работы:
	// списывает остаток блюда и сохраняет заказ. Либо происходят обе записи,
	// либо ни одной. При нулевой сумме заказа подставляет снимок
	// dish.price * quantity из только что заблокированной строки блюда.
	PlaceReserving(order Order) (Order, Dish, error)
	// FinishReleasing выполняет парную запись отмены: сохраняет терминальный
	// статус заказа и возвращает остаток блюду. Если блюдо удалено из каталога,
	// возврат остатка пропускается, заказ всё равно закрывается.
	FinishReleasing(order Order) (Order, Dish, error)
}
