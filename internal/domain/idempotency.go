package domain

import "time"

// IdempotencyStatus — стадия обработки повторяемого запроса.
// Ключ защищает создающие операции (оформление заказа, повтор заказа)
// от дублей при сетевых ретраях клиента.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — первый запрос с ключом ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — ответ зафиксирован, повторы получают его без
	// повторного списания остатка.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка упала, сохранён ответ с ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid сообщает, принадлежит ли статус известному набору.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	}
	return false
}

// IdempotencyRecord привязывает ключ к хэшу запроса и сохранённому ответу.
// После TTLAt запись подлежит удалению фоновой очисткой.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
