package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/TangB5/restaurant/internal/domain"
)

// errInvalidQuery — некорректные параметры query string; всегда 400.
var errInvalidQuery = errors.New("invalid query parameters")

// parseOrderQuery собирает параметры фильтрации списка заказов из query string.
func parseOrderQuery(r *http.Request) (domain.OrderQuery, error) {
	values := r.URL.Query()

	q := domain.OrderQuery{Search: values.Get("search")}

	if raw := values.Get("status"); raw != "" {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			return domain.OrderQuery{}, domain.ErrStatusInvalid
		}
		q.Status = &status
	}

	page, err := parseUint32(values.Get("page"))
	if err != nil {
		return domain.OrderQuery{}, err
	}
	q.Page = page

	perPage, err := parseUint32(values.Get("per_page"))
	if err != nil {
		return domain.OrderQuery{}, err
	}
	q.PerPage = perPage

	return q, nil
}

func parseUint32(raw string) (uint32, error) {
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errInvalidQuery
	}
	return uint32(parsed), nil
}
