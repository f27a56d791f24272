package resource

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// Параметры списка.
const (
	ParamSortBy    = "sort_by"
	ParamDirection = "direction"
	ParamPage      = "page"
	ParamPerPage   = "per_page"

	DirectionAsc  = "asc"
	DirectionDesc = "desc"

	DefaultPerPage = 10
	MaxPerPage     = 200

	// MaxPage — наибольший номер страницы, при котором смещение
	// page*per_page не переполняет int.
	MaxPage = math.MaxInt / MaxPerPage
)

// ListRequest — параметры запроса списка. nil — параметр не передан.
type ListRequest struct {
	SortBy    *string
	Direction *string
	Page      *int
	PerPage   *int
}

// ParseListQuery разбирает query-параметры списка.
// Значения неверного типа (page=abc) возвращаются как 422 с деталями по полям.
func ParseListQuery(query url.Values) (ListRequest, error) {
	var (
		req     ListRequest
		details []schema.FieldError
	)

	bind := func(name string, dest any) {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			details = append(details, schema.FieldError{Field: name, Message: err.Error()})
		}
	}
	bind(ParamSortBy, &req.SortBy)
	bind(ParamDirection, &req.Direction)
	bind(ParamPage, &req.Page)
	bind(ParamPerPage, &req.PerPage)

	if len(details) > 0 {
		return ListRequest{}, Unprocessable("некорректные параметры запроса", details...)
	}
	return req, nil
}

// listQuery — проверенные параметры списка.
type listQuery struct {
	sort    store.SortSpec
	page    int
	perPage int
}

// validateList проверяет параметры и подставляет значения по умолчанию.
func (d Descriptor) validateList(req ListRequest) (listQuery, error) {
	q := listQuery{
		sort:    store.SortSpec{Field: store.FieldCreatedAt},
		perPage: DefaultPerPage,
	}
	var details []schema.FieldError

	if req.SortBy != nil {
		allowed := d.sortFields()
		field, ok := allowed[*req.SortBy]
		if ok {
			q.sort.Field = field
		} else {
			names := make([]string, 0, len(allowed))
			for name := range allowed {
				names = append(names, name)
			}
			sort.Strings(names)
			details = append(details, schema.FieldError{
				Field:   ParamSortBy,
				Message: fmt.Sprintf("допустимые значения: %s", strings.Join(names, ", ")),
			})
		}
	}

	if req.Direction != nil {
		switch *req.Direction {
		case DirectionAsc:
		case DirectionDesc:
			q.sort.Desc = true
		default:
			details = append(details, schema.FieldError{
				Field:   ParamDirection,
				Message: "допустимые значения: asc, desc",
			})
		}
	}

	if d.Paginated {
		if req.Page != nil {
			if *req.Page < 0 {
				details = append(details, schema.FieldError{
					Field:   ParamPage,
					Message: "значение должно быть не меньше 0",
				})
			} else if *req.Page > MaxPage {
				details = append(details, schema.FieldError{
					Field:   ParamPage,
					Message: fmt.Sprintf("значение должно быть не больше %d", MaxPage),
				})
			} else {
				q.page = *req.Page
			}
		}
		if req.PerPage != nil {
			if *req.PerPage < 1 || *req.PerPage > MaxPerPage {
				details = append(details, schema.FieldError{
					Field:   ParamPerPage,
					Message: fmt.Sprintf("значение должно быть от 1 до %d", MaxPerPage),
				})
			} else {
				q.perPage = *req.PerPage
			}
		}
	}

	if len(details) > 0 {
		return listQuery{}, Unprocessable("некорректные параметры запроса", details...)
	}
	return q, nil
}

// formatRange формирует значение заголовка range: start-end/total.
func formatRange(start, returned, total int) string {
	return fmt.Sprintf("%d-%d/%d", start, start+returned-1, total)
}
