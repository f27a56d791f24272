package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// Вторичные записи идемпотентны: повторное выполнение не меняет результат.

// pushID добавляет id в массив field, если его там нет.
func pushID(field, id string) func(store.Document) error {
	return func(doc store.Document) error {
		list, _ := doc[field].([]any)
		if slices.Contains(list, any(id)) {
			return nil
		}
		doc[field] = append(list, id)
		return nil
	}
}

// pullID удаляет все вхождения id из массива field.
func pullID(field, id string) func(store.Document) error {
	return func(doc store.Document) error {
		list, _ := doc[field].([]any)
		out := make([]any, 0, len(list))
		for _, v := range list {
			if v != id {
				out = append(out, v)
			}
		}
		doc[field] = out
		return nil
	}
}

// claimItem переводит экземпляр в статус out и записывает checkoutID.
// Экземпляр, уже выданный по другой выдаче, — конфликт.
func claimItem(checkoutID string) func(store.Document) error {
	return func(doc store.Document) error {
		if doc.String(fieldStatus) != StatusIn && doc.String(fieldCheckoutID) != checkoutID {
			return unavailable(doc)
		}
		doc[fieldStatus] = StatusOut
		doc[fieldCheckoutID] = checkoutID
		return nil
	}
}

// releaseItem возвращает экземпляр в статус in (кроме lost)
// и снимает checkoutID, если он указывает на эту выдачу.
func releaseItem(checkoutID string) func(store.Document) error {
	return func(doc store.Document) error {
		if doc.String(fieldCheckoutID) == checkoutID {
			delete(doc, fieldCheckoutID)
		}
		if doc.String(fieldStatus) != StatusLost {
			doc[fieldStatus] = StatusIn
		}
		return nil
	}
}

func unavailable(item store.Document) error {
	return fmt.Errorf("%w: экземпляр %s недоступен для выдачи (статус %q)",
		resource.ErrConflict, item.ID(), item.String(fieldStatus))
}

// updateIfExists применяет fn к документу; отсутствие документа допустимо.
func updateIfExists(ctx context.Context, coll store.Collection, id string, fn func(store.Document) error) error {
	if id == "" {
		return nil
	}
	err := coll.Update(ctx, id, fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// deleteIfExists удаляет документ; отсутствие документа допустимо.
func deleteIfExists(ctx context.Context, coll store.Collection, id string) error {
	err := coll.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// mustFind загружает документ, на который ссылается поле field.
// Отсутствующий документ — 422 с указанием поля.
func mustFind(ctx context.Context, coll store.Collection, field, id string) (store.Document, error) {
	doc, err := coll.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, resource.Unprocessable(
			fmt.Sprintf("документ %s не найден", id),
			schema.FieldError{Field: field, Message: "ссылка на несуществующий документ"},
		)
	}
	return doc, err
}
