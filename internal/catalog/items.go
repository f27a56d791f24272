package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/catalog-module/internal/marc"
	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// itemHooks проверяет кодируемость библиографической записи
// и удаляет активную выдачу вместе с экземпляром.
type itemHooks struct{}

func (itemHooks) Handle(ctx context.Context, st store.Store, ev resource.Event) error {
	switch ev := ev.(type) {
	case resource.Created:
		return checkEncodable(ev.Doc)
	case resource.Updated:
		return checkEncodable(ev.New)
	case resource.Deleted:
		return itemDeleted(ctx, st, ev.Doc)
	}
	return nil
}

// itemDeleted удаляет активную выдачу экземпляра и убирает её у читателя.
func itemDeleted(ctx context.Context, st store.Store, doc store.Document) error {
	checkoutID := doc.String(fieldCheckoutID)
	if checkoutID == "" {
		return nil
	}
	patrons, checkouts := st.Collection(Patrons), st.Collection(Checkouts)

	checkout, err := checkouts.FindByID(ctx, checkoutID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return updateIfExists(gctx, patrons, checkout.String(fieldPatronID), pullID(fieldCheckouts, checkoutID))
	})
	g.Go(func() error {
		return deleteIfExists(gctx, checkouts, checkoutID)
	})
	return g.Wait()
}

// checkEncodable отклоняет запись, которую нельзя однозначно
// представить в строковом формате.
func checkEncodable(doc store.Document) error {
	rec, err := RecordOf(doc)
	if err != nil {
		return resource.Unprocessable(err.Error(), schema.FieldError{Field: fieldMARC, Message: err.Error()})
	}
	if _, err := marc.Encode(rec); err != nil {
		return resource.Unprocessable("библиографическая запись не кодируется", schema.FieldError{
			Field:   fieldMARC,
			Message: err.Error(),
		})
	}
	return nil
}

// itemFromWire принимает marc как строковое представление записи
// и заменяет его структурой.
func itemFromWire(doc map[string]any) (map[string]any, error) {
	text, ok := doc[fieldMARC].(string)
	if !ok {
		return doc, nil
	}
	rec, err := marc.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("поле marc: %w", err)
	}
	structured, err := recordToMap(rec)
	if err != nil {
		return nil, err
	}
	doc[fieldMARC] = structured
	return doc, nil
}

// RecordOf извлекает библиографическую запись из документа экземпляра.
func RecordOf(doc store.Document) (marc.Record, error) {
	var rec marc.Record
	raw, err := json.Marshal(doc[fieldMARC])
	if err != nil {
		return rec, fmt.Errorf("ошибка сериализации поля marc: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("некорректное поле marc: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = []marc.Field{}
	}
	return rec, nil
}

// recordToMap переводит запись в JSON-представление документа.
func recordToMap(rec marc.Record) (map[string]any, error) {
	if rec.Fields == nil {
		rec.Fields = []marc.Field{}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации записи: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ошибка разбора записи: %w", err)
	}
	return out, nil
}
