package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// checkoutHooks поддерживает инварианты выдачи: пока выдача существует,
// её экземпляр имеет статус out и checkoutID выдачи, а список checkouts
// читателя содержит её идентификатор.
type checkoutHooks struct{}

func (checkoutHooks) Handle(ctx context.Context, st store.Store, ev resource.Event) error {
	switch ev := ev.(type) {
	case resource.Created:
		return checkoutCreated(ctx, st, ev.Doc)
	case resource.Updated:
		return checkoutUpdated(ctx, st, ev.Old, ev.New)
	case resource.Deleted:
		return checkoutDeleted(ctx, st, ev.Doc)
	}
	return nil
}

func checkoutCreated(ctx context.Context, st store.Store, doc store.Document) error {
	id := doc.ID()
	itemID, patronID := doc.String(fieldItemID), doc.String(fieldPatronID)
	items, patrons := st.Collection(Items), st.Collection(Patrons)

	// Проверки до первой записи: конфликт не должен оставлять следов
	item, err := mustFind(ctx, items, fieldItemID, itemID)
	if err != nil {
		return err
	}
	if _, err := mustFind(ctx, patrons, fieldPatronID, patronID); err != nil {
		return err
	}
	if item.String(fieldStatus) != StatusIn {
		return unavailable(item)
	}

	// Экземпляр захватывается первым: повторная проверка статуса
	// выполняется атомарно внутри Update
	if err := items.Update(ctx, itemID, claimItem(id)); err != nil {
		return err
	}
	return patrons.Update(ctx, patronID, pushID(fieldCheckouts, id))
}

func checkoutUpdated(ctx context.Context, st store.Store, old, next store.Document) error {
	id := next.ID()
	items, patrons := st.Collection(Items), st.Collection(Patrons)

	oldItem, newItem := old.String(fieldItemID), next.String(fieldItemID)
	oldPatron, newPatron := old.String(fieldPatronID), next.String(fieldPatronID)
	itemChanged := oldItem != newItem
	patronChanged := oldPatron != newPatron

	if itemChanged {
		item, err := mustFind(ctx, items, fieldItemID, newItem)
		if err != nil {
			return err
		}
		if item.String(fieldStatus) != StatusIn {
			return unavailable(item)
		}
	}
	if patronChanged {
		if _, err := mustFind(ctx, patrons, fieldPatronID, newPatron); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if itemChanged {
		g.Go(func() error { return updateIfExists(gctx, items, oldItem, releaseItem(id)) })
		g.Go(func() error { return items.Update(gctx, newItem, claimItem(id)) })
	}
	if patronChanged {
		g.Go(func() error { return updateIfExists(gctx, patrons, oldPatron, pullID(fieldCheckouts, id)) })
		g.Go(func() error { return patrons.Update(gctx, newPatron, pushID(fieldCheckouts, id)) })
	}
	return g.Wait()
}

func checkoutDeleted(ctx context.Context, st store.Store, doc store.Document) error {
	id := doc.ID()
	items, patrons := st.Collection(Items), st.Collection(Patrons)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return updateIfExists(gctx, items, doc.String(fieldItemID), releaseItem(id))
	})
	g.Go(func() error {
		return updateIfExists(gctx, patrons, doc.String(fieldPatronID), pullID(fieldCheckouts, id))
	})
	return g.Wait()
}
