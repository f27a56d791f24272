package catalog

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// patronHooks удаляет выдачи читателя вместе с ним.
type patronHooks struct{}

func (patronHooks) Handle(ctx context.Context, st store.Store, ev resource.Event) error {
	if ev, ok := ev.(resource.Deleted); ok {
		return patronDeleted(ctx, st, ev.Doc)
	}
	return nil
}

// patronDeleted для каждой выдачи освобождает экземпляр и удаляет выдачу.
func patronDeleted(ctx context.Context, st store.Store, doc store.Document) error {
	items, checkouts := st.Collection(Items), st.Collection(Checkouts)

	g, gctx := errgroup.WithContext(ctx)
	for _, checkoutID := range doc.Strings(fieldCheckouts) {
		g.Go(func() error {
			checkout, err := checkouts.FindByID(gctx, checkoutID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := updateIfExists(gctx, items, checkout.String(fieldItemID), releaseItem(checkoutID)); err != nil {
				return err
			}
			return deleteIfExists(gctx, checkouts, checkoutID)
		})
	}
	return g.Wait()
}
