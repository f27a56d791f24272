// Пакет catalog — типы записей библиотечного каталога и хуки,
// поддерживающие связи checkout↔item и checkout↔patron.
package catalog

import (
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// Имена коллекций.
const (
	Admins    = "admins"
	Checkouts = "checkouts"
	Items     = "items"
	Patrons   = "patrons"
)

// Статусы экземпляра.
const (
	StatusIn      = "in"
	StatusOut     = "out"
	StatusMissing = "missing"
	StatusLost    = "lost"
)

// Поля документов, участвующие в связях.
const (
	fieldItemID     = "itemID"
	fieldPatronID   = "patronID"
	fieldStatus     = "status"
	fieldCheckoutID = "checkoutID"
	fieldCheckouts  = "checkouts"
	fieldMARC       = "marc"
)

// Descriptors возвращает описания четырёх типов записей каталога.
func Descriptors(reg *schema.Registry) ([]resource.Descriptor, error) {
	schemas := make(map[string]*schema.Schema, 4)
	for _, name := range []string{"Admin", "Checkout", "Item", "Patron"} {
		s, err := reg.Schema(name)
		if err != nil {
			return nil, err
		}
		schemas[name] = s
	}

	return []resource.Descriptor{
		{
			Name:      Admins,
			Schema:    schemas["Admin"],
			Paginated: true,
		},
		{
			Name:      Checkouts,
			Schema:    schemas["Checkout"],
			Paginated: true,
			Hooks:     checkoutHooks{},
		},
		{
			Name:      Items,
			Schema:    schemas["Item"],
			Immutable: []string{fieldCheckoutID},
			Paginated: true,
			FromWire:  itemFromWire,
			Hooks:     itemHooks{},
		},
		{
			Name:      Patrons,
			Schema:    schemas["Patron"],
			Immutable: []string{fieldCheckouts},
			Paginated: true,
			Hooks:     patronHooks{},
		},
	}, nil
}

// NewEngines создаёт движки всех коллекций каталога поверх st.
func NewEngines(reg *schema.Registry, st store.Store, logger *slog.Logger) ([]*resource.Engine, error) {
	descs, err := Descriptors(reg)
	if err != nil {
		return nil, fmt.Errorf("ошибка описания типов записей: %w", err)
	}

	engines := make([]*resource.Engine, 0, len(descs))
	for _, d := range descs {
		e, err := resource.NewEngine(d, st, logger)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}
	return engines, nil
}
