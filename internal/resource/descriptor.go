// Пакет resource — обобщённый движок REST-коллекций.
//
// По описанию типа записи (Descriptor) движок реализует операции
// list, create, delete-all, get, replace, patch и delete с общей
// проверкой входных данных, пагинацией и вызовом хуков.
package resource

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// FieldID — имя идентификатора в представлении для клиента.
const FieldID = "id"

// systemFields — поля, которые клиент не может передавать ни в одном типе записи.
var systemFields = []string{FieldID, store.FieldID, store.FieldCreatedAt, store.FieldUpdatedAt}

// Converter преобразует документ между представлениями хранилища и клиента.
// Получает копию и может изменять её на месте.
type Converter func(doc map[string]any) (map[string]any, error)

// Descriptor — описание типа записи. Не изменяется после регистрации.
type Descriptor struct {
	// Name — имя коллекции во множественном числе (сегмент URL и имя таблицы).
	Name string
	// Schema — схема полей документа.
	Schema *schema.Schema
	// Immutable — дополнительные поля, недоступные клиенту для записи.
	// Системные поля (id, _id, createdAt, updatedAt) входят всегда.
	Immutable []string
	// Paginated — включает параметры page и per_page в списке.
	Paginated bool
	// ToWire применяется к документу перед отдачей клиенту.
	ToWire Converter
	// FromWire применяется к телу запроса до проверки схемы.
	FromWire Converter
	// Hooks — обработчик событий; nil — хуков нет.
	Hooks Hooks
}

// check проверяет заполненность описания.
func (d Descriptor) check() error {
	if d.Name == "" {
		return errors.New("не задано имя коллекции")
	}
	if d.Schema == nil {
		return fmt.Errorf("коллекция %s: не задана схема", d.Name)
	}
	return nil
}

// immutableFields возвращает системные и дополнительные неизменяемые поля.
func (d Descriptor) immutableFields() []string {
	fields := slices.Clone(systemFields)
	for _, f := range d.Immutable {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// sortFields возвращает допустимые значения sort_by и соответствующие
// им поля хранилища.
func (d Descriptor) sortFields() map[string]string {
	fields := map[string]string{
		FieldID:              store.FieldID,
		store.FieldCreatedAt: store.FieldCreatedAt,
	}
	if d.Schema.HasProperty("name") {
		fields["name"] = "name"
	}
	return fields
}
