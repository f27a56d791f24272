// Пакет store — хранилище документов (persistence collaborator).
//
// Хранилище умеет per-document CRUD, выборку с сортировкой/skip/limit
// и подсчёт. Межколлекционные ограничения (foreign keys) не поддерживаются:
// ссылочную целостность обеспечивают хуки движка ресурсов.
package store

import (
	"context"
	"errors"
	"time"
)

// Системные поля документа в представлении хранилища.
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Ошибки слоя хранилища.
var (
	// ErrNotFound — документ не найден.
	ErrNotFound = errors.New("документ не найден")
	// ErrConflict — документ с таким идентификатором уже существует.
	ErrConflict = errors.New("конфликт — документ уже существует")
	// ErrValidation — документ отклонён хранилищем (ограничения схемы БД).
	ErrValidation = errors.New("документ не прошёл проверку хранилища")
)

// Document — документ в представлении хранилища.
// Системные поля: _id (string), createdAt и updatedAt (time.Time, UTC).
// Остальные значения — JSON-совместимые (map[string]any, []any, string, float64, bool, nil).
type Document map[string]any

// ID возвращает идентификатор документа.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// String возвращает строковое поле или пустую строку.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Time возвращает поле-время (createdAt, updatedAt).
func (d Document) Time(key string) time.Time {
	t, _ := d[key].(time.Time)
	return t
}

// Strings возвращает поле-массив строк. Нестроковые элементы пропускаются.
func (d Document) Strings(key string) []string {
	raw, _ := d[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SortSpec — поле и направление сортировки.
// Field — имя поля в представлении хранилища (_id, createdAt, name...).
type SortSpec struct {
	Field string
	Desc  bool
}

// FindOptions — параметры выборки. Limit == 0 — без ограничения.
type FindOptions struct {
	Sort  SortSpec
	Skip  int
	Limit int
}

// Collection — коллекция документов одного типа записи.
type Collection interface {
	// FindByID возвращает документ по идентификатору или ErrNotFound.
	FindByID(ctx context.Context, id string) (Document, error)
	// Find возвращает документы с сортировкой и пагинацией.
	Find(ctx context.Context, opts FindOptions) ([]Document, error)
	// Count возвращает количество документов в коллекции.
	Count(ctx context.Context) (int, error)
	// Insert сохраняет новый документ; _id и временные метки задаёт вызывающий.
	Insert(ctx context.Context, doc Document) error
	// Replace заменяет документ целиком или возвращает ErrNotFound.
	Replace(ctx context.Context, id string, doc Document) error
	// Update атомарно изменяет один документ: fn получает текущую версию
	// и изменяет её на месте. updatedAt выставляется хранилищем.
	Update(ctx context.Context, id string, fn func(doc Document) error) error
	// Delete удаляет документ или возвращает ErrNotFound.
	Delete(ctx context.Context, id string) error
	// DeleteAll удаляет все документы коллекции.
	DeleteAll(ctx context.Context) error
}

// Store — набор коллекций.
type Store interface {
	// Collection возвращает коллекцию по имени (множественное число: items, patrons...).
	Collection(name string) Collection
	// RunInTx выполняет fn в транзакции, если хранилище их поддерживает.
	// Хранилище без транзакций вызывает fn напрямую (best-effort).
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// now — источник времени для меток updatedAt, выставляемых хранилищем.
// Точность — микросекунды, как у TIMESTAMPTZ в PostgreSQL.
var now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
