package resource

import (
	"context"
	"errors"

	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

var (
	// ErrConflict — хук обнаружил конфликт состояния (например, экземпляр уже выдан).
	// Операция отклоняется со статусом 409 без записи.
	ErrConflict = errors.New("конфликт состояния")
	// ErrExclude — хук чтения исключает документ из ответа.
	ErrExclude = errors.New("документ исключён")
)

// Event — событие жизненного цикла документа, передаваемое хуку.
// Закрытое множество: Created, Retrieved, Updated, Deleted.
type Event interface {
	// Kind возвращает имя события для журналов и метрик.
	Kind() string
	sealed()
}

// Created — документ будет создан. Doc уже содержит _id и временные метки.
type Created struct {
	Doc store.Document
}

// Retrieved — документ прочитан (список или получение по id).
type Retrieved struct {
	Doc store.Document
}

// Updated — документ будет заменён (PUT или PATCH).
type Updated struct {
	Old store.Document
	New store.Document
}

// Deleted — документ будет удалён (по одному или при очистке коллекции).
type Deleted struct {
	Doc store.Document
}

func (Created) Kind() string   { return "create" }
func (Retrieved) Kind() string { return "retrieve" }
func (Updated) Kind() string   { return "update" }
func (Deleted) Kind() string   { return "delete" }

func (Created) sealed()   {}
func (Retrieved) sealed() {}
func (Updated) sealed()   {}
func (Deleted) sealed()   {}

// Hooks — обработчик событий типа записи. Вызывается до основной записи
// внутри Store.RunInTx; st — хранилище текущей транзакции, через него
// выполняются вторичные записи. Ошибка отменяет операцию целиком.
type Hooks interface {
	Handle(ctx context.Context, st store.Store, ev Event) error
}

// HookFunc — адаптер функции к интерфейсу Hooks.
type HookFunc func(ctx context.Context, st store.Store, ev Event) error

// Handle вызывает f.
func (f HookFunc) Handle(ctx context.Context, st store.Store, ev Event) error {
	return f(ctx, st, ev)
}
