package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
)

// Compile-time проверка соответствия интерфейсам.
var (
	_ Store      = (*MemoryStore)(nil)
	_ Collection = (*memoryCollection)(nil)
)

// MemoryStore — in-memory хранилище для тестов и режима без PostgreSQL.
// Документы копируются при чтении и записи, вызывающий код
// не может изменить сохранённое состояние в обход хранилища.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

// Collection возвращает коллекцию по имени (создаётся лениво).
func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

// RunInTx вызывает fn напрямую: транзакций нет, последовательность
// шагов выполняется best-effort без отката.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, s)
}

// CheckReady — хранилище в памяти всегда готово.
func (s *MemoryStore) CheckReady() (status string, message string) {
	return "ok", "хранилище в памяти"
}

// memoryCollection — коллекция поверх MemoryStore.
type memoryCollection struct {
	store *MemoryStore
	name  string
}

// docs возвращает карту документов коллекции. Вызывать под блокировкой.
func (c *memoryCollection) docs() map[string]Document {
	m, ok := c.store.data[c.name]
	if !ok {
		m = make(map[string]Document)
		c.store.data[c.name] = m
	}
	return m
}

func (c *memoryCollection) FindByID(_ context.Context, id string) (Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	doc, ok := c.store.data[c.name][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (c *memoryCollection) Find(_ context.Context, opts FindOptions) ([]Document, error) {
	c.store.mu.RLock()
	all := make([]Document, 0, len(c.store.data[c.name]))
	for _, doc := range c.store.data[c.name] {
		all = append(all, doc)
	}
	c.store.mu.RUnlock()

	field := opts.Sort.Field
	if field == "" {
		field = FieldCreatedAt
	}
	sort.SliceStable(all, func(i, j int) bool {
		cmp := compareValues(all[i][field], all[j][field])
		if cmp == 0 {
			cmp = strings.Compare(all[i].ID(), all[j].ID())
		}
		if opts.Sort.Desc {
			return cmp > 0
		}
		return cmp < 0
	})

	skip := max(opts.Skip, 0)
	if skip >= len(all) {
		return []Document{}, nil
	}
	all = all[skip:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}

	result := make([]Document, len(all))
	for i, doc := range all {
		result[i] = copyDocument(doc)
	}
	return result, nil
}

func (c *memoryCollection) Count(_ context.Context) (int, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return len(c.store.data[c.name]), nil
}

func (c *memoryCollection) Insert(_ context.Context, doc Document) error {
	id := doc.ID()
	if id == "" {
		return ErrValidation
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	docs := c.docs()
	if _, exists := docs[id]; exists {
		return ErrConflict
	}
	docs[id] = copyDocument(doc)
	return nil
}

func (c *memoryCollection) Replace(_ context.Context, id string, doc Document) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	docs := c.docs()
	if _, exists := docs[id]; !exists {
		return ErrNotFound
	}
	cp := copyDocument(doc)
	cp[FieldID] = id
	docs[id] = cp
	return nil
}

func (c *memoryCollection) Update(_ context.Context, id string, fn func(doc Document) error) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	docs := c.docs()
	current, exists := docs[id]
	if !exists {
		return ErrNotFound
	}

	// fn работает с копией: при ошибке сохранённый документ не меняется
	working := copyDocument(current)
	if err := fn(working); err != nil {
		return err
	}
	working[FieldID] = id
	working[FieldCreatedAt] = current[FieldCreatedAt]
	working[FieldUpdatedAt] = now()
	docs[id] = working
	return nil
}

func (c *memoryCollection) Delete(_ context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	docs := c.docs()
	if _, exists := docs[id]; !exists {
		return ErrNotFound
	}
	delete(docs, id)
	return nil
}

func (c *memoryCollection) DeleteAll(_ context.Context) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	c.store.data[c.name] = make(map[string]Document)
	return nil
}

// copyDocument возвращает глубокую копию документа.
func copyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return deepcopy.Copy(doc).(Document)
}

// compareValues сравнивает значения одного поля разных документов.
// nil меньше любого значения; значения разных типов сравниваются по имени типа.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(typeName(a), typeName(b))
}

func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case time.Time:
		return "time"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}
