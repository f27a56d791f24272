package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/catalog-module/internal/mergepatch"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// ListBody — тело ответа списка.
type ListBody struct {
	Data           []map[string]any `json:"data"`
	HasMore        bool             `json:"hasMore"`
	MaxItems       int              `json:"maxItems"`
	RemainingItems int              `json:"remainingItems"`
}

// ListResult — результат списка. Range заполнен для частичного ответа (206)
// и для страницы за пределами коллекции (вместе с ошибкой 404).
type ListResult struct {
	Status int
	Range  string
	Body   ListBody
}

// CreateResult — результат создания документа.
type CreateResult struct {
	ID       string
	Location string
}

// Engine — движок операций над одной коллекцией.
type Engine struct {
	desc   Descriptor
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewEngine создаёт движок для коллекции desc поверх хранилища st.
func NewEngine(desc Descriptor, st store.Store, logger *slog.Logger) (*Engine, error) {
	if err := desc.check(); err != nil {
		return nil, fmt.Errorf("некорректное описание типа записи: %w", err)
	}
	return &Engine{
		desc:  desc,
		store: st,
		logger: logger.With(
			slog.String("component", "resource"),
			slog.String("collection", desc.Name),
		),
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID: NewID,
	}, nil
}

// Name возвращает имя коллекции.
func (e *Engine) Name() string {
	return e.desc.Name
}

func (e *Engine) collection(st store.Store) store.Collection {
	return st.Collection(e.desc.Name)
}

// List возвращает страницу коллекции в представлении клиента.
func (e *Engine) List(ctx context.Context, req ListRequest) (ListResult, error) {
	q, err := e.desc.validateList(req)
	if err != nil {
		return ListResult{}, err
	}

	coll := e.collection(e.store)
	total, err := coll.Count(ctx)
	if err != nil {
		return ListResult{}, e.mapError(err, "list")
	}

	opts := store.FindOptions{Sort: q.sort}
	start := 0
	if e.desc.Paginated {
		start = q.page * q.perPage
		if total > 0 && start >= total {
			return ListResult{Status: http.StatusNotFound, Range: formatRange(start, 0, total)},
				NotFound(fmt.Sprintf("страница %d за пределами коллекции (%d документов)", q.page, total))
		}
		opts.Skip = start
		opts.Limit = q.perPage
	}

	docs, err := coll.Find(ctx, opts)
	if err != nil {
		return ListResult{}, e.mapError(err, "list")
	}

	data := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		visible, err := e.retrieve(ctx, doc)
		if err != nil {
			return ListResult{}, e.mapError(err, "list")
		}
		if !visible {
			continue
		}
		wire, err := e.desc.toWire(doc)
		if err != nil {
			return ListResult{}, e.mapError(err, "list")
		}
		data = append(data, wire)
	}

	// Окно выборки (range, hasMore, remainingItems) считается по документам
	// хранилища: исключённые хуком документы остаются внутри окна
	end := start + len(docs)
	remaining := max(total-end, 0)
	res := ListResult{
		Status: http.StatusOK,
		Body: ListBody{
			Data:           data,
			HasMore:        remaining > 0,
			MaxItems:       total,
			RemainingItems: remaining,
		},
	}
	if len(data) < total {
		res.Status = http.StatusPartialContent
		res.Range = formatRange(start, len(docs), total)
	}
	return res, nil
}

// Create проверяет тело запроса, присваивает идентификатор и временные метки,
// вызывает хук создания и сохраняет документ.
func (e *Engine) Create(ctx context.Context, body []byte) (CreateResult, error) {
	input, err := decodeBody(body)
	if err != nil {
		return CreateResult{}, err
	}
	if err := e.desc.checkImmutable(input); err != nil {
		return CreateResult{}, err
	}
	content, err := e.desc.prepare(input)
	if err != nil {
		return CreateResult{}, err
	}

	id := e.newID()
	ts := e.now()
	doc := store.Document(content)
	doc[store.FieldID] = id
	doc[store.FieldCreatedAt] = ts
	doc[store.FieldUpdatedAt] = ts

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := e.runHook(ctx, tx, Created{Doc: doc}); err != nil {
			return err
		}
		return e.collection(tx).Insert(ctx, doc)
	})
	if err != nil {
		return CreateResult{}, e.mapError(err, "create")
	}

	e.logger.Debug("Документ создан", slog.String("id", id))
	return CreateResult{ID: id, Location: "/" + e.desc.Name + "/" + id}, nil
}

// DeleteAll вызывает хук удаления для каждого документа параллельно
// и после успешного завершения всех хуков очищает коллекцию.
func (e *Engine) DeleteAll(ctx context.Context) error {
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		coll := e.collection(tx)
		if e.desc.Hooks != nil {
			docs, err := coll.Find(ctx, store.FindOptions{})
			if err != nil {
				return err
			}
			g, gctx := errgroup.WithContext(ctx)
			for _, doc := range docs {
				g.Go(func() error {
					return e.runHook(gctx, tx, Deleted{Doc: doc})
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
		return coll.DeleteAll(ctx)
	})
	if err != nil {
		return e.mapError(err, "delete_all")
	}

	e.logger.Info("Коллекция очищена")
	return nil
}

// Get возвращает документ по идентификатору.
func (e *Engine) Get(ctx context.Context, rawID string) (map[string]any, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}

	doc, err := e.collection(e.store).FindByID(ctx, id)
	if err != nil {
		return nil, e.mapError(err, "get")
	}
	visible, err := e.retrieve(ctx, doc)
	if err != nil {
		return nil, e.mapError(err, "get")
	}
	if !visible {
		return nil, e.notFound(id)
	}

	wire, err := e.desc.toWire(doc)
	if err != nil {
		return nil, e.mapError(err, "get")
	}
	return wire, nil
}

// Replace заменяет документ целиком. Неизменяемые поля и createdAt
// сохраняются из текущей версии.
func (e *Engine) Replace(ctx context.Context, rawID string, body []byte) error {
	input, err := decodeBody(body)
	if err != nil {
		return err
	}
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}
	if err := e.desc.checkImmutable(input); err != nil {
		return err
	}
	content, err := e.desc.prepare(input)
	if err != nil {
		return err
	}

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		coll := e.collection(tx)
		old, err := coll.FindByID(ctx, id)
		if err != nil {
			return err
		}

		next := store.Document(content)
		for _, f := range e.desc.Immutable {
			if v, ok := old[f]; ok {
				next[f] = v
			} else {
				delete(next, f)
			}
		}
		next[store.FieldID] = id
		next[store.FieldCreatedAt] = old[store.FieldCreatedAt]
		next[store.FieldUpdatedAt] = e.now()

		if err := e.runHook(ctx, tx, Updated{Old: old, New: next}); err != nil {
			return err
		}
		return coll.Replace(ctx, id, next)
	})
	if err != nil {
		return e.mapError(err, "replace")
	}
	return nil
}

// Patch применяет merge patch к документу и возвращает новую версию.
// Неизвестные поля патча игнорируются; если результат совпадает с
// сохранённым документом, запись не выполняется.
func (e *Engine) Patch(ctx context.Context, rawID string, body []byte) (map[string]any, error) {
	input, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	if err := e.desc.checkImmutable(input); err != nil {
		return nil, err
	}
	patch, err := e.desc.fromWire(input)
	if err != nil {
		return nil, err
	}
	e.desc.Schema.StripUnknown(patch)

	var result store.Document
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		coll := e.collection(tx)
		old, err := coll.FindByID(ctx, id)
		if err != nil {
			return err
		}

		base, err := normalize(contentOf(old))
		if err != nil {
			return err
		}
		merged, err := mergepatch.Apply(base, patch)
		if err != nil {
			return Unprocessable(err.Error())
		}
		e.desc.Schema.ApplyDefaults(merged)
		if err := e.desc.validate(merged); err != nil {
			return err
		}

		if reflect.DeepEqual(merged, base) {
			result = old
			return nil
		}

		next := store.Document(merged)
		next[store.FieldID] = id
		next[store.FieldCreatedAt] = old[store.FieldCreatedAt]
		next[store.FieldUpdatedAt] = e.now()

		if err := e.runHook(ctx, tx, Updated{Old: old, New: next}); err != nil {
			return err
		}
		if err := coll.Replace(ctx, id, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, e.mapError(err, "patch")
	}

	wire, err := e.desc.toWire(result)
	if err != nil {
		return nil, e.mapError(err, "patch")
	}
	return wire, nil
}

// Delete удаляет документ после хука удаления.
func (e *Engine) Delete(ctx context.Context, rawID string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		coll := e.collection(tx)
		doc, err := coll.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := e.runHook(ctx, tx, Deleted{Doc: doc}); err != nil {
			return err
		}
		return coll.Delete(ctx, id)
	})
	if err != nil {
		return e.mapError(err, "delete")
	}
	return nil
}

// retrieve вызывает хук чтения. false — документ исключён хуком.
func (e *Engine) retrieve(ctx context.Context, doc store.Document) (bool, error) {
	err := e.runHook(ctx, e.store, Retrieved{Doc: doc})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrExclude):
		return false, nil
	default:
		return false, err
	}
}

// runHook вызывает хук типа записи, если он задан.
func (e *Engine) runHook(ctx context.Context, st store.Store, ev Event) error {
	if e.desc.Hooks == nil {
		return nil
	}
	err := e.desc.Hooks.Handle(ctx, st, ev)
	if err == nil || errors.Is(err, ErrExclude) {
		return err
	}

	hookFailuresTotal.WithLabelValues(e.desc.Name, ev.Kind()).Inc()
	e.logger.Warn("Хук отклонил операцию",
		slog.String("event", ev.Kind()),
		slog.String("error", err.Error()),
	)
	return err
}

func (e *Engine) notFound(id string) error {
	return NotFound(fmt.Sprintf("документ %s/%s не найден", e.desc.Name, id))
}

// mapError отображает ошибки хранилища и хуков на *Error.
func (e *Engine) mapError(err error, op string) error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Status >= http.StatusInternalServerError {
			e.logError(err, op)
		}
		return apiErr
	case errors.Is(err, ErrConflict):
		return Conflict(err.Error())
	case errors.Is(err, store.ErrNotFound):
		return NotFound(fmt.Sprintf("документ %s не найден", e.desc.Name))
	case errors.Is(err, store.ErrValidation):
		return Unprocessable(err.Error())
	default:
		e.logError(err, op)
		return Internal(err)
	}
}

func (e *Engine) logError(err error, op string) {
	e.logger.Error("Ошибка операции",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
