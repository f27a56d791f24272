package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // регистрация диалекта
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dialectPostgres = "postgres"
	colID           = "id"
	colCreatedAt    = "created_at"
	colUpdatedAt    = "updated_at"
	colDoc          = "doc"
	castJsonb       = "?::jsonb"
	jsonField       = "doc->>?"
)

// Compile-time проверка соответствия интерфейсам.
var (
	_ Store      = (*PostgresStore)(nil)
	_ Collection = (*pgCollection)(nil)
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore — хранилище документов в PostgreSQL.
// Каждая коллекция — отдельная таблица (id, created_at, updated_at, doc jsonb),
// схема создаётся миграциями пакета database.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
	// tx и mu заданы только внутри RunInTx. pgx.Tx не допускает
	// параллельных запросов, поэтому все обращения к tx идут под mu.
	tx pgx.Tx
	mu *sync.Mutex
}

// NewPostgresStore создаёт хранилище поверх пула подключений.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Collection возвращает коллекцию-таблицу по имени.
func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{store: s, table: name}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается, при успехе — коммитится.
// Вложенный вызов присоединяется к текущей транзакции.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	txStore := &PostgresStore{pool: s.pool, db: tx, tx: tx, mu: &sync.Mutex{}}
	if err := fn(ctx, txStore); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// acquire захватывает mu транзакции; вне транзакции — no-op.
func (s *PostgresStore) acquire() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// pgCollection — коллекция поверх таблицы PostgreSQL.
type pgCollection struct {
	store *PostgresStore
	table string
}

func (c *pgCollection) dialect() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

func (c *pgCollection) FindByID(ctx context.Context, id string) (Document, error) {
	unlock := c.store.acquire()
	defer unlock()
	return c.findByID(ctx, id)
}

// findByID читает документ; внутри транзакции строка блокируется (FOR UPDATE),
// что сериализует конкурентные изменения одного документа.
func (c *pgCollection) findByID(ctx context.Context, id string) (Document, error) {
	ds := c.dialect().
		From(c.table).
		Select(colID, colCreatedAt, colUpdatedAt, colDoc).
		Where(goqu.C(colID).Eq(id))
	if c.store.tx != nil {
		ds = ds.ForUpdate(exp.Wait)
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	doc, err := scanDocument(c.store.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа %s/%s: %w", c.table, id, err)
	}
	return doc, nil
}

func (c *pgCollection) Find(ctx context.Context, opts FindOptions) ([]Document, error) {
	unlock := c.store.acquire()
	defer unlock()

	order := sortExpression(opts.Sort.Field)
	tieBreak := goqu.I(colID).Asc()
	ordered := order.Asc()
	if opts.Sort.Desc {
		ordered = order.Desc()
		tieBreak = goqu.I(colID).Desc()
	}

	ds := c.dialect().
		From(c.table).
		Select(colID, colCreatedAt, colUpdatedAt, colDoc).
		Order(ordered, tieBreak)
	if opts.Skip > 0 {
		ds = ds.Offset(uint(opts.Skip))
	}
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	rows, err := c.store.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка %s: %w", c.table, err)
	}
	defer rows.Close()

	result := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования %s: %w", c.table, err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

func (c *pgCollection) Count(ctx context.Context) (int, error) {
	unlock := c.store.acquire()
	defer unlock()

	query, args, err := c.dialect().
		From(c.table).
		Select(goqu.COUNT(goqu.Star())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	var count int64
	if err := c.store.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта %s: %w", c.table, err)
	}
	return int(count), nil
}

func (c *pgCollection) Insert(ctx context.Context, doc Document) error {
	unlock := c.store.acquire()
	defer unlock()

	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	query, args, err := c.dialect().
		Insert(c.table).
		Rows(goqu.Record{
			colID:        doc.ID(),
			colCreatedAt: doc.Time(FieldCreatedAt),
			colUpdatedAt: doc.Time(FieldUpdatedAt),
			colDoc:       goqu.L(castJsonb, string(body)),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}

	if _, err := c.store.db.Exec(ctx, query, args...); err != nil {
		return classifyError(fmt.Sprintf("ошибка создания документа %s", c.table), err)
	}
	return nil
}

func (c *pgCollection) Replace(ctx context.Context, id string, doc Document) error {
	unlock := c.store.acquire()
	defer unlock()
	return c.replace(ctx, id, doc)
}

func (c *pgCollection) replace(ctx context.Context, id string, doc Document) error {
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	updatedAt := doc.Time(FieldUpdatedAt)
	if updatedAt.IsZero() {
		updatedAt = now()
	}

	query, args, err := c.dialect().
		Update(c.table).
		Set(goqu.Record{
			colUpdatedAt: updatedAt,
			colDoc:       goqu.L(castJsonb, string(body)),
		}).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}

	tag, err := c.store.db.Exec(ctx, query, args...)
	if err != nil {
		return classifyError(fmt.Sprintf("ошибка обновления документа %s/%s", c.table, id), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection) Update(ctx context.Context, id string, fn func(doc Document) error) error {
	// Read-modify-write должен выполняться в транзакции под FOR UPDATE
	if c.store.tx == nil {
		return c.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			return tx.Collection(c.table).Update(ctx, id, fn)
		})
	}

	unlock := c.store.acquire()
	defer unlock()

	doc, err := c.findByID(ctx, id)
	if err != nil {
		return err
	}
	createdAt := doc[FieldCreatedAt]
	if err := fn(doc); err != nil {
		return err
	}
	doc[FieldID] = id
	doc[FieldCreatedAt] = createdAt
	doc[FieldUpdatedAt] = now()
	return c.replace(ctx, id, doc)
}

func (c *pgCollection) Delete(ctx context.Context, id string) error {
	unlock := c.store.acquire()
	defer unlock()

	query, args, err := c.dialect().
		Delete(c.table).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}

	tag, err := c.store.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка удаления документа %s/%s: %w", c.table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection) DeleteAll(ctx context.Context) error {
	unlock := c.store.acquire()
	defer unlock()

	query, args, err := c.dialect().Delete(c.table).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}
	if _, err := c.store.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка очистки %s: %w", c.table, err)
	}
	return nil
}

// sortExpression отображает поле документа на выражение ORDER BY.
// Системные поля — колонки таблицы, остальные — текстовое значение из jsonb.
func sortExpression(field string) exp.Orderable {
	switch field {
	case FieldID:
		return goqu.I(colID)
	case FieldUpdatedAt:
		return goqu.I(colUpdatedAt)
	case "", FieldCreatedAt:
		return goqu.I(colCreatedAt)
	default:
		return goqu.L(jsonField, field)
	}
}

// encodeBody сериализует документ без системных полей (они хранятся в колонках).
func encodeBody(doc Document) ([]byte, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return raw, nil
}

// scanDocument собирает документ из строки таблицы.
func scanDocument(row pgx.Row) (Document, error) {
	var (
		id                   string
		createdAt, updatedAt time.Time
		raw                  []byte
	)
	if err := row.Scan(&id, &createdAt, &updatedAt, &raw); err != nil {
		return nil, err
	}

	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("некорректный jsonb документа %s: %w", id, err)
	}
	doc[FieldID] = id
	doc[FieldCreatedAt] = createdAt.UTC()
	doc[FieldUpdatedAt] = updatedAt.UTC()
	return doc, nil
}

// classifyError отображает ошибки PostgreSQL на ошибки слоя хранилища.
func classifyError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23502", "23514", "22P02": // not_null, check, invalid_text_representation
			return fmt.Errorf("%w: %s", ErrValidation, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
