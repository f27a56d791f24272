package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/catalog-module/internal/database"
	"github.com/bigkaa/goartstore/catalog-module/internal/testutil/pgtest"
)

// setupPostgres поднимает контейнер, применяет миграции и возвращает пул.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg := pgtest.Config(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	pool, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore(t *testing.T) {
	runCollectionTests(t, NewPostgresStore(setupPostgres(t)))
}

// TestPostgresStore_RollbackOnError проверяет откат транзакции.
func TestPostgresStore_RollbackOnError(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t))
	ctx := context.Background()
	doc := testDoc(1, "tx", time.Now().UTC())

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.Collection("admins").Insert(ctx, doc); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx() ошибка = %v, ожидали boom", err)
	}

	_, err = s.Collection("admins").FindByID(ctx, doc.ID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("документ должен отсутствовать после отката: ошибка = %v", err)
	}
}

// TestPostgresStore_ConcurrentUpdate проверяет, что параллельные Update
// одного документа не теряют изменения.
func TestPostgresStore_ConcurrentUpdate(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t))
	ctx := context.Background()
	doc := testDoc(1, "Анна", time.Now().UTC())
	doc["checkouts"] = []any{}
	c := s.Collection("patrons")
	if err := c.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert() вернул ошибку: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Update(ctx, doc.ID(), func(d Document) error {
				list, _ := d["checkouts"].([]any)
				d["checkouts"] = append(list, fmt.Sprintf("%032x", 100+i))
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update() вернул ошибку: %v", err)
		}
	}

	got, err := c.FindByID(ctx, doc.ID())
	if err != nil {
		t.Fatalf("FindByID() вернул ошибку: %v", err)
	}
	if len(got.Strings("checkouts")) != n {
		t.Errorf("checkouts содержит %d элементов, ожидали %d", len(got.Strings("checkouts")), n)
	}
}

// TestPostgresStore_InvalidID проверяет CHECK-ограничение формата id.
func TestPostgresStore_InvalidID(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t))
	err := s.Collection("items").Insert(context.Background(), Document{
		FieldID:        "not-hex",
		FieldCreatedAt: time.Now().UTC(),
		FieldUpdatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Insert() с некорректным id: ошибка = %v, ожидали ErrValidation", err)
	}
}
