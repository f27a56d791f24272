package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// testDoc формирует документ с системными полями.
func testDoc(n int, name string, created time.Time) Document {
	return Document{
		FieldID:        fmt.Sprintf("%032x", n),
		FieldCreatedAt: created,
		FieldUpdatedAt: created,
		"name":         name,
		"tags":         []any{"a"},
	}
}

// runCollectionTests — общий набор проверок Collection, выполняемый
// для каждой реализации Store.
func runCollectionTests(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Insert и FindByID", func(t *testing.T) {
		c := s.Collection("patrons")
		doc := testDoc(1, "Анна", base)
		if err := c.Insert(ctx, doc); err != nil {
			t.Fatalf("Insert() вернул ошибку: %v", err)
		}

		got, err := c.FindByID(ctx, doc.ID())
		if err != nil {
			t.Fatalf("FindByID() вернул ошибку: %v", err)
		}
		if got.String("name") != "Анна" {
			t.Errorf("name = %q, ожидали %q", got.String("name"), "Анна")
		}
		if !got.Time(FieldCreatedAt).Equal(base) {
			t.Errorf("createdAt = %v, ожидали %v", got.Time(FieldCreatedAt), base)
		}
		if tags := got.Strings("tags"); len(tags) != 1 || tags[0] != "a" {
			t.Errorf("tags = %v, ожидали [a]", tags)
		}
	})

	t.Run("Insert дубликата", func(t *testing.T) {
		c := s.Collection("patrons")
		err := c.Insert(ctx, testDoc(1, "Другая", base))
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Insert() дубликата: ошибка = %v, ожидали ErrConflict", err)
		}
	})

	t.Run("FindByID несуществующего", func(t *testing.T) {
		_, err := s.Collection("patrons").FindByID(ctx, fmt.Sprintf("%032x", 999))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ошибка = %v, ожидали ErrNotFound", err)
		}
	})

	t.Run("Find с сортировкой и пагинацией", func(t *testing.T) {
		c := s.Collection("items")
		names := []string{"в", "а", "г", "б"}
		for i, name := range names {
			if err := c.Insert(ctx, testDoc(10+i, name, base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("Insert() вернул ошибку: %v", err)
			}
		}

		count, err := c.Count(ctx)
		if err != nil {
			t.Fatalf("Count() вернул ошибку: %v", err)
		}
		if count != 4 {
			t.Errorf("Count() = %d, ожидали 4", count)
		}

		tests := []struct {
			name string
			opts FindOptions
			want []string
		}{
			{"по умолчанию createdAt", FindOptions{}, []string{"в", "а", "г", "б"}},
			{"createdAt desc", FindOptions{Sort: SortSpec{Field: FieldCreatedAt, Desc: true}}, []string{"б", "г", "а", "в"}},
			{"name asc", FindOptions{Sort: SortSpec{Field: "name"}}, []string{"а", "б", "в", "г"}},
			{"name desc limit", FindOptions{Sort: SortSpec{Field: "name", Desc: true}, Limit: 2}, []string{"г", "в"}},
			{"skip и limit", FindOptions{Skip: 1, Limit: 2}, []string{"а", "г"}},
			{"skip за пределами", FindOptions{Skip: 10}, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				docs, err := c.Find(ctx, tt.opts)
				if err != nil {
					t.Fatalf("Find() вернул ошибку: %v", err)
				}
				if len(docs) != len(tt.want) {
					t.Fatalf("Find() вернул %d документов, ожидали %d", len(docs), len(tt.want))
				}
				for i, doc := range docs {
					if doc.String("name") != tt.want[i] {
						t.Errorf("docs[%d].name = %q, ожидали %q", i, doc.String("name"), tt.want[i])
					}
				}
			})
		}
	})

	t.Run("Replace", func(t *testing.T) {
		c := s.Collection("patrons")
		id := fmt.Sprintf("%032x", 1)
		doc := testDoc(1, "Борис", base)
		doc[FieldUpdatedAt] = base.Add(time.Hour)
		delete(doc, "tags")
		if err := c.Replace(ctx, id, doc); err != nil {
			t.Fatalf("Replace() вернул ошибку: %v", err)
		}

		got, err := c.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID() вернул ошибку: %v", err)
		}
		if got.String("name") != "Борис" {
			t.Errorf("name = %q, ожидали %q", got.String("name"), "Борис")
		}
		if _, ok := got["tags"]; ok {
			t.Error("tags должно быть удалено после Replace()")
		}
		if !got.Time(FieldUpdatedAt).Equal(base.Add(time.Hour)) {
			t.Errorf("updatedAt = %v, ожидали %v", got.Time(FieldUpdatedAt), base.Add(time.Hour))
		}

		err = c.Replace(ctx, fmt.Sprintf("%032x", 999), doc)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Replace() несуществующего: ошибка = %v, ожидали ErrNotFound", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		c := s.Collection("patrons")
		id := fmt.Sprintf("%032x", 1)
		err := c.Update(ctx, id, func(doc Document) error {
			doc["checkouts"] = []any{"x"}
			return nil
		})
		if err != nil {
			t.Fatalf("Update() вернул ошибку: %v", err)
		}

		got, err := c.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID() вернул ошибку: %v", err)
		}
		if co := got.Strings("checkouts"); len(co) != 1 || co[0] != "x" {
			t.Errorf("checkouts = %v, ожидали [x]", co)
		}
		if !got.Time(FieldCreatedAt).Equal(base) {
			t.Errorf("Update() изменил createdAt: %v", got.Time(FieldCreatedAt))
		}

		boom := errors.New("boom")
		err = c.Update(ctx, id, func(doc Document) error {
			doc["name"] = "Не сохранится"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Update() ошибка = %v, ожидали boom", err)
		}
		got, _ = c.FindByID(ctx, id)
		if got.String("name") == "Не сохранится" {
			t.Error("Update() с ошибкой не должен менять документ")
		}

		err = c.Update(ctx, fmt.Sprintf("%032x", 999), func(Document) error { return nil })
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Update() несуществующего: ошибка = %v, ожидали ErrNotFound", err)
		}
	})

	t.Run("RunInTx откат при ошибке", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			if err := tx.Collection("admins").Insert(ctx, testDoc(50, "tx", base)); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("RunInTx() ошибка = %v, ожидали boom", err)
		}
	})

	t.Run("Delete и DeleteAll", func(t *testing.T) {
		c := s.Collection("items")
		id := fmt.Sprintf("%032x", 10)
		if err := c.Delete(ctx, id); err != nil {
			t.Fatalf("Delete() вернул ошибку: %v", err)
		}
		if err := c.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("повторный Delete(): ошибка = %v, ожидали ErrNotFound", err)
		}

		if err := c.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll() вернул ошибку: %v", err)
		}
		count, err := c.Count(ctx)
		if err != nil {
			t.Fatalf("Count() вернул ошибку: %v", err)
		}
		if count != 0 {
			t.Errorf("Count() после DeleteAll() = %d, ожидали 0", count)
		}
	})
}
