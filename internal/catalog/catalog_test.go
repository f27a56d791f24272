package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

const testLeader = "00000nam a2200000 a 4500"

// testCatalog — движки каталога поверх общего in-memory хранилища.
type testCatalog struct {
	engines map[string]*resource.Engine
	store   *store.MemoryStore
}

func newTestCatalog(t *testing.T) *testCatalog {
	t.Helper()
	reg, err := schema.Load()
	if err != nil {
		t.Fatalf("schema.Load() вернул ошибку: %v", err)
	}
	st := store.NewMemoryStore()
	engines, err := NewEngines(reg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewEngines() вернул ошибку: %v", err)
	}

	c := &testCatalog{engines: make(map[string]*resource.Engine), store: st}
	for _, e := range engines {
		c.engines[e.Name()] = e
	}
	return c
}

func (c *testCatalog) create(t *testing.T, coll, body string) string {
	t.Helper()
	res, err := c.engines[coll].Create(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("Create(%s, %s) вернул ошибку: %v", coll, body, err)
	}
	return res.ID
}

func (c *testCatalog) item(t *testing.T, barcode string) string {
	t.Helper()
	return c.create(t, Items, fmt.Sprintf(`{"barcode":%q,"marc":{"leader":%q}}`, barcode, testLeader))
}

func (c *testCatalog) patron(t *testing.T, name string) string {
	t.Helper()
	return c.create(t, Patrons, fmt.Sprintf(`{"name":%q}`, name))
}

func (c *testCatalog) checkout(t *testing.T, itemID, patronID string) string {
	t.Helper()
	return c.create(t, Checkouts, checkoutBody(itemID, patronID))
}

func checkoutBody(itemID, patronID string) string {
	return fmt.Sprintf(`{"itemID":%q,"patronID":%q,"dueDate":"2026-11-01T12:00:00Z"}`, itemID, patronID)
}

// doc читает документ напрямую из хранилища.
func (c *testCatalog) doc(t *testing.T, coll, id string) store.Document {
	t.Helper()
	d, err := c.store.Collection(coll).FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s, %s) вернул ошибку: %v", coll, id, err)
	}
	return d
}

func (c *testCatalog) count(t *testing.T, coll string) int {
	t.Helper()
	n, err := c.store.Collection(coll).Count(context.Background())
	if err != nil {
		t.Fatalf("Count(%s) вернул ошибку: %v", coll, err)
	}
	return n
}

func (c *testCatalog) exists(coll, id string) bool {
	_, err := c.store.Collection(coll).FindByID(context.Background(), id)
	return !errors.Is(err, store.ErrNotFound)
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var apiErr *resource.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("ошибка = %v, ожидали *resource.Error со статусом %d", err, want)
	}
	if apiErr.Status != want {
		t.Fatalf("статус = %d (%s), ожидали %d", apiErr.Status, apiErr.Message, want)
	}
}

func assertItem(t *testing.T, item store.Document, status, checkoutID string) {
	t.Helper()
	if got := item.String(fieldStatus); got != status {
		t.Errorf("экземпляр %s: status = %q, ожидали %q", item.ID(), got, status)
	}
	if got := item.String(fieldCheckoutID); got != checkoutID {
		t.Errorf("экземпляр %s: checkoutID = %q, ожидали %q", item.ID(), got, checkoutID)
	}
}

func assertCheckouts(t *testing.T, patron store.Document, want ...string) {
	t.Helper()
	got := patron.Strings(fieldCheckouts)
	if len(got) != len(want) {
		t.Fatalf("читатель %s: checkouts = %v, ожидали %v", patron.ID(), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("читатель %s: checkouts = %v, ожидали %v", patron.ID(), got, want)
		}
	}
}

func TestCheckoutCreate(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")

	checkoutID := c.checkout(t, itemID, patronID)

	assertItem(t, c.doc(t, Items, itemID), StatusOut, checkoutID)
	assertCheckouts(t, c.doc(t, Patrons, patronID), checkoutID)

	co := c.doc(t, Checkouts, checkoutID)
	if co.String("status") != "on-time" || co["renewals"] != 0.0 {
		t.Errorf("значения по умолчанию выдачи: status = %v, renewals = %v", co["status"], co["renewals"])
	}
}

func TestCheckoutCreate_Conflict(t *testing.T) {
	for _, status := range []string{StatusOut, StatusMissing, StatusLost} {
		t.Run(status, func(t *testing.T) {
			c := newTestCatalog(t)
			itemID := c.item(t, "0001")
			patronID := c.patron(t, "Анна")
			if _, err := c.engines[Items].Patch(context.Background(), itemID,
				[]byte(fmt.Sprintf(`{"status":%q}`, status))); err != nil {
				t.Fatalf("Patch() вернул ошибку: %v", err)
			}
			itemBefore := c.doc(t, Items, itemID)
			patronBefore := c.doc(t, Patrons, patronID)

			_, err := c.engines[Checkouts].Create(context.Background(), []byte(checkoutBody(itemID, patronID)))
			assertStatus(t, err, http.StatusConflict)

			if c.count(t, Checkouts) != 0 {
				t.Error("при конфликте создана выдача")
			}
			itemAfter := c.doc(t, Items, itemID)
			if !itemAfter.Time("updatedAt").Equal(itemBefore.Time("updatedAt")) {
				t.Error("при конфликте изменён экземпляр")
			}
			patronAfter := c.doc(t, Patrons, patronID)
			if !patronAfter.Time("updatedAt").Equal(patronBefore.Time("updatedAt")) {
				t.Error("при конфликте изменён читатель")
			}
		})
	}
}

func TestCheckoutCreate_SecondCheckoutOfSameItem(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	first := c.checkout(t, itemID, c.patron(t, "Анна"))

	other := c.patron(t, "Борис")
	_, err := c.engines[Checkouts].Create(context.Background(), []byte(checkoutBody(itemID, other)))
	assertStatus(t, err, http.StatusConflict)

	assertItem(t, c.doc(t, Items, itemID), StatusOut, first)
	assertCheckouts(t, c.doc(t, Patrons, other))
}

func TestCheckoutCreate_MissingReferences(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")
	missing := strings.Repeat("f", 32)

	_, err := c.engines[Checkouts].Create(context.Background(), []byte(checkoutBody(missing, patronID)))
	assertStatus(t, err, http.StatusUnprocessableEntity)

	_, err = c.engines[Checkouts].Create(context.Background(), []byte(checkoutBody(itemID, missing)))
	assertStatus(t, err, http.StatusUnprocessableEntity)

	assertItem(t, c.doc(t, Items, itemID), StatusIn, "")
	if c.count(t, Checkouts) != 0 {
		t.Error("создана выдача со ссылкой на несуществующий документ")
	}
}

func TestCheckoutUpdate_ItemChanged(t *testing.T) {
	c := newTestCatalog(t)
	oldItem := c.item(t, "0001")
	newItem := c.item(t, "0002")
	patronID := c.patron(t, "Анна")
	checkoutID := c.checkout(t, oldItem, patronID)

	_, err := c.engines[Checkouts].Patch(context.Background(), checkoutID,
		[]byte(fmt.Sprintf(`{"itemID":%q}`, newItem)))
	if err != nil {
		t.Fatalf("Patch() вернул ошибку: %v", err)
	}

	assertItem(t, c.doc(t, Items, oldItem), StatusIn, "")
	assertItem(t, c.doc(t, Items, newItem), StatusOut, checkoutID)
	assertCheckouts(t, c.doc(t, Patrons, patronID), checkoutID)
}

func TestCheckoutUpdate_PatronChanged(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	oldPatron := c.patron(t, "Анна")
	newPatron := c.patron(t, "Борис")
	checkoutID := c.checkout(t, itemID, oldPatron)

	err := c.engines[Checkouts].Replace(context.Background(), checkoutID,
		[]byte(fmt.Sprintf(`{"itemID":%q,"patronID":%q,"dueDate":"2026-12-01T12:00:00Z","renewals":1}`, itemID, newPatron)))
	if err != nil {
		t.Fatalf("Replace() вернул ошибку: %v", err)
	}

	assertCheckouts(t, c.doc(t, Patrons, oldPatron))
	assertCheckouts(t, c.doc(t, Patrons, newPatron), checkoutID)
	assertItem(t, c.doc(t, Items, itemID), StatusOut, checkoutID)
}

func TestCheckoutUpdate_NewItemUnavailable(t *testing.T) {
	c := newTestCatalog(t)
	patronID := c.patron(t, "Анна")
	first := c.item(t, "0001")
	second := c.item(t, "0002")
	checkoutID := c.checkout(t, first, patronID)
	otherCheckout := c.checkout(t, second, c.patron(t, "Борис"))

	_, err := c.engines[Checkouts].Patch(context.Background(), checkoutID,
		[]byte(fmt.Sprintf(`{"itemID":%q}`, second)))
	assertStatus(t, err, http.StatusConflict)

	assertItem(t, c.doc(t, Items, first), StatusOut, checkoutID)
	assertItem(t, c.doc(t, Items, second), StatusOut, otherCheckout)
	if got := c.doc(t, Checkouts, checkoutID).String(fieldItemID); got != first {
		t.Errorf("itemID выдачи = %q, ожидали %q", got, first)
	}
}

func TestCheckoutUpdate_UnchangedReferences(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")
	checkoutID := c.checkout(t, itemID, patronID)
	itemBefore := c.doc(t, Items, itemID)

	if _, err := c.engines[Checkouts].Patch(context.Background(), checkoutID, []byte(`{"renewals":2}`)); err != nil {
		t.Fatalf("Patch() вернул ошибку: %v", err)
	}
	if !c.doc(t, Items, itemID).Time("updatedAt").Equal(itemBefore.Time("updatedAt")) {
		t.Error("экземпляр изменён без смены ссылки")
	}
}

func TestCheckoutDelete(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")
	checkoutID := c.checkout(t, itemID, patronID)

	if err := c.engines[Checkouts].Delete(context.Background(), checkoutID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}

	assertItem(t, c.doc(t, Items, itemID), StatusIn, "")
	assertCheckouts(t, c.doc(t, Patrons, patronID))
}

func TestCheckoutDelete_LostIsSticky(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")
	checkoutID := c.checkout(t, itemID, patronID)

	if _, err := c.engines[Items].Patch(context.Background(), itemID, []byte(`{"status":"lost"}`)); err != nil {
		t.Fatalf("Patch() вернул ошибку: %v", err)
	}
	if err := c.engines[Checkouts].Delete(context.Background(), checkoutID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}

	assertItem(t, c.doc(t, Items, itemID), StatusLost, "")
	assertCheckouts(t, c.doc(t, Patrons, patronID))
}

func TestCheckoutDelete_MissingReferences(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")
	checkoutID := c.checkout(t, itemID, patronID)

	// Документы удалены в обход хуков
	ctx := context.Background()
	if err := c.store.Collection(Items).Delete(ctx, itemID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}
	if err := c.store.Collection(Patrons).Delete(ctx, patronID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}

	if err := c.engines[Checkouts].Delete(ctx, checkoutID); err != nil {
		t.Fatalf("Delete() при отсутствующих ссылках вернул ошибку: %v", err)
	}
	if c.exists(Checkouts, checkoutID) {
		t.Error("выдача не удалена")
	}
}

func TestItemDelete(t *testing.T) {
	c := newTestCatalog(t)
	itemID := c.item(t, "0001")
	patronID := c.patron(t, "Анна")
	checkoutID := c.checkout(t, itemID, patronID)

	if err := c.engines[Items].Delete(context.Background(), itemID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}

	if c.exists(Checkouts, checkoutID) {
		t.Error("выдача удалённого экземпляра не удалена")
	}
	assertCheckouts(t, c.doc(t, Patrons, patronID))
}

func TestPatronDelete_TwoCheckouts(t *testing.T) {
	c := newTestCatalog(t)
	first := c.item(t, "0001")
	second := c.item(t, "0002")
	patronID := c.patron(t, "Анна")
	co1 := c.checkout(t, first, patronID)
	co2 := c.checkout(t, second, patronID)
	assertCheckouts(t, c.doc(t, Patrons, patronID), co1, co2)

	if err := c.engines[Patrons].Delete(context.Background(), patronID); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}

	for _, id := range []string{co1, co2} {
		if c.exists(Checkouts, id) {
			t.Errorf("выдача %s не удалена", id)
		}
	}
	for _, id := range []string{first, second} {
		got, err := c.engines[Items].Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get() вернул ошибку: %v", err)
		}
		if _, ok := got[fieldCheckoutID]; ok {
			t.Errorf("экземпляр %s: checkoutID не снят", id)
		}
		if got[fieldStatus] != StatusIn {
			t.Errorf("экземпляр %s: status = %v, ожидали in", id, got[fieldStatus])
		}
	}
}

func TestDeleteAllCheckouts(t *testing.T) {
	c := newTestCatalog(t)
	patronID := c.patron(t, "Анна")
	var items []string
	for i := range 4 {
		itemID := c.item(t, fmt.Sprintf("%04d", i))
		items = append(items, itemID)
		c.checkout(t, itemID, patronID)
	}

	if err := c.engines[Checkouts].DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll() вернул ошибку: %v", err)
	}

	if c.count(t, Checkouts) != 0 {
		t.Error("выдачи не удалены")
	}
	for _, id := range items {
		assertItem(t, c.doc(t, Items, id), StatusIn, "")
	}
	assertCheckouts(t, c.doc(t, Patrons, patronID))
}

func TestDeleteAllPatrons(t *testing.T) {
	c := newTestCatalog(t)
	var items []string
	for i := range 3 {
		itemID := c.item(t, fmt.Sprintf("%04d", i))
		items = append(items, itemID)
		c.checkout(t, itemID, c.patron(t, fmt.Sprintf("p%d", i)))
	}

	if err := c.engines[Patrons].DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll() вернул ошибку: %v", err)
	}

	if c.count(t, Checkouts) != 0 || c.count(t, Patrons) != 0 {
		t.Error("читатели или выдачи не удалены")
	}
	for _, id := range items {
		assertItem(t, c.doc(t, Items, id), StatusIn, "")
	}
}

func TestPatron_CheckoutsImmutable(t *testing.T) {
	c := newTestCatalog(t)
	patronID := c.patron(t, "Анна")

	_, err := c.engines[Patrons].Patch(context.Background(), patronID, []byte(`{"checkouts":[]}`))
	assertStatus(t, err, http.StatusUnprocessableEntity)

	_, err = c.engines[Items].Create(context.Background(),
		[]byte(fmt.Sprintf(`{"barcode":"1","marc":{"leader":%q},"checkoutID":%q}`, testLeader, strings.Repeat("a", 32))))
	assertStatus(t, err, http.StatusUnprocessableEntity)
}

func TestAdmin_Defaults(t *testing.T) {
	c := newTestCatalog(t)
	id := c.create(t, Admins, `{"name":"root","permissions":{"signIn":true}}`)

	got, err := c.engines[Admins].Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() вернул ошибку: %v", err)
	}
	perms, _ := got["permissions"].(map[string]any)
	if perms["signIn"] != true || perms["signOut"] != false {
		t.Errorf("permissions = %v", perms)
	}
	item, _ := perms["item"].(map[string]any)
	if item["read"] != false || item["write"] != false {
		t.Errorf("permissions.item = %v, ожидали read/write false", item)
	}
}
