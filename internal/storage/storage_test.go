package storage

import (
	"context"
	"errors"
	"testing"

	"vintedwatch/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateQuery(t *testing.T, s *Store, url, name string) int64 {
	t.Helper()
	id, err := s.CreateQuery(context.Background(), url, name)
	if err != nil {
		t.Fatalf("creating query: %v", err)
	}
	return id
}

func TestQueryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=nike", "nike")

	q, err := s.GetQuery(ctx, id)
	if err != nil {
		t.Fatalf("GetQuery() error = %v", err)
	}
	if q == nil {
		t.Fatal("GetQuery() returned nil for a stored query")
	}
	if q.Name != "nike" || !q.Active || q.LastItem != 0 {
		t.Errorf("unexpected fresh query state: %+v", q)
	}

	active, err := s.ListActiveQueries(ctx)
	if err != nil {
		t.Fatalf("ListActiveQueries() error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active query, got %d", len(active))
	}

	if err := s.SetQueryActive(ctx, id, false); err != nil {
		t.Fatalf("SetQueryActive() error = %v", err)
	}
	active, _ = s.ListActiveQueries(ctx)
	if len(active) != 0 {
		t.Errorf("deactivated query still listed as active")
	}
	all, err := s.ListQueries(ctx)
	if err != nil {
		t.Fatalf("ListQueries() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("deactivated query should still be listed, got %d", len(all))
	}

	if err := s.DeleteQuery(ctx, id); err != nil {
		t.Fatalf("DeleteQuery() error = %v", err)
	}
	q, err = s.GetQuery(ctx, id)
	if err != nil {
		t.Fatalf("GetQuery() after delete error = %v", err)
	}
	if q != nil {
		t.Error("GetQuery() should return nil after deletion")
	}
}

func TestQueryNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.DeleteQuery(ctx, 999); !errors.Is(err, models.ErrQueryNotFound) {
		t.Errorf("DeleteQuery(999) error = %v, want ErrQueryNotFound", err)
	}
	if err := s.SetQueryActive(ctx, 999, true); !errors.Is(err, models.ErrQueryNotFound) {
		t.Errorf("SetQueryActive(999) error = %v, want ErrQueryNotFound", err)
	}
}

func TestUpdateWatermark_Monotone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=x", "x")

	if err := s.UpdateWatermark(ctx, id, 1200); err != nil {
		t.Fatal(err)
	}
	// A stale writer must not move the watermark backwards.
	if err := s.UpdateWatermark(ctx, id, 900); err != nil {
		t.Fatal(err)
	}

	q, _ := s.GetQuery(ctx, id)
	if q.LastItem != 1200 {
		t.Errorf("watermark = %d, want 1200 (monotone)", q.LastItem)
	}

	if err := s.UpdateWatermark(ctx, id, 1500); err != nil {
		t.Fatal(err)
	}
	q, _ = s.GetQuery(ctx, id)
	if q.LastItem != 1500 {
		t.Errorf("watermark = %d, want 1500", q.LastItem)
	}
}

func TestInsertItemIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	qid := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=x", "x")

	item := models.Item{ID: 42, QueryID: qid, Title: "jacket", CreatedAtMs: 1000}

	inserted, err := s.InsertItemIfAbsent(ctx, item)
	if err != nil {
		t.Fatalf("InsertItemIfAbsent() error = %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report true")
	}

	inserted, err = s.InsertItemIfAbsent(ctx, item)
	if err != nil {
		t.Fatalf("InsertItemIfAbsent() repeat error = %v", err)
	}
	if inserted {
		t.Error("repeat insert should report false")
	}

	exists, err := s.ItemExists(ctx, 42)
	if err != nil {
		t.Fatalf("ItemExists() error = %v", err)
	}
	if !exists {
		t.Error("ItemExists() = false for a stored item")
	}
	exists, err = s.ItemExists(ctx, 43)
	if err != nil {
		t.Fatalf("ItemExists() error = %v", err)
	}
	if exists {
		t.Error("ItemExists() = true for an unknown item")
	}
}

func TestListItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q1 := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=a", "a")
	q2 := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=b", "b")

	fixtures := []models.Item{
		{ID: 1, QueryID: q1, Title: "old", CreatedAtMs: 1000},
		{ID: 2, QueryID: q1, Title: "new", CreatedAtMs: 3000},
		{ID: 3, QueryID: q2, Title: "other", CreatedAtMs: 2000},
	}
	for _, it := range fixtures {
		if _, err := s.InsertItemIfAbsent(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != 2 || all[1].ID != 3 || all[2].ID != 1 {
		t.Errorf("expected newest-first order [2 3 1], got %v", ids(all))
	}

	scoped, err := s.ListItems(ctx, q1, 0)
	if err != nil {
		t.Fatalf("ListItems(q1) error = %v", err)
	}
	if len(scoped) != 2 || scoped[0].ID != 2 {
		t.Errorf("expected [2 1] for query %d, got %v", q1, ids(scoped))
	}

	limited, err := s.ListItems(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ListItems(limit) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d items", len(limited))
	}
}

func ids(items []models.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestDeleteQueryCascadesItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	qid := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=x", "x")

	if _, err := s.InsertItemIfAbsent(ctx, models.Item{ID: 7, QueryID: qid, CreatedAtMs: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteQuery(ctx, qid); err != nil {
		t.Fatal(err)
	}

	exists, err := s.ItemExists(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("items should cascade away with their query")
	}
}

func TestDeleteAllQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q1 := mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=a", "a")
	mustCreateQuery(t, s, "https://www.vinted.fr/catalog?search_text=b", "b")
	if _, err := s.InsertItemIfAbsent(ctx, models.Item{ID: 7, QueryID: q1, CreatedAtMs: 1}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteAllQueries(ctx); err != nil {
		t.Fatalf("DeleteAllQueries() error = %v", err)
	}
	all, _ := s.ListQueries(ctx)
	if len(all) != 0 {
		t.Errorf("%d queries survived DeleteAllQueries", len(all))
	}
	exists, _ := s.ItemExists(ctx, 7)
	if exists {
		t.Error("items should cascade away when all queries go")
	}
}

func TestParams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetParam(ctx, ParamTimeWindow, DefaultTimeWindow)
	if err != nil {
		t.Fatalf("GetParam() error = %v", err)
	}
	if got != DefaultTimeWindow {
		t.Errorf("unset param = %q, want the default %q", got, DefaultTimeWindow)
	}

	if err := s.SetParam(ctx, ParamTimeWindow, "600"); err != nil {
		t.Fatalf("SetParam() error = %v", err)
	}
	got, _ = s.GetParam(ctx, ParamTimeWindow, DefaultTimeWindow)
	if got != "600" {
		t.Errorf("param after set = %q, want 600", got)
	}

	// Upsert replaces the previous value.
	if err := s.SetParam(ctx, ParamTimeWindow, "900"); err != nil {
		t.Fatalf("SetParam() upsert error = %v", err)
	}
	got, _ = s.GetParam(ctx, ParamTimeWindow, DefaultTimeWindow)
	if got != "900" {
		t.Errorf("param after upsert = %q, want 900", got)
	}
}
