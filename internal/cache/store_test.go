package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"surveydesk/m/domain"
	"surveydesk/m/internal/database"
	"surveydesk/m/internal/migrations"
	"surveydesk/m/internal/upstream"
)

func newStore(t *testing.T, handler http.Handler, maxAge time.Duration) (*Store, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	db := database.Connect(":memory:")
	t.Cleanup(func() { db.Close() })
	migrations.Run(db)

	return New(db, upstream.New(srv.URL, 5*time.Second), maxAge), &calls
}

func customerHandler(customers []domain.Customer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(customers)
	})
}

func TestSearchCustomersReadThrough(t *testing.T) {
	store, calls := newStore(t, customerHandler([]domain.Customer{
		{ID: 1, Name: "Acme Surveys", Phone: "0801", State: "Lagos", Active: true},
		{ID: 2, Name: "Beacon Geomatics", Phone: "0802", State: "Abuja", Active: true},
	}), time.Minute)

	got, err := store.SearchCustomers(context.Background(), "tok", "beacon")
	if err != nil {
		t.Fatalf("SearchCustomers: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Beacon Geomatics" {
		t.Fatalf("got %+v, want only Beacon Geomatics", got)
	}

	// A second search within maxAge is served from the cache.
	if _, err := store.SearchCustomers(context.Background(), "tok", ""); err != nil {
		t.Fatalf("SearchCustomers: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", *calls)
	}

	// Invalidation forces a refresh.
	store.InvalidateCustomers()
	if _, err := store.SearchCustomers(context.Background(), "tok", ""); err != nil {
		t.Fatalf("SearchCustomers: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("upstream calls = %d, want 2 after invalidation", *calls)
	}
}

func TestGroupedToolsFilters(t *testing.T) {
	groups := []domain.GroupSummary{
		{Name: "Leica GS18 Base & Rover", Category: domain.CategoryReceiver, EquipmentType: domain.TypeBaseRoverCombo, Stock: 3, Cost: 14500, InvoiceNumber: "IMP-1"},
		{Name: "Trimble R12 Rover", Category: domain.CategoryReceiver, EquipmentType: domain.TypeRoverOnly, Stock: 5, Cost: 9000, InvoiceNumber: "IMP-2"},
	}
	store, _ := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(groups)
	}), time.Minute)

	got, err := store.GroupedTools(context.Background(), "tok", domain.CategoryReceiver, "", "leica")
	if err != nil {
		t.Fatalf("GroupedTools: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Leica GS18 Base & Rover" {
		t.Fatalf("got %+v, want only the Leica combo", got)
	}
	if got[0].Stock != 3 || got[0].Cost != 14500 {
		t.Fatalf("cached row lost data: %+v", got[0])
	}
}

func TestStaleCacheRefreshes(t *testing.T) {
	store, calls := newStore(t, customerHandler(nil), time.Duration(0))

	if _, err := store.SearchCustomers(context.Background(), "tok", ""); err != nil {
		t.Fatalf("SearchCustomers: %v", err)
	}
	if _, err := store.SearchCustomers(context.Background(), "tok", ""); err != nil {
		t.Fatalf("SearchCustomers: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("upstream calls = %d, want 2 with zero max age", *calls)
	}
}
