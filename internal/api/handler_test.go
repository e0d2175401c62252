package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"surveydesk/m/domain"
	"surveydesk/m/internal/assignment"
	"surveydesk/m/internal/cache"
	"surveydesk/m/internal/database"
	"surveydesk/m/internal/migrations"
	"surveydesk/m/internal/report"
	"surveydesk/m/internal/sales"
	"surveydesk/m/internal/upstream"
)

const testSecret = "test_secret"

func signToken(t *testing.T, expires time.Duration) string {
	t.Helper()
	claims := authClaims{
		UserID: 1,
		Name:   "Staff",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expires)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// newConsole builds a full Handler against a fake upstream backend.
func newConsole(t *testing.T, backend http.Handler) *Handler {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	db := database.Connect(":memory:")
	t.Cleanup(func() { db.Close() })
	migrations.Run(db)

	client := upstream.New(srv.URL, 5*time.Second)
	renderer, err := report.NewRenderer("../../templates")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return New(
		client,
		cache.New(db, client, time.Minute),
		sales.NewComposer(client),
		assignment.New(client),
		renderer,
		report.NewPrinter(srv.URL),
		testSecret,
	)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthGuard(t *testing.T) {
	handler := newConsole(t, http.NotFoundHandler())
	router := handler.Router()

	if rec := doJSON(t, router, http.MethodGet, "/customers", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d, want 401", rec.Code)
	}

	expired := signToken(t, -time.Minute)
	if rec := doJSON(t, router, http.MethodGet, "/customers", expired, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d, want 401", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: status %d, want 200", rec.Code)
	}
}

func TestSaleDraftFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/assign", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, upstream.AssignResponse{
			ToolID:        41,
			ToolName:      "Leica GS18 Base & Rover",
			SetType:       domain.TypeBaseRoverCombo,
			Cost:          14500,
			InvoiceNumber: "INV-2201",
		})
	})
	mux.HandleFunc("/tools/41", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             41,
			"name":           "Leica GS18 Base & Rover",
			"invoice_number": "IMP-0097",
			"serials":        []string{"GX-1", "GX-2", "DL-7", "ER-7"},
		})
	})
	mux.HandleFunc("/sales", func(w http.ResponseWriter, r *http.Request) {
		var req upstream.SaleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad payload"})
			return
		}
		writeJSON(w, http.StatusCreated, domain.Sale{
			ID:            88,
			CustomerName:  req.CustomerName,
			Items:         req.Items,
			TotalCost:     req.TotalCost,
			Payment:       req.Payment,
			Status:        domain.SaleStatusPending,
			InvoiceNumber: "INV-2201",
		})
	})

	handler := newConsole(t, mux)
	router := handler.Router()
	token := signToken(t, time.Hour)

	rec := doJSON(t, router, http.MethodPost, "/sales/drafts", token, map[string]any{
		"customer": map[string]any{"name": "Acme Surveys", "state": "Lagos"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open draft: status %d: %s", rec.Code, rec.Body.String())
	}
	var draft sales.Draft
	if err := json.Unmarshal(rec.Body.Bytes(), &draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/sales/drafts/"+draft.ID+"/items", token, addItemRequest{
		Name:          "Leica GS18 Base & Rover",
		Category:      domain.CategoryReceiver,
		EquipmentType: domain.TypeBaseRoverCombo,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item: status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if len(draft.Items) != 1 || draft.TotalCost != 14500 {
		t.Fatalf("draft after add: %+v", draft)
	}
	item := draft.Items[0]
	if len(item.SerialSet) != 2 || item.DataloggerSerial != "DL-7" || item.ExternalRadioSerial != "ER-7" {
		t.Fatalf("line item serials: %+v", item)
	}

	rec = doJSON(t, router, http.MethodPut, "/sales/drafts/"+draft.ID+"/payment", token, domain.PaymentPlan{
		Method: domain.PaymentInstallment, Deposit: 4500, Months: 6,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set payment: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/sales/drafts/"+draft.ID+"/submit", token, submitDraftRequest{SendBill: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status %d: %s", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.Unmarshal(rec.Body.Bytes(), &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.ID != 88 || sale.TotalCost != 14500 || sale.Payment.Method != domain.PaymentInstallment {
		t.Fatalf("submitted sale: %+v", sale)
	}

	// Draft is gone after a successful submit.
	if rec := doJSON(t, router, http.MethodGet, "/sales/drafts/"+draft.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("draft after submit: status %d, want 404", rec.Code)
	}
}

func TestAddItemNoStock(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/assign", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "out of stock"})
	})

	handler := newConsole(t, mux)
	router := handler.Router()
	token := signToken(t, time.Hour)

	rec := doJSON(t, router, http.MethodPost, "/sales/drafts", token, map[string]any{
		"customer": map[string]any{"name": "Acme"},
	})
	var draft sales.Draft
	if err := json.Unmarshal(rec.Body.Bytes(), &draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/sales/drafts/"+draft.ID+"/items", token, addItemRequest{
		Name:          "Leica GS18 Base & Rover",
		Category:      domain.CategoryReceiver,
		EquipmentType: domain.TypeBaseRoverCombo,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("no stock: status %d, want 409", rec.Code)
	}

	// The failed item was never added.
	if rec := doJSON(t, router, http.MethodGet, "/sales/drafts/"+draft.ID, token, nil); rec.Code != http.StatusOK {
		t.Fatalf("get draft: status %d", rec.Code)
	} else {
		if err := json.Unmarshal(rec.Body.Bytes(), &draft); err != nil {
			t.Fatalf("decode draft: %v", err)
		}
		if len(draft.Items) != 0 {
			t.Fatalf("draft should have no items, got %d", len(draft.Items))
		}
	}
}

func TestSalesCSVExport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sales", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != domain.SaleStatusCompleted {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing filter"})
			return
		}
		writeJSON(w, http.StatusOK, []domain.Sale{
			{InvoiceNumber: "INV-1", CustomerName: "Acme Surveys", Status: domain.SaleStatusCompleted, TotalCost: 14500},
		})
	})

	handler := newConsole(t, mux)
	router := handler.Router()
	token := signToken(t, time.Hour)

	rec := doJSON(t, router, http.MethodGet, "/reports/sales.csv?status=completed", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "INV-1") || !strings.Contains(rec.Body.String(), "Acme Surveys") {
		t.Fatalf("csv body missing data: %s", rec.Body.String())
	}

	if rec := doJSON(t, router, http.MethodGet, "/reports/sales.csv?start_date=31-08-2026", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status %d, want 400", rec.Code)
	}
}

func TestToolGroupListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/grouped", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.GroupSummary{
			{Name: "Leica GS18 Base & Rover", Category: domain.CategoryReceiver, EquipmentType: domain.TypeBaseRoverCombo, Stock: 3, Cost: 14500},
		})
	})

	handler := newConsole(t, mux)
	router := handler.Router()
	token := signToken(t, time.Hour)

	rec := doJSON(t, router, http.MethodGet, "/tools/groups?category=Receiver", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list groups: status %d: %s", rec.Code, rec.Body.String())
	}
	var groups []domain.GroupSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Stock != 3 {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestUpdatePaymentStatusValidation(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/sales/9/payment-status", func(w http.ResponseWriter, r *http.Request) {
		called = true
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	})

	handler := newConsole(t, mux)
	router := handler.Router()
	token := signToken(t, time.Hour)

	if rec := doJSON(t, router, http.MethodPut, "/sales/9/payment-status", token, map[string]string{"status": "paid-ish"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: %d, want 400", rec.Code)
	}
	if called {
		t.Fatal("upstream must not be called for an invalid status")
	}

	if rec := doJSON(t, router, http.MethodPut, "/sales/9/payment-status", token, map[string]string{"status": domain.SaleStatusCompleted}); rec.Code != http.StatusOK {
		t.Fatalf("valid status: %d, want 200", rec.Code)
	}
	if !called {
		t.Fatal("upstream should have been called")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
