package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"

	"surveydesk/m/domain"
	"surveydesk/m/internal/assignment"
	"surveydesk/m/internal/cache"
	"surveydesk/m/internal/report"
	"surveydesk/m/internal/sales"
	"surveydesk/m/internal/upstream"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
	ctxToken  ctxKey = "token"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	upstream   *upstream.Client
	cache      *cache.Store
	drafts     *sales.Composer
	reconciler *assignment.Reconciler
	renderer   *report.Renderer
	printer    *report.Printer
	secret     string
}

// New constructs a Handler.
func New(client *upstream.Client, store *cache.Store, drafts *sales.Composer, reconciler *assignment.Reconciler, renderer *report.Renderer, printer *report.Printer, secret string) *Handler {
	return &Handler{
		upstream:   client,
		cache:      store,
		drafts:     drafts,
		reconciler: reconciler,
		renderer:   renderer,
		printer:    printer,
		secret:     secret,
	}
}

// Router wires up the console HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Change "*" to a list of allowed domains (e.g., ["http://localhost:3000"])
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/tools", func(r chi.Router) {
			r.Get("/groups", h.listToolGroups)
			r.Get("/{id}", h.getTool)
			r.Get("/{id}/sold-serials", h.soldSerials)
		})

		pr.Route("/customers", func(r chi.Router) {
			r.Get("/", h.listCustomers)
			r.Post("/", h.createCustomer)
			r.Put("/{id}", h.updateCustomer)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Route("/drafts", func(r chi.Router) {
				r.Post("/", h.openDraft)
				r.Get("/{id}", h.getDraft)
				r.Delete("/{id}", h.abandonDraft)
				r.Post("/{id}/items", h.addDraftItem)
				r.Delete("/{id}/items/{index}", h.removeDraftItem)
				r.Put("/{id}/payment", h.setDraftPayment)
				r.Post("/{id}/submit", h.submitDraft)
			})
			r.Get("/", h.listSales)
			r.Put("/{id}/payment-status", h.updatePaymentStatus)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/sales.csv", h.salesCSV)
			r.Get("/tools.csv", h.toolsCSV)
			r.Get("/sales/render", h.renderSalesReport)
			r.Get("/sales.pdf", h.salesPDF)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers
//
// Tokens are issued by the upstream backend; the console only verifies
// them and forwards the raw token on every upstream call.

type authClaims struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		ctx = context.WithValue(ctx, ctxToken, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func tokenFromContext(r *http.Request) string {
	if val := r.Context().Value(ctxToken); val != nil {
		if token, ok := val.(string); ok {
			return token
		}
	}
	return ""
}

// Tool handlers

func (h *Handler) listToolGroups(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	equipmentType := strings.TrimSpace(r.URL.Query().Get("type"))
	query := strings.TrimSpace(r.URL.Query().Get("query"))

	groups, err := h.cache.GroupedTools(r.Context(), tokenFromContext(r), category, equipmentType, query)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *Handler) getTool(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tool id")
		return
	}
	tool, err := h.upstream.Tool(r.Context(), tokenFromContext(r), id)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tool)
}

func (h *Handler) soldSerials(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tool id")
		return
	}
	records, err := h.upstream.SoldSerials(r.Context(), tokenFromContext(r), id)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Customer handlers

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	customers, err := h.cache.SearchCustomers(r.Context(), tokenFromContext(r), query)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if err := decodeJSON(r, &customer); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(customer.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	created, err := h.upstream.CreateCustomer(r.Context(), tokenFromContext(r), customer)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	h.cache.InvalidateCustomers()
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}
	var customer domain.Customer
	if err := decodeJSON(r, &customer); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	customer.ID = id
	updated, err := h.upstream.UpdateCustomer(r.Context(), tokenFromContext(r), customer)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	h.cache.InvalidateCustomers()
	respondJSON(w, http.StatusOK, updated)
}

// Sale draft handlers

type openDraftRequest struct {
	Customer domain.Customer `json:"customer"`
}

func (h *Handler) openDraft(w http.ResponseWriter, r *http.Request) {
	var req openDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		respondError(w, http.StatusBadRequest, "customer name is required")
		return
	}
	draft := h.drafts.Open(req.Customer)
	respondJSON(w, http.StatusCreated, draft)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.drafts.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondDraftError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

func (h *Handler) abandonDraft(w http.ResponseWriter, r *http.Request) {
	h.drafts.Abandon(chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

type addItemRequest struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	EquipmentType string `json:"equipment_type"`
}

func (h *Handler) addDraftItem(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "id")
	if _, err := h.drafts.Get(draftID); err != nil {
		respondDraftError(w, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "equipment name is required")
		return
	}

	group := assignment.GroupRef{
		Name:          req.Name,
		Category:      req.Category,
		EquipmentType: req.EquipmentType,
	}
	result, err := h.reconciler.Assign(r.Context(), tokenFromContext(r), group)
	if err != nil {
		respondAssignmentError(w, err)
		return
	}

	draft, err := h.drafts.AddItem(draftID, result.SaleItem())
	if err != nil {
		respondDraftError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

func (h *Handler) removeDraftItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item index")
		return
	}
	draft, err := h.drafts.RemoveItem(chi.URLParam(r, "id"), index)
	if err != nil {
		respondDraftError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

func (h *Handler) setDraftPayment(w http.ResponseWriter, r *http.Request) {
	var plan domain.PaymentPlan
	if err := decodeJSON(r, &plan); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	draft, err := h.drafts.SetPayment(chi.URLParam(r, "id"), plan)
	if err != nil {
		respondDraftError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

type submitDraftRequest struct {
	SendBill bool `json:"send_bill"`
}

func (h *Handler) submitDraft(w http.ResponseWriter, r *http.Request) {
	var req submitDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := h.drafts.Submit(r.Context(), tokenFromContext(r), chi.URLParam(r, "id"), req.SendBill)
	if err != nil {
		respondDraftError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

// Sale handlers

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	filters, ok := saleFilters(w, r)
	if !ok {
		return
	}
	saleList, err := h.upstream.Sales(r.Context(), tokenFromContext(r), filters)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saleList)
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !domain.ValidSaleStatus(payload.Status) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown sale status %q", payload.Status))
		return
	}
	if err := h.upstream.UpdatePaymentStatus(r.Context(), tokenFromContext(r), id, payload.Status); err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Report handlers

func (h *Handler) salesCSV(w http.ResponseWriter, r *http.Request) {
	filters, ok := saleFilters(w, r)
	if !ok {
		return
	}
	saleList, err := h.upstream.Sales(r.Context(), tokenFromContext(r), filters)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sales.csv"`)
	if err := report.WriteSalesCSV(w, saleList); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to write sales export")
	}
}

func (h *Handler) toolsCSV(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	equipmentType := strings.TrimSpace(r.URL.Query().Get("type"))
	groups, err := h.cache.GroupedTools(r.Context(), tokenFromContext(r), category, equipmentType, "")
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tools.csv"`)
	if err := report.WriteToolGroupsCSV(w, groups); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to write tools export")
	}
}

func (h *Handler) renderSalesReport(w http.ResponseWriter, r *http.Request) {
	filters, ok := saleFilters(w, r)
	if !ok {
		return
	}
	saleList, err := h.upstream.Sales(r.Context(), tokenFromContext(r), filters)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.RenderSales(w, saleList); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to render sales report")
	}
}

func (h *Handler) salesPDF(w http.ResponseWriter, r *http.Request) {
	filters, ok := saleFilters(w, r)
	if !ok {
		return
	}
	pdf, err := h.printer.SalesReport(r.Context(), tokenFromContext(r), filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate sales report PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="sales.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// saleFilters validates the optional date/status filters shared by the
// sales listing and report endpoints.
func saleFilters(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	filters := url.Values{}

	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
			return nil, false
		}
		filters.Set("start_date", startDate)
	}

	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
			return nil, false
		}
		filters.Set("end_date", endDate)
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" {
		if !domain.ValidSaleStatus(status) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown sale status %q", status))
			return nil, false
		}
		filters.Set("status", status)
	}

	return filters, true
}

// Error mapping

func respondDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sales.ErrDraftNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sales.ErrEmptyDraft):
		respondError(w, http.StatusBadRequest, err.Error())
	case isUpstreamError(err):
		respondUpstreamError(w, err)
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

func respondAssignmentError(w http.ResponseWriter, err error) {
	var aerr *assignment.Error
	if !errors.As(err, &aerr) {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	switch aerr.Reason {
	case assignment.ReasonNoStock:
		respondError(w, http.StatusConflict, aerr.Message)
	case assignment.ReasonIncompleteSet:
		respondError(w, http.StatusUnprocessableEntity, aerr.Message)
	default:
		respondError(w, http.StatusBadGateway, aerr.Message)
	}
}

func isUpstreamError(err error) bool {
	return errors.Is(err, upstream.ErrNoStock) ||
		errors.Is(err, upstream.ErrNotFound) ||
		errors.Is(err, upstream.ErrUnauthorized)
}

func respondUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "upstream rejected the session token")
	case errors.Is(err, upstream.ErrNotFound):
		respondError(w, http.StatusNotFound, "record not found upstream")
	case errors.Is(err, upstream.ErrNoStock):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusBadGateway, "upstream request failed: "+err.Error())
	}
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
