// Package cache keeps read-through copies of upstream collections so
// search and autocomplete do not hit the backend on every keystroke. The
// cache is disposable; the upstream backend stays the source of truth.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"surveydesk/m/domain"
	"surveydesk/m/internal/upstream"
)

const customersKey = "customers"

// state tracks freshness per cached collection. The generation counter
// makes sure a slow refresh that was superseded by a newer one is
// discarded instead of applied.
type state struct {
	gen       uint64
	fetchedAt time.Time
}

// Store is the sqlx-backed read-through cache.
type Store struct {
	db       *sqlx.DB
	upstream *upstream.Client
	maxAge   time.Duration

	mu     sync.Mutex
	states map[string]*state
}

// New constructs a Store.
func New(db *sqlx.DB, client *upstream.Client, maxAge time.Duration) *Store {
	return &Store{
		db:       db,
		upstream: client,
		maxAge:   maxAge,
		states:   make(map[string]*state),
	}
}

// SearchCustomers returns cached customers matching the query, refreshing
// the cache from upstream when it has gone stale.
func (s *Store) SearchCustomers(ctx context.Context, token, query string) ([]domain.Customer, error) {
	if s.stale(customersKey) {
		gen := s.begin(customersKey)
		customers, err := s.upstream.Customers(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("refresh customer cache: %w", err)
		}
		if err := s.commitCustomers(gen, customers); err != nil {
			return nil, err
		}
	}

	sql := `SELECT id, name, phone, email, state, active FROM customers_cache`
	args := []any{}
	if query != "" {
		like := "%" + query + "%"
		sql += ` WHERE name LIKE ? OR phone LIKE ? OR email LIKE ?`
		args = append(args, like, like, like)
	}
	sql += ` ORDER BY name LIMIT 25`

	var customers []domain.Customer
	if err := s.db.SelectContext(ctx, &customers, s.db.Rebind(sql), args...); err != nil {
		return nil, fmt.Errorf("search customer cache: %w", err)
	}
	return customers, nil
}

// InvalidateCustomers forces the next search to refresh from upstream,
// used after the console writes a customer through to the backend.
func (s *Store) InvalidateCustomers() {
	s.mu.Lock()
	if st, ok := s.states[customersKey]; ok {
		st.fetchedAt = time.Time{}
	}
	s.mu.Unlock()
}

// GroupedTools returns cached group summaries for the category/type pair,
// optionally narrowed by a name query.
func (s *Store) GroupedTools(ctx context.Context, token, category, equipmentType, query string) ([]domain.GroupSummary, error) {
	key := "groups|" + category + "|" + equipmentType
	if s.stale(key) {
		gen := s.begin(key)
		groups, err := s.upstream.GroupedTools(ctx, token, category, equipmentType)
		if err != nil {
			return nil, fmt.Errorf("refresh tool group cache: %w", err)
		}
		if err := s.commitGroups(key, gen, category, equipmentType, groups); err != nil {
			return nil, err
		}
	}

	sql := `SELECT name, category, equipment_type, stock, cost, invoice_number FROM tool_groups_cache`
	var (
		clauses []string
		args    []any
	)
	if category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, category)
	}
	if equipmentType != "" {
		clauses = append(clauses, "equipment_type = ?")
		args = append(args, equipmentType)
	}
	if query != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+query+"%")
	}
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	sql += " ORDER BY name LIMIT 50"

	var groups []domain.GroupSummary
	if err := s.db.SelectContext(ctx, &groups, s.db.Rebind(sql), args...); err != nil {
		return nil, fmt.Errorf("search tool group cache: %w", err)
	}
	return groups, nil
}

func (s *Store) stale(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return !ok || time.Since(st.fetchedAt) >= s.maxAge
}

func (s *Store) begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &state{}
		s.states[key] = st
	}
	st.gen++
	return st.gen
}

// latest reports whether gen is still the newest refresh for key, marking
// the collection fresh when it is.
func (s *Store) latest(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[key]
	if st == nil || st.gen != gen {
		return false
	}
	st.fetchedAt = time.Now()
	return true
}

func (s *Store) commitCustomers(gen uint64, customers []domain.Customer) error {
	if !s.latest(customersKey, gen) {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM customers_cache`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear customer cache: %w", err)
	}
	insert := s.db.Rebind(`INSERT INTO customers_cache (id, name, phone, email, state, active) VALUES (?, ?, ?, ?, ?, ?)`)
	for _, c := range customers {
		if _, err := tx.Exec(insert, c.ID, c.Name, c.Phone, c.Email, c.State, c.Active); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write customer cache: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) commitGroups(key string, gen uint64, category, equipmentType string, groups []domain.GroupSummary) error {
	if !s.latest(key, gen) {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}

	clearStmt := `DELETE FROM tool_groups_cache`
	var (
		clauses []string
		args    []any
	)
	if category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, category)
	}
	if equipmentType != "" {
		clauses = append(clauses, "equipment_type = ?")
		args = append(args, equipmentType)
	}
	if len(clauses) > 0 {
		clearStmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	if _, err := tx.Exec(s.db.Rebind(clearStmt), args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear tool group cache: %w", err)
	}

	insert := s.db.Rebind(`INSERT INTO tool_groups_cache (name, category, equipment_type, stock, cost, invoice_number) VALUES (?, ?, ?, ?, ?, ?)`)
	for _, g := range groups {
		if _, err := tx.Exec(insert, g.Name, g.Category, g.EquipmentType, g.Stock, g.Cost, g.InvoiceNumber); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write tool group cache: %w", err)
		}
	}
	return tx.Commit()
}
