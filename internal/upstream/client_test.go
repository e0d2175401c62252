package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestBearerTokenForwarded(t *testing.T) {
	var gotAuth string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]any{})
	})

	if _, err := client.Customers(context.Background(), "abc123"); err != nil {
		t.Fatalf("Customers: %v", err)
	}
	if gotAuth != "Bearer abc123" {
		t.Fatalf("Authorization = %q, want Bearer abc123", gotAuth)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    error
	}{
		{"conflict is no stock", http.StatusConflict, "assigned elsewhere", ErrNoStock},
		{"message sniffing for stock", http.StatusBadRequest, "group is out of stock", ErrNoStock},
		{"not found", http.StatusNotFound, "no such tool", ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, "token expired", ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "wrong role", ErrUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": tc.message})
			})
			_, err := client.AssignRandomUnit(context.Background(), "tok", "Leica GS18 Base & Rover")
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGenericUpstreamError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := client.Tool(context.Background(), "tok", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sentinel := range []error{ErrNoStock, ErrNotFound, ErrUnauthorized} {
		if errors.Is(err, sentinel) {
			t.Fatalf("generic 500 must not map to %v", sentinel)
		}
	}
}

func TestContextCancellation(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Customers(ctx, "tok"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
