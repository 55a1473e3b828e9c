package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
)

func TestWriteDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("workflow x: %w", domain.ErrNotFound), http.StatusNotFound},
		{"stale state", fmt.Errorf("task y: %w", domain.ErrStaleState), http.StatusConflict},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"duplicate task", domain.ErrDuplicateTask, http.StatusConflict},
		{"no healthy instance", domain.ErrNoHealthyInstance, http.StatusServiceUnavailable},
		{"unknown instance", domain.ErrUnknownInstance, http.StatusNotFound},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err, "fallback")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestReadJSON(t *testing.T) {
	type payload struct {
		Type string `json:"type"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"technical-watch"}`))
	v, ok := readJSON[payload](rec, req)
	if !ok || v.Type != "technical-watch" {
		t.Fatalf("readJSON = (%+v, %v)", v, ok)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	if _, ok := readJSON[payload](rec, req); ok {
		t.Error("invalid body accepted")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	big := `{"type":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if _, ok := readJSON[payload](rec, req); ok {
		t.Error("oversized body accepted")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestRequireField(t *testing.T) {
	rec := httptest.NewRecorder()
	if !requireField(rec, "value", "type") {
		t.Error("non-empty field rejected")
	}
	if requireField(rec, "", "type") {
		t.Error("empty field accepted")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetAgentCard(t *testing.T) {
	h := &Handlers{BaseURL: "http://localhost:8080"}
	rec := httptest.NewRecorder()
	h.GetAgentCard(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var card map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card["name"] != "watchcore" || card["url"] != "http://localhost:8080" {
		t.Errorf("card = %v", card)
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerCorrelationID, "abc-123")
	CorrelationID(next).ServeHTTP(rec, req)
	if got := rec.Header().Get(headerCorrelationID); got != "abc-123" {
		t.Errorf("echoed id = %q, want abc-123", got)
	}

	rec = httptest.NewRecorder()
	CorrelationID(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get(headerCorrelationID); len(got) != 32 {
		t.Errorf("generated id = %q, want 32 hex chars", got)
	}
}
