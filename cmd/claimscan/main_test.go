package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/config"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/qr"
	"github.com/shopspring/decimal"
)

// fakeBackend serves the REST endpoints the scanner uses.
type fakeBackend struct {
	mu      sync.Mutex
	items   []model.ItemRecord
	order   model.Order
	adjusts []model.AdjustRequest
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, b.items)
	})
	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, []model.Order{})
	})
	mux.HandleFunc("GET /orders/number/{number}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if r.PathValue("number") != b.order.OrderNumber {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeTestJSON(w, http.StatusOK, b.order)
	})
	mux.HandleFunc("PATCH /orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.order.Status == "claimed" {
			writeTestJSON(w, http.StatusConflict, model.ConflictResponse{Status: "claimed", ClaimedDate: b.order.ClaimedDate})
			return
		}
		now := time.Now()
		b.order.Status = "claimed"
		b.order.ClaimedDate = &now
		writeTestJSON(w, http.StatusOK, b.order)
	})
	mux.HandleFunc("PATCH /items/{id}/adjust", func(w http.ResponseWriter, r *http.Request) {
		var req model.AdjustRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		b.mu.Lock()
		b.adjusts = append(b.adjusts, req)
		b.mu.Unlock()
		writeTestJSON(w, http.StatusOK, model.ItemRecord{})
	})
	return mux
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	created := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	b := &fakeBackend{
		items: []model.ItemRecord{
			{ID: uuid.New(), Name: "Polo Shirt", EducationLevel: "College", Size: "Medium", Stock: 5, BeginningInventory: 5, Price: decimal.NewFromInt(320), CreatedAt: created},
			{ID: uuid.New(), Name: "Polo Shirt", EducationLevel: "College", Size: "Large", Stock: 3, BeginningInventory: 3, Price: decimal.NewFromInt(340), CreatedAt: created.Add(time.Hour)},
			{ID: uuid.New(), Name: "Logo Patch", EducationLevel: "College", Size: "N/A", Stock: 10, BeginningInventory: 10, Price: decimal.NewFromInt(45), CreatedAt: created},
		},
		order: model.Order{
			ID:             uuid.New(),
			OrderNumber:    "ORD-20250901-0001",
			Status:         "pending",
			EducationLevel: "College",
			StudentName:    "Ana Cruz",
			Items: []model.OrderLine{
				{Name: "Polo Shirt", Size: "Medium", Quantity: 1},
				{Name: "Logo Patch", Size: "N/A", Quantity: 2},
			},
		},
	}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func newTestApp(t *testing.T, backendURL, input string) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &app{
		cfg: &config.Config{
			BackendURL:  backendURL,
			QRValidity:  7 * 24 * time.Hour,
			CallTimeout: 2 * time.Second,
			JournalPath: filepath.Join(t.TempDir(), "journal.db"),
		},
		out:   out,
		lines: bufio.NewScanner(strings.NewReader(input)),
	}, out
}

func TestScanReleasesOrder(t *testing.T) {
	b, srv := newFakeBackend(t)
	a, out := newTestApp(t, srv.URL, "")

	now := time.Now()
	payload, err := qr.Encode(qr.Payload{OrderNumber: b.order.OrderNumber, IssuedAt: &now})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := a.run(context.Background(), "scan", []string{"-payload", payload, "-yes", "-listen=false"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out.String(), "Released order ORD-20250901-0001 to Ana Cruz") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.adjusts) != 2 {
		t.Fatalf("expected 2 adjustments, got %+v", b.adjusts)
	}
	if b.adjusts[0].Adjustment != -1 || b.adjusts[0].Size != "Medium" {
		t.Errorf("polo adjustment: %+v", b.adjusts[0])
	}
	if b.adjusts[1].Adjustment != -2 || b.adjusts[1].Size != "" {
		t.Errorf("sizeless adjustment must omit size: %+v", b.adjusts[1])
	}
}

func TestScanSecondReleaseIsRejected(t *testing.T) {
	b, srv := newFakeBackend(t)
	now := time.Now()
	b.order.Status = "claimed"
	b.order.ClaimedDate = &now
	a, out := newTestApp(t, srv.URL, "")

	if err := a.run(context.Background(), "scan", []string{"-payload", b.order.OrderNumber, "-yes", "-listen=false"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out.String(), "AlreadyClaimed") {
		t.Errorf("expected AlreadyClaimed, got:\n%s", out.String())
	}
	if len(b.adjusts) != 0 {
		t.Errorf("claimed order must not adjust inventory, got %+v", b.adjusts)
	}
}

func TestScanOperatorDeclines(t *testing.T) {
	b, srv := newFakeBackend(t)
	a, out := newTestApp(t, srv.URL, "n\n")

	if err := a.run(context.Background(), "scan", []string{"-payload", b.order.OrderNumber, "-listen=false"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out.String(), "Cancelled.") {
		t.Errorf("expected cancellation, got:\n%s", out.String())
	}
	if b.order.Status != "pending" {
		t.Errorf("declined release must not claim, status %q", b.order.Status)
	}
}

func TestView(t *testing.T) {
	_, srv := newFakeBackend(t)
	a, out := newTestApp(t, srv.URL, "")

	if err := a.run(context.Background(), "view", []string{"-name", "polo shirt"}); err != nil {
		t.Fatalf("view: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Polo Shirt (College)", "*Medium", "Large", "TOTAL"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestIssue(t *testing.T) {
	a, out := newTestApp(t, "", "")

	err := a.run(context.Background(), "issue", []string{"-order", "ORD-20250901-0001", "-issued", "2025-09-01T08:00:00Z"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	first := strings.SplitN(out.String(), "\n", 2)[0]
	p, err := qr.Decode(first)
	if err != nil {
		t.Fatalf("issued payload does not decode: %v", err)
	}
	if p.OrderNumber != "ORD-20250901-0001" || p.IssuedAt == nil || !p.IssuedAt.Equal(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestReconcileListEmpty(t *testing.T) {
	a, out := newTestApp(t, "", "")
	if err := a.run(context.Background(), "reconcile", []string{"-list"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(out.String(), "Nothing pending.") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _ := newTestApp(t, "", "")
	var ue usageError
	if err := a.run(context.Background(), "frobnicate", nil); !errors.As(err, &ue) {
		t.Errorf("expected usage error, got %v", err)
	}
}
