package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/catalog"
	"github.com/grraffic/ordertracking/internal/journal"
	"github.com/grraffic/ordertracking/internal/model"
)

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	j := journal.NewTestJournal(t)

	pinSource := pinID
	resolvedID, err := j.Record(ctx, journal.Entry{
		OrderID: orderID, OrderNumber: "ORD-1", ItemName: "Logo Pin", ItemSize: "N/A",
		Quantity: 1, SourceRecordID: &pinSource, VariantSize: "N/A", LastError: "timeout",
		AdjustmentKey: AdjustmentKey(orderID, 1),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := j.Record(ctx, journal.Entry{
		OrderID: orderID, OrderNumber: "ORD-1", EducationLevel: "College", ItemName: "Polo", ItemSize: "Small",
		Quantity: 2, LastError: "variant not found",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := j.Record(ctx, journal.Entry{
		OrderID: orderID, OrderNumber: "ORD-1", ItemName: "Blazer", ItemSize: "Large", Quantity: 1,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	b := &mockBackend{}
	res, err := Reconcile(ctx, j, b, staticCatalog(polo(), pin()), catalog.Policy{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Resolved != 2 || res.Failed != 1 {
		t.Errorf("expected 2 resolved and 1 failed, got %+v", res)
	}

	if len(b.adjustCall) != 2 {
		t.Fatalf("expected 2 adjustments, got %d", len(b.adjustCall))
	}
	if b.adjustCall[0].id != pinID || b.adjustCall[0].req.Size != "" || b.adjustCall[0].req.Adjustment != -1 {
		t.Errorf("unexpected pin adjustment: %+v", b.adjustCall[0])
	}
	if b.adjustCall[0].req.IdempotencyKey != AdjustmentKey(orderID, 1) {
		t.Errorf("retry should replay the journaled key, got %q", b.adjustCall[0].req.IdempotencyKey)
	}
	if b.adjustCall[1].id != poloID || b.adjustCall[1].req.Size != "Small" || b.adjustCall[1].req.Adjustment != -2 {
		t.Errorf("unexpected polo adjustment: %+v", b.adjustCall[1])
	}

	pending, err := j.ListPending(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ItemName != "Blazer" {
		t.Fatalf("expected only the blazer pending, got %+v", pending)
	}
	if pending[0].Attempts != 2 || pending[0].LastError != ErrVariantNotFound.Error() {
		t.Errorf("expected attempt recorded, got %+v", pending[0])
	}
	if err := j.MarkResolved(ctx, resolvedID); err == nil {
		t.Error("pin entry should already be resolved")
	}
}

func TestReconcileAdjustFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	j := journal.NewTestJournal(t)

	source := uuid.New()
	if _, err := j.Record(ctx, journal.Entry{
		OrderID: orderID, OrderNumber: "ORD-2", ItemName: "Polo", ItemSize: "Small",
		Quantity: 3, SourceRecordID: &source, VariantSize: "Small (S)",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	b := &mockBackend{adjustFn: func(context.Context, uuid.UUID, model.AdjustRequest) (model.ItemRecord, error) {
		return model.ItemRecord{}, model.ErrInsufficientStock
	}}
	res, err := Reconcile(ctx, j, b, staticCatalog(), catalog.Policy{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Failed != 1 || res.Resolved != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if b.adjustCall[0].req.Size != "Small (S)" {
		t.Errorf("retry should reuse the variant size, got %q", b.adjustCall[0].req.Size)
	}

	pending, _ := j.ListPending(ctx)
	if len(pending) != 1 || pending[0].LastError != model.ErrInsufficientStock.Error() {
		t.Errorf("entry should stay pending with the new error: %+v", pending)
	}
}

func TestReconcileCatalogError(t *testing.T) {
	ctx := context.Background()
	j := journal.NewTestJournal(t)
	if _, err := j.Record(ctx, journal.Entry{OrderID: orderID, OrderNumber: "ORD-3", ItemName: "Polo", Quantity: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}

	boom := errors.New("backend down")
	src := &mockCatalog{getFn: func(context.Context) ([]model.ItemRecord, error) { return nil, boom }}
	if _, err := Reconcile(ctx, j, &mockBackend{}, src, catalog.Policy{}); !errors.Is(err, boom) {
		t.Errorf("expected catalog error, got %v", err)
	}
}
