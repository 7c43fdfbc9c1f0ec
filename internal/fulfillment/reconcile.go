package fulfillment

import (
	"context"
	"fmt"
	"log"

	"github.com/grraffic/ordertracking/internal/catalog"
	"github.com/grraffic/ordertracking/internal/journal"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/normalize"
)

// PendingJournal is the journal surface a reconciliation pass needs.
// Satisfied by *journal.Journal.
type PendingJournal interface {
	ListPending(ctx context.Context) ([]journal.Entry, error)
	MarkResolved(ctx context.Context, id int64) error
	MarkAttempt(ctx context.Context, id int64, lastErr string) error
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Resolved int
	Failed   int
}

// Reconcile retries every pending journal entry once. An entry that resolved
// to a variant at claim time is retried against the same source record and
// size; otherwise the line is matched against the current catalog. Retries
// carry the entry's adjustment key, so a deduction that reached the backend
// before its response was lost is not applied twice.
func Reconcile(ctx context.Context, j PendingJournal, adj ItemAdjuster, src CatalogSource, p catalog.Policy) (ReconcileResult, error) {
	var out ReconcileResult

	entries, err := j.ListPending(ctx)
	if err != nil {
		return out, fmt.Errorf("listing pending: %w", err)
	}
	if len(entries) == 0 {
		return out, nil
	}

	var items []model.ItemRecord
	for _, e := range entries {
		req := model.AdjustRequest{
			Adjustment:     -e.Quantity,
			Reason:         fmt.Sprintf("Order %s claimed (reconciled)", e.OrderNumber),
			IdempotencyKey: e.AdjustmentKey,
		}

		target := e.SourceRecordID
		if target != nil {
			req.Size = e.VariantSize
			if normalize.IsSizeless(e.VariantSize) {
				req.Size = ""
			}
		} else {
			if items == nil {
				if items, err = src.Get(ctx); err != nil {
					return out, fmt.Errorf("loading catalog: %w", err)
				}
			}
			line := model.OrderLine{Name: e.ItemName, Size: e.ItemSize, Quantity: e.Quantity}
			v, ok := catalog.FindVariant(items, line, e.EducationLevel, p)
			if !ok {
				out.Failed++
				markAttempt(ctx, j, e, ErrVariantNotFound)
				continue
			}
			id := v.SourceRecordID
			target = &id
			if !v.Sizeless() {
				req.Size = v.Size
			}
		}

		if _, err := adj.AdjustItem(ctx, *target, req); err != nil {
			out.Failed++
			markAttempt(ctx, j, e, err)
			continue
		}
		if err := j.MarkResolved(ctx, e.ID); err != nil {
			// The adjustment went through; the next pass replays its key.
			return out, fmt.Errorf("entry %d adjusted but not marked resolved: %w", e.ID, err)
		}
		out.Resolved++
	}
	return out, nil
}

func markAttempt(ctx context.Context, j PendingJournal, e journal.Entry, cause error) {
	log.Printf("WARN: reconcile %s %q x%d: %v", e.OrderNumber, e.ItemName, e.Quantity, cause)
	if err := j.MarkAttempt(ctx, e.ID, cause.Error()); err != nil {
		log.Printf("ERROR: reconcile entry %d: %v", e.ID, err)
	}
}
