package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InventoryStore defines the DB methods needed to adjust stock.
// Satisfied by *store.Queries (and its WithTx variant).
type InventoryStore interface {
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (store.Item, error)
	UpdateItemStock(ctx context.Context, arg store.UpdateItemStockParams) (store.Item, error)
	CreateItemAdjustment(ctx context.Context, arg store.CreateItemAdjustmentParams) (store.ItemAdjustment, error)
	GetItemAdjustmentByKey(ctx context.Context, key string) (store.ItemAdjustment, error)
}

// NewInventoryStore creates an InventoryStore from a DBTX (pool or tx).
type NewInventoryStore func(db store.DBTX) InventoryStore

// AdjustRequest is a validated stock adjustment.
type AdjustRequest struct {
	ItemID     uuid.UUID
	Adjustment int
	// Size selects the ledger entry; empty for sizeless items.
	Size   string
	Reason string
	UserID uuid.UUID
	// Key makes the adjustment idempotent: a second request with the same
	// key returns the item unchanged.
	Key string
}

// InventoryService applies stock adjustments.
type InventoryService struct {
	pool     TxBeginner
	newStore NewInventoryStore
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(pool TxBeginner, newStore NewInventoryStore) *InventoryService {
	return &InventoryService{pool: pool, newStore: newStore}
}

// Adjust locks the item row, applies the adjustment to the matching stock
// line and writes an audit row, all in one transaction. A keyed adjustment
// that was already applied is not applied again.
func (s *InventoryService) Adjust(ctx context.Context, req AdjustRequest) (model.ItemRecord, error) {
	if req.Adjustment == 0 {
		return model.ItemRecord{}, ErrZeroAdjustment
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.ItemRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	item, err := st.GetItemForUpdate(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ItemRecord{}, fmt.Errorf("item %s: %w", req.ItemID, model.ErrNotFound)
		}
		return model.ItemRecord{}, fmt.Errorf("lock item: %w", err)
	}

	if req.Key != "" {
		prev, err := st.GetItemAdjustmentByKey(ctx, req.Key)
		switch {
		case err == nil && prev.ItemID != item.ID:
			return model.ItemRecord{}, fmt.Errorf("%w: %s", ErrKeyReused, req.Key)
		case err == nil:
			return item.Record(), nil
		case !errors.Is(err, pgx.ErrNoRows):
			return model.ItemRecord{}, fmt.Errorf("look up adjustment key: %w", err)
		}
	}

	rec, err := applyAdjustment(item.Record(), req.Size, req.Adjustment)
	if err != nil {
		return model.ItemRecord{}, err
	}

	updated, err := st.UpdateItemStock(ctx, store.UpdateItemStockParams{
		ID:                 item.ID,
		Stock:              int32(rec.Stock),
		BeginningInventory: int32(rec.BeginningInventory),
		Purchases:          store.IntPtrToInt4(rec.Purchases),
		Note:               rec.Note,
	})
	if err != nil {
		return model.ItemRecord{}, fmt.Errorf("update item: %w", err)
	}

	createdBy := pgtype.UUID{}
	if req.UserID != uuid.Nil {
		createdBy = pgtype.UUID{Bytes: req.UserID, Valid: true}
	}
	key := pgtype.Text{String: req.Key, Valid: req.Key != ""}
	if _, err := st.CreateItemAdjustment(ctx, store.CreateItemAdjustmentParams{
		ItemID:         item.ID,
		Size:           req.Size,
		Adjustment:     int32(req.Adjustment),
		StockAfter:     int32(rec.Stock),
		Reason:         req.Reason,
		CreatedBy:      createdBy,
		IdempotencyKey: key,
	}); err != nil {
		if isAdjustmentKeyConflict(err) {
			return model.ItemRecord{}, fmt.Errorf("%w: %s", ErrKeyReused, req.Key)
		}
		return model.ItemRecord{}, fmt.Errorf("record adjustment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ItemRecord{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated.Record(), nil
}

// isAdjustmentKeyConflict reports a unique violation on the adjustment key.
// Under the item row lock this only happens when the key was first used on
// a different item.
func isAdjustmentKeyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "idx_item_adjustments_key"
	}
	return false
}
