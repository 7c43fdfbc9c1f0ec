package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const itemColumns = `id, name, education_level, item_type, size, stock, price, beginning_inventory,
       purchases, beginning_inventory_unit_price, note, archived_at, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var i Item
	err := row.Scan(
		&i.ID, &i.Name, &i.EducationLevel, &i.ItemType, &i.Size, &i.Stock, &i.Price,
		&i.BeginningInventory, &i.Purchases, &i.BeginningInventoryUnitPrice, &i.Note,
		&i.ArchivedAt, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const listItems = `SELECT ` + itemColumns + `
FROM items
WHERE archived_at IS NULL
ORDER BY created_at, id`

func (q *Queries) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := q.db.Query(ctx, listItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getItem = `SELECT ` + itemColumns + `
FROM items
WHERE id = $1`

func (q *Queries) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	return scanItem(q.db.QueryRow(ctx, getItem, id))
}

const getItemForUpdate = `SELECT ` + itemColumns + `
FROM items
WHERE id = $1 AND archived_at IS NULL
FOR UPDATE`

// GetItemForUpdate locks an active item row until the transaction ends.
func (q *Queries) GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error) {
	return scanItem(q.db.QueryRow(ctx, getItemForUpdate, id))
}

const createItem = `INSERT INTO items (name, education_level, item_type, size, stock, price,
       beginning_inventory, purchases, beginning_inventory_unit_price, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + itemColumns

type CreateItemParams struct {
	Name                        string
	EducationLevel              string
	ItemType                    string
	Size                        string
	Stock                       int32
	Price                       pgtype.Numeric
	BeginningInventory          int32
	Purchases                   pgtype.Int4
	BeginningInventoryUnitPrice pgtype.Numeric
	Note                        string
}

func (q *Queries) CreateItem(ctx context.Context, arg CreateItemParams) (Item, error) {
	return scanItem(q.db.QueryRow(ctx, createItem,
		arg.Name, arg.EducationLevel, arg.ItemType, arg.Size, arg.Stock, arg.Price,
		arg.BeginningInventory, arg.Purchases, arg.BeginningInventoryUnitPrice, arg.Note,
	))
}

const updateItemStock = `UPDATE items
SET stock = $2, beginning_inventory = $3, purchases = $4, note = $5, updated_at = now()
WHERE id = $1
RETURNING ` + itemColumns

type UpdateItemStockParams struct {
	ID                 uuid.UUID
	Stock              int32
	BeginningInventory int32
	Purchases          pgtype.Int4
	Note               string
}

func (q *Queries) UpdateItemStock(ctx context.Context, arg UpdateItemStockParams) (Item, error) {
	return scanItem(q.db.QueryRow(ctx, updateItemStock,
		arg.ID, arg.Stock, arg.BeginningInventory, arg.Purchases, arg.Note,
	))
}

const archiveItem = `UPDATE items
SET archived_at = now(), updated_at = now()
WHERE id = $1 AND archived_at IS NULL
RETURNING ` + itemColumns

// ArchiveItem returns pgx.ErrNoRows when the item is missing or already
// archived.
func (q *Queries) ArchiveItem(ctx context.Context, id uuid.UUID) (Item, error) {
	return scanItem(q.db.QueryRow(ctx, archiveItem, id))
}

const adjustmentColumns = `id, item_id, size, adjustment, stock_after, reason, created_by, idempotency_key, created_at`

func scanItemAdjustment(row pgx.Row) (ItemAdjustment, error) {
	var a ItemAdjustment
	err := row.Scan(&a.ID, &a.ItemID, &a.Size, &a.Adjustment, &a.StockAfter, &a.Reason, &a.CreatedBy, &a.IdempotencyKey, &a.CreatedAt)
	return a, err
}

const createItemAdjustment = `INSERT INTO item_adjustments (item_id, size, adjustment, stock_after, reason, created_by, idempotency_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + adjustmentColumns

type CreateItemAdjustmentParams struct {
	ItemID         uuid.UUID
	Size           string
	Adjustment     int32
	StockAfter     int32
	Reason         string
	CreatedBy      pgtype.UUID
	IdempotencyKey pgtype.Text
}

func (q *Queries) CreateItemAdjustment(ctx context.Context, arg CreateItemAdjustmentParams) (ItemAdjustment, error) {
	return scanItemAdjustment(q.db.QueryRow(ctx, createItemAdjustment,
		arg.ItemID, arg.Size, arg.Adjustment, arg.StockAfter, arg.Reason, arg.CreatedBy, arg.IdempotencyKey,
	))
}

const getItemAdjustmentByKey = `SELECT ` + adjustmentColumns + `
FROM item_adjustments
WHERE idempotency_key = $1`

// GetItemAdjustmentByKey returns pgx.ErrNoRows when no adjustment was
// recorded under key.
func (q *Queries) GetItemAdjustmentByKey(ctx context.Context, key string) (ItemAdjustment, error) {
	return scanItemAdjustment(q.db.QueryRow(ctx, getItemAdjustmentByKey, key))
}

const listItemAdjustments = `SELECT ` + adjustmentColumns + `
FROM item_adjustments
WHERE item_id = $1
ORDER BY created_at, id`

func (q *Queries) ListItemAdjustments(ctx context.Context, itemID uuid.UUID) ([]ItemAdjustment, error) {
	rows, err := q.db.Query(ctx, listItemAdjustments, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ItemAdjustment{}
	for rows.Next() {
		a, err := scanItemAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
