package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/jackc/pgx/v5/pgtype"
)

type Item struct {
	ID                          uuid.UUID          `json:"id"`
	Name                        string             `json:"name"`
	EducationLevel              string             `json:"education_level"`
	ItemType                    string             `json:"item_type"`
	Size                        string             `json:"size"`
	Stock                       int32              `json:"stock"`
	Price                       pgtype.Numeric     `json:"price"`
	BeginningInventory          int32              `json:"beginning_inventory"`
	Purchases                   pgtype.Int4        `json:"purchases"`
	BeginningInventoryUnitPrice pgtype.Numeric     `json:"beginning_inventory_unit_price"`
	Note                        string             `json:"note"`
	ArchivedAt                  pgtype.Timestamptz `json:"archived_at"`
	CreatedAt                   time.Time          `json:"created_at"`
	UpdatedAt                   time.Time          `json:"updated_at"`
}

type ItemAdjustment struct {
	ID             uuid.UUID   `json:"id"`
	ItemID         uuid.UUID   `json:"item_id"`
	Size           string      `json:"size"`
	Adjustment     int32       `json:"adjustment"`
	StockAfter     int32       `json:"stock_after"`
	Reason         string      `json:"reason"`
	CreatedBy      pgtype.UUID `json:"created_by"`
	IdempotencyKey pgtype.Text `json:"idempotency_key"`
	CreatedAt      time.Time   `json:"created_at"`
}

type Order struct {
	ID             uuid.UUID          `json:"id"`
	OrderNumber    string             `json:"order_number"`
	Status         string             `json:"status"`
	Items          []model.OrderLine  `json:"items"`
	EducationLevel string             `json:"education_level"`
	StudentID      string             `json:"student_id"`
	StudentName    string             `json:"student_name"`
	ClaimedDate    pgtype.Timestamptz `json:"claimed_date"`
	ClaimedBy      pgtype.UUID        `json:"claimed_by"`
	ClaimAttemptID pgtype.Text        `json:"claim_attempt_id"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
