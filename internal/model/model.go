// Package model holds the records exchanged with the backend of record.
package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/ledger"
	"github.com/shopspring/decimal"
)

// Errors shared by the store, the REST client and the fulfillment engine.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClaimed    = errors.New("order already claimed")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ItemRecord is a persisted, denormalized inventory row. Size is free text:
// "N/A", a single label, or a legacy comma-joined list.
type ItemRecord struct {
	ID                          uuid.UUID           `json:"id"`
	Name                        string              `json:"name"`
	EducationLevel              string              `json:"educationLevel"`
	ItemType                    string              `json:"itemType"`
	Size                        string              `json:"size"`
	Stock                       int                 `json:"stock"`
	Price                       decimal.Decimal     `json:"price"`
	BeginningInventory          int                 `json:"beginningInventory"`
	Purchases                   *int                `json:"purchases,omitempty"`
	BeginningInventoryUnitPrice decimal.NullDecimal `json:"beginningInventoryUnitPrice"`
	Note                        string              `json:"note"`
	CreatedAt                   time.Time           `json:"createdAt"`

	// Ledger is decoded from Note whenever a record is read; it is never
	// serialized on its own.
	Ledger ledger.Ledger `json:"-"`
}

// itemRecordJSON breaks the UnmarshalJSON recursion.
type itemRecordJSON ItemRecord

// UnmarshalJSON decodes the record and its embedded ledger in one step.
func (r *ItemRecord) UnmarshalJSON(b []byte) error {
	var raw itemRecordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ItemRecord(raw)
	r.Ledger = ledger.Parse(r.Note)
	return nil
}

// OrderLine is one ordered product.
type OrderLine struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Order is a student order as owned by the backend.
type Order struct {
	ID             uuid.UUID   `json:"id"`
	OrderNumber    string      `json:"orderNumber"`
	Status         string      `json:"status"`
	Items          []OrderLine `json:"items"`
	EducationLevel string      `json:"educationLevel"`
	StudentID      string      `json:"studentId"`
	StudentName    string      `json:"studentName"`
	ClaimedDate    *time.Time  `json:"claimedDate"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// AdjustRequest is the body of PATCH /items/{id}/adjust. Size is omitted for
// sizeless records.
type AdjustRequest struct {
	Adjustment int    `json:"adjustment"`
	Size       string `json:"size,omitempty"`
	Reason     string `json:"reason"`
	// IdempotencyKey identifies one logical adjustment; the backend applies
	// a key at most once.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// StatusRequest is the body of PATCH /orders/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
	// AttemptID identifies one claim attempt so the server can log and
	// deduplicate retries of the same request.
	AttemptID string `json:"attemptId,omitempty"`
}

// ConflictResponse is returned with 409 on a status transition conflict.
type ConflictResponse struct {
	Error       string     `json:"error"`
	Status      string     `json:"status"`
	ClaimedDate *time.Time `json:"claimedDate,omitempty"`
}

// AlreadyClaimedError carries the original claim date of a rejected claim.
type AlreadyClaimedError struct {
	ClaimedDate *time.Time
}

func (e *AlreadyClaimedError) Error() string {
	if e.ClaimedDate == nil {
		return ErrAlreadyClaimed.Error()
	}
	return ErrAlreadyClaimed.Error() + " on " + e.ClaimedDate.Format("2006-01-02 15:04")
}

func (e *AlreadyClaimedError) Unwrap() error { return ErrAlreadyClaimed }
