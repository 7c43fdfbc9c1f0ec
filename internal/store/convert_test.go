package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/ledger"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func TestItemRecord(t *testing.T) {
	id := uuid.New()
	item := Item{
		ID:                          id,
		Name:                        "Polo",
		Size:                        "Small,Medium",
		Stock:                       10,
		Price:                       makeNumeric("300.00"),
		BeginningInventory:          4,
		Purchases:                   pgtype.Int4{Int32: 6, Valid: true},
		BeginningInventoryUnitPrice: makeNumeric("250.50"),
		Note:                        `{"type":"sizeVariations","entries":[{"size":"Small","stock":5,"price":300}]}`,
	}

	r := item.Record()
	if r.ID != id || r.Stock != 10 || r.BeginningInventory != 4 {
		t.Errorf("unexpected record %+v", r)
	}
	if !r.Price.Equal(decimal.NewFromInt(300)) {
		t.Errorf("price: got %s", r.Price)
	}
	if r.Purchases == nil || *r.Purchases != 6 {
		t.Errorf("purchases: got %v", r.Purchases)
	}
	if !r.BeginningInventoryUnitPrice.Valid || r.BeginningInventoryUnitPrice.Decimal.String() != "250.5" {
		t.Errorf("beginning unit price: got %+v", r.BeginningInventoryUnitPrice)
	}
	if r.Ledger.Kind != ledger.Sizes || len(r.Ledger.Entries) != 1 {
		t.Errorf("ledger not decoded: %+v", r.Ledger)
	}
}

func TestItemRecordNulls(t *testing.T) {
	r := Item{Name: "Pin", Price: makeNumeric("25")}.Record()
	if r.Purchases != nil {
		t.Error("NULL purchases should stay nil")
	}
	if r.BeginningInventoryUnitPrice.Valid {
		t.Error("NULL beginning unit price should stay invalid")
	}
	if r.Ledger.Kind != ledger.None {
		t.Error("empty note should decode to no ledger")
	}
}

func TestOrderModel(t *testing.T) {
	claimed := time.Date(2025, 9, 2, 8, 0, 0, 0, time.UTC)
	o := Order{OrderNumber: "ORD-1", Status: "claimed", ClaimedDate: pgtype.Timestamptz{Time: claimed, Valid: true}}

	m := o.Model()
	if m.ClaimedDate == nil || !m.ClaimedDate.Equal(claimed) {
		t.Errorf("claimed date: got %v", m.ClaimedDate)
	}
	if m.Items == nil {
		t.Error("items should be an empty list, not nil")
	}
	if (Order{}).ClaimedAt() != nil {
		t.Error("unclaimed order should have no claim time")
	}
}

func TestDecimalNumericRoundTrip(t *testing.T) {
	tests := []string{"0", "120.5", "1720.00", "99999.99"}
	for _, tt := range tests {
		d := decimal.RequireFromString(tt)
		if got := NumericToDecimal(DecimalToNumeric(d)); !got.Equal(d) {
			t.Errorf("%s: got %s", tt, got)
		}
	}
	if NullDecimalToNumeric(decimal.NullDecimal{}).Valid {
		t.Error("invalid NullDecimal should map to NULL")
	}
	if IntPtrToInt4(nil).Valid {
		t.Error("nil should map to NULL")
	}
}
