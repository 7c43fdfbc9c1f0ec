package store

import (
	"time"

	"github.com/grraffic/ordertracking/internal/ledger"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Record converts a row to the wire record, decoding its ledger.
func (i Item) Record() model.ItemRecord {
	r := model.ItemRecord{
		ID:                 i.ID,
		Name:               i.Name,
		EducationLevel:     i.EducationLevel,
		ItemType:           i.ItemType,
		Size:               i.Size,
		Stock:              int(i.Stock),
		Price:              NumericToDecimal(i.Price),
		BeginningInventory: int(i.BeginningInventory),
		Note:               i.Note,
		CreatedAt:          i.CreatedAt,
		Ledger:             ledger.Parse(i.Note),
	}
	if i.Purchases.Valid {
		p := int(i.Purchases.Int32)
		r.Purchases = &p
	}
	if i.BeginningInventoryUnitPrice.Valid {
		r.BeginningInventoryUnitPrice = decimal.NewNullDecimal(NumericToDecimal(i.BeginningInventoryUnitPrice))
	}
	return r
}

// Model converts a row to the wire order.
func (o Order) Model() model.Order {
	m := model.Order{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		Items:          o.Items,
		EducationLevel: o.EducationLevel,
		StudentID:      o.StudentID,
		StudentName:    o.StudentName,
		CreatedAt:      o.CreatedAt,
	}
	if m.Items == nil {
		m.Items = []model.OrderLine{}
	}
	if o.ClaimedDate.Valid {
		t := o.ClaimedDate.Time
		m.ClaimedDate = &t
	}
	return m
}

// ClaimedAt returns the claim time or nil.
func (o Order) ClaimedAt() *time.Time {
	if !o.ClaimedDate.Valid {
		return nil
	}
	t := o.ClaimedDate.Time
	return &t
}

func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

// NullDecimalToNumeric maps an invalid NullDecimal to SQL NULL.
func NullDecimalToNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return DecimalToNumeric(d.Decimal)
}

// IntPtrToInt4 maps nil to SQL NULL.
func IntPtrToInt4(p *int) pgtype.Int4 {
	if p == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*p), Valid: true}
}
