package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse_SizeVariations(t *testing.T) {
	note := `{"type":"sizeVariations","entries":[
		{"size":" Small (S) ","stock":10,"price":300,"beginningInventory":8,"purchases":2,"beginningInventoryUnitPrice":250},
		{"size":"Medium (M)","stock":"4","price":"320.50","beginningInventory":4}
	]}`

	l := Parse(note)
	if l.Kind != Sizes {
		t.Fatalf("expected Sizes, got %s", l.Kind)
	}
	if len(l.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(l.Entries))
	}

	small := l.Entries[0]
	if small.Size != "Small (S)" {
		t.Errorf("expected trimmed size, got %q", small.Size)
	}
	if small.Purchases == nil || *small.Purchases != 2 {
		t.Errorf("expected explicit purchases 2, got %v", small.Purchases)
	}
	if !small.BeginningInventoryUnitPrice.Valid || !small.BeginningInventoryUnitPrice.Decimal.Equal(decimal.NewFromInt(250)) {
		t.Errorf("expected beginning unit price 250, got %v", small.BeginningInventoryUnitPrice)
	}

	medium := l.Entries[1]
	if medium.Stock != 4 {
		t.Errorf("expected string stock to decode to 4, got %d", medium.Stock)
	}
	if medium.Purchases != nil {
		t.Errorf("expected purchases to be absent, got %d", *medium.Purchases)
	}
	if medium.BeginningInventoryUnitPrice.Valid {
		t.Error("expected beginning unit price to be absent")
	}
	if !medium.Price.Equal(decimal.RequireFromString("320.50")) {
		t.Errorf("expected price 320.50, got %s", medium.Price)
	}
	if l.TotalStock() != 14 {
		t.Errorf("expected total stock 14, got %d", l.TotalStock())
	}
}

func TestParse_AccessoryEntries(t *testing.T) {
	l := Parse(`{"type":"accessoryEntries","entries":[{"size":"ignored","stock":3,"price":50,"beginningInventory":3}]}`)
	if l.Kind != Accessories {
		t.Fatalf("expected Accessories, got %s", l.Kind)
	}
	if l.Entries[0].Size != "" {
		t.Errorf("accessory entries carry no size, got %q", l.Entries[0].Size)
	}
}

func TestParse_NoLedger(t *testing.T) {
	tests := []struct {
		name string
		note string
	}{
		{"empty", ""},
		{"freeform", "restocked last week"},
		{"malformed json", `{"type":"sizeVariations","entries":[`},
		{"unknown type", `{"type":"bundle","entries":[]}`},
		{"bad count", `{"type":"sizeVariations","entries":[{"stock":"lots"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Parse(tt.note)
			if l.Present() {
				t.Errorf("expected no ledger, got %s", l.Kind)
			}
		})
	}
}

func TestEncode_RoundTripKeepsPurchasesPresence(t *testing.T) {
	p := 5
	in := Ledger{Kind: Sizes, Entries: []Entry{
		{Size: "Small", Stock: 15, Price: decimal.NewFromInt(120), BeginningInventory: 10, Purchases: &p,
			BeginningInventoryUnitPrice: decimal.NewNullDecimal(decimal.NewFromInt(100))},
		{Size: "Medium", Stock: 2, Price: decimal.NewFromInt(120)},
	}}

	note, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := Parse(note)
	if out.Kind != Sizes || len(out.Entries) != 2 {
		t.Fatalf("unexpected decode: %+v", out)
	}
	if out.Entries[0].Purchases == nil || *out.Entries[0].Purchases != 5 {
		t.Errorf("expected purchases 5 to survive, got %v", out.Entries[0].Purchases)
	}
	if out.Entries[1].Purchases != nil {
		t.Error("absent purchases must stay absent")
	}
}

func TestEncode_None(t *testing.T) {
	note, err := Ledger{}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if note != "" {
		t.Errorf("expected empty note, got %q", note)
	}
}

func TestClone_IsDeep(t *testing.T) {
	p := 1
	l := Ledger{Kind: Sizes, Entries: []Entry{{Size: "S", Purchases: &p}}}
	c := l.Clone()
	*c.Entries[0].Purchases = 9
	c.Entries[0].Size = "M"
	if *l.Entries[0].Purchases != 1 || l.Entries[0].Size != "S" {
		t.Error("clone shares state with the original")
	}
}

func TestEntrySize(t *testing.T) {
	l := Ledger{Kind: Sizes, Entries: make([]Entry, 7)}
	l.Entries[1].Size = "Medium"

	tests := []struct {
		i      int
		want   string
		wantOK bool
	}{
		{0, "Small (S)", true},
		{1, "Medium", true},
		{2, "Large (L)", true},
		{5, "3XL", true},
		{6, "", false},
	}
	for _, tt := range tests {
		got, ok := l.EntrySize(tt.i)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("EntrySize(%d) = %q, %v; want %q, %v", tt.i, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestEntryPlaceholder(t *testing.T) {
	if !(Entry{}).Placeholder() {
		t.Error("empty entry should be a placeholder")
	}
	if (Entry{Price: decimal.NewFromInt(200)}).Placeholder() {
		t.Error("priced entry is a purchase option")
	}
	if (Entry{Size: "Small"}).Placeholder() {
		t.Error("sized entry is a purchase option")
	}
}
