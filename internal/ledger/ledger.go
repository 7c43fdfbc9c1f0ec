// Package ledger decodes the per-option stock breakdown that item records
// carry inside their free-text note field.
//
// A note is parsed exactly once, at the data-access boundary, into a Ledger
// whose Kind says which shape it had. Anything that is not a well-formed
// ledger document decodes to Kind None; callers then fall back to the
// record's own stock and price.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/shopspring/decimal"
)

// Kind is the shape of a ledger.
type Kind int

const (
	None Kind = iota
	Sizes
	Accessories
)

func (k Kind) String() string {
	switch k {
	case None:
		return "None"
	case Sizes:
		return "Sizes"
	case Accessories:
		return "Accessories"
	default:
		return "Unknown"
	}
}

// Entry is one stock/price line of a ledger. Size is empty for accessories.
type Entry struct {
	Size                        string
	Stock                       int
	Price                       decimal.Decimal
	BeginningInventory          int
	Purchases                   *int // nil when the document did not record it
	BeginningInventoryUnitPrice decimal.NullDecimal
}

// Placeholder reports whether e is an unfilled form row: no size, stock or
// price. Placeholders are not purchase options.
func (e Entry) Placeholder() bool {
	return e.Size == "" && e.Stock == 0 && e.Price.IsZero()
}

// Ledger is the decoded note. The zero value is Kind None.
type Ledger struct {
	Kind    Kind
	Entries []Entry
}

// Present reports whether the ledger carries entries to use instead of the
// record primitives.
func (l Ledger) Present() bool {
	return l.Kind != None
}

// TotalStock sums entry stock.
func (l Ledger) TotalStock() int {
	total := 0
	for _, e := range l.Entries {
		total += e.Stock
	}
	return total
}

// positionalSizes names blank size entries by their position.
var positionalSizes = []string{
	"Small (S)",
	"Medium (M)",
	"Large (L)",
	"Extra Large (XL)",
	"2XL",
	"3XL",
}

// EntrySize returns the size label of entry i. A blank size takes the label
// of its position; ok is false when the position has none.
func (l Ledger) EntrySize(i int) (size string, ok bool) {
	if s := l.Entries[i].Size; s != "" {
		return s, true
	}
	if i >= len(positionalSizes) {
		return "", false
	}
	return positionalSizes[i], true
}

// Clone returns a deep copy safe to mutate.
func (l Ledger) Clone() Ledger {
	out := Ledger{Kind: l.Kind}
	if l.Entries == nil {
		return out
	}
	out.Entries = make([]Entry, len(l.Entries))
	for i, e := range l.Entries {
		if e.Purchases != nil {
			p := *e.Purchases
			e.Purchases = &p
		}
		out.Entries[i] = e
	}
	return out
}

// --- Wire format ---

type document struct {
	Type    string      `json:"type"`
	Entries []wireEntry `json:"entries"`
}

type wireEntry struct {
	Size                        string              `json:"size,omitempty"`
	Stock                       count               `json:"stock"`
	Price                       decimal.Decimal     `json:"price"`
	BeginningInventory          count               `json:"beginningInventory"`
	Purchases                   *count              `json:"purchases,omitempty"`
	BeginningInventoryUnitPrice decimal.NullDecimal `json:"beginningInventoryUnitPrice"`
}

// count accepts integers written either as JSON numbers or numeric strings,
// which older form code produced.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", s, err)
	}
	*c = count(int(f))
	return nil
}

// Parse decodes a note. It never fails: malformed documents are logged and
// treated as no ledger.
func Parse(note string) Ledger {
	note = strings.TrimSpace(note)
	if note == "" || note[0] != '{' {
		// Empty or freeform note.
		return Ledger{}
	}

	var doc document
	if err := json.Unmarshal([]byte(note), &doc); err != nil {
		log.Printf("WARN: ledger: malformed note ignored: %v", err)
		return Ledger{}
	}

	var kind Kind
	switch doc.Type {
	case enum.LedgerTypeSizeVariations:
		kind = Sizes
	case enum.LedgerTypeAccessoryEntries:
		kind = Accessories
	default:
		if doc.Type != "" {
			log.Printf("WARN: ledger: unknown type %q ignored", doc.Type)
		}
		return Ledger{}
	}

	l := Ledger{Kind: kind, Entries: make([]Entry, 0, len(doc.Entries))}
	for _, we := range doc.Entries {
		e := Entry{
			Stock:                       int(we.Stock),
			Price:                       we.Price,
			BeginningInventory:          int(we.BeginningInventory),
			BeginningInventoryUnitPrice: we.BeginningInventoryUnitPrice,
		}
		if kind == Sizes {
			e.Size = strings.TrimSpace(we.Size)
		}
		if we.Purchases != nil {
			p := int(*we.Purchases)
			e.Purchases = &p
		}
		l.Entries = append(l.Entries, e)
	}
	return l
}

// Encode renders the ledger back into note form. A None ledger encodes to
// the empty string.
func (l Ledger) Encode() (string, error) {
	var typ string
	switch l.Kind {
	case None:
		return "", nil
	case Sizes:
		typ = enum.LedgerTypeSizeVariations
	case Accessories:
		typ = enum.LedgerTypeAccessoryEntries
	default:
		return "", fmt.Errorf("encode ledger: unknown kind %d", l.Kind)
	}

	doc := document{Type: typ, Entries: make([]wireEntry, len(l.Entries))}
	for i, e := range l.Entries {
		we := wireEntry{
			Stock:                       count(e.Stock),
			Price:                       e.Price,
			BeginningInventory:          count(e.BeginningInventory),
			BeginningInventoryUnitPrice: e.BeginningInventoryUnitPrice,
		}
		if l.Kind == Sizes {
			we.Size = e.Size
		}
		if e.Purchases != nil {
			p := count(*e.Purchases)
			we.Purchases = &p
		}
		doc.Entries[i] = we
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	return string(b), nil
}
