// Package catalog rebuilds purchasable variants out of denormalized item
// records and values them with FIFO costing.
//
// Every function here is pure: it reads a catalog snapshot and never mutates
// it, so callers may invoke it concurrently on a shared snapshot.
package catalog

import (
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/ledger"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/normalize"
	"github.com/shopspring/decimal"
)

// DefaultSize is the label of a record that names no size.
const DefaultSize = "N/A"

// Policy controls which records belong to one product.
type Policy struct {
	// ScopeByEducationLevel restricts a product to records whose education
	// level matches as well as their name. The default combines levels.
	ScopeByEducationLevel bool
}

// Variant is one addressable purchase option. It is derived on every read and
// never persisted.
type Variant struct {
	SourceRecordID uuid.UUID `json:"sourceRecordId"`
	DisplayKey     string    `json:"displayKey"`
	Name           string    `json:"name"`
	EducationLevel string    `json:"educationLevel"`
	// Size is empty for accessory ledger entries.
	Size string `json:"size,omitempty"`
	// Stock is the display value: max(StoredStock, BeginningInventory+Purchases).
	Stock                       int                 `json:"stock"`
	StoredStock                 int                 `json:"storedStock"`
	Price                       decimal.Decimal     `json:"price"`
	BeginningInventory          int                 `json:"beginningInventory"`
	Purchases                   int                 `json:"purchases"`
	BeginningInventoryUnitPrice decimal.NullDecimal `json:"beginningInventoryUnitPrice"`
	// LowFidelity marks stock apportioned from a legacy comma-joined size list.
	LowFidelity bool `json:"lowFidelity,omitempty"`

	createdAt time.Time
}

// Sizeless reports whether the variant has no size to send with an adjustment.
func (v Variant) Sizeless() bool {
	return normalize.IsSizeless(v.Size)
}

// Cost is the FIFO valuation of the variant: beginning stock at its recorded
// unit cost, purchases at the current price.
func (v Variant) Cost() decimal.Decimal {
	unit := v.Price
	if v.BeginningInventoryUnitPrice.Valid && !v.BeginningInventoryUnitPrice.Decimal.IsZero() {
		unit = v.BeginningInventoryUnitPrice.Decimal
	}
	begin := unit.Mul(decimal.NewFromInt(int64(v.BeginningInventory)))
	bought := v.Price.Mul(decimal.NewFromInt(int64(v.Purchases)))
	return begin.Add(bought)
}

// Product is the consolidated view of one item for display.
type Product struct {
	Variants    []Variant       `json:"variants"`
	Selected    Variant         `json:"selected"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	TotalStock  int             `json:"totalStock"`
	LowFidelity bool            `json:"lowFidelity,omitempty"`
}

// ResolveVariants consolidates every record sharing target's identity and
// picks the variant that target itself represents. The result always has at
// least one variant.
func ResolveVariants(records []model.ItemRecord, target model.ItemRecord, p Policy) Product {
	variants := Consolidate(records, target.Name, target.EducationLevel, p)
	if len(variants) == 0 {
		variants = dedupe(sortByCreated(Expand(target)))
	}
	if len(variants) == 0 {
		variants = []Variant{recordVariant(target, DefaultSize)}
	}

	prod := Product{
		Variants:  variants,
		Selected:  selectVariant(variants, target),
		TotalCost: TotalCost(variants),
	}
	for _, v := range variants {
		prod.TotalStock += v.Stock
		if v.LowFidelity {
			prod.LowFidelity = true
		}
	}
	return prod
}

// Consolidate returns the ordered, deduplicated variants of the product named
// name. educationLevel only filters when the policy scopes by level.
func Consolidate(records []model.ItemRecord, name, educationLevel string, p Policy) []Variant {
	wantName := normalize.Name(name)
	wantLevel := normalize.EducationLevel(educationLevel)

	var raw []Variant
	for _, rec := range records {
		if normalize.Name(rec.Name) != wantName {
			continue
		}
		if p.ScopeByEducationLevel && normalize.EducationLevel(rec.EducationLevel) != wantLevel {
			continue
		}
		raw = append(raw, Expand(rec)...)
	}
	return dedupe(sortByCreated(raw))
}

// FindVariant resolves an order line to the variant whose stock it draws
// from. Among size matches a variant of the order's education level wins.
func FindVariant(records []model.ItemRecord, line model.OrderLine, educationLevel string, p Policy) (Variant, bool) {
	variants := Consolidate(records, line.Name, educationLevel, p)
	level := normalize.EducationLevel(educationLevel)

	var fallback *Variant
	for i := range variants {
		v := variants[i]
		if !normalize.SizeMatches(v.Size, line.Size) {
			continue
		}
		if level == "" || normalize.EducationLevel(v.EducationLevel) == level {
			return v, true
		}
		if fallback == nil {
			fallback = &variants[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Variant{}, false
}

// TotalCost sums the FIFO cost of variants.
func TotalCost(variants []Variant) decimal.Decimal {
	total := decimal.Zero
	for _, v := range variants {
		total = total.Add(v.Cost())
	}
	return total
}

// Expand turns one record into its raw, not yet deduplicated variants.
func Expand(rec model.ItemRecord) []Variant {
	switch rec.Ledger.Kind {
	case ledger.Sizes:
		out := make([]Variant, 0, len(rec.Ledger.Entries))
		for i, e := range rec.Ledger.Entries {
			if e.Placeholder() {
				continue
			}
			size, ok := rec.Ledger.EntrySize(i)
			if !ok {
				log.Printf("WARN: catalog: record %s entry %d has no size, skipped", rec.ID, i)
				continue
			}
			out = append(out, entryVariant(rec, size, e))
		}
		return out

	case ledger.Accessories:
		out := make([]Variant, 0, len(rec.Ledger.Entries))
		for _, e := range rec.Ledger.Entries {
			out = append(out, entryVariant(rec, "", e))
		}
		return out
	}

	if normalize.IsSizeList(rec.Size) {
		tokens := normalize.SplitSizes(rec.Size)
		if len(tokens) == 0 {
			return []Variant{recordVariant(rec, DefaultSize)}
		}
		if len(tokens) == 1 {
			return []Variant{recordVariant(rec, tokens[0])}
		}
		// No per-size breakdown exists: apportion evenly, dropping remainders.
		n := len(tokens)
		out := make([]Variant, 0, n)
		for _, tok := range tokens {
			v := newVariant(rec, tok, rec.Stock/n, rec.Price, rec.BeginningInventory/n, nil, rec.BeginningInventoryUnitPrice)
			v.LowFidelity = true
			out = append(out, v)
		}
		return out
	}

	size := strings.TrimSpace(rec.Size)
	if size == "" {
		size = DefaultSize
	}
	return []Variant{recordVariant(rec, size)}
}

func entryVariant(rec model.ItemRecord, size string, e ledger.Entry) Variant {
	return newVariant(rec, size, e.Stock, e.Price, e.BeginningInventory, e.Purchases, e.BeginningInventoryUnitPrice)
}

func recordVariant(rec model.ItemRecord, size string) Variant {
	return newVariant(rec, size, rec.Stock, rec.Price, rec.BeginningInventory, rec.Purchases, rec.BeginningInventoryUnitPrice)
}

func newVariant(rec model.ItemRecord, size string, stock int, price decimal.Decimal, begin int, purchases *int, beginPrice decimal.NullDecimal) Variant {
	p := max(0, stock-begin)
	if purchases != nil {
		p = *purchases
	}
	return Variant{
		SourceRecordID:              rec.ID,
		DisplayKey:                  rec.ID.String() + "#" + normalize.SizeKey(size),
		Name:                        rec.Name,
		EducationLevel:              rec.EducationLevel,
		Size:                        size,
		Stock:                       displayStock(stock, begin, p),
		StoredStock:                 stock,
		Price:                       price,
		BeginningInventory:          begin,
		Purchases:                   p,
		BeginningInventoryUnitPrice: beginPrice,
		createdAt:                   rec.CreatedAt,
	}
}

// displayStock guards against the stored stock lagging a newer ledger write.
func displayStock(stored, begin, purchases int) int {
	return max(stored, begin+purchases)
}

// sortByCreated orders variants oldest record first, keeping input order
// among equal timestamps.
func sortByCreated(vs []Variant) []Variant {
	slices.SortStableFunc(vs, func(a, b Variant) int {
		return a.createdAt.Compare(b.createdAt)
	})
	return vs
}

// dedupe collapses variants sharing a normalized (name, size, level) key.
// Collisions within one record are merged; across records the earliest
// record wins, which relies on vs being sorted by creation time.
func dedupe(vs []Variant) []Variant {
	out := make([]Variant, 0, len(vs))
	index := make(map[string]int, len(vs))
	for _, v := range vs {
		k := normalize.Key(v.Name, v.Size, v.EducationLevel)
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, v)
			continue
		}
		kept := &out[i]
		if kept.SourceRecordID != v.SourceRecordID {
			continue
		}
		combined := kept.Stock + v.Stock
		kept.StoredStock += v.StoredStock
		kept.Purchases = max(0, combined-kept.BeginningInventory)
		kept.Stock = displayStock(kept.StoredStock, kept.BeginningInventory, kept.Purchases)
		kept.LowFidelity = kept.LowFidelity || v.LowFidelity
	}
	return out
}

func selectVariant(vs []Variant, target model.ItemRecord) Variant {
	for _, v := range vs {
		if v.SourceRecordID == target.ID && normalize.SizeIn(v.Size, target.Size) {
			return v
		}
	}
	// The target's own entry may have lost a dedup to an older record.
	for _, v := range vs {
		if normalize.SizeIn(v.Size, target.Size) {
			return v
		}
	}
	return vs[0]
}
