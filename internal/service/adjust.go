package service

import (
	"errors"
	"fmt"

	"github.com/grraffic/ordertracking/internal/ledger"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/normalize"
)

// Errors returned by inventory adjustments.
var (
	ErrZeroAdjustment = errors.New("adjustment must be non-zero")
	ErrSizeNotFound   = errors.New("size not found on item")
	ErrSizeRequired   = errors.New("size is required for an item with several sizes")
	ErrKeyReused      = errors.New("adjustment key already used for another item")
)

// stockLayers is the FIFO view of one stock line: units from beginning
// inventory are consumed before purchased units.
type stockLayers struct {
	stock     int
	begin     int
	purchases int
}

func newLayers(stored, begin int, purchases *int) stockLayers {
	p := max(0, stored-begin)
	if purchases != nil {
		p = *purchases
	}
	return stockLayers{stock: max(stored, begin+p), begin: begin, purchases: p}
}

// apply adds delta. Removals drain beginning inventory first, then
// purchases; additions count as purchases. The result always satisfies
// stock >= begin+purchases, so the displayed stock equals stock.
func (l stockLayers) apply(delta int) (stockLayers, error) {
	next := l.stock + delta
	if next < 0 {
		return l, fmt.Errorf("%w: %d available, %d requested", model.ErrInsufficientStock, l.stock, -delta)
	}
	if delta > 0 {
		return stockLayers{stock: next, begin: l.begin, purchases: l.purchases + delta}, nil
	}
	take := -delta
	fromBegin := min(l.begin, take)
	return stockLayers{
		stock:     next,
		begin:     l.begin - fromBegin,
		purchases: max(0, l.purchases-(take-fromBegin)),
	}, nil
}

// applyAdjustment returns rec with delta applied to the stock line size
// selects. The record's aggregate primitives are kept equal to the sum of
// its ledger entries, and the ledger is re-encoded into Note.
func applyAdjustment(rec model.ItemRecord, size string, delta int) (model.ItemRecord, error) {
	if delta == 0 {
		return rec, ErrZeroAdjustment
	}

	switch rec.Ledger.Kind {
	case ledger.Sizes:
		return adjustSizeLedger(rec, size, delta)
	case ledger.Accessories:
		return adjustAccessoryLedger(rec, delta)
	}

	if size != "" && !normalize.IsSizeless(size) && !normalize.SizeIn(size, rec.Size) {
		return rec, fmt.Errorf("%w: %q", ErrSizeNotFound, size)
	}
	l, err := newLayers(rec.Stock, rec.BeginningInventory, rec.Purchases).apply(delta)
	if err != nil {
		return rec, err
	}
	rec.Stock, rec.BeginningInventory = l.stock, l.begin
	rec.Purchases = &l.purchases
	return rec, nil
}

func adjustSizeLedger(rec model.ItemRecord, size string, delta int) (model.ItemRecord, error) {
	led := rec.Ledger.Clone()

	idx := -1
	switch {
	case size == "" && len(led.Entries) == 1:
		idx = 0
	case size == "":
		return rec, ErrSizeRequired
	default:
		for i, e := range led.Entries {
			if e.Placeholder() {
				continue
			}
			if label, ok := led.EntrySize(i); ok && normalize.SizeMatches(label, size) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return rec, fmt.Errorf("%w: %q", ErrSizeNotFound, size)
	}

	e := &led.Entries[idx]
	l, err := newLayers(e.Stock, e.BeginningInventory, e.Purchases).apply(delta)
	if err != nil {
		label, _ := led.EntrySize(idx)
		return rec, fmt.Errorf("size %s: %w", label, err)
	}
	setEntry(e, l)
	return withLedger(rec, led)
}

func adjustAccessoryLedger(rec model.ItemRecord, delta int) (model.ItemRecord, error) {
	led := rec.Ledger.Clone()
	if len(led.Entries) == 0 {
		return rec, fmt.Errorf("%w: empty accessory ledger", model.ErrInsufficientStock)
	}

	if delta > 0 {
		e := &led.Entries[0]
		l, _ := newLayers(e.Stock, e.BeginningInventory, e.Purchases).apply(delta)
		setEntry(e, l)
		return withLedger(rec, led)
	}

	available := 0
	for _, e := range led.Entries {
		available += newLayers(e.Stock, e.BeginningInventory, e.Purchases).stock
	}
	if available < -delta {
		return rec, fmt.Errorf("%w: %d available, %d requested", model.ErrInsufficientStock, available, -delta)
	}

	remaining := -delta
	for i := range led.Entries {
		if remaining == 0 {
			break
		}
		e := &led.Entries[i]
		l := newLayers(e.Stock, e.BeginningInventory, e.Purchases)
		take := min(remaining, l.stock)
		if take == 0 {
			continue
		}
		l, _ = l.apply(-take)
		setEntry(e, l)
		remaining -= take
	}
	return withLedger(rec, led)
}

func setEntry(e *ledger.Entry, l stockLayers) {
	e.Stock = l.stock
	e.BeginningInventory = l.begin
	p := l.purchases
	e.Purchases = &p
}

func withLedger(rec model.ItemRecord, led ledger.Ledger) (model.ItemRecord, error) {
	note, err := led.Encode()
	if err != nil {
		return rec, fmt.Errorf("encode ledger: %w", err)
	}

	stock, begin, purchases := 0, 0, 0
	for _, e := range led.Entries {
		l := newLayers(e.Stock, e.BeginningInventory, e.Purchases)
		stock += l.stock
		begin += l.begin
		purchases += l.purchases
	}
	rec.Ledger = led
	rec.Note = note
	rec.Stock = stock
	rec.BeginningInventory = begin
	rec.Purchases = &purchases
	return rec, nil
}
