// Package fulfillment drives the claim flow: a scanned QR code is resolved to
// an order, shown to the operator, and on confirmation the order is marked
// claimed and each ordered item is deducted from inventory.
//
// The claim write is the single linearization point and is conditional at the
// backend; inventory deductions after it are best effort. Every deduction that
// fails is persisted to a reconciliation journal instead of being dropped, and
// the Released state reports it.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/catalog"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/journal"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/qr"
)

// OrderBackend defines the backend calls the claim flow needs.
// Satisfied by *client.Client; narrow interface for testability.
type OrderBackend interface {
	GetOrderByNumber(ctx context.Context, orderNumber string) (model.Order, error)
	ClaimOrder(ctx context.Context, id uuid.UUID, attemptID string) (model.Order, error)
	ItemAdjuster
}

// ItemAdjuster issues one inventory adjustment.
type ItemAdjuster interface {
	AdjustItem(ctx context.Context, id uuid.UUID, req model.AdjustRequest) (model.ItemRecord, error)
}

// CatalogSource returns the current catalog snapshot.
// Satisfied by *cache.List[model.ItemRecord].
type CatalogSource interface {
	Get(ctx context.Context) ([]model.ItemRecord, error)
}

// Journal persists failed line items. Satisfied by *journal.Journal.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Config tunes the machine.
type Config struct {
	// ValidityWindow is how long a QR code stays valid after issuance.
	ValidityWindow time.Duration
	// CallTimeout bounds each backend call. Zero means no timeout.
	CallTimeout time.Duration
	// FailureDisplay is how long Failed is shown before returning to Idle.
	// Zero disables the automatic reset.
	FailureDisplay time.Duration
	Policy         catalog.Policy
}

// Machine is the claim scanner state machine. It is safe for concurrent use;
// a second Decode or Confirm while one is in flight returns ErrBusy.
type Machine struct {
	backend OrderBackend
	catalog CatalogSource
	journal Journal
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	state    State
	busy     bool
	order    *model.Order
	attempt  string
	failure  *Failure
	release  *Release
	gen      uint64
	timer    *time.Timer
	onChange func(Snapshot)
}

// New creates a Machine in Idle. journal may be nil, in which case failed
// line items are only logged and reported.
func New(backend OrderBackend, src CatalogSource, j Journal, cfg Config) *Machine {
	return &Machine{
		backend: backend,
		catalog: src,
		journal: j,
		cfg:     cfg,
		now:     time.Now,
	}
}

// OnChange registers an observer called after every transition.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, Order: m.order, Failure: m.failure, Release: m.release}
}

// OpenScanner moves Idle to Scanning.
func (m *Machine) OpenScanner() error {
	return m.transition(func() error {
		if m.state != Idle {
			return fmt.Errorf("%w: open scanner from %s", ErrInvalidTransition, m.state)
		}
		m.setLocked(Scanning)
		return nil
	})
}

// Cancel discards the scanned order and returns to Idle.
func (m *Machine) Cancel() error {
	return m.transition(func() error {
		if m.state != AwaitingConfirmation || m.busy {
			return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, m.state)
		}
		m.order = nil
		m.attempt = ""
		m.setLocked(Idle)
		return nil
	})
}

// Reset returns a finished (Released or Failed) machine to Idle.
func (m *Machine) Reset() error {
	return m.transition(func() error {
		if m.state != Released && m.state != Failed {
			return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, m.state)
		}
		m.clearLocked()
		m.setLocked(Idle)
		return nil
	})
}

// Retry returns to AwaitingConfirmation after a transport failure that
// happened before the claim was written.
func (m *Machine) Retry() error {
	return m.transition(func() error {
		if m.state != Failed || m.failure == nil || !m.failure.Retryable() {
			return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, m.state)
		}
		m.order = m.failure.order
		m.attempt = m.failure.attemptID
		m.failure = nil
		m.setLocked(AwaitingConfirmation)
		return nil
	})
}

// Decode handles a scanned payload while Scanning. On success the machine
// ends in AwaitingConfirmation holding the order; nothing has been written.
func (m *Machine) Decode(ctx context.Context, payload string) (model.Order, error) {
	if err := m.begin(Scanning); err != nil {
		return model.Order{}, err
	}

	p, err := qr.Decode(payload)
	if err != nil {
		return model.Order{}, m.fail(&Failure{Reason: ReasonInvalidFormat, Message: "unrecognized QR code, scan again", Err: err})
	}
	if err := qr.CheckValidity(p, m.now(), m.cfg.ValidityWindow); err != nil {
		return model.Order{}, m.fail(&Failure{Reason: ReasonExpired, Message: err.Error()})
	}

	cctx, cancel := m.callContext(ctx)
	order, err := m.backend.GetOrderByNumber(cctx, p.OrderNumber)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Order{}, m.fail(&Failure{Reason: ReasonNotFound, Message: fmt.Sprintf("order %s not found", p.OrderNumber)})
		}
		return model.Order{}, m.fail(&Failure{Reason: ReasonTransportError, Message: "could not fetch order", Err: err})
	}

	switch {
	case len(order.Items) == 0:
		return model.Order{}, m.fail(&Failure{Reason: ReasonEmptyOrder, Message: fmt.Sprintf("order %s has no items", order.OrderNumber)})
	case order.Status == enum.OrderStatusClaimed:
		return model.Order{}, m.fail(&Failure{Reason: ReasonAlreadyClaimed, Message: alreadyClaimedMessage(order.OrderNumber, order.ClaimedDate)})
	case order.Status == enum.OrderStatusCancelled:
		return model.Order{}, m.fail(&Failure{Reason: ReasonCancelled, Message: fmt.Sprintf("order %s was cancelled", order.OrderNumber)})
	}

	m.finish(func() {
		m.order = &order
		m.attempt = uuid.NewString()
		m.setLocked(Scanned)
		m.notifyLocked()
		m.setLocked(AwaitingConfirmation)
	})
	return order, nil
}

// Confirm claims the order held in AwaitingConfirmation and deducts each
// ordered item from inventory.
func (m *Machine) Confirm(ctx context.Context) (*Release, error) {
	var (
		order   model.Order
		attempt string
	)
	err := m.transition(func() error {
		if m.state != AwaitingConfirmation || m.busy || m.order == nil {
			return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, m.state)
		}
		m.busy = true
		order = *m.order
		attempt = m.attempt
		m.setLocked(Releasing)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// (a) the conditional status write. The attempt ID is fixed per scan so
	// a retry after a lost response replays instead of conflicting.
	cctx, cancel := m.callContext(ctx)
	claimed, err := m.backend.ClaimOrder(cctx, order.ID, attempt)
	cancel()
	if err != nil {
		return nil, m.fail(claimFailure(order, attempt, err))
	}
	if claimed.OrderNumber == "" {
		claimed = order
	}

	// (b) best-effort inventory deductions.
	cctx, cancel = m.callContext(ctx)
	items, err := m.catalog.Get(cctx)
	cancel()
	if err != nil {
		results := make([]ItemResult, len(order.Items))
		for i, line := range order.Items {
			results[i] = m.recordFailure(ctx, order, AdjustmentKey(order.ID, i), ItemResult{Line: line, Err: err})
		}
		log.Printf("ERROR: claim %s: catalog unavailable, %d line(s) journaled: %v", order.OrderNumber, len(results), err)
		return nil, m.fail(&Failure{
			Reason:       ReasonTransportError,
			Message:      "order was claimed but inventory could not be synced",
			Err:          err,
			ClaimWritten: true,
		})
	}

	results := make([]ItemResult, len(order.Items))
	for i, line := range order.Items {
		results[i] = m.releaseLine(ctx, order, i, line, items)
	}

	rel := &Release{
		OrderNumber: order.OrderNumber,
		StudentName: order.StudentName,
		Order:       claimed,
		Results:     results,
	}
	if !rel.Complete() {
		log.Printf("WARN: claim %s: %d of %d line(s) pending reconciliation", order.OrderNumber, rel.Pending(), len(results))
	}

	m.finish(func() {
		m.order = nil
		m.attempt = ""
		m.release = rel
		m.setLocked(Released)
	})
	return rel, nil
}

func (m *Machine) releaseLine(ctx context.Context, order model.Order, i int, line model.OrderLine, items []model.ItemRecord) ItemResult {
	res := ItemResult{Line: line}
	key := AdjustmentKey(order.ID, i)
	if line.Quantity <= 0 {
		res.Err = ErrInvalidQuantity
		log.Printf("WARN: claim %s: skipped %q with quantity %d", order.OrderNumber, line.Name, line.Quantity)
		return res
	}

	v, ok := catalog.FindVariant(items, line, order.EducationLevel, m.cfg.Policy)
	if !ok {
		res.Err = ErrVariantNotFound
		return m.recordFailure(ctx, order, key, res)
	}
	res.SourceRecordID = v.SourceRecordID
	res.VariantSize = v.Size

	req := model.AdjustRequest{
		Adjustment:     -line.Quantity,
		Reason:         fmt.Sprintf("Order %s claimed", order.OrderNumber),
		IdempotencyKey: key,
	}
	if !v.Sizeless() {
		req.Size = v.Size
	}

	cctx, cancel := m.callContext(ctx)
	_, err := m.backend.AdjustItem(cctx, v.SourceRecordID, req)
	cancel()
	if err != nil {
		res.Err = err
		return m.recordFailure(ctx, order, key, res)
	}
	res.Adjusted = true
	return res
}

// AdjustmentKey identifies the inventory deduction of line i of an order.
// The claim pass and every reconciliation retry send the same key.
func AdjustmentKey(orderID uuid.UUID, i int) string {
	return fmt.Sprintf("claim:%s:%d", orderID, i)
}

// recordFailure journals a line item that was not adjusted.
func (m *Machine) recordFailure(ctx context.Context, order model.Order, key string, res ItemResult) ItemResult {
	if m.journal == nil || res.Line.Quantity <= 0 {
		log.Printf("WARN: claim %s: %q (%s) x%d not adjusted: %v", order.OrderNumber, res.Line.Name, res.Line.Size, res.Line.Quantity, res.Err)
		return res
	}

	e := journal.Entry{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		EducationLevel: order.EducationLevel,
		ItemName:       res.Line.Name,
		ItemSize:       res.Line.Size,
		Quantity:       res.Line.Quantity,
		VariantSize:    res.VariantSize,
		AdjustmentKey:  key,
	}
	if res.SourceRecordID != uuid.Nil {
		id := res.SourceRecordID
		e.SourceRecordID = &id
	}
	if res.Err != nil {
		e.LastError = res.Err.Error()
	}

	// The caller's context may be the one that just expired.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	id, err := m.journal.Record(jctx, e)
	if err != nil {
		log.Printf("ERROR: claim %s: journal %q: %v", order.OrderNumber, res.Line.Name, err)
		return res
	}
	res.JournalID = id
	return res
}

func claimFailure(order model.Order, attemptID string, err error) *Failure {
	var claimedErr *model.AlreadyClaimedError
	switch {
	case errors.As(err, &claimedErr):
		return &Failure{Reason: ReasonAlreadyClaimed, Message: alreadyClaimedMessage(order.OrderNumber, claimedErr.ClaimedDate)}
	case errors.Is(err, model.ErrAlreadyClaimed):
		return &Failure{Reason: ReasonAlreadyClaimed, Message: alreadyClaimedMessage(order.OrderNumber, nil)}
	case errors.Is(err, model.ErrNotFound):
		return &Failure{Reason: ReasonNotFound, Message: fmt.Sprintf("order %s not found", order.OrderNumber)}
	case errors.Is(err, model.ErrOrderCancelled):
		return &Failure{Reason: ReasonCancelled, Message: fmt.Sprintf("order %s was cancelled", order.OrderNumber)}
	}
	o := order
	return &Failure{Reason: ReasonTransportError, Message: "could not mark order claimed, retry", Err: err, order: &o, attemptID: attemptID}
}

func alreadyClaimedMessage(orderNumber string, claimedAt *time.Time) string {
	if claimedAt == nil {
		return fmt.Sprintf("order %s was already claimed", orderNumber)
	}
	return fmt.Sprintf("order %s was already claimed on %s", orderNumber, claimedAt.Local().Format("Jan 2, 2006 3:04 PM"))
}

// --- State plumbing ---

func (m *Machine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.CallTimeout)
}

// transition runs fn under the lock and notifies the observer on success.
func (m *Machine) transition(fn func() error) error {
	m.mu.Lock()
	if err := fn(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.notifyLocked()
	m.mu.Unlock()
	return nil
}

// begin marks the machine busy, requiring state want.
func (m *Machine) begin(want State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	if m.state != want {
		return fmt.Errorf("%w: expected %s, in %s", ErrInvalidTransition, want, m.state)
	}
	m.busy = true
	return nil
}

// finish clears busy and applies fn under the lock.
func (m *Machine) finish(fn func()) {
	m.mu.Lock()
	m.busy = false
	fn()
	m.notifyLocked()
	m.mu.Unlock()
}

// fail enters Failed and schedules the automatic return to Idle.
func (m *Machine) fail(f *Failure) error {
	m.finish(func() {
		m.order = nil
		m.attempt = ""
		m.failure = f
		m.setLocked(Failed)
		if m.cfg.FailureDisplay > 0 {
			gen := m.gen
			m.timer = time.AfterFunc(m.cfg.FailureDisplay, func() { m.autoReset(gen) })
		}
	})
	return f
}

func (m *Machine) autoReset(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state != Failed {
		return
	}
	m.clearLocked()
	m.setLocked(Idle)
	m.notifyLocked()
}

func (m *Machine) setLocked(s State) {
	m.state = s
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) clearLocked() {
	m.order = nil
	m.attempt = ""
	m.failure = nil
	m.release = nil
}

// notifyLocked calls the observer with the lock held; observers must not
// call back into the machine.
func (m *Machine) notifyLocked() {
	if m.onChange != nil {
		m.onChange(m.snapshotLocked())
	}
}
