package fulfillment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/qr"
)

// State is a claim scanner state.
type State int

const (
	Idle State = iota
	Scanning
	Scanned
	AwaitingConfirmation
	Releasing
	Released
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scanning:
		return "Scanning"
	case Scanned:
		return "Scanned"
	case AwaitingConfirmation:
		return "AwaitingConfirmation"
	case Releasing:
		return "Releasing"
	case Released:
		return "Released"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Reason says why a scan or release failed.
type Reason int

const (
	ReasonInvalidFormat Reason = iota + 1
	ReasonExpired
	ReasonNotFound
	ReasonEmptyOrder
	ReasonAlreadyClaimed
	ReasonCancelled
	ReasonTransportError
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidFormat:
		return "InvalidFormat"
	case ReasonExpired:
		return "Expired"
	case ReasonNotFound:
		return "NotFound"
	case ReasonEmptyOrder:
		return "EmptyOrder"
	case ReasonAlreadyClaimed:
		return "AlreadyClaimed"
	case ReasonCancelled:
		return "Cancelled"
	case ReasonTransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// Errors returned by the state machine.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBusy              = errors.New("a scan or release is already in progress")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrTransport         = errors.New("transport error")
	ErrVariantNotFound   = errors.New("no inventory variant matches the ordered item")
	ErrInvalidQuantity   = errors.New("ordered quantity must be > 0")
)

// sentinel maps a reason to the error errors.Is matches on a Failure.
func (r Reason) sentinel() error {
	switch r {
	case ReasonInvalidFormat:
		return qr.ErrInvalidFormat
	case ReasonExpired:
		return qr.ErrExpired
	case ReasonNotFound:
		return model.ErrNotFound
	case ReasonEmptyOrder:
		return ErrEmptyOrder
	case ReasonAlreadyClaimed:
		return model.ErrAlreadyClaimed
	case ReasonCancelled:
		return model.ErrOrderCancelled
	default:
		return ErrTransport
	}
}

// Failure is the payload of the Failed state.
type Failure struct {
	Reason  Reason
	Message string
	Err     error
	// ClaimWritten is set when the order was already marked claimed before
	// the failure, so the inventory side may be partially synced.
	ClaimWritten bool

	order *model.Order
	// attemptID is reused when the claim is retried, so a claim the backend
	// committed before the response was lost is recognised as a replay.
	attemptID string
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Reason, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

func (f *Failure) Unwrap() []error {
	if f.Err != nil {
		return []error{f.Reason.sentinel(), f.Err}
	}
	return []error{f.Reason.sentinel()}
}

// Retryable reports whether Retry can return to AwaitingConfirmation.
func (f *Failure) Retryable() bool {
	return f.Reason == ReasonTransportError && !f.ClaimWritten && f.order != nil
}

// ItemResult is the outcome of one line item's inventory adjustment.
type ItemResult struct {
	Line           model.OrderLine `json:"line"`
	SourceRecordID uuid.UUID       `json:"sourceRecordId"`
	VariantSize    string          `json:"variantSize,omitempty"`
	Adjusted       bool            `json:"adjusted"`
	Err            error           `json:"-"`
	// JournalID is the reconciliation record written for a failed line, or 0.
	JournalID int64 `json:"journalId,omitempty"`
}

// Release is the payload of the Released state.
type Release struct {
	OrderNumber string       `json:"orderNumber"`
	StudentName string       `json:"studentName"`
	Order       model.Order  `json:"order"`
	Results     []ItemResult `json:"results"`
}

// Complete reports whether every line item was adjusted.
func (r *Release) Complete() bool {
	return r.Pending() == 0
}

// Pending counts line items left for reconciliation.
func (r *Release) Pending() int {
	n := 0
	for _, res := range r.Results {
		if !res.Adjusted {
			n++
		}
	}
	return n
}

// Snapshot is a point-in-time copy of the machine.
type Snapshot struct {
	State   State
	Order   *model.Order
	Failure *Failure
	Release *Release
}
