package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems      = errors.New("items are required")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrMissingName     = errors.New("item name is required")
	ErrStatusChanged   = errors.New("order status changed, please retry")
)

// OrderStore defines the DB methods needed to create and claim orders.
// Satisfied by *store.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error)
	GetNextOrderNumber(ctx context.Context, prefix string) (int32, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	ClaimOrder(ctx context.Context, arg store.ClaimOrderParams) (store.Order, error)
}

// CreateOrderRequest is the input for creating an order.
type CreateOrderRequest struct {
	Items          []model.OrderLine
	EducationLevel string
	StudentID      string
	StudentName    string
}

// OrderService handles order business logic.
type OrderService struct {
	store OrderStore
	now   func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(st OrderStore) *OrderService {
	return &OrderService{store: st, now: time.Now}
}

// CreateOrder validates the lines and creates a pending order with the next
// free order number of the day. Retries up to maxOrderNumberRetries times
// on order_number unique constraint violations (concurrent creators reading
// the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (store.Order, error) {
	if len(req.Items) == 0 {
		return store.Order{}, ErrEmptyItems
	}
	lines := make([]model.OrderLine, len(req.Items))
	for i, line := range req.Items {
		line.Name = strings.TrimSpace(line.Name)
		line.Size = strings.TrimSpace(line.Size)
		if line.Name == "" {
			return store.Order{}, fmt.Errorf("items[%d]: %w", i, ErrMissingName)
		}
		if line.Quantity <= 0 {
			return store.Order{}, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		lines[i] = line
	}

	prefix := "ORD-" + s.now().Format("20060102") + "-"

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		next, err := s.store.GetNextOrderNumber(ctx, prefix)
		if err != nil {
			return store.Order{}, fmt.Errorf("get next order number: %w", err)
		}
		order, err := s.store.CreateOrder(ctx, store.CreateOrderParams{
			OrderNumber:    fmt.Sprintf("%s%04d", prefix, next),
			Items:          lines,
			EducationLevel: strings.TrimSpace(req.EducationLevel),
			StudentID:      req.StudentID,
			StudentName:    strings.TrimSpace(req.StudentName),
		})
		if err == nil {
			return order, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return store.Order{}, fmt.Errorf("create order: %w", err)
	}
	return store.Order{}, lastErr
}

// Claim moves the order to claimed with a single conditional write. When the
// write matches no row the order is re-read to report why:
// model.ErrNotFound, *model.AlreadyClaimedError or model.ErrOrderCancelled.
// A repeated request carrying the attempt ID that won the claim succeeds
// again with the stored order.
func (s *OrderService) Claim(ctx context.Context, id, claimedBy uuid.UUID, attemptID string) (store.Order, error) {
	arg := store.ClaimOrderParams{ID: id}
	if claimedBy != uuid.Nil {
		arg.ClaimedBy = pgtype.UUID{Bytes: claimedBy, Valid: true}
	}
	if attemptID != "" {
		arg.ClaimAttemptID = pgtype.Text{String: attemptID, Valid: true}
	}

	order, err := s.store.ClaimOrder(ctx, arg)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Order{}, fmt.Errorf("claim order: %w", err)
	}

	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
		}
		return store.Order{}, fmt.Errorf("get order after claim: %w", err)
	}

	switch current.Status {
	case enum.OrderStatusClaimed:
		if attemptID != "" && current.ClaimAttemptID.Valid && current.ClaimAttemptID.String == attemptID {
			return current, nil
		}
		return store.Order{}, &model.AlreadyClaimedError{ClaimedDate: current.ClaimedAt()}
	case enum.OrderStatusCancelled:
		return store.Order{}, model.ErrOrderCancelled
	}
	return store.Order{}, ErrStatusChanged
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
	}
	return false
}
