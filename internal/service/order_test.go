package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	committed   bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = m.commitErr == nil
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getOrderFn           func(ctx context.Context, id uuid.UUID) (store.Order, error)
	getNextOrderNumberFn func(ctx context.Context, prefix string) (int32, error)
	createOrderFn        func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	claimOrderFn         func(ctx context.Context, arg store.ClaimOrderParams) (store.Order, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return store.Order{}, pgx.ErrNoRows
}
func (m *mockOrderStore) ClaimOrder(ctx context.Context, arg store.ClaimOrderParams) (store.Order, error) {
	if m.claimOrderFn != nil {
		return m.claimOrderFn(ctx, arg)
	}
	return store.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context, prefix string) (int32, error) {
	return m.getNextOrderNumberFn(ctx, prefix)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
	return m.createOrderFn(ctx, arg)
}

func newTestOrderService(st *mockOrderStore) *OrderService {
	s := NewOrderService(st)
	s.now = func() time.Time { return time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func defaultOrderStore() *mockOrderStore {
	return &mockOrderStore{
		getNextOrderNumberFn: func(ctx context.Context, prefix string) (int32, error) { return 7, nil },
		createOrderFn: func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
			return store.Order{
				ID:             uuid.New(),
				OrderNumber:    arg.OrderNumber,
				Status:         "pending",
				Items:          arg.Items,
				EducationLevel: arg.EducationLevel,
				StudentName:    arg.StudentName,
			}, nil
		},
	}
}

// --- Tests ---

func TestCreateOrder_Success(t *testing.T) {
	st := defaultOrderStore()
	var gotPrefix string
	st.getNextOrderNumberFn = func(ctx context.Context, prefix string) (int32, error) {
		gotPrefix = prefix
		return 7, nil
	}

	order, err := newTestOrderService(st).CreateOrder(context.Background(), CreateOrderRequest{
		Items:          []model.OrderLine{{Name: "  Polo ", Size: "Small", Quantity: 2}},
		EducationLevel: "College",
		StudentName:    "Ana Cruz",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotPrefix != "ORD-20250901-" {
		t.Errorf("prefix: got %q", gotPrefix)
	}
	if order.OrderNumber != "ORD-20250901-0007" {
		t.Errorf("order number: got %q", order.OrderNumber)
	}
	if order.Items[0].Name != "Polo" {
		t.Errorf("item name should be trimmed, got %q", order.Items[0].Name)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		items []model.OrderLine
		want  error
	}{
		{"empty", nil, ErrEmptyItems},
		{"zero quantity", []model.OrderLine{{Name: "Polo", Quantity: 0}}, ErrInvalidQuantity},
		{"missing name", []model.OrderLine{{Name: " ", Quantity: 1}}, ErrMissingName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := defaultOrderStore()
			st.createOrderFn = func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
				t.Fatal("should not reach the store")
				return store.Order{}, nil
			}
			_, err := newTestOrderService(st).CreateOrder(context.Background(), CreateOrderRequest{Items: tt.items})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateOrder_RetriesOnOrderNumberConflict(t *testing.T) {
	st := defaultOrderStore()
	next := int32(0)
	st.getNextOrderNumberFn = func(ctx context.Context, prefix string) (int32, error) {
		next++
		return next, nil
	}
	base := st.createOrderFn
	st.createOrderFn = func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
		if arg.OrderNumber == "ORD-20250901-0001" {
			return store.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
		}
		return base(ctx, arg)
	}

	order, err := newTestOrderService(st).CreateOrder(context.Background(), CreateOrderRequest{
		Items: []model.OrderLine{{Name: "Polo", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.OrderNumber != "ORD-20250901-0002" {
		t.Errorf("expected retry with the next number, got %q", order.OrderNumber)
	}
}

func TestCreateOrder_GivesUpAfterRetries(t *testing.T) {
	st := defaultOrderStore()
	calls := 0
	st.createOrderFn = func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
		calls++
		return store.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	}

	_, err := newTestOrderService(st).CreateOrder(context.Background(), CreateOrderRequest{
		Items: []model.OrderLine{{Name: "Polo", Quantity: 1}},
	})
	if !isOrderNumberConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if calls != maxOrderNumberRetries {
		t.Errorf("expected %d attempts, got %d", maxOrderNumberRetries, calls)
	}
}

func TestCreateOrder_OtherErrorNotRetried(t *testing.T) {
	st := defaultOrderStore()
	calls := 0
	st.createOrderFn = func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
		calls++
		return store.Order{}, &pgconn.PgError{Code: "23514", ConstraintName: "orders_status_check"}
	}

	_, err := newTestOrderService(st).CreateOrder(context.Background(), CreateOrderRequest{
		Items: []model.OrderLine{{Name: "Polo", Quantity: 1}},
	})
	if err == nil || calls != 1 {
		t.Errorf("expected a single failed attempt, got %d calls, err %v", calls, err)
	}
}

func TestClaim_Success(t *testing.T) {
	id := uuid.New()
	operator := uuid.New()
	st := defaultOrderStore()

	var got store.ClaimOrderParams
	st.claimOrderFn = func(ctx context.Context, arg store.ClaimOrderParams) (store.Order, error) {
		got = arg
		return store.Order{ID: id, Status: "claimed"}, nil
	}

	order, err := newTestOrderService(st).Claim(context.Background(), id, operator, "attempt-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if order.Status != "claimed" {
		t.Errorf("status: got %q", order.Status)
	}
	if got.ClaimedBy != (pgtype.UUID{Bytes: operator, Valid: true}) || got.ClaimAttemptID.String != "attempt-1" {
		t.Errorf("unexpected claim params %+v", got)
	}
}

func TestClaim_ZeroRows(t *testing.T) {
	id := uuid.New()
	claimedAt := time.Date(2025, 9, 2, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current func() (store.Order, error)
		attempt string
		want    error
	}{
		{
			name:    "missing",
			current: func() (store.Order, error) { return store.Order{}, pgx.ErrNoRows },
			want:    model.ErrNotFound,
		},
		{
			name: "already claimed",
			current: func() (store.Order, error) {
				return store.Order{
					ID: id, Status: "claimed",
					ClaimedDate:    pgtype.Timestamptz{Time: claimedAt, Valid: true},
					ClaimAttemptID: pgtype.Text{String: "other", Valid: true},
				}, nil
			},
			attempt: "mine",
			want:    model.ErrAlreadyClaimed,
		},
		{
			name:    "cancelled",
			current: func() (store.Order, error) { return store.Order{ID: id, Status: "cancelled"}, nil },
			want:    model.ErrOrderCancelled,
		},
		{
			name:    "status changed",
			current: func() (store.Order, error) { return store.Order{ID: id, Status: "pending"}, nil },
			want:    ErrStatusChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := defaultOrderStore()
			st.getOrderFn = func(ctx context.Context, got uuid.UUID) (store.Order, error) { return tt.current() }

			_, err := newTestOrderService(st).Claim(context.Background(), id, uuid.New(), tt.attempt)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClaim_AlreadyClaimedCarriesDate(t *testing.T) {
	id := uuid.New()
	claimedAt := time.Date(2025, 9, 2, 10, 30, 0, 0, time.UTC)
	st := defaultOrderStore()
	st.getOrderFn = func(ctx context.Context, got uuid.UUID) (store.Order, error) {
		return store.Order{ID: id, Status: "claimed", ClaimedDate: pgtype.Timestamptz{Time: claimedAt, Valid: true}}, nil
	}

	_, err := newTestOrderService(st).Claim(context.Background(), id, uuid.Nil, "")
	var ace *model.AlreadyClaimedError
	if !errors.As(err, &ace) {
		t.Fatalf("expected AlreadyClaimedError, got %v", err)
	}
	if ace.ClaimedDate == nil || !ace.ClaimedDate.Equal(claimedAt) {
		t.Errorf("claimed date: got %v", ace.ClaimedDate)
	}
}

func TestClaim_SameAttemptIsReplayed(t *testing.T) {
	id := uuid.New()
	st := defaultOrderStore()
	st.getOrderFn = func(ctx context.Context, got uuid.UUID) (store.Order, error) {
		return store.Order{ID: id, Status: "claimed", ClaimAttemptID: pgtype.Text{String: "attempt-1", Valid: true}}, nil
	}

	order, err := newTestOrderService(st).Claim(context.Background(), id, uuid.New(), "attempt-1")
	if err != nil {
		t.Fatalf("replayed claim should succeed, got %v", err)
	}
	if order.ID != id {
		t.Errorf("expected stored order, got %+v", order)
	}
}
