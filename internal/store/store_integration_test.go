//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("orders_test"),
		tcpostgres.WithUsername("orders"),
		tcpostgres.WithPassword("orders"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	if err := store.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run must be a no-op.
	if err := store.Migrate(connStr); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestIntegrationStore(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	q := store.New(pool)

	// --- Items ---
	item, err := q.CreateItem(ctx, store.CreateItemParams{
		Name:               "Polo",
		EducationLevel:     "College",
		Size:               "Small",
		Stock:              10,
		Price:              store.DecimalToNumeric(decimal.NewFromInt(300)),
		BeginningInventory: 10,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if _, err := q.CreateItem(ctx, store.CreateItemParams{Name: "Old Polo", Size: "N/A", Price: store.DecimalToNumeric(decimal.Zero)}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	items, err := q.ListItems(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("list items: %d, %v", len(items), err)
	}
	if rec := items[0].Record(); !rec.Price.Equal(decimal.NewFromInt(300)) || rec.Purchases != nil {
		t.Errorf("unexpected record %+v", rec)
	}

	if _, err := q.ArchiveItem(ctx, items[1].ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := q.ArchiveItem(ctx, items[1].ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("second archive: expected ErrNoRows, got %v", err)
	}
	if items, _ = q.ListItems(ctx); len(items) != 1 {
		t.Errorf("archived item still listed")
	}

	updated, err := q.UpdateItemStock(ctx, store.UpdateItemStockParams{
		ID: item.ID, Stock: 8, BeginningInventory: 8, Purchases: pgtype.Int4{Int32: 0, Valid: true},
	})
	if err != nil || updated.Stock != 8 {
		t.Fatalf("update stock: %+v, %v", updated, err)
	}
	if _, err := q.CreateItemAdjustment(ctx, store.CreateItemAdjustmentParams{
		ItemID: item.ID, Size: "Small", Adjustment: -2, StockAfter: 8, Reason: "Order ORD-1 claimed",
	}); err != nil {
		t.Fatalf("create adjustment: %v", err)
	}
	adjs, err := q.ListItemAdjustments(ctx, item.ID)
	if err != nil || len(adjs) != 1 || adjs[0].Adjustment != -2 {
		t.Fatalf("list adjustments: %+v, %v", adjs, err)
	}
	if _, err := q.GetItemAdjustmentByKey(ctx, "claim:order-1:0"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("unknown key: expected ErrNoRows, got %v", err)
	}
	keyed := store.CreateItemAdjustmentParams{
		ItemID: item.ID, Size: "Small", Adjustment: -1, StockAfter: 7, Reason: "Order ORD-1 claimed",
		IdempotencyKey: pgtype.Text{String: "claim:order-1:0", Valid: true},
	}
	if _, err := q.CreateItemAdjustment(ctx, keyed); err != nil {
		t.Fatalf("create keyed adjustment: %v", err)
	}
	if byKey, err := q.GetItemAdjustmentByKey(ctx, "claim:order-1:0"); err != nil || byKey.ItemID != item.ID {
		t.Errorf("by key: %+v, %v", byKey, err)
	}
	var pgErr *pgconn.PgError
	if _, err := q.CreateItemAdjustment(ctx, keyed); !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		t.Errorf("duplicate key: expected unique violation, got %v", err)
	}

	// --- Orders ---
	next, err := q.GetNextOrderNumber(ctx, "ORD-20250901-")
	if err != nil || next != 1 {
		t.Fatalf("next order number: %d, %v", next, err)
	}
	order, err := q.CreateOrder(ctx, store.CreateOrderParams{
		OrderNumber:    "ORD-20250901-0001",
		Items:          []model.OrderLine{{Name: "Polo", Size: "Small", Quantity: 2}},
		EducationLevel: "College",
		StudentName:    "Ana Cruz",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != "pending" || len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Errorf("unexpected order %+v", order)
	}
	if next, _ = q.GetNextOrderNumber(ctx, "ORD-20250901-"); next != 2 {
		t.Errorf("expected next number 2, got %d", next)
	}

	byNumber, err := q.GetOrderByNumber(ctx, "ORD-20250901-0001")
	if err != nil || byNumber.ID != order.ID {
		t.Fatalf("get by number: %v", err)
	}
	if _, err := q.GetOrderByNumber(ctx, "ORD-MISSING"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	pending, err := q.ListOrders(ctx, pgtype.Text{String: "pending", Valid: true})
	if err != nil || len(pending) != 1 {
		t.Fatalf("list pending: %d, %v", len(pending), err)
	}
}

// Two concurrent claims of the same order: exactly one wins.
func TestIntegrationClaimIsConditional(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	q := store.New(pool)

	order, err := q.CreateOrder(ctx, store.CreateOrderParams{
		OrderNumber: "ORD-20250901-0001",
		Items:       []model.OrderLine{{Name: "Polo", Size: "Small", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	const claimers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.ClaimOrder(ctx, store.ClaimOrderParams{ID: order.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, pgx.ErrNoRows):
				losses++
			default:
				t.Errorf("claim: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || losses != claimers-1 {
		t.Fatalf("expected exactly one winning claim, got %d wins and %d losses", wins, losses)
	}

	claimed, err := q.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if claimed.Status != "claimed" || claimed.ClaimedAt() == nil {
		t.Errorf("expected claimed order with date, got %+v", claimed)
	}
}
