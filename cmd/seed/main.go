package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/auth"
	"github.com/grraffic/ordertracking/internal/config"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/qr"
	"github.com/grraffic/ordertracking/internal/service"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// seedItem is one demo inventory row.
type seedItem struct {
	name           string
	educationLevel string
	itemType       string
	size           string
	stock          int32
	price          int64
	note           string
}

var demoItems = []seedItem{
	{
		name: "Polo Shirt", educationLevel: "College", itemType: "Uniform", size: "Small,Medium,Large",
		stock: 30, price: 320,
		note: `{"type":"sizeVariations","entries":[` +
			`{"size":"Small (S)","stock":10,"price":300,"beginningInventory":10},` +
			`{"size":"Medium (M)","stock":12,"price":320,"beginningInventory":8,"purchases":4},` +
			`{"size":"Large (L)","stock":8,"price":340,"beginningInventory":8}]}`,
	},
	{
		name: "Polo Shirt", educationLevel: "Senior High", itemType: "Uniform", size: "Medium",
		stock: 6, price: 310,
	},
	{
		name: "Logo Patch", educationLevel: "College", itemType: "Accessories", size: "N/A",
		stock: 25, price: 45,
		note: `{"type":"accessoryEntries","entries":[` +
			`{"stock":15,"price":45,"beginningInventory":15},` +
			`{"stock":10,"price":50,"beginningInventory":0,"purchases":10}]}`,
	},
	{
		name: "ID Lace", educationLevel: "College", itemType: "Accessories", size: "N/A",
		stock: 40, price: 35, note: "restocked before enrollment",
	},
}

func main() {
	// CLI flags
	name := flag.String("name", "Property Custodian", "Operator display name for the printed token")
	ttl := flag.Duration("token-ttl", 30*24*time.Hour, "Operator token lifetime")
	withOrder := flag.Bool("order", true, "Create a demo pending order")
	flag.Parse()

	cfg := config.Load()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Seed items in a transaction (all or nothing)
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	created, err := seedItems(ctx, store.New(tx))
	if err != nil {
		log.Fatalf("Failed to seed items: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}
	log.Printf("Seeded %d item(s)", created)

	if *withOrder {
		if err := seedOrder(ctx, store.New(pool)); err != nil {
			log.Fatalf("Failed to seed order: %v", err)
		}
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, uuid.New(), *name, enum.UserRolePropertyCustodian, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign operator token: %v", err)
	}
	log.Println("Seed completed successfully")
	fmt.Printf("API_TOKEN=%s\n", token)
}

// seedItems creates the demo items that don't exist yet.
func seedItems(ctx context.Context, q *store.Queries) (int, error) {
	existing, err := q.ListItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, it := range existing {
		have[it.Name+"|"+it.EducationLevel] = true
	}

	created := 0
	for _, it := range demoItems {
		if have[it.name+"|"+it.educationLevel] {
			log.Printf("Item '%s' (%s) already exists, skipping", it.name, it.educationLevel)
			continue
		}
		_, err := q.CreateItem(ctx, store.CreateItemParams{
			Name:               it.name,
			EducationLevel:     it.educationLevel,
			ItemType:           it.itemType,
			Size:               it.size,
			Stock:              it.stock,
			Price:              store.DecimalToNumeric(decimal.NewFromInt(it.price)),
			BeginningInventory: it.stock,
			Note:               it.note,
		})
		if err != nil {
			return created, fmt.Errorf("insert item %s: %w", it.name, err)
		}
		created++
	}
	return created, nil
}

// seedOrder creates one pending order and prints its claim QR payload.
func seedOrder(ctx context.Context, q *store.Queries) error {
	order, err := service.NewOrderService(q).CreateOrder(ctx, service.CreateOrderRequest{
		Items: []model.OrderLine{
			{Name: "Polo Shirt", Size: "Medium", Quantity: 1},
			{Name: "Logo Patch", Size: "N/A", Quantity: 2},
		},
		EducationLevel: "College",
		StudentID:      "2025-00001",
		StudentName:    "Ana Cruz",
	})
	if err != nil {
		return err
	}

	now := time.Now()
	payload, err := qr.Encode(qr.Payload{OrderNumber: order.OrderNumber, IssuedAt: &now})
	if err != nil {
		return err
	}
	log.Printf("Created order %s (ID: %s)", order.OrderNumber, order.ID)
	fmt.Printf("QR_PAYLOAD=%s\n", payload)
	return nil
}
