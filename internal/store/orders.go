package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, status, items, education_level, student_id, student_name,
       claimed_date, claimed_by, claim_attempt_id, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Status, &o.Items, &o.EducationLevel, &o.StudentID, &o.StudentName,
		&o.ClaimedDate, &o.ClaimedBy, &o.ClaimAttemptID, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

const listOrders = `SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at DESC, id`

func (q *Queries) ListOrders(ctx context.Context, status pgtype.Text) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const getOrder = `SELECT ` + orderColumns + `
FROM orders
WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderByNumber = `SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1`

func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByNumber, orderNumber))
}

const getNextOrderNumber = `SELECT COALESCE(MAX(SUBSTRING(order_number FROM '[0-9]+$')::int), 0)::int4 + 1
FROM orders
WHERE order_number LIKE $1 || '%'`

// GetNextOrderNumber returns the next sequence number for order numbers
// starting with prefix.
func (q *Queries) GetNextOrderNumber(ctx context.Context, prefix string) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber, prefix).Scan(&n)
	return n, err
}

const createOrder = `INSERT INTO orders (order_number, items, education_level, student_id, student_name)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber    string
	Items          []model.OrderLine
	EducationLevel string
	StudentID      string
	StudentName    string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.Items, arg.EducationLevel, arg.StudentID, arg.StudentName,
	))
}

const claimOrder = `UPDATE orders
SET status = 'claimed', claimed_date = now(), claimed_by = $2, claim_attempt_id = $3, updated_at = now()
WHERE id = $1 AND status NOT IN ('claimed', 'cancelled')
RETURNING ` + orderColumns

type ClaimOrderParams struct {
	ID             uuid.UUID
	ClaimedBy      pgtype.UUID
	ClaimAttemptID pgtype.Text
}

// ClaimOrder is the conditional pending -> claimed write. It returns
// pgx.ErrNoRows when the order is missing, already claimed or cancelled;
// callers re-read to tell those apart.
func (q *Queries) ClaimOrder(ctx context.Context, arg ClaimOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, claimOrder, arg.ID, arg.ClaimedBy, arg.ClaimAttemptID))
}
