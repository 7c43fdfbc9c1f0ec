package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/catalog"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/middleware"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/normalize"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5/pgtype"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type ReportsStore interface {
	ListItems(ctx context.Context) ([]store.Item, error)
	ListOrders(ctx context.Context, status pgtype.Text) ([]store.Order, error)
	ListItemAdjustments(ctx context.Context, itemID uuid.UUID) ([]store.ItemAdjustment, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	store ReportsStore
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

// RegisterRoutes registers report endpoints.
// Expects Authenticate to run upstream. Only staff may read reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequireRole(enum.UserRolePropertyCustodian, enum.UserRoleSystemAdmin))
	r.Get("/inventory", h.Inventory)
	r.Get("/claims", h.Claims)
	r.Get("/items/{id}/adjustments", h.Adjustments)
}

// --- Response types ---

type inventoryReportResponse struct {
	Name           string `json:"name"`
	EducationLevel string `json:"education_level,omitempty"`
	Variants       int    `json:"variants"`
	TotalStock     int    `json:"total_stock"`
	TotalCost      string `json:"total_cost"`
	LowFidelity    bool   `json:"low_fidelity,omitempty"`
}

type claimsReportResponse struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	Orders   int    `json:"orders"`
	Quantity int    `json:"quantity"`
}

type adjustmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	Size       string     `json:"size"`
	Adjustment int32      `json:"adjustment"`
	StockAfter int32      `json:"stock_after"`
	Reason     string     `json:"reason"`
	CreatedBy  *uuid.UUID `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// --- Handlers ---

// Inventory returns stock and FIFO valuation per consolidated product.
// ?scoped=true keeps education levels apart.
func (h *ReportsHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	var policy catalog.Policy
	if s := r.URL.Query().Get("scoped"); s != "" {
		scoped, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid scoped flag"})
			return
		}
		policy.ScopeByEducationLevel = scoped
	}

	items, err := h.store.ListItems(r.Context())
	if err != nil {
		log.Printf("ERROR: list items for inventory report: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	records := make([]model.ItemRecord, len(items))
	for i, item := range items {
		records[i] = item.Record()
	}

	resp := []inventoryReportResponse{}
	seen := make(map[string]bool)
	for _, rec := range records {
		key := normalize.Name(rec.Name)
		if policy.ScopeByEducationLevel {
			key += "|" + normalize.EducationLevel(rec.EducationLevel)
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		variants := catalog.Consolidate(records, rec.Name, rec.EducationLevel, policy)
		row := inventoryReportResponse{
			Name:      rec.Name,
			Variants:  len(variants),
			TotalCost: catalog.TotalCost(variants).StringFixed(2),
		}
		if policy.ScopeByEducationLevel {
			row.EducationLevel = rec.EducationLevel
		}
		for _, v := range variants {
			row.TotalStock += v.Stock
			row.LowFidelity = row.LowFidelity || v.LowFidelity
		}
		resp = append(resp, row)
	}

	sort.SliceStable(resp, func(i, j int) bool {
		if resp[i].Name != resp[j].Name {
			return resp[i].Name < resp[j].Name
		}
		return resp[i].EducationLevel < resp[j].EducationLevel
	})
	writeJSON(w, http.StatusOK, resp)
}

// Claims returns the quantities released per item for orders claimed in a
// date range.
func (h *ReportsHandler) Claims(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, err := parseDateRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	orders, err := h.store.ListOrders(r.Context(), pgtype.Text{String: enum.OrderStatusClaimed, Valid: true})
	if err != nil {
		log.Printf("ERROR: list claimed orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	rows := map[string]*claimsReportResponse{}
	for _, o := range orders {
		at := o.ClaimedAt()
		if at == nil || at.Before(startDate) || !at.Before(endDate) {
			continue
		}
		counted := map[string]bool{}
		for _, line := range o.Items {
			key := normalize.Key(line.Name, line.Size, "")
			row, ok := rows[key]
			if !ok {
				row = &claimsReportResponse{Name: line.Name, Size: line.Size}
				rows[key] = row
			}
			row.Quantity += line.Quantity
			if !counted[key] {
				counted[key] = true
				row.Orders++
			}
		}
	}

	resp := make([]claimsReportResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, *row)
	}
	sort.Slice(resp, func(i, j int) bool {
		if resp[i].Quantity != resp[j].Quantity {
			return resp[i].Quantity > resp[j].Quantity
		}
		return resp[i].Name+resp[i].Size < resp[j].Name+resp[j].Size
	})
	writeJSON(w, http.StatusOK, resp)
}

// Adjustments returns the stock audit trail of one item, newest first.
func (h *ReportsHandler) Adjustments(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	adjs, err := h.store.ListItemAdjustments(r.Context(), itemID)
	if err != nil {
		log.Printf("ERROR: list adjustments for %s: %v", itemID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]adjustmentResponse, len(adjs))
	for i, a := range adjs {
		resp[i] = adjustmentResponse{
			ID:         a.ID,
			Size:       a.Size,
			Adjustment: a.Adjustment,
			StockAfter: a.StockAfter,
			Reason:     a.Reason,
			CreatedAt:  a.CreatedAt,
		}
		if a.CreatedBy.Valid {
			id := uuid.UUID(a.CreatedBy.Bytes)
			resp[i].CreatedBy = &id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseDateRange parses start_date and end_date query params in Asia/Manila time.
// Defaults to last 30 days if not provided.
// Returns (startDate, endDate, error) where endDate is exclusive (next day midnight).
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	loc, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		// Fallback to FixedZone if LoadLocation fails
		loc = time.FixedZone("PHT", 8*3600)
	}

	now := time.Now().In(loc)

	// Default: last 30 days (midnight to midnight in local time)
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -30)
	endDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1) // next day midnight

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format: %w", err)
		}
		startDate = t
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format: %w", err)
		}
		// Make end_date exclusive by adding 1 day
		endDate = t.AddDate(0, 0, 1)
	}

	if !startDate.Before(endDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must be before end_date")
	}

	return startDate, endDate, nil
}
