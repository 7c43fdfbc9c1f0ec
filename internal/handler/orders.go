package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/middleware"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/service"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (store.Order, error)
	Claim(ctx context.Context, id, claimedBy uuid.UUID, attemptID string) (store.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type OrderStore interface {
	ListOrders(ctx context.Context, status pgtype.Text) ([]store.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (store.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	hub   Broadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders inside an authenticated group. Any
// signed-in user may place an order; reading and claiming is staff only.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRolePropertyCustodian, enum.UserRoleSystemAdmin))
		r.Get("/", h.List)
		r.Get("/number/{orderNumber}", h.GetByNumber)
		r.Patch("/{id}/status", h.UpdateStatus)
	})
}

// --- Request types ---

type createOrderRequest struct {
	Items          []model.OrderLine `json:"items"`
	EducationLevel string            `json:"educationLevel"`
	StudentID      string            `json:"studentId"`
	StudentName    string            `json:"studentName"`
}

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// Students order for themselves.
	if claims.Role == enum.UserRoleStudent {
		req.StudentID = claims.UserID.String()
		if req.StudentName == "" {
			req.StudentName = claims.Name
		}
	}

	order, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		Items:          req.Items,
		EducationLevel: req.EducationLevel,
		StudentID:      req.StudentID,
		StudentName:    req.StudentName,
	})
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := order.Model()
	h.hub.Broadcast(enum.EventOrderCreated, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders with an optional ?status= filter.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !isValidOrderStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}

	orders, err := h.store.ListOrders(r.Context(), pgtype.Text{String: status, Valid: status != ""})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]model.Order, len(orders))
	for i, o := range orders {
		resp[i] = o.Model()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetByNumber handles GET /orders/number/{orderNumber}.
func (h *OrderHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	if orderNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order number is required"})
		return
	}

	order, err := h.store.GetOrderByNumber(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order %s: %v", orderNumber, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, order.Model())
}

// UpdateStatus handles PATCH /orders/{id}/status. Only the pending -> claimed
// edge is writable here.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req model.StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if req.Status != enum.OrderStatusClaimed {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported status transition"})
		return
	}

	order, err := h.svc.Claim(r.Context(), orderID, claims.UserID, req.AttemptID)
	if err != nil {
		var ace *model.AlreadyClaimedError
		switch {
		case errors.As(err, &ace):
			writeJSON(w, http.StatusConflict, model.ConflictResponse{
				Error:       model.ErrAlreadyClaimed.Error(),
				Status:      enum.OrderStatusClaimed,
				ClaimedDate: ace.ClaimedDate,
			})
		case errors.Is(err, model.ErrOrderCancelled):
			writeJSON(w, http.StatusConflict, model.ConflictResponse{
				Error:  model.ErrOrderCancelled.Error(),
				Status: enum.OrderStatusCancelled,
			})
		case errors.Is(err, service.ErrStatusChanged):
			writeJSON(w, http.StatusConflict, model.ConflictResponse{Error: err.Error()})
		case errors.Is(err, model.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		default:
			log.Printf("ERROR: claim order %s: %v", orderID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := order.Model()
	h.hub.Broadcast(enum.EventOrderClaimed, resp)
	writeJSON(w, http.StatusOK, resp)
}

// isValidationError reports whether err is a client input error from the
// order service.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrMissingName)
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusProcessing, enum.OrderStatusClaimed, enum.OrderStatusCancelled:
		return true
	}
	return false
}
