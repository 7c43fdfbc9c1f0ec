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
)

// ItemStore defines the database methods needed by item handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type ItemStore interface {
	ListItems(ctx context.Context) ([]store.Item, error)
	ArchiveItem(ctx context.Context, id uuid.UUID) (store.Item, error)
}

// InventoryServicer defines the service methods needed by item handlers.
// Satisfied by *service.InventoryService.
type InventoryServicer interface {
	Adjust(ctx context.Context, req service.AdjustRequest) (model.ItemRecord, error)
}

// Broadcaster pushes invalidation events. Satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
}

// ItemHandler handles item endpoints.
type ItemHandler struct {
	store ItemStore
	inv   InventoryServicer
	hub   Broadcaster
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(store ItemStore, inv InventoryServicer, hub Broadcaster) *ItemHandler {
	return &ItemHandler{store: store, inv: inv, hub: hub}
}

// RegisterRoutes registers item endpoints on the given Chi router.
// Expected to be mounted at /items inside an authenticated group.
func (h *ItemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRolePropertyCustodian, enum.UserRoleSystemAdmin))
		r.Patch("/{id}/adjust", h.Adjust)
		r.Patch("/{id}/archive", h.Archive)
	})
}

// List handles GET /items.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context())
	if err != nil {
		log.Printf("ERROR: list items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]model.ItemRecord, len(items))
	for i, item := range items {
		resp[i] = item.Record()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Adjust handles PATCH /items/{id}/adjust.
func (h *ItemHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req model.AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rec, err := h.inv.Adjust(r.Context(), service.AdjustRequest{
		ItemID:     itemID,
		Adjustment: req.Adjustment,
		Size:       req.Size,
		Reason:     req.Reason,
		UserID:     claims.UserID,
		Key:        req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
		case errors.Is(err, model.ErrInsufficientStock):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrZeroAdjustment),
			errors.Is(err, service.ErrSizeNotFound),
			errors.Is(err, service.ErrSizeRequired),
			errors.Is(err, service.ErrKeyReused):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: adjust item %s: %v", itemID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.Broadcast(enum.EventItemUpdated, rec)
	writeJSON(w, http.StatusOK, rec)
}

// Archive handles PATCH /items/{id}/archive.
func (h *ItemHandler) Archive(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	item, err := h.store.ArchiveItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		log.Printf("ERROR: archive item %s: %v", itemID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.hub.Broadcast(enum.EventItemArchived, map[string]string{"id": itemID.String()})
	writeJSON(w, http.StatusOK, item.Record())
}
