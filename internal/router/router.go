package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/grraffic/ordertracking/internal/config"
	"github.com/grraffic/ordertracking/internal/handler"
	mw "github.com/grraffic/ordertracking/internal/middleware"
	"github.com/grraffic/ordertracking/internal/service"
	"github.com/grraffic/ordertracking/internal/store"
	"github.com/grraffic/ordertracking/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// pool starts the transactions stock adjustments run in.
func New(cfg *config.Config, queries *store.Queries, pool service.TxBeginner, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		inventory := service.NewInventoryService(pool, func(db store.DBTX) service.InventoryStore {
			return store.New(db)
		})
		itemHandler := handler.NewItemHandler(queries, inventory, hub)
		r.Route("/items", itemHandler.RegisterRoutes)

		orderHandler := handler.NewOrderHandler(service.NewOrderService(queries), queries, hub)
		r.Route("/orders", orderHandler.RegisterRoutes)

		reportsHandler := handler.NewReportsHandler(queries)
		r.Route("/reports", reportsHandler.RegisterRoutes)
	})

	log.Println("Router initialized with all handlers")
	return r
}
