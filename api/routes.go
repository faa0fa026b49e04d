package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"popcorntracker/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	documentHandler *handlers.DocumentHandler,
	itemsHandler *handlers.ItemsHandler,
	configHandler *handlers.ConfigHandler,
	authHandler *handlers.AuthHandler,
	syncHandler *handlers.SyncHandler,
	sharedHandler *handlers.SharedHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/document", documentHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/document", documentHandler.Put).Methods(http.MethodPut)

	api.HandleFunc("/items", itemsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/items", itemsHandler.Put).Methods(http.MethodPut)
	api.HandleFunc("/items", itemsHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/items/refresh", itemsHandler.Refresh).Methods(http.MethodPost)
	api.HandleFunc("/items/search", itemsHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/items/{itemID}/link", itemsHandler.ExpandLink).Methods(http.MethodGet)
	api.HandleFunc("/items/{itemID}/episodes", itemsHandler.Episodes).Methods(http.MethodGet)

	api.HandleFunc("/config", configHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/config", configHandler.Put).Methods(http.MethodPut)

	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)

	api.HandleFunc("/sync/status", syncHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/sync/failures", syncHandler.Failures).Methods(http.MethodGet)
	api.HandleFunc("/sync/failures", syncHandler.ClearFailures).Methods(http.MethodDelete)

	api.HandleFunc("/shared/record/{recordID}", sharedHandler.GetByRecord).Methods(http.MethodGet)
	api.HandleFunc("/shared/{userID}", sharedHandler.Get).Methods(http.MethodGet)

	// Preflight for any API path.
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodOptions)
}
