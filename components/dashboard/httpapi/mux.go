package httpapi

import (
	"net/http"

	"github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// Mount registers the JSON view API and the event streams on a ServeMux.
// Page rendering lives with the go-router adapter.
func (h *Handlers) Mount(mux *http.ServeMux, broadcast *dashboard.BroadcastHook) {
	mux.HandleFunc("GET /dashboard/views/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleSnapshot(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /dashboard/views/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleCloseView(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /dashboard/views/{id}/filters", func(w http.ResponseWriter, r *http.Request) {
		h.HandleApplyFilters(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /dashboard/views/{id}/params", func(w http.ResponseWriter, r *http.Request) {
		h.HandleSetParams(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /contact", h.HandleContact)
	if broadcast != nil {
		mux.HandleFunc("GET /dashboard/ws", broadcast.ServeWebSocket)
		mux.HandleFunc("GET /dashboard/events", broadcast.ServeSSE)
	}
}
