package handler

import (
	"net/http"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/pkg/apierr"
)

type HealthHandler struct {
	conn *catalog.Connection
}

func NewHealthHandler(conn *catalog.Connection) *HealthHandler {
	return &HealthHandler{conn: conn}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports ready once the connection's database has loaded. Without a
// catalog the service still answers scope questions, so it is ready.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.conn != nil && h.conn.Database != nil {
		if err := h.conn.Database.Load(r.Context()); err != nil {
			writeAPIError(w, r, nil, apierr.CatalogUnavailable(err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
