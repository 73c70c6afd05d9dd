package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/maraichr/sqlscope/pkg/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeAPIError writes a structured error response carrying the request ID
// and logs 5xx errors.
func writeAPIError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, e *apierr.Error) {
	reqID := chimw.GetReqID(r.Context())
	if e.Status() >= 500 && logger != nil {
		logger.Error(e.Message(),
			slog.String("code", string(e.Code())),
			slog.String("request_id", reqID),
			slog.String("error", e.Error()))
	}
	writeJSON(w, e.Status(), e.Response(reqID))
}

// decodeJSON reads a size-capped JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *apierr.Error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.InvalidRequestBody()
	}
	return nil
}
