package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/pkg/apierr"
	"github.com/maraichr/sqlscope/pkg/models"
)

type AnalyzeHandler struct {
	logger *slog.Logger
	engine *analysis.Engine
}

func NewAnalyzeHandler(logger *slog.Logger, engine *analysis.Engine) *AnalyzeHandler {
	return &AnalyzeHandler{logger: logger, engine: engine}
}

func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if e := decodeJSON(w, r, &req); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	if e := validateSQL(req.SQL); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	if e := validateVendor(req.Vendor); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}

	result, err := h.engine.Analyze(r.Context(), req)
	if err != nil {
		writeAPIError(w, r, h.logger, analysisError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AnalyzeHandler) Columns(w http.ResponseWriter, r *http.Request) {
	var req models.ColumnsRequest
	if e := decodeJSON(w, r, &req); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	if e := validateTable(req.Table); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	if req.SQL != "" {
		if e := validateSQL(req.SQL); e != nil {
			writeAPIError(w, r, h.logger, e)
			return
		}
	}
	if e := validateVendor(req.Vendor); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}

	result, err := h.engine.Columns(r.Context(), req)
	if err != nil {
		writeAPIError(w, r, h.logger, analysisError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AnalyzeHandler) Scopes(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if e := decodeJSON(w, r, &req); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	if e := validateSQL(req.SQL); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	if e := validateVendor(req.Vendor); e != nil {
		writeAPIError(w, r, h.logger, e)
		return
	}
	writeJSON(w, http.StatusOK, analysis.ScopeTree(h.engine.Tree(r.Context(), req.SQL, req.Vendor)))
}

func analysisError(err error) *apierr.Error {
	if errors.Is(err, analysis.ErrInvalidCursor) {
		return apierr.InvalidCursor(err)
	}
	return apierr.From(err)
}
