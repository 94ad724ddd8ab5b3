// Package handlers provides HTTP handlers for position history queries.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/folioanalytics/folio/internal/modules/history"
)

const dateLayout = "2006-01-02"

// Handler handles history HTTP requests
type Handler struct {
	repo *history.Repository
	log  zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(repo *history.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "history").Logger(),
	}
}

// RegisterRoutes registers all history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/snapshots/{accountID}/{date}", h.handleGetSnapshot)
		r.Get("/positions/{accountID}/{symbol}", h.handleGetPositionHistory)
		r.Get("/compare/{accountID}", h.handleCompareSnapshots)
		r.Get("/statistics/{accountID}/{symbol}", h.handleGetStatistics)
	})
}

// handleGetSnapshot handles GET /api/history/snapshots/{accountID}/{date}
func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	snap, err := h.repo.GetPortfolioSnapshot(accountID, date)
	if errors.Is(err, sql.ErrNoRows) {
		h.respondError(w, http.StatusNotFound, "no snapshot for that account and date")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot")
		h.respondError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	h.respondJSON(w, http.StatusOK, snap)
}

// handleGetPositionHistory handles GET /api/history/positions/{accountID}/{symbol}?from=...&to=...
func (h *Handler) handleGetPositionHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	symbol := chi.URLParam(r, "symbol")

	from, to, err := parseDateRange(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.repo.GetPositionHistory(symbol, accountID, from, to)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load position history")
		h.respondError(w, http.StatusInternalServerError, "failed to load position history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"symbol":     symbol,
		"records":    records,
	})
}

// handleCompareSnapshots handles GET /api/history/compare/{accountID}?from=...&to=...
func (h *Handler) handleCompareSnapshots(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	from, to, err := parseDateRange(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmp, err := h.repo.CompareSnapshots(accountID, from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compare snapshots")
		h.respondError(w, http.StatusInternalServerError, "failed to compare snapshots")
		return
	}

	h.respondJSON(w, http.StatusOK, cmp)
}

// handleGetStatistics handles GET /api/history/statistics/{accountID}/{symbol}
func (h *Handler) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	symbol := chi.URLParam(r, "symbol")

	stats, err := h.repo.GetPositionStatistics(symbol, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		h.respondError(w, http.StatusNotFound, "no history for that symbol")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load statistics")
		h.respondError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return from, to, errors.New("from must be YYYY-MM-DD")
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return from, to, errors.New("to must be YYYY-MM-DD")
		}
		to = t
	}
	return from, to, nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
