package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/config"
	"github.com/folioanalytics/folio/internal/domain"
	"github.com/folioanalytics/folio/internal/modules/analyzers"
	"github.com/folioanalytics/folio/internal/modules/flexreport"
	"github.com/folioanalytics/folio/internal/modules/history"
	"github.com/folioanalytics/folio/internal/modules/imports"
	"github.com/folioanalytics/folio/internal/modules/rebalancing"
	"github.com/folioanalytics/folio/internal/modules/taxes"
)

// APIHandlers handles the JSON API endpoints that accept a vendor document
// in the request envelope and run the engines over it.
type APIHandlers struct {
	flexreport  *flexreport.Service
	taxes       *taxes.Service
	rebalancing *rebalancing.Service
	analyzers   *analyzers.Runner
	history     *history.Repository
	imports     *imports.Repository
	cfg         config.Config
	log         zerolog.Logger
}

// NewAPIHandlers creates the API handler set
func NewAPIHandlers(
	flexSvc *flexreport.Service,
	taxSvc *taxes.Service,
	rebalSvc *rebalancing.Service,
	runner *analyzers.Runner,
	historyRepo *history.Repository,
	importsRepo *imports.Repository,
	cfg config.Config,
	log zerolog.Logger,
) *APIHandlers {
	return &APIHandlers{
		flexreport:  flexSvc,
		taxes:       taxSvc,
		rebalancing: rebalSvc,
		analyzers:   runner,
		history:     historyRepo,
		imports:     importsRepo,
		cfg:         cfg,
		log:         log.With().Str("handler", "api").Logger(),
	}
}

// documentEnvelope is the shared request shape: the raw vendor document plus
// a provenance reference.
type documentEnvelope struct {
	Document  string `json:"document"`
	SourceRef string `json:"source_ref"`
}

// HandleImport handles POST /api/import?save=true. The document is
// normalized; with save=true every account is also snapshotted for today.
func (h *APIHandlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req documentEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accounts, diags, err := h.flexreport.NormalizeAll([]byte(req.Document))
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	save, _ := strconv.ParseBool(r.URL.Query().Get("save"))
	if save {
		today := time.Now()
		for _, acct := range accounts {
			if acct.IsUnknown() {
				continue
			}
			if err := h.history.SaveSnapshot(acct, today, req.SourceRef); err != nil {
				h.log.Error().Err(err).Str("account", acct.ID).Msg("Failed to save snapshot")
				h.respondError(w, http.StatusInternalServerError, "failed to save snapshot")
				return
			}
		}
	}

	jobID, err := h.imports.Record(req.SourceRef, accounts, diags, save)
	if err != nil {
		// Audit trail failure does not fail the import.
		h.log.Warn().Err(err).Msg("Failed to record import job")
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      jobID,
		"saved":       save,
		"accounts":    accounts,
		"diagnostics": diags,
	})
}

// HandleListImportJobs handles GET /api/import/jobs
func (h *APIHandlers) HandleListImportJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := h.imports.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list import jobs")
		h.respondError(w, http.StatusInternalServerError, "failed to list import jobs")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// HandleGetImportJob handles GET /api/import/jobs/{jobID}
func (h *APIHandlers) HandleGetImportJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.imports.Get(chi.URLParam(r, "jobID"))
	if errors.Is(err, sql.ErrNoRows) {
		h.respondError(w, http.StatusNotFound, "import job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load import job")
		h.respondError(w, http.StatusInternalServerError, "failed to load import job")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// HandleWashSales handles POST /api/taxes/wash-sales
func (h *APIHandlers) HandleWashSales(w http.ResponseWriter, r *http.Request) {
	var req struct {
		documentEnvelope
		TaxRate *decimal.Decimal `json:"tax_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	portfolio, ok := h.normalizePortfolio(w, req.Document)
	if !ok {
		return
	}

	taxRate := h.cfg.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	report, err := h.taxes.Detect(portfolio.AllTrades(), portfolio.AllPositions(), taxRate, time.Now())
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}

// HandleRebalancingPlan handles POST /api/rebalancing/plan
func (h *APIHandlers) HandleRebalancingPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		documentEnvelope
		AccountID         string               `json:"account_id"`
		Targets           []rebalancing.Target `json:"targets"`
		SimulateTaxImpact bool                 `json:"simulate_tax_impact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account, diags, err := h.flexreport.Normalize([]byte(req.Document), req.AccountID)
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	opts := rebalancing.Options{
		CommissionFixed:   h.cfg.CommissionFixed,
		CommissionPct:     h.cfg.CommissionPct,
		SimulateTaxImpact: req.SimulateTaxImpact,
		TaxRate:           h.cfg.DefaultTaxRate,
	}

	plan, err := h.rebalancing.GenerateTrades(account.Positions, req.Targets, opts)
	if err != nil {
		var allocErr rebalancing.ErrAllocationSum
		if errors.As(err, &allocErr) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to generate plan")
		h.respondError(w, http.StatusInternalServerError, "failed to generate plan")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":  account.ID,
		"plan":        plan,
		"diagnostics": diags,
	})
}

// HandleRunAnalysis handles POST /api/analysis/run
func (h *APIHandlers) HandleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req documentEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	portfolio, ok := h.normalizePortfolio(w, req.Document)
	if !ok {
		return
	}

	results := h.analyzers.RunAll(portfolio)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_value": portfolio.TotalValueBase,
		"total_cash":  portfolio.TotalCashBase,
		"excluded":    portfolio.Excluded,
		"results":     results,
	})
}

// normalizePortfolio parses the document and aggregates it. On failure it
// writes the error response and reports false.
func (h *APIHandlers) normalizePortfolio(w http.ResponseWriter, document string) (domain.Portfolio, bool) {
	accounts, _, err := h.flexreport.NormalizeAll([]byte(document))
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return domain.Portfolio{}, false
	}
	return domain.NewPortfolio(accounts), true
}

func (h *APIHandlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *APIHandlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
