// Package analyzers runs pluggable read-only analyses over an aggregated
// portfolio. Each analyzer inspects the same immutable snapshot and emits
// named decimal metrics plus free-form notes.
package analyzers

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// Result is one analyzer's output.
type Result struct {
	Analyzer string                     `json:"analyzer"`
	Metrics  map[string]decimal.Decimal `json:"metrics"`
	Notes    []string                   `json:"notes,omitempty"`
}

// Analyzer inspects a portfolio snapshot and produces metrics.
type Analyzer interface {
	Name() string
	Analyze(p domain.Portfolio) (Result, error)
}

// Runner executes a fixed set of analyzers
type Runner struct {
	analyzers []Analyzer
	log       zerolog.Logger
}

// NewRunner creates a runner over the given analyzers
func NewRunner(analyzers []Analyzer, log zerolog.Logger) *Runner {
	return &Runner{
		analyzers: analyzers,
		log:       log.With().Str("service", "analyzers").Logger(),
	}
}

// RunAll runs every analyzer against the portfolio. One analyzer failing
// does not stop the others; failures are logged and skipped.
func (r *Runner) RunAll(p domain.Portfolio) []Result {
	results := make([]Result, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		res, err := a.Analyze(p)
		if err != nil {
			r.log.Warn().Err(err).Str("analyzer", a.Name()).Msg("Analyzer failed")
			continue
		}
		results = append(results, res)
	}
	return results
}
