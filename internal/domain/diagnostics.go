package domain

import "fmt"

// DiagnosticSeverity grades a normalization diagnostic
type DiagnosticSeverity string

const (
	SeverityInfo    DiagnosticSeverity = "info"
	SeverityWarning DiagnosticSeverity = "warning"
)

// Diagnostic codes emitted by the normalizer
const (
	DiagUnparseableDate   = "unparseable_date"
	DiagMissingFXRate     = "missing_fx_rate"
	DiagInvalidNumber     = "invalid_number"
	DiagUnknownAssetClass = "unknown_asset_class"
	DiagUnknownAccount    = "unknown_account"
	DiagNoCashSummary     = "no_cash_summary"
)

// Diagnostic records a partial-data substitution made during normalization.
// Substitutions never abort a document, but they are surfaced so downstream
// analytics can choose to ignore the affected record.
type Diagnostic struct {
	Severity DiagnosticSeverity `json:"severity"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Field    string             `json:"field,omitempty"`
	Record   string             `json:"record,omitempty"` // e.g. "trade 12345", "position CSPX"
}

func (d Diagnostic) String() string {
	if d.Record != "" {
		return fmt.Sprintf("[%s] %s (%s): %s", d.Severity, d.Code, d.Record, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Message)
}
