package history

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// PositionRecord is one stored position row, re-hydrated to exact decimals.
type PositionRecord struct {
	AccountID    string          `json:"account_id"`
	SnapshotDate string          `json:"snapshot_date"` // YYYY-MM-DD
	domain.Position
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the provenance row for one (account, date) save.
type Snapshot struct {
	AccountID     string           `json:"account_id"`
	SnapshotDate  string           `json:"snapshot_date"`
	SourceRef     string           `json:"source_ref"`
	PeriodStart   string           `json:"period_start,omitempty"`
	PeriodEnd     string           `json:"period_end,omitempty"`
	PositionCount int              `json:"position_count"`
	TotalValue    decimal.Decimal  `json:"total_value"`
	TotalCash     decimal.Decimal  `json:"total_cash"`
	CreatedAt     time.Time        `json:"created_at"`
	Positions     []PositionRecord `json:"positions,omitempty"`
}

// PositionChange describes one symbol held on both compared dates whose
// quantity changed.
type PositionChange struct {
	Symbol        string          `json:"symbol"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	ValueDelta    decimal.Decimal `json:"value_delta"` // base currency
}

// Comparison is the three disjoint sets produced by comparing two snapshot
// dates for one account.
type Comparison struct {
	AccountID string           `json:"account_id"`
	FromDate  string           `json:"from_date"`
	ToDate    string           `json:"to_date"`
	Added     []PositionRecord `json:"added"`
	Removed   []PositionRecord `json:"removed"`
	Changed   []PositionChange `json:"changed"`
}

// PositionStatistics summarizes one symbol's stored history.
type PositionStatistics struct {
	Symbol        string          `json:"symbol"`
	AccountID     string          `json:"account_id"`
	SnapshotCount int             `json:"snapshot_count"`
	FirstDate     string          `json:"first_date"`
	LastDate      string          `json:"last_date"`
	MinValue      decimal.Decimal `json:"min_value"`
	MaxValue      decimal.Decimal `json:"max_value"`
	LatestValue   decimal.Decimal `json:"latest_value"`
	LatestPnL     decimal.Decimal `json:"latest_pnl"`
}
