// Package history persists daily position snapshots and answers point-in-time
// queries over them. Snapshots are the only shared mutable state in the core;
// every write runs inside one transaction so a crash mid-save leaves the
// previous snapshot intact.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository stores and queries position snapshots
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// SaveSnapshot replaces the stored snapshot for (account, date) with the
// account's current positions. Delete plus insert plus provenance upsert run
// in one transaction: re-importing the same date replaces rather than
// duplicates, and readers never see a mixture of old and new rows.
func (r *Repository) SaveSnapshot(account domain.Account, date time.Time, sourceRef string) error {
	if account.ID == "" {
		return fmt.Errorf("account id is required")
	}
	day := date.Format(dateLayout)
	now := time.Now().Unix()

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`DELETE FROM positions_history WHERE account_id = ? AND snapshot_date = ?`,
			account.ID, day,
		); err != nil {
			return fmt.Errorf("failed to clear existing snapshot rows: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO positions_history (
				account_id, snapshot_date, symbol, asset_class,
				quantity, avg_cost, cost_basis, market_price, market_value,
				unrealized_pnl, currency, fx_rate_to_base,
				cost_basis_base, market_value_base, unrealized_pnl_base,
				coupon_rate, maturity_date, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare position insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range account.Positions {
			var couponRate, maturityDate interface{}
			if p.CouponRate != nil {
				couponRate = p.CouponRate.String()
			}
			if p.MaturityDate != nil {
				maturityDate = p.MaturityDate.Format(dateLayout)
			}

			if _, err := stmt.Exec(
				account.ID, day, p.Symbol, string(p.AssetClass),
				p.Quantity.String(), p.AvgCost.String(), p.CostBasis.String(),
				p.MarketPrice.String(), p.MarketValue.String(),
				p.UnrealizedPnL.String(), p.Currency, p.FXRateToBase.String(),
				p.CostBasisBase.String(), p.MarketValueBase.String(), p.UnrealizedPnLBase.String(),
				couponRate, maturityDate, now,
			); err != nil {
				return fmt.Errorf("failed to insert position %s: %w", p.Symbol, err)
			}
		}

		var periodStart, periodEnd interface{}
		if !account.PeriodStart.IsZero() {
			periodStart = account.PeriodStart.Format(dateLayout)
		}
		if !account.PeriodEnd.IsZero() {
			periodEnd = account.PeriodEnd.Format(dateLayout)
		}

		if _, err := tx.Exec(`
			INSERT INTO portfolio_snapshots (
				account_id, snapshot_date, source_ref, period_start, period_end,
				position_count, total_value, total_cash, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (account_id, snapshot_date) DO UPDATE SET
				source_ref = excluded.source_ref,
				period_start = excluded.period_start,
				period_end = excluded.period_end,
				position_count = excluded.position_count,
				total_value = excluded.total_value,
				total_cash = excluded.total_cash,
				created_at = excluded.created_at`,
			account.ID, day, sourceRef, periodStart, periodEnd,
			len(account.Positions),
			account.TotalPositionValueBase().String(),
			account.EndingCashBase().String(),
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert snapshot row: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Str("account", account.ID).
		Str("date", day).
		Int("positions", len(account.Positions)).
		Msg("Snapshot saved")

	return nil
}

// GetPortfolioSnapshot returns the provenance row and all position rows for
// one (account, date). sql.ErrNoRows when no snapshot exists for that date.
func (r *Repository) GetPortfolioSnapshot(accountID string, date time.Time) (*Snapshot, error) {
	day := date.Format(dateLayout)

	var snap Snapshot
	var periodStart, periodEnd sql.NullString
	var totalValue, totalCash string
	var createdAt int64

	err := r.db.QueryRow(`
		SELECT account_id, snapshot_date, source_ref, period_start, period_end,
		       position_count, total_value, total_cash, created_at
		FROM portfolio_snapshots
		WHERE account_id = ? AND snapshot_date = ?`,
		accountID, day,
	).Scan(&snap.AccountID, &snap.SnapshotDate, &snap.SourceRef,
		&periodStart, &periodEnd, &snap.PositionCount,
		&totalValue, &totalCash, &createdAt)
	if err != nil {
		return nil, err
	}
	snap.PeriodStart = periodStart.String
	snap.PeriodEnd = periodEnd.String
	snap.CreatedAt = time.Unix(createdAt, 0)

	if snap.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return nil, fmt.Errorf("corrupt total_value %q: %w", totalValue, err)
	}
	if snap.TotalCash, err = decimal.NewFromString(totalCash); err != nil {
		return nil, fmt.Errorf("corrupt total_cash %q: %w", totalCash, err)
	}

	rows, err := r.db.Query(positionSelect+`
		WHERE account_id = ? AND snapshot_date = ?
		ORDER BY symbol`,
		accountID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		snap.Positions = append(snap.Positions, rec)
	}

	return &snap, rows.Err()
}

// GetPositionHistory returns one symbol's rows for an account between two
// dates inclusive, oldest first.
func (r *Repository) GetPositionHistory(symbol, accountID string, from, to time.Time) ([]PositionRecord, error) {
	rows, err := r.db.Query(positionSelect+`
		WHERE symbol = ? AND account_id = ?
		  AND snapshot_date >= ? AND snapshot_date <= ?
		ORDER BY snapshot_date`,
		symbol, accountID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query position history: %w", err)
	}
	defer rows.Close()

	var records []PositionRecord
	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CompareSnapshots returns the three disjoint sets between two dates:
// positions only in the later date, only in the earlier date, and held on
// both with a quantity change. Symbols whose quantity is unchanged are
// excluded from "changed" even when their value moved.
func (r *Repository) CompareSnapshots(accountID string, fromDate, toDate time.Time) (*Comparison, error) {
	earlier, err := r.positionsForDate(accountID, fromDate)
	if err != nil {
		return nil, err
	}
	later, err := r.positionsForDate(accountID, toDate)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		AccountID: accountID,
		FromDate:  fromDate.Format(dateLayout),
		ToDate:    toDate.Format(dateLayout),
	}

	earlierBySymbol := make(map[string]PositionRecord, len(earlier))
	for _, rec := range earlier {
		earlierBySymbol[rec.Symbol] = rec
	}
	laterBySymbol := make(map[string]PositionRecord, len(later))
	for _, rec := range later {
		laterBySymbol[rec.Symbol] = rec
	}

	for _, rec := range later {
		old, held := earlierBySymbol[rec.Symbol]
		if !held {
			cmp.Added = append(cmp.Added, rec)
			continue
		}
		qtyDelta := rec.Quantity.Sub(old.Quantity)
		if qtyDelta.IsZero() {
			continue
		}
		cmp.Changed = append(cmp.Changed, PositionChange{
			Symbol:        rec.Symbol,
			QuantityDelta: qtyDelta,
			ValueDelta:    rec.MarketValueBase.Sub(old.MarketValueBase),
		})
	}
	for _, rec := range earlier {
		if _, held := laterBySymbol[rec.Symbol]; !held {
			cmp.Removed = append(cmp.Removed, rec)
		}
	}

	return cmp, nil
}

// GetPositionStatistics summarizes a symbol's stored history for an account.
func (r *Repository) GetPositionStatistics(symbol, accountID string) (*PositionStatistics, error) {
	records, err := r.GetPositionHistory(symbol, accountID, time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}

	stats := &PositionStatistics{
		Symbol:        symbol,
		AccountID:     accountID,
		SnapshotCount: len(records),
		FirstDate:     records[0].SnapshotDate,
		LastDate:      records[len(records)-1].SnapshotDate,
		MinValue:      records[0].MarketValueBase,
		MaxValue:      records[0].MarketValueBase,
		LatestValue:   records[len(records)-1].MarketValueBase,
		LatestPnL:     records[len(records)-1].UnrealizedPnLBase,
	}
	for _, rec := range records[1:] {
		if rec.MarketValueBase.LessThan(stats.MinValue) {
			stats.MinValue = rec.MarketValueBase
		}
		if rec.MarketValueBase.GreaterThan(stats.MaxValue) {
			stats.MaxValue = rec.MarketValueBase
		}
	}
	return stats, nil
}

func (r *Repository) positionsForDate(accountID string, date time.Time) ([]PositionRecord, error) {
	rows, err := r.db.Query(positionSelect+`
		WHERE account_id = ? AND snapshot_date = ?`,
		accountID, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for date: %w", err)
	}
	defer rows.Close()

	var records []PositionRecord
	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const positionSelect = `
	SELECT account_id, snapshot_date, symbol, asset_class,
	       quantity, avg_cost, cost_basis, market_price, market_value,
	       unrealized_pnl, currency, fx_rate_to_base,
	       cost_basis_base, market_value_base, unrealized_pnl_base,
	       coupon_rate, maturity_date, created_at
	FROM positions_history`

// scanPosition re-hydrates one row, parsing every TEXT column back to an
// exact decimal. A parse failure means a corrupt row and is an error.
func scanPosition(rows *sql.Rows) (PositionRecord, error) {
	var rec PositionRecord
	var assetClass string
	var dec [10]string
	var couponRate, maturityDate sql.NullString
	var createdAt int64

	if err := rows.Scan(
		&rec.AccountID, &rec.SnapshotDate, &rec.Symbol, &assetClass,
		&dec[0], &dec[1], &dec[2], &dec[3], &dec[4],
		&dec[5], &rec.Currency, &dec[6],
		&dec[7], &dec[8], &dec[9],
		&couponRate, &maturityDate, &createdAt,
	); err != nil {
		return rec, fmt.Errorf("failed to scan position row: %w", err)
	}

	rec.AssetClass = domain.AssetClass(assetClass)
	rec.CreatedAt = time.Unix(createdAt, 0)

	targets := []*decimal.Decimal{
		&rec.Quantity, &rec.AvgCost, &rec.CostBasis, &rec.MarketPrice,
		&rec.MarketValue, &rec.UnrealizedPnL, &rec.FXRateToBase,
		&rec.CostBasisBase, &rec.MarketValueBase, &rec.UnrealizedPnLBase,
	}
	for i, target := range targets {
		v, err := decimal.NewFromString(dec[i])
		if err != nil {
			return rec, fmt.Errorf("corrupt decimal column %q in row %s/%s/%s: %w",
				dec[i], rec.AccountID, rec.SnapshotDate, rec.Symbol, err)
		}
		*target = v
	}

	if couponRate.Valid {
		v, err := decimal.NewFromString(couponRate.String)
		if err != nil {
			return rec, fmt.Errorf("corrupt coupon_rate %q: %w", couponRate.String, err)
		}
		rec.CouponRate = &v
	}
	if maturityDate.Valid {
		t, err := time.Parse(dateLayout, maturityDate.String)
		if err != nil {
			return rec, fmt.Errorf("corrupt maturity_date %q: %w", maturityDate.String, err)
		}
		rec.MaturityDate = &t
	}

	return rec, nil
}
