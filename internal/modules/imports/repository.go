// Package imports keeps an audit trail of document imports in the cache
// database. Each job row stores a msgpack blob describing what was imported
// and which substitutions the normalizer made.
package imports

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/folioanalytics/folio/internal/domain"
)

// Job is the recorded outcome of one import. All fields are plain strings
// and integers so the msgpack encoding stays stable across versions.
type Job struct {
	ID            string   `msgpack:"id" json:"id"`
	SourceRef     string   `msgpack:"source_ref" json:"source_ref"`
	AccountIDs    []string `msgpack:"account_ids" json:"account_ids"`
	PositionCount int      `msgpack:"position_count" json:"position_count"`
	TradeCount    int      `msgpack:"trade_count" json:"trade_count"`
	Saved         bool     `msgpack:"saved" json:"saved"`
	Diagnostics   []string `msgpack:"diagnostics" json:"diagnostics"`
	CreatedAt     int64    `msgpack:"created_at" json:"created_at"` // Unix seconds
}

// Repository stores import jobs in cache.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new imports repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "imports").Logger(),
	}
}

// Record writes a job row for a completed import and returns its id.
func (r *Repository) Record(sourceRef string, accounts map[string]domain.Account, diags []domain.Diagnostic, saved bool) (string, error) {
	job := Job{
		ID:        uuid.NewString(),
		SourceRef: sourceRef,
		Saved:     saved,
		CreatedAt: time.Now().Unix(),
	}
	for id, acct := range accounts {
		job.AccountIDs = append(job.AccountIDs, id)
		job.PositionCount += len(acct.Positions)
		job.TradeCount += len(acct.Trades)
	}
	for _, diag := range diags {
		job.Diagnostics = append(job.Diagnostics, diag.String())
	}

	payload, err := msgpack.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode import job: %w", err)
	}

	if _, err := r.db.Exec(
		`INSERT INTO import_jobs (id, created_at, payload) VALUES (?, ?, ?)`,
		job.ID, job.CreatedAt, payload,
	); err != nil {
		return "", fmt.Errorf("failed to store import job: %w", err)
	}

	r.log.Debug().Str("job_id", job.ID).Str("source_ref", sourceRef).Msg("Import job recorded")
	return job.ID, nil
}

// Get returns one job by id. sql.ErrNoRows when absent.
func (r *Repository) Get(id string) (*Job, error) {
	var payload []byte
	if err := r.db.QueryRow(
		`SELECT payload FROM import_jobs WHERE id = ?`, id,
	).Scan(&payload); err != nil {
		return nil, err
	}

	var job Job
	if err := msgpack.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("corrupt import job %s: %w", id, err)
	}
	return &job, nil
}

// Recent returns the newest jobs, newest first.
func (r *Repository) Recent(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(
		`SELECT payload FROM import_jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		var job Job
		if err := msgpack.Unmarshal(payload, &job); err != nil {
			return nil, fmt.Errorf("corrupt import job payload: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Prune deletes jobs older than the retention window.
func (r *Repository) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := r.db.Exec(`DELETE FROM import_jobs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune import jobs: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		r.log.Debug().Int64("deleted", n).Msg("Pruned import jobs")
	}
	return n, nil
}
