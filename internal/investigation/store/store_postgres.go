package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"diligence/internal/investigation/models"
	"diligence/internal/investigation/report"
	"diligence/pkg/platform/sentinel"
)

// Schema creates the investigations table. The flattened report columns
// (sector, risk_level, risk_score, summary) are queryable; full_report keeps
// the whole report.
const Schema = `
CREATE TABLE IF NOT EXISTS investigations (
    id           UUID PRIMARY KEY,
    subject_name TEXT NOT NULL,
    state        TEXT NOT NULL,
    sector       TEXT NOT NULL,
    risk_level   TEXT NOT NULL,
    risk_score   INTEGER NOT NULL CHECK (risk_score BETWEEN 0 AND 100),
    summary      TEXT NOT NULL,
    fallback     BOOLEAN NOT NULL DEFAULT FALSE,
    full_report  JSONB NOT NULL,
    request      JSONB NOT NULL,
    outcomes     JSONB NOT NULL DEFAULT '[]',
    history      JSONB NOT NULL DEFAULT '[]',
    request_id   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS investigations_created_at_idx ON investigations (created_at DESC);
CREATE INDEX IF NOT EXISTS investigations_sector_level_idx ON investigations (sector, risk_level);
`

// PostgresStore persists investigations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed investigation store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply investigations schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, inv *models.Investigation) error {
	if err := checkSavable(inv); err != nil {
		return err
	}
	rec, err := inv.Report.ToRecord()
	if err != nil {
		return err
	}
	request, err := json.Marshal(inv.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	outcomes, err := json.Marshal(nonNil(inv.Outcomes))
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	history, err := json.Marshal(nonNil(inv.History))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	const query = `
INSERT INTO investigations (
    id, subject_name, state, sector, risk_level, risk_score, summary, fallback,
    full_report, request, outcomes, history, request_id, created_at, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    state        = EXCLUDED.state,
    sector       = EXCLUDED.sector,
    risk_level   = EXCLUDED.risk_level,
    risk_score   = EXCLUDED.risk_score,
    summary      = EXCLUDED.summary,
    fallback     = EXCLUDED.fallback,
    full_report  = EXCLUDED.full_report,
    outcomes     = EXCLUDED.outcomes,
    history      = EXCLUDED.history,
    completed_at = EXCLUDED.completed_at`

	_, err = s.db.ExecContext(ctx, query,
		inv.ID, inv.Request.Name, string(inv.State),
		rec.Sector, rec.RiskLevel, rec.RiskScore, rec.Summary, inv.Report.Fallback,
		[]byte(rec.FullReport), request, outcomes, history, inv.RequestID,
		inv.CreatedAt, nullTime(inv.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save investigation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Investigation, error) {
	const query = `
SELECT id, state, sector, risk_level, risk_score, summary, full_report, request,
       outcomes, history, request_id, created_at, completed_at
FROM investigations WHERE id = $1`

	var (
		inv       models.Investigation
		state     string
		rec       report.Record
		full      []byte
		request   []byte
		outcomes  []byte
		history   []byte
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &state, &rec.Sector, &rec.RiskLevel, &rec.RiskScore, &rec.Summary,
		&full, &request, &outcomes, &history, &inv.RequestID, &inv.CreatedAt, &completed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find investigation by id: %w", err)
	}

	rec.FullReport = full
	r, err := report.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &inv.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := json.Unmarshal(outcomes, &inv.Outcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	if err := json.Unmarshal(history, &inv.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	inv.State = models.State(state)
	inv.Report = &r
	inv.Persisted = true
	inv.CreatedAt = inv.CreatedAt.UTC()
	if completed.Valid {
		t := completed.Time.UTC()
		inv.CompletedAt = &t
	}
	return &inv, nil
}

// List returns summaries newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]models.Summary, error) {
	const query = `
SELECT id, subject_name, state, sector, risk_level, risk_score, fallback, created_at
FROM investigations
ORDER BY created_at DESC, id
LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	defer rows.Close()

	var out []models.Summary
	for rows.Next() {
		var (
			sum   models.Summary
			state string
			level string
			score int
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &state, &sum.Sector, &level, &score, &sum.Fallback, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan investigation: %w", err)
		}
		sum.State = models.State(state)
		sum.RiskLevel = report.Level(level)
		sum.RiskScore = &score
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investigations: %w", err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
