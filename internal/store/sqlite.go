package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/harvest-cli/internal/dedupe"
	"github.com/sells-group/harvest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS harvest_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	sources    TEXT NOT NULL,
	stats      TEXT,
	leads      INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	key           TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	website       TEXT,
	domain        TEXT,
	category      TEXT,
	launch_date   TEXT,
	raised        TEXT,
	sale_type     TEXT,
	source        TEXT NOT NULL,
	details_url   TEXT NOT NULL,
	socials       TEXT,
	first_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
	last_seen_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_harvest_runs_status ON harvest_runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_sale_type ON leads(sale_type);
CREATE INDEX IF NOT EXISTS idx_leads_domain ON leads(domain);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, sources []string) (*model.HarvestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO harvest_runs (id, status, sources, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.HarvestRunStatusRunning), string(sourcesJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.HarvestRun{
		ID:        id,
		Status:    model.HarvestRunStatusRunning,
		Sources:   sources,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats []model.ScrapeStats, leadCount int) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE harvest_runs SET status = ?, stats = ?, leads = ?, updated_at = ? WHERE id = ?`,
		string(model.HarvestRunStatusComplete), string(statsJSON), leadCount, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE harvest_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.HarvestRunStatusFailed), runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.HarvestRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, sources, stats, leads, error, created_at, updated_at FROM harvest_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.HarvestRun, error) {
	query := `SELECT id, status, sources, stats, leads, error, created_at, updated_at FROM harvest_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.HarvestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// UpsertLeads writes the batch keyed by canonical domain (details URL when
// the lead has no website). A lead seen again keeps its first_seen_at but
// refreshes every harvested field.
func (s *SQLiteStore) UpsertLeads(ctx context.Context, leads []model.LeadRecord) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (key, name, website, domain, category, launch_date, raised, sale_type, source, details_url, socials, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   name = excluded.name, website = excluded.website, domain = excluded.domain,
		   category = excluded.category, launch_date = excluded.launch_date,
		   raised = excluded.raised, sale_type = excluded.sale_type,
		   source = excluded.source, details_url = excluded.details_url,
		   socials = excluded.socials, last_seen_at = excluded.last_seen_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	written := 0
	for _, lead := range leads {
		socialsJSON, err := json.Marshal(lead.Socials)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal socials for %s", lead.Name)
		}
		_, err = stmt.ExecContext(ctx,
			dedupe.CanonicalKey(lead), lead.Name, lead.Website, lead.Domain, lead.Category,
			lead.LaunchDate, lead.Raised, string(lead.SaleType), lead.Source, lead.DetailsURL,
			string(socialsJSON), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert lead %s", lead.Name)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return written, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	query := `SELECT name, website, domain, category, launch_date, raised, sale_type, source, details_url, socials FROM leads WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.SaleType != "" {
		query += ` AND sale_type = ?`
		args = append(args, string(filter.SaleType))
	}
	query += ` ORDER BY last_seen_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.LeadRecord
	for rows.Next() {
		var lead model.LeadRecord
		var saleType string
		var socialsJSON sql.NullString
		err := rows.Scan(&lead.Name, &lead.Website, &lead.Domain, &lead.Category,
			&lead.LaunchDate, &lead.Raised, &saleType, &lead.Source, &lead.DetailsURL, &socialsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		lead.SaleType = model.SaleType(saleType)
		if socialsJSON.Valid && socialsJSON.String != "" && socialsJSON.String != "null" {
			if err := json.Unmarshal([]byte(socialsJSON.String), &lead.Socials); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal socials")
			}
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.HarvestRun, error) {
	var r model.HarvestRun
	var status, sourcesJSON string
	var statsJSON, runErr sql.NullString

	err := row.Scan(&r.ID, &status, &sourcesJSON, &statsJSON, &r.Leads, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = model.HarvestRunStatus(status)
	if err := json.Unmarshal([]byte(sourcesJSON), &r.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	if runErr.Valid {
		r.Error = runErr.String
	}
	return &r, nil
}
