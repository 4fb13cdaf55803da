package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/harvest-cli/internal/db"
	"github.com/sells-group/harvest-cli/internal/dedupe"
	"github.com/sells-group/harvest-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO harvest_runs (id, status, sources, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_run": `UPDATE harvest_runs SET status = $1, stats = $2, leads = $3, updated_at = $4 WHERE id = $5`,
	"fail_run":     `UPDATE harvest_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":      `SELECT id, status, sources, stats, leads, error, created_at, updated_at FROM harvest_runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS harvest_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'running',
	sources    JSONB NOT NULL,
	stats      JSONB,
	leads      INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	socials       JSONB,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_harvest_runs_status ON harvest_runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_sale_type ON leads(sale_type);
CREATE INDEX IF NOT EXISTS idx_leads_domain ON leads(domain);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, sources []string) (*model.HarvestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO harvest_runs (id, status, sources, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.HarvestRunStatusRunning), sourcesJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.HarvestRun{
		ID:        id,
		Status:    model.HarvestRunStatusRunning,
		Sources:   sources,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats []model.ScrapeStats, leadCount int) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE harvest_runs SET status = $1, stats = $2, leads = $3, updated_at = $4 WHERE id = $5`,
		string(model.HarvestRunStatusComplete), statsJSON, leadCount, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE harvest_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.HarvestRunStatusFailed), runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.HarvestRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, sources, stats, leads, error, created_at, updated_at FROM harvest_runs WHERE id = $1`,
		runID,
	)
	return scanPostgresRun(row, runID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.HarvestRun, error) {
	query := `SELECT id, status, sources, stats, leads, error, created_at, updated_at FROM harvest_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.HarvestRun
	for rows.Next() {
		r, err := scanPostgresRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// UpsertLeads writes the batch with one COPY into a temp table plus a
// single INSERT ... ON CONFLICT, keyed by canonical domain. A returning
// lead keeps its first_seen_at but refreshes every harvested field.
func (s *PostgresStore) UpsertLeads(ctx context.Context, leads []model.LeadRecord) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for _, lead := range leads {
		socialsJSON, err := json.Marshal(lead.Socials)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal socials for %s", lead.Name)
		}
		rows = append(rows, []any{
			dedupe.CanonicalKey(lead), lead.Name, lead.Website, lead.Domain, lead.Category,
			lead.LaunchDate, lead.Raised, string(lead.SaleType), lead.Source, lead.DetailsURL,
			socialsJSON, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      leadColumns,
		ConflictKeys: []string{"key"},
		UpdateCols: []string{
			"name", "website", "domain", "category", "launch_date",
			"raised", "sale_type", "source", "details_url", "socials", "last_seen_at",
		},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert leads")
	}
	return int(n), nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	query := `SELECT name, website, domain, category, launch_date, raised, sale_type, source, details_url, socials FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	if filter.SaleType != "" {
		query += fmt.Sprintf(` AND sale_type = $%d`, argIdx)
		args = append(args, string(filter.SaleType))
		argIdx++
	}
	query += ` ORDER BY last_seen_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.LeadRecord
	for rows.Next() {
		var lead model.LeadRecord
		var saleType string
		var socialsJSON []byte
		err := rows.Scan(&lead.Name, &lead.Website, &lead.Domain, &lead.Category,
			&lead.LaunchDate, &lead.Raised, &saleType, &lead.Source, &lead.DetailsURL, &socialsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		lead.SaleType = model.SaleType(saleType)
		if len(socialsJSON) > 0 {
			if err := json.Unmarshal(socialsJSON, &lead.Socials); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal socials")
			}
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func scanPostgresRun(row pgx.Row, runID string) (*model.HarvestRun, error) {
	var r model.HarvestRun
	var status string
	var sourcesJSON []byte
	var statsJSON []byte
	var runErr *string

	err := row.Scan(&r.ID, &status, &sourcesJSON, &statsJSON, &r.Leads, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	r.Status = model.HarvestRunStatus(status)
	if err := json.Unmarshal(sourcesJSON, &r.Sources); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal sources")
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	if runErr != nil {
		r.Error = *runErr
	}
	return &r, nil
}
