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

	"github.com/core-sentiment/pageview-cli/internal/db"
	"github.com/core-sentiment/pageview-cli/internal/model"
	"github.com/core-sentiment/pageview-cli/internal/resilience"
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
	"insert_run":      `INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, $3)`,
	"complete_run":    `UPDATE pipeline_runs SET status = $1, report = $2, finished_at = $3 WHERE id = $4`,
	"get_run":         `SELECT id, status, report, started_at, finished_at FROM pipeline_runs WHERE id = $1`,
	"upsert_override": `INSERT INTO company_overrides (page_title, correct_company, reason, created_by, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (page_title) DO UPDATE SET correct_company = $2, reason = $3, created_by = $4`,
	"delete_override": `DELETE FROM company_overrides WHERE page_title = $1`,
	"insert_excluded": `INSERT INTO excluded_batches (id, run_id, records, reason, retry_count, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"delete_excluded": `DELETE FROM excluded_batches WHERE id = $1`,
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

	// The database may still be coming up when the CLI starts.
	pingRetry := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	if err := resilience.Do(ctx, pingRetry, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk ingestion).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_pageviews (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     BIGINT NOT NULL,
	source_file     TEXT,
	processing_date DATE NOT NULL,
	loaded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_pageviews_date ON raw_pageviews(processing_date);

CREATE TABLE IF NOT EXISTS company_overrides (
	page_title      TEXT PRIMARY KEY,
	correct_company TEXT NOT NULL,
	reason          TEXT,
	created_by      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS filtered_pageviews (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     BIGINT NOT NULL,
	company         TEXT NOT NULL,
	processing_date DATE NOT NULL,
	filter_method   TEXT NOT NULL,
	filtered_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (domain, page_title, processing_date, filter_method)
);

CREATE INDEX IF NOT EXISTS idx_filtered_pageviews_date ON filtered_pageviews(processing_date);
CREATE INDEX IF NOT EXISTS idx_filtered_pageviews_company ON filtered_pageviews(company);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	report      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);

CREATE TABLE IF NOT EXISTS excluded_batches (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL,
	records     JSONB NOT NULL,
	reason      TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_excluded_batches_run_id ON excluded_batches(run_id);

CREATE TABLE IF NOT EXISTS classified_pageviews (
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     BIGINT NOT NULL,
	company         TEXT NOT NULL,
	processing_date DATE NOT NULL,
	filter_method   TEXT NOT NULL,
	is_override     BOOLEAN NOT NULL DEFAULT false
);
`

var rawColumns = []string{"domain", "page_title", "count_views", "source_file", "processing_date"}

var filteredInsert = db.InsertIgnoreConfig{
	Table:        "filtered_pageviews",
	Columns:      []string{"domain", "page_title", "count_views", "company", "processing_date", "filter_method", "filtered_at"},
	ConflictKeys: []string{"domain", "page_title", "processing_date", "filter_method"},
}

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

func (s *PostgresStore) InsertRaw(ctx context.Context, records []model.RawRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{r.Domain, r.PageTitle, r.CountViews, r.SourceFile, r.ProcessingDate})
	}
	n, err := db.CopyFrom(ctx, s.pool, "raw_pageviews", rawColumns, rows)
	return n, eris.Wrap(err, "postgres: insert raw")
}

func (s *PostgresStore) ListRaw(ctx context.Context, date time.Time) ([]model.RawRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, page_title, count_views, COALESCE(source_file, ''), processing_date
		 FROM raw_pageviews WHERE processing_date = $1`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list raw")
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		if err := rows.Scan(&r.Domain, &r.PageTitle, &r.CountViews, &r.SourceFile, &r.ProcessingDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list raw iterate")
}

func (s *PostgresStore) ListOverrides(ctx context.Context) ([]model.Override, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_title, correct_company, COALESCE(reason, ''), COALESCE(created_by, ''), created_at
		 FROM company_overrides ORDER BY page_title`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list overrides")
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.PageTitle, &o.CorrectCompany, &o.Reason, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list overrides iterate")
}

func (s *PostgresStore) PutOverride(ctx context.Context, o model.Override) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_overrides (page_title, correct_company, reason, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (page_title) DO UPDATE SET correct_company = $2, reason = $3, created_by = $4`,
		o.PageTitle, string(o.CorrectCompany), o.Reason, o.CreatedBy, createdAt,
	)
	return eris.Wrapf(err, "postgres: put override %s", o.PageTitle)
}

func (s *PostgresStore) DeleteOverride(ctx context.Context, pageTitle string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM company_overrides WHERE page_title = $1`, pageTitle)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete override %s", pageTitle)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("override not found: %s", pageTitle)
	}
	return nil
}

func (s *PostgresStore) InsertFiltered(ctx context.Context, records []model.FilteredRecord) (int64, int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		filteredAt := r.FilteredAt
		if filteredAt.IsZero() {
			filteredAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			r.Domain, r.PageTitle, r.CountViews, string(r.Company),
			r.ProcessingDate, r.FilterMethod, filteredAt,
		})
	}

	inserted, err := db.BulkInsertIgnore(ctx, s.pool, filteredInsert, rows)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: insert filtered")
	}
	return inserted, int64(len(records)) - inserted, nil
}

func (s *PostgresStore) ListFiltered(ctx context.Context, date time.Time) ([]model.FilteredRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, page_title, count_views, company, processing_date, filter_method, filtered_at
		 FROM filtered_pageviews WHERE processing_date = $1`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filtered")
	}
	defer rows.Close()
	return scanFilteredRows(rows)
}

func scanFilteredRows(rows pgx.Rows) ([]model.FilteredRecord, error) {
	var out []model.FilteredRecord
	for rows.Next() {
		var r model.FilteredRecord
		if err := rows.Scan(&r.Domain, &r.PageTitle, &r.CountViews, &r.Company, &r.ProcessingDate, &r.FilterMethod, &r.FilteredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filtered")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list filtered iterate")
}

// snapshotDDL builds the side table for a snapshot rebuild. Index names carry
// the generation suffix so they survive the rename without colliding.
func snapshotDDL(table string, gen int64) string {
	return fmt.Sprintf(`
CREATE TABLE %s (
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     BIGINT NOT NULL,
	company         TEXT NOT NULL,
	processing_date DATE NOT NULL,
	filter_method   TEXT NOT NULL,
	is_override     BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX idx_classified_date_%d ON %s(processing_date);
CREATE INDEX idx_classified_company_%d ON %s(company);
`, table, gen, table, gen, table)
}

var snapshotColumns = []string{"domain", "page_title", "count_views", "company", "processing_date", "filter_method", "is_override"}

// snapshotGen produces the generation suffix for snapshot side tables.
// Overridable in tests.
var snapshotGen = func() int64 { return time.Now().UnixNano() }

// RefreshSnapshot rebuilds classified_pageviews from the curated store with
// the current override state applied. The new snapshot is built into a side
// table and swapped in with a short rename transaction, so readers never see
// a partially built snapshot.
func (s *PostgresStore) RefreshSnapshot(ctx context.Context, resolve func(title string) model.Resolution) (int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, page_title, count_views, company, processing_date, filter_method, filtered_at
		 FROM filtered_pageviews`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: read filtered")
	}
	filtered, err := scanFilteredRows(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	snapshot := buildSnapshot(filtered, resolve)

	gen := snapshotGen()
	side := fmt.Sprintf("classified_pageviews_%d", gen)

	if _, err := s.pool.Exec(ctx, snapshotDDL(side, gen)); err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: create side table")
	}

	copyRows := make([][]any, 0, len(snapshot))
	for _, sr := range snapshot {
		copyRows = append(copyRows, []any{
			sr.Domain, sr.PageTitle, sr.CountViews, string(sr.Company),
			sr.ProcessingDate, sr.FilterMethod, sr.IsOverride,
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, side, snapshotColumns, copyRows); err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: load side table")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: begin swap")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS classified_pageviews`); err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: drop old")
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO classified_pageviews`, side)); err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: rename")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: refresh snapshot: commit swap")
	}

	return len(snapshot), nil
}

func (s *PostgresStore) CompanyRankings(ctx context.Context, date time.Time) ([]model.CompanyRanking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company, COUNT(*), SUM(count_views)
		 FROM classified_pageviews WHERE processing_date = $1
		 GROUP BY company`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: company rankings")
	}
	defer rows.Close()

	var aggs []model.CompanyRanking
	for rows.Next() {
		var a model.CompanyRanking
		if err := rows.Scan(&a.Company, &a.PageCount, &a.TotalViews); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ranking")
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: company rankings iterate")
	}
	return rankCompanies(aggs), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, report = $2, finished_at = $3 WHERE id = $4`,
		string(status), reportJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var reportJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, report, started_at, finished_at FROM pipeline_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &reportJSON, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if reportJSON != nil {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}

func (s *PostgresStore) AddExcludedBatch(ctx context.Context, b *model.ExcludedBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	recordsJSON, err := json.Marshal(b.Records)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal excluded records")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO excluded_batches (id, run_id, records, reason, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.RunID, recordsJSON, b.Reason, b.RetryCount, b.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert excluded batch")
}

func (s *PostgresStore) ListExcludedBatches(ctx context.Context) ([]model.ExcludedBatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, records, reason, retry_count, created_at
		 FROM excluded_batches ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list excluded batches")
	}
	defer rows.Close()

	var out []model.ExcludedBatch
	for rows.Next() {
		var b model.ExcludedBatch
		var recordsJSON []byte
		if err := rows.Scan(&b.ID, &b.RunID, &recordsJSON, &b.Reason, &b.RetryCount, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan excluded batch")
		}
		if err := json.Unmarshal(recordsJSON, &b.Records); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal excluded records")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list excluded batches iterate")
}

func (s *PostgresStore) UpdateExcludedBatchRetry(ctx context.Context, id string, retryCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE excluded_batches SET retry_count = $1 WHERE id = $2`,
		retryCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update excluded batch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("excluded batch not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteExcludedBatch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM excluded_batches WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete excluded batch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("excluded batch not found: %s", id)
	}
	return nil
}
