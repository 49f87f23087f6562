package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/core-sentiment/pageview-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS raw_pageviews (
	id              TEXT PRIMARY KEY,
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     INTEGER NOT NULL,
	source_file     TEXT,
	processing_date TEXT NOT NULL,
	loaded_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_raw_pageviews_date ON raw_pageviews(processing_date);

CREATE TABLE IF NOT EXISTS company_overrides (
	page_title      TEXT PRIMARY KEY,
	correct_company TEXT NOT NULL,
	reason          TEXT,
	created_by      TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS filtered_pageviews (
	id              TEXT PRIMARY KEY,
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     INTEGER NOT NULL,
	company         TEXT NOT NULL,
	processing_date TEXT NOT NULL,
	filter_method   TEXT NOT NULL,
	filtered_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (domain, page_title, processing_date, filter_method)
);

CREATE INDEX IF NOT EXISTS idx_filtered_pageviews_date ON filtered_pageviews(processing_date);
CREATE INDEX IF NOT EXISTS idx_filtered_pageviews_company ON filtered_pageviews(company);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	report      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);

CREATE TABLE IF NOT EXISTS excluded_batches (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	records     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_excluded_batches_run_id ON excluded_batches(run_id);

CREATE TABLE IF NOT EXISTS classified_pageviews (
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     INTEGER NOT NULL,
	company         TEXT NOT NULL,
	processing_date TEXT NOT NULL,
	filter_method   TEXT NOT NULL,
	is_override     INTEGER NOT NULL DEFAULT 0
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dateKey stores processing dates as text so comparisons are exact.
func dateKey(t time.Time) string {
	return t.Format(model.DateFormat)
}

func parseDateKey(s string) (time.Time, error) {
	t, err := time.Parse(model.DateFormat, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse date %q", s)
	}
	return t, nil
}

func (s *SQLiteStore) InsertRaw(ctx context.Context, records []model.RawRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert raw: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_pageviews (id, domain, page_title, count_views, source_file, processing_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert raw: prepare")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), r.Domain, r.PageTitle, r.CountViews, r.SourceFile, dateKey(r.ProcessingDate),
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert raw row")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert raw: commit")
	}
	return int64(len(records)), nil
}

func (s *SQLiteStore) ListRaw(ctx context.Context, date time.Time) ([]model.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, page_title, count_views, COALESCE(source_file, ''), processing_date
		 FROM raw_pageviews WHERE processing_date = ?`,
		dateKey(date),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw")
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		var dateStr string
		if err := rows.Scan(&r.Domain, &r.PageTitle, &r.CountViews, &r.SourceFile, &dateStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw")
		}
		if r.ProcessingDate, err = parseDateKey(dateStr); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list raw iterate")
}

func (s *SQLiteStore) ListOverrides(ctx context.Context) ([]model.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_title, correct_company, COALESCE(reason, ''), COALESCE(created_by, ''), created_at
		 FROM company_overrides ORDER BY page_title`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list overrides")
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		var company string
		if err := rows.Scan(&o.PageTitle, &company, &o.Reason, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		o.CorrectCompany = model.Company(company)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list overrides iterate")
}

func (s *SQLiteStore) PutOverride(ctx context.Context, o model.Override) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO company_overrides (page_title, correct_company, reason, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (page_title) DO UPDATE SET correct_company = excluded.correct_company,
		   reason = excluded.reason, created_by = excluded.created_by`,
		o.PageTitle, string(o.CorrectCompany), o.Reason, o.CreatedBy, createdAt,
	)
	return eris.Wrapf(err, "sqlite: put override %s", o.PageTitle)
}

func (s *SQLiteStore) DeleteOverride(ctx context.Context, pageTitle string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM company_overrides WHERE page_title = ?`, pageTitle)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete override %s", pageTitle)
	}
	return checkRowsAffected(res, "override", pageTitle)
}

func (s *SQLiteStore) InsertFiltered(ctx context.Context, records []model.FilteredRecord) (int64, int64, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: insert filtered: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO filtered_pageviews
		 (id, domain, page_title, count_views, company, processing_date, filter_method, filtered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: insert filtered: prepare")
	}
	defer stmt.Close()

	var inserted int64
	for _, r := range records {
		filteredAt := r.FilteredAt
		if filteredAt.IsZero() {
			filteredAt = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), r.Domain, r.PageTitle, r.CountViews, string(r.Company),
			dateKey(r.ProcessingDate), r.FilterMethod, filteredAt,
		)
		if err != nil {
			return 0, 0, eris.Wrap(err, "sqlite: insert filtered row")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, eris.Wrap(err, "sqlite: insert filtered rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: insert filtered: commit")
	}
	return inserted, int64(len(records)) - inserted, nil
}

func (s *SQLiteStore) ListFiltered(ctx context.Context, date time.Time) ([]model.FilteredRecord, error) {
	return s.queryFiltered(ctx,
		`SELECT domain, page_title, count_views, company, processing_date, filter_method, filtered_at
		 FROM filtered_pageviews WHERE processing_date = ?`,
		dateKey(date),
	)
}

func (s *SQLiteStore) queryFiltered(ctx context.Context, query string, args ...any) ([]model.FilteredRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filtered")
	}
	defer rows.Close()

	var out []model.FilteredRecord
	for rows.Next() {
		var r model.FilteredRecord
		var company, dateStr string
		if err := rows.Scan(&r.Domain, &r.PageTitle, &r.CountViews, &company, &dateStr, &r.FilterMethod, &r.FilteredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filtered")
		}
		r.Company = model.Company(company)
		if r.ProcessingDate, err = parseDateKey(dateStr); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list filtered iterate")
}

// RefreshSnapshot rebuilds classified_pageviews with the current override
// state applied, building into a side table and swapping by rename so readers
// never see a partial snapshot.
func (s *SQLiteStore) RefreshSnapshot(ctx context.Context, resolve func(title string) model.Resolution) (int, error) {
	filtered, err := s.queryFiltered(ctx,
		`SELECT domain, page_title, count_views, company, processing_date, filter_method, filtered_at
		 FROM filtered_pageviews`,
	)
	if err != nil {
		return 0, err
	}

	snapshot := buildSnapshot(filtered, resolve)

	gen := time.Now().UnixNano()
	side := fmt.Sprintf("classified_pageviews_%d", gen)

	createSQL := fmt.Sprintf(`
CREATE TABLE %s (
	domain          TEXT NOT NULL,
	page_title      TEXT NOT NULL,
	count_views     INTEGER NOT NULL,
	company         TEXT NOT NULL,
	processing_date TEXT NOT NULL,
	filter_method   TEXT NOT NULL,
	is_override     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_classified_date_%d ON %s(processing_date);
CREATE INDEX idx_classified_company_%d ON %s(company);
`, side, gen, side, gen, side)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return 0, eris.Wrap(err, "sqlite: refresh snapshot: create side table")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: refresh snapshot: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (domain, page_title, count_views, company, processing_date, filter_method, is_override)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, side,
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: refresh snapshot: prepare")
	}
	defer stmt.Close()

	for _, sr := range snapshot {
		if _, err := stmt.ExecContext(ctx,
			sr.Domain, sr.PageTitle, sr.CountViews, string(sr.Company),
			dateKey(sr.ProcessingDate), sr.FilterMethod, sr.IsOverride,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: refresh snapshot: insert row")
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS classified_pageviews`); err != nil {
		return 0, eris.Wrap(err, "sqlite: refresh snapshot: drop old")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO classified_pageviews`, side)); err != nil {
		return 0, eris.Wrap(err, "sqlite: refresh snapshot: rename")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: refresh snapshot: commit")
	}
	return len(snapshot), nil
}

func (s *SQLiteStore) CompanyRankings(ctx context.Context, date time.Time) ([]model.CompanyRanking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company, COUNT(*), SUM(count_views)
		 FROM classified_pageviews WHERE processing_date = ?
		 GROUP BY company`,
		dateKey(date),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: company rankings")
	}
	defer rows.Close()

	var aggs []model.CompanyRanking
	for rows.Next() {
		var a model.CompanyRanking
		var company string
		if err := rows.Scan(&company, &a.PageCount, &a.TotalViews); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ranking")
		}
		a.Company = model.Company(company)
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: company rankings iterate")
	}
	return rankCompanies(aggs), nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, report = ?, finished_at = ? WHERE id = ?`,
		string(status), string(reportJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var status string
	var reportJSON sql.NullString
	var finishedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, report, started_at, finished_at FROM pipeline_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &status, &reportJSON, &r.StartedAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	r.Status = model.RunStatus(status)
	if reportJSON.Valid {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) AddExcludedBatch(ctx context.Context, b *model.ExcludedBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	recordsJSON, err := json.Marshal(b.Records)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal excluded records")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO excluded_batches (id, run_id, records, reason, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.RunID, string(recordsJSON), b.Reason, b.RetryCount, b.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert excluded batch")
}

func (s *SQLiteStore) ListExcludedBatches(ctx context.Context) ([]model.ExcludedBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, records, reason, retry_count, created_at
		 FROM excluded_batches ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list excluded batches")
	}
	defer rows.Close()

	var out []model.ExcludedBatch
	for rows.Next() {
		var b model.ExcludedBatch
		var recordsJSON string
		if err := rows.Scan(&b.ID, &b.RunID, &recordsJSON, &b.Reason, &b.RetryCount, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan excluded batch")
		}
		if err := json.Unmarshal([]byte(recordsJSON), &b.Records); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal excluded records")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list excluded batches iterate")
}

func (s *SQLiteStore) UpdateExcludedBatchRetry(ctx context.Context, id string, retryCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE excluded_batches SET retry_count = ? WHERE id = ?`,
		retryCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update excluded batch %s", id)
	}
	return checkRowsAffected(res, "excluded batch", id)
}

func (s *SQLiteStore) DeleteExcludedBatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM excluded_batches WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete excluded batch %s", id)
	}
	return checkRowsAffected(res, "excluded batch", id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
