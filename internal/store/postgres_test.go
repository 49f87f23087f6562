package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS raw_pageviews`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRaw_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"raw_pageviews"}, rawColumns).WillReturnResult(2)

	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	n, err := s.InsertRaw(context.Background(), []model.RawRecord{
		{Domain: "en.wikipedia.org", PageTitle: "IPhone_15", CountViews: 500, ProcessingDate: date},
		{Domain: "en.wikipedia.org", PageTitle: "Android_15", CountViews: 300, ProcessingDate: date},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFiltered_CountsSkipped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_filtered_pageviews"}, filteredInsert.Columns).
		WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "filtered_pageviews"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	recs := []model.FilteredRecord{
		{Domain: "en.wikipedia.org", PageTitle: "IPhone_15", CountViews: 500, Company: model.CompanyApple, ProcessingDate: date, FilterMethod: "llm_ollama_llama3.2:1b"},
		{Domain: "en.wikipedia.org", PageTitle: "Android_15", CountViews: 300, Company: model.CompanyGoogle, ProcessingDate: date, FilterMethod: "llm_ollama_llama3.2:1b"},
		{Domain: "en.wikipedia.org", PageTitle: "IPhone_15", CountViews: 500, Company: model.CompanyApple, ProcessingDate: date, FilterMethod: "llm_ollama_llama3.2:1b"},
	}

	inserted, skipped, err := s.InsertFiltered(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)
	assert.Equal(t, int64(1), skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, report, started_at, finished_at FROM pipeline_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	report := &model.RunReport{Considered: 10}
	err := s.CompleteRun(context.Background(), "missing", report.Status(), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutOverride_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO company_overrides .+ ON CONFLICT \(page_title\) DO UPDATE`).
		WithArgs("Windows_(band)", "Other", "band, not the OS", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutOverride(context.Background(), model.Override{
		PageTitle:      "Windows_(band)",
		CorrectCompany: model.CompanyOther,
		Reason:         "band, not the OS",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteOverride_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM company_overrides`).
		WithArgs("nope").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteOverride(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompanyRankings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT company, COUNT\(\*\), SUM\(count_views\)`).
		WithArgs(date).
		WillReturnRows(pgxmock.NewRows([]string{"company", "count", "sum"}).
			AddRow("Apple", int64(2), int64(750)).
			AddRow("Google", int64(1), int64(900)).
			AddRow("Microsoft", int64(1), int64(900)))

	rankings, err := s.CompanyRankings(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, rankings, 3)

	assert.Equal(t, model.CompanyGoogle, rankings[0].Company)
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, model.CompanyMicrosoft, rankings[1].Company)
	assert.Equal(t, model.CompanyApple, rankings[2].Company)
	assert.InDelta(t, 100*750.0/2550.0, rankings[2].MarketShare, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RefreshSnapshot_SwapSequence(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	prev := snapshotGen
	snapshotGen = func() int64 { return 42 }
	t.Cleanup(func() { snapshotGen = prev })

	now := time.Now().UTC()
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT domain, page_title, count_views, company, processing_date, filter_method, filtered_at`).
		WillReturnRows(pgxmock.NewRows([]string{"domain", "page_title", "count_views", "company", "processing_date", "filter_method", "filtered_at"}).
			AddRow("en.wikipedia.org", "IPhone_15", int64(500), "Apple", date, "llm_ollama_llama3.2:1b", now))

	mock.ExpectExec(`CREATE TABLE classified_pageviews_42`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"classified_pageviews_42"}, snapshotColumns).WillReturnResult(1)
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS classified_pageviews`).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`ALTER TABLE classified_pageviews_42 RENAME TO classified_pageviews`).
		WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))
	mock.ExpectCommit()

	n, err := s.RefreshSnapshot(context.Background(), func(string) model.Resolution {
		return model.Unmatched()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
