package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "raw_pageviews", []string{"domain"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Rows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"raw_pageviews"}, []string{"domain", "page_title"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "raw_pageviews", []string{"domain", "page_title"}, [][]any{
		{"en.wikipedia.org", "iPhone"},
		{"en.wikipedia.org", "Android"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"raw_pageviews"}, []string{"domain"}).
		WillReturnError(errors.New("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "raw_pageviews", []string{"domain"}, [][]any{{"x"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO raw_pageviews")
}
