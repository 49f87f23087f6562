package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-sentiment/pageview-cli/internal/config"
	"github.com/core-sentiment/pageview-cli/internal/model"
)

type captureInserter struct {
	chunks [][]model.RawRecord
}

func (c *captureInserter) InsertRaw(_ context.Context, records []model.RawRecord) (int64, error) {
	chunk := make([]model.RawRecord, len(records))
	copy(chunk, records)
	c.chunks = append(c.chunks, chunk)
	return int64(len(records)), nil
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pageviews.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func ingestDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse(model.DateFormat, "2025-01-15")
	require.NoError(t, err)
	return d
}

func TestIngestFile_ChunksAndCounts(t *testing.T) {
	csv := "domain,page_title,count_views\n" +
		"en.wikipedia.org,IPhone_15,500\n" +
		"en.wikipedia.org,Android_15,300\n" +
		"en.wikipedia.org,Windows_11,200\n"
	path := writeCSV(t, csv)

	sink := &captureInserter{}
	ing := New(sink, config.IngestConfig{ChunkSize: 2})

	stats, err := ing.IngestFile(context.Background(), path, ingestDate(t))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Loaded)
	assert.Zero(t, stats.Malformed)

	require.Len(t, sink.chunks, 2)
	assert.Len(t, sink.chunks[0], 2)
	assert.Len(t, sink.chunks[1], 1)
	assert.Equal(t, "pageviews.csv", sink.chunks[0][0].SourceFile)
	assert.Equal(t, ingestDate(t), sink.chunks[0][0].ProcessingDate)
}

func TestIngestFile_MalformedRowsSkipped(t *testing.T) {
	csv := "domain,page_title,count_views\n" +
		"en.wikipedia.org,IPhone_15,500\n" +
		"en.wikipedia.org,Bad_views,not-a-number\n" +
		"en.wikipedia.org,,300\n" +
		"en.wikipedia.org,Negative,-5\n"
	path := writeCSV(t, csv)

	sink := &captureInserter{}
	ing := New(sink, config.IngestConfig{ChunkSize: 10})

	stats, err := ing.IngestFile(context.Background(), path, ingestDate(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Loaded)
	assert.Equal(t, 3, stats.Malformed)
}

func TestIngestFile_MissingColumn(t *testing.T) {
	path := writeCSV(t, "domain,title\nen.wikipedia.org,IPhone_15\n")

	ing := New(&captureInserter{}, config.IngestConfig{})
	_, err := ing.IngestFile(context.Background(), path, ingestDate(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestReadAll(t *testing.T) {
	csv := "domain,page_title,count_views,source_file\n" +
		"en.wikipedia.org,IPhone_15,500,dump-20250115\n" +
		"en.wikipedia.org,Android_15,300,\n"
	path := writeCSV(t, csv)

	records, stats, err := ReadAll(path, ingestDate(t))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), stats.Loaded)
	assert.Equal(t, "dump-20250115", records[0].SourceFile)
	assert.Equal(t, "pageviews.csv", records[1].SourceFile)
}

func TestReadAll_FileMissing(t *testing.T) {
	_, _, err := ReadAll(filepath.Join(t.TempDir(), "nope.csv"), ingestDate(t))
	assert.Error(t, err)
}
