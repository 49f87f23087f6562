// Package ingest loads raw pageview CSVs into the warehouse in chunks.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/core-sentiment/pageview-cli/internal/config"
	"github.com/core-sentiment/pageview-cli/internal/model"
)

// RawInserter is the slice of the store the ingester needs.
type RawInserter interface {
	InsertRaw(ctx context.Context, records []model.RawRecord) (int64, error)
}

// Stats summarizes one ingestion.
type Stats struct {
	Loaded    int64
	Malformed int
}

// Ingester bulk-loads raw pageview rows chunk by chunk, so arbitrarily large
// files never sit fully in memory.
type Ingester struct {
	store     RawInserter
	chunkSize int
}

// New builds an Ingester from configuration.
func New(st RawInserter, cfg config.IngestConfig) *Ingester {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 100000
	}
	return &Ingester{store: st, chunkSize: chunkSize}
}

// IngestFile streams a CSV into the raw warehouse. Malformed rows are
// counted and skipped, never fatal.
func (i *Ingester) IngestFile(ctx context.Context, path string, date time.Time) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	stats := &Stats{}
	source := filepath.Base(path)

	chunk := make([]model.RawRecord, 0, i.chunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := i.store.InsertRaw(ctx, chunk)
		if err != nil {
			return err
		}
		stats.Loaded += n
		chunk = chunk[:0]
		return nil
	}

	err = readRows(f, source, date, func(r model.RawRecord, ok bool) error {
		if !ok {
			stats.Malformed++
			return nil
		}
		chunk = append(chunk, r)
		if len(chunk) >= i.chunkSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	zap.L().Info("ingest complete",
		zap.String("file", source),
		zap.Int64("loaded", stats.Loaded),
		zap.Int("malformed", stats.Malformed),
	)
	return stats, nil
}

// ReadAll parses a CSV fully into memory, for direct pipeline runs over a
// file instead of the warehouse.
func ReadAll(path string, date time.Time) ([]model.RawRecord, *Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	stats := &Stats{}
	var records []model.RawRecord
	err = readRows(f, filepath.Base(path), date, func(r model.RawRecord, ok bool) error {
		if !ok {
			stats.Malformed++
			return nil
		}
		records = append(records, r)
		stats.Loaded++
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return records, stats, nil
}

// readRows parses CSV rows with columns domain, page_title, count_views and
// an optional source_file. A header row is required.
func readRows(r io.Reader, defaultSource string, date time.Time, emit func(model.RawRecord, bool) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return eris.Wrap(err, "ingest: read header")
	}
	cols := map[string]int{}
	for idx, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	for _, required := range []string{"domain", "page_title", "count_views"} {
		if _, ok := cols[required]; !ok {
			return eris.Errorf("ingest: missing column %q", required)
		}
	}

	get := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A structurally broken line is a malformed row, not a fatal
			// parse failure.
			if emitErr := emit(model.RawRecord{}, false); emitErr != nil {
				return emitErr
			}
			continue
		}

		views, convErr := strconv.ParseInt(get(row, "count_views"), 10, 64)
		rec := model.RawRecord{
			Domain:         get(row, "domain"),
			PageTitle:      get(row, "page_title"),
			CountViews:     views,
			SourceFile:     get(row, "source_file"),
			ProcessingDate: date,
		}
		if rec.SourceFile == "" {
			rec.SourceFile = defaultSource
		}
		if convErr != nil || !rec.Valid() {
			if err := emit(model.RawRecord{}, false); err != nil {
				return err
			}
			continue
		}
		if err := emit(rec, true); err != nil {
			return err
		}
	}
}
