package model

import (
	"strings"
	"time"
)

// DateFormat is the canonical layout for processing dates.
const DateFormat = "2006-01-02"

// RawRecord is a single pageview row as delivered by the extraction
// collaborator. Immutable once written to the warehouse; carries no company
// classification.
type RawRecord struct {
	Domain         string    `json:"domain"`
	PageTitle      string    `json:"page_title"`
	CountViews     int64     `json:"count_views"`
	SourceFile     string    `json:"source_file,omitempty"`
	ProcessingDate time.Time `json:"processing_date"`
}

// Valid reports whether the record is well-formed. Malformed records are
// dropped and counted, never fatal.
func (r RawRecord) Valid() bool {
	return strings.TrimSpace(r.PageTitle) != "" && r.CountViews >= 0
}

// CandidateRecord is a raw record plus its provisional classification.
// Transient: exists only during a pipeline run, never persisted directly.
type CandidateRecord struct {
	RawRecord
	Resolution Resolution `json:"resolution"`
}

// FilteredRecord is a confirmed, classified row in the curated store.
// Unique on (domain, page_title, processing_date, filter_method); rows are
// append-on-first-insert and never mutated.
type FilteredRecord struct {
	Domain         string    `json:"domain"`
	PageTitle      string    `json:"page_title"`
	CountViews     int64     `json:"count_views"`
	Company        Company   `json:"company"`
	ProcessingDate time.Time `json:"processing_date"`
	FilterMethod   string    `json:"filter_method"`
	FilteredAt     time.Time `json:"filtered_at"`
}

// SnapshotRow is one row of the derived classified snapshot.
type SnapshotRow struct {
	FilteredRecord
	IsOverride bool `json:"is_override"`
}

// CompanyRanking is the aggregate exposed to the dashboard collaborator.
type CompanyRanking struct {
	Company    Company `json:"company"`
	PageCount  int64   `json:"page_count"`
	TotalViews int64   `json:"total_views"`
	Rank       int     `json:"rank"`
	// MarketShare is the company's percentage of total views for the date,
	// in the range 0 to 100.
	MarketShare float64 `json:"market_share"`
}
