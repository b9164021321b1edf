// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// QueryOptions holds parameters for library queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string over indexed terms.
	Query string

	// Priority filters by curation priority (high, medium, low).
	Priority string

	// JobStatus filters by the record's job status.
	JobStatus string

	// PostID filters by source post.
	PostID string

	// Focus keeps records whose suggested focus includes this label.
	Focus string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Priority == "" && q.JobStatus == "" && q.PostID == "" && q.Focus == ""
}

// QueryResult is one ready record in the curation queue.
type QueryResult struct {
	PostID                    string   `json:"post_id" yaml:"post_id"`
	PostURL                   string   `json:"post_url,omitempty" yaml:"post_url,omitempty"`
	AuthorHandle              string   `json:"author_handle,omitempty" yaml:"author_handle,omitempty"`
	Priority                  string   `json:"priority" yaml:"priority"`
	JobStatus                 string   `json:"job_status" yaml:"job_status"`
	RunID                     string   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	SchemaContractVersion     string   `json:"schema_contract_version" yaml:"schema_contract_version"`
	EvidenceResolutionRate    float64  `json:"evidence_resolution_rate" yaml:"evidence_resolution_rate"`
	ProvenanceUtilizationRate float64  `json:"provenance_utilization_rate" yaml:"provenance_utilization_rate"`
	SuggestedFocus            []string `json:"suggested_focus" yaml:"suggested_focus"`
	Notes                     []string `json:"notes" yaml:"notes"`
	Terms                     []string `json:"terms" yaml:"terms"`

	key string
}

// RejectEntry is one stored reject record.
type RejectEntry struct {
	PostID     string         `json:"post_id" yaml:"post_id"`
	PostURL    string         `json:"post_url,omitempty" yaml:"post_url,omitempty"`
	RunID      string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	RejectedAt string         `json:"rejected_at" yaml:"rejected_at"`
	JobStatus  string         `json:"job_status" yaml:"job_status"`
	ErrorCount int            `json:"error_count" yaml:"error_count"`
	Reasons    []RejectReason `json:"reasons" yaml:"reasons"`
}

// RejectReason mirrors a reject reason with YAML tags for export.
type RejectReason struct {
	Code     string `json:"code" yaml:"code"`
	Severity string `json:"severity" yaml:"severity"`
	Category string `json:"category" yaml:"category"`
	Message  string `json:"message" yaml:"message"`
}

const recordColumns = `r.record_key, r.post_id, r.post_url, r.author_handle, r.priority, r.job_status,
	r.run_id, r.schema_contract_version, r.evidence_resolution_rate,
	r.provenance_utilization_rate, r.suggested_focus, r.notes`

// priorityOrder sorts high before medium before low.
const priorityOrder = `CASE r.priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`

// Retrieve queries ready records with optional full-text search over
// their terms and structured filters. Full-text results are ranked by the
// best matching term; structured-only results are sorted by priority,
// then post id.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)
	if useFTS {
		qb.WriteString(`SELECT ` + recordColumns + `
			FROM terms_fts
			JOIN terms t ON t.rowid = terms_fts.rowid
			JOIN records r ON r.record_key = t.record_key
			WHERE terms_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(`SELECT ` + recordColumns + ` FROM records r WHERE 1=1`)
	}

	if opts.Priority != "" {
		qb.WriteString(` AND r.priority = ?`)
		args = append(args, opts.Priority)
	}
	if opts.JobStatus != "" {
		qb.WriteString(` AND r.job_status = ?`)
		args = append(args, opts.JobStatus)
	}
	if opts.PostID != "" {
		qb.WriteString(` AND r.post_id = ?`)
		args = append(args, opts.PostID)
	}
	if opts.Focus != "" {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(r.suggested_focus) WHERE value = ?)`)
		args = append(args, opts.Focus)
	}

	// Several terms of one record can match, so full-text rows are
	// deduplicated below and the limit applied there.
	if useFTS {
		qb.WriteString(` ORDER BY terms_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY ` + priorityOrder + `, r.post_id LIMIT ?`)
		args = append(args, maxResults)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying library")
	}
	defer rows.Close()

	var results []QueryResult
	seen := make(map[string]bool)
	for rows.Next() && len(results) < maxResults {
		qr, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if seen[qr.key] {
			continue
		}
		seen[qr.key] = true
		results = append(results, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	rows.Close()

	for i := range results {
		terms, err := s.terms(ctx, results[i].key)
		if err != nil {
			return nil, err
		}
		results[i].Terms = terms
	}
	return results, nil
}

func scanRecord(rows *sql.Rows) (QueryResult, error) {
	var (
		qr                     QueryResult
		postURL, author, runID sql.NullString
		jobStatus, version     sql.NullString
		evidence, provenance   sql.NullFloat64
		focusJSON, notesJSON   sql.NullString
	)
	if err := rows.Scan(
		&qr.key, &qr.PostID, &postURL, &author, &qr.Priority, &jobStatus,
		&runID, &version, &evidence, &provenance, &focusJSON, &notesJSON,
	); err != nil {
		return QueryResult{}, errors.Wrap(err, "scanning row")
	}
	qr.PostURL = postURL.String
	qr.AuthorHandle = author.String
	qr.JobStatus = jobStatus.String
	qr.RunID = runID.String
	qr.SchemaContractVersion = version.String
	qr.EvidenceResolutionRate = evidence.Float64
	qr.ProvenanceUtilizationRate = provenance.Float64
	if focusJSON.Valid {
		json.Unmarshal([]byte(focusJSON.String), &qr.SuggestedFocus)
	}
	if notesJSON.Valid {
		json.Unmarshal([]byte(notesJSON.String), &qr.Notes)
	}
	return qr, nil
}

func (s *Store) terms(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term FROM terms WHERE record_key = ? AND kind = ? ORDER BY rowid`, key, KindTerm)
	if err != nil {
		return nil, errors.Wrap(err, "querying terms")
	}
	defer rows.Close()
	terms := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "scanning term")
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// Rejects lists stored reject records, optionally for one post, most
// recently rejected first.
func (s *Store) Rejects(ctx context.Context, postID string, maxResults int) ([]RejectEntry, error) {
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	query := `SELECT post_id, post_url, run_id, rejected_at, job_status, error_count, reasons FROM rejects`
	var args []any
	if postID != "" {
		query += ` WHERE post_id = ?`
		args = append(args, postID)
	}
	query += ` ORDER BY rejected_at DESC, post_id LIMIT ?`
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying rejects")
	}
	defer rows.Close()

	var out []RejectEntry
	for rows.Next() {
		var (
			e                        RejectEntry
			postURL, runID, rejected sql.NullString
			jobStatus, reasonsJSON   sql.NullString
			errorCount               sql.NullInt64
		)
		if err := rows.Scan(&e.PostID, &postURL, &runID, &rejected, &jobStatus, &errorCount, &reasonsJSON); err != nil {
			return nil, errors.Wrap(err, "scanning reject")
		}
		e.PostURL = postURL.String
		e.RunID = runID.String
		e.RejectedAt = rejected.String
		e.JobStatus = jobStatus.String
		e.ErrorCount = int(errorCount.Int64)
		if reasonsJSON.Valid {
			json.Unmarshal([]byte(reasonsJSON.String), &e.Reasons)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
