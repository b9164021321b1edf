// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library keeps the curation library: a SQLite database fed by
// the ready and reject export streams, with a full-text index over the
// terms each ready record carries.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kawidev/knowledge-gate/internal/storage"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

const (
	dbFile            = "library.db"
	defaultMaxResults = 20
	unknownPostID     = "unknown"
)

// Term kinds stored in the terms table.
const (
	KindTerm       = "term"
	KindDefinition = "definition"
)

// Store manages the library database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// NewStore opens or creates dir/library.db and its schema.
func NewStore(cfg types.LibraryConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("library directory is not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating library directory")
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	s := &Store{db: db, dir: cfg.Dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the library directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_key TEXT NOT NULL UNIQUE,
			post_id TEXT NOT NULL,
			post_url TEXT,
			author_handle TEXT,
			priority TEXT NOT NULL,
			job_status TEXT,
			run_id TEXT,
			schema_contract_version TEXT,
			ingested_at TEXT,
			evidence_resolution_rate REAL,
			provenance_utilization_rate REAL,
			suggested_focus TEXT,
			notes TEXT,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_priority ON records(priority)`,
		`CREATE INDEX IF NOT EXISTS idx_records_post_id ON records(post_id)`,
		`CREATE TABLE IF NOT EXISTS terms (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_key TEXT NOT NULL REFERENCES records(record_key) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			term TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_terms_record_key ON terms(record_key)`,
		`CREATE TABLE IF NOT EXISTS rejects (
			record_key TEXT PRIMARY KEY,
			post_id TEXT NOT NULL,
			post_url TEXT,
			run_id TEXT,
			rejected_at TEXT,
			job_status TEXT,
			error_count INTEGER,
			reasons TEXT,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingest_status (
			stream TEXT PRIMARY KEY,
			path TEXT,
			file_mod_time TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "executing schema statement")
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='terms_fts'`,
	).Scan(&ftsExists); err != nil {
		return errors.Wrap(err, "checking FTS table")
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE terms_fts USING fts5(content, content=terms, content_rowid=rowid)`,
			`CREATE TRIGGER terms_ai AFTER INSERT ON terms BEGIN
				INSERT INTO terms_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER terms_ad AFTER DELETE ON terms BEGIN
				INSERT INTO terms_fts(terms_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER terms_au AFTER UPDATE ON terms BEGIN
				INSERT INTO terms_fts(terms_fts, rowid, content) VALUES('delete', old.rowid, old.content);
				INSERT INTO terms_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return errors.Wrap(err, "creating FTS infrastructure")
			}
		}
	}
	return nil
}

// Streams names the export stream files to ingest.
type Streams struct {
	Ready   string
	Rejects string
}

// IngestSummary holds counts from an ingest run. Indexed, Updated,
// Rejected and Failed count records; Skipped counts unchanged streams.
type IngestSummary struct {
	Indexed  int
	Updated  int
	Rejected int
	Skipped  int
	Failed   int
}

// Total returns the number of records and skipped streams processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Rejected + s.Skipped + s.Failed
}

// Changed reports whether the ingest modified the library.
func (s IngestSummary) Changed() bool {
	return s.Indexed+s.Updated+s.Rejected > 0
}

// Ingest loads both streams into the library. Ready records are upserted
// by post id, replacing their indexed terms; reject records are stored
// with their reasons. A record lives in one table only: the latest stream
// to mention it wins. Streams unchanged since the last ingest are skipped.
// When anything changed the curation queue YAML is rewritten.
func (s *Store) Ingest(ctx context.Context, streams Streams, w io.Writer) (IngestSummary, error) {
	var summary IngestSummary

	if err := s.ingestStream(ctx, "ready", streams.Ready, w, &summary, s.ingestReadyFile); err != nil {
		return summary, err
	}
	if err := s.ingestStream(ctx, "rejects", streams.Rejects, w, &summary, s.ingestRejectFile); err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, rejected: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Rejected, summary.Skipped, summary.Failed)

	if summary.Changed() {
		if _, err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: curation queue write failed: %v\n", err)
		}
	}
	return summary, nil
}

type ingestFunc func(ctx context.Context, path string, w io.Writer, summary *IngestSummary) bool

func (s *Store) ingestStream(ctx context.Context, stream, path string, w io.Writer, summary *IngestSummary, ingest ingestFunc) error {
	if path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "missing %s stream %s\n", stream, path)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

	var storedPath, storedMod string
	err = s.db.QueryRowContext(ctx,
		`SELECT path, file_mod_time FROM ingest_status WHERE stream = ?`, stream,
	).Scan(&storedPath, &storedMod)
	if err == nil && storedPath == path && storedMod == modTime {
		fmt.Fprintf(w, "skipped %s (unchanged)\n", stream)
		summary.Skipped++
		return nil
	}

	if !ingest(ctx, path, w, summary) {
		return ctx.Err()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_status (stream, path, file_mod_time) VALUES (?, ?, ?)
		 ON CONFLICT(stream) DO UPDATE SET path=excluded.path, file_mod_time=excluded.file_mod_time`,
		stream, path, modTime,
	)
	if err != nil {
		return errors.Wrap(err, "updating ingest status")
	}
	return nil
}

// ingestReadyFile reports false when the stream could not be fully
// ingested, so its status is not recorded.
func (s *Store) ingestReadyFile(ctx context.Context, path string, w io.Writer, summary *IngestSummary) bool {
	records, err := storage.ReadJSONL[types.ReadyRecord](path)
	if err != nil {
		fmt.Fprintf(w, "failed  ready stream: %v\n", err)
		summary.Failed++
		return false
	}
	ok := true
	for _, rec := range records {
		if ctx.Err() != nil {
			return false
		}
		updated, key, err := s.upsertReady(ctx, rec)
		switch {
		case err != nil:
			fmt.Fprintf(w, "failed  %s: %v\n", rec.SourceRef.PostID, err)
			summary.Failed++
			ok = false
		case updated:
			fmt.Fprintf(w, "updated %s (%s)\n", key, rec.CurationHints.Priority)
			summary.Updated++
		default:
			fmt.Fprintf(w, "indexing %s (%s)\n", key, rec.CurationHints.Priority)
			summary.Indexed++
		}
	}
	return ok
}

func (s *Store) ingestRejectFile(ctx context.Context, path string, w io.Writer, summary *IngestSummary) bool {
	records, err := storage.ReadJSONL[types.RejectRecord](path)
	if err != nil {
		fmt.Fprintf(w, "failed  rejects stream: %v\n", err)
		summary.Failed++
		return false
	}
	ok := true
	for _, rec := range records {
		if ctx.Err() != nil {
			return false
		}
		key, err := s.upsertReject(ctx, rec)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rec.SourceRef.PostID, err)
			summary.Failed++
			ok = false
			continue
		}
		fmt.Fprintf(w, "rejected %s (%d reasons)\n", key, len(rec.GateResult.RejectReasons))
		summary.Rejected++
	}
	return ok
}

func (s *Store) upsertReady(ctx context.Context, rec types.ReadyRecord) (updated bool, key string, err error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, "", errors.Wrap(err, "encoding record")
	}
	key = recordKey(rec.SourceRef.PostID, payload)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, key, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM records WHERE record_key = ?`, key).Scan(&existing); err != nil {
		return false, key, errors.Wrap(err, "checking record")
	}
	updated = existing > 0
	if updated {
		if _, err := tx.ExecContext(ctx, `DELETE FROM terms WHERE record_key = ?`, key); err != nil {
			return false, key, errors.Wrap(err, "deleting old terms")
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rejects WHERE record_key = ?`, key); err != nil {
		return false, key, errors.Wrap(err, "clearing reject")
	}

	focus, _ := json.Marshal(rec.CurationHints.SuggestedFocus)
	notes, _ := json.Marshal(rec.CurationHints.Notes)
	meta := rec.LibraryIngestMeta
	q := rec.QualitySnapshot
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (record_key, post_id, post_url, author_handle, priority, job_status,
			run_id, schema_contract_version, ingested_at, evidence_resolution_rate,
			provenance_utilization_rate, suggested_focus, notes, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_key) DO UPDATE SET
			post_id=excluded.post_id, post_url=excluded.post_url, author_handle=excluded.author_handle,
			priority=excluded.priority, job_status=excluded.job_status, run_id=excluded.run_id,
			schema_contract_version=excluded.schema_contract_version, ingested_at=excluded.ingested_at,
			evidence_resolution_rate=excluded.evidence_resolution_rate,
			provenance_utilization_rate=excluded.provenance_utilization_rate,
			suggested_focus=excluded.suggested_focus, notes=excluded.notes, payload=excluded.payload`,
		key, rec.SourceRef.PostID, rec.SourceRef.PostURL, rec.SourceRef.AuthorHandle,
		rec.CurationHints.Priority, q.JobStatus, meta.RunID, meta.SchemaContractVersion,
		meta.IngestedAtUTC, q.EvidenceResolutionRate, q.ProvenanceUtilizationRate,
		string(focus), string(notes), string(payload),
	)
	if err != nil {
		return false, key, errors.Wrap(err, "upserting record")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO terms (record_key, kind, term, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return false, key, errors.Wrap(err, "preparing term insert")
	}
	defer stmt.Close()
	for _, t := range extractTerms(rec.CanonicalRecord) {
		if _, err := stmt.ExecContext(ctx, key, t.kind, t.term, t.content); err != nil {
			return false, key, errors.Wrapf(err, "inserting term %q", t.term)
		}
	}

	return updated, key, tx.Commit()
}

func (s *Store) upsertReject(ctx context.Context, rec types.RejectRecord) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", errors.Wrap(err, "encoding reject")
	}
	key := recordKey(rec.SourceRef.PostID, payload)
	reasons, _ := json.Marshal(rec.GateResult.RejectReasons)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return key, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	// Terms follow through the cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE record_key = ?`, key); err != nil {
		return key, errors.Wrap(err, "clearing ready record")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rejects (record_key, post_id, post_url, run_id, rejected_at, job_status, error_count, reasons, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_key) DO UPDATE SET
			post_id=excluded.post_id, post_url=excluded.post_url, run_id=excluded.run_id,
			rejected_at=excluded.rejected_at, job_status=excluded.job_status,
			error_count=excluded.error_count, reasons=excluded.reasons, payload=excluded.payload`,
		key, rec.SourceRef.PostID, rec.SourceRef.PostURL, rec.RejectMeta.RunID,
		rec.RejectMeta.RejectedAtUTC, rec.QualitySnapshot.JobStatus, rec.QualitySnapshot.ErrorCount,
		string(reasons), string(payload),
	)
	if err != nil {
		return key, errors.Wrap(err, "upserting reject")
	}
	return key, tx.Commit()
}

// recordKey is the post id, or a name-based UUID of the payload when the
// post is unknown so that distinct unknown posts do not collide.
func recordKey(postID string, payload []byte) string {
	if postID != "" && postID != unknownPostID {
		return postID
	}
	return unknownPostID + "-" + uuid.NewSHA1(uuid.NameSpaceOID, payload).String()
}

type termRow struct {
	kind, term, content string
}

// extractTerms collects the indexed text of a canonical record: detected
// terms with their normalized form and category, and candidate
// definitions.
func extractTerms(rec types.Record) []termRow {
	var out []termRow
	for _, item := range rec.List("knowledge_extract", "terms_detected") {
		m, ok := item.AsMap()
		if !ok {
			continue
		}
		term := m.Lookup("term").Text()
		if strings.TrimSpace(term) == "" {
			continue
		}
		out = append(out, termRow{
			kind:    KindTerm,
			term:    term,
			content: joinNonEmpty(term, m.Lookup("normalized_term").Text(), m.Lookup("category").Text()),
		})
	}
	for _, item := range rec.List("knowledge_extract", "definitions_candidate") {
		m, ok := item.AsMap()
		if !ok {
			continue
		}
		term := m.Lookup("term").Text()
		def := m.Lookup("definition_text").Text()
		if strings.TrimSpace(def) == "" {
			def = m.Lookup("definition").Text()
		}
		if strings.TrimSpace(term+def) == "" {
			continue
		}
		out = append(out, termRow{kind: KindDefinition, term: term, content: joinNonEmpty(term, def)})
	}
	return out
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
