// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graphstore indexes produced bundles in SQLite so objects can be
// searched by text and mitigations looked up by technique id.
package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/tmfk-stix/internal/schema"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

const dbFile = "graph.db"

// ErrNotFound is returned when a looked-up object is not indexed.
var ErrNotFound = errors.New("object not found")

// Store manages the bundle index database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// NewStore opens or creates the index database at cfg.Dir/graph.db and
// creates the schema if it does not exist.
func NewStore(cfg types.IndexConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, dir: cfg.Dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS indexing_status (
			bundle TEXT PRIMARY KEY,
			bundle_id TEXT NOT NULL,
			file_mod_time TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS objects (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			bundle TEXT NOT NULL REFERENCES indexing_status(bundle) ON DELETE CASCADE,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			external_id TEXT,
			name TEXT,
			description TEXT,
			domain TEXT,
			modified TEXT,
			raw TEXT NOT NULL,
			UNIQUE (bundle, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(type)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_external_id ON objects(external_id)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			bundle TEXT NOT NULL REFERENCES indexing_status(bundle) ON DELETE CASCADE,
			id TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			source_ref TEXT NOT NULL,
			target_ref TEXT NOT NULL,
			description TEXT,
			PRIMARY KEY (bundle, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(bundle, target_ref)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS4 external-content table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='objects_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE objects_fts USING fts4(content="objects", name, description)`,
			`CREATE TRIGGER objects_bd BEFORE DELETE ON objects BEGIN
				DELETE FROM objects_fts WHERE docid = old.rowid;
			END`,
			`CREATE TRIGGER objects_bu BEFORE UPDATE ON objects BEGIN
				DELETE FROM objects_fts WHERE docid = old.rowid;
			END`,
			`CREATE TRIGGER objects_ai AFTER INSERT ON objects BEGIN
				INSERT INTO objects_fts(docid, name, description) VALUES (new.rowid, new.name, new.description);
			END`,
			`CREATE TRIGGER objects_au AFTER UPDATE ON objects BEGIN
				INSERT INTO objects_fts(docid, name, description) VALUES (new.rowid, new.name, new.description);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from an indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of bundles processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest indexes each bundle file. Unchanged files (same modification time
// as when last indexed) are skipped; changed ones replace their previous
// rows. A bundle that fails to load is reported on w and counted, and the
// rest are still processed. On any change export.yaml is rewritten.
func (s *Store) Ingest(ctx context.Context, paths []string, w io.Writer) (IngestSummary, error) {
	var summary IngestSummary

	for _, p := range paths {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		key, err := filepath.Abs(p)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", p, err)
			summary.Failed++
			continue
		}

		info, err := os.Stat(key)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", p, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE bundle = ?`, key,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", p)
			summary.Skipped++
			continue
		}

		isUpdate := err == nil

		b, err := loadBundle(key)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", p, err)
			summary.Failed++
			continue
		}

		if err := s.ingestBundle(ctx, key, b, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", p, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d objects, %d relationships)\n", p, len(b.objects), len(b.relationships))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d objects, %d relationships)\n", p, len(b.objects), len(b.relationships))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

// objectRow is the indexed projection of one bundle object.
type objectRow struct {
	id          string
	objectType  string
	externalID  string
	name        string
	description string
	domain      string
	modified    string
	raw         string
}

type relationshipRow struct {
	id               string
	relationshipType string
	sourceRef        string
	targetRef        string
	description      string
}

type loadedBundle struct {
	id            string
	objects       []objectRow
	relationships []relationshipRow
}

// header holds the fields of a bundle object the index reads.
type header struct {
	Type               string                   `json:"type"`
	ID                 string                   `json:"id"`
	Name               string                   `json:"name"`
	Description        string                   `json:"description"`
	Modified           string                   `json:"modified"`
	Domains            []string                 `json:"x_mitre_domains"`
	ExternalReferences []stix.ExternalReference `json:"external_references"`
	RelationshipType   string                   `json:"relationship_type"`
	SourceRef          string                   `json:"source_ref"`
	TargetRef          string                   `json:"target_ref"`
}

// loadBundle reads and schema-checks a bundle file and splits it into
// object and relationship rows. The collection manifest is not indexed.
func loadBundle(path string) (*loadedBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	if err := schema.ValidateBundle(data); err != nil {
		return nil, err
	}

	var raw struct {
		ID      string            `json:"id"`
		Objects []json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}

	b := &loadedBundle{id: raw.ID}
	for _, msg := range raw.Objects {
		var h header
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("decoding object: %w", err)
		}
		switch h.Type {
		case stix.TypeCollection:
			continue
		case stix.TypeRelationship:
			b.relationships = append(b.relationships, relationshipRow{
				id:               h.ID,
				relationshipType: h.RelationshipType,
				sourceRef:        h.SourceRef,
				targetRef:        h.TargetRef,
				description:      h.Description,
			})
			continue
		}
		row := objectRow{
			id:          h.ID,
			objectType:  h.Type,
			name:        h.Name,
			description: h.Description,
			modified:    h.Modified,
			raw:         string(msg),
		}
		for _, ref := range h.ExternalReferences {
			if ref.ExternalID != "" {
				row.externalID = ref.ExternalID
				break
			}
		}
		if len(h.Domains) > 0 {
			row.domain = h.Domains[0]
		}
		b.objects = append(b.objects, row)
	}
	return b, nil
}

func (s *Store) ingestBundle(ctx context.Context, key string, b *loadedBundle, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Remove rows of a previous version of this file.
	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE bundle = ?`, key); err != nil {
		return fmt.Errorf("deleting old relationships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE bundle = ?`, key); err != nil {
		return fmt.Errorf("deleting old objects: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (bundle, bundle_id, file_mod_time) VALUES (?, ?, ?)
		 ON CONFLICT(bundle) DO UPDATE SET bundle_id=excluded.bundle_id, file_mod_time=excluded.file_mod_time`,
		key, b.id, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}

	objStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO objects (bundle, id, type, external_id, name, description, domain, modified, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing object insert: %w", err)
	}
	defer objStmt.Close()

	for _, o := range b.objects {
		_, err := objStmt.ExecContext(ctx,
			key, o.id, o.objectType, o.externalID, o.name, o.description, o.domain, o.modified, o.raw,
		)
		if err != nil {
			return fmt.Errorf("inserting object %s: %w", o.id, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO relationships (bundle, id, relationship_type, source_ref, target_ref, description)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing relationship insert: %w", err)
	}
	defer relStmt.Close()

	for _, r := range b.relationships {
		_, err := relStmt.ExecContext(ctx,
			key, r.id, r.relationshipType, r.sourceRef, r.targetRef, r.description,
		)
		if err != nil {
			return fmt.Errorf("inserting relationship %s: %w", r.id, err)
		}
	}

	return tx.Commit()
}
