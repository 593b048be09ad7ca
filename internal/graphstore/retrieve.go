// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/tmfk-stix/internal/stix"
)

// QueryOptions holds parameters for index queries.
type QueryOptions struct {
	// Query is the FTS4 full-text search string over name and description.
	Query string

	// Type filters by STIX object type (e.g. "attack-pattern").
	Type string

	// ExternalID filters by external identifier (e.g. "MS-TA9001").
	ExternalID string

	// Domain filters by x_mitre_domains entry (e.g. "tmfk").
	Domain string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Type == "" && q.ExternalID == "" && q.Domain == ""
}

// QueryResult is one indexed object.
type QueryResult struct {
	ID          string `json:"id" yaml:"id"`
	Type        string `json:"type" yaml:"type"`
	ExternalID  string `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Domain      string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Modified    string `json:"modified,omitempty" yaml:"modified,omitempty"`
	Bundle      string `json:"bundle" yaml:"bundle"`
}

const resultColumns = `o.id, o.type, o.external_id, o.name, o.description, o.domain, o.modified, o.bundle`

// Retrieve queries the index with optional full-text search and
// structured filters. Results are sorted by type, then external id.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)

	if opts.Query != "" {
		qb.WriteString(`SELECT ` + resultColumns + `
			FROM objects_fts
			JOIN objects o ON o.rowid = objects_fts.docid
			WHERE objects_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(`SELECT ` + resultColumns + ` FROM objects o WHERE 1=1`)
	}

	if opts.Type != "" {
		qb.WriteString(` AND o.type = ?`)
		args = append(args, opts.Type)
	}
	if opts.ExternalID != "" {
		qb.WriteString(` AND o.external_id = ?`)
		args = append(args, opts.ExternalID)
	}
	if opts.Domain != "" {
		qb.WriteString(` AND o.domain = ?`)
		args = append(args, opts.Domain)
	}

	qb.WriteString(` ORDER BY o.type, o.external_id, o.bundle LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	return scanResults(rows)
}

// Mitigations returns the mitigations linked by "mitigates" relationships
// to the technique with techniqueID. A non-empty domain restricts the
// search to bundles of that domain.
func (s *Store) Mitigations(ctx context.Context, techniqueID, domain string) ([]QueryResult, error) {
	q := `SELECT ` + resultColumns + `
		FROM objects t
		JOIN relationships r ON r.bundle = t.bundle AND r.target_ref = t.id AND r.relationship_type = ?
		JOIN objects o ON o.bundle = r.bundle AND o.id = r.source_ref
		WHERE t.type = ? AND t.external_id = ?`
	args := []any{stix.RelationshipMitigates, stix.TypeTechnique, techniqueID}
	if domain != "" {
		q += ` AND t.domain = ?`
		args = append(args, domain)
	}
	q += ` ORDER BY o.external_id, o.bundle`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mitigations of %s: %w", techniqueID, err)
	}
	return scanResults(rows)
}

// Object returns the stored JSON of the object with id. When the id is
// indexed from several bundles the most recently indexed copy is returned.
func (s *Store) Object(ctx context.Context, id string) (json.RawMessage, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT raw FROM objects WHERE id = ? ORDER BY rowid DESC LIMIT 1`, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("looking up object: %w", err)
	}
	return json.RawMessage(raw), nil
}

// TypeCount is the number of indexed objects of one type.
type TypeCount struct {
	Type  string `json:"type" yaml:"type"`
	Count int    `json:"count" yaml:"count"`
}

// Counts returns the number of indexed objects per type, plus relationships.
func (s *Store) Counts(ctx context.Context) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, count(*) FROM objects GROUP BY type
		 UNION ALL
		 SELECT 'relationship', count(*) FROM relationships
		 ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("counting objects: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var c TypeCount
		if err := rows.Scan(&c.Type, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanResults(rows *sql.Rows) ([]QueryResult, error) {
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr                                             QueryResult
			externalID, name, description, domain, modTime sql.NullString
		)
		if err := rows.Scan(
			&qr.ID, &qr.Type, &externalID, &name, &description, &domain, &modTime, &qr.Bundle,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		qr.ExternalID = externalID.String
		qr.Name = name.String
		qr.Description = description.String
		qr.Domain = domain.String
		qr.Modified = modTime.String
		results = append(results, qr)
	}
	return results, rows.Err()
}
