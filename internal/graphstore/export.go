// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/tmfk-stix/internal/stix"
)

// ExportEntry is one object in an export, with the mitigations linked to it
// when it is a technique.
type ExportEntry struct {
	QueryResult `yaml:",inline"`
	MitigatedBy []string `json:"mitigated_by,omitempty" yaml:"mitigated_by,omitempty"`
}

const exportLimit = 100000

// ExportYAML writes the index to <dir>/export.yaml. It supports the same
// filters as Retrieve.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, "export.yaml"), data, 0o644)
}

// ExportJSON writes the index to <dir>/export.json. It supports the same
// filters as Retrieve.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, "export.json"), data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	results, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{QueryResult: r}
		if r.Type != stix.TypeTechnique || r.ExternalID == "" {
			continue
		}
		mitigations, err := s.Mitigations(ctx, r.ExternalID, r.Domain)
		if err != nil {
			return nil, err
		}
		for _, m := range mitigations {
			if m.Bundle == r.Bundle {
				entries[i].MitigatedBy = append(entries[i].MitigatedBy, m.ExternalID)
			}
		}
	}
	return entries, nil
}
