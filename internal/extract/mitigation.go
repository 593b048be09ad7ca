// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/tmfk-stix/internal/markdown"
	"github.com/pdiddy/tmfk-stix/internal/stix"
)

// mitigationLayout: title, preamble, metadata line and the technique table.
var mitigationLayout = markdown.Layout{Title: true, Paragraphs: 2, Tables: 1}

const (
	// noMitigationLine marks a mitigation without ATT&CK counterpart.
	noMitigationLine = "MITRE mitigation: -"

	parentPrefix     = "MS"
	attackMitigation = "M"
	admonitionMarker = "!!!"
)

// Mitigation is a parsed mitigation page and the technique ids listed in its
// table, in row order.
type Mitigation struct {
	Object       *stix.CourseOfAction
	TechniqueIDs []string

	// Path is the page the mitigation was read from. Relationship windows
	// are resolved against it.
	Path string
}

// Mitigation reads one mitigation page.
func (e *Extractor) Mitigation(ctx context.Context, path string) (*Mitigation, error) {
	doc, err := e.load(path, mitigationLayout)
	if err != nil {
		return nil, fmt.Errorf("mitigation: %w", err)
	}
	name, err := doc.Title()
	if err != nil {
		return nil, fmt.Errorf("mitigation %s: %w", path, err)
	}
	meta, err := doc.Paragraph(1)
	if err != nil {
		return nil, fmt.Errorf("mitigation %s: %w", path, err)
	}
	id, err := metadataID(meta, path)
	if err != nil {
		return nil, fmt.Errorf("mitigation: %w", err)
	}

	var attackIDs []string
	var parent string
	if !contains(meta.Lines(), noMitigationLine) {
		for _, link := range meta.Links() {
			switch {
			case strings.HasPrefix(link.Text, parentPrefix):
				if parent == "" {
					parent = link.Text
				}
			case strings.HasPrefix(link.Text, attackMitigation):
				attackIDs = append(attackIDs, link.Text)
			}
		}
	}

	techniques, err := tableTechniques(doc, path)
	if err != nil {
		return nil, fmt.Errorf("mitigation %s: %w", id, err)
	}

	common, err := e.common(ctx, stix.TypeCourseOfAction, id, mitigationURL(e.baseURL, id, name, parent), path)
	if err != nil {
		return nil, fmt.Errorf("mitigation %s: %w", id, err)
	}

	return &Mitigation{
		Object: &stix.CourseOfAction{
			Common: common,
			Name:   name,
			Description: description(doc, func(p string) bool {
				return strings.Contains(p, admonitionMarker)
			}),
			MitreIDs:         attackIDs,
			ParentMitigation: parent,
		},
		TechniqueIDs: techniques,
		Path:         path,
	}, nil
}

// Folder reads every page of a nested mitigation directory, in name order.
func (e *Extractor) Folder(ctx context.Context, dir string) ([]*Mitigation, error) {
	files, err := MarkdownFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]*Mitigation, 0, len(files))
	for _, f := range files {
		m, err := e.Mitigation(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// tableTechniques reads the technique id from the first cell link of each
// body row of the first table.
func tableTechniques(doc *markdown.Document, path string) ([]string, error) {
	table, err := doc.Table(0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ids := make([]string, 0, len(table.Rows))
	for i, row := range table.Rows {
		if len(row) == 0 {
			return nil, fmt.Errorf("%s: %w: table row %d is empty", path, markdown.ErrMalformed, i+1)
		}
		links := row[0].Links()
		if len(links) == 0 || links[0].Text == "" {
			return nil, fmt.Errorf("%s: %w: table row %d has no technique link", path, markdown.ErrMalformed, i+1)
		}
		ids = append(ids, links[0].Text)
	}
	return ids, nil
}

func mitigationURL(base, id, name, parent string) string {
	mid := "/"
	if parent != "" {
		mid = "/" + parent + "/"
	}
	return base + "/mitigations" + mid + id + "%20" + escapeSpaces(name) + "/"
}
