// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/tmfk-stix/internal/markdown"
	"github.com/pdiddy/tmfk-stix/internal/stix"
)

// techniqueLayout: title, preamble, metadata line.
var techniqueLayout = markdown.Layout{Title: true, Paragraphs: 2}

// attackTechniquePrefix starts the text of links to ATT&CK techniques.
const attackTechniquePrefix = "T"

// Technique reads one technique page. Metadata links starting with "T" are
// ATT&CK cross references; the rest name the tactics the technique serves.
func (e *Extractor) Technique(ctx context.Context, path string) (*stix.Technique, error) {
	doc, err := e.load(path, techniqueLayout)
	if err != nil {
		return nil, fmt.Errorf("technique: %w", err)
	}
	name, err := doc.Title()
	if err != nil {
		return nil, fmt.Errorf("technique %s: %w", path, err)
	}
	meta, err := doc.Paragraph(1)
	if err != nil {
		return nil, fmt.Errorf("technique %s: %w", path, err)
	}
	id, err := metadataID(meta, path)
	if err != nil {
		return nil, fmt.Errorf("technique: %w", err)
	}

	var attackIDs []string
	var phases []stix.KillChainPhase
	for _, link := range meta.Links() {
		if link.Text == "" {
			continue
		}
		if strings.HasPrefix(link.Text, attackTechniquePrefix) {
			attackIDs = append(attackIDs, link.Text)
			continue
		}
		phases = append(phases, stix.KillChainPhase{
			KillChainName: e.profile.KillChainName,
			PhaseName:     Slug(link.Text),
		})
	}

	url := e.baseURL + "/techniques/" + escapeSpaces(strings.ToLower(name))
	common, err := e.common(ctx, stix.TypeTechnique, id, url, path)
	if err != nil {
		return nil, fmt.Errorf("technique %s: %w", id, err)
	}
	common.Version = techniqueVersion

	platforms := []string{}
	if e.matrix.Platform != "" {
		platforms = append(platforms, e.matrix.Platform)
	}

	return &stix.Technique{
		Common:          common,
		Name:            name,
		Description:     description(doc, nil),
		KillChainPhases: phases,
		IsSubtechnique:  strings.Contains(id, "."),
		Platforms:       platforms,
		MitreIDs:        attackIDs,
	}, nil
}
