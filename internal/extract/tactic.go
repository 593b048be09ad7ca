// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"

	"github.com/pdiddy/tmfk-stix/internal/markdown"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

// tacticLayout: paragraph 0 is page metadata, paragraph 1 the description.
var tacticLayout = markdown.Layout{Paragraphs: 2}

// Tactic reads the index page of one tactic. The external id comes from
// def, not from the page.
func (e *Extractor) Tactic(ctx context.Context, path string, def types.TacticDef) (*stix.Tactic, error) {
	doc, err := e.load(path, tacticLayout)
	if err != nil {
		return nil, fmt.Errorf("tactic %s: %w", def.Key, err)
	}
	desc, err := doc.Paragraph(1)
	if err != nil {
		return nil, fmt.Errorf("tactic %s: %s: %w", def.Key, path, err)
	}

	url := e.baseURL + "/tactics/" + def.Key
	common, err := e.common(ctx, stix.TypeTactic, def.ID, url, path)
	if err != nil {
		return nil, fmt.Errorf("tactic %s: %w", def.Key, err)
	}

	name := DisplayName(def.Key)
	return &stix.Tactic{
		Common:      common,
		Name:        name,
		Description: desc.Plain(),
		ShortName:   Slug(name),
	}, nil
}
