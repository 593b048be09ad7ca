// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relate links mitigations to the techniques listed in their tables
// and dates each link from the history of the mitigation page.
package relate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/tmfk-stix/internal/extract"
	"github.com/pdiddy/tmfk-stix/internal/identity"
	"github.com/pdiddy/tmfk-stix/internal/provenance"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

// ErrUnknownTechnique is returned when a mitigation table lists a technique
// id that no technique page declares.
var ErrUnknownTechnique = errors.New("unknown technique")

// WindowResolver dates a relationship from the history of the file that
// declares it. provenance.Resolver implements it.
type WindowResolver interface {
	RelationshipWindow(ctx context.Context, path, marker string) (provenance.Dates, error)
}

// Builder emits "mitigates" relationships. Techniques must be indexed with
// AddTechnique before any mitigation is built.
type Builder struct {
	profile    types.Profile
	matrix     types.MatrixConfig
	windows    WindowResolver
	creator    string
	w          io.Writer
	techniques map[string]*stix.Technique
	seen       map[string]bool
	duplicates int
}

// NewBuilder returns a Builder for one run. Duplicate relationships are
// reported on w.
func NewBuilder(profile types.Profile, matrix types.MatrixConfig, windows WindowResolver, creatorRef string, w io.Writer) *Builder {
	if w == nil {
		w = io.Discard
	}
	return &Builder{
		profile:    profile,
		matrix:     matrix,
		windows:    windows,
		creator:    creatorRef,
		w:          w,
		techniques: make(map[string]*stix.Technique),
		seen:       make(map[string]bool),
	}
}

// AddTechnique indexes t under its external id for the active source. It
// reports false when t has no such id and so cannot be linked.
func (b *Builder) AddTechnique(t *stix.Technique) bool {
	id := t.ExternalID(b.profile.SourceName)
	if id == "" {
		return false
	}
	b.techniques[id] = t
	return true
}

// Technique returns the technique indexed under externalID.
func (b *Builder) Technique(externalID string) (*stix.Technique, bool) {
	t, ok := b.techniques[externalID]
	return t, ok
}

// Duplicates returns how many relationships were dropped as repeats.
func (b *Builder) Duplicates() int { return b.duplicates }

// Build returns one relationship per technique id of m, in table order.
// A relationship already emitted in this run is skipped.
func (b *Builder) Build(ctx context.Context, m *extract.Mitigation) ([]*stix.Relationship, error) {
	source := m.Object
	desc := stix.FirstSentence(source.Description)

	var rels []*stix.Relationship
	for _, tid := range m.TechniqueIDs {
		target, ok := b.techniques[tid]
		if !ok {
			return nil, fmt.Errorf("%w %s listed by mitigation %s (%s)",
				ErrUnknownTechnique, tid, source.ExternalID(b.profile.SourceName), m.Path)
		}

		id := identity.ObjectID(stix.TypeRelationship, string(b.profile.Mode), source.ID, stix.RelationshipMitigates, target.ID)
		if b.seen[id] {
			b.duplicates++
			fmt.Fprintf(b.w, "duplicate %s %s %s in %s, skipped\n",
				source.ExternalID(b.profile.SourceName), stix.RelationshipMitigates, tid, m.Path)
			continue
		}

		window, err := b.windows.RelationshipWindow(ctx, m.Path, tid)
		if err != nil {
			return nil, fmt.Errorf("dating %s %s %s: %w", source.ID, stix.RelationshipMitigates, tid, err)
		}

		b.seen[id] = true
		rels = append(rels, &stix.Relationship{
			Common: stix.Common{
				Type:              stix.TypeRelationship,
				SpecVersion:       stix.SpecVersion,
				ID:                id,
				Created:           stix.NewTimestamp(window.Created),
				Modified:          stix.NewTimestamp(window.Modified),
				CreatedByRef:      b.creator,
				Domains:           []string{b.profile.Domain},
				Version:           b.matrix.Version,
				AttackSpecVersion: b.matrix.AttackSpecVersion,
				ModifiedByRef:     b.creator,
			},
			RelationshipType: stix.RelationshipMitigates,
			Description:      desc,
			SourceRef:        source.ID,
			TargetRef:        target.ID,
		})
	}
	return rels, nil
}
