// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble runs the pipeline for one mode: it reads tactics,
// techniques and mitigations in a fixed order, links mitigations to
// techniques, adds the matrix, creator identity and collection manifest,
// validates the bundle and writes it twice.
package assemble

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/tmfk-stix/internal/extract"
	"github.com/pdiddy/tmfk-stix/internal/identity"
	"github.com/pdiddy/tmfk-stix/internal/provenance"
	"github.com/pdiddy/tmfk-stix/internal/relate"
	"github.com/pdiddy/tmfk-stix/internal/schema"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

// matrixKey seeds the identifiers of the matrix and collection.
const matrixKey = "tmfk"

// GitRepo is the history the assembler reads. history.Repo implements it.
type GitRepo interface {
	provenance.History
	ShortHash(ctx context.Context, ref string) (string, error)
	FirstCommitDate(ctx context.Context, path string) (time.Time, error)
}

// Summary reports what one run produced.
type Summary struct {
	Mode          types.Mode
	Tactics       int
	Techniques    int
	Mitigations   int
	Relationships int

	// Duplicates counts repeated mitigation rows collapsed into one relationship.
	Duplicates int

	// Unlinked guards against techniques without an id for the active
	// source. Extracted techniques always carry one, so it stays zero.
	Unlinked int

	// Paths are the written files: the stable name first, then the
	// hash-suffixed one.
	Paths []string
}

// Total returns the number of domain objects (tactics, techniques,
// mitigations and relationships) in the bundle.
func (s Summary) Total() int {
	return s.Tactics + s.Techniques + s.Mitigations + s.Relationships
}

// Assembler builds bundles from one documentation checkout.
type Assembler struct {
	cfg  types.BuildConfig
	repo GitRepo
	w    io.Writer
	now  func() time.Time
}

// New returns an Assembler reading cfg's corpus through repo. Progress is
// written to w.
func New(cfg types.BuildConfig, repo GitRepo, w io.Writer) *Assembler {
	if w == nil {
		w = io.Discard
	}
	return &Assembler{cfg: cfg, repo: repo, w: w, now: time.Now}
}

// run holds the state of one Run call.
type run struct {
	profile   types.Profile
	creator   *stix.Identity
	extractor *extract.Extractor
	builder   *relate.Builder
	objects   []stix.Object
	tactics   []*stix.Tactic
	summary   Summary
}

func (r *run) add(obj stix.Object) {
	r.objects = append(r.objects, obj)
}

// Run produces the bundle for mode. Nothing is written unless every phase
// succeeds and the bundle validates.
func (a *Assembler) Run(ctx context.Context, mode types.Mode) (Summary, error) {
	profile, err := types.NewProfile(mode)
	if err != nil {
		return Summary{}, err
	}

	repoDir, err := filepath.Abs(a.cfg.Corpus.RepoDir)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving repository %s: %w", a.cfg.Corpus.RepoDir, err)
	}
	docs := filepath.Join(repoDir, a.cfg.Corpus.DocsDir)

	creator, err := a.creator(profile)
	if err != nil {
		return Summary{}, err
	}

	resolver := provenance.NewResolver(a.repo)
	r := &run{
		profile:   profile,
		creator:   creator,
		extractor: extract.New(profile, a.cfg.Corpus, a.cfg.Matrix, resolver, creator.ID),
		builder:   relate.NewBuilder(profile, a.cfg.Matrix, resolver, creator.ID, a.w),
		summary:   Summary{Mode: mode},
	}

	fmt.Fprintf(a.w, "building %s bundle from %s\n", mode, docs)

	if err := a.tactics(ctx, r, filepath.Join(docs, a.cfg.Corpus.TacticsDir)); err != nil {
		return Summary{}, err
	}
	if err := a.techniques(ctx, r, filepath.Join(docs, a.cfg.Corpus.TechniquesDir)); err != nil {
		return Summary{}, err
	}
	mitigations := filepath.Join(docs, a.cfg.Corpus.MitigationsDir)
	if err := a.flatMitigations(ctx, r, mitigations); err != nil {
		return Summary{}, err
	}
	if err := a.nestedMitigations(ctx, r, mitigations); err != nil {
		return Summary{}, err
	}
	r.summary.Duplicates = r.builder.Duplicates()

	data, err := a.finalize(ctx, r, repoDir)
	if err != nil {
		return Summary{}, err
	}

	hash, err := a.repo.ShortHash(ctx, a.cfg.History.Ref)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving output hash: %w", err)
	}
	paths, err := a.write(data, mode, hash)
	if err != nil {
		return Summary{}, err
	}
	r.summary.Paths = paths
	return r.summary, nil
}

func (a *Assembler) creator(profile types.Profile) (*stix.Identity, error) {
	if a.cfg.Matrix.IdentityFile != "" {
		return stix.LoadIdentity(a.cfg.Matrix.IdentityFile)
	}
	return stix.DefaultIdentity(profile.Domain, a.cfg.Matrix.Version, a.cfg.Matrix.AttackSpecVersion), nil
}

func (a *Assembler) tactics(ctx context.Context, r *run, dir string) error {
	for _, def := range a.cfg.Corpus.Tactics {
		t, err := r.extractor.Tactic(ctx, filepath.Join(dir, def.Key, "index.md"), def)
		if err != nil {
			return err
		}
		r.add(t)
		r.tactics = append(r.tactics, t)
	}
	r.summary.Tactics = len(r.tactics)
	fmt.Fprintf(a.w, "tactics      %d\n", r.summary.Tactics)
	return nil
}

func (a *Assembler) techniques(ctx context.Context, r *run, dir string) error {
	files, err := extract.MarkdownFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		t, err := r.extractor.Technique(ctx, f)
		if err != nil {
			return err
		}
		if !r.builder.AddTechnique(t) {
			r.summary.Unlinked++
			fmt.Fprintf(a.w, "warning: %s has no %s id and cannot be linked\n", f, r.profile.SourceName)
		}
		r.add(t)
		r.summary.Techniques++
	}
	fmt.Fprintf(a.w, "techniques   %d\n", r.summary.Techniques)
	return nil
}

func (a *Assembler) flatMitigations(ctx context.Context, r *run, dir string) error {
	files, err := extract.MarkdownFiles(dir, "index.md")
	if err != nil {
		return err
	}
	for _, f := range files {
		m, err := r.extractor.Mitigation(ctx, f)
		if err != nil {
			return err
		}
		r.add(m.Object)
		r.summary.Mitigations++
		if err := a.relate(ctx, r, m); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.w, "mitigations  %d (flat)\n", r.summary.Mitigations)
	return nil
}

// nestedMitigations reads each subdirectory of dir: all children first,
// then their relationships.
func (a *Assembler) nestedMitigations(ctx context.Context, r *run, dir string) error {
	folders, err := extract.Subdirectories(dir)
	if err != nil {
		return err
	}
	for _, folder := range folders {
		children, err := r.extractor.Folder(ctx, folder)
		if err != nil {
			return err
		}
		for _, m := range children {
			r.add(m.Object)
			r.summary.Mitigations++
		}
		for _, m := range children {
			if err := a.relate(ctx, r, m); err != nil {
				return err
			}
		}
		fmt.Fprintf(a.w, "mitigations  %d in %s\n", len(children), filepath.Base(folder))
	}
	return nil
}

func (a *Assembler) relate(ctx context.Context, r *run, m *extract.Mitigation) error {
	rels, err := r.builder.Build(ctx, m)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		r.add(rel)
	}
	r.summary.Relationships += len(rels)
	return nil
}

// finalize appends the matrix and identity, builds the collection and
// bundle, validates them and returns the serialized bytes.
func (a *Assembler) finalize(ctx context.Context, r *run, repoDir string) ([]byte, error) {
	now := a.now().UTC()
	anchor := filepath.Join(repoDir, a.cfg.History.AnchorFile)
	first, err := a.repo.FirstCommitDate(ctx, anchor)
	if err != nil {
		return nil, fmt.Errorf("dating %s: %w", anchor, err)
	}

	mode := string(r.profile.Mode)
	matrixCommon := func(objectType string) stix.Common {
		return stix.Common{
			Type:              objectType,
			SpecVersion:       stix.SpecVersion,
			ID:                identity.ObjectID(objectType, mode, matrixKey),
			Created:           stix.NewTimestamp(first),
			Modified:          stix.NewTimestamp(now),
			CreatedByRef:      r.creator.ID,
			Domains:           []string{r.profile.Domain},
			Version:           a.cfg.Matrix.Version,
			AttackSpecVersion: a.cfg.Matrix.AttackSpecVersion,
			ModifiedByRef:     r.creator.ID,
		}
	}

	tacticRefs := make([]string, len(r.tactics))
	for i, t := range r.tactics {
		tacticRefs[i] = t.ID
	}
	mc := matrixCommon(stix.TypeMatrix)
	mc.ExternalReferences = []stix.ExternalReference{{
		SourceName: r.profile.SourceName,
		URL:        a.cfg.Corpus.BaseURL,
		ExternalID: matrixKey,
	}}
	r.add(&stix.Matrix{
		Common:      mc,
		Name:        a.cfg.Matrix.Name,
		Description: a.cfg.Matrix.Description,
		TacticRefs:  tacticRefs,
	})
	r.add(r.creator)

	cc := matrixCommon(stix.TypeCollection)
	cc.ModifiedByRef = ""
	collection := &stix.Collection{
		Common:      cc,
		Name:        a.cfg.Matrix.Name,
		Description: a.cfg.Matrix.Description,
		Contents:    manifest(r.objects, now),
	}

	objects := make([]stix.Object, 0, len(r.objects)+1)
	objects = append(objects, collection)
	objects = append(objects, r.objects...)
	if err := stix.ValidateAll(objects); err != nil {
		return nil, err
	}

	bundle := &stix.Bundle{
		Type:    stix.TypeBundle,
		ID:      identity.ObjectID(stix.TypeBundle, mode, matrixKey),
		Objects: objects,
	}
	data, err := bundle.Marshal()
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateBundle(data); err != nil {
		return nil, err
	}
	return data, nil
}

// manifest lists every object with its modification time, falling back to
// its creation time and then to now.
func manifest(objects []stix.Object, now time.Time) []stix.ObjectRef {
	refs := make([]stix.ObjectRef, len(objects))
	for i, obj := range objects {
		m := obj.Meta()
		stamp := m.Modified
		if stamp == nil {
			stamp = m.Created
		}
		if stamp == nil {
			stamp = stix.NewTimestamp(now)
		}
		refs[i] = stix.ObjectRef{ObjectRef: m.ID, ObjectModified: stamp}
	}
	return refs
}

// write stores data under the stable and the hash-suffixed name.
func (a *Assembler) write(data []byte, mode types.Mode, hash string) ([]string, error) {
	dir := a.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	base := fmt.Sprintf("%s_%s", a.cfg.Output.Prefix, mode)
	paths := []string{
		filepath.Join(dir, base+".json"),
		filepath.Join(dir, base+"_"+hash+".json"),
	}
	for _, p := range paths {
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p, err)
		}
		fmt.Fprintf(a.w, "wrote %s\n", p)
	}
	return paths, nil
}
