// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns tactic, technique and mitigation pages into STIX
// records. Each page is parsed into a markdown.Document, checked against the
// layout its kind relies on, and read through named accessors.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/tmfk-stix/internal/identity"
	"github.com/pdiddy/tmfk-stix/internal/markdown"
	"github.com/pdiddy/tmfk-stix/internal/provenance"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

// techniqueVersion is the x_mitre_version of every technique.
const techniqueVersion = "1.0"

// DateResolver supplies creation and modification times for a file.
// provenance.Resolver implements it.
type DateResolver interface {
	FileDates(ctx context.Context, path string) (provenance.Dates, error)
}

// Extractor builds records for one mode. It is not safe for concurrent use
// when its DateResolver is not.
type Extractor struct {
	parser  *markdown.Parser
	dates   DateResolver
	profile types.Profile
	baseURL string
	matrix  types.MatrixConfig
	creator string
}

// New returns an Extractor that tags records with profile, dates them through
// dates and credits them to creatorRef.
func New(profile types.Profile, corpus types.CorpusConfig, matrix types.MatrixConfig, dates DateResolver, creatorRef string) *Extractor {
	return &Extractor{
		parser:  markdown.NewParser(),
		dates:   dates,
		profile: profile,
		baseURL: strings.TrimRight(corpus.BaseURL, "/"),
		matrix:  matrix,
		creator: creatorRef,
	}
}

// Profile returns the profile the extractor tags records with.
func (e *Extractor) Profile() types.Profile { return e.profile }

// load parses path and checks it against layout.
func (e *Extractor) load(path string, layout markdown.Layout) (*markdown.Document, error) {
	doc, err := e.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := doc.Require(layout); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// common fills the properties shared by every extracted record.
func (e *Extractor) common(ctx context.Context, objectType, externalID, url, path string) (stix.Common, error) {
	dates, err := e.dates.FileDates(ctx, path)
	if err != nil {
		return stix.Common{}, fmt.Errorf("resolving dates of %s: %w", path, err)
	}
	return stix.Common{
		Type:         objectType,
		SpecVersion:  stix.SpecVersion,
		ID:           identity.ObjectID(objectType, string(e.profile.Mode), externalID),
		Created:      stix.NewTimestamp(dates.Created),
		Modified:     stix.NewTimestamp(dates.Modified),
		CreatedByRef: e.creator,
		ExternalReferences: []stix.ExternalReference{{
			SourceName: e.profile.SourceName,
			URL:        url,
			ExternalID: externalID,
		}},
		Domains:           []string{e.profile.Domain},
		Version:           e.matrix.Version,
		AttackSpecVersion: e.matrix.AttackSpecVersion,
		ModifiedByRef:     e.creator,
	}, nil
}

// metadataID returns the value of the "ID:" line of a metadata paragraph.
func metadataID(meta markdown.Inlines, path string) (string, error) {
	for _, line := range meta.Lines() {
		rest, ok := strings.CutPrefix(line, "ID:")
		if !ok {
			continue
		}
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("%s: %w: metadata has no ID line", path, markdown.ErrMalformed)
}

// description joins paragraphs from index 2 on with blank lines. Empty
// paragraphs, and those rejected by skip, are dropped.
func description(doc *markdown.Document, skip func(string) bool) string {
	ps := doc.Paragraphs()
	if len(ps) <= 2 {
		return ""
	}
	var parts []string
	for _, p := range ps[2:] {
		text := p.Plain()
		if text == "" || (skip != nil && skip(text)) {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// DisplayName splits a CamelCase key into words: "PrivilegeEscalation"
// becomes "Privilege Escalation" and acronyms stay together.
func DisplayName(key string) string {
	rs := []rune(key)
	var b strings.Builder
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(rs[i-1])
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if prevLower || (unicode.IsUpper(rs[i-1]) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Slug lower-cases s and replaces spaces with hyphens.
func Slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func escapeSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "%20")
}

// MarkdownFiles lists the .md files directly inside dir in name order,
// leaving out any whose name is in skip.
func MarkdownFiles(dir string, skip ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") || contains(skip, name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Subdirectories lists the directories directly inside dir in name order.
func Subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
