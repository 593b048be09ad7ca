// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package historytest provides an in-memory history for tests.
package historytest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/pdiddy/tmfk-stix/internal/history"
)

// Revision is one recorded version of a file. A nil Content records a
// commit that removed the file.
type Revision struct {
	Hash    string
	Time    time.Time
	Content []byte
}

// Fake is an in-memory history keyed by cleaned file path. It satisfies the
// History interfaces of the provenance and assemble packages.
type Fake struct {
	Files     map[string][]Revision
	Head      string
	ShowCalls int
}

// New returns an empty Fake whose HEAD short hash is "abc1234".
func New() *Fake {
	return &Fake{Files: make(map[string][]Revision), Head: "abc1234"}
}

// Commit records a new revision of path at t.
func (f *Fake) Commit(path string, t time.Time, content string) {
	key := filepath.Clean(path)
	revs := f.Files[key]
	rev := Revision{Hash: fmt.Sprintf("%s@%d", key, len(revs)), Time: t, Content: []byte(content)}
	f.Files[key] = append(revs, rev)
}

// Remove records a commit at t that deleted path.
func (f *Fake) Remove(path string, t time.Time) {
	key := filepath.Clean(path)
	revs := f.Files[key]
	f.Files[key] = append(revs, Revision{Hash: fmt.Sprintf("%s@%d", key, len(revs)), Time: t})
}

// Log returns the revisions of path newest first.
func (f *Fake) Log(_ context.Context, path string) ([]history.Commit, error) {
	revs := append([]Revision(nil), f.Files[filepath.Clean(path)]...)
	sort.SliceStable(revs, func(i, j int) bool { return revs[i].Time.After(revs[j].Time) })
	commits := make([]history.Commit, len(revs))
	for i, r := range revs {
		commits[i] = history.Commit{Hash: r.Hash, Time: r.Time}
	}
	return commits, nil
}

// Show returns the content recorded for hash.
func (f *Fake) Show(_ context.Context, hash, path string) ([]byte, error) {
	f.ShowCalls++
	for _, r := range f.Files[filepath.Clean(path)] {
		if r.Hash != hash {
			continue
		}
		if r.Content == nil {
			return nil, fmt.Errorf("%s at %s: %w", path, hash, history.ErrNotInRevision)
		}
		return r.Content, nil
	}
	return nil, fmt.Errorf("%s at %s: %w", path, hash, history.ErrNotInRevision)
}

// ShortHash returns Head.
func (f *Fake) ShortHash(_ context.Context, _ string) (string, error) {
	return f.Head, nil
}

// FirstCommitDate returns the oldest revision time of path.
func (f *Fake) FirstCommitDate(ctx context.Context, path string) (time.Time, error) {
	commits, _ := f.Log(ctx, path)
	if len(commits) == 0 {
		return time.Time{}, nil
	}
	return commits[len(commits)-1].Time, nil
}
