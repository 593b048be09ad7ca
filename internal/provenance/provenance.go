// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provenance derives creation and modification times for documents
// and for the relationships they declare, from version-control history.
package provenance

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/pdiddy/tmfk-stix/internal/history"
)

// History is the version-control view the resolver needs. history.Repo
// implements it; tests supply an in-memory fake.
type History interface {
	// Log returns the commits touching path, newest first.
	Log(ctx context.Context, path string) ([]history.Commit, error)

	// Show returns the content of path as of the commit hash. It returns an
	// error wrapping history.ErrNotInRevision when the path is absent there.
	Show(ctx context.Context, hash, path string) ([]byte, error)
}

// Dates is a creation/modification pair. Zero values mean "unknown".
type Dates struct {
	Created  time.Time
	Modified time.Time
}

// Found reports whether any provenance was resolved.
func (d Dates) Found() bool {
	return !d.Created.IsZero()
}

// Resolver answers provenance questions against one history. Commit lists
// and snapshots are memoised for the lifetime of the resolver; it is meant
// for a single sequential run.
type Resolver struct {
	history   History
	commits   map[string][]history.Commit
	snapshots map[snapshotKey][]byte
}

type snapshotKey struct {
	hash string
	path string
}

// NewResolver returns a Resolver reading from h.
func NewResolver(h History) *Resolver {
	return &Resolver{
		history:   h,
		commits:   make(map[string][]history.Commit),
		snapshots: make(map[snapshotKey][]byte),
	}
}

// FileDates returns the oldest and newest commit times of path. A file
// without history yields zero Dates and no error.
func (r *Resolver) FileDates(ctx context.Context, path string) (Dates, error) {
	commits, err := r.log(ctx, path)
	if err != nil {
		return Dates{}, err
	}
	if len(commits) == 0 {
		return Dates{}, nil
	}
	return Dates{
		Created:  commits[len(commits)-1].Time,
		Modified: commits[0].Time,
	}, nil
}

// RelationshipWindow walks the history of path from oldest to newest and
// reports when marker first and last appeared in the file content. The
// match is a case-insensitive substring test. Revisions in which the file
// does not exist count as non-matching. A marker that never appears yields
// zero Dates.
func (r *Resolver) RelationshipWindow(ctx context.Context, path, marker string) (Dates, error) {
	if marker == "" {
		return Dates{}, nil
	}
	commits, err := r.log(ctx, path)
	if err != nil {
		return Dates{}, err
	}

	needle := bytes.ToLower([]byte(marker))
	var window Dates
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		content, err := r.snapshot(ctx, c.Hash, path)
		if errors.Is(err, history.ErrNotInRevision) {
			continue
		}
		if err != nil {
			return Dates{}, err
		}
		if !bytes.Contains(bytes.ToLower(content), needle) {
			continue
		}
		if window.Created.IsZero() {
			window.Created = c.Time
		}
		window.Modified = c.Time
	}
	return window, nil
}

func (r *Resolver) log(ctx context.Context, path string) ([]history.Commit, error) {
	if commits, ok := r.commits[path]; ok {
		return commits, nil
	}
	commits, err := r.history.Log(ctx, path)
	if err != nil {
		return nil, err
	}
	r.commits[path] = commits
	return commits, nil
}

func (r *Resolver) snapshot(ctx context.Context, hash, path string) ([]byte, error) {
	key := snapshotKey{hash: hash, path: path}
	if data, ok := r.snapshots[key]; ok {
		return data, nil
	}
	data, err := r.history.Show(ctx, hash, path)
	if err != nil {
		return nil, err
	}
	r.snapshots[key] = data
	return data, nil
}
