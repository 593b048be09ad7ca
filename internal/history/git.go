// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history reads commit history and historical file snapshots from a
// git repository by running the git binary.
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotInRevision is returned by Show when the path does not exist in the
// requested commit (for example the commit that deleted it).
var ErrNotInRevision = errors.New("path not present in revision")

// Commit is one commit that touched a path.
type Commit struct {
	Hash string
	Time time.Time
}

// executor abstracts command execution for testing.
type executor interface {
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// CommandError describes a failed git invocation, including its stderr.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, &CommandError{
			Args:   append([]string{name}, args...),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return out, nil
}

// Repo reads history from the git repository rooted at Dir.
type Repo struct {
	dir  string
	bin  string
	ref  string
	exec executor
}

// Open returns a Repo for the repository rooted at dir. bin names the git
// executable; empty means "git". History is read from ref; empty means
// "HEAD".
func Open(dir, bin, ref string) (*Repo, error) {
	return open(dir, bin, ref, &osExecutor{})
}

func open(dir, bin, ref string, exec executor) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving repository %s: %w", dir, err)
	}
	if bin == "" {
		bin = "git"
	}
	if ref == "" {
		ref = "HEAD"
	}
	return &Repo{dir: abs, bin: bin, ref: ref, exec: exec}, nil
}

// Dir returns the absolute repository root.
func (r *Repo) Dir() string { return r.dir }

// Log returns the commits reachable from the repository ref that touched
// path, newest first. A path without history yields an empty slice and no
// error.
func (r *Repo) Log(ctx context.Context, path string) ([]Commit, error) {
	rel, err := r.relative(path)
	if err != nil {
		return nil, err
	}
	out, err := r.git(ctx, "log", "--format=%H%x09%cI", r.ref, "--", rel)
	if err != nil {
		return nil, fmt.Errorf("reading history of %s: %w", rel, err)
	}
	return parseLog(out)
}

// Show returns the content of path as of commit hash.
func (r *Repo) Show(ctx context.Context, hash, path string) ([]byte, error) {
	rel, err := r.relative(path)
	if err != nil {
		return nil, err
	}
	out, err := r.git(ctx, "show", hash+":"+rel)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && missingPath(cmdErr.Stderr) {
			return nil, fmt.Errorf("%s at %s: %w", rel, shortHash(hash), ErrNotInRevision)
		}
		return nil, fmt.Errorf("reading %s at %s: %w", rel, shortHash(hash), err)
	}
	return out, nil
}

// ShortHash returns the seven character hash of ref. An empty ref means
// the ref history is read from.
func (r *Repo) ShortHash(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		ref = r.ref
	}
	out, err := r.git(ctx, "rev-parse", "--short=7", ref)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	hash := strings.TrimSpace(string(out))
	if hash == "" {
		return "", fmt.Errorf("resolving %s: empty hash", ref)
	}
	return hash, nil
}

// FirstCommitDate returns the time of the oldest commit touching path, or
// the zero time when the path has no history.
func (r *Repo) FirstCommitDate(ctx context.Context, path string) (time.Time, error) {
	commits, err := r.Log(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	if len(commits) == 0 {
		return time.Time{}, nil
	}
	return commits[len(commits)-1].Time, nil
}

func (r *Repo) git(ctx context.Context, args ...string) ([]byte, error) {
	return r.exec.Output(ctx, r.dir, r.bin, args...)
}

// relative converts path to a slash-separated path relative to the
// repository root. Relative inputs are taken as already relative.
func (r *Repo) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return "", fmt.Errorf("%s is not inside %s: %w", path, r.dir, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not inside %s", path, r.dir)
	}
	return filepath.ToSlash(rel), nil
}

// parseLog reads "<hash>\t<iso8601>" lines.
func parseLog(out []byte) ([]Commit, error) {
	var commits []Commit
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hash, stamp, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("unexpected git log line %q", line)
		}
		ts, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing commit time %q: %w", stamp, err)
		}
		commits = append(commits, Commit{Hash: hash, Time: ts})
	}
	return commits, nil
}

func missingPath(stderr string) bool {
	return strings.Contains(stderr, "does not exist in") ||
		strings.Contains(stderr, "exists on disk, but not in")
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
