// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/tmfk-stix/internal/history"
	"github.com/pdiddy/tmfk-stix/internal/history/historytest"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 12, 0, 0, 0, time.UTC)
}

func TestFileDates(t *testing.T) {
	h := historytest.New()
	h.Commit("docs/a.md", day(3), "v2")
	h.Commit("docs/a.md", day(1), "v1")
	h.Commit("docs/a.md", day(9), "v3")

	r := NewResolver(h)
	dates, err := r.FileDates(context.Background(), "docs/a.md")
	require.NoError(t, err)
	assert.True(t, dates.Found())
	assert.Equal(t, day(1), dates.Created)
	assert.Equal(t, day(9), dates.Modified)
}

func TestFileDatesWithoutHistory(t *testing.T) {
	r := NewResolver(historytest.New())
	dates, err := r.FileDates(context.Background(), "docs/untracked.md")
	require.NoError(t, err)
	assert.False(t, dates.Found())
	assert.True(t, dates.Modified.IsZero())
}

func TestRelationshipWindow(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(h *historytest.Fake)
		marker      string
		wantCreated time.Time
		wantMod     time.Time
	}{
		{
			name: "first and last matching revisions",
			setup: func(h *historytest.Fake) {
				h.Commit("m.md", day(1), "no techniques yet")
				h.Commit("m.md", day(2), "| [MS-TA9001](x) |")
				h.Commit("m.md", day(3), "| [MS-TA9001](x) | [MS-TA9002](y) |")
				h.Commit("m.md", day(4), "| [MS-TA9002](y) |")
			},
			marker:      "MS-TA9001",
			wantCreated: day(2),
			wantMod:     day(3),
		},
		{
			name: "case insensitive",
			setup: func(h *historytest.Fake) {
				h.Commit("m.md", day(5), "links to ms-ta9001 in lower case")
			},
			marker:      "MS-TA9001",
			wantCreated: day(5),
			wantMod:     day(5),
		},
		{
			name: "marker never present",
			setup: func(h *historytest.Fake) {
				h.Commit("m.md", day(1), "nothing here")
				h.Commit("m.md", day(2), "still nothing")
			},
			marker: "MS-TA9999",
		},
		{
			name: "deleted revision does not match",
			setup: func(h *historytest.Fake) {
				h.Commit("m.md", day(1), "MS-TA9001")
				h.Remove("m.md", day(2))
				h.Commit("m.md", day(3), "MS-TA9001 again")
			},
			marker:      "MS-TA9001",
			wantCreated: day(1),
			wantMod:     day(3),
		},
		{
			name: "empty marker",
			setup: func(h *historytest.Fake) {
				h.Commit("m.md", day(1), "anything")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := historytest.New()
			tt.setup(h)
			w, err := NewResolver(h).RelationshipWindow(context.Background(), "m.md", tt.marker)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, w.Created)
			assert.Equal(t, tt.wantMod, w.Modified)
			if w.Found() {
				assert.False(t, w.Created.After(w.Modified), "created must not be later than modified")
			}
		})
	}
}

func TestRelationshipWindowMemoisesSnapshots(t *testing.T) {
	h := historytest.New()
	h.Commit("m.md", day(1), "MS-TA9001")
	h.Commit("m.md", day(2), "MS-TA9001 MS-TA9002")

	r := NewResolver(h)
	_, err := r.RelationshipWindow(context.Background(), "m.md", "MS-TA9001")
	require.NoError(t, err)
	_, err = r.RelationshipWindow(context.Background(), "m.md", "MS-TA9002")
	require.NoError(t, err)

	assert.Equal(t, 2, h.ShowCalls)
}

type failingHistory struct{}

func (failingHistory) Log(context.Context, string) ([]history.Commit, error) {
	return []history.Commit{{Hash: "h1", Time: day(1)}}, nil
}

func (failingHistory) Show(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("git exploded")
}

func TestRelationshipWindowPropagatesErrors(t *testing.T) {
	_, err := NewResolver(failingHistory{}).RelationshipWindow(context.Background(), "m.md", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git exploded")
}
