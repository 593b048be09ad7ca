// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/tmfk-stix/internal/identity"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := NewStore(types.IndexConfig{Dir: filepath.Join(tmpDir, "index"), MaxResults: 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, tmpDir
}

func common(objectType string, p types.Profile, extID string) stix.Common {
	return stix.Common{
		Type:               objectType,
		SpecVersion:        stix.SpecVersion,
		ID:                 identity.ObjectID(objectType, string(p.Mode), extID),
		Modified:           stix.NewTimestamp(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)),
		Domains:            []string{p.Domain},
		ExternalReferences: []stix.ExternalReference{{SourceName: p.SourceName, ExternalID: extID}},
	}
}

// writeBundle writes a small bundle for mode: two techniques, two
// mitigations and three mitigates relationships.
func writeBundle(t *testing.T, dir string, mode types.Mode) string {
	t.Helper()
	profile, err := types.NewProfile(mode)
	if err != nil {
		t.Fatal(err)
	}
	m := string(mode)

	tech1 := &stix.Technique{Common: common(stix.TypeTechnique, profile, "MS-TA9001"), Name: "Using cloud credentials", Description: "Attackers steal cloud credentials."}
	tech2 := &stix.Technique{Common: common(stix.TypeTechnique, profile, "MS-TA9006"), Name: "Exec into container", Description: "Run commands with kubectl exec."}
	coa1 := &stix.CourseOfAction{Common: common(stix.TypeCourseOfAction, profile, "MS-M9010"), Name: "Restrict exec commands on pods", Description: "Use admission controllers."}
	coa2 := &stix.CourseOfAction{Common: common(stix.TypeCourseOfAction, profile, "MS-M9019"), Name: "Allocate specific identities to pods", Description: "Scope credentials."}

	rel := func(source, target stix.Object) *stix.Relationship {
		return &stix.Relationship{
			Common:           common(stix.TypeRelationship, profile, source.Meta().ID+target.Meta().ID),
			RelationshipType: stix.RelationshipMitigates,
			SourceRef:        source.Meta().ID,
			TargetRef:        target.Meta().ID,
		}
	}
	// Relationships carry no external reference.
	r1, r2, r3 := rel(coa1, tech2), rel(coa2, tech1), rel(coa2, tech2)
	for _, r := range []*stix.Relationship{r1, r2, r3} {
		r.ExternalReferences = nil
	}

	objects := []stix.Object{tech1, tech2, coa1, r1, coa2, r2, r3}
	contents := make([]stix.ObjectRef, len(objects))
	for i, o := range objects {
		contents[i] = stix.ObjectRef{ObjectRef: o.Meta().ID, ObjectModified: o.Meta().Modified}
	}
	collection := &stix.Collection{Common: common(stix.TypeCollection, profile, "tmfk"), Name: "Matrix", Contents: contents}

	bundle := &stix.Bundle{
		Type:    stix.TypeBundle,
		ID:      identity.ObjectID(stix.TypeBundle, m, "tmfk"),
		Objects: append([]stix.Object{collection}, objects...),
	}
	data, err := bundle.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "tmfk_"+m+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func ingest(t *testing.T, store *Store, paths ...string) (IngestSummary, string) {
	t.Helper()
	var buf bytes.Buffer
	summary, err := store.Ingest(context.Background(), paths, &buf)
	if err != nil {
		t.Fatal(err)
	}
	return summary, buf.String()
}

// --- tests ---

func TestIngestAndRetrieve(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := writeBundle(t, tmpDir, types.ModeStrict)

	summary, out := ingest(t, store, path)
	if summary.Indexed != 1 || summary.Total() != 1 {
		t.Fatalf("summary = %+v, want 1 indexed", summary)
	}
	if !strings.Contains(out, "(4 objects, 3 relationships)") {
		t.Errorf("output %q missing counts", out)
	}

	results, err := store.Retrieve(context.Background(), QueryOptions{Type: stix.TypeTechnique})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d techniques, want 2", len(results))
	}
	if results[0].ExternalID != "MS-TA9001" || results[1].ExternalID != "MS-TA9006" {
		t.Errorf("techniques not sorted by external id: %+v", results)
	}
	if results[0].Domain != "tmfk" {
		t.Errorf("domain = %q, want tmfk", results[0].Domain)
	}
	if results[0].Modified != "2023-05-01T00:00:00.000Z" {
		t.Errorf("modified = %q", results[0].Modified)
	}
}

func TestRetrieveFullText(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingest(t, store, writeBundle(t, tmpDir, types.ModeStrict))

	results, err := store.Retrieve(context.Background(), QueryOptions{Query: "kubectl"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ExternalID != "MS-TA9006" {
		t.Fatalf("full-text results = %+v, want MS-TA9006", results)
	}

	results, err = store.Retrieve(context.Background(), QueryOptions{Query: "credentials", Type: stix.TypeCourseOfAction})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ExternalID != "MS-M9019" {
		t.Fatalf("filtered full-text results = %+v, want MS-M9019", results)
	}
}

func TestRetrieveFiltersAndLimit(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingest(t, store,
		writeBundle(t, tmpDir, types.ModeStrict),
		writeBundle(t, tmpDir, types.ModeAttackCompatible),
	)

	all, err := store.Retrieve(context.Background(), QueryOptions{ExternalID: "MS-M9010"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d copies of MS-M9010, want one per bundle", len(all))
	}

	one, err := store.Retrieve(context.Background(), QueryOptions{ExternalID: "MS-M9010", Domain: "enterprise-attack"})
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].Domain != "enterprise-attack" {
		t.Fatalf("domain filter results = %+v", one)
	}

	limited, err := store.Retrieve(context.Background(), QueryOptions{MaxResults: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 3 {
		t.Errorf("got %d results, want 3", len(limited))
	}
}

func TestMitigations(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingest(t, store,
		writeBundle(t, tmpDir, types.ModeStrict),
		writeBundle(t, tmpDir, types.ModeAttackCompatible),
	)

	got, err := store.Mitigations(context.Background(), "MS-TA9006", "tmfk")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ExternalID)
	}
	if strings.Join(ids, ",") != "MS-M9010,MS-M9019" {
		t.Errorf("mitigations of MS-TA9006 = %v, want [MS-M9010 MS-M9019]", ids)
	}

	got, err = store.Mitigations(context.Background(), "MS-TA9001", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d mitigations across both bundles, want 2", len(got))
	}

	got, err = store.Mitigations(context.Background(), "MS-TA0000", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("unknown technique returned %v", got)
	}
}

func TestIngestSkipsUnchangedAndUpdatesChanged(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := writeBundle(t, tmpDir, types.ModeStrict)
	ingest(t, store, path)

	summary, out := ingest(t, store, path)
	if summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want 1 skipped", summary)
	}
	if !strings.Contains(out, "skipped") {
		t.Errorf("output %q missing skip line", out)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	summary, _ = ingest(t, store, path)
	if summary.Updated != 1 {
		t.Fatalf("summary = %+v, want 1 updated", summary)
	}

	counts, err := store.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"attack-pattern": 2, "course-of-action": 2, "relationship": 3}
	if len(counts) != len(want) {
		t.Fatalf("counts = %+v, want %v", counts, want)
	}
	for _, c := range counts {
		if want[c.Type] != c.Count {
			t.Errorf("%s count = %d, want %d (rows were duplicated on update?)", c.Type, c.Count, want[c.Type])
		}
	}
}

func TestIngestReportsBadBundles(t *testing.T) {
	store, tmpDir := testSetup(t)
	bad := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"type": "bundle", "id": "bundle--x", "objects": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	good := writeBundle(t, tmpDir, types.ModeStrict)

	summary, out := ingest(t, store, bad, filepath.Join(tmpDir, "missing.json"), good)
	if summary.Failed != 2 || summary.Indexed != 1 {
		t.Fatalf("summary = %+v, want 2 failed and 1 indexed", summary)
	}
	if !strings.Contains(out, "failed  "+bad) {
		t.Errorf("output %q missing failure line", out)
	}
}

func TestIngestRespectsCancellation(t *testing.T) {
	store, tmpDir := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Ingest(ctx, []string{writeBundle(t, tmpDir, types.ModeStrict)}, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestObject(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingest(t, store, writeBundle(t, tmpDir, types.ModeStrict))

	id := identity.ObjectID(stix.TypeCourseOfAction, "strict", "MS-M9010")
	raw, err := store.Object(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatal(err)
	}
	if obj["name"] != "Restrict exec commands on pods" {
		t.Errorf("object name = %v", obj["name"])
	}

	_, err = store.Object(context.Background(), "course-of-action--00000000-0000-4000-8000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExports(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingest(t, store, writeBundle(t, tmpDir, types.ModeStrict))

	// Ingest writes export.yaml on change.
	data, err := os.ReadFile(filepath.Join(tmpDir, "index", "export.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d YAML entries, want 4", len(entries))
	}

	if err := store.ExportJSON(context.Background(), QueryOptions{Type: stix.TypeTechnique}); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(filepath.Join(tmpDir, "index", "export.json"))
	if err != nil {
		t.Fatal(err)
	}
	var techniques []ExportEntry
	if err := json.Unmarshal(data, &techniques); err != nil {
		t.Fatal(err)
	}
	if len(techniques) != 2 {
		t.Fatalf("got %d JSON entries, want 2", len(techniques))
	}
	if got := strings.Join(techniques[1].MitigatedBy, ","); got != "MS-M9010,MS-M9019" {
		t.Errorf("MS-TA9006 mitigated_by = %q", got)
	}
	if got := strings.Join(techniques[0].MitigatedBy, ","); got != "MS-M9019" {
		t.Errorf("MS-TA9001 mitigated_by = %q", got)
	}
}

func TestQueryOptionsIsEmpty(t *testing.T) {
	if !(QueryOptions{MaxResults: 5}).IsEmpty() {
		t.Error("limit alone should count as empty")
	}
	if (QueryOptions{Domain: "tmfk"}).IsEmpty() {
		t.Error("domain filter should not count as empty")
	}
}
