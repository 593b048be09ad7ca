// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/tmfk-stix/internal/identity"
	"github.com/pdiddy/tmfk-stix/internal/markdown"
	"github.com/pdiddy/tmfk-stix/internal/provenance"
	"github.com/pdiddy/tmfk-stix/internal/stix"
	"github.com/pdiddy/tmfk-stix/pkg/types"
)

type fakeDates struct {
	dates map[string]provenance.Dates
	err   error
}

func (f *fakeDates) FileDates(_ context.Context, path string) (provenance.Dates, error) {
	if f.err != nil {
		return provenance.Dates{}, f.err
	}
	return f.dates[path], nil
}

var (
	day1 = time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 = time.Date(2022, 6, 15, 18, 30, 0, 0, time.UTC)
)

func newExtractor(t *testing.T, mode types.Mode, dates DateResolver) *Extractor {
	t.Helper()
	profile, err := types.NewProfile(mode)
	require.NoError(t, err)
	cfg := types.DefaultBuildConfig()
	return New(profile, cfg.Corpus, cfg.Matrix, dates, stix.CreatorID)
}

func writePage(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const tacticPage = `# Privilege escalation

<sub>Tactic</sub>

The privilege escalation tactic consists of techniques that are used by attackers to get higher privileges.
`

const techniquePage = `# Exec into container

<sub>Technique page</sub>

ID: MS-TA9006
Tactic: [Execution](../tactics/Execution/index.md)
MITRE technique: [T1609](https://attack.mitre.org/techniques/T1609/)

Attackers who have permissions can run malicious commands in containers using ` + "`kubectl exec`" + `.

Second paragraph.
`

const flatMitigationPage = `# Restrict exec commands on pods

<sub>Mitigation page</sub>

ID: MS-M9010
MITRE mitigation: [M1038](https://attack.mitre.org/mitigations/M1038/)

Use admission controllers to restrict exec. Another sentence.

!!! note "Tip"

| ID | Name | Tactic |
|----|------|--------|
| [MS-TA9006](../techniques/Exec%20into%20container.md) | Exec into container | Execution |
| [MS-TA9007](../techniques/bash.md) | bash or cmd inside container | Execution |
`

const childMitigationPage = `# Limit access to service account

<sub>Mitigation page</sub>

ID: MS-M9019.001
Parent: [MS-M9019](../index.md)
MITRE mitigation: -

Limit service account tokens.

| ID | Name |
|----|------|
| [MS-TA9016](../../techniques/sa.md) | Access container service account |
`

func TestDisplayNameAndSlug(t *testing.T) {
	tests := []struct {
		key, name, slug string
	}{
		{"InitialAccess", "Initial Access", "initial-access"},
		{"Impact", "Impact", "impact"},
		{"PrivilegeEscalation", "Privilege Escalation", "privilege-escalation"},
		{"APIServerAccess", "API Server Access", "api-server-access"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.name, DisplayName(tt.key))
			assert.Equal(t, tt.slug, Slug(DisplayName(tt.key)))
		})
	}
}

func TestTactic(t *testing.T) {
	path := writePage(t, t.TempDir(), "PrivilegeEscalation/index.md", tacticPage)
	e := newExtractor(t, types.ModeStrict, &fakeDates{dates: map[string]provenance.Dates{
		path: {Created: day1, Modified: day2},
	}})

	tac, err := e.Tactic(context.Background(), path, types.TacticDef{Key: "PrivilegeEscalation", ID: "MS-T0400"})
	require.NoError(t, err)

	assert.Equal(t, identity.ObjectID(stix.TypeTactic, "strict", "MS-T0400"), tac.ID)
	assert.Equal(t, "Privilege Escalation", tac.Name)
	assert.Equal(t, "privilege-escalation", tac.ShortName)
	assert.Equal(t, "The privilege escalation tactic consists of techniques that are used by attackers to get higher privileges.", tac.Description)
	assert.Equal(t, "MS-T0400", tac.ExternalID("tmfk"))
	assert.Equal(t, "https://microsoft.github.io/Threat-Matrix-for-Kubernetes/tactics/PrivilegeEscalation", tac.ExternalReferences[0].URL)
	assert.Equal(t, []string{"tmfk"}, tac.Domains)
	assert.Equal(t, "0.1", tac.Version)
	assert.True(t, tac.Created.Equal(day1))
	assert.True(t, tac.Modified.Equal(day2))
	assert.NoError(t, stix.Validate(tac))
}

func TestTacticMalformed(t *testing.T) {
	path := writePage(t, t.TempDir(), "Impact/index.md", "# Impact\n\nonly metadata\n")
	e := newExtractor(t, types.ModeStrict, &fakeDates{})

	_, err := e.Tactic(context.Background(), path, types.TacticDef{Key: "Impact", ID: "MS-T1000"})
	require.Error(t, err)
	assert.ErrorIs(t, err, markdown.ErrMalformed)
	assert.Contains(t, err.Error(), path)
}

func TestTechnique(t *testing.T) {
	path := writePage(t, t.TempDir(), "exec.md", techniquePage)
	e := newExtractor(t, types.ModeAttackCompatible, &fakeDates{})

	tech, err := e.Technique(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Exec into container", tech.Name)
	assert.Equal(t, identity.ObjectID(stix.TypeTechnique, "attack_compatible", "MS-TA9006"), tech.ID)
	assert.Equal(t, "MS-TA9006", tech.ExternalID("mitre-attack"))
	assert.Empty(t, tech.ExternalID("tmfk"))
	assert.Equal(t, "https://microsoft.github.io/Threat-Matrix-for-Kubernetes/techniques/exec%20into%20container", tech.ExternalReferences[0].URL)
	assert.Equal(t, []string{"T1609"}, tech.MitreIDs)
	assert.Equal(t, []stix.KillChainPhase{{KillChainName: "mitre-attack", PhaseName: "execution"}}, tech.KillChainPhases)
	assert.Equal(t, "Attackers who have permissions can run malicious commands in containers using kubectl exec.\n\nSecond paragraph.", tech.Description)
	assert.Equal(t, []string{"Kubernetes"}, tech.Platforms)
	assert.Equal(t, []string{"enterprise-attack"}, tech.Domains)
	assert.Equal(t, "1.0", tech.Version)
	assert.False(t, tech.IsSubtechnique)
	assert.Nil(t, tech.Created)
	assert.Nil(t, tech.Modified)
	assert.NoError(t, stix.Validate(tech))
}

func TestTechniqueSubtechniqueFlag(t *testing.T) {
	page := "# Sub\n\npre\n\nID: MS-TA9006.001\n"
	path := writePage(t, t.TempDir(), "sub.md", page)
	tech, err := newExtractor(t, types.ModeStrict, &fakeDates{}).Technique(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, tech.IsSubtechnique)
	assert.Empty(t, tech.Description)
}

func TestTechniqueMissingID(t *testing.T) {
	path := writePage(t, t.TempDir(), "noid.md", "# No id\n\npre\n\nTactic: [Execution](x.md)\n")
	_, err := newExtractor(t, types.ModeStrict, &fakeDates{}).Technique(context.Background(), path)
	assert.ErrorIs(t, err, markdown.ErrMalformed)
}

func TestDateErrorsPropagate(t *testing.T) {
	path := writePage(t, t.TempDir(), "exec.md", techniquePage)
	boom := errors.New("git exploded")
	_, err := newExtractor(t, types.ModeStrict, &fakeDates{err: boom}).Technique(context.Background(), path)
	assert.ErrorIs(t, err, boom)
}

func TestMitigation(t *testing.T) {
	path := writePage(t, t.TempDir(), "MS-M9010.md", flatMitigationPage)
	e := newExtractor(t, types.ModeStrict, &fakeDates{})

	m, err := e.Mitigation(context.Background(), path)
	require.NoError(t, err)

	coa := m.Object
	assert.Equal(t, path, m.Path)
	assert.Equal(t, "Restrict exec commands on pods", coa.Name)
	assert.Equal(t, identity.ObjectID(stix.TypeCourseOfAction, "strict", "MS-M9010"), coa.ID)
	assert.Equal(t, []string{"M1038"}, coa.MitreIDs)
	assert.Empty(t, coa.ParentMitigation)
	assert.Equal(t, "Use admission controllers to restrict exec. Another sentence.", coa.Description)
	assert.Equal(t, "https://microsoft.github.io/Threat-Matrix-for-Kubernetes/mitigations/MS-M9010%20Restrict%20exec%20commands%20on%20pods/", coa.ExternalReferences[0].URL)
	assert.Equal(t, []string{"MS-TA9006", "MS-TA9007"}, m.TechniqueIDs)
	assert.NoError(t, stix.Validate(coa))
}

func TestMitigationSentinelSuppressesCrossReferences(t *testing.T) {
	path := writePage(t, t.TempDir(), "child.md", childMitigationPage)
	m, err := newExtractor(t, types.ModeStrict, &fakeDates{}).Mitigation(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, m.Object.MitreIDs)
	assert.Empty(t, m.Object.ParentMitigation)
	assert.Equal(t, []string{"MS-TA9016"}, m.TechniqueIDs)
}

func TestMitigationParentLink(t *testing.T) {
	page := `# Child

pre

ID: MS-M9019.002
Parent: [MS-M9019](../index.md) MITRE mitigation: [M1026](https://attack.mitre.org/mitigations/M1026/)

Body.

| ID |
|----|
| [MS-TA9016](x.md) |
`
	path := writePage(t, t.TempDir(), "child.md", page)
	m, err := newExtractor(t, types.ModeStrict, &fakeDates{}).Mitigation(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "MS-M9019", m.Object.ParentMitigation)
	assert.Equal(t, []string{"M1026"}, m.Object.MitreIDs)
	assert.Equal(t, "https://microsoft.github.io/Threat-Matrix-for-Kubernetes/mitigations/MS-M9019/MS-M9019.002%20Child/", m.Object.ExternalReferences[0].URL)
}

func TestMitigationMalformed(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"no table", "# M\n\npre\n\nID: MS-M9001\n\nBody.\n"},
		{"row without link", "# M\n\npre\n\nID: MS-M9001\n\n| ID |\n|----|\n| plain |\n"},
		{"no title", "pre\n\nID: MS-M9001\n\n| ID |\n|----|\n| [MS-TA9001](x.md) |\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePage(t, t.TempDir(), "m.md", tt.page)
			_, err := newExtractor(t, types.ModeStrict, &fakeDates{}).Mitigation(context.Background(), path)
			assert.ErrorIs(t, err, markdown.ErrMalformed)
		})
	}
}

func TestFolder(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "b.md", childMitigationPage)
	writePage(t, dir, "a.md", flatMitigationPage)
	writePage(t, dir, "notes.txt", "ignored")

	ms, err := newExtractor(t, types.ModeStrict, &fakeDates{}).Folder(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "MS-M9010", ms[0].Object.ExternalID("tmfk"))
	assert.Equal(t, "MS-M9019.001", ms[1].Object.ExternalID("tmfk"))
	assert.Equal(t, filepath.Join(dir, "b.md"), ms[1].Path)
}

func TestListing(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "index.md", "# Index\n")
	writePage(t, dir, "z.md", "# Z\n")
	writePage(t, dir, "a.md", "# A\n")
	writePage(t, dir, "nested/c.md", "# C\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))

	files, err := MarkdownFiles(dir, "index.md")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "z.md")}, files)

	dirs, err := Subdirectories(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "nested")}, dirs)

	_, err = MarkdownFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
