// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stix defines the STIX 2.1 records (with MITRE ATT&CK extensions)
// that make up a matrix bundle, and validates them before serialization.
package stix

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Object types produced in a bundle.
const (
	TypeIdentity       = "identity"
	TypeTactic         = "x-mitre-tactic"
	TypeTechnique      = "attack-pattern"
	TypeCourseOfAction = "course-of-action"
	TypeRelationship   = "relationship"
	TypeMatrix         = "x-mitre-matrix"
	TypeCollection     = "x-mitre-collection"
	TypeBundle         = "bundle"
)

// SpecVersion is the STIX version written on every object.
const SpecVersion = "2.1"

// RelationshipMitigates is the relationship type from a mitigation to a technique.
const RelationshipMitigates = "mitigates"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a STIX timestamp, serialized in UTC with millisecond precision.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t. The zero time yields nil so the field is omitted.
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) String() string {
	return t.UTC().Format(timestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing STIX timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// ExternalReference points at the source of an object.
type ExternalReference struct {
	SourceName string `json:"source_name" validate:"required"`
	URL        string `json:"url,omitempty" validate:"omitempty,url"`
	ExternalID string `json:"external_id,omitempty"`
}

// KillChainPhase associates a technique with a tactic.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name" validate:"required"`
	PhaseName     string `json:"phase_name" validate:"required"`
}

// Common holds the properties shared by every object in a bundle.
type Common struct {
	Type               string              `json:"type" validate:"required"`
	SpecVersion        string              `json:"spec_version" validate:"eq=2.1"`
	ID                 string              `json:"id" validate:"required,stixid"`
	Created            *Timestamp          `json:"created,omitempty"`
	Modified           *Timestamp          `json:"modified,omitempty"`
	CreatedByRef       string              `json:"created_by_ref,omitempty" validate:"omitempty,stixid,stixref=identity"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty" validate:"dive"`
	Domains            []string            `json:"x_mitre_domains,omitempty"`
	Version            string              `json:"x_mitre_version,omitempty"`
	AttackSpecVersion  string              `json:"x_mitre_attack_spec_version,omitempty"`
	ModifiedByRef      string              `json:"x_mitre_modified_by_ref,omitempty" validate:"omitempty,stixid,stixref=identity"`
}

// Meta returns the shared properties. Every bundle object implements Object
// through it.
func (c *Common) Meta() *Common { return c }

// ExternalID returns the external_id of the first reference whose source
// name is source, or "" when there is none.
func (c *Common) ExternalID(source string) string {
	for _, ref := range c.ExternalReferences {
		if ref.ExternalID != "" && ref.SourceName == source {
			return ref.ExternalID
		}
	}
	return ""
}

// Object is any record that can be placed in a bundle.
type Object interface {
	Meta() *Common
}

// Identity is the organisation credited as creator of the bundle content.
type Identity struct {
	Common
	Name          string `json:"name" validate:"required"`
	IdentityClass string `json:"identity_class,omitempty"`
}

// Tactic is an adversary goal (x-mitre-tactic).
type Tactic struct {
	Common
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	ShortName   string `json:"x_mitre_shortname" validate:"required"`
}

// Technique is a method used to achieve a tactic (attack-pattern).
type Technique struct {
	Common
	Name            string           `json:"name" validate:"required"`
	Description     string           `json:"description,omitempty"`
	KillChainPhases []KillChainPhase `json:"kill_chain_phases,omitempty" validate:"dive"`
	IsSubtechnique  bool             `json:"x_mitre_is_subtechnique"`
	Platforms       []string         `json:"x_mitre_platforms,omitempty"`
	MitreIDs        []string         `json:"x_mitre_ids,omitempty"`
}

// CourseOfAction is a mitigation.
type CourseOfAction struct {
	Common
	Name             string   `json:"name" validate:"required"`
	Description      string   `json:"description,omitempty"`
	MitreIDs         []string `json:"x_mitre_ids,omitempty"`
	ParentMitigation string   `json:"x_mitre_parent_mitigation,omitempty"`
}

// Relationship is a directed edge between two objects.
type Relationship struct {
	Common
	RelationshipType string `json:"relationship_type" validate:"required"`
	Description      string `json:"description,omitempty"`
	SourceRef        string `json:"source_ref" validate:"required,stixid,stixrefnot=bundle language-content marking-definition relationship sighting"`
	TargetRef        string `json:"target_ref" validate:"required,stixid,stixrefnot=bundle language-content marking-definition relationship sighting"`
}

// Matrix lists the tactics of the matrix in order.
type Matrix struct {
	Common
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	TacticRefs  []string `json:"tactic_refs" validate:"required,min=1,dive,stixid,stixref=x-mitre-tactic"`
}

// ObjectRef is one entry of a collection manifest.
type ObjectRef struct {
	ObjectRef      string     `json:"object_ref" validate:"required,stixid"`
	ObjectModified *Timestamp `json:"object_modified" validate:"required"`
}

// Collection is the manifest of every object in the bundle.
type Collection struct {
	Common
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description,omitempty"`
	Contents    []ObjectRef `json:"x_mitre_contents" validate:"dive"`
}

// Bundle is the serialized top-level container.
type Bundle struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	Objects []Object `json:"objects"`
}

// Marshal serializes the bundle with four-space indentation and a trailing
// newline.
func (b *Bundle) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshaling bundle: %w", err)
	}
	return append(data, '\n'), nil
}

// FirstSentence returns s up to, not including, the first period.
func FirstSentence(s string) string {
	before, _, _ := strings.Cut(s, ".")
	return before
}
