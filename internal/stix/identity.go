// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stix

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CreatorID is the identifier of the built-in creator identity.
const CreatorID = "identity--5dcf0a7a-875b-470b-8a01-7c6a84c5e68e"

var creatorStamp = time.Date(2024, time.February, 5, 14, 0, 0, 188_000_000, time.UTC)

// DefaultIdentity returns the built-in creator organisation tagged with
// domain. version and attackSpecVersion fill the x_mitre version fields.
func DefaultIdentity(domain, version, attackSpecVersion string) *Identity {
	return &Identity{
		Common: Common{
			Type:              TypeIdentity,
			SpecVersion:       SpecVersion,
			ID:                CreatorID,
			Created:           NewTimestamp(creatorStamp),
			Modified:          NewTimestamp(creatorStamp),
			Domains:           []string{domain},
			Version:           version,
			AttackSpecVersion: attackSpecVersion,
		},
		Name:          "aw350m33d (Security Experts Community)",
		IdentityClass: "organization",
	}
}

// LoadIdentity reads a creator identity from a JSON file. The object must be
// of type identity and pass validation.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity %s: %w", path, err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("decoding identity %s: %w", path, err)
	}
	if id.Type != TypeIdentity {
		return nil, fmt.Errorf("%w: %s: type %q, want %q", ErrInvalidObject, path, id.Type, TypeIdentity)
	}
	if err := Validate(&id); err != nil {
		return nil, fmt.Errorf("identity %s: %w", path, err)
	}
	return &id, nil
}
