// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identity derives stable object identifiers from domain strings.
// The same seed always yields the same identifier, so bundles produced from
// unchanged documents can be diffed across runs.
package identity

import (
	"crypto/md5"
	"strings"

	"github.com/google/uuid"
)

// DeriveID returns a UUID built from the MD5 digest of seed, with the
// version 4 and RFC 4122 variant bits forced. A blank seed yields uuid.Nil.
func DeriveID(seed string) uuid.UUID {
	if strings.TrimSpace(seed) == "" {
		return uuid.Nil
	}
	id := uuid.UUID(md5.Sum([]byte(seed)))
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// Seed joins parts into the canonical seed string for objectType.
func Seed(objectType string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	all = append(all, objectType)
	for _, p := range parts {
		all = append(all, strings.TrimSpace(p))
	}
	return strings.Join(all, ":")
}

// ObjectID returns a STIX identifier "<objectType>--<uuid>" for the seed
// composed of objectType and parts. Callers include enough parts to keep
// distinct entities apart (mode, external id).
func ObjectID(objectType string, parts ...string) string {
	return objectType + "--" + DeriveID(Seed(objectType, parts...)).String()
}
