// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the naming scheme of the produced bundle.
type Mode string

const (
	// ModeStrict tags every object with the matrix's own domain and source.
	ModeStrict Mode = "strict"
	// ModeAttackCompatible tags objects so ATT&CK tooling loads them as enterprise content.
	ModeAttackCompatible Mode = "attack_compatible"
)

// Modes lists every supported mode in run order.
var Modes = []Mode{ModeStrict, ModeAttackCompatible}

// ErrUnknownMode is returned for a mode outside Modes.
var ErrUnknownMode = errors.New("unexpected mode")

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w %q: use strict or attack_compatible", ErrUnknownMode, s)
}

// Profile carries the mode-dependent names used across one run. It is built
// once by NewProfile and passed explicitly to every stage.
type Profile struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// Domain is written to x_mitre_domains.
	Domain string `json:"domain" yaml:"domain"`

	// SourceName is the external reference source_name identifying our ids.
	SourceName string `json:"source_name" yaml:"source_name"`

	// KillChainName names the kill chain of technique phases.
	KillChainName string `json:"kill_chain_name" yaml:"kill_chain_name"`
}

// NewProfile returns the profile for m.
func NewProfile(m Mode) (Profile, error) {
	switch m {
	case ModeStrict:
		return Profile{Mode: m, Domain: "tmfk", SourceName: "tmfk", KillChainName: "tmfk"}, nil
	case ModeAttackCompatible:
		return Profile{Mode: m, Domain: "enterprise-attack", SourceName: "mitre-attack", KillChainName: "mitre-attack"}, nil
	default:
		return Profile{}, fmt.Errorf("%w %q", ErrUnknownMode, m)
	}
}
