// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "strict", want: ModeStrict},
		{in: "attack_compatible", want: ModeAttackCompatible},
		{in: "  Strict ", want: ModeStrict},
		{in: "attack", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownMode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewProfile(t *testing.T) {
	strict, err := NewProfile(ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, "tmfk", strict.Domain)
	assert.Equal(t, "tmfk", strict.SourceName)
	assert.Equal(t, "tmfk", strict.KillChainName)

	compat, err := NewProfile(ModeAttackCompatible)
	require.NoError(t, err)
	assert.Equal(t, "enterprise-attack", compat.Domain)
	assert.Equal(t, "mitre-attack", compat.SourceName)
	assert.Equal(t, "mitre-attack", compat.KillChainName)

	_, err = NewProfile(Mode("bogus"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestDefaultBuildConfig(t *testing.T) {
	cfg := DefaultBuildConfig()
	require.Len(t, cfg.Corpus.Tactics, 10)
	assert.Equal(t, TacticDef{Key: "InitialAccess", ID: "MS-T0100"}, cfg.Corpus.Tactics[0])
	assert.Equal(t, TacticDef{Key: "Impact", ID: "MS-T1000"}, cfg.Corpus.Tactics[9])

	// The table is copied so callers can edit it freely.
	cfg.Corpus.Tactics[0].ID = "changed"
	assert.Equal(t, "MS-T0100", DefaultTactics[0].ID)
}
