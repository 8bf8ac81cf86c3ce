package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleGrant_Normalize(t *testing.T) {
	tests := []struct {
		name                       string
		level                      AccessLevel
		view, create, edit, delete bool
	}{
		{"read", LevelRead, true, false, false, false},
		{"write", LevelWrite, true, true, true, false},
		{"full", LevelFull, true, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Start from the opposite of the expected flags.
			g := RoleGrant{
				Level:     tt.level,
				CanView:   !tt.view,
				CanCreate: !tt.create,
				CanEdit:   !tt.edit,
				CanDelete: !tt.delete,
			}
			g.Normalize()
			assert.Equal(t, tt.view, g.CanView)
			assert.Equal(t, tt.create, g.CanCreate)
			assert.Equal(t, tt.edit, g.CanEdit)
			assert.Equal(t, tt.delete, g.CanDelete)
		})
	}
}

func TestRoleGrant_NormalizeLeavesExport(t *testing.T) {
	g := RoleGrant{Level: LevelFull}
	g.Normalize()
	assert.False(t, g.CanExport)

	g = RoleGrant{Level: LevelRead, CanExport: true}
	g.Normalize()
	assert.True(t, g.CanExport)
}

func TestRoleGrant_Capability(t *testing.T) {
	g := RoleGrant{Level: LevelWrite}
	g.Normalize()
	assert.Equal(t, CapabilityAllow, g.Capability(ActionEdit))
	assert.Equal(t, CapabilityUnset, g.Capability(ActionDelete))
	assert.Equal(t, CapabilityUnset, g.Capability(ActionExport))
	assert.Equal(t, CapabilityUnset, g.Capability(Action("approve")))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("export")
	assert.NoError(t, err)
	assert.Equal(t, ActionExport, a)

	_, err = ParseAction("VIEW")
	assert.Error(t, err)
}

func TestTruncateUserAgent(t *testing.T) {
	assert.Equal(t, "curl/8.0", TruncateUserAgent("curl/8.0"))

	long := strings.Repeat("a", 499) + "é" + "tail"
	got := TruncateUserAgent(long)
	assert.LessOrEqual(t, len(got), MaxUserAgentLen)
	assert.Equal(t, strings.Repeat("a", 499), got)
}
