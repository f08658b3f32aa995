package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

func TestPermissionChanges(t *testing.T) {
	before := targetRecord().Permissions
	assert.Nil(t, PermissionChanges(before, before.Clone()))

	after := permissions.MustToggle(before, []string{"cotas", "cotas"}, permissions.Edit)
	after["extra"] = &permissions.Node{Access: true}

	changes := PermissionChanges(before, after)
	require.NotNil(t, changes)
	assert.Equal(t, map[string]interface{}{
		"cotas/cotas": flags{Access: true},
	}, changes.Before)
	assert.Equal(t, map[string]interface{}{
		"cotas/cotas": flags{Access: true, Edit: true},
		"extra":       flags{Access: true},
	}, changes.After)
}

func TestFundAccessChanges(t *testing.T) {
	before := targetRecord().FundAccess
	assert.Nil(t, FundAccessChanges(before, before.Clone()))

	after, err := funds.ToggleClass(before, "Alpha", "Senior")
	require.NoError(t, err)
	delete(after["Alpha"].Classes, "Mezanino")

	changes := FundAccessChanges(before, after)
	require.NotNil(t, changes)
	assert.Equal(t, map[string]interface{}{
		"Alpha/Senior":   flags{Access: true},
		"Alpha/Mezanino": flags{Access: false},
	}, changes.Before)
	assert.Equal(t, map[string]interface{}{
		"Alpha/Senior": flags{Access: false},
	}, changes.After)
}
