package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpScriptsOrdered(t *testing.T) {
	scripts, err := UpScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "20250101000000_create_kv_items", scripts[0].Name)
	assert.Equal(t, "20250102000000_create_login_states", scripts[1].Name)
	for _, s := range scripts {
		assert.True(t, strings.Contains(s.SQL, "IF NOT EXISTS"), s.Name)
	}
}

func TestBunRegistryDiscovered(t *testing.T) {
	assert.Len(t, Migrations.Sorted(), 2)
}
