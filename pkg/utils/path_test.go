package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStorePath_Sanitizes(t *testing.T) {
	p := InstanceStorePath("storages", "wa1/../x y")
	assert.Equal(t, filepath.Join("storages", "whatsapp-wa1____x_y.db"), p)
}

func TestCreateFolder_SkipsBlank(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b")
	require.NoError(t, CreateFolder("", target))
	assert.DirExists(t, target)
}

func TestGetPersistentServerID_Override(t *testing.T) {
	assert.Equal(t, "srv-1", GetPersistentServerID("srv-1", t.TempDir()))
}

func TestGetPersistentServerID_GeneratesOnceAndReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "storages")

	first := GetPersistentServerID("", dir)
	assert.True(t, strings.HasPrefix(first, "wa-sales-"))
	assert.FileExists(t, filepath.Join(dir, ".server_id"))

	assert.Equal(t, first, GetPersistentServerID("", dir))
	assert.Equal(t, "srv-2", GetPersistentServerID("  srv-2 ", dir))
}

func TestGetPersistentServerID_ReadsStoredID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".server_id"), []byte("node-a\n"), 0644))
	assert.Equal(t, "node-a", GetPersistentServerID("", dir))
}
