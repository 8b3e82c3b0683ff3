package mappings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "group_mappings.json")
	s, err := NewStore(file)
	require.NoError(t, err)
	assert.Empty(t, s.Get())

	require.NoError(t, s.Save(map[string]interface{}{"lab-a": "LabA"}))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"lab-a\": \"LabA\"\n}", string(data))

	again, err := NewStore(file)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"lab-a": "LabA"}, again.Get())
}

func TestStoreRejectsBrokenFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "group_mappings.json")
	require.NoError(t, os.WriteFile(file, []byte("{broken"), 0664))
	_, err := NewStore(file)
	assert.Error(t, err)
}

func TestStoreWatchReloads(t *testing.T) {
	file := filepath.Join(t.TempDir(), "group_mappings.json")
	s, err := NewStore(file)
	require.NoError(t, err)
	require.NoError(t, s.Watch(20*time.Millisecond))
	defer s.Close()
	assert.FileExists(t, file)

	// let the first poll record the initial state
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte(`{"lab-b": "LabB", "extra": "x"}`), 0664))

	assert.Eventually(t, func() bool {
		return s.Get()["lab-b"] == "LabB"
	}, 3*time.Second, 20*time.Millisecond)
}
