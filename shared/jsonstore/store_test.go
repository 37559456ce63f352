package jsonstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_LoadCreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "raw.json")

	store := New(path, []map[string]any{}, nil)
	data, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, data)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(payload))
}

func TestFile_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.json")

	store := New(path, map[string][]any{}, nil)
	want := map[string][]any{
		"Boston":  {42.36, -71.05, "Boston, MA"},
		"Remote":  {"remote", "remote", "remote"},
		"Seattle": {47.6, -122.3, "Seattle, WA"},
	}
	require.NoError(t, store.Save(want))
	assert.Equal(t, want, store.Data())

	got, err := New(path, map[string][]any{}, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFile_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parsed.json")

	store := New(path, []int{}, nil)
	require.NoError(t, store.Save([]int{1, 2, 3}))
	require.NoError(t, store.Save([]int{4}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "parsed.json", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFile_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(path, []int{}, nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestFile_StartAutoSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	store := New(path, map[string]int{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := store.StartAutoSave(ctx, 10*time.Millisecond, func() map[string]int {
		return map[string]int{"hits": 7}
	})

	require.Eventually(t, func() bool {
		payload, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		var got map[string]int
		return json.Unmarshal(payload, &got) == nil && got["hits"] == 7
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("autosave loop did not stop")
	}
}
