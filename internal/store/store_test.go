package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   string `json:"id"`
	Rank int    `json:"rank"`
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	require.NoError(t, WriteJSON(path, row{ID: "a", Rank: 1}))

	var got row
	found, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, row{ID: "a", Rank: 1}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadJSON_Missing(t *testing.T) {
	var got row
	found, err := ReadJSON(filepath.Join(t.TempDir(), "none.json"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadJSON_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	var got row
	_, err := ReadJSON(path, &got)
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "decode", se.Op)
	assert.True(t, IsStorageError(err))
}

func TestAppendAndReadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	require.NoError(t, AppendJSONL(path, row{ID: "a", Rank: 1}))
	require.NoError(t, AppendJSONL(path, row{ID: "b", Rank: 2}, row{ID: "c", Rank: 3}))
	require.NoError(t, AppendJSONL[row](path))

	got, err := ReadJSONL[row](path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)
}

func TestReadJSONL_SkipsTrailingPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	content := "{\"id\":\"a\",\"rank\":1}\n\n{\"id\":\"b\",\"rank\":2}\n{\"id\":\"c\",\"ra"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	got, err := ReadJSONL[row](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].ID)
}

func TestReadJSONLStrict(t *testing.T) {
	dir := t.TempDir()

	trailing := filepath.Join(dir, "trailing.jsonl")
	require.NoError(t, os.WriteFile(trailing, []byte("{\"id\":\"a\",\"rank\":1}\n{\"id\":\"b\",\"ra\n\n"), 0644))
	got, err := ReadJSONLStrict[row](trailing)
	require.NoError(t, err)
	require.Len(t, got, 1)

	middle := filepath.Join(dir, "middle.jsonl")
	require.NoError(t, os.WriteFile(middle, []byte("{\"id\":\"a\",\"rank\":1}\n{\"id\":\"b\",\"ra\n{\"id\":\"c\",\"rank\":3}\n"), 0644))
	got, err = ReadJSONLStrict[row](middle)
	assert.Nil(t, got)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "decode", se.Op)
	assert.Contains(t, se.Error(), "line 2")

	got, err = ReadJSONL[row](middle)
	require.NoError(t, err)
	assert.Len(t, got, 2, "journals keep skipping bad lines")
}

func TestAppendJSONL_AfterPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\",\"rank\":1}\n{\"id\":\"b\",\"ra"), 0644))

	require.NoError(t, AppendJSONL(path, row{ID: "c", Rank: 3}))

	got, err := ReadJSONL[row](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[1].ID)
}

func TestReadJSONL_Missing(t *testing.T) {
	got, err := ReadJSONL[row](filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteJSONL_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.jsonl")
	require.NoError(t, WriteJSONL(path, []row{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, WriteJSONL(path, []row{{ID: "z"}}))

	got, err := ReadJSONL[row](path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "z", got[0].ID)
}
