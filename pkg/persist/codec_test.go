package persist

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Name   string            `json:"name"`
	Count  int               `json:"count"`
	Values map[string]string `json:"values"`
}

func TestJSONCodec_CompactNoIndent(t *testing.T) {
	t.Parallel()

	codec := &JSONCodec{Indent: ""}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, testState{Name: "compact", Count: 1}))

	// json.Encoder appends a single trailing newline.
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestJSONCodec_PrettyPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&buf, testState{Name: "pretty"}))

	assert.Contains(t, buf.String(), "\n"+defaultIndent+`"name"`)
}

func TestJSONCodec_Errors(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()

	var buf bytes.Buffer

	err := codec.Encode(&buf, make(chan int))
	require.ErrorContains(t, err, "json encode")

	var decoded testState

	err = codec.Decode(strings.NewReader("not valid json{{{"), &decoded)
	require.ErrorContains(t, err, "json decode")
}

func TestSaveState_CreatesDirAndLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "state")

	require.NoError(t, SaveState(dir, "snap", NewJSONCodec(), testState{Name: "a", Count: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snap.json", entries[0].Name())

	var loaded testState

	require.NoError(t, LoadState(dir, "snap", NewJSONCodec(), &loaded))
	assert.Equal(t, "a", loaded.Name)
	assert.Equal(t, 2, loaded.Count)
}

func TestSaveState_Overwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := NewJSONCodec()

	require.NoError(t, SaveState(dir, "snap", codec, testState{Name: "first"}))
	require.NoError(t, SaveState(dir, "snap", codec, testState{Name: "second"}))

	var loaded testState

	require.NoError(t, LoadState(dir, "snap", codec, &loaded))
	assert.Equal(t, "second", loaded.Name)
}

func TestSaveState_EncodeFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := NewJSONCodec()

	require.NoError(t, SaveState(dir, "snap", codec, testState{Name: "kept"}))

	err := SaveState(dir, "snap", codec, make(chan int))
	require.Error(t, err)

	var loaded testState

	require.NoError(t, LoadState(dir, "snap", codec, &loaded))
	assert.Equal(t, "kept", loaded.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadState_Missing(t *testing.T) {
	t.Parallel()

	var loaded testState

	err := LoadState(t.TempDir(), "absent", NewJSONCodec(), &loaded)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadState_Corrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snap.json"), []byte("{"), 0o600))

	var loaded testState

	err := LoadState(dir, "snap", NewJSONCodec(), &loaded)
	require.ErrorContains(t, err, "decode state")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestPersister_SaveLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[testState]("typed", NewJSONCodec())

	require.NoError(t, p.Save(dir, &testState{Name: "typed", Values: map[string]string{"k": "v"}}))

	got, err := p.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "typed", got.Name)
	assert.Equal(t, map[string]string{"k": "v"}, got.Values)

	_, err = p.Load(t.TempDir())
	require.ErrorIs(t, err, ErrNotFound)
}
