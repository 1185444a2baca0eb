package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(slog.New(slog.DiscardHandler), t.TempDir(), 3)
	require.NoError(t, err)

	return store
}

func doc(id string, version int) []byte {
	return fmt.Appendf(nil, `{"id":%q,"name":"Daily Digest","versionId":"v%d","nodes":[]}`, id, version)
}

func readCanonical(t *testing.T, data []byte) string {
	t.Helper()

	out, err := Canonical(data)
	require.NoError(t, err)

	return string(out)
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"Daily Digest":      "daily_digest",
		"Todo-Intake v2!":   "todo_intake_v2_",
		"ÇalışmaAkışı":      "_al__maak___",
		"already_safe_name": "already_safe_name",
		"":                  "workflow",
		"   ":               "workflow",
		"!!!":               "workflow",
	}

	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
}

func TestCanonical_StableOutput(t *testing.T) {
	a, err := Canonical([]byte(`{"b":1,"a":{"x":1.50,"url":"http://x?a=1&b=2"}}`))
	require.NoError(t, err)

	b, err := Canonical([]byte("{\n\"a\": {\"url\":\"http://x?a=1&b=2\", \"x\": 1.50}, \"b\": 1}"))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), "1.50")
	assert.Contains(t, string(a), "a=1&b=2")

	_, err = Canonical([]byte("not json"))
	require.Error(t, err)
}

func TestStore_Save_FirstWriteDoesNotRotate(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Save("daily_digest", doc("1", 1))
	require.NoError(t, err)

	assert.Equal(t, "daily_digest.json", result.File)
	assert.False(t, result.Rotated)
	assert.False(t, result.Unchanged)

	gens, err := store.Generations("daily_digest")
	require.NoError(t, err)
	assert.Empty(t, gens)

	info, err := os.Stat(store.CurrentPath("daily_digest"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestStore_Save_UnchangedContentKeepsHistory(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("daily_digest", doc("1", 1))
	require.NoError(t, err)

	before, err := os.ReadFile(store.CurrentPath("daily_digest"))
	require.NoError(t, err)

	// Same document, different formatting.
	result, err := store.Save("daily_digest", []byte(`{ "nodes": [], "versionId": "v1", "name": "Daily Digest", "id": "1" }`))
	require.NoError(t, err)
	assert.True(t, result.Unchanged)
	assert.False(t, result.Rotated)

	after, err := os.ReadFile(store.CurrentPath("daily_digest"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	gens, err := store.Generations("daily_digest")
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestStore_Rotate_BoundsGenerations(t *testing.T) {
	store := newTestStore(t)

	for version := 1; version <= 4; version++ {
		_, err := store.Save("daily_digest", doc("1", version))
		require.NoError(t, err)
	}

	gens, err := store.Generations("daily_digest")
	require.NoError(t, err)
	require.Len(t, gens, 3)

	// v1..v3 now hold versions 3, 2, 1.
	oldest, err := os.ReadFile(gens[2].Path)
	require.NoError(t, err)
	assert.Equal(t, readCanonical(t, doc("1", 1)), string(oldest))

	_, err = store.Save("daily_digest", doc("1", 5))
	require.NoError(t, err)

	gens, err = store.Generations("daily_digest")
	require.NoError(t, err)
	require.Len(t, gens, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{gens[0].Number, gens[1].Number, gens[2].Number})

	oldest, err = os.ReadFile(gens[2].Path)
	require.NoError(t, err)
	assert.Equal(t, readCanonical(t, doc("1", 2)), string(oldest), "oldest pre-existing generation is gone")
}

func TestStore_Rotate_V1IsPreviousCurrent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("daily_digest", doc("1", 0))
	require.NoError(t, err)

	for version := 1; version <= 6; version++ {
		previous, err := os.ReadFile(store.CurrentPath("daily_digest"))
		require.NoError(t, err)

		result, err := store.Save("daily_digest", doc("1", version))
		require.NoError(t, err)
		assert.True(t, result.Rotated)

		v1, err := os.ReadFile(filepath.Join(store.Dir(), "versions", "daily_digest", "daily_digest.v1.json"))
		require.NoError(t, err)
		assert.Equal(t, previous, v1)

		gens, err := store.Generations("daily_digest")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(gens), 3)
	}
}

func TestStore_Rotate_CompactsGaps(t *testing.T) {
	store := newTestStore(t)

	dir := filepath.Join(store.Dir(), "versions", "daily_digest")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	for _, n := range []int{1, 4, 7, 9} {
		name := filepath.Join(dir, fmt.Sprintf("daily_digest.v%d.json", n))
		require.NoError(t, os.WriteFile(name, fmt.Appendf(nil, `{"n":%d}`, n), 0o600))
	}

	require.NoError(t, os.WriteFile(store.CurrentPath("daily_digest"), []byte(`{"n":0}`), 0o600))

	require.NoError(t, store.Rotate("daily_digest"))

	gens, err := store.Generations("daily_digest")
	require.NoError(t, err)
	require.Len(t, gens, 3)

	contents := make([]string, 0, len(gens))
	for _, gen := range gens {
		data, err := os.ReadFile(gen.Path)
		require.NoError(t, err)

		contents = append(contents, string(data))
	}

	assert.Equal(t, []string{`{"n":0}`, `{"n":1}`, `{"n":4}`}, contents)

	_, err = os.Stat(store.CurrentPath("daily_digest"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_Owner(t *testing.T) {
	store := newTestStore(t)

	owner, err := store.Owner("daily_digest")
	require.NoError(t, err)
	assert.Empty(t, owner)

	_, err = store.Save("daily_digest", doc("wf-7", 1))
	require.NoError(t, err)

	owner, err = store.Owner("daily_digest")
	require.NoError(t, err)
	assert.Equal(t, "wf-7", owner)
}

func TestStore_RejectsUnsafeBase(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("../escape", doc("1", 1))
	require.ErrorIs(t, err, ErrInvalidBaseName)

	require.ErrorIs(t, store.Rotate(""), ErrInvalidBaseName)
}

func TestStore_CurrentFiles(t *testing.T) {
	store := newTestStore(t)

	for _, base := range []string{"zeta", "alpha", "mid"} {
		_, err := store.Save(base, doc(base, 1))
		require.NoError(t, err)
	}

	bases, err := store.CurrentFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, bases)
}

func TestStore_RebuildArchive(t *testing.T) {
	store := newTestStore(t)

	for version := 1; version <= 3; version++ {
		_, err := store.Save("daily_digest", doc("1", version))
		require.NoError(t, err)

		_, err = store.Save("todo_intake", doc("2", version))
		require.NoError(t, err)
	}

	count, err := store.RebuildArchive()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	reader, err := zip.OpenReader(store.ArchivePath())
	require.NoError(t, err)

	t.Cleanup(func() { _ = reader.Close() })

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}

	assert.Equal(t, []string{
		"daily_digest/daily_digest.v1.json",
		"daily_digest/daily_digest.v2.json",
		"todo_intake/todo_intake.v1.json",
		"todo_intake/todo_intake.v2.json",
	}, names)
}

func TestStore_RebuildArchive_Empty(t *testing.T) {
	store := newTestStore(t)

	count, err := store.RebuildArchive()
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = os.Stat(store.ArchivePath())
	require.NoError(t, err)
}
