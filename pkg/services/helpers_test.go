package services

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/dukex/flowmirror/pkg/backup"
	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newFilePersistence(t *testing.T) *file.Persistence {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p
}

func newStore(t *testing.T) *backup.Store {
	t.Helper()

	store, err := backup.NewStore(discardLogger(), t.TempDir(), backup.DefaultGenerations)
	require.NoError(t, err)

	return store
}

func detail(t *testing.T, id, name, version string, tags ...string) *engine.WorkflowDetail {
	t.Helper()

	d := &engine.WorkflowDetail{ID: id, Name: name, Active: true, VersionID: version}
	for _, tag := range tags {
		d.Tags = append(d.Tags, engine.Tag{Name: tag})
	}

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	d.Raw = raw

	return d
}
