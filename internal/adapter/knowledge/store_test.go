package knowledge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	writeDataset(t, dir, "startups.json", `[
		{"name": "Acme Robotics", "stage": "seed", "raised": "1.2M"},
		{"name": "Beta Analytics", "stage": "series-a", "raised": "8M"}
	]`)
	writeDataset(t, dir, "events.json", `{"items": [
		{"title": "Demo Day", "date": "2026-03-14"},
		{"title": "Mentor Mixer", "date": "2026-02-01"}
	]}`)
	writeDataset(t, dir, "notes.txt", "ignored, not json")

	store, err := NewStore(dir, discardLogger())
	require.NoError(t, err)
	return store, dir
}

func TestStoreLoadsArrayAndItemsShapes(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Equal(t, []string{"events", "startups"}, store.Datasets())
}

func TestLookupCaseInsensitiveSubstring(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.Lookup(context.Background(), "startups", "ACME")
	require.NoError(t, err)
	assert.True(t, res.Found)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Acme Robotics", res.Items[0]["name"])
	assert.Equal(t, "ACME", res.Metadata["query"])
	assert.NotEmpty(t, res.Metadata["loaded_at"])
}

func TestLookupEmptyDatasetSearchesAll(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.Lookup(context.Background(), "", "demo day")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Demo Day", res.Items[0]["title"])
}

func TestLookupEmptyQueryReturnsEverything(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.Lookup(context.Background(), "startups", "")
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestLookupUnknownDataset(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Lookup(context.Background(), "mentors", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset")
}

func TestLookupNoMatch(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.Lookup(context.Background(), "startups", "zebra")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Items)
}

func TestLookupCapsResults(t *testing.T) {
	dir := t.TempDir()
	var sb []byte
	sb = append(sb, '[')
	for i := 0; i < 40; i++ {
		if i > 0 {
			sb = append(sb, ',')
		}
		sb = append(sb, []byte(`{"name":"widget"}`)...)
	}
	sb = append(sb, ']')
	writeDataset(t, dir, "bulk.json", string(sb))

	store, err := NewStore(dir, discardLogger())
	require.NoError(t, err)

	res, err := store.Lookup(context.Background(), "bulk", "widget")
	require.NoError(t, err)
	assert.Len(t, res.Items, maxItems)
}

func TestReloadPicksUpNewDatasets(t *testing.T) {
	store, dir := newTestStore(t)

	writeDataset(t, dir, "mentors.json", `[{"name": "Jordan Lee", "focus": "go-to-market"}]`)
	require.NoError(t, store.Reload(context.Background()))

	res, err := store.Lookup(context.Background(), "mentors", "jordan")
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestReloadFailureKeepsStore(t *testing.T) {
	store, dir := newTestStore(t)

	writeDataset(t, dir, "broken.json", `{not json`)
	require.Error(t, store.Reload(context.Background()))

	// Previous cache is still served.
	res, err := store.Lookup(context.Background(), "startups", "acme")
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestNewStoreMissingDir(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "absent"), discardLogger())
	assert.Error(t, err)
}
