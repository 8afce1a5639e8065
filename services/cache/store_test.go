package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{Text: "first excerpt", Title: "On Divorce", Date: "March 3, 2021", Embedding: []float64{0.1, -0.2, 0.3}},
		{Text: "second excerpt", Title: "March 3, 2021", Date: "March 3, 2021", Embedding: []float64{1, 0, 0.5}},
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "cache.json"))
	chunks := sampleChunks()

	require.NoError(t, store.Save(chunks))
	res := store.Load()

	assert.Equal(t, StatusHit, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, chunks, res.Chunks)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, store.Save(sampleChunks()))

	replacement := sampleChunks()[:1]
	require.NoError(t, store.Save(replacement))

	res := store.Load()
	require.Equal(t, StatusHit, res.Status)
	assert.Equal(t, replacement, res.Chunks)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "cache.json"))
	require.NoError(t, store.Save(sampleChunks()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cache.json", entries[0].Name())
}

func TestFileStore_SaveRejectsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"))

	err := store.Save(nil)

	require.Error(t, err)
	assert.True(t, services.IsCacheError(err))
	assert.ErrorIs(t, err, services.ErrCacheWrite)
	assert.Equal(t, StatusMiss, store.Load().Status)
}

func TestFileStore_Load(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		want    Status
	}{
		{"missing file", nil, StatusMiss},
		{"malformed json", strPtr("{not json"), StatusCorrupt},
		{"wrong shape", strPtr(`{"text":"x"}`), StatusCorrupt},
		{"empty list", strPtr(`[]`), StatusCorrupt},
		{"first entry without embedding", strPtr(`[{"text":"x","title":"t","date":"d"}]`), StatusCorrupt},
		{"first entry with empty embedding", strPtr(`[{"text":"x","title":"t","date":"d","embedding":[]}]`), StatusCorrupt},
		{"valid", strPtr(`[{"text":"x","title":"t","date":"d","embedding":[0.5,0.5]}]`), StatusHit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o644))
			}

			res := NewFileStore(path).Load()

			assert.Equal(t, tt.want, res.Status)
			if tt.want == StatusCorrupt {
				assert.True(t, services.IsCacheError(res.Err))
				assert.ErrorIs(t, res.Err, services.ErrCacheCorrupt)
				assert.Nil(t, res.Chunks)
			}
		})
	}
}

func TestFileStore_Remove(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"))

	assert.NoError(t, store.Remove(), "removing a missing file")

	require.NoError(t, store.Save(sampleChunks()))
	require.NoError(t, store.Remove())
	assert.Equal(t, StatusMiss, store.Load().Status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "hit", StatusHit.String())
	assert.Equal(t, "miss", StatusMiss.String())
	assert.Equal(t, "corrupt", StatusCorrupt.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func strPtr(s string) *string {
	return &s
}
