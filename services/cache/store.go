// Package cache persists embedded chunks as a single JSON artifact so the
// corpus is embedded once per cache lifetime rather than once per process.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
)

// Status classifies the outcome of loading the cache file.
type Status int

const (
	// StatusMiss means there is no cache file.
	StatusMiss Status = iota
	// StatusHit means the file held a usable chunk list.
	StatusHit
	// StatusCorrupt means the file exists but cannot be used.
	StatusCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadResult is returned by Load. Chunks is set only on a hit; Err explains a
// corrupt result.
type LoadResult struct {
	Status Status
	Chunks []models.Chunk
	Err    error
}

// Store is the persistence contract used by the retrieval service.
type Store interface {
	Load() LoadResult
	Save(chunks []models.Chunk) error
	Remove() error
	Path() string
}

// Ensure FileStore implements the interface.
var _ Store = (*FileStore)(nil)

// FileStore keeps the cache in one JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store rooted at path. No I/O happens until Load or Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load never fails: unreadable or structurally invalid files come back as
// StatusCorrupt so the caller can rebuild.
func (s *FileStore) Load() LoadResult {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadResult{Status: StatusMiss}
	}
	if err != nil {
		return corrupt("read cache file", err)
	}

	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return corrupt("decode cache file", err)
	}
	if len(chunks) == 0 {
		return corrupt("cache file holds no chunks", nil)
	}
	if !chunks[0].HasEmbedding() {
		return corrupt("first cached chunk has no embedding", nil)
	}

	return LoadResult{Status: StatusHit, Chunks: chunks}
}

// Save replaces the cache file with chunks. The file is written to a
// temporary sibling and renamed so readers never observe a partial write.
func (s *FileStore) Save(chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return services.ErrCacheWrite.Wrap(errors.New("refusing to save an empty cache"))
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError("create cache directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return writeError("create temporary cache file", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := json.NewEncoder(tmp).Encode(chunks); err != nil {
		_ = tmp.Close()
		return writeError("encode cache", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return writeError("flush cache", err)
	}
	if err := tmp.Close(); err != nil {
		return writeError("close cache", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return writeError("replace cache file", err)
	}

	committed = true
	return nil
}

// Remove deletes the cache file. A missing file is not an error.
func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return writeError("remove cache file", err)
	}
	return nil
}

func corrupt(reason string, err error) LoadResult {
	cause := errors.New(reason)
	if err != nil {
		cause = fmt.Errorf("%s: %w", reason, err)
	}
	return LoadResult{
		Status: StatusCorrupt,
		Err:    services.ErrCacheCorrupt.Wrap(cause),
	}
}

func writeError(step string, err error) error {
	return services.ErrCacheWrite.Wrap(fmt.Errorf("%s: %w", step, err))
}
