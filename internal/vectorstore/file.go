package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docfoundry/docfoundry/internal/fsutil"
)

// FileStore persists one JSON file per record under a directory. Suited
// to offline runs and environments without a broker.
type FileStore struct {
	dir string
}

// NewFileStore creates a filesystem-backed vector store, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector store directory; %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(documentID string) string {
	return filepath.Join(s.dir, documentID+".json")
}

// Upsert writes each record to its own file via temp-and-rename.
func (s *FileStore) Upsert(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal record %s; %w", rec.DocumentID, err)
		}
		if err := fsutil.AtomicWriteFile(s.path(rec.DocumentID), data, 0644); err != nil {
			return fmt.Errorf("failed to write record %s; %w", rec.DocumentID, err)
		}
	}
	return nil
}

// Get returns the record stored under a composite document id.
func (s *FileStore) Get(ctx context.Context, documentID string) (*Record, error) {
	data, err := os.ReadFile(s.path(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read record %s; %w", documentID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s; %w", documentID, err)
	}
	return &rec, nil
}

// SearchSimilar linearly scans every record file in the directory.
func (s *FileStore) SearchSimilar(ctx context.Context, query []float32, topK int, threshold float64) ([]SearchResult, error) {
	records, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return rankRecords(records, query, topK, threshold), nil
}

// Count returns the number of stored records.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read vector store directory; %w", err)
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			count++
		}
	}
	return count, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) loadAll(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector store directory; %w", err)
	}

	var records []Record
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read record file %s; %w", e.Name(), err)
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record file %s; %w", e.Name(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}
