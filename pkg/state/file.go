package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Sternrassler/tap-loopreturns/pkg/window"
	"github.com/rs/zerolog"
)

// Document is the Singer state document:
//
//	{"bookmarks": {"returns": {"replication_key_value": "..."}}}
type Document struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

// ReadDocument decodes a Singer state document.
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &Document{Bookmarks: map[string]Bookmark{}}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidBookmark, err)
	}
	if doc.Bookmarks == nil {
		doc.Bookmarks = map[string]Bookmark{}
	}
	return &doc, nil
}

// Seed copies the bookmarks of doc into store. A bookmark older than the one
// already stored is skipped, so seeding never moves a cursor backwards. The
// returned document holds the bookmarks in effect after seeding.
func Seed(ctx context.Context, store Store, doc *Document, logger zerolog.Logger) (*Document, error) {
	effective := &Document{Bookmarks: make(map[string]Bookmark, len(doc.Bookmarks))}

	for stream, bookmark := range doc.Bookmarks {
		seeded, err := window.ParseTimestamp(bookmark.ReplicationKeyValue)
		if err != nil {
			return nil, fmt.Errorf("%w: seed for %s: %v", ErrInvalidBookmark, stream, err)
		}

		current, err := store.Load(ctx, stream)
		switch {
		case err == nil:
			stored, err := window.ParseTimestamp(current.ReplicationKeyValue)
			if err != nil {
				return nil, fmt.Errorf("%w: stream %s: %v", ErrInvalidBookmark, stream, err)
			}
			if seeded.Before(stored) {
				logger.Warn().
					Str("stream", stream).
					Str("seed", bookmark.ReplicationKeyValue).
					Str("cursor", current.ReplicationKeyValue).
					Msg("Ignoring seed older than persisted cursor")
				effective.Bookmarks[stream] = current
				continue
			}
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("load state for %s: %w", stream, err)
		}

		if err := store.Save(ctx, stream, bookmark); err != nil {
			return nil, fmt.Errorf("seed bookmark for %s: %w", stream, err)
		}
		effective.Bookmarks[stream] = bookmark
	}
	return effective, nil
}

// FileStore keeps all bookmarks in a single JSON state document on disk.
// Every Save rewrites the document through a temporary file and rename, so a
// crash leaves either the old or the new document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (*Document, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Bookmarks: map[string]Bookmark{}}, nil
		}
		return nil, err
	}
	defer f.Close()

	return ReadDocument(f)
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, stream string) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		StateErrors.WithLabelValues(BackendFile, "load").Inc()
		return Bookmark{}, fmt.Errorf("read state file: %w", err)
	}

	b, ok := doc.Bookmarks[stream]
	if !ok {
		StateLoads.WithLabelValues(BackendFile, "miss").Inc()
		return Bookmark{}, ErrNotFound
	}
	StateLoads.WithLabelValues(BackendFile, "hit").Inc()
	return b, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, stream string, bookmark Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(stream, bookmark); err != nil {
		StateErrors.WithLabelValues(BackendFile, "save").Inc()
		return err
	}
	StateSaves.WithLabelValues(BackendFile).Inc()
	return nil
}

func (s *FileStore) save(stream string, bookmark Bookmark) error {
	doc, err := s.read()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	doc.Bookmarks[stream] = bookmark

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
