package registry

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
)

// RegistryFile is the file name of the registry document.
const RegistryFile = "registry.json"

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// FileStore keeps the registry in JSON documents under one directory:
//
//	registry.json              {"entries": [...], "stats": {...}}
//	<namespace>.counters.json  {"REG-20261019": 3, ...}
//
// Every write replaces the whole document through a temp file and rename,
// so readers see either the old or the new document, never a torn one.
// Writers are serialized by a mutex; the store assumes it is the only
// process writing to dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type registryDoc struct {
	Entries []Entry `json:"entries"`
	Stats   Stats   `json:"stats"`
}

// NewFileStore opens (creating if needed) a file store in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) registryPath() string {
	return filepath.Join(s.dir, RegistryFile)
}

func (s *FileStore) counterPath(namespace string) string {
	return filepath.Join(s.dir, namespace+".counters.json")
}

func (s *FileStore) Increment(_ context.Context, namespace, key string) (int, error) {
	if !namespacePattern.MatchString(namespace) {
		return 0, fmt.Errorf("%w: namespace %q", ErrInvalid, namespace)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := map[string]int{}
	if err := readJSON(s.counterPath(namespace), &counters); err != nil {
		return 0, err
	}
	if counters == nil {
		counters = map[string]int{}
	}
	counters[key]++
	if err := writeJSON(s.counterPath(namespace), counters); err != nil {
		return 0, err
	}
	return counters[key], nil
}

func (s *FileStore) Insert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range doc.Entries {
		if existing.SubmissionID == e.SubmissionID {
			return fmt.Errorf("%w: %s", ErrDuplicate, e.SubmissionID)
		}
	}
	doc.Entries = append(doc.Entries, e)
	doc.Stats.Add(e)
	return writeJSON(s.registryPath(), doc)
}

func (s *FileStore) Get(_ context.Context, submissionID string) (Entry, error) {
	doc, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range doc.Entries {
		if e.SubmissionID == submissionID {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, submissionID)
}

func (s *FileStore) MarkVerified(_ context.Context, submissionID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	for i := range doc.Entries {
		if doc.Entries[i].SubmissionID == submissionID {
			doc.Entries[i].VerifiedCount++
			if err := writeJSON(s.registryPath(), doc); err != nil {
				return Entry{}, err
			}
			return doc.Entries[i], nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, submissionID)
}

func (s *FileStore) Query(_ context.Context, q Query) ([]Entry, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0)
	for i := len(doc.Entries) - 1; i >= 0; i-- {
		if q.Matches(doc.Entries[i]) {
			out = append(out, doc.Entries[i])
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return cmp.Compare(b.RegisteredAt, a.RegisteredAt)
	})
	if q.Offset >= len(out) {
		return []Entry{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *FileStore) Stats(_ context.Context) (Stats, error) {
	doc, err := s.load()
	if err != nil {
		return Stats{}, err
	}
	return doc.Stats, nil
}

func (s *FileStore) SealCounts(_ context.Context) (int, int, error) {
	doc, err := s.load()
	if err != nil {
		return 0, 0, err
	}
	sealed := 0
	for _, e := range doc.Entries {
		if e.IntegrityHash != "" {
			sealed++
		}
	}
	return len(doc.Entries), sealed, nil
}

func (s *FileStore) load() (registryDoc, error) {
	doc := registryDoc{Stats: NewStats()}
	if err := readJSON(s.registryPath(), &doc); err != nil {
		return registryDoc{}, err
	}
	if doc.Stats.ByLevel == nil || doc.Stats.ByEntity == nil {
		st := NewStats()
		for _, e := range doc.Entries {
			st.Add(e)
		}
		doc.Stats = st
	}
	return doc, nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return nil
}

// writeJSON atomically replaces path with the JSON encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
