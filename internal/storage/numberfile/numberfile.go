// Package numberfile keeps the saved tracking numbers in a small JSON file
// ({"tracking_numbers": [...]}), for the CLI and single-node setups.
package numberfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const FileName = "saved_numbers.json"

type savedData struct {
	TrackingNumbers []string `json:"tracking_numbers"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

// DefaultPath is <user config dir>/trackbatch/saved_numbers.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "user config dir")
	}
	return filepath.Join(dir, "trackbatch", FileName), nil
}

// New opens the store, creating the file with an empty list when missing.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	s := &Store{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "stat numbers file")
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save replaces the whole list.
func (s *Store) Save(ctx context.Context, numbers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(numbers)
}

// Add appends numbers that are not stored yet and returns the ones actually added.
func (s *Store) Add(ctx context.Context, numbers []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(cur)+len(numbers))
	for _, n := range cur {
		seen[n] = struct{}{}
	}
	added := make([]string, 0, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		added = append(added, n)
	}
	if len(added) == 0 {
		return added, nil
	}
	if err := s.write(append(cur, added...)); err != nil {
		return nil, err
	}
	return added, nil
}

// Remove deletes number; false when it was not stored.
func (s *Store) Remove(ctx context.Context, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read()
	if err != nil {
		return false, err
	}
	out := cur[:0]
	found := false
	for _, n := range cur {
		if n == number {
			found = true
			continue
		}
		out = append(out, n)
	}
	if !found {
		return false, nil
	}
	return true, s.write(out)
}

func (s *Store) read() ([]string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "read numbers file")
	}
	var d savedData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "decode numbers file")
	}
	if d.TrackingNumbers == nil {
		d.TrackingNumbers = []string{}
	}
	return d.TrackingNumbers, nil
}

// write goes through a temp file so a crash never leaves half a file behind.
func (s *Store) write(numbers []string) error {
	if numbers == nil {
		numbers = []string{}
	}
	b, err := json.Marshal(savedData{TrackingNumbers: numbers})
	if err != nil {
		return errors.Wrap(err, "encode numbers file")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "write numbers file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replace numbers file")
}
