package cookies

import (
	"encoding/json"
	"os"

	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Save writes the live entries to path as JSON. Expired entries are skipped.
func (s *Store) Save(fsys filesystem.FileSystem, path string) error {
	if fsys == nil {
		fsys = filesystem.Default
	}

	now := s.now()
	s.mu.Lock()
	snapshot := make([]Cookie, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Expired(now) {
			snapshot = append(snapshot, e)
		}
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal cookies")
	}
	if err := filesystem.WriteFileAtomic(fsys, path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write cookies file")
	}
	return nil
}

// Load replaces the store contents with the entries saved at path.
// A missing file leaves the store empty and is not an error.
func (s *Store) Load(fsys filesystem.FileSystem, path string) error {
	if fsys == nil {
		fsys = filesystem.Default
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read cookies file")
	}

	var loaded []Cookie
	if err := json.Unmarshal(data, &loaded); err != nil {
		return errors.Wrap(err, "failed to parse cookies file")
	}

	now := s.now()
	live := loaded[:0]
	for _, c := range loaded {
		if !c.Expired(now) && c.Name != "" {
			live = append(live, c)
		}
	}

	s.mu.Lock()
	s.entries = live
	s.mu.Unlock()
	return nil
}
