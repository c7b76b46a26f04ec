// Package settings persists the last-selected target device between runs.
package settings

import (
	"os"

	"github.com/bluelock/agent/pkg/file"
)

// Selection pins the device the monitor watches.
type Selection struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// StoreInterface defines methods for loading and saving the selection.
type StoreInterface interface {
	Load() error
	Get() Selection
	Save(sel Selection) error
}

// Store keeps the selection in a small JSON file, read once at startup
// and rewritten whenever a device is picked.
type Store struct {
	path      string
	fileOps   file.FileOperations
	selection Selection
}

// NewStore initializes a Store backed by the given file path.
func NewStore(path string, fileOps file.FileOperations) StoreInterface {
	return &Store{
		path:    path,
		fileOps: fileOps,
	}
}

// Load reads the saved selection. A missing file is not an error; the
// selection stays empty and the caller falls back to auto-selection.
func (s *Store) Load() error {
	err := s.fileOps.ReadJsonFile(s.path, &s.selection)
	if err != nil {
		if os.IsNotExist(err) {
			s.selection = Selection{}
			return nil
		}
		return err
	}
	return nil
}

// Get returns the current selection.
func (s *Store) Get() Selection {
	return s.selection
}

// Save updates the selection and writes it back to the file.
func (s *Store) Save(sel Selection) error {
	s.selection = sel
	return s.fileOps.WriteJsonFile(s.path, s.selection)
}
