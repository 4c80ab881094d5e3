package flagstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// File is a Store backed by a JSON file, so flags survive a restart.
type File struct {
	mu    sync.Mutex
	path  string
	flags map[string]Flag
}

// NewFile loads the flags stored at path. A missing file is an empty store.
// Entries written as a bare true load as unreported flags.
func NewFile(path string) (*File, error) {
	f := &File{path: path, flags: make(map[string]Flag)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read flag file: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode flag file: %w", err)
	}
	for key, v := range raw {
		flag, ok, err := decodeFlag(v)
		if err != nil {
			return nil, fmt.Errorf("decode flag %s: %w", key, err)
		}
		if ok {
			f.flags[key] = flag
		}
	}
	return f, nil
}

// decodeFlag accepts a Flag object or the older boolean form.
func decodeFlag(v []byte) (Flag, bool, error) {
	var set bool
	if err := json.Unmarshal(v, &set); err == nil {
		return Flag{}, set, nil
	}
	var flag Flag
	if err := json.Unmarshal(v, &flag); err != nil {
		return Flag{}, false, err
	}
	return flag, true, nil
}

func (f *File) Get(_ context.Context, testID uuid.UUID) (Flag, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flag, ok := f.flags[testID.String()]
	return flag, ok, nil
}

func (f *File) Set(_ context.Context, testID uuid.UUID, flag Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[testID.String()] = flag
	return f.save()
}

func (f *File) Delete(_ context.Context, testID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flags, testID.String())
	return f.save()
}

// save writes through a temp file so a crash never leaves half a file.
func (f *File) save() error {
	data, err := json.MarshalIndent(f.flags, "", "  ")
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create flag dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write flag file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace flag file: %w", err)
	}
	return nil
}
