/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/models"
)

// FolderStore keeps one JSON file per list in a single directory.
type FolderStore struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFolderStore creates a folder-backed store rooted at dir.
func NewFolderStore(dir string, logger zerolog.Logger) *FolderStore {
	return &FolderStore{
		rootDir: dir,
		logger:  logger.With().Str("component", "library").Str("backend", BackendFolder).Logger(),
	}
}

// Dir returns the folder the store reads and writes.
func (s *FolderStore) Dir() string {
	return s.rootDir
}

// CheckAccess verifies the folder exists, is a directory, and is writable.
func (s *FolderStore) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return mapFSError(fmt.Sprintf("library folder %s", s.rootDir), err)
	}
	if !info.IsDir() {
		return fmt.Errorf("library folder is not a directory: %s", s.rootDir)
	}

	probe, err := os.CreateTemp(s.rootDir, ".access-*")
	if err != nil {
		return mapFSError("library folder not writable", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// List returns every *.json file in the folder, newest first.
func (s *FolderStore) List(ctx context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, mapFSError("read library folder", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), fileExt) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{
			Name:       DisplayName(d.Name()),
			ModifiedAt: info.ModTime().UTC(),
			Size:       info.Size(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ModifiedAt.Equal(entries[j].ModifiedAt) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ModifiedAt.After(entries[j].ModifiedAt)
	})
	return entries, nil
}

// Load reads and decodes the list stored under name.
func (s *FolderStore) Load(ctx context.Context, name string) (*models.LoopList, error) {
	path := filepath.Join(s.rootDir, SanitizeName(name))
	list, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("path", path).Int("loops", list.Len()).Msg("loop list loaded")
	return list, nil
}

// Save writes list under the sanitised form of name. The file is replaced
// atomically so a failed write never leaves a truncated list behind.
func (s *FolderStore) Save(ctx context.Context, name string, list *models.LoopList) (string, error) {
	fileName := SanitizeName(name)
	path := filepath.Join(s.rootDir, fileName)
	if err := SaveFile(path, list); err != nil {
		return "", err
	}

	s.logger.Debug().Str("path", path).Int("loops", list.Len()).Msg("loop list saved")
	return DisplayName(fileName), nil
}

// LoadFile reads a single list file.
func LoadFile(path string) (*models.LoopList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mapFSError(fmt.Sprintf("read %s", filepath.Base(path)), err)
	}
	list, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return list, nil
}

// SaveFile writes list to path through a temp file and rename.
func SaveFile(path string, list *models.LoopList) error {
	data, err := Encode(list)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".looplearn-*.tmp")
	if err != nil {
		return mapFSError("create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mapFSError("write list", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return mapFSError("close list", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return mapFSError("chmod list", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return mapFSError("replace list", err)
	}
	return nil
}

func mapFSError(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
