// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calldrop/calldrop/internal/models"
)

// FilesystemStore writes audio under a date-partitioned tree:
//
//	{root}/YYYY/MM/DD/{system}/{filename}.mp3
//
// Writes go through a temp file in the target directory and an atomic rename,
// so readers never observe a partial file and a failed write leaves nothing
// behind.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore validates the root and ensures it exists.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem storage requires a root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FilesystemStore{root: abs}, nil
}

func (s *FilesystemStore) Strategy() string { return models.StorageStrategyFilesystem }

// Root returns the absolute storage root.
func (s *FilesystemStore) Root() string { return s.root }

func (s *FilesystemStore) Save(ctx context.Context, call *models.Call, audio []byte) (*models.StorageReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel := RelativePath(call)
	dst := filepath.Join(s.root, filepath.FromSlash(rel))
	dir := filepath.Dir(dst)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp audio file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(audio); err != nil {
		cleanup()
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close audio file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(tmpName)
		return nil, err
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("finalize audio file: %w", err)
	}

	return &models.StorageReference{
		Strategy: models.StorageStrategyFilesystem,
		Path:     rel,
		Size:     int64(len(audio)),
		Checksum: checksum(audio),
	}, nil
}
