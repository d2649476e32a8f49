// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package storage persists accepted audio payloads. Exactly one strategy is
// active per process, selected by configuration: discard drops the bytes
// after validation, filesystem writes a date-partitioned tree under the
// configured root, database hands the bytes to the metadata repository for
// inline persistence.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/calldrop/calldrop/internal/config"
	"github.com/calldrop/calldrop/internal/models"
)

// Store persists the audio bytes of one accepted call and reports where they
// went. Implementations must be safe for concurrent use.
type Store interface {
	// Save persists audio for the given call. On error no partial artifact
	// may remain behind.
	Save(ctx context.Context, call *models.Call, audio []byte) (*models.StorageReference, error)

	// Strategy returns the strategy name this store implements.
	Strategy() string
}

// New returns the store for the configured strategy.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Strategy {
	case models.StorageStrategyDiscard:
		return &DiscardStore{}, nil
	case models.StorageStrategyFilesystem:
		return NewFilesystemStore(cfg.Root)
	case models.StorageStrategyDatabase:
		return &DatabaseStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage strategy %q", cfg.Strategy)
	}
}

func checksum(audio []byte) string {
	sum := sha256.Sum256(audio)
	return hex.EncodeToString(sum[:])
}

// DiscardStore validates-then-drops: the reference records size and checksum
// so the metadata row still describes the payload, but no bytes survive.
type DiscardStore struct{}

func (s *DiscardStore) Strategy() string { return models.StorageStrategyDiscard }

func (s *DiscardStore) Save(_ context.Context, _ *models.Call, audio []byte) (*models.StorageReference, error) {
	return &models.StorageReference{
		Strategy: models.StorageStrategyDiscard,
		Size:     int64(len(audio)),
		Checksum: checksum(audio),
	}, nil
}

// DatabaseStore defers persistence to the metadata repository: the reference
// carries the payload inline and the repository writes it in the same
// transaction as the call row.
type DatabaseStore struct{}

func (s *DatabaseStore) Strategy() string { return models.StorageStrategyDatabase }

func (s *DatabaseStore) Save(_ context.Context, _ *models.Call, audio []byte) (*models.StorageReference, error) {
	return &models.StorageReference{
		Strategy: models.StorageStrategyDatabase,
		Size:     int64(len(audio)),
		Checksum: checksum(audio),
		Blob:     audio,
	}, nil
}
