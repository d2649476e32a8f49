// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calldrop/calldrop/internal/config"
	"github.com/calldrop/calldrop/internal/models"
)

func openTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := New(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "calldrop.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRecord() *models.CallRecord {
	call := models.Call{
		System:           11,
		DateTime:         1700000000,
		Talkgroup:        52198,
		Source:           4424001,
		Frequency:        851737500,
		TalkgroupLabel:   "TAC-1",
		Patches:          []int64{52198, 52199},
		Frequencies:      []int64{851737500},
		Sources:          []int64{4424001, 4424002},
		AudioName:        "call.mp3",
		AudioContentType: "audio/mpeg",
		AudioSize:        2048,
	}
	return &models.CallRecord{
		CallID: call.ID(),
		Call:   call,
		Storage: models.StorageReference{
			Strategy: models.StorageStrategyFilesystem,
			Path:     "2023/11/14/11/call.mp3",
			Size:     2048,
			Checksum: "deadbeef",
		},
		UploadIP:   "203.0.113.7",
		APIKeyID:   "key_1",
		IngestedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveCallAndLookup(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := testRecord()
	require.NoError(t, repo.SaveCall(ctx, rec))
	assert.NotZero(t, rec.RowID)

	got, err := repo.CallByID(ctx, rec.CallID)
	require.NoError(t, err)

	assert.Equal(t, rec.CallID, got.CallID)
	assert.Equal(t, rec.Call.System, got.Call.System)
	assert.Equal(t, rec.Call.Talkgroup, got.Call.Talkgroup)
	assert.Equal(t, rec.Call.Patches, got.Call.Patches)
	assert.Equal(t, rec.Call.Sources, got.Call.Sources)
	assert.Equal(t, rec.Storage.Path, got.Storage.Path)
	assert.Equal(t, rec.APIKeyID, got.APIKeyID)
}

func TestCallByIDReturnsLatestDuplicate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first := testRecord()
	require.NoError(t, repo.SaveCall(ctx, first))

	second := testRecord()
	second.Storage.Path = "2023/11/14/11/other.mp3"
	require.NoError(t, repo.SaveCall(ctx, second))

	got, err := repo.CallByID(ctx, first.CallID)
	require.NoError(t, err)
	assert.Equal(t, second.RowID, got.RowID)
	assert.Equal(t, second.Storage.Path, got.Storage.Path)
}

func TestCallByIDNotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.CallByID(context.Background(), "1_2_3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveCallWithBlob(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := testRecord()
	rec.Storage.Strategy = models.StorageStrategyDatabase
	rec.Storage.Path = ""
	rec.Storage.Blob = []byte{0xFF, 0xFB, 0x00, 0x01}
	require.NoError(t, repo.SaveCall(ctx, rec))

	got, err := repo.CallByID(ctx, rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, models.StorageStrategyDatabase, got.Storage.Strategy)
}

func TestLogAttempt(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entries := []*models.UploadLogEntry{
		{
			Timestamp:    time.Now().UTC(),
			ClientIP:     "203.0.113.7",
			UserAgent:    "trunk-recorder/5.0",
			APIKeyID:     "key_1",
			System:       "11",
			Outcome:      models.OutcomeAccepted,
			ResponseCode: 200,
			AudioName:    "call.mp3",
			AudioSize:    2048,
			ContentType:  "audio/mpeg",
			DurationMs:   14,
		},
		{
			Timestamp:    time.Now().UTC(),
			ClientIP:     "203.0.113.8",
			APIKeyID:     "none",
			Outcome:      models.OutcomeUnauthenticated,
			ResponseCode: 401,
			ErrorDetail:  "no matching API key",
		},
	}
	for _, e := range entries {
		require.NoError(t, repo.LogAttempt(ctx, e))
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestBindNumbered(t *testing.T) {
	assert.Equal(t, "SELECT $1, $2", bindNumbered("SELECT ?, ?"))
	assert.Equal(t, "no params", bindNumbered("no params"))
}
