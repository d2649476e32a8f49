// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallID(t *testing.T) {
	c := &Call{System: 11, DateTime: 1700000000, Talkgroup: 52198}
	assert.Equal(t, "11_1700000000_52198", c.ID())

	// Omitted talkgroup falls back to zero, never a placeholder word.
	c.Talkgroup = 0
	assert.Equal(t, "11_1700000000_0", c.ID())
}

func TestCallTime(t *testing.T) {
	c := &Call{DateTime: 1700000000}
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), c.Time())
	assert.Equal(t, time.UTC, c.Time().Location())
}

func TestStorageReferenceBlobNeverSerialized(t *testing.T) {
	ref := StorageReference{
		Strategy: StorageStrategyDatabase,
		Size:     4,
		Checksum: "abcd",
		Blob:     []byte{0xFF, 0xFB, 0x00, 0x01},
	}
	b, err := json.Marshal(ref)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "Blob")
	assert.NotContains(t, string(b), "blob")
}

func TestUploadLogEntrySucceeded(t *testing.T) {
	assert.True(t, (&UploadLogEntry{Outcome: OutcomeAccepted}).Succeeded())
	assert.True(t, (&UploadLogEntry{Outcome: OutcomeTest}).Succeeded())
	assert.False(t, (&UploadLogEntry{Outcome: OutcomeThrottled}).Succeeded())
	assert.False(t, (&UploadLogEntry{Outcome: OutcomeStorageError}).Succeeded())
}
