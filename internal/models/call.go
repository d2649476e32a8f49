// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package models defines the data model for the upload ingestion pipeline:
// the raw multipart projection, the validated call record, storage references,
// and the upload audit log entry.
package models

import (
	"fmt"
	"time"
)

// RawUpload is the untyped projection of one multipart upload request.
// All fields arrive as strings from the form parser; the audio part is the
// only binary payload. RawUpload exists only for the duration of a request.
type RawUpload struct {
	Key      string
	System   string
	DateTime string

	Frequency string
	Talkgroup string
	Source    string

	SystemLabel    string
	TalkgroupLabel string
	TalkgroupGroup string
	TalkgroupTag   string
	TalkerAlias    string

	// Dual-format list fields: either a JSON array literal ("[52198,52199]")
	// or a comma-separated list ("52198,52199"), depending on the client version.
	Patches     string
	Frequencies string
	Sources     string

	Test string

	AudioName        string
	AudioContentType string
	Audio            []byte
}

// Call is the validated, typed projection of a RawUpload. Numeric fields are
// coerced and range-checked, list fields normalized to ordered integer
// sequences, free-text fields sanitized. A Call is never mutated after the
// field validator creates it.
//
// Zero values for Talkgroup, Source and Frequency mean the client omitted
// the field.
type Call struct {
	System   int64 `validate:"required,gt=0,lt=100000000"`
	DateTime int64 `validate:"required,gt=0"`

	Talkgroup int64 `validate:"gte=0,lt=10000000000"`
	Source    int64 `validate:"gte=0,lt=10000000000"`
	// Frequency is in Hz; upper bound generously above any scannable band.
	Frequency int64 `validate:"gte=0,lte=100000000000"`

	SystemLabel    string `validate:"max=255"`
	TalkgroupLabel string `validate:"max=255"`
	TalkgroupGroup string `validate:"max=255"`
	TalkgroupTag   string `validate:"max=255"`
	TalkerAlias    string `validate:"max=255"`

	Patches     []int64
	Frequencies []int64
	Sources     []int64

	AudioName        string
	AudioContentType string
	AudioSize        int64

	// Test marks a connectivity-check request: validated but never stored.
	Test bool
}

// Time returns the call timestamp as a time.Time in UTC.
func (c *Call) Time() time.Time {
	return time.Unix(c.DateTime, 0).UTC()
}

// ID derives the call identifier as {system}_{dateTime}_{talkgroup-or-0}.
// The derivation is deterministic and intentionally not globally unique:
// two transmissions in the same second on the same system and talkgroup
// share an ID. Downstream consumers rely on this scheme; do not change it.
func (c *Call) ID() string {
	return fmt.Sprintf("%d_%d_%d", c.System, c.DateTime, c.Talkgroup)
}

// Storage strategy names. Exactly one is configured per process.
const (
	StorageStrategyDiscard    = "discard"
	StorageStrategyFilesystem = "filesystem"
	StorageStrategyDatabase   = "database"
)

// StorageReference records where (or whether) the audio bytes of an accepted
// upload were persisted. One reference exists per accepted non-test upload and
// is immutable once created.
type StorageReference struct {
	// Strategy is the storage strategy that produced this reference.
	Strategy string `json:"strategy"`

	// Path is the path relative to the storage root for filesystem storage,
	// empty for discard and database strategies.
	Path string `json:"path,omitempty"`

	// Size is the audio payload size in bytes.
	Size int64 `json:"size"`

	// Checksum is the hex-encoded SHA-256 of the audio payload.
	Checksum string `json:"checksum"`

	// Blob carries the audio bytes for the database strategy so the
	// repository can persist them inline. Nil for other strategies and
	// never serialized.
	Blob []byte `json:"-"`
}

// CallRecord is the persisted form of an accepted upload: the validated call,
// its storage reference, the derived call ID, and the ingestion timestamp.
type CallRecord struct {
	// RowID is the database surrogate key.
	RowID int64 `json:"row_id"`

	// CallID is the derived {system}_{dateTime}_{talkgroup-or-0} identifier.
	CallID string `json:"call_id"`

	Call    Call             `json:"call"`
	Storage StorageReference `json:"storage"`

	// UploadIP is the client address the call arrived from.
	UploadIP string `json:"upload_ip"`

	// APIKeyID identifies the configured key used, or "none" in open mode.
	APIKeyID string `json:"api_key_id"`

	IngestedAt time.Time `json:"ingested_at"`
}
