// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package models

import "time"

// Outcome labels the terminal state of one upload attempt.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeTest             Outcome = "test"
	OutcomeUnauthenticated  Outcome = "unauthenticated"
	OutcomeForbidden        Outcome = "forbidden"
	OutcomeThrottled        Outcome = "throttled"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomeInvalidAudio     Outcome = "invalid_audio"
	OutcomeStorageError     Outcome = "storage_error"
	OutcomePersistenceError Outcome = "persistence_error"
)

// UploadLogEntry is the append-only audit record written for every upload
// attempt regardless of outcome. Unlike client responses, the entry carries
// full internal failure detail.
type UploadLogEntry struct {
	RowID     int64     `json:"row_id"`
	Timestamp time.Time `json:"timestamp"`

	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`

	// APIKeyID is the configured key identifier, or "none" when the request
	// carried no recognized key (including open mode).
	APIKeyID string `json:"api_key_id"`

	// System is the raw system field from the request; kept as a string so
	// attempts rejected before coercion remain attributable.
	System string `json:"system,omitempty"`

	Outcome      Outcome `json:"outcome"`
	ResponseCode int     `json:"response_code"`

	// ErrorDetail is the internal failure description (never client-facing).
	ErrorDetail string `json:"error_detail,omitempty"`

	AudioName   string `json:"audio_name,omitempty"`
	AudioSize   int64  `json:"audio_size,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// Succeeded reports whether the attempt terminated in an accepting state.
func (e *UploadLogEntry) Succeeded() bool {
	return e.Outcome == OutcomeAccepted || e.Outcome == OutcomeTest
}
