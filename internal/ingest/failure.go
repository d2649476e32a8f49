// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package ingest orchestrates the upload pipeline: authorization, rate
// limiting, field validation, storage dispatch and metadata persistence, in
// that order. Every attempt terminates in exactly one outcome and produces
// exactly one audit log entry.
package ingest

import (
	"net/http"
	"time"

	"github.com/calldrop/calldrop/internal/models"
)

// Class partitions every pipeline failure. Each class maps to one HTTP
// status and one audit outcome; the client-facing message never carries
// internal detail.
type Class int

const (
	ClassUnauthenticated Class = iota
	ClassForbidden
	ClassThrottled
	ClassValidation
	ClassInvalidAudio
	ClassStorage
	ClassPersistence
)

// Failure is a classified pipeline error. Message is safe to send to the
// client; Detail is internal and goes only to logs and the audit trail.
type Failure struct {
	Class   Class
	Message string
	Detail  string

	// Field names the offending request field for validation failures.
	Field string

	// RetryAfter is set for throttled attempts.
	RetryAfter time.Duration
}

func (f *Failure) Error() string {
	if f.Detail != "" {
		return f.Detail
	}
	return f.Message
}

// StatusCode maps the failure class to its HTTP response status. Forbidden
// stays a distinct class for the audit trail but answers 401 on the wire,
// matching what upload clients expect for any credential rejection.
func (f *Failure) StatusCode() int {
	switch f.Class {
	case ClassUnauthenticated, ClassForbidden:
		return http.StatusUnauthorized
	case ClassThrottled:
		return http.StatusTooManyRequests
	case ClassValidation, ClassInvalidAudio:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Outcome maps the failure class to its audit log outcome.
func (f *Failure) Outcome() models.Outcome {
	switch f.Class {
	case ClassUnauthenticated:
		return models.OutcomeUnauthenticated
	case ClassForbidden:
		return models.OutcomeForbidden
	case ClassThrottled:
		return models.OutcomeThrottled
	case ClassValidation:
		return models.OutcomeValidationFailed
	case ClassInvalidAudio:
		return models.OutcomeInvalidAudio
	case ClassStorage:
		return models.OutcomeStorageError
	default:
		return models.OutcomePersistenceError
	}
}
