// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package validation implements the field validator: it parses and sanitizes
// the multipart fields of one upload request into a normalized call record,
// rejecting malformed or malicious input.
//
// Range and length rules on the normalized struct are enforced with
// go-playground/validator v10 through a thread-safe singleton instance;
// format-sniffing (dual-format list fields, MP3 content checks) is pure
// per-field parsing in fields.go.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError reports one rejected request field. The reason is safe to
// surface to clients; it never carries payload content.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// AudioError reports a missing, oversized, undersized or non-MP3 audio part.
type AudioError struct {
	Reason string
}

func (e *AudioError) Error() string {
	return "audio: " + e.Reason
}

// GetValidator returns the singleton validator instance. Thread-safe; the
// instance caches struct metadata across calls.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct applies the struct's validate tags and converts the first
// failure into a FieldError keyed by the struct field name.
func ValidateStruct(s interface{}) *FieldError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ve := verrs[0]
		return &FieldError{
			Field:  strings.ToLower(ve.Field()),
			Reason: fmt.Sprintf("failed %s constraint", ve.Tag()),
		}
	}
	return &FieldError{Field: "request", Reason: "validation failed"}
}
