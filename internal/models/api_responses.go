// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package models

import "time"

// UploadResponse is the JSON body returned to clients that negotiate a
// structured response on the call-upload endpoint. The field set and names
// are fixed by the wire protocol the scanning clients implement.
type UploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	CallID  string `json:"callId,omitempty"`
}

// ErrorResponse is the JSON body for rejected uploads. Only the taxonomy
// label and a generic reason are exposed; internal detail stays server-side.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse reports service and database health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
}
