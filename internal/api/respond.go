// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/calldrop/calldrop/internal/ingest"
	"github.com/calldrop/calldrop/internal/logging"
	"github.com/calldrop/calldrop/internal/models"
)

// wantsJSON implements the protocol's content negotiation: clients asking
// for application/json get the structured body, everyone else plain text.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("encode response")
	}
}

func writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body + "\n")); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("write response")
	}
}

// writeResult renders a pipeline result in the negotiated format.
func writeResult(w http.ResponseWriter, r *http.Request, res ingest.Result) {
	if res.RetryAfter > 0 {
		secs := int(res.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	if !wantsJSON(r) {
		writeText(w, r, res.StatusCode, res.Message)
		return
	}

	if res.Accepted() {
		writeJSON(w, r, res.StatusCode, models.UploadResponse{
			Status:  "ok",
			Message: res.Message,
			CallID:  res.CallID,
		})
		return
	}

	writeJSON(w, r, res.StatusCode, models.ErrorResponse{
		Status:  "error",
		Error:   string(res.Outcome),
		Message: res.Message,
	})
}
