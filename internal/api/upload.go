// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"

	"github.com/calldrop/calldrop/internal/ingest"
	"github.com/calldrop/calldrop/internal/logging"
	"github.com/calldrop/calldrop/internal/models"
)

// formOverheadBytes is slack on top of the audio cap for the multipart
// boundaries and metadata fields.
const formOverheadBytes = 1 << 20

// maxFieldBytes caps any single metadata field value. Real field values are
// a few dozen bytes; anything near the cap is hostile.
const maxFieldBytes = 1 << 20

func (s *Server) handleCallUpload(w http.ResponseWriter, r *http.Request) {
	meta := ingest.RequestMeta{
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}

	raw := &models.RawUpload{}
	attempt := s.pipeline.Begin(raw, meta)

	mr, err := multipartReader(w, r, s.cfg.Storage.MaxAudioBytes)
	if err != nil {
		writeResult(w, r, abortMalformed(r.Context(), attempt, meta, err))
		return
	}

	// Upload clients place the metadata fields before the audio part, so by
	// the time the audio part (or end of form) is reached every field needed
	// for authorization and rate limiting has been seen. Running the
	// preflight there rejects bad keys and throttled clients before a single
	// audio byte is buffered.
	preflighted := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeResult(w, r, abortMalformed(r.Context(), attempt, meta, err))
			return
		}

		if part.FormName() != "audio" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				writeResult(w, r, abortMalformed(r.Context(), attempt, meta, err))
				return
			}
			setField(raw, part.FormName(), string(value))
			continue
		}

		if !preflighted {
			if f := attempt.Preflight(r.Context()); f != nil {
				part.Close()
				writeResult(w, r, attempt.Abort(r.Context(), f))
				return
			}
			preflighted = true
		}

		raw.Audio, err = io.ReadAll(part)
		part.Close()
		if err != nil {
			if errors.As(err, new(*http.MaxBytesError)) {
				writeResult(w, r, attempt.Abort(r.Context(), &ingest.Failure{
					Class:   ingest.ClassInvalidAudio,
					Message: "audio file too large",
					Detail:  err.Error(),
				}))
				return
			}
			writeResult(w, r, abortMalformed(r.Context(), attempt, meta, err))
			return
		}
		raw.AudioName = part.FileName()
		raw.AudioContentType = part.Header.Get("Content-Type")
	}

	if !preflighted {
		// No audio part; test-mode requests legitimately omit it.
		if f := attempt.Preflight(r.Context()); f != nil {
			writeResult(w, r, attempt.Abort(r.Context(), f))
			return
		}
	}

	writeResult(w, r, attempt.Finish(r.Context()))
}

// multipartReader validates the content type and returns a streaming reader
// over the request body, capped at the audio limit plus form overhead.
func multipartReader(w http.ResponseWriter, r *http.Request, maxAudio int64) (*multipart.Reader, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, errors.New("content type must be multipart/form-data")
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.New("multipart boundary missing")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudio+formOverheadBytes)
	return multipart.NewReader(r.Body, boundary), nil
}

// abortMalformed terminates an attempt whose body could not be parsed.
// The attempt still concludes through the pipeline so the audit log records
// it like any other rejection.
func abortMalformed(ctx context.Context, attempt *ingest.Attempt, meta ingest.RequestMeta, err error) ingest.Result {
	logging.Ctx(ctx).Warn().Err(err).Str("client_ip", meta.ClientIP).Msg("malformed upload request")
	return attempt.Abort(ctx, &ingest.Failure{
		Class:   ingest.ClassValidation,
		Message: "malformed multipart request",
		Detail:  err.Error(),
	})
}

// setField routes one metadata form field onto the raw upload record.
// Unknown field names are ignored; clients send extras freely.
func setField(raw *models.RawUpload, name, value string) {
	switch name {
	case "key":
		raw.Key = value
	case "system":
		raw.System = value
	case "dateTime":
		raw.DateTime = value
	case "frequency":
		raw.Frequency = value
	case "talkgroup":
		raw.Talkgroup = value
	case "source":
		raw.Source = value
	case "systemLabel":
		raw.SystemLabel = value
	case "talkgroupLabel":
		raw.TalkgroupLabel = value
	case "talkgroupGroup":
		raw.TalkgroupGroup = value
	case "talkgroupTag":
		raw.TalkgroupTag = value
	case "talkerAlias":
		raw.TalkerAlias = value
	case "patches":
		raw.Patches = value
	case "frequencies":
		raw.Frequencies = value
	case "sources":
		raw.Sources = value
	case "test":
		raw.Test = value
	}
}

// clientIP strips the port from RemoteAddr. The RealIP middleware has
// already substituted proxy forwarding headers where present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
