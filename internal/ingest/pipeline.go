// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calldrop/calldrop/internal/database"
	"github.com/calldrop/calldrop/internal/keyring"
	"github.com/calldrop/calldrop/internal/logging"
	"github.com/calldrop/calldrop/internal/metrics"
	"github.com/calldrop/calldrop/internal/models"
	"github.com/calldrop/calldrop/internal/ratelimit"
	"github.com/calldrop/calldrop/internal/storage"
	"github.com/calldrop/calldrop/internal/validation"
)

// Wire messages. The success and test strings are part of the client
// contract; recorder software matches on them.
const (
	MsgImported       = "Call imported successfully."
	MsgTestIncomplete = "incomplete call data: no talkgroup"
	TestCallID        = "test"
)

// RequestMeta carries the transport-level attributes of one upload attempt.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// Result is the terminal state of one processed attempt, ready for the HTTP
// layer to render.
type Result struct {
	Outcome    models.Outcome
	StatusCode int
	Message    string
	CallID     string
	RetryAfter time.Duration
}

// Accepted reports whether the attempt terminated in an accepting state.
func (r Result) Accepted() bool {
	return r.Outcome == models.OutcomeAccepted || r.Outcome == models.OutcomeTest
}

// Pipeline runs every upload attempt through the fixed stage order:
// authorization, rate limiting, field validation, test short-circuit,
// storage, persistence. A stage failure stops the pipeline; later stages
// never observe a request an earlier stage rejected.
type Pipeline struct {
	keys    *keyring.Registry
	limiter *ratelimit.Limiter
	store   storage.Store
	repo    database.Repository
	limits  validation.Limits

	now func() time.Time
}

// New wires the pipeline from its stage implementations.
func New(keys *keyring.Registry, limiter *ratelimit.Limiter, store storage.Store, repo database.Repository, limits validation.Limits) *Pipeline {
	return &Pipeline{
		keys:    keys,
		limiter: limiter,
		store:   store,
		repo:    repo,
		limits:  limits,
		now:     time.Now,
	}
}

// Attempt tracks one upload attempt from first byte to terminal outcome.
// The HTTP layer begins an attempt before parsing the body so that cheap
// rejections (bad key, throttled, malformed form) happen without buffering
// the audio part, and so that every attempt — parseable or not — concludes
// with exactly one audit log entry.
//
// Lifecycle: Begin → Preflight → (Abort | Finish). Abort and Finish are
// terminal; exactly one of them must be called exactly once.
type Attempt struct {
	p     *Pipeline
	raw   *models.RawUpload
	meta  RequestMeta
	start time.Time
	keyID string
}

// Begin starts tracking an attempt. The raw record may still be empty; the
// caller fills it in as the request body is consumed.
func (p *Pipeline) Begin(raw *models.RawUpload, meta RequestMeta) *Attempt {
	return &Attempt{p: p, raw: raw, meta: meta, start: p.now(), keyID: "none"}
}

// Preflight runs the stages that need only the metadata fields:
// authorization and rate limiting. It is called before the audio body is
// read, so rejected and throttled clients never cost a full body buffer.
func (a *Attempt) Preflight(ctx context.Context) *Failure {
	keyID, failure := a.p.authorize(a.raw, a.meta)
	if failure != nil {
		return failure
	}
	a.keyID = keyID
	return a.p.throttle(a.raw, a.meta)
}

// Abort terminates the attempt with the given failure, writing the audit
// entry and producing the client-facing result.
func (a *Attempt) Abort(ctx context.Context, f *Failure) Result {
	result := a.p.fail(ctx, f)
	a.conclude(ctx, result, f)
	return result
}

// Finish runs the remaining stages (validation, test short-circuit, storage,
// persistence) on the fully read request. Preflight must have succeeded
// first.
func (a *Attempt) Finish(ctx context.Context) Result {
	result, failure := a.p.finish(ctx, a.raw, a.meta, a.keyID)
	a.conclude(ctx, result, failure)
	return result
}

// conclude writes the audit entry and metrics for the terminal result.
func (a *Attempt) conclude(ctx context.Context, result Result, failure *Failure) {
	entry := &models.UploadLogEntry{
		Timestamp:    a.start.UTC(),
		ClientIP:     a.meta.ClientIP,
		UserAgent:    a.meta.UserAgent,
		APIKeyID:     a.keyID,
		System:       a.raw.System,
		Outcome:      result.Outcome,
		ResponseCode: result.StatusCode,
		AudioName:    a.raw.AudioName,
		AudioSize:    int64(len(a.raw.Audio)),
		ContentType:  a.raw.AudioContentType,
		DurationMs:   a.p.now().Sub(a.start).Milliseconds(),
	}
	if failure != nil {
		entry.ErrorDetail = failure.Error()
	}

	// The audit write must survive client disconnects; a failed write is
	// logged but never changes the outcome already decided.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.p.repo.LogAttempt(logCtx, entry); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("upload audit write failed")
	}

	metrics.ObserveUpload(string(result.Outcome), a.p.now().Sub(a.start))
	if result.Outcome == models.OutcomeAccepted {
		metrics.ObserveAudioSize(int64(len(a.raw.Audio)))
	}
}

// Process runs one fully buffered upload attempt to its terminal outcome.
// It never returns an error: every failure is folded into the Result so the
// HTTP layer renders uniformly.
func (p *Pipeline) Process(ctx context.Context, raw *models.RawUpload, meta RequestMeta) Result {
	a := p.Begin(raw, meta)
	if f := a.Preflight(ctx); f != nil {
		return a.Abort(ctx, f)
	}
	return a.Finish(ctx)
}

func (p *Pipeline) finish(ctx context.Context, raw *models.RawUpload, meta RequestMeta, keyID string) (Result, *Failure) {
	call, failure := p.validate(raw)
	if failure != nil {
		return p.fail(ctx, failure), failure
	}

	if call.Test {
		logging.Ctx(ctx).Info().
			Str("api_key_id", keyID).
			Str("client_ip", meta.ClientIP).
			Msg("test upload accepted")
		return Result{
			Outcome:    models.OutcomeTest,
			StatusCode: http.StatusOK,
			Message:    MsgTestIncomplete,
			CallID:     TestCallID,
		}, nil
	}

	ref, failure := p.persistAudio(ctx, call, raw.Audio)
	if failure != nil {
		return p.fail(ctx, failure), failure
	}

	record := &models.CallRecord{
		CallID:     call.ID(),
		Call:       *call,
		Storage:    *ref,
		UploadIP:   meta.ClientIP,
		APIKeyID:   keyID,
		IngestedAt: p.now().UTC(),
	}
	if err := p.repo.SaveCall(ctx, record); err != nil {
		failure := &Failure{
			Class:   ClassPersistence,
			Message: "internal server error",
			Detail:  fmt.Sprintf("persist call %s: %v", record.CallID, err),
		}
		return p.fail(ctx, failure), failure
	}

	logging.Ctx(ctx).Info().
		Str("call_id", record.CallID).
		Str("api_key_id", keyID).
		Str("client_ip", meta.ClientIP).
		Str("storage", ref.Strategy).
		Int64("audio_size", ref.Size).
		Msg("call imported")

	return Result{
		Outcome:    models.OutcomeAccepted,
		StatusCode: http.StatusOK,
		Message:    MsgImported,
		CallID:     record.CallID,
	}, nil
}

func (p *Pipeline) authorize(raw *models.RawUpload, meta RequestMeta) (string, *Failure) {
	keyID, err := p.keys.Authorize(raw.Key, meta.ClientIP, raw.System)
	switch {
	case err == nil:
		return keyID, nil
	case errors.Is(err, keyring.ErrForbidden):
		return "", &Failure{
			Class:   ClassForbidden,
			Message: "invalid API key",
			Detail:  err.Error(),
		}
	default:
		return "", &Failure{
			Class:   ClassUnauthenticated,
			Message: "invalid API key",
			Detail:  "no matching API key",
		}
	}
}

func (p *Pipeline) throttle(raw *models.RawUpload, meta RequestMeta) *Failure {
	decision := p.limiter.Check(raw.Key, meta.ClientIP)
	if decision.Allowed {
		return nil
	}
	return &Failure{
		Class:      ClassThrottled,
		Message:    "rate limit exceeded",
		Detail:     fmt.Sprintf("rate limit exceeded on %s horizon", decision.Horizon),
		RetryAfter: decision.RetryAfter,
	}
}

func (p *Pipeline) validate(raw *models.RawUpload) (*models.Call, *Failure) {
	call, err := validation.NormalizeUpload(raw, p.limits)
	if err == nil {
		return call, nil
	}

	var aerr *validation.AudioError
	if errors.As(err, &aerr) {
		return nil, &Failure{
			Class:   ClassInvalidAudio,
			Message: "invalid audio file",
			Detail:  aerr.Error(),
		}
	}

	var ferr *validation.FieldError
	if errors.As(err, &ferr) {
		return nil, &Failure{
			Class:   ClassValidation,
			Message: fmt.Sprintf("invalid field: %s", ferr.Field),
			Field:   ferr.Field,
			Detail:  ferr.Error(),
		}
	}

	return nil, &Failure{
		Class:   ClassValidation,
		Message: "invalid request",
		Detail:  err.Error(),
	}
}

func (p *Pipeline) persistAudio(ctx context.Context, call *models.Call, audio []byte) (*models.StorageReference, *Failure) {
	ref, err := p.store.Save(ctx, call, audio)
	if err != nil {
		return nil, &Failure{
			Class:   ClassStorage,
			Message: "internal server error",
			Detail:  fmt.Sprintf("store audio for %s: %v", call.ID(), err),
		}
	}
	return ref, nil
}

func (p *Pipeline) fail(ctx context.Context, f *Failure) Result {
	evt := logging.Ctx(ctx).Warn()
	if f.Class == ClassStorage || f.Class == ClassPersistence {
		evt = logging.Ctx(ctx).Error()
	}
	evt.Str("class", string(f.Outcome())).Str("detail", f.Detail).Msg("upload rejected")

	return Result{
		Outcome:    f.Outcome(),
		StatusCode: f.StatusCode(),
		Message:    f.Message,
		RetryAfter: f.RetryAfter,
	}
}
