// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/calldrop/calldrop/internal/models"
)

// sqlRepository implements Repository over database/sql. Queries are written
// with ? placeholders; the bind hook rewrites them for dialects that number
// their parameters.
type sqlRepository struct {
	db   *sql.DB
	bind func(query string) string
}

func bindIdentity(query string) string { return query }

// bindNumbered rewrites ? placeholders to $1..$N for PostgreSQL.
func bindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const insertCallQuery = `
INSERT INTO calls (
    call_id, system, date_time, talkgroup, source, frequency,
    system_label, talkgroup_label, talkgroup_group, talkgroup_tag, talker_alias,
    patches, frequencies, sources,
    audio_name, audio_content_type, audio_size,
    storage_strategy, storage_path, storage_checksum, audio,
    upload_ip, api_key_id, ingested_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *sqlRepository) SaveCall(ctx context.Context, record *models.CallRecord) error {
	patches, err := encodeList(record.Call.Patches)
	if err != nil {
		return fmt.Errorf("encode patches: %w", err)
	}
	frequencies, err := encodeList(record.Call.Frequencies)
	if err != nil {
		return fmt.Errorf("encode frequencies: %w", err)
	}
	sources, err := encodeList(record.Call.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	var blob any
	if len(record.Storage.Blob) > 0 {
		blob = record.Storage.Blob
	}

	query := r.bind(insertCallQuery)
	args := []any{
		record.CallID,
		record.Call.System, record.Call.DateTime,
		record.Call.Talkgroup, record.Call.Source, record.Call.Frequency,
		record.Call.SystemLabel, record.Call.TalkgroupLabel,
		record.Call.TalkgroupGroup, record.Call.TalkgroupTag, record.Call.TalkerAlias,
		patches, frequencies, sources,
		record.Call.AudioName, record.Call.AudioContentType, record.Call.AudioSize,
		record.Storage.Strategy, record.Storage.Path, record.Storage.Checksum, blob,
		record.UploadIP, record.APIKeyID, record.IngestedAt,
	}

	// PostgreSQL cannot report LastInsertId through database/sql, so the
	// insert runs as a RETURNING query there.
	if r.isNumbered() {
		return r.db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&record.RowID)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		record.RowID = id
	}
	return nil
}

const insertLogQuery = `
INSERT INTO upload_log (
    timestamp, client_ip, user_agent, api_key_id, system,
    outcome, response_code, error_detail,
    audio_name, audio_size, content_type, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *sqlRepository) LogAttempt(ctx context.Context, entry *models.UploadLogEntry) error {
	_, err := r.db.ExecContext(ctx, r.bind(insertLogQuery),
		entry.Timestamp, entry.ClientIP, entry.UserAgent, entry.APIKeyID, entry.System,
		string(entry.Outcome), entry.ResponseCode, entry.ErrorDetail,
		entry.AudioName, entry.AudioSize, entry.ContentType, entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert upload log: %w", err)
	}
	return nil
}

const callByIDQuery = `
SELECT id, call_id, system, date_time, talkgroup, source, frequency,
       system_label, talkgroup_label, talkgroup_group, talkgroup_tag, talker_alias,
       patches, frequencies, sources,
       audio_name, audio_content_type, audio_size,
       storage_strategy, storage_path, storage_checksum,
       upload_ip, api_key_id, ingested_at
FROM calls WHERE call_id = ? ORDER BY id DESC LIMIT 1`

func (r *sqlRepository) CallByID(ctx context.Context, callID string) (*models.CallRecord, error) {
	row := r.db.QueryRowContext(ctx, r.bind(callByIDQuery), callID)

	var rec models.CallRecord
	var patches, frequencies, sources string
	err := row.Scan(
		&rec.RowID, &rec.CallID,
		&rec.Call.System, &rec.Call.DateTime,
		&rec.Call.Talkgroup, &rec.Call.Source, &rec.Call.Frequency,
		&rec.Call.SystemLabel, &rec.Call.TalkgroupLabel,
		&rec.Call.TalkgroupGroup, &rec.Call.TalkgroupTag, &rec.Call.TalkerAlias,
		&patches, &frequencies, &sources,
		&rec.Call.AudioName, &rec.Call.AudioContentType, &rec.Call.AudioSize,
		&rec.Storage.Strategy, &rec.Storage.Path, &rec.Storage.Checksum,
		&rec.UploadIP, &rec.APIKeyID, &rec.IngestedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query call %s: %w", callID, err)
	}

	if rec.Call.Patches, err = decodeList(patches); err != nil {
		return nil, fmt.Errorf("decode patches: %w", err)
	}
	if rec.Call.Frequencies, err = decodeList(frequencies); err != nil {
		return nil, fmt.Errorf("decode frequencies: %w", err)
	}
	if rec.Call.Sources, err = decodeList(sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	rec.Storage.Size = rec.Call.AudioSize
	return &rec, nil
}

func (r *sqlRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *sqlRepository) Close() error {
	return r.db.Close()
}

func (r *sqlRepository) isNumbered() bool {
	return r.bind("?") == "$1"
}

func encodeList(list []int64) (string, error) {
	if len(list) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]int64, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
