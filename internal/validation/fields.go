// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/calldrop/calldrop/internal/models"
)

// Limits bounds the accepted audio payload size.
type Limits struct {
	MaxAudioBytes int64
	MinAudioBytes int64
}

const maxLabelLen = 255

var (
	// Patterns that indicate injection or traversal attempts in label
	// fields. Matches are rejected outright rather than stripped.
	sqlPattern       = regexp.MustCompile(`(?i)(\b(union|select|insert|update|delete|drop|alter|exec|execute)\b\s|--|#|/\*|\*/|\b(or|and)\b\s+['"\d]+\s*=)`)
	traversalPattern = regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e|%252e)`)
)

// NormalizeUpload converts the raw multipart fields into a validated Call.
// Field errors come back as *FieldError, audio content problems as
// *AudioError; callers branch on the type to pick the failure class.
func NormalizeUpload(raw *models.RawUpload, limits Limits) (*models.Call, error) {
	call := &models.Call{}

	system, err := parseRequiredInt("system", raw.System)
	if err != nil {
		return nil, err
	}
	call.System = system

	dateTime, err := parseRequiredInt("dateTime", raw.DateTime)
	if err != nil {
		return nil, err
	}
	call.DateTime = dateTime

	if call.Talkgroup, err = parseOptionalInt("talkgroup", raw.Talkgroup); err != nil {
		return nil, err
	}
	if call.Source, err = parseOptionalInt("source", raw.Source); err != nil {
		return nil, err
	}
	if call.Frequency, err = parseOptionalInt("frequency", raw.Frequency); err != nil {
		return nil, err
	}

	if call.Patches, err = ParseIntList("patches", raw.Patches); err != nil {
		return nil, err
	}
	if call.Frequencies, err = ParseIntList("frequencies", raw.Frequencies); err != nil {
		return nil, err
	}
	if call.Sources, err = ParseIntList("sources", raw.Sources); err != nil {
		return nil, err
	}

	if call.TalkgroupLabel, err = sanitizeLabel("talkgroupLabel", raw.TalkgroupLabel); err != nil {
		return nil, err
	}
	if call.TalkgroupGroup, err = sanitizeLabel("talkgroupGroup", raw.TalkgroupGroup); err != nil {
		return nil, err
	}
	if call.SystemLabel, err = sanitizeLabel("systemLabel", raw.SystemLabel); err != nil {
		return nil, err
	}
	if call.TalkgroupTag, err = sanitizeLabel("talkgroupTag", raw.TalkgroupTag); err != nil {
		return nil, err
	}
	if call.TalkerAlias, err = sanitizeLabel("talkerAlias", raw.TalkerAlias); err != nil {
		return nil, err
	}

	call.Test = parseBool(raw.Test)

	if err := validateAudio(raw, limits, call.Test); err != nil {
		return nil, err
	}
	call.AudioName = raw.AudioName
	call.AudioContentType = raw.AudioContentType
	call.AudioSize = int64(len(raw.Audio))

	if ferr := ValidateStruct(call); ferr != nil {
		return nil, ferr
	}
	return call, nil
}

// ParseIntList accepts either a JSON array literal ("[1,2,3]") or a
// comma-separated list ("1,2,3") and returns the same []int64 for both.
// Empty input yields nil.
func ParseIntList(field, value string) ([]int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if strings.HasPrefix(value, "[") {
		var out []int64
		if err := json.Unmarshal([]byte(value), &out); err != nil {
			return nil, &FieldError{Field: field, Reason: "malformed JSON array"}
		}
		return out, nil
	}

	parts := strings.Split(value, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, &FieldError{Field: field, Reason: fmt.Sprintf("non-numeric element %q", p)}
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseRequiredInt(field, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, &FieldError{Field: field, Reason: "required"}
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Reason: "must be an integer"}
	}
	return n, nil
}

func parseOptionalInt(field, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Reason: "must be an integer"}
	}
	return n, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// sanitizeLabel strips control characters from a free-text label, enforces
// the length cap, and rejects values carrying traversal or SQL metacharacter
// patterns.
func sanitizeLabel(field, value string) (string, error) {
	if strings.ContainsRune(value, 0) {
		return "", &FieldError{Field: field, Reason: "contains null byte"}
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())

	if len(clean) > maxLabelLen {
		return "", &FieldError{Field: field, Reason: "exceeds 255 characters"}
	}
	if traversalPattern.MatchString(clean) {
		return "", &FieldError{Field: field, Reason: "contains path traversal sequence"}
	}
	if sqlPattern.MatchString(clean) {
		return "", &FieldError{Field: field, Reason: "contains disallowed pattern"}
	}
	return clean, nil
}

// validateAudio checks presence, size bounds and MP3 magic bytes. Test
// uploads may omit audio entirely; once present the payload is held to the
// same checks as a live call.
func validateAudio(raw *models.RawUpload, limits Limits, test bool) error {
	if len(raw.Audio) == 0 {
		if test {
			return nil
		}
		return &AudioError{Reason: "audio file is required"}
	}
	if limits.MinAudioBytes > 0 && int64(len(raw.Audio)) < limits.MinAudioBytes {
		return &AudioError{Reason: "audio file too small"}
	}
	if limits.MaxAudioBytes > 0 && int64(len(raw.Audio)) > limits.MaxAudioBytes {
		return &AudioError{Reason: "audio file too large"}
	}
	if !IsMP3(raw.Audio) {
		return &AudioError{Reason: "audio is not valid MP3 data"}
	}
	if raw.AudioName != "" && !strings.HasSuffix(strings.ToLower(raw.AudioName), ".mp3") {
		return &AudioError{Reason: "audio filename must end in .mp3"}
	}
	return nil
}

// IsMP3 sniffs the payload's leading bytes: an ID3v2 tag or an MPEG frame
// sync (0xFF with the top three bits of the next byte set).
func IsMP3(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	if data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		return true
	}
	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
