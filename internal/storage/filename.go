// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package storage

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calldrop/calldrop/internal/models"
)

// Filename layout:
//
//	20240115_143052_SYS11_TG52198_FREQ851737500_SRC4424001_a1b2c3d4.mp3
//
// The trailing token is a random 8-hex-char disambiguator so that two
// transmissions in the same second on the same talkgroup never collide.
// ParsedFilename recovers the call attributes without touching the database.

var filenameRe = regexp.MustCompile(
	`^(\d{8})_(\d{6})_SYS(\d+)_TG(\d+)_FREQ(\d+)_SRC(\d+)_([0-9a-f]{8})\.mp3$`)

// ParsedFilename holds the call attributes recovered from a stored filename.
type ParsedFilename struct {
	Time      time.Time
	System    int64
	Talkgroup int64
	Frequency int64
	Source    int64
	Token     string
}

// Filename builds the stored audio filename for a call.
func Filename(call *models.Call) string {
	ts := call.Time()
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_SYS%d_TG%d_FREQ%d_SRC%d_%s.mp3",
		ts.Format("20060102"), ts.Format("150405"),
		call.System, call.Talkgroup, call.Frequency, call.Source, token)
}

// RelativePath builds the date-partitioned path for a call under the storage
// root: YYYY/MM/DD/{system}/{filename}.
func RelativePath(call *models.Call) string {
	ts := call.Time()
	return path.Join(
		ts.Format("2006"), ts.Format("01"), ts.Format("02"),
		strconv.FormatInt(call.System, 10),
		Filename(call))
}

// ParseFilename recovers call attributes from a stored filename. The base
// name is matched; any directory prefix is ignored.
func ParseFilename(name string) (*ParsedFilename, error) {
	m := filenameRe.FindStringSubmatch(path.Base(name))
	if m == nil {
		return nil, fmt.Errorf("filename %q does not match stored layout", path.Base(name))
	}

	ts, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.UTC)
	if err != nil {
		return nil, fmt.Errorf("filename timestamp: %w", err)
	}

	parsed := &ParsedFilename{Time: ts, Token: m[7]}
	for _, f := range []struct {
		dst *int64
		src string
	}{
		{&parsed.System, m[3]},
		{&parsed.Talkgroup, m[4]},
		{&parsed.Frequency, m[5]},
		{&parsed.Source, m[6]},
	} {
		n, err := strconv.ParseInt(f.src, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filename field %q: %w", f.src, err)
		}
		*f.dst = n
	}
	return parsed, nil
}
