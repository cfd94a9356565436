package streamstore

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// same as JavaScript's Date.toISOString()
const TimestampFormat = "2006-01-02T15:04:05.000Z"

const recordSep = ", "

// Record describes a record appended to a stream
type Record struct {
	StreamID string
	// offset of the line in stream file
	Offset int64
	// size of the whole line, including the trailing newline
	Size      int64
	Timestamp time.Time
	// escaped payload, as stored in the file
	Payload string
}

// FormatTimestamp formats t in UTC with millisecond precision
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}

// EscapePayload makes sure payload fits in a single line.
// A single trailing newline is removed. Other newlines are written
// as `\n` and `\r` and a backslash as `\\`, so UnescapePayload can
// restore the payload.
func EscapePayload(d []byte) string {
	s := string(d)
	if strings.HasSuffix(s, "\r\n") {
		s = s[:len(s)-2]
	} else if strings.HasSuffix(s, "\n") {
		s = s[:len(s)-1]
	}
	if !strings.ContainsAny(s, "\r\n\\") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\r\n", `\n`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}

// UnescapePayload reverses EscapePayload, except for the trailing newline
// which is not stored. A "\r\n" inside the payload comes back as "\n".
func UnescapePayload(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	n := len(s)
	for i := 0; i < n; i++ {
		c := s[i]
		if c != '\\' || i+1 == n {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case '\\':
			sb.WriteByte('\\')
		default:
			// written before backslashes were escaped
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// FormatRecordLine returns the line as stored in stream file
// payload must already be escaped
func FormatRecordLine(t time.Time, payload string) string {
	return FormatTimestamp(t) + recordSep + payload + "\n"
}

// ParseRecordLine parses a line (without the trailing newline) into rec.
// perf: allows re-using Record
func ParseRecordLine(line string, rec *Record) error {
	idx := strings.Index(line, recordSep)
	if idx == -1 {
		return fmt.Errorf("invalid record line: '%s'", line)
	}
	t, err := ParseTimestamp(line[:idx])
	if err != nil {
		return fmt.Errorf("invalid timestamp in record line: '%s'", line)
	}
	rec.Timestamp = t
	rec.Payload = line[idx+len(recordSep):]
	return nil
}

// ParseRecords parses content of a stream file
func ParseRecords(streamID string, d []byte) ([]*Record, error) {
	var res []*Record
	scanner := bufio.NewScanner(bytes.NewReader(d))
	// records are only limited by the size of the http request
	scanner.Buffer(nil, len(d)+1)
	var off int64
	for scanner.Scan() {
		line := scanner.Text()
		size := int64(len(line)) + 1
		if line == "" {
			off += size
			continue
		}
		rec := &Record{
			StreamID: streamID,
			Offset:   off,
			Size:     size,
		}
		if err := ParseRecordLine(line, rec); err != nil {
			return nil, err
		}
		res = append(res, rec)
		off += size
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading records: %w", err)
	}
	return res, nil
}
