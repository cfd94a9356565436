package streamstore

import (
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestEscapePayload(t *testing.T) {
	tests := []string{
		"", "",
		"23.5,41", "23.5,41",
		"23.5,41\n", "23.5,41",
		"23.5,41\r\n", "23.5,41",
		"a\nb", `a\nb`,
		"a\r\nb\n", `a\nb`,
		"a\rb", `a\rb`,
		"\n", "",
		"\n\n", `\n`,
		"a, b", "a, b",
		`a\nb`, `a\\nb`,
		`c:\data`, `c:\\data`,
		"a\\\nb", `a\\\nb`,
	}
	n := len(tests)
	for i := 0; i < n; i += 2 {
		got := EscapePayload([]byte(tests[i]))
		exp := tests[i+1]
		assert.Equal(t, exp, got, "input: %q", tests[i])
	}
}

func TestUnescapePayload(t *testing.T) {
	payloads := []string{
		"",
		"23.5,41",
		"a\nb",
		`a\nb`,
		"a\rb",
		`c:\data\`,
		"a\\\nb",
		`\\`,
	}
	for _, payload := range payloads {
		escaped := EscapePayload([]byte(payload))
		assert.False(t, strings.ContainsAny(escaped, "\r\n"), "payload: %q", payload)
		got := UnescapePayload(escaped)
		assert.Equal(t, payload, got)
	}
	// real and escaped newline are stored differently
	a := EscapePayload([]byte("a\nb"))
	b := EscapePayload([]byte(`a\nb`))
	assert.NotEqual(t, a, b)

	// lines written before backslashes were escaped
	assert.Equal(t, `c:\data`, UnescapePayload(`c:\data`))
	assert.Equal(t, `end\`, UnescapePayload(`end\`))
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := time.Date(2019, 5, 4, 12, 11, 12, 7000000, loc)
	got := FormatTimestamp(ts)
	assert.Equal(t, "2019-05-04T10:11:12.007Z", got)

	parsed, err := ParseTimestamp(got)
	assert.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestParseRecordLine(t *testing.T) {
	var rec Record
	err := ParseRecordLine("2019-05-04T10:11:12.345Z, 23.5,41", &rec)
	assert.NoError(t, err)
	assert.Equal(t, "23.5,41", rec.Payload)
	assert.Equal(t, time.Date(2019, 5, 4, 10, 11, 12, 345000000, time.UTC), rec.Timestamp)

	err = ParseRecordLine("2019-05-04T10:11:12.345Z, ", &rec)
	assert.NoError(t, err)
	assert.Equal(t, "", rec.Payload)

	invalid := []string{
		"",
		"no separator",
		"yesterday, 23.5",
		"2019-05-04 10:11:12, 23.5",
	}
	for _, line := range invalid {
		err = ParseRecordLine(line, &rec)
		assert.Error(t, err, "line: '%s'", line)
	}
}

func TestParseRecords(t *testing.T) {
	d := []byte("2019-05-04T10:11:12.345Z, a\n2019-05-04T10:11:13.000Z, bb\n")
	recs, err := ParseRecords("s", d)
	assert.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, int64(0), recs[0].Offset)
	assert.Equal(t, int64(28), recs[0].Size)
	assert.Equal(t, int64(28), recs[1].Offset)
	assert.Equal(t, "bb", recs[1].Payload)
	assert.Equal(t, "s", recs[1].StreamID)

	recs, err = ParseRecords("s", nil)
	assert.NoError(t, err)
	assert.Len(t, recs, 0)

	_, err = ParseRecords("s", []byte("garbage\n"))
	assert.Error(t, err)
}
