package streamstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StreamConfig describes one stream. The set of streams is fixed
// when the store is opened.
type StreamConfig struct {
	// e.g. "airsense/data"
	ID string
	// name of the file in DataDir, e.g. "data.csv"
	FileName string
}

type StreamStats struct {
	ID       string
	FileName string
	// size of the stream file in bytes
	Size    int64
	Records int64
	// timestamp of the last record
	LastAppend time.Time
}

type stream struct {
	id   string
	path string

	// serializes appends. ReadAll doesn't take it
	mu sync.Mutex
	// opened by first append
	file *os.File
	// set if we failed to undo a failed write and there might
	// be garbage after committed
	dirty bool

	// size of fully written (and synced) data. Only grows.
	committed    atomic.Int64
	nRecords     atomic.Int64
	lastAppendMs atomic.Int64
}

type Store struct {
	DataDir string
	Streams []StreamConfig

	// if true, doesn't call file.Sync() after every append.
	// much faster but an acknowledged record can be lost on power failure
	NoSync bool

	// optional, for logging recovery of stream files
	Logf func(format string, args ...any)
	// optional, called after every successful append
	OnAppend func(*Record)

	streams map[string]*stream
	ids     []string
}

func (s *Store) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

// IsKnownStream returns true if streamID was configured
func (s *Store) IsKnownStream(streamID string) bool {
	_, ok := s.streams[streamID]
	return ok
}

// StreamIDs returns ids of streams, in the order they were configured
func (s *Store) StreamIDs() []string {
	return append([]string{}, s.ids...)
}

// Append appends payload as a new record to a stream.
// If capturedAt is zero, current time is used.
// When Append returns nil error, the record is on disk.
func (s *Store) Append(streamID string, payload []byte, capturedAt time.Time) (*Record, error) {
	st := s.streams[streamID]
	if st == nil {
		return nil, ErrUnknownStream
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	// we only store milliseconds
	capturedAt = capturedAt.UTC().Truncate(time.Millisecond)
	escaped := EscapePayload(payload)
	line := []byte(FormatRecordLine(capturedAt, escaped))

	st.mu.Lock()
	off, err := st.append(line, capturedAt, !s.NoSync)
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rec := &Record{
		StreamID:  streamID,
		Offset:    off,
		Size:      int64(len(line)),
		Timestamp: capturedAt,
		Payload:   escaped,
	}
	if s.OnAppend != nil {
		s.OnAppend(rec)
	}
	return rec, nil
}

// must be called with st.mu locked
// returns offset at which the line was written
func (st *stream) append(line []byte, capturedAt time.Time, sync bool) (int64, error) {
	if st.file == nil {
		f, err := os.OpenFile(st.path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return 0, storageErr(st.id, "open", err)
		}
		st.file = f
	}

	off := st.committed.Load()
	end := off + int64(len(line))
	op := "write"
	_, err := st.file.WriteAt(line, off)
	if err == nil && st.dirty {
		op = "truncate"
		if err = st.file.Truncate(end); err == nil {
			st.dirty = false
		}
	}
	if err == nil && sync {
		op = "sync"
		err = st.file.Sync()
	}
	if err != nil {
		st.rollback(off)
		return 0, storageErr(st.id, op, err)
	}

	st.committed.Store(end)
	st.nRecords.Add(1)
	// same as what OpenStore reads back from the last record
	st.lastAppendMs.Store(capturedAt.UnixMilli())
	return off, nil
}

// undo partially written record so that it's never visible after restart
func (st *stream) rollback(off int64) {
	if err := st.file.Truncate(off); err == nil {
		return
	}
	// bytes past committed are not visible to ReadAll and will be
	// over-written by the next append
	st.dirty = true
	_ = st.file.Close()
	st.file = nil
}

// ReadAll returns all records appended to a stream so far.
// Returns empty slice (not an error) if nothing was appended yet.
func (s *Store) ReadAll(streamID string) ([]byte, error) {
	st := s.streams[streamID]
	if st == nil {
		return nil, ErrUnknownStream
	}
	n := st.committed.Load()
	if n == 0 {
		return []byte{}, nil
	}
	f, err := os.Open(st.path)
	if err != nil {
		return nil, storageErr(streamID, "read", err)
	}
	defer f.Close()

	// the file might have more data (an append in progress) but
	// we only return what was committed when we started
	buf := make([]byte, n)
	_, err = io.ReadFull(f, buf)
	if err != nil {
		return nil, storageErr(streamID, "read", err)
	}
	return buf, nil
}

// Records returns parsed records of a stream
func (s *Store) Records(streamID string) ([]*Record, error) {
	d, err := s.ReadAll(streamID)
	if err != nil {
		return nil, err
	}
	return ParseRecords(streamID, d)
}

func (s *Store) Stats(streamID string) (*StreamStats, error) {
	st := s.streams[streamID]
	if st == nil {
		return nil, ErrUnknownStream
	}
	res := &StreamStats{
		ID:       st.id,
		FileName: filepath.Base(st.path),
		Size:     st.committed.Load(),
		Records:  st.nRecords.Load(),
	}
	if ms := st.lastAppendMs.Load(); ms > 0 {
		res.LastAppend = time.UnixMilli(ms).UTC()
	}
	return res, nil
}

// AllStats returns stats for all streams, in configured order
func (s *Store) AllStats() []*StreamStats {
	var res []*StreamStats
	for _, id := range s.ids {
		st, _ := s.Stats(id)
		res = append(res, st)
	}
	return res
}

// Close closes stream files. Safe to call multiple times
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, id := range s.ids {
		st := s.streams[id]
		st.mu.Lock()
		if st.file != nil {
			if err := st.file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			st.file = nil
		}
		st.mu.Unlock()
	}
	return firstErr
}

func validateStreams(streams []StreamConfig) error {
	if len(streams) == 0 {
		return fmt.Errorf("no streams configured")
	}
	seenID := map[string]bool{}
	seenFile := map[string]bool{}
	for _, sc := range streams {
		if sc.ID == "" {
			return fmt.Errorf("stream id is empty")
		}
		if strings.ContainsAny(sc.ID, " \n") {
			return fmt.Errorf("stream id '%s' cannot contain spaces or newlines", sc.ID)
		}
		if seenID[sc.ID] {
			return fmt.Errorf("duplicate stream id '%s'", sc.ID)
		}
		seenID[sc.ID] = true
		if sc.FileName == "" {
			return fmt.Errorf("stream '%s' has no file name", sc.ID)
		}
		if filepath.Base(sc.FileName) != sc.FileName || sc.FileName == "." || sc.FileName == ".." {
			return fmt.Errorf("stream '%s': file name '%s' must not contain directories", sc.ID, sc.FileName)
		}
		fileKey := strings.ToLower(sc.FileName)
		if seenFile[fileKey] {
			return fmt.Errorf("stream '%s': file '%s' is used by another stream", sc.ID, sc.FileName)
		}
		seenFile[fileKey] = true
	}
	return nil
}

// recoverStreamFile truncates incomplete last line left over by a crash
// during append and returns the content of the file
func (s *Store) recoverStreamFile(st *stream) ([]byte, error) {
	d, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	n := len(d)
	if n == 0 || d[n-1] == '\n' {
		return d, nil
	}
	validSize := bytes.LastIndexByte(d, '\n') + 1
	s.logf("streamstore: '%s': removing %d bytes of incomplete record at the end of '%s'\n", st.id, n-validSize, st.path)
	if err = os.Truncate(st.path, int64(validSize)); err != nil {
		return nil, err
	}
	return d[:validSize], nil
}

func lastRecordTime(d []byte) time.Time {
	d = bytes.TrimRight(d, "\n")
	idx := bytes.LastIndexByte(d, '\n')
	line := string(d[idx+1:])
	var rec Record
	if err := ParseRecordLine(line, &rec); err != nil {
		return time.Time{}
	}
	return rec.Timestamp
}

// OpenStore validates the configuration and opens the store.
// Stream files that don't exist yet are created on first append.
func OpenStore(s *Store) error {
	if s.DataDir == "" {
		return fmt.Errorf("data directory is not set. For current directory, use '.'")
	}
	if err := validateStreams(s.Streams); err != nil {
		return err
	}
	// allow re-opening
	if err := s.Close(); err != nil {
		return err
	}

	dir, err := filepath.Abs(s.DataDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	s.streams = map[string]*stream{}
	s.ids = nil
	for _, sc := range s.Streams {
		st := &stream{
			id:   sc.ID,
			path: filepath.Join(dir, sc.FileName),
		}
		d, err := s.recoverStreamFile(st)
		if err != nil {
			return fmt.Errorf("failed to open stream '%s': %w", sc.ID, err)
		}
		st.committed.Store(int64(len(d)))
		st.nRecords.Store(int64(bytes.Count(d, []byte{'\n'})))
		if t := lastRecordTime(d); !t.IsZero() {
			st.lastAppendMs.Store(t.UnixMilli())
		}
		s.streams[sc.ID] = st
		s.ids = append(s.ids, sc.ID)
	}
	return nil
}
