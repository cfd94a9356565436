// Package streamstore provides a fixed set of named, append-only, file-backed
// streams of timestamped text records.
//
// Each stream is stored in a single file in DataDir. Every record is one line:
//
//	2019-05-04T10:11:12.345Z, 23.5,41
//
// i.e. an ISO-8601 UTC timestamp with millisecond precision, ", " and the
// payload.
//
// A single trailing newline of the payload is dropped. Newlines inside the
// payload are stored as `\n` and `\r` and a backslash as `\\`, see
// [EscapePayload] and [UnescapePayload].
//
// # Basic Usage
//
//	s := &streamstore.Store{
//	    DataDir: "./data",
//	    Streams: []streamstore.StreamConfig{
//	        {ID: "airsense/data", FileName: "data.csv"},
//	        {ID: "airsense/status", FileName: "status.txt"},
//	    },
//	}
//	err := streamstore.OpenStore(s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	rec, err := s.Append("airsense/data", []byte("23.5,41"), time.Now())
//	d, err := s.ReadAll("airsense/data")
//
// # Errors
//
// Operations on an id that is not in Streams return [ErrUnknownStream] and
// never touch the disk. I/O failures are returned as [*StorageError].
//
// # Thread Safety
//
// The Store is safe for concurrent use. Appends to the same stream are
// serialized by a per-stream mutex; appends to different streams run in
// parallel. ReadAll doesn't take the lock: it only reads the part of the file
// that was fully written and synced, so it never returns a partial record.
//
// Records are in the order they were committed. The timestamp is passed by
// the caller, so two concurrent appends can be stored in the reverse order
// of their timestamps.
package streamstore
