package streamstore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStream is returned for a stream id that wasn't configured
	ErrUnknownStream = errors.New("unknown stream")
)

// StorageError is returned when reading or writing the backing file of
// a stream fails. A failed append leaves no part of the record in the file.
type StorageError struct {
	StreamID string
	// "append", "sync", "read", "open" etc.
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("stream '%s': %s failed: %s", e.StreamID, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if err is or wraps *StorageError
func IsStorageError(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}

func storageErr(streamID string, op string, err error) error {
	return &StorageError{
		StreamID: streamID,
		Op:       op,
		Err:      err,
	}
}
