// Package backup periodically copies streams to s3-compatible storage
// and/or a local directory
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/kjk/airsense/log"
)

type Config struct {
	// s3-compatible storage, upload is skipped if not set
	Access   string `yaml:"access"`
	Secret   string `yaml:"secret"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	// use http instead of https, for local minio
	Insecure bool `yaml:"insecure"`
	// remote path prefix, e.g. "backups/airsense"
	Prefix string `yaml:"prefix"`

	// if set, a copy is also written to this directory
	LocalDir string `yaml:"local_dir"`

	// "br" (default), "zstd" or "none"
	Compression string `yaml:"compression"`
	// how often to back up, 1 hour if 0
	Interval time.Duration `yaml:"interval"`
}

// HasRemote returns true if remote storage is configured
func (c *Config) HasRemote() bool {
	return c.Access != "" || c.Secret != "" || c.Bucket != "" || c.Endpoint != ""
}

// IsEnabled returns true if there's anywhere to back up to
func (c *Config) IsEnabled() bool {
	return c.HasRemote() || c.LocalDir != ""
}

// Source is implemented by *streamstore.Store
type Source interface {
	StreamIDs() []string
	ReadAll(streamID string) ([]byte, error)
}

type Backup struct {
	Source      Source
	Uploader    Uploader // can be nil
	LocalDir    string
	Prefix      string
	Compression Compression
	Interval    time.Duration

	mu sync.Mutex
	// size of stream at last successful backup
	lastSize map[string]int
}

// New creates Backup from config. If remote storage is configured,
// it connects to it and checks that the bucket exists.
func New(ctx context.Context, c *Config, src Source) (*Backup, error) {
	compr, err := ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	b := &Backup{
		Source:      src,
		LocalDir:    c.LocalDir,
		Prefix:      c.Prefix,
		Compression: compr,
		Interval:    c.Interval,
	}
	if c.HasRemote() {
		b.Uploader, err = NewMinioUploader(ctx, c)
		if err != nil {
			return nil, err
		}
	}
	if b.Uploader == nil && b.LocalDir == "" {
		return nil, errors.New("backup needs remote storage or local directory")
	}
	return b, nil
}

// RemotePath returns where a stream is uploaded e.g.
// "backups/airsense/data.txt.br" for prefix "backups" and stream "airsense/data"
func (b *Backup) RemotePath(streamID string) string {
	name := streamID + ".txt" + b.Compression.Ext()
	return path.Join(b.Prefix, name)
}

func (b *Backup) localPath(streamID string) string {
	name := filepath.FromSlash(streamID) + ".txt" + b.Compression.Ext()
	return filepath.Join(b.LocalDir, name)
}

func (b *Backup) backupStream(ctx context.Context, streamID string) (bool, error) {
	d, err := b.Source.ReadAll(streamID)
	if err != nil {
		return false, err
	}
	if size, ok := b.lastSize[streamID]; ok && size == len(d) {
		// streams are append-only so same size means same content
		return false, nil
	}
	compressed, err := Compress(b.Compression, d)
	if err != nil {
		return false, err
	}
	if b.LocalDir != "" {
		if err = writeFileAtomically(b.localPath(streamID), compressed); err != nil {
			return false, err
		}
	}
	if b.Uploader != nil {
		remotePath := b.RemotePath(streamID)
		if err = b.Uploader.Upload(ctx, remotePath, compressed, b.Compression.ContentType()); err != nil {
			return false, fmt.Errorf("upload of '%s' failed: %w", remotePath, err)
		}
	}
	b.lastSize[streamID] = len(d)
	log.Event("backup", "stream", streamID, "size", len(d), "compressed", len(compressed))
	return true, nil
}

// RunOnce backs up streams that changed since the last backup.
// Returns number of streams that were backed up.
// Failure to back up one stream doesn't stop backing up the others.
func (b *Backup) RunOnce(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSize == nil {
		b.lastSize = map[string]int{}
	}

	var errs []error
	n := 0
	for _, id := range b.Source.StreamIDs() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		didBackup, err := b.backupStream(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("backup of '%s' failed: %w", id, err))
			continue
		}
		if didBackup {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// Run backs up every Interval until ctx is cancelled. Errors are logged.
func (b *Backup) Run(ctx context.Context) {
	interval := b.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	runOnce := func(ctx context.Context) {
		timeStart := time.Now()
		n, err := b.RunOnce(ctx)
		log.EventWithDuration("backup_run", time.Since(timeStart), "streams", n, "ok", err == nil)
		if err != nil && ctx.Err() == nil {
			log.Errorf("backup.Run: %s", err)
			return
		}
		if n > 0 {
			log.Logf("backup.Run: backed up %d streams in %s\n", n, time.Since(timeStart))
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			// final backup so that we don't lose what was written since last tick
			ctxFinal, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
			runOnce(ctxFinal)
			cancel()
			return
		case <-ticker.C:
			runOnce(ctx)
		}
	}
}
