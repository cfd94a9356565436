package backup

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionBrotli Compression = "br"
	CompressionZstd   Compression = "zstd"
)

// Ext returns file extension for a given compression, including the dot
func (c Compression) Ext() string {
	switch c {
	case CompressionBrotli:
		return ".br"
	case CompressionZstd:
		return ".zst"
	}
	return ""
}

func (c Compression) ContentType() string {
	switch c {
	case CompressionBrotli:
		return "application/x-brotli"
	case CompressionZstd:
		return "application/zstd"
	}
	return "text/plain; charset=utf-8"
}

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "br", "brotli":
		return CompressionBrotli, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "none":
		return CompressionNone, nil
	}
	return "", fmt.Errorf("unknown compression '%s', must be one of: br, zstd, none", s)
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func brCompress(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, brotli.BestCompression)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func zstdCompress(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	// zstd.SpeedBestCompression is much slower and not much better
	w, err := zstd.NewWriter(&dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// Compress compresses d with c
func Compress(c Compression, d []byte) ([]byte, error) {
	switch c {
	case CompressionBrotli:
		return brCompress(d)
	case CompressionZstd:
		return zstdCompress(d)
	case CompressionNone:
		return d, nil
	}
	return nil, fmt.Errorf("unknown compression '%s'", c)
}

// Decompress reverses Compress
func Decompress(c Compression, d []byte) ([]byte, error) {
	switch c {
	case CompressionBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(d)))
	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(d))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressionNone:
		return d, nil
	}
	return nil, fmt.Errorf("unknown compression '%s'", c)
}
