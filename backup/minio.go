package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores a backup copy under remotePath
type Uploader interface {
	Upload(ctx context.Context, remotePath string, d []byte, contentType string) error
}

// MinioUploader uploads to s3-compatible storage (e.g. Digital Ocean Spaces, Backblaze)
type MinioUploader struct {
	Client *minio.Client
	Bucket string
}

func NewMinioUploader(ctx context.Context, c *Config) (*MinioUploader, error) {
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return nil, errors.New("must provide access, secret, bucket and endpoint")
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &MinioUploader{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, remotePath string, d []byte, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}
	r := bytes.NewReader(d)
	_, err := u.Client.PutObject(ctx, u.Bucket, remotePath, r, int64(len(d)), opts)
	return err
}
