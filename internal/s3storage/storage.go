package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/config"
)

const pdfContentType = "application/pdf"

// Storage wraps MinIO/S3 interactions for raw uploads and processed outputs.
// Object keys are the artifact names, so the location recorded on a done
// submission is the key in the processed bucket.
type Storage struct {
	client          *minio.Client
	rawBucket       string
	processedBucket string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		rawBucket:       cfg.RawBucket,
		processedBucket: cfg.ProcessedBucket,
		region:          cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the raw/processed buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.rawBucket, s.processedBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadRaw uploads the original PDF into the raw bucket.
func (s *Storage) UploadRaw(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.rawBucket, objectKey(name), r, size, minio.PutObjectOptions{ContentType: pdfContentType})
	if err != nil {
		return fmt.Errorf("upload raw object: %w", err)
	}
	return nil
}

// DownloadRaw fetches the raw PDF bytes from storage.
func (s *Storage) DownloadRaw(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.rawBucket, objectKey(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get raw object: %w", notExist(err))
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read raw object: %w", notExist(err))
	}
	return buf, nil
}

// DeleteRaw removes a raw object. S3 reports success for missing keys.
func (s *Storage) DeleteRaw(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.rawBucket, objectKey(name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove raw object: %w", err)
	}
	return nil
}

// UploadProcessed uploads the redacted PDF and returns its object key.
func (s *Storage) UploadProcessed(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := objectKey(name)
	_, err := s.client.PutObject(ctx, s.processedBucket, key, r, size, minio.PutObjectOptions{ContentType: pdfContentType})
	if err != nil {
		return "", fmt.Errorf("upload processed object: %w", err)
	}
	return key, nil
}

// OpenProcessed streams a processed object. A missing object is reported as
// artifact.ErrNotExist.
func (s *Storage) OpenProcessed(ctx context.Context, location string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.processedBucket, location, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("stat processed object: %w", notExist(err))
	}
	obj, err := s.client.GetObject(ctx, s.processedBucket, location, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get processed object: %w", notExist(err))
	}
	return obj, nil
}

// PresignProcessedURL returns a signed GET URL for a processed object.
func (s *Storage) PresignProcessedURL(ctx context.Context, location string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.processedBucket, location, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign processed object: %w", err)
	}
	return u.String(), nil
}

// objectKey applies the same separator rules as local artifact paths so both
// backends accept exactly the same names.
func objectKey(name string) string {
	return artifact.SafeJoin("", name)
}

func notExist(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%v: %w", err, artifact.ErrNotExist)
	}
	return err
}
