package s3storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/config"
)

func TestObjectKeyFlattensSeparators(t *testing.T) {
	assert.Equal(t, "abc.upload.pdf", objectKey("abc.upload.pdf"))
	assert.Equal(t, ".._.._etc_passwd", objectKey("../../etc/passwd"))
	assert.Equal(t, "a_b", objectKey(`a\b`))
}

func TestNotExistMapsMissingObjects(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "gone"}
	assert.ErrorIs(t, notExist(missing), artifact.ErrNotExist)

	denied := minio.ErrorResponse{Code: "AccessDenied"}
	assert.False(t, errors.Is(notExist(denied), artifact.ErrNotExist))
}

func TestNew(t *testing.T) {
	s, err := New(&config.Config{
		S3Endpoint:      "localhost:9000",
		S3AccessKey:     "key",
		S3SecretKey:     "secret",
		S3Region:        "us-east-1",
		RawBucket:       "raw",
		ProcessedBucket: "processed",
	})
	require.NoError(t, err)
	assert.Equal(t, "raw", s.rawBucket)
	assert.Equal(t, "processed", s.processedBucket)
}
