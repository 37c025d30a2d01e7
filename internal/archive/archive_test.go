package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	b, _ := io.ReadAll(input.Body)
	f.body = string(b)
	return &manager.UploadOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 2, 7, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "brands/publish-reports/2026/02/07/abc-233000.000000000.json", ObjectKey("brands", "publish-reports", "abc", at))
	assert.Equal(t, "publish-reports/2026/02/07/abc-233000.000000000.json", ObjectKey("", "publish-reports", "abc", at))

	later := at.Add(1500 * time.Millisecond)
	assert.NotEqual(t, ObjectKey("", "publish-reports", "abc", at), ObjectKey("", "publish-reports", "abc", later))
	assert.Equal(t, "publish-reports/2026/02/07/abc-233001.500000000.json", ObjectKey("", "publish-reports", "abc", later))
}

func TestS3ArchiverUploadsCanonicalJSON(t *testing.T) {
	up := &fakeUploader{}
	a := &S3Archiver{bucket: "reports", prefix: "brands", uploader: up}
	at := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)

	key, err := a.Archive(context.Background(), "publish-reports", "r1", at, map[string]interface{}{
		"status": "published",
		"counts": map[string]interface{}{"published": 1, "failed": 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "brands/publish-reports/2026/02/07/r1-000000.000000000.json", key)
	assert.Equal(t, "reports", aws.ToString(up.input.Bucket))
	assert.Equal(t, key, aws.ToString(up.input.Key))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, up.input.ServerSideEncryption)
	assert.Equal(t, `{"counts":{"failed":0,"published":1},"status":"published"}`, up.body)
}

func TestS3ArchiverSurfacesUploadError(t *testing.T) {
	a := &S3Archiver{bucket: "reports", uploader: &fakeUploader{err: errors.New("denied")}}
	_, err := a.Archive(context.Background(), "publish-reports", "r1", time.Now(), map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), "", "x")
	assert.Error(t, err)
}
