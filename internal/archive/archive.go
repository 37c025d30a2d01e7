// Package archive stores canonical JSON documents (publish reports) in S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/martin3r-me/platforms-brands-sub000/internal/canonical"
)

// Archiver stores doc under a key derived from kind, id and at, and returns
// that key.
type Archiver interface {
	Archive(ctx context.Context, kind, id string, at time.Time, doc interface{}) (string, error)
}

type Noop struct{}

func (Noop) Archive(ctx context.Context, kind, id string, at time.Time, doc interface{}) (string, error) {
	return "", nil
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes objects to
//
//	s3://<bucket>/<prefix>/<kind>/YYYY/MM/DD/<id>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewS3Archiver picks up region and credentials from the environment through
// the default AWS config chain.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ObjectKey places a document under its UTC day and suffixes the id with the
// time of day, so repeated documents for one id never share a key.
func ObjectKey(prefix, kind, id string, at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	year, month, day := at.Date()
	return path.Join(prefix, kind,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		id+"-"+at.Format("150405.000000000")+".json",
	)
}

func (s *S3Archiver) Archive(ctx context.Context, kind, id string, at time.Time, doc interface{}) (string, error) {
	if id == "" {
		return "", fmt.Errorf("archive id required")
	}
	body, err := canonical.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", kind, err)
	}
	key := ObjectKey(s.prefix, kind, id, at)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
