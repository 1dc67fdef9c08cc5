package gateways

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// s3PutAPI is the part of the S3 client the release store uses
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ReleaseStore publishes files to an S3 bucket under <prefix><tag>/<platform>/<filename>.
type S3ReleaseStore struct {
	client s3PutAPI
	bucket string
	prefix string
}

// S3StoreConfig holds configuration for S3ReleaseStore.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional key prefix, e.g. "releases/"
}

// NewS3ReleaseStore creates a new S3-backed release store.
func NewS3ReleaseStore(ctx context.Context, cfg S3StoreConfig) (*S3ReleaseStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	return &S3ReleaseStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put overwrites the object for key. S3 PUT replaces existing objects.
func (s *S3ReleaseStore) Put(ctx context.Context, key entities.ReleaseKey, body []byte) error {
	sum := sha256.Sum256(body)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(s.objectKey(key)),
		Body:           bytes.NewReader(body),
		ContentLength:  aws.Int64(int64(len(body))),
		ContentType:    aws.String(contentType(key.Filename)),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	if err != nil {
		return classifyS3Error(fmt.Errorf("s3 put %s failed: %w", s.objectKey(key), err))
	}
	return nil
}

func (s *S3ReleaseStore) objectKey(key entities.ReleaseKey) string {
	return s.prefix + key.String()
}

// classifyS3Error marks errors that retrying cannot fix
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %w", entities.ErrCredentialUnavailable, err)
		case "NoSuchBucket":
			return err
		}
	}
	return fmt.Errorf("%w: %w", entities.ErrTransientNetwork, err)
}

// contentType picks a MIME type for release files
func contentType(filename string) string {
	switch path.Ext(filename) {
	case ".dmg":
		return "application/x-apple-diskimage"
	case ".msi":
		return "application/x-msi"
	case ".sha256":
		return "text/plain; charset=utf-8"
	case ".asc":
		return "application/pgp-signature"
	}
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
