package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sqlchat/sqlchat/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// objectAPI is the slice of *minio.Client the export store needs.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// Store keeps exported results in one bucket under an optional prefix.
// Every object is written with If-None-Match so a turn is exported at most
// once even when two requests race.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	endpoint, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	store, err := newStore(mc, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.createBucketIfMissing(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(api objectAPI, bucket, prefix string) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	prefix = path.Clean("/" + strings.TrimSpace(prefix))
	return &Store{api: api, bucket: bucket, prefix: strings.TrimPrefix(prefix, "/")}, nil
}

func (s *Store) Create(ctx context.Context, obj storage.Object) (storage.ObjectInfo, error) {
	key, err := s.objectKey(obj.Key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	opts := minio.PutObjectOptions{ContentType: obj.ContentType, UserMetadata: obj.Metadata}
	opts.SetMatchETagExcept("*")

	upload, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(obj.Body), int64(len(obj.Body)), opts)
	switch {
	case err == nil:
		return storage.ObjectInfo{
			Key:          key,
			Size:         upload.Size,
			ETag:         upload.ETag,
			LastModified: upload.LastModified,
			Metadata:     obj.Metadata,
		}, nil
	case keyTaken(err):
		existing, statErr := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if statErr != nil {
			return storage.ObjectInfo{}, fmt.Errorf("stat existing object %q: %w", key, statErr)
		}
		return storage.ObjectInfo{
			Key:          key,
			Size:         existing.Size,
			ETag:         existing.ETag,
			LastModified: existing.LastModified,
			Metadata:     lowerKeys(existing.UserMetadata),
		}, storage.ErrObjectExists
	default:
		return storage.ObjectInfo{}, fmt.Errorf("create object %q: %w", key, err)
	}
}

// Location renders a key returned by Create as an s3:// URI.
func (s *Store) Location(key string) string {
	return "s3://" + path.Join(s.bucket, key)
}

func (s *Store) createBucketIfMissing(ctx context.Context, region string) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	err = s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// objectKey places an export key under the configured prefix, refusing keys
// that would climb out of it.
func (s *Store) objectKey(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	cleaned := path.Clean(trimmed)
	if trimmed == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(s.prefix, cleaned), nil
}

// keyTaken reports the responses S3 and MinIO give when If-None-Match fails.
func keyTaken(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

func lowerKeys(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[strings.ToLower(key)] = value
	}
	return out
}

// splitEndpoint accepts host:port or a URL. An https URL forces TLS.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint host is required")
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}
