package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"courier/courier/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrNotFound   = errors.New("object not found")
)

// BlobRoute is where the HTTP router serves stored objects. Stable URLs
// point below it.
const BlobRoute = "/files/blobs/"

// Object is an open stored object.
type Object struct {
	io.ReadCloser
	Key         string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Progress is called as bytes reach the blob store. total is -1 when the
// size is not known up front.
type Progress func(sent, total int64)

type MinIOClient struct {
	client   *minio.Client
	bucket   string
	partSize uint64
	urlTTL   time.Duration
	baseURL  string
	log      *zap.Logger
}

func NewMinIOClient(ctx context.Context, cfg config.Config, log *zap.Logger) (*MinIOClient, error) {
	bucket := cfg.MinIOBucket
	client, err := minio.New(
		cfg.MinIOEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		},
	)
	if err != nil {
		return nil, err
	}
	// Create bucket if not exists
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Info("created bucket", zap.String("bucket", bucket))
	}
	return &MinIOClient{
		client:   client,
		bucket:   bucket,
		partSize: cfg.BlobPartSize,
		urlTTL:   cfg.BlobURLTTL,
		baseURL:  cfg.BlobBaseURL,
		log:      log,
	}, nil
}

// Upload stores body under key. Large or unsized bodies go up as multipart
// uploads in partSize chunks, so a failed part is retried alone.
func (m *MinIOClient) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, progress Progress) (int64, error) {
	key, err := CleanKey(key)
	if err != nil {
		return 0, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    m.partSize,
	}
	if progress != nil {
		opts.Progress = &progressReader{total: size, fn: progress}
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, body, size, opts)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return info.Size, nil
}

// URL returns a retrieval URL for key. With a base URL configured it is a
// stable link served through BlobRoute; otherwise it is presigned and
// expires after urlTTL.
func (m *MinIOClient) URL(ctx context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if m.baseURL != "" {
		return StableURL(m.baseURL, key), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Open streams the object stored under key. The caller closes it.
func (m *MinIOClient) Open(ctx context.Context, key string) (*Object, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &Object{
		ReadCloser:  obj,
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
		ModTime:     info.LastModified,
	}, nil
}

// StableURL joins base, BlobRoute and the escaped segments of key.
func StableURL(base, key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + BlobRoute + strings.Join(segs, "/")
}

// CleanKey normalises a slash-separated object key and rejects keys that
// would escape their prefix.
func CleanKey(key string) (string, error) {
	trimmed := strings.Trim(key, "/")
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return path.Clean(trimmed), nil
}

// progressReader is handed to minio as PutObjectOptions.Progress; minio
// "reads" from it once per uploaded chunk, with len(p) equal to the bytes sent.
type progressReader struct {
	total int64
	sent  atomic.Int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n := p.sent.Add(int64(len(b)))
	p.fn(n, p.total)
	return len(b), nil
}
