// Package objectstore reads content objects from an S3-compatible bucket.
//
// Two backends exist: [S3Store] for the hosted bucket (aws-sdk-go-v2) and
// [MinioStore] for local development against a MinIO server. [New] picks one
// from the LocalDevelopment flag. Both translate missing-object responses
// into [ErrNotFound] so callers never inspect SDK error types.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the object does not exist or the credentials
// cannot see it.
var ErrNotFound = errors.New("objectstore: object not found")

const defaultContentType = "application/octet-stream"

// Object is a fully read object.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Store reads a single object by bucket and key.
type Store interface {
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
}

// Backend names, used for logging and metrics labels.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
)

type Options struct {
	// LocalDevelopment selects MinIO instead of S3.
	LocalDevelopment bool

	// S3 settings. Endpoint is optional; when set, path-style addressing is used.
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// MinIO settings.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	// MaxObjectBytes caps how much of an object is read into memory (default 32 MiB).
	MaxObjectBytes int64
}

// New builds the backend selected by opts and returns it with its name.
func New(ctx context.Context, opts Options) (Store, string, error) {
	if opts.LocalDevelopment {
		s, err := NewMinioStore(opts)
		return s, BackendMinio, err
	}
	s, err := NewS3Store(ctx, opts)
	return s, BackendS3, err
}

func maxBytes(opts Options) int64 {
	if opts.MaxObjectBytes > 0 {
		return opts.MaxObjectBytes
	}
	return 32 << 20
}

func contentTypeOr(ct string) string {
	if ct == "" {
		return defaultContentType
	}
	return ct
}
