package objectstore

import (
	"context"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

// MinioStore reads from a MinIO server. Used for local development.
type MinioStore struct {
	client   *minio.Client
	maxBytes int64
}

func NewMinioStore(opts Options) (*MinioStore, error) {
	if opts.MinioEndpoint == "" {
		return nil, xerrors.New("minio endpoint is required")
	}
	client, err := minio.New(opts.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.MinioAccessKey, opts.MinioSecretKey, ""),
		Secure: opts.MinioUseSSL,
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "minio client %s", opts.MinioEndpoint)
	}
	return &MinioStore{client: client, maxBytes: maxBytes(opts)}, nil
}

func (s *MinioStore) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrapf(err, "get minio://%s/%s", bucket, key)
	}
	defer obj.Close()

	// GetObject is lazy; Stat issues the request and surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrapf(err, "stat minio://%s/%s", bucket, key)
	}

	body, err := readCapped(obj, s.maxBytes)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read minio://%s/%s", bucket, key)
	}
	return &Object{
		Key:          key,
		Body:         body,
		ContentType:  contentTypeOr(info.ContentType),
		ETag:         quoteETag(info.ETag),
		LastModified: info.LastModified,
	}, nil
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket", "AccessDenied":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// minio strips the quotes S3 puts around ETags.
func quoteETag(etag string) string {
	if etag == "" || etag[0] == '"' {
		return etag
	}
	return `"` + etag + `"`
}
