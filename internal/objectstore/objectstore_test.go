package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	err     error
	gotKeys []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.gotKeys = append(f.gotKeys, key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	out := &s3.GetObjectOutput{
		Body:         io.NopCloser(strings.NewReader(body)),
		ETag:         aws.String(`"abc"`),
		LastModified: aws.Time(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	if ct, ok := f.types[key]; ok {
		out.ContentType = aws.String(ct)
	}
	return out, nil
}

func TestS3Store_GetObject(t *testing.T) {
	fake := &fakeS3{
		objects: map[string]string{"static/docs/index.html": "<h1>docs</h1>", "static/raw": "bytes"},
		types:   map[string]string{"static/docs/index.html": "text/html"},
	}
	st := NewS3StoreFromClient(fake, 0)

	obj, err := st.GetObject(context.Background(), "site", "static/docs/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>docs</h1>", string(obj.Body))
	assert.Equal(t, "text/html", obj.ContentType)
	assert.Equal(t, `"abc"`, obj.ETag)
	assert.Equal(t, 2026, obj.LastModified.Year())

	obj, err = st.GetObject(context.Background(), "site", "static/raw")
	require.NoError(t, err)
	assert.Equal(t, defaultContentType, obj.ContentType)
}

func TestS3Store_MissingKeyIsErrNotFound(t *testing.T) {
	st := NewS3StoreFromClient(&fakeS3{objects: map[string]string{}}, 0)
	_, err := st.GetObject(context.Background(), "site", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_OtherErrorsPropagate(t *testing.T) {
	boom := &smithy.GenericAPIError{Code: "SlowDown", Message: "throttled"}
	st := NewS3StoreFromClient(&fakeS3{err: boom}, 0)
	_, err := st.GetObject(context.Background(), "site", "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "SlowDown", apiErr.ErrorCode())
}

func TestS3Store_ObjectTooLarge(t *testing.T) {
	st := NewS3StoreFromClient(&fakeS3{objects: map[string]string{"big": "0123456789"}}, 4)
	_, err := st.GetObject(context.Background(), "site", "big")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 4 bytes")
}

func TestIsS3NotFound(t *testing.T) {
	resp404 := &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
			Err:      errors.New("not found"),
		},
	}
	resp500 := &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusInternalServerError}},
			Err:      errors.New("internal"),
		},
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", &types.NoSuchKey{}, true},
		{"NotFound", &types.NotFound{}, true},
		{"NoSuchBucket", &types.NoSuchBucket{}, true},
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied"}, true},
		{"http 404", resp404, true},
		{"http 500", resp500, false},
		{"throttle", &smithy.GenericAPIError{Code: "SlowDown"}, false},
		{"plain", errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isS3NotFound(tt.err))
		})
	}
}

func TestIsMinioNotFound(t *testing.T) {
	assert.True(t, isMinioNotFound(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}))
	assert.True(t, isMinioNotFound(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.True(t, isMinioNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, isMinioNotFound(minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}))
}

func TestNew_SelectsBackend(t *testing.T) {
	st, name, err := New(context.Background(), Options{
		LocalDevelopment: true,
		MinioEndpoint:    "localhost:9001",
		MinioAccessKey:   "minioadmin",
		MinioSecretKey:   "minioadmin",
	})
	require.NoError(t, err)
	assert.Equal(t, BackendMinio, name)
	assert.IsType(t, &MinioStore{}, st)

	_, _, err = New(context.Background(), Options{LocalDevelopment: true})
	require.Error(t, err, "minio without an endpoint")

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	st, name, err = New(context.Background(), Options{
		S3Region:          "us-east-2",
		S3AccessKeyID:     "AKIDEXAMPLE",
		S3SecretAccessKey: "secret",
		S3Endpoint:        "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, BackendS3, name)
	assert.IsType(t, &S3Store{}, st)
}

func TestQuoteETag(t *testing.T) {
	assert.Equal(t, `"abc"`, quoteETag("abc"))
	assert.Equal(t, `"abc"`, quoteETag(`"abc"`))
	assert.Equal(t, "", quoteETag(""))
}
