// Package fetch turns a requested content key into a stored object.
//
// The key is resolved into candidate storage keys through the mapping table.
// Candidates are tried in order; the first object found wins. A candidate
// ending in "/" is also tried with "index.html" appended. Missing objects move
// on to the next candidate, any other storage error stops the search.
package fetch

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/objectstore"
	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

var (
	ErrEmptyKey = errors.New("fetch: empty key")

	// ErrMappings wraps failures to load the mapping table.
	ErrMappings = errors.New("fetch: mappings unavailable")
)

const indexDocument = "index.html"

// Fetch outcomes used as metric labels.
const (
	ResultHit      = "hit"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

type Resolver interface {
	Resolve(ctx context.Context, contentPath string) ([]string, error)
}

// Metrics receives one observation per storage request.
type Metrics interface {
	ObserveObjectFetch(backend, result string, d time.Duration)
}

type Result struct {
	Key          string
	Body         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
}

type Options struct {
	Store    objectstore.Store
	Bucket   string
	Resolver Resolver
	Backend  string
	Metrics  Metrics
	Logger   log.Logger
}

type Fetcher struct {
	store    objectstore.Store
	bucket   string
	resolver Resolver
	backend  string
	metrics  Metrics
	logger   log.Logger
	tracer   trace.Tracer
}

func New(opts Options) (*Fetcher, error) {
	var errs []error
	if opts.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if opts.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if opts.Resolver == nil {
		errs = append(errs, errors.New("resolver is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, xerrors.Wrap(err, "fetch options")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Fetcher{
		store:    opts.Store,
		bucket:   opts.Bucket,
		resolver: opts.Resolver,
		backend:  opts.Backend,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		tracer:   otel.Tracer("sitecontent-web/fetch"),
	}, nil
}

// Fetch returns the first object found among the candidates for key.
// ok is false with a nil error when every candidate is missing.
func (f *Fetcher) Fetch(ctx context.Context, key string) (*Result, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	ctx, span := f.tracer.Start(ctx, "fetch.Fetch", trace.WithAttributes(
		attribute.String("content.key", key),
		attribute.String("objectstore.backend", f.backend),
	))
	defer span.End()

	candidates, err := f.resolver.Resolve(ctx, key)
	if err != nil {
		span.SetStatus(codes.Error, "mappings")
		return nil, false, xerrors.Wrapf(errors.Join(ErrMappings, err), "resolve %s", key)
	}
	if len(candidates) == 0 {
		candidates = []string{key}
	}
	span.SetAttributes(attribute.Int("content.candidates", len(candidates)))

	for _, c := range candidates {
		// the bucket root has no object of its own; stores reject an empty key
		var tries []string
		if k := strings.TrimLeft(c, "/"); k != "" {
			tries = append(tries, k)
		}
		if strings.HasSuffix(c, "/") {
			tries = append(tries, strings.TrimLeft(c+indexDocument, "/"))
		}
		for _, k := range tries {
			res, err := f.get(ctx, k)
			if err == nil {
				span.SetAttributes(attribute.String("objectstore.key", k))
				return res, true, nil
			}
			if errors.Is(err, objectstore.ErrNotFound) {
				f.logger.Debug(ctx, "object not found", "bucket", f.bucket, "key", k)
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage")
			return nil, false, xerrors.Wrapf(err, "fetch %s", key)
		}
	}
	return nil, false, nil
}

func (f *Fetcher) get(ctx context.Context, key string) (*Result, error) {
	start := time.Now()
	obj, err := f.store.GetObject(ctx, f.bucket, key)
	f.observe(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &Result{
		Key:          key,
		Body:         obj.Body,
		ContentType:  obj.ContentType,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	}, nil
}

func (f *Fetcher) observe(err error, d time.Duration) {
	if f.metrics == nil {
		return
	}
	result := ResultHit
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		result = ResultNotFound
	case err != nil:
		result = ResultError
	}
	f.metrics.ObserveObjectFetch(f.backend, result, d)
}
