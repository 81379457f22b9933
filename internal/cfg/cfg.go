// Package cfg defines the server's settings. Every setting is a flag, and
// any flag not given on the command line may come from a SITECONTENT_
// environment variable.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/sitecontent-web/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names to form env var names.
const EnvPrefix = "SITECONTENT_"

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// Content source
	LocalDevelopment    bool
	ContentBucket       string
	MaxObjectBytes      int64
	MappingFile         string
	MappingSSMParam     string
	MappingPollInterval time.Duration
	NotFoundKey         string

	// Hosted S3
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Local MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	RenderMarkdown bool
	MarkdownStyle  string

	PrefsDBPath string

	TrustedProxyHops int
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.BoolVar(&c.LocalDevelopment, "local-development", false, "Serve from a local MinIO server instead of S3")
	fs.StringVar(&c.ContentBucket, "content-bucket", "", "bucket holding site content objects")
	fs.Int64Var(&c.MaxObjectBytes, "max-object-bytes", 32<<20, "largest object read into memory, in bytes")
	fs.StringVar(&c.MappingFile, "mapping-file", "", "path to the JSON site_path/s3_path mapping file")
	fs.StringVar(&c.MappingSSMParam, "mapping-ssm-param", "", "ssm parameter holding the JSON mapping table")
	fs.DurationVar(&c.MappingPollInterval, "mapping-poll-interval", 0, "cache mappings and refresh on this interval (0 reads them on every request)")
	fs.StringVar(&c.NotFoundKey, "not-found-key", "404.html", "object served for missing pages (empty uses the built-in page)")

	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "custom S3 endpoint URL (path-style addressing)")
	fs.StringVar(&c.S3Region, "s3-region", "", "S3 region (default from the AWS environment)")
	fs.StringVar(&c.S3AccessKeyID, "s3-access-key-id", "", "static S3 access key (default credential chain when empty)")
	fs.StringVar(&c.S3SecretAccessKey, "s3-secret-access-key", "", "static S3 secret key")

	fs.StringVar(&c.MinioEndpoint, "minio-endpoint", "localhost:9000", "MinIO host:port used with -local-development")
	fs.StringVar(&c.MinioAccessKey, "minio-access-key", "", "MinIO access key")
	fs.StringVar(&c.MinioSecretKey, "minio-secret-key", "", "MinIO secret key")
	fs.BoolVar(&c.MinioUseSSL, "minio-use-ssl", false, "Use TLS to reach MinIO")

	fs.BoolVar(&c.RenderMarkdown, "render-markdown", true, "Render .md objects to HTML")
	fs.StringVar(&c.MarkdownStyle, "markdown-style", "solarized-dark", "chroma style for highlighted code blocks")

	fs.StringVar(&c.PrefsDBPath, "prefs-db", "", "sqlite file for notification preferences (empty disables the admin form)")

	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "proxies in front of the server whose X-Forwarded-For is trusted (0..8)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client request rate (0 disables rate limiting)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client burst size")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Content source
	if c.ContentBucket == "" {
		errs = append(errs, errors.New("CONTENT_BUCKET is required"))
	}
	if c.MaxObjectBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_OBJECT_BYTES must be positive (got %d)", c.MaxObjectBytes))
	}
	switch {
	case c.MappingFile == "" && c.MappingSSMParam == "":
		errs = append(errs, errors.New("one of MAPPING_FILE or MAPPING_SSM_PARAM is required"))
	case c.MappingFile != "" && c.MappingSSMParam != "":
		errs = append(errs, errors.New("MAPPING_FILE and MAPPING_SSM_PARAM are mutually exclusive"))
	}
	if c.MappingPollInterval < 0 {
		errs = append(errs, fmt.Errorf("MAPPING_POLL_INTERVAL must not be negative (got %s)", c.MappingPollInterval))
	} else if c.MappingPollInterval > 0 && c.MappingPollInterval < time.Second {
		errs = append(errs, fmt.Errorf("MAPPING_POLL_INTERVAL must be at least 1s (got %s)", c.MappingPollInterval))
	}

	// Object store backend
	if c.LocalDevelopment {
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT required when LOCAL_DEVELOPMENT=true"))
		} else if strings.Contains(c.MinioEndpoint, "://") {
			errs = append(errs, fmt.Errorf("MINIO_ENDPOINT must be host:port without a scheme (got %q)", c.MinioEndpoint))
		}
	} else {
		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
			errs = append(errs, errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together"))
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("S3_ENDPOINT must be a URL (got %q)", c.S3Endpoint))
			}
		}
	}

	if c.RenderMarkdown && c.MarkdownStyle == "" {
		errs = append(errs, errors.New("MARKDOWN_STYLE required when RENDER_MARKDOWN=true"))
	}

	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..8 (got %d)", c.TrustedProxyHops))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative (got %v)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be at least 1 (got %d)", c.RateLimitBurst))
	}

	return errors.Join(errs...)
}
