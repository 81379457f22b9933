package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent-web/internal/cfg"
	"github.com/keithlinneman/sitecontent-web/internal/contentapi"
	"github.com/keithlinneman/sitecontent-web/internal/fetch"
	"github.com/keithlinneman/sitecontent-web/internal/health"
	"github.com/keithlinneman/sitecontent-web/internal/httpmw"
	"github.com/keithlinneman/sitecontent-web/internal/httpserver"
	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/markdown"
	"github.com/keithlinneman/sitecontent-web/internal/metrics"
	"github.com/keithlinneman/sitecontent-web/internal/objectstore"
	"github.com/keithlinneman/sitecontent-web/internal/opshttp"
	"github.com/keithlinneman/sitecontent-web/internal/otelx"
	"github.com/keithlinneman/sitecontent-web/internal/prefs"
	"github.com/keithlinneman/sitecontent-web/internal/prof"
	"github.com/keithlinneman/sitecontent-web/internal/ratelimit"
	"github.com/keithlinneman/sitecontent-web/internal/resolve"
	"github.com/keithlinneman/sitecontent-web/internal/sitehandler"
	v "github.com/keithlinneman/sitecontent-web/internal/version"
	"github.com/keithlinneman/sitecontent-web/internal/webassets"
)

// drainPeriod is how long readiness fails before listeners close, so the
// load balancer stops routing to us first.
const drainPeriod = 60 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Validate already checked both levels
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	L, err := log.New(log.Options{
		App:               v.AppName,
		Component:         "server",
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer func() { _ = L.Sync() }()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"local_development", conf.LocalDevelopment,
		"content_bucket", conf.ContentBucket,
		"mapping_file", conf.MappingFile,
		"mapping_ssm_param", conf.MappingSSMParam,
		"mapping_poll_interval", conf.MappingPollInterval,
		"render_markdown", conf.RenderMarkdown,
		"prefs_db", conf.PrefsDBPath,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	// Insecure: the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	store, backend, err := objectstore.New(ctx, objectstore.Options{
		LocalDevelopment:  conf.LocalDevelopment,
		S3Endpoint:        conf.S3Endpoint,
		S3Region:          conf.S3Region,
		S3AccessKeyID:     conf.S3AccessKeyID,
		S3SecretAccessKey: conf.S3SecretAccessKey,
		MinioEndpoint:     conf.MinioEndpoint,
		MinioAccessKey:    conf.MinioAccessKey,
		MinioSecretKey:    conf.MinioSecretKey,
		MinioUseSSL:       conf.MinioUseSSL,
		MaxObjectBytes:    conf.MaxObjectBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create object store", "backend", backend)
		os.Exit(1)
	}
	L.Info(ctx, "object store ready", "backend", backend, "bucket", conf.ContentBucket)

	mappings, err := newMappingSource(ctx, L, conf, m)
	if err != nil {
		L.Error(ctx, err, "failed to set up mapping source")
		os.Exit(1)
	}

	fetcher, err := fetch.New(fetch.Options{
		Store:    store,
		Bucket:   conf.ContentBucket,
		Resolver: resolve.New(mappings.source),
		Backend:  backend,
		Metrics:  m,
		Logger:   L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create fetcher")
		os.Exit(1)
	}

	siteOpts := &sitehandler.Options{
		Logger:        L,
		Fetcher:       fetcher,
		FallbackFS:    webassets.FallbackFS(),
		NotFoundKey:   conf.NotFoundKey,
		RenderMetrics: m,
	}
	if conf.RenderMarkdown {
		renderer, err := markdown.New(markdown.Options{Style: conf.MarkdownStyle})
		if err != nil {
			L.Error(ctx, err, "invalid markdown settings")
			os.Exit(1)
		}
		layout, err := webassets.MarkdownLayout()
		if err != nil {
			L.Error(ctx, err, "failed to parse markdown layout")
			os.Exit(1)
		}
		siteOpts.Renderer, siteOpts.Layout = renderer, layout
	}
	siteHandler, err := sitehandler.New(siteOpts)
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	// optional sqlite-backed preferences form on the ops listener
	var adminRoutes func(chi.Router)
	var prefsReady health.Probe
	if conf.PrefsDBPath != "" {
		prefsStore, err := prefs.Open(ctx, conf.PrefsDBPath)
		if err != nil {
			L.Error(ctx, err, "failed to open preferences database", "path", conf.PrefsDBPath)
			os.Exit(1)
		}
		defer func() { _ = prefsStore.Close() }()
		adminRoutes = prefs.NewAPI(prefsStore, L, m).RegisterRoutes
		prefsReady = health.CheckFunc(prefsStore.Ping)
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), mappings.ready, prefsReady)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			// logged once per visitor until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		MappingInfo:  mappings.info,
		APIRoutes:    contentapi.NewAPI(mappings.source, L).RegisterRoutes,
		SiteHandler:  siteHandler,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the ops port is firewalled to internal monitoring
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		AdminRoutes:  adminRoutes,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its own timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	L.Info(context.Background(), "readiness failing, draining", "period", drainPeriod)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
