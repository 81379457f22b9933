package main

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/sitecontent-web/internal/cfg"
	"github.com/keithlinneman/sitecontent-web/internal/content"
	"github.com/keithlinneman/sitecontent-web/internal/health"
	"github.com/keithlinneman/sitecontent-web/internal/httpmw"
	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/mapping"
	"github.com/keithlinneman/sitecontent-web/internal/metrics"
	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

// mappingSetup is what the servers need from the mapping configuration.
type mappingSetup struct {
	source mapping.Source
	// info is nil when mappings are read per request (no cached version).
	info  httpmw.MappingInfo
	ready health.Probe
}

// newMappingSource builds the file or SSM source. With a poll interval the
// table is cached in a content.Manager and refreshed by a watcher; without
// one every request reads the source again.
func newMappingSource(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (*mappingSetup, error) {
	base, kind, err := baseSource(ctx, conf)
	if err != nil {
		return nil, err
	}

	if conf.MappingPollInterval <= 0 {
		entries, err := base.Mappings(ctx)
		if err != nil {
			// keep starting; readiness reports it and the site serves maintenance pages
			L.Error(ctx, err, "initial mapping load failed", "source", string(kind))
		} else {
			m.SetMapping(string(kind), mapping.Digest(entries), len(entries), time.Now())
			L.Info(ctx, "mapping table readable", "source", string(kind), "entries", len(entries))
		}
		return &mappingSetup{
			source: base,
			ready: health.CheckFunc(func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				_, err := base.Mappings(ctx)
				return err
			}),
		}, nil
	}

	mgr := content.NewManager()
	publish := func(string) {
		if snap, ok := mgr.Get(); ok {
			m.SetMapping(string(snap.Meta.Source), snap.Meta.Version, snap.Meta.Entries, snap.LoadedAt)
		}
	}
	w := content.NewWatcher(&content.WatcherOptions{
		Logger:       L,
		Source:       base,
		Kind:         kind,
		Manager:      mgr,
		PollInterval: conf.MappingPollInterval,
		OnSwap:       publish,
		Metrics:      m,
	})
	if err := w.Load(ctx); err != nil {
		L.Error(ctx, err, "initial mapping load failed, watcher will retry", "source", string(kind))
	}
	go func() { _ = w.Run(ctx) }()

	return &mappingSetup{
		source: mgr,
		info:   mgr,
		ready:  health.CheckFunc(func(context.Context) error { return mgr.ReadyErr() }),
	}, nil
}

func baseSource(ctx context.Context, conf cfg.App) (mapping.Source, content.Source, error) {
	if conf.MappingFile != "" {
		return mapping.FileSource{Path: conf.MappingFile}, content.SourceFile, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if conf.S3Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(conf.S3Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, "", xerrors.Wrap(err, "load aws config for ssm")
	}
	return &mapping.SSMSource{
		Client: ssm.NewFromConfig(awsCfg),
		Param:  conf.MappingSSMParam,
	}, content.SourceSSM, nil
}
