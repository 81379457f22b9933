package content

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/keithlinneman/sitecontent-web/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/mapping"
	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

const (
	DefaultPollInterval = 30 * time.Second

	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollError
)

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveMappingLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type WatcherOptions struct {
	Logger  log.Logger
	Source  mapping.Source
	Kind    Source
	Manager *Manager

	PollInterval time.Duration

	// OnSwap runs on the poll goroutine after each swap.
	OnSwap func(version string)

	Metrics WatcherMetrics

	// StaleThreshold defaults to 30 minutes.
	StaleThreshold time.Duration
}

// Watcher refreshes a Manager from a backing mapping source.
type Watcher struct {
	source   mapping.Source
	kind     Source
	manager  *Manager
	logger   log.Logger
	interval time.Duration
	onSwap   func(version string)
	metrics  WatcherMetrics
	backoff  *backoff.ExponentialBackOff

	currentVersion  string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	pollCount int64
	swapCount int64
}

func NewWatcher(opts *WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Kind == "" {
		opts.Kind = SourceUnknown
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	stale := opts.StaleThreshold
	if stale <= 0 {
		stale = 30 * time.Minute
	}

	// first retry waits two intervals, then doubles up to maxBackoff
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * interval
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = maxBackoff

	current := ""
	if snap, ok := opts.Manager.Get(); ok {
		current = snap.Meta.Version
	}

	return &Watcher{
		source:         opts.Source,
		kind:           opts.Kind,
		manager:        opts.Manager,
		logger:         opts.Logger,
		interval:       interval,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		backoff:        eb,
		currentVersion: current,
		staleThreshold: stale,
		lastSuccessAt:  time.Now(),
	}
}

// Load performs one synchronous refresh. Used at startup so the first
// request does not wait for a tick.
func (w *Watcher) Load(ctx context.Context) error {
	entries, err := w.source.Mappings(ctx)
	if err != nil {
		return xerrors.Wrap(err, "initial mapping load")
	}
	w.swap(ctx, entries)
	return nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "mapping watcher starting",
		"poll_interval", w.interval.String(),
		"source", string(w.kind),
		"current_version", short(w.currentVersion),
	)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "mapping watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-timer.C:
			result := w.checkOnce(ctx)
			timer.Reset(w.next(ctx, result))
			w.trackStaleness(ctx, result)
		}
	}
}

// next returns the delay before the following poll.
func (w *Watcher) next(ctx context.Context, result pollResult) time.Duration {
	if result == pollError {
		w.consecutiveErrs++
		d := w.backoff.NextBackOff()
		w.logger.Warn(ctx, "mapping watcher: backing off",
			"consecutive_errors", w.consecutiveErrs,
			"next_poll_in", d.String(),
		)
		return d
	}
	if w.consecutiveErrs > 0 {
		w.logger.Info(ctx, "mapping watcher: recovered",
			"had_consecutive_errors", w.consecutiveErrs,
		)
		w.consecutiveErrs = 0
		w.backoff.Reset()
	}
	return w.interval
}

func (w *Watcher) trackStaleness(ctx context.Context, result pollResult) {
	if result != pollError {
		if w.staleLogged {
			w.logger.Info(ctx, "mapping watcher: staleness recovered")
			w.staleLogged = false
			if w.metrics != nil {
				w.metrics.SetWatcherStale(false)
			}
		}
		return
	}
	if w.staleLogged || time.Since(w.lastSuccessAt) <= w.staleThreshold {
		return
	}
	w.logger.Error(ctx,
		xerrors.Newf("last successful poll was %s ago", time.Since(w.lastSuccessAt).Truncate(time.Second)),
		"mapping watcher: serving a stale mapping table",
	)
	w.staleLogged = true
	if w.metrics != nil {
		w.metrics.SetWatcherStale(true)
	}
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	start := time.Now()
	entries, err := w.source.Mappings(ctx)
	if w.metrics != nil {
		w.metrics.ObserveMappingLoadDuration(time.Since(start).Seconds())
	}
	if err != nil {
		w.logger.Error(ctx, err, "mapping watcher: poll failed", "source", string(w.kind))
		if w.metrics != nil {
			w.metrics.IncWatcherError("load")
		}
		return pollError
	}

	now := time.Now()
	w.lastSuccessAt = now
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(float64(now.Unix()))
	}

	if cryptoutil.HashEqual(mapping.Digest(entries), w.currentVersion) {
		return pollNoChange
	}
	w.swap(ctx, entries)
	return pollSwapped
}

func (w *Watcher) swap(ctx context.Context, entries []mapping.Entry) {
	snap := NewSnapshot(entries, w.kind)
	if snap.Meta.Version == w.currentVersion {
		return
	}
	old := w.currentVersion
	w.manager.Set(snap)
	w.currentVersion = snap.Meta.Version
	w.swapCount++

	w.logger.Info(ctx, "mapping watcher: table swapped",
		"old_version", short(old),
		"new_version", short(snap.Meta.Version),
		"entries", snap.Meta.Entries,
		"total_swaps", w.swapCount,
	)
	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
						"mapping watcher: OnSwap callback panicked, continuing",
					)
				}
			}()
			w.onSwap(snap.Meta.Version)
		}()
	}
}

func short(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
