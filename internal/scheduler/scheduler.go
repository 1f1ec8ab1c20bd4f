// Package scheduler drives the polling loop: it drains due sources into a
// capped worker pool and runs each source's fetch, parse, geotag, dedup, and
// cluster cycle to completion. Writes are serialized so two sources
// contributing to the same incident never race.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/couchcryptid/incident-feed/internal/cluster"
	"github.com/couchcryptid/incident-feed/internal/dedup"
	"github.com/couchcryptid/incident-feed/internal/domain"
	"github.com/couchcryptid/incident-feed/internal/fetch"
	"github.com/couchcryptid/incident-feed/internal/geotag"
	"github.com/couchcryptid/incident-feed/internal/health"
	"github.com/couchcryptid/incident-feed/internal/lifecycle"
	"github.com/couchcryptid/incident-feed/internal/observability"
	"github.com/couchcryptid/incident-feed/internal/publish"
	"github.com/couchcryptid/incident-feed/internal/source"
	"github.com/couchcryptid/incident-feed/internal/store"
)

const (
	// tickInterval is how often the due-source queue is drained.
	tickInterval = 500 * time.Millisecond
	// sweepInterval is the cadence for lifecycle transitions, retention, and
	// the heartbeat event.
	sweepInterval = time.Hour
)

// Options carries the scheduler's tunables from config.
type Options struct {
	MaxConcurrency int
	MaxDuePerTick  int
}

// Scheduler owns the polling loop. Construct with New, register plugins, then
// Run until the context is cancelled.
type Scheduler struct {
	opts      Options
	store     *store.Store
	client    *fetch.Client
	resolver  *geotag.Resolver
	deduper   *dedup.Engine
	clusterer *cluster.Engine
	tracker   *health.Tracker
	sweeper   *lifecycle.Manager
	bus       *publish.Bus
	metrics   *observability.Metrics
	logger    *slog.Logger

	plugins map[string]source.Plugin

	sem chan struct{} // global in-flight cap

	mu       sync.Mutex
	hosts    map[string]*sync.Mutex // per-authority fetch locks
	inFlight map[string]struct{}    // source IDs currently being worked

	writeMu sync.Mutex // single-writer discipline for persist and cluster
}

func New(
	opts Options,
	st *store.Store,
	client *fetch.Client,
	resolver *geotag.Resolver,
	deduper *dedup.Engine,
	clusterer *cluster.Engine,
	tracker *health.Tracker,
	sweeper *lifecycle.Manager,
	bus *publish.Bus,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		opts:      opts,
		store:     st,
		client:    client,
		resolver:  resolver,
		deduper:   deduper,
		clusterer: clusterer,
		tracker:   tracker,
		sweeper:   sweeper,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
		plugins:   make(map[string]source.Plugin),
		sem:       make(chan struct{}, opts.MaxConcurrency),
		hosts:     make(map[string]*sync.Mutex),
		inFlight:  make(map[string]struct{}),
	}
}

// Register records the plugins and upserts their source rows. Conditional
// fetch state of already-known sources is preserved across restarts.
func (s *Scheduler) Register(ctx context.Context, plugins []source.Plugin) error {
	for _, p := range plugins {
		if err := s.store.UpsertSource(ctx, p.Source()); err != nil {
			return fmt.Errorf("scheduler: register %s: %w", p.ID, err)
		}
		s.plugins[p.ID] = p
	}
	s.logger.Info("sources registered", slog.Int("count", len(plugins)))
	return nil
}

// Run polls until ctx is cancelled, then waits for in-flight work.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	tick := time.NewTicker(tickInterval)
	defer tick.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	var wg sync.WaitGroup
	s.runSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-sweep.C:
			s.runSweep(ctx)
		case <-tick.C:
			s.dispatchDue(ctx, &wg)
		}
	}
}

// dispatchDue starts a worker per due source, up to the global cap. Sources
// left behind when the pool is full are picked up on a later tick.
func (s *Scheduler) dispatchDue(ctx context.Context, wg *sync.WaitGroup) {
	due, err := s.store.DueSources(ctx, domain.Now(), s.opts.MaxDuePerTick)
	if err != nil {
		s.logger.Error("loading due sources", slog.String("error", err.Error()))
		return
	}
	for _, src := range due {
		plugin, ok := s.plugins[src.ID]
		if !ok || !plugin.Enabled {
			continue
		}
		if !s.claim(src.ID) {
			continue
		}
		select {
		case s.sem <- struct{}{}:
		default:
			s.release(src.ID)
			return
		}
		wg.Add(1)
		go func(src domain.Source, plugin source.Plugin) {
			defer wg.Done()
			defer func() { <-s.sem }()
			defer s.release(src.ID)
			s.runOne(ctx, src, plugin)
		}(src, plugin)
	}
}

// runOne executes one source's full cycle under its host lock.
func (s *Scheduler) runOne(ctx context.Context, src domain.Source, plugin source.Plugin) {
	now := domain.Now()
	fetchURL := plugin.FetchURL(src.Cursor, now)

	lock := s.hostLock(fetchURL)
	lock.Lock()
	defer lock.Unlock()

	s.metrics.InFlightFetches.Inc()
	res, err := s.client.Fetch(ctx, fetch.Request{
		URL:          fetchURL,
		ETag:         src.ETag,
		LastModified: src.LastModified,
		Headers:      plugin.Headers,
	})
	s.metrics.InFlightFetches.Dec()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.handleFetchFailure(ctx, src, err)
		return
	}
	s.metrics.FetchDuration.Observe(res.Elapsed.Seconds())

	if res.NotModified {
		s.metrics.FetchesTotal.WithLabelValues("not_modified").Inc()
		s.finishSuccess(ctx, src, plugin, res)
		return
	}
	s.metrics.FetchesTotal.WithLabelValues("success").Inc()

	items, err := plugin.Items(res.Body, now)
	if err != nil {
		s.metrics.ParseErrors.Inc()
		s.logger.Error("payload parse failed",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()))
		h, herr := s.tracker.RecordFailure(ctx, src.ID, res.Status, err, src.PollInterval)
		if herr != nil {
			s.logger.Error("recording parse failure", slog.String("error", herr.Error()))
		}
		s.bus.Publish(publish.HealthEvent(h))
		s.scheduleNext(ctx, src, src.ETag, src.LastModified, src.Cursor, backoffDuration(h, src.PollInterval))
		return
	}

	s.ingestBatch(ctx, src, items)
	s.finishSuccess(ctx, src, plugin, res)
}

// ingestBatch applies one fetch's items atomically relative to other batches.
// Items are processed in upstream order; a bad item is logged and skipped,
// never aborting the batch.
func (s *Scheduler) ingestBatch(ctx context.Context, src domain.Source, items []domain.Item) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, it := range items {
		if err := s.ingestOne(ctx, src, it); err != nil {
			s.logger.Error("item ingestion failed",
				slog.String("source_id", src.ID),
				slog.String("url", it.URL),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) ingestOne(ctx context.Context, src domain.Source, it domain.Item) error {
	decision, err := s.deduper.Check(ctx, it)
	if err != nil {
		return err
	}
	if decision.Action == dedup.ActionDiscard {
		s.metrics.ItemsDeduped.Inc()
		return nil
	}

	// Geotag only items that survive dedup; discards never need a lookup.
	if err := s.resolver.Resolve(ctx, &it, src); err != nil {
		return err
	}
	s.metrics.GeotagResolved.WithLabelValues(string(it.LocationConfidence)).Inc()

	switch decision.Action {
	case dedup.ActionUpdate:
		merged := dedup.Merge(*decision.Existing, it)
		if err := s.store.UpdateItem(ctx, merged); err != nil {
			return err
		}
		incidentID, err := s.store.IncidentIDForItem(ctx, merged.ID)
		if err != nil {
			return err
		}
		if incidentID != "" {
			out, err := s.clusterer.Reassess(ctx, incidentID)
			if err != nil {
				return err
			}
			s.metrics.IncidentsUpdated.Inc()
			s.bus.Publish(publish.IncidentEvent(publish.KindIncidentUpdated, out.Incident, ""))
			return nil
		}
		it = merged

	case dedup.ActionInsert:
		if err := s.store.InsertItem(ctx, it); err != nil {
			return err
		}
		s.metrics.ItemsIngested.Inc()
	}

	out, err := s.clusterer.Assign(ctx, it)
	if err != nil {
		return err
	}
	kind := publish.KindIncidentUpdated
	if out.Created {
		kind = publish.KindIncidentCreated
		s.metrics.IncidentsCreated.Inc()
	} else {
		s.metrics.IncidentsUpdated.Inc()
	}
	if out.MergedID != "" {
		s.metrics.IncidentsMerged.Inc()
	}
	s.bus.Publish(publish.IncidentEvent(kind, out.Incident, out.MergedID))
	return nil
}

// finishSuccess records health, advances cursor-driven sources, and
// reschedules. Cache-Control may extend the poll interval but never
// shortens it.
func (s *Scheduler) finishSuccess(ctx context.Context, src domain.Source, plugin source.Plugin, res fetch.Result) {
	if _, err := s.tracker.RecordSuccess(ctx, src.ID, res.Status, res.Elapsed); err != nil {
		s.logger.Error("recording fetch success", slog.String("error", err.Error()))
	}
	wait := src.PollInterval
	if res.MaxAge > wait {
		wait = res.MaxAge
	}
	cursor := src.Cursor
	if plugin.NextCursor != nil {
		cursor = plugin.NextCursor(src.Cursor, domain.Now())
	}
	s.scheduleNext(ctx, src, res.ETag, res.LastModified, cursor, wait)
}

// handleFetchFailure records health, applies backoff, and honors Retry-After
// when it exceeds the backoff.
func (s *Scheduler) handleFetchFailure(ctx context.Context, src domain.Source, ferr error) {
	s.metrics.FetchesTotal.WithLabelValues("failure").Inc()

	status := 0
	retryAfter := time.Duration(0)
	var upstream *fetch.UpstreamError
	if errors.As(ferr, &upstream) {
		status = upstream.Status
		retryAfter = upstream.RetryAfter
	}

	h, err := s.tracker.RecordFailure(ctx, src.ID, status, ferr, src.PollInterval)
	if err != nil {
		s.logger.Error("recording fetch failure", slog.String("error", err.Error()))
	}
	s.bus.Publish(publish.HealthEvent(h))

	wait := backoffDuration(h, src.PollInterval)
	if retryAfter > wait {
		wait = retryAfter
	}
	s.scheduleNext(ctx, src, src.ETag, src.LastModified, src.Cursor, wait)
}

func (s *Scheduler) scheduleNext(ctx context.Context, src domain.Source, etag, lastModified, cursor string, wait time.Duration) {
	next := domain.Now().Add(wait)
	if err := s.store.UpdateSourceFetchState(ctx, src.ID, etag, lastModified, cursor, next); err != nil {
		s.logger.Error("updating fetch state",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()))
	}
}

// runSweep ages incidents, applies retention, refreshes the backoff gauge,
// and emits the heartbeat. Never fatal.
func (s *Scheduler) runSweep(ctx context.Context) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("lifecycle sweep failed", slog.String("error", err.Error()))
	}
	if healthBySource, err := s.store.ListSourceHealth(ctx); err == nil {
		inBackoff := 0
		for _, h := range healthBySource {
			if h.ConsecutiveFailures > 0 {
				inBackoff++
			}
		}
		s.metrics.SourcesInBackoff.Set(float64(inBackoff))
	}
	s.bus.Publish(publish.Heartbeat())
}

func (s *Scheduler) claim(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sourceID]; busy {
		return false
	}
	s.inFlight[sourceID] = struct{}{}
	return true
}

func (s *Scheduler) release(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sourceID)
}

// hostLock returns the mutex for the URL's authority so two sources on the
// same host never fetch at once.
func (s *Scheduler) hostLock(rawURL string) *sync.Mutex {
	authority := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		authority = u.Host
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.hosts[authority]
	if !ok {
		lock = &sync.Mutex{}
		s.hosts[authority] = lock
	}
	return lock
}

func backoffDuration(h domain.SourceHealth, interval time.Duration) time.Duration {
	if h.BackoffSeconds > 0 {
		return time.Duration(h.BackoffSeconds) * time.Second
	}
	return health.Backoff(interval, h.ConsecutiveFailures)
}
