// Package collector runs scrape cycles against a Plex server and publishes the
// results into a metrics registry.
//
// A cycle fetches /identity first. If that fails the server is reported down and
// nothing else is fetched. Otherwise the remaining endpoints are fetched
// independently; each one writes into its own batch, and all batches are committed
// together at the end of the cycle so readers never see a half-updated snapshot.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bvboe/plex-exporter/metrics"
	"github.com/bvboe/plex-exporter/plex"
)

// JobName is the scheduler name of the scrape job.
const JobName = "plex-scrape"

const defaultSectionConcurrency = 4

// ErrCycleInProgress is returned when a scrape is requested while another is running.
var ErrCycleInProgress = errors.New("scrape cycle already in progress")

// PlexAPI is the subset of the Plex client used by a scrape cycle.
type PlexAPI interface {
	Identity(ctx context.Context) (*plex.Identity, error)
	Sessions(ctx context.Context) (*plex.SessionList, error)
	LibrarySections(ctx context.Context) (*plex.LibrarySections, error)
	SectionItemCount(ctx context.Context, sectionKey string) (int64, error)
	Devices(ctx context.Context) (*plex.DeviceList, error)
	Activities(ctx context.Context) (*plex.ActivityList, error)
	UpdaterStatus(ctx context.Context) (*plex.UpdaterStatus, error)
}

// State is the collector's position in the scrape state machine.
type State int32

const (
	StateIdle State = iota
	StateScraping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScraping:
		return "scraping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Result is how a finished cycle ended.
type Result string

const (
	ResultSuccess        Result = "success"
	ResultPartialFailure Result = "partial_failure"
	ResultTotalFailure   Result = "total_failure"
)

// Outcome describes one finished scrape cycle.
type Outcome struct {
	ID       uuid.UUID
	Start    time.Time
	Duration time.Duration
	Result   Result
	ServerUp bool
	Errors   int
	Err      error // joined endpoint errors, nil on success
}

// Options tunes a Collector.
type Options struct {
	// SectionConcurrency bounds parallel library item-count requests.
	SectionConcurrency int
}

// Collector scrapes a Plex server into a metrics registry. It implements scheduler.Job.
type Collector struct {
	api      PlexAPI
	registry *metrics.Registry
	logger   *slog.Logger
	opts     Options

	state atomic.Int32

	mu   sync.Mutex
	last *Outcome
}

// New registers the collector's metric families and returns a collector in the Idle state.
func New(api PlexAPI, registry *metrics.Registry, logger *slog.Logger, opts Options) (*Collector, error) {
	if api == nil {
		return nil, errors.New("collector requires a Plex API client")
	}
	if registry == nil {
		return nil, errors.New("collector requires a metrics registry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SectionConcurrency <= 0 {
		opts.SectionConcurrency = defaultSectionConcurrency
	}

	for _, desc := range Descriptors() {
		if err := registry.Register(desc); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", desc.Name, err)
		}
	}

	// Exporter health series exist before the first cycle.
	b := registry.NewBatch()
	for _, name := range []string{MetricScrapesTotal, MetricScrapeErrorsTotal} {
		if err := b.Add(name, nil, 0); err != nil {
			return nil, err
		}
	}
	if err := b.Set(MetricServerUp, nil, 0); err != nil {
		return nil, err
	}
	if err := registry.Commit(b); err != nil {
		return nil, err
	}

	return &Collector{
		api:      api,
		registry: registry,
		logger:   logger.With("component", "collector"),
		opts:     opts,
	}, nil
}

// Name implements scheduler.Job.
func (c *Collector) Name() string {
	return JobName
}

// Run implements scheduler.Job. It returns the cycle's endpoint errors, if any.
func (c *Collector) Run(ctx context.Context) error {
	outcome, err := c.Scrape(ctx)
	if err != nil {
		return err
	}
	return outcome.Err
}

// State reports whether a cycle is running.
func (c *Collector) State() State {
	return State(c.state.Load())
}

// LastOutcome returns the most recent finished cycle, if any.
func (c *Collector) LastOutcome() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Outcome{}, false
	}
	return *c.last, true
}

// Scrape runs one full cycle. It returns ErrCycleInProgress without doing any work
// if another cycle is running. Cancelling ctx does not abort the cycle; each
// request is bounded by the client's own timeout.
func (c *Collector) Scrape(ctx context.Context) (Outcome, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateScraping)) {
		return Outcome{}, ErrCycleInProgress
	}
	defer c.state.Store(int32(StateIdle))

	ctx = context.WithoutCancel(ctx)
	outcome := Outcome{ID: uuid.New(), Start: time.Now()}
	log := c.logger.With("cycle", outcome.ID.String())
	log.Debug("starting scrape cycle")

	batch := c.registry.NewBatch()
	var errs []error

	identity, err := c.api.Identity(ctx)
	if err != nil {
		log.Error("plex server unreachable, skipping remaining endpoints", "error", err)
		errs = append(errs, err)
		if err := batch.Set(MetricServerUp, nil, 0); err != nil {
			return outcome, err
		}
	} else {
		outcome.ServerUp = true
		if err := batch.Set(MetricServerUp, nil, 1); err != nil {
			return outcome, err
		}
		if err := batch.ReplaceAll(MetricServerInfo, []metrics.MetricPoint{ServerInfoPoint(identity)}); err != nil {
			return outcome, err
		}
		endpointErrs, err := c.scrapeEndpoints(ctx, log, batch, identity)
		if err != nil {
			return outcome, err
		}
		errs = append(errs, endpointErrs...)
	}

	outcome.Errors = len(errs)
	outcome.Err = errors.Join(errs...)
	switch {
	case !outcome.ServerUp:
		outcome.Result = ResultTotalFailure
	case len(errs) > 0:
		outcome.Result = ResultPartialFailure
	default:
		outcome.Result = ResultSuccess
	}
	outcome.Duration = time.Since(outcome.Start)

	if err := batch.Add(MetricScrapesTotal, nil, 1); err != nil {
		return outcome, err
	}
	if err := batch.Add(MetricScrapeErrorsTotal, nil, float64(len(errs))); err != nil {
		return outcome, err
	}
	if err := batch.Set(MetricScrapeDuration, nil, outcome.Duration.Seconds()); err != nil {
		return outcome, err
	}
	if err := c.registry.Commit(batch); err != nil {
		return outcome, fmt.Errorf("failed to commit scrape results: %w", err)
	}

	c.mu.Lock()
	c.last = &outcome
	c.mu.Unlock()

	log.Info("scrape cycle finished",
		"result", string(outcome.Result),
		"errors", outcome.Errors,
		"duration", outcome.Duration)
	return outcome, nil
}

// endpoint fills its own batch and returns the failures it hit. A failed endpoint
// leaves the families it owns untouched.
type endpoint struct {
	name   string
	scrape func(ctx context.Context, b *metrics.Batch) []error
}

// scrapeEndpoints fetches every secondary endpoint concurrently and appends their
// batches to batch in a fixed order. The returned error is a programming error
// (a label mismatch); endpoint failures come back in the slice.
func (c *Collector) scrapeEndpoints(ctx context.Context, log *slog.Logger, batch *metrics.Batch, identity *plex.Identity) ([]error, error) {
	endpoints := []endpoint{
		{name: "sessions", scrape: c.scrapeSessions},
		{name: "library", scrape: c.scrapeLibrary},
		{name: "devices", scrape: func(ctx context.Context, b *metrics.Batch) []error {
			return c.scrapeDevices(ctx, b, identity.MachineIdentifier)
		}},
		{name: "activities", scrape: c.scrapeActivities},
		{name: "updater", scrape: c.scrapeUpdater},
	}

	batches := make([]*metrics.Batch, len(endpoints))
	results := make([][]error, len(endpoints))

	var g errgroup.Group
	for i, ep := range endpoints {
		i, ep := i, ep
		batches[i] = c.registry.NewBatch()
		g.Go(func() error {
			results[i] = ep.scrape(ctx, batches[i])
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, ep := range endpoints {
		if err := batch.Append(batches[i]); err != nil {
			return nil, err
		}
		for _, err := range results[i] {
			log.Warn("endpoint failed", "endpoint", ep.name, "error", err)
		}
		errs = append(errs, results[i]...)
	}
	return errs, nil
}

func (c *Collector) scrapeSessions(ctx context.Context, b *metrics.Batch) []error {
	list, err := c.api.Sessions(ctx)
	if err != nil {
		return []error{err}
	}
	set := MapSessions(list)

	// Staged separately so a mapping error leaves no partial session writes behind.
	sub := c.registry.NewBatch()
	if err := sub.Set(MetricSessionsActive, nil, float64(set.Active)); err != nil {
		return []error{err}
	}
	if err := sub.Set(MetricTranscodesActive, nil, float64(len(set.Transcodes))); err != nil {
		return []error{err}
	}
	if err := sub.ReplaceAll(MetricSessionDetails, set.Sessions); err != nil {
		return []error{err}
	}
	if err := sub.ReplaceAll(MetricTranscodeDetails, set.Transcodes); err != nil {
		return []error{err}
	}
	c.logger.Debug("mapped sessions", "active", set.Active, "transcoding", len(set.Transcodes))
	if err := b.Append(sub); err != nil {
		return []error{err}
	}
	return nil
}

// scrapeLibrary always reports the section count when the section list loads. The
// per-section item counts are replaced only when every section's count was fetched,
// so a partial failure keeps the previous set whole. Sections without a key cannot
// be queried and are left out of the set.
func (c *Collector) scrapeLibrary(ctx context.Context, b *metrics.Batch) []error {
	sections, err := c.api.LibrarySections(ctx)
	if err != nil {
		return []error{err}
	}

	count := int64(sections.Size)
	if count == 0 {
		count = int64(len(sections.Directory))
	}
	if err := b.Set(MetricLibrarySectionsCount, nil, float64(count)); err != nil {
		return []error{err}
	}

	points := make([]metrics.MetricPoint, len(sections.Directory))
	fetched := make([]bool, len(sections.Directory))
	failures := make([]error, len(sections.Directory))

	var g errgroup.Group
	g.SetLimit(c.opts.SectionConcurrency)
	for i, section := range sections.Directory {
		i, section := i, section
		if section.Key == "" {
			c.logger.Warn("skipping library section without key", "section", section.Title)
			continue
		}
		g.Go(func() error {
			n, err := c.api.SectionItemCount(ctx, section.Key)
			if err != nil {
				failures[i] = fmt.Errorf("section %q: %w", section.Title, err)
				return nil
			}
			points[i] = LibraryItemPoint(section, n)
			fetched[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	items := make([]metrics.MetricPoint, 0, len(points))
	for i, p := range points {
		if fetched[i] {
			items = append(items, p)
		}
	}
	if err := b.ReplaceAll(MetricLibraryItemsCount, items); err != nil {
		return []error{err}
	}
	return nil
}

func (c *Collector) scrapeDevices(ctx context.Context, b *metrics.Batch, serverID string) []error {
	devices, err := c.api.Devices(ctx)
	if err != nil {
		return []error{err}
	}
	if err := b.Set(MetricDevicesConnected, nil, float64(CountDevices(devices, serverID))); err != nil {
		return []error{err}
	}
	return nil
}

func (c *Collector) scrapeActivities(ctx context.Context, b *metrics.Batch) []error {
	activities, err := c.api.Activities(ctx)
	if err != nil {
		return []error{err}
	}
	if err := b.Set(MetricActivitiesActive, nil, float64(activities.Size)); err != nil {
		return []error{err}
	}
	return nil
}

func (c *Collector) scrapeUpdater(ctx context.Context, b *metrics.Batch) []error {
	status, err := c.api.UpdaterStatus(ctx)
	if err != nil {
		return []error{err}
	}
	if err := b.ReplaceAll(MetricUpdaterAvailable, []metrics.MetricPoint{UpdaterPoint(status)}); err != nil {
		return []error{err}
	}
	return nil
}
