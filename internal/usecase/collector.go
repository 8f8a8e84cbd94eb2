package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// CollectorDeps wires the collaborators of the daemon core.
type CollectorDeps struct {
	Registrar ports.Registrar
	Reporter  ports.Reporter
	Scorer    ports.Scorer
	Pipeline  *Pipeline
	Stats     *Stats
	Clock     ports.Clock
	Logger    *slog.Logger
}

// CollectorSettings holds the daemon's identity and timers.
type CollectorSettings struct {
	Registration      domain.Registration
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
	Watchers          []Watcher
}

// Collector runs the watcher loops and the liveness reporter.
type Collector struct {
	registrar ports.Registrar
	reporter  ports.Reporter
	scorer    ports.Scorer
	pipeline  *Pipeline
	stats     *Stats
	clock     ports.Clock
	logger    *slog.Logger
	settings  CollectorSettings

	mu            sync.Mutex
	lastReportAt  time.Time
	configVersion int64
}

// NewCollector constructs the daemon core.
func NewCollector(deps CollectorDeps, settings CollectorSettings) *Collector {
	if settings.HeartbeatInterval <= 0 {
		settings.HeartbeatInterval = time.Minute
	}
	if settings.ShutdownTimeout <= 0 {
		settings.ShutdownTimeout = 5 * time.Second
	}
	if deps.Stats == nil {
		deps.Stats = NewStats(0)
	}
	c := &Collector{
		registrar: deps.Registrar,
		reporter:  deps.Reporter,
		scorer:    deps.Scorer,
		pipeline:  deps.Pipeline,
		stats:     deps.Stats,
		clock:     deps.Clock,
		logger:    deps.Logger,
		settings:  settings,
	}
	if deps.Pipeline != nil {
		deps.Pipeline.OnUnregistered(c.reregister)
	}
	return c
}

// Start registers with the coordinator and checks the scorer. Both are
// required: an error here means the daemon must not run degraded.
func (c *Collector) Start(ctx context.Context) error {
	if err := c.register(ctx); err != nil {
		return err
	}
	if c.scorer != nil {
		if err := c.scorer.Health(ctx); err != nil {
			return fmt.Errorf("scorer unreachable: %w", err)
		}
		c.stats.SetScorerReachable(true)
	}
	return nil
}

// Run starts every loop and blocks until ctx is cancelled. It then makes
// one final offline report bounded by the shutdown timeout.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range c.settings.Watchers {
		g.Go(func() error {
			c.info("watcher started", "watcher", w.Name, "interval", w.Interval, "start_delay", w.StartDelay)
			every(gctx, c.clock, w.StartDelay, w.Interval, func(ctx context.Context) {
				report := c.pipeline.RunTick(ctx, w)
				c.info("tick complete",
					"watcher", report.Watcher,
					"fetched", report.Fetched,
					"kept", report.Filtered,
					"batches", report.Batches,
					"submitted", report.Submitted,
					"accepted", report.Accepted,
					"duplicates", report.Duplicates,
					"routed", report.Routed,
					"errors", report.Errors,
					"duration", report.Duration,
				)
			})
			return nil
		})
	}
	g.Go(func() error {
		interval := c.settings.HeartbeatInterval
		every(gctx, c.clock, interval, interval, func(ctx context.Context) {
			_ = c.Report(ctx, "")
		})
		return nil
	})

	err := g.Wait()
	c.shutdown()
	return err
}

// Report sends one liveness report and commits the reported counters on
// success. A failure keeps everything for the next attempt.
func (c *Collector) Report(ctx context.Context, status domain.WorkerStatus) error {
	if c.reporter == nil {
		return nil
	}

	snap := c.stats.Snapshot()
	now := c.clock.Now()

	c.mu.Lock()
	since := c.lastReportAt
	c.mu.Unlock()

	report := domain.HeartbeatReport{
		Status:          status,
		CurrentTask:     snap.CurrentTask,
		QueueDepth:      snap.QueueDepth,
		Counters:        snap.Counters,
		UptimeSeconds:   int64(now.Sub(since).Seconds()),
		Resources:       resourceUsage(),
		ScorerReachable: snap.ScorerReachable,
		Errors:          snap.Errors,
	}

	ack, err := c.reporter.Heartbeat(ctx, c.pipeline.WorkerID(), report)
	if err != nil {
		c.warn("liveness report failed", "error", err)
		if errors.Is(err, ports.ErrUnregistered) && status != domain.WorkerOffline {
			c.reregister(ctx)
		}
		return err
	}

	c.stats.Commit(snap)
	c.mu.Lock()
	c.lastReportAt = now
	c.mu.Unlock()
	c.observeConfigVersion(ack.ConfigVersion)
	c.debug("liveness reported", "status", ack.Status, "errors", len(snap.Errors))
	return nil
}

func (c *Collector) register(ctx context.Context) error {
	if c.registrar == nil {
		return fmt.Errorf("no registrar configured")
	}
	ack, err := c.registrar.Register(ctx, c.settings.Registration)
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	c.pipeline.SetWorkerID(ack.WorkerID)

	c.mu.Lock()
	c.lastReportAt = c.clock.Now()
	c.configVersion = ack.ConfigVersion
	c.mu.Unlock()

	c.info("registered", "worker_id", ack.WorkerID, "status", ack.Status, "config_version", ack.ConfigVersion)
	return nil
}

// reregister restores the worker's registration after the coordinator
// forgot it. Failures are retried by the next heartbeat or submission.
func (c *Collector) reregister(ctx context.Context) {
	if err := c.register(ctx); err != nil {
		c.warn("re-registration failed", "error", err)
	}
}

func (c *Collector) observeConfigVersion(version int64) {
	c.mu.Lock()
	previous := c.configVersion
	if version > previous {
		c.configVersion = version
	}
	c.mu.Unlock()

	if version > previous {
		c.info("coordinator announced a newer config version; restart to apply", "current", previous, "announced", version)
	}
}

// shutdown makes the final offline report. It never blocks longer than the
// shutdown timeout and its failure does not prevent exit.
func (c *Collector) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), c.settings.ShutdownTimeout)
	defer cancel()

	if err := c.Report(ctx, domain.WorkerOffline); err != nil {
		c.warn("final offline report failed", "error", err)
	}

	total := c.stats.Lifetime()
	c.info("collector stopped",
		"fetched", total.ItemsFetched,
		"submitted", total.ItemsSubmitted,
		"accepted", total.ItemsAccepted,
		"surfaced", total.DecisionsSurfaced,
		"api_calls", total.APICalls,
		"tokens", total.Tokens,
		"errors", total.Errors,
	)
}

func resourceUsage() domain.ResourceUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return domain.ResourceUsage{
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(m.HeapAlloc) / (1 << 20),
	}
}

func (c *Collector) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Collector) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Collector) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
