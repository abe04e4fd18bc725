// Package orchestrator runs accepted capture jobs end to end: discovery,
// the per-page per-device render loop, artifact uploads, progress updates
// and the terminal status transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
	"github.com/pagesnap/pagesnap/internal/crawler"
	"github.com/pagesnap/pagesnap/internal/progress"
)

// BrowserSession is a live browser able to both render screenshots and
// extract links for discovery.
type BrowserSession interface {
	capture.Renderer
	capture.LinkSource
}

// SessionFactory opens a fresh browser session for one job. The orchestrator
// closes the session when the job ends, on every exit path.
type SessionFactory func(ctx context.Context) (BrowserSession, error)

// Orchestrator executes jobs against the store and blob backends. One
// orchestrator is shared by all workers; per-job state lives on the stack.
type Orchestrator struct {
	store      capture.JobStore
	blobs      capture.BlobStore
	newSession SessionFactory
	// links overrides the browser session for discovery when set, allowing
	// static HTML fetching instead of headless navigation.
	links   capture.LinkSource
	emitter progress.Emitter
	clock   capture.Clock
	logger  *zap.Logger
}

// Option customizes orchestrator construction.
type Option func(*Orchestrator)

// WithStaticDiscovery makes discovery use the given link source instead of
// the job's browser session.
func WithStaticDiscovery(links capture.LinkSource) Option {
	return func(o *Orchestrator) { o.links = links }
}

// WithEmitter attaches a progress emitter.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// New constructs an Orchestrator.
func New(store capture.JobStore, blobs capture.BlobStore, newSession SessionFactory, clock capture.Clock, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		store:      store,
		blobs:      blobs,
		newSession: newSession,
		emitter:    progress.NopEmitter{},
		clock:      clock,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one job to a terminal state. Any render or upload failure
// aborts the whole job; already-uploaded artifacts are left in place for the
// expiry sweeper. A context error interrupts the run without marking the job
// failed, leaving it reclaimable by retention.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}
	if job.Status.Terminal() {
		o.logger.Info("skipping terminal job", zap.String("job_id", jobID), zap.String("status", string(job.Status)))
		return nil
	}

	start := o.clock.Now()
	logger := o.logger.With(zap.String("job_id", jobID), zap.String("url", job.SeedURL))
	logger.Info("job started",
		zap.Int("page_budget", job.PageBudget),
		zap.Int("devices", len(job.Devices)))
	o.emitter.Emit(progress.Event{
		JobID: jobID,
		TS:    start,
		Stage: progress.StageJobStart,
		URL:   job.SeedURL,
	})

	session, err := o.newSession(ctx)
	if err != nil {
		return o.failJob(ctx, job, start, fmt.Sprintf("browser session unavailable: %v", err))
	}
	defer func() {
		if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("closing browser session", zap.Error(cerr))
		}
	}()

	urls, err := o.discover(ctx, job, session)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("discovery interrupted: %w", ctx.Err())
		}
		return o.failJob(ctx, job, start, fmt.Sprintf("crawl failed: %v", err))
	}
	if err := o.store.SetPageCount(ctx, jobID, len(urls)); err != nil {
		return fmt.Errorf("recording page count: %w", err)
	}

	devices := orderedDevices(job.Devices)
	total := len(urls) * len(devices)
	logger.Info("discovery done", zap.Int("pages", len(urls)), zap.Int("units_total", total))
	o.emitter.Emit(progress.Event{
		JobID:      jobID,
		TS:         o.clock.Now(),
		Stage:      progress.StageDiscoveryDone,
		URL:        job.SeedURL,
		UnitsTotal: total,
	})

	mapping := make([]capture.FileEntry, 0, total)
	done := 0
	for pageIdx, pageURL := range urls {
		for _, device := range devices {
			status, err := o.statusAt(ctx, jobID)
			if err != nil {
				return err
			}
			if status.Terminal() {
				logger.Info("job reached terminal state",
					zap.String("status", string(status)),
					zap.Int("units_done", done),
					zap.Int("units_total", total))
				if status == capture.JobStatusCancelled {
					o.emitter.Emit(progress.Event{
						JobID:      jobID,
						TS:         o.clock.Now(),
						Stage:      progress.StageJobCancelled,
						Progress:   percentOf(done, total),
						UnitsDone:  done,
						UnitsTotal: total,
						Dur:        o.clock.Now().Sub(start),
					})
				}
				return nil
			}

			renderStart := o.clock.Now()
			img, err := session.Render(ctx, pageURL, device, job.ExcludePopups)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("render interrupted: %w", ctx.Err())
				}
				return o.failJob(ctx, job, start, renderFailureMessage(err))
			}

			filename := capture.ArtifactFilename(device, o.clock.Now(), done)
			path := capture.ArtifactPath(job, filename)
			if err := o.blobs.Put(ctx, path, capture.ImageContentType, img); err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("upload interrupted: %w", ctx.Err())
				}
				return o.failJob(ctx, job, start, fmt.Sprintf("storing screenshot for %s (%s): %v", pageURL, device, err))
			}
			mapping = append(mapping, capture.FileEntry{
				Filename:  filename,
				URL:       pageURL,
				Device:    device,
				PageIndex: pageIdx,
			})

			done++
			percent := percentOf(done, total)
			if err := o.store.SetProgress(ctx, jobID, percent); err != nil {
				return fmt.Errorf("persisting progress: %w", err)
			}
			o.emitter.Emit(progress.Event{
				JobID:      jobID,
				TS:         o.clock.Now(),
				Stage:      progress.StageUnitDone,
				URL:        pageURL,
				Device:     device,
				Progress:   percent,
				UnitsDone:  done,
				UnitsTotal: total,
				Bytes:      int64(len(img)),
				Dur:        o.clock.Now().Sub(renderStart),
			})
		}
	}

	if err := o.store.Complete(ctx, jobID, mapping); err != nil {
		// A cancel can land between the last unit and completion; the
		// terminal status wins.
		status, serr := o.statusAt(ctx, jobID)
		if serr == nil && status.Terminal() {
			if status == capture.JobStatusCancelled {
				o.emitter.Emit(progress.Event{
					JobID:      jobID,
					TS:         o.clock.Now(),
					Stage:      progress.StageJobCancelled,
					Progress:   percentOf(done, total),
					UnitsDone:  done,
					UnitsTotal: total,
					Dur:        o.clock.Now().Sub(start),
				})
			}
			return nil
		}
		return fmt.Errorf("completing job: %w", err)
	}

	logger.Info("job completed",
		zap.Int("pages", len(urls)),
		zap.Int("units", done),
		zap.Duration("runtime", o.clock.Now().Sub(start)))
	o.emitter.Emit(progress.Event{
		JobID:      jobID,
		TS:         o.clock.Now(),
		Stage:      progress.StageJobCompleted,
		URL:        job.SeedURL,
		Progress:   100,
		UnitsDone:  done,
		UnitsTotal: total,
		Dur:        o.clock.Now().Sub(start),
	})
	return nil
}

func (o *Orchestrator) discover(ctx context.Context, job capture.Job, session BrowserSession) ([]string, error) {
	if job.PageBudget <= 1 {
		return []string{job.SeedURL}, nil
	}
	links := o.links
	if links == nil {
		links = session
	}
	return crawler.New(links, o.logger).Discover(ctx, job.SeedURL, job.PageBudget)
}

// statusAt re-reads the job status at a unit boundary.
func (o *Orchestrator) statusAt(ctx context.Context, jobID string) (capture.JobStatus, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("checking job status: %w", err)
	}
	return job.Status, nil
}

// failJob persists the error status and emits the terminal event. The store
// keeps a cancelled or already-failed job untouched.
func (o *Orchestrator) failJob(ctx context.Context, job capture.Job, start time.Time, message string) error {
	persistCtx := context.WithoutCancel(ctx)
	if err := o.store.Fail(persistCtx, job.ID, message); err != nil {
		o.logger.Error("persisting job failure", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.logger.Warn("job failed", zap.String("job_id", job.ID), zap.String("reason", message))
	o.emitter.Emit(progress.Event{
		JobID: job.ID,
		TS:    o.clock.Now(),
		Stage: progress.StageJobError,
		URL:   job.SeedURL,
		Dur:   o.clock.Now().Sub(start),
		Note:  message,
	})
	return errors.New(message)
}

func renderFailureMessage(err error) string {
	var rerr *capture.RenderError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case capture.RenderTimeout:
			return fmt.Sprintf("timed out rendering %s (%s)", rerr.URL, rerr.Device)
		case capture.RenderEmptyCapture:
			return fmt.Sprintf("empty screenshot for %s (%s)", rerr.URL, rerr.Device)
		}
		return fmt.Sprintf("browser error rendering %s (%s): %v", rerr.URL, rerr.Device, rerr.Err)
	}
	return fmt.Sprintf("render failed: %v", err)
}

// orderedDevices filters the declared render order down to the requested
// set, so units always run desktop, tablet, mobile.
func orderedDevices(requested []capture.Device) []capture.Device {
	if len(requested) == 0 {
		return capture.DeviceOrder
	}
	want := make(map[capture.Device]bool, len(requested))
	for _, d := range requested {
		want[d] = true
	}
	out := make([]capture.Device, 0, len(requested))
	for _, d := range capture.DeviceOrder {
		if want[d] {
			out = append(out, d)
		}
	}
	return out
}

// percentOf is the persisted progress formula: integer floor, 0..100.
func percentOf(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
