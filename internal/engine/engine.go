package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/wirespeed/internal/fetch"
	"github.com/tanq16/wirespeed/internal/plan"
	"github.com/tanq16/wirespeed/internal/probe"
	"github.com/tanq16/wirespeed/internal/progress"
	"github.com/tanq16/wirespeed/internal/utils"
)

// Outcome is the terminal result of a measurement run.
type Outcome int

const (
	// AllChunksCompleted means every byte of the resource was
	// retrieved.
	AllChunksCompleted Outcome = iota
	// CompletedWithFailures means all fetchers stopped but at least
	// one chunk failed.
	CompletedWithFailures
	// Interrupted means the run was cancelled before all fetchers
	// finished; partial byte counts are retained.
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case AllChunksCompleted:
		return "all chunks completed"
	case CompletedWithFailures:
		return "completed with failures"
	case Interrupted:
		return "interrupted"
	}
	return "unknown"
}

// Config carries one measurement's parameters. SampleFunc receives a
// throughput reading once per Interval and StartFunc fires once after
// the probe; the engine itself prints nothing.
type Config struct {
	URL              string
	Connections      int
	Window           time.Duration
	Interval         time.Duration
	Duration         time.Duration // optional cap; 0 means run to completion
	HTTPClientConfig utils.HTTPClientConfig
	StartFunc        func(url string, size int64, connections int)
	SampleFunc       func(progress.Sample)
}

// Result is the completed measurement.
type Result struct {
	ID         string
	URL        string
	Length     int64
	Downloaded int64
	Elapsed    time.Duration
	Outcome    Outcome
	Chunks     []fetch.State
}

// Run probes the target, partitions it across Connections concurrent
// range fetchers, and samples throughput every Interval until all
// chunks reach a terminal state. A single chunk's failure does not
// cancel its siblings; cancelling ctx (or exceeding Duration) stops
// every fetcher.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	log := utils.GetLogger("engine")
	runID := uuid.New().String()

	if cfg.Connections < 1 {
		cfg.Connections = 1
	}
	if cfg.Window == 0 {
		cfg.Window = utils.DefaultWindow
	}
	if cfg.Interval == 0 {
		cfg.Interval = utils.DefaultInterval
	}
	cfg.HTTPClientConfig.HighThreadMode = cfg.Connections > 5
	client := utils.NewMeterHTTPClient(cfg.HTTPClientConfig)

	resource, err := probe.Probe(ctx, cfg.URL, client)
	if err != nil {
		return nil, err
	}

	connections := cfg.Connections
	if !resource.SupportsRanges {
		log.Warn().Str("id", runID).Msg("Server does not support range requests, using a single stream")
		connections = 1
	}
	chunks := plan.Plan(resource.Length, connections)
	ranged := resource.SupportsRanges && len(chunks) > 1

	log.Debug().Str("id", runID).Str("url", resource.URL).
		Int64("size", resource.Length).Int("chunks", len(chunks)).
		Msg("Starting measurement")
	if cfg.StartFunc != nil {
		cfg.StartFunc(resource.URL, resource.Length, len(chunks))
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	counter := &progress.Counter{}
	fetcher := fetch.NewFetcher(resource.URL, client, counter, ranged)
	states := make([]fetch.State, len(chunks))
	for i, chunk := range chunks {
		states[i] = fetch.State{Chunk: chunk}
	}

	startTime := time.Now()
	tickerDone := make(chan struct{})
	tickerStopped := make(chan struct{})
	go func() {
		defer close(tickerStopped)
		runTicker(cfg, counter, startTime, tickerDone)
	}()

	// Plain errgroup, no shared cancel: a failed chunk must not take
	// its siblings down with it.
	var group errgroup.Group
	for i := range states {
		state := &states[i]
		group.Go(func() error {
			fetcher.Fetch(ctx, state)
			return nil
		})
	}
	group.Wait()
	close(tickerDone)
	<-tickerStopped
	elapsed := time.Since(startTime)

	result := &Result{
		ID:         runID,
		URL:        resource.URL,
		Length:     resource.Length,
		Downloaded: counter.Total(),
		Elapsed:    elapsed,
		Outcome:    DetectOutcome(ctx, states),
		Chunks:     states,
	}
	log.Debug().Str("id", runID).Int64("bytes", result.Downloaded).
		Dur("elapsed", elapsed).Str("outcome", result.Outcome.String()).
		Msg("Measurement finished")
	return result, nil
}

// runTicker drives the estimator until done closes, pushing one sample
// per interval to the configured reporter.
func runTicker(cfg Config, counter *progress.Counter, startTime time.Time, done <-chan struct{}) {
	estimator := progress.NewEstimator(cfg.Window)
	estimator.Start(startTime)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			sample := estimator.Observe(now, counter.Total())
			if cfg.SampleFunc != nil {
				cfg.SampleFunc(sample)
			}
		}
	}
}

// DetectOutcome reduces the terminal chunk states to a run outcome.
// All fetchers have returned by the time it is called.
func DetectOutcome(ctx context.Context, states []fetch.State) Outcome {
	if ctx.Err() != nil {
		for _, state := range states {
			if state.Status != fetch.StatusCompleted {
				return Interrupted
			}
		}
	}
	for _, state := range states {
		if state.Status != fetch.StatusCompleted {
			return CompletedWithFailures
		}
	}
	return AllChunksCompleted
}
