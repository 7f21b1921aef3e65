// Package sync implements the process-wide single-flight coordinator
// that drives one run (week, month, or custom range) through the
// fetch+map pipeline, the per-payer upload phase, and completion
// persistence.
package sync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/catherinevee/vtagger/internal/dimension"
	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
	"github.com/catherinevee/vtagger/internal/logging"
	"github.com/catherinevee/vtagger/internal/metrics"
	"github.com/catherinevee/vtagger/internal/pipeline"
	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/catherinevee/vtagger/internal/store"
	"github.com/catherinevee/vtagger/internal/umbrella"
)

var log = logging.Component("sync")

// Mode is the kind of run being requested, collapsing what were
// separate week/month/range/simulation services in the source into one
// coordinator.
type Mode string

const (
	ModeWeek       Mode = "week"
	ModeMonth      Mode = "month"
	ModeRange      Mode = "range"
	ModeSimulation Mode = "simulation"
)

const maxUploadHistory = 30

// Request is one sync invocation's parameters.
type Request struct {
	Mode            Mode
	AnchorDate      time.Time // week/month reference date
	StartDate       time.Time // range mode
	EndDate         time.Time // range mode
	DimensionSubset map[string]bool
	FilterMode      umbrella.FilterMode
	FilterDims      []string
	ForceAll        bool
	AccountKeys     []string // optional restriction
	DryRun          bool
}

// Coordinator holds the single-flight lock and the collaborators a run
// needs.
type Coordinator struct {
	client      *umbrella.Client
	dimensions  *dimension.Manager
	store       *store.Store
	broadcaster *progress.Broadcaster
	outputDir   string

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// New returns an idle Coordinator.
func New(client *umbrella.Client, dims *dimension.Manager, st *store.Store, bcast *progress.Broadcaster, outputDir string) *Coordinator {
	return &Coordinator{
		client:      client,
		dimensions:  dims,
		store:       st,
		broadcaster: bcast,
		outputDir:   outputDir,
	}
}

// IsRunning reports whether a run is currently in flight.
func (c *Coordinator) IsRunning() bool { return c.running.Load() }

// Start attempts to transition to starting; a second caller while one
// run is in flight gets ConflictError immediately and the first run's
// state is untouched.
func (c *Coordinator) Start(ctx context.Context, req Request) error {
	if !c.running.CompareAndSwap(false, true) {
		return vtagerrors.NewConflict("a sync is already running")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.broadcaster.SetState(progress.StateStarting, "starting sync", string(req.Mode))

	go c.run(runCtx, req)
	return nil
}

// Cancel requests cancellation of the in-flight run, if any. Calling it
// when idle is a no-op.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) run(ctx context.Context, req Request) {
	runStart := time.Now()
	metrics.ActiveSyncGauge.Set(1)
	defer c.running.Store(false)
	defer metrics.ActiveSyncGauge.Set(0)
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()
	defer func() {
		metrics.SyncDurationSeconds.WithLabelValues(string(req.Mode)).Observe(time.Since(runStart).Seconds())
	}()

	start, end := windowFor(req)
	startStr, endStr := umbrella.FormatDate(start), umbrella.FormatDate(end)

	c.broadcaster.SetState(progress.StateAuthenticating, "authenticating", "")
	if err := c.client.Authenticate(ctx); err != nil {
		c.finishError(req, startStr, endStr, err)
		return
	}

	c.broadcaster.SetState(progress.StateFetchingAccounts, "listing accounts", "")
	accounts, err := c.client.ListAccounts(ctx)
	if err != nil {
		c.finishError(req, startStr, endStr, err)
		return
	}

	accountSpecs := selectAccounts(accounts, req.AccountKeys)

	jsonlPath, csvPath := tempPaths(c.outputDir)
	result, err := pipeline.Run(ctx, pipeline.Options{
		Client:          c.client,
		Accounts:        accountSpecs,
		Dimensions:      c.dimensions.Compiled(),
		DimensionSubset: req.DimensionSubset,
		StartDate:       startStr,
		EndDate:         endStr,
		FilterMode:      req.FilterMode,
		FilterDims:      req.FilterDims,
		JSONLPath:       jsonlPath,
		CSVPath:         csvPath,
		ReservoirSeed:   time.Now().UnixNano(),
		Broadcaster:     c.broadcaster,
	})
	defer cleanupFiles(jsonlPath, csvPath)

	if err != nil {
		c.finishError(req, startStr, endStr, err)
		return
	}

	if result.State == pipeline.StateCancelled {
		c.finishCancelled(req, startStr, endStr, result)
		return
	}

	c.persistDiscoveredTags(result)

	var uploads []UploadResult
	if !req.DryRun {
		uploads, err = c.uploadPhase(ctx, accounts, jsonlPath, result)
		if err != nil {
			c.finishError(req, startStr, endStr, err)
			return
		}
	}

	c.finishSuccess(req, startStr, endStr, result, uploads)
}

func windowFor(req Request) (time.Time, time.Time) {
	switch req.Mode {
	case ModeWeek:
		return umbrella.WindowForWeek(req.AnchorDate)
	case ModeMonth:
		return umbrella.WindowForMonth(req.AnchorDate)
	default:
		return req.StartDate, req.EndDate
	}
}

func selectAccounts(accounts *umbrella.Accounts, restrictKeys []string) []pipeline.AccountSpec {
	allow := make(map[string]bool)
	for _, k := range restrictKeys {
		allow[k] = true
	}

	var specs []pipeline.AccountSpec
	for _, list := range [][]umbrella.Account{accounts.Individual, accounts.Aggregate} {
		for _, a := range list {
			if len(allow) > 0 && !allow[a.AccountKey] {
				continue
			}
			specs = append(specs, pipeline.AccountSpec{AccountID: a.AccountID, AccountKey: a.AccountKey})
		}
	}
	return specs
}

// persistDiscoveredTags merges this run's observed physical tag keys
// and sample values into the store's discovered_tags table.
func (c *Coordinator) persistDiscoveredTags(result *pipeline.Result) {
	if result.DiscoveredTags == nil {
		return
	}
	for _, key := range result.DiscoveredTags.Keys() {
		samplesJSON, err := json.Marshal(result.DiscoveredTags.SamplesFor(key))
		if err != nil {
			continue
		}
		if err := c.store.RecordDiscoveredTag(key, string(samplesJSON)); err != nil {
			log.Error().Err(err).Str("tag_key", key).Msg("failed to record discovered tag")
		}
	}
}

func (c *Coordinator) finishError(req Request, start, end string, err error) {
	log.Error().Err(err).Msg("sync run failed")
	metrics.SyncRunsTotal.WithLabelValues("error", string(req.Mode)).Inc()
	c.broadcaster.SetState(progress.StateError, err.Error(), "")
	c.persistResult(req, start, end, "error", nil, nil, err.Error())
}

func (c *Coordinator) finishCancelled(req Request, start, end string, result *pipeline.Result) {
	metrics.SyncRunsTotal.WithLabelValues("cancelled", string(req.Mode)).Inc()
	c.broadcaster.SetState(progress.StateCancelled, "cancelled", "")
	c.persistResult(req, start, end, "cancelled", result.Counters, nil, "")
}

func (c *Coordinator) finishSuccess(req Request, start, end string, result *pipeline.Result, uploads []UploadResult) {
	metrics.SyncRunsTotal.WithLabelValues("success", string(req.Mode)).Inc()
	c.broadcaster.SetState(progress.StateComplete, "sync complete", "")
	c.persistResult(req, start, end, "success", result.Counters, uploads, "")
}

func (c *Coordinator) persistResult(req Request, start, end, status string, counters *pipeline.Counters, uploads []UploadResult, errMsg string) {
	total, matched, unmatched := 0, 0, 0
	if counters != nil {
		total, matched, unmatched = counters.Total, counters.Matched, counters.Unmatched
	}

	uploadsJSON, _ := json.Marshal(uploads)

	rec := store.LastSyncResult{
		Status:       status,
		SyncType:     string(req.Mode),
		StartDate:    start,
		EndDate:      end,
		Total:        total,
		Matched:      matched,
		Unmatched:    unmatched,
		ErrorMessage: errMsg,
		UploadsJSON:  string(uploadsJSON),
		CompletedAt:  time.Now(),
	}

	if err := c.store.PutLastSyncResult(rec); err != nil {
		log.Error().Err(err).Msg("failed to persist last sync result")
	}

	for _, u := range uploads {
		if err := c.store.RecordUpload(store.UploadRecord{UploadID: u.UploadID, PayerID: u.PayerID, RowCount: u.RowCount}, maxUploadHistory); err != nil {
			log.Error().Err(err).Msg("failed to record upload history")
		}
	}

	if err := c.store.UpsertDailyRollup(start, total, matched, unmatched, status == "error"); err != nil {
		log.Error().Err(err).Msg("failed to upsert daily rollup")
	}
}
