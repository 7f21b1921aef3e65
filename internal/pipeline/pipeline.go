package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
	"github.com/catherinevee/vtagger/internal/logging"
	"github.com/catherinevee/vtagger/internal/metrics"
	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/catherinevee/vtagger/internal/resolve"
	"github.com/catherinevee/vtagger/internal/umbrella"
)

var log = logging.Component("pipeline")

// JSONLRecord is one emitted line: a matched resource's identity, its
// restricted dimension context, and the tags that produced it.
type JSONLRecord struct {
	ResourceID    string            `json:"resourceid"`
	LinkedAccount string            `json:"linkedaccid"`
	PayerAccount  string            `json:"payeraccount"`
	Dimensions    map[string]string `json:"dimensions"`
	Tags          map[string]string `json:"tags"`
}

// Counters accumulates per-run statistics.
type Counters struct {
	Total            int
	Matched          int
	Unmatched        int
	PerDimensionHits map[string]int
	PerAccountErrors map[string]int
}

// NewCounters returns a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{
		PerDimensionHits: make(map[string]int),
		PerAccountErrors: make(map[string]int),
	}
}

// AccountSpec describes one account to stream from.
type AccountSpec struct {
	AccountID  string
	AccountKey string
}

// Options bundles everything one pipeline run needs.
type Options struct {
	Client         *umbrella.Client
	Accounts       []AccountSpec
	Dimensions     []*resolve.Dimension // ascending OrderIndex
	DimensionSubset map[string]bool      // nil = no restriction
	StartDate      string
	EndDate        string
	FilterMode     umbrella.FilterMode
	FilterDims     []string
	MaxRecords     int // 0 = unbounded
	JSONLPath      string
	CSVPath        string
	ReservoirSeed  int64
	Broadcaster    *progress.Broadcaster
}

// Result is what a completed (or cancelled) run reports.
type Result struct {
	State          State
	Counters       *Counters
	SampleSize     int
	ErrorMessage   string
	DiscoveredTags *TagDiscovery
}

// Run drives the full pipeline: stream every account's asset pages,
// map each resource through the dimension chain, spill matched records
// to JSONL, and (if not cancelled) generate the final CSV.
func Run(ctx context.Context, opts Options) (*Result, error) {
	machine := NewMachine()
	counters := NewCounters()
	reservoir := NewReservoir(opts.ReservoirSeed)
	discovery := NewTagDiscovery()

	columnIndexMap := BuildColumnIndexMap(tagKeysUsed(opts.Dimensions))
	sortedDims := resolve.SortDimensions(opts.Dimensions)

	jsonlFile, err := os.Create(opts.JSONLPath)
	if err != nil {
		machine.ToError(err.Error())
		return &Result{State: machine.State(), Counters: counters, DiscoveredTags: discovery, ErrorMessage: err.Error()},
			vtagerrors.NewIO("failed to create jsonl spill file").WithCause(err)
	}
	defer jsonlFile.Close()
	writer := bufio.NewWriter(jsonlFile)
	defer writer.Flush()

	machine.ToFetching()
	if opts.Broadcaster != nil {
		opts.Broadcaster.SetState(progress.StateFetchingResources, "fetching assets", "")
	}

	recordsProcessed := 0

accounts:
	for _, acc := range opts.Accounts {
		if cancelled(ctx) {
			machine.ToCancelled()
			break accounts
		}

		if err := streamAccount(ctx, opts, acc, machine, counters, reservoir, discovery, sortedDims, columnIndexMap, writer, &recordsProcessed); err != nil {
			if vtagerrors.Is(err, vtagerrors.KindCancelled) {
				machine.ToCancelled()
				break accounts
			}
			if vtagerrors.Is(err, vtagerrors.KindUpstreamFatal) || vtagerrors.Is(err, vtagerrors.KindIO) {
				machine.ToError(err.Error())
				return &Result{State: machine.State(), Counters: counters, DiscoveredTags: discovery, ErrorMessage: err.Error()}, err
			}
			log.Warn().Str("account", acc.AccountID).Err(err).Msg("account skipped after error")
			counters.PerAccountErrors[acc.AccountID]++
			continue
		}

		if opts.MaxRecords > 0 && recordsProcessed >= opts.MaxRecords {
			break accounts
		}
	}

	writer.Flush()

	if machine.State() == StateCancelled {
		if opts.Broadcaster != nil {
			opts.Broadcaster.SetState(progress.StateCancelled, "cancelled during fetch", "")
		}
		return &Result{State: machine.State(), Counters: counters, DiscoveredTags: discovery, SampleSize: len(reservoir.Sample())}, nil
	}

	machine.ToGeneratingCSV()
	if opts.Broadcaster != nil {
		opts.Broadcaster.SetState(progress.StateWriting, "generating csv", "")
	}

	if err := GenerateCSV(opts.CSVPath, opts.JSONLPath, sortedDims, opts.DimensionSubset); err != nil {
		machine.ToError(err.Error())
		return &Result{State: machine.State(), Counters: counters, DiscoveredTags: discovery, ErrorMessage: err.Error()}, err
	}

	machine.ToDone()
	if opts.Broadcaster != nil {
		opts.Broadcaster.SetState(progress.StateWriting, "csv generated", "")
	}

	return &Result{State: machine.State(), Counters: counters, DiscoveredTags: discovery, SampleSize: len(reservoir.Sample())}, nil
}

func streamAccount(
	ctx context.Context,
	opts Options,
	acc AccountSpec,
	machine *Machine,
	counters *Counters,
	reservoir *Reservoir,
	discovery *TagDiscovery,
	sortedDims []*resolve.Dimension,
	columnIndexMap map[string]string,
	writer *bufio.Writer,
	recordsProcessed *int,
) error {
	iter := opts.Client.NewAssetIterator(umbrella.AssetQuery{
		AccountKey:  acc.AccountKey,
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		TagKeysUsed: tagKeysUsed(opts.Dimensions),
		FilterMode:  opts.FilterMode,
		FilterDims:  opts.FilterDims,
	})

	pageNum := 0
	for {
		if cancelled(ctx) {
			return vtagerrors.NewCancelled("cancelled between pages")
		}

		page, hasMore, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		pageNum++
		machine.ToProcessingPage(pageNum)

		for _, raw := range page.Resources {
			if cancelled(ctx) {
				return vtagerrors.NewCancelled("cancelled between resources")
			}
			if opts.MaxRecords > 0 && *recordsProcessed >= opts.MaxRecords {
				return nil
			}

			resource := resolve.Resource(raw)
			mr := resolve.MapResource(resource, columnIndexMap, sortedDims)
			counters.Total++
			*recordsProcessed++
			discovery.Observe(mr.TagContext)

			dimsOut := restrictDimensions(mr.DimensionContext, opts.DimensionSubset)
			anyMatched := matchedWithinSubset(dimsOut, sortedDims, opts.DimensionSubset)

			if anyMatched {
				counters.Matched++
				metrics.ResourcesProcessedTotal.WithLabelValues("true").Inc()
				for name, val := range dimsOut {
					if val != resolve.DefaultValue {
						counters.PerDimensionHits[name]++
					}
				}

				record := JSONLRecord{
					ResourceID:    mr.ResourceID,
					LinkedAccount: mr.LinkedAccount,
					PayerAccount:  mr.PayerAccount,
					Dimensions:    dimsOut,
					Tags:          mr.TagContext,
				}
				line, err := json.Marshal(record)
				if err != nil {
					return vtagerrors.NewIO("failed to marshal jsonl record").WithCause(err)
				}
				if _, err := writer.Write(append(line, '\n')); err != nil {
					return vtagerrors.NewIO("failed to write jsonl record").WithCause(err)
				}
				reservoir.Add(record)
			} else {
				counters.Unmatched++
				metrics.ResourcesProcessedTotal.WithLabelValues("false").Inc()
			}
		}

		if !hasMore {
			break
		}
	}

	return nil
}

// restrictDimensions returns dimCtx restricted to subset when subset
// is non-nil; otherwise the full context is returned unchanged.
func restrictDimensions(dimCtx map[string]string, subset map[string]bool) map[string]string {
	if subset == nil {
		return dimCtx
	}
	out := make(map[string]string, len(subset))
	for name := range subset {
		if v, ok := dimCtx[name]; ok {
			out[name] = v
		}
	}
	return out
}

// matchedWithinSubset reports whether any value in dimsOut differs
// from its dimension's default.
func matchedWithinSubset(dimsOut map[string]string, dims []*resolve.Dimension, subset map[string]bool) bool {
	defaults := make(map[string]string, len(dims))
	for _, d := range dims {
		defaults[d.Name] = d.DefaultValue
	}
	for name, val := range dimsOut {
		if subset != nil && !subset[name] {
			continue
		}
		if val != defaults[name] {
			return true
		}
	}
	return false
}

func tagKeysUsed(dims []*resolve.Dimension) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, d := range dims {
		for k := range d.Index.TagKeysUsed {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// GenerateCSV reads the spilled JSONL back and emits the pipeline's
// deterministic CSV: resourceid,linkedaccid,payeraccount,vtags:<d1>,...
// in ascending order_index, restricted to subset when non-nil. Missing
// values are written as the literal Unallocated.
func GenerateCSV(csvPath, jsonlPath string, sortedDims []*resolve.Dimension, subset map[string]bool) error {
	in, err := os.Open(jsonlPath)
	if err != nil {
		return vtagerrors.NewIO("failed to reopen jsonl for csv generation").WithCause(err)
	}
	defer in.Close()

	out, err := os.Create(csvPath)
	if err != nil {
		return vtagerrors.NewIO("failed to create csv output").WithCause(err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()

	var dimNames []string
	header := []string{"resourceid", "linkedaccid", "payeraccount"}
	for _, d := range sortedDims {
		if subset != nil && !subset[d.Name] {
			continue
		}
		dimNames = append(dimNames, d.Name)
		header = append(header, "vtags:"+d.Name)
	}
	if err := w.Write(header); err != nil {
		return vtagerrors.NewIO("failed to write csv header").WithCause(err)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec JSONLRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return vtagerrors.NewIO("failed to parse spilled jsonl record").WithCause(err)
		}

		row := []string{rec.ResourceID, rec.LinkedAccount, rec.PayerAccount}
		for _, name := range dimNames {
			val, ok := rec.Dimensions[name]
			if !ok || val == "" {
				val = resolve.DefaultValue
			}
			row = append(row, val)
		}
		if err := w.Write(row); err != nil {
			return vtagerrors.NewIO("failed to write csv row").WithCause(err)
		}
	}
	if err := scanner.Err(); err != nil {
		return vtagerrors.NewIO("failed reading spilled jsonl").WithCause(err)
	}

	return nil
}

