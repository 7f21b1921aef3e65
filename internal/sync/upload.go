package sync

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"
	"strings"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
	"github.com/catherinevee/vtagger/internal/metrics"
	"github.com/catherinevee/vtagger/internal/pipeline"
	"github.com/catherinevee/vtagger/internal/resolve"
	"github.com/catherinevee/vtagger/internal/umbrella"
)

// uploadCSVHeader is the literal header required by the upstream
// import endpoint.
var uploadCSVHeader = []string{
	"Resource Cost", "Resource Name", "Resource ID", "Service", "Region",
	"Linked Account", "Virtual Tags", "Tags",
}

const maxResourceIDLength = 255

// UploadResult records one payer's completed presigned upload.
type UploadResult struct {
	UploadID string
	PayerID  string
	RowCount int
}

// uploadPhase groups matched records by payer, builds and uploads one
// CSV per payer, and returns the resulting upload handles.
func (c *Coordinator) uploadPhase(ctx context.Context, accounts *umbrella.Accounts, jsonlPath string, result *pipeline.Result) ([]UploadResult, error) {
	byPayer, err := groupByPayer(jsonlPath)
	if err != nil {
		return nil, err
	}

	lookup := accounts.AccountLookup()

	var results []UploadResult
	var payerIDs []string
	for payer := range byPayer {
		payerIDs = append(payerIDs, payer)
	}
	sort.Strings(payerIDs)

	for _, payerID := range payerIDs {
		select {
		case <-ctx.Done():
			return results, vtagerrors.NewCancelled("cancelled during upload phase")
		default:
		}

		rows := byPayer[payerID]
		csvBytes, rowCount, err := buildUploadCSV(rows)
		if err != nil {
			return results, err
		}
		if rowCount == 0 {
			continue
		}

		gzipped, err := gzipBytes(csvBytes)
		if err != nil {
			return results, vtagerrors.NewIO("failed to gzip upload csv").WithCause(err)
		}

		accountKey := lookup[payerID]
		handle, err := c.client.GenerateUploadURL(ctx, accountKey, true, umbrella.ModeUpsert)
		if err != nil {
			if vtagerrors.Is(err, vtagerrors.KindUpstreamFatal) {
				return results, err
			}
			log.Warn().Str("payer", payerID).Err(err).Msg("payer upload skipped after handshake failure")
			metrics.UploadsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if err := c.client.PutFile(ctx, handle.URL, gzipped, true); err != nil {
			log.Warn().Str("payer", payerID).Err(err).Msg("payer upload skipped after PUT failure")
			metrics.UploadsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		metrics.UploadsTotal.WithLabelValues("success").Inc()
		results = append(results, UploadResult{UploadID: handle.UploadID, PayerID: payerID, RowCount: rowCount})
	}

	return results, nil
}

// groupByPayer reads the spilled JSONL and groups matched records by
// payer account, deduplicating by resource_id (last write wins, same
// as the source's dict-based accumulation).
func groupByPayer(jsonlPath string) (map[string]map[string]pipeline.JSONLRecord, error) {
	f, err := os.Open(jsonlPath)
	if err != nil {
		return nil, vtagerrors.NewIO("failed to reopen jsonl for upload phase").WithCause(err)
	}
	defer f.Close()

	byPayer := make(map[string]map[string]pipeline.JSONLRecord)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec pipeline.JSONLRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, vtagerrors.NewIO("failed to parse spilled jsonl").WithCause(err)
		}
		if _, ok := byPayer[rec.PayerAccount]; !ok {
			byPayer[rec.PayerAccount] = make(map[string]pipeline.JSONLRecord)
		}
		byPayer[rec.PayerAccount][rec.ResourceID] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, vtagerrors.NewIO("failed reading spilled jsonl").WithCause(err)
	}
	return byPayer, nil
}

// buildUploadCSV renders one payer's deduplicated records into the
// upload CSV shape, skipping rows whose Resource ID is empty, the
// literal "Not Available", or too long.
func buildUploadCSV(rows map[string]pipeline.JSONLRecord) ([]byte, int, error) {
	var resourceIDs []string
	for id := range rows {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Strings(resourceIDs)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(uploadCSVHeader); err != nil {
		return nil, 0, vtagerrors.NewIO("failed to write upload csv header").WithCause(err)
	}

	written := 0
	for _, id := range resourceIDs {
		rec := rows[id]
		if !validResourceID(id) {
			continue
		}

		vtags := virtualTagString(rec.Dimensions)
		row := []string{"", "", id, "", "", rec.LinkedAccount, vtags, ""}
		if err := w.Write(row); err != nil {
			return nil, 0, vtagerrors.NewIO("failed to write upload csv row").WithCause(err)
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, vtagerrors.NewIO("upload csv writer error").WithCause(err)
	}

	return buf.Bytes(), written, nil
}

func validResourceID(id string) bool {
	if id == "" || id == "Not Available" {
		return false
	}
	if len(id) > maxResourceIDLength {
		return false
	}
	return true
}

// virtualTagString renders dims as "name1:value1;name2:value2;...",
// sorted by name, omitting any dimension still at its default value.
func virtualTagString(dims map[string]string) string {
	var names []string
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		val := dims[name]
		if val == "" || val == resolve.DefaultValue {
			continue
		}
		parts = append(parts, name+":"+val)
	}
	return strings.Join(parts, ";")
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
