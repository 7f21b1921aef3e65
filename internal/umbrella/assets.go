package umbrella

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
)

// FilterMode selects the governance-tags filter applied to the asset
// query: "all" fetches everything, "not_vtagged" restricts to
// resources missing the listed dimension tags.
type FilterMode string

const (
	FilterAll        FilterMode = "all"
	FilterNotVtagged FilterMode = "not_vtagged"
)

// AssetQuery parameterizes one asset-streaming run.
type AssetQuery struct {
	AccountKey   string
	StartDate    string // YYYY-MM-DD
	EndDate      string // YYYY-MM-DD
	TagKeysUsed  []string
	FilterMode   FilterMode
	FilterDims   []string
	MaxPages     int // 0 = unbounded
}

// fixedColumns are always requested regardless of tag_keys_used.
var fixedColumns = []string{"resourceid", "linkedaccid", "payeraccount"}

// buildColumns returns the fixed columns plus customtags:<key> for
// every key in tagKeysUsed, sorted lexicographically; ordering is part
// of the column-index contract the pipeline relies on.
func buildColumns(tagKeysUsed []string) []string {
	sorted := make([]string, len(tagKeysUsed))
	copy(sorted, tagKeysUsed)
	sort.Strings(sorted)

	cols := make([]string, 0, len(fixedColumns)+len(sorted))
	cols = append(cols, fixedColumns...)
	for _, k := range sorted {
		cols = append(cols, "customtags:"+k)
	}
	return cols
}

// assetResponse is the raw page shape returned by /v2/usage/assets.
type assetResponse struct {
	Data      []map[string]interface{} `json:"data"`
	NextToken *string                  `json:"nextToken"`
}

// AssetPage is one fetched batch plus the continuation state.
type AssetPage struct {
	Resources []map[string]interface{}
	HasMore   bool
}

// AssetIterator owns the continuation token and yields one page per
// Next call. Cancellation is observed between advances.
type AssetIterator struct {
	client *Client
	query  AssetQuery
	token  string
	page   int
	done   bool
}

// NewAssetIterator builds an iterator for query.
func (c *Client) NewAssetIterator(query AssetQuery) *AssetIterator {
	return &AssetIterator{client: c, query: query}
}

// Next fetches the next page, or returns (nil, false, nil) once the
// stream is exhausted or max_pages is reached. A cancelled ctx yields a
// KindCancelled error.
func (it *AssetIterator) Next(ctx context.Context) (*AssetPage, bool, error) {
	if it.done {
		return nil, false, nil
	}
	select {
	case <-ctx.Done():
		return nil, false, vtagerrors.NewCancelled("asset fetch cancelled")
	default:
	}
	if it.query.MaxPages > 0 && it.page >= it.query.MaxPages {
		it.done = true
		return nil, false, nil
	}

	reqURL := it.client.baseURL + "/v2/usage/assets?" + it.buildQuery().Encode()

	resp, err := it.client.do(ctx, http.MethodGet, reqURL, nil, it.query.AccountKey, assetPageTimeout)
	if err != nil {
		it.done = true
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		it.done = true
		return nil, false, vtagerrors.NewUpstreamTransient("asset page fetch returned non-200").
			WithDetail("status", resp.StatusCode).WithDetail("body", string(data))
	}

	var out assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		it.done = true
		return nil, false, vtagerrors.NewUpstreamTransient("asset page decode failed").WithCause(err)
	}

	it.page++
	if out.NextToken != nil && *out.NextToken != "" {
		it.token = *out.NextToken
	} else {
		it.done = true
	}

	return &AssetPage{Resources: out.Data, HasMore: !it.done}, !it.done, nil
}

func (it *AssetIterator) buildQuery() url.Values {
	q := url.Values{}
	q.Set("startDate", it.query.StartDate)
	q.Set("endDate", it.query.EndDate)
	q.Set("isK8S", "0")
	q.Set("granLevel", "week")
	q.Set("costType", "cost")
	q.Set("isUnblended", "false")

	for _, col := range buildColumns(it.query.TagKeysUsed) {
		q.Add("columns", col)
	}

	if it.query.FilterMode == FilterNotVtagged {
		for _, dim := range it.query.FilterDims {
			q.Add("filters[governance_tags_keys]", fmt.Sprintf("%s: no_tag", dim))
		}
	}

	if it.token != "" {
		q.Set("token", it.token)
	}

	return q
}

// WindowForWeek returns the Monday-Sunday ISO week window containing t.
func WindowForWeek(t time.Time) (start, end time.Time) {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	sunday := monday.AddDate(0, 0, 6)
	return dateOnly(monday), dateOnly(sunday)
}

// WindowForMonth returns the first and last calendar day of t's month.
func WindowForMonth(t time.Time) (start, end time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1)
	return dateOnly(first), dateOnly(last)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatDate renders t as the upstream's YYYY-MM-DD format.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
