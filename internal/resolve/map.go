package resolve

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Resource is a single raw asset row as returned by the upstream
// streaming API: arbitrary string-keyed fields, some of which carry
// tag data under one of three channels (see ExtractTagContext).
type Resource map[string]interface{}

// MappedResource is the per-resource result of chaining a resource
// through every compiled dimension.
type MappedResource struct {
	ResourceID       string
	LinkedAccount    string
	PayerAccount     string
	DimensionContext map[string]string
	TagContext       map[string]string
	AnyMatched       bool
}

var tagPrefixPattern = regexp.MustCompile(`^Tag: (.+)$`)
var positionalPattern = regexp.MustCompile(`^customTagValue_(\d+)$`)

// ExtractTagContext builds the tag context for a resource from its
// three channels, merged in precedence order: customTags array first,
// then positional customTagValue_N columns (via columnIndexMap,
// ordered by N for determinism), then Tag: -prefixed columns (ordered
// alphabetically for determinism). A later channel only fills a slot
// the earlier channels left empty.
func ExtractTagContext(resource Resource, columnIndexMap map[string]string) *Context {
	ctx := NewContext()

	if rawTags, ok := resource["customTags"].([]interface{}); ok {
		for _, rt := range rawTags {
			tagMap, ok := rt.(map[string]interface{})
			if !ok {
				continue
			}
			key := toString(tagMap["key"])
			value := toString(tagMap["value"])
			ctx.fillIfEmpty(key, value)
		}
	}

	type positional struct {
		n     int
		col   string
		value string
	}
	var positionals []positional
	for col, raw := range resource {
		if m := positionalPattern.FindStringSubmatch(col); m != nil {
			n, _ := strconv.Atoi(m[1])
			positionals = append(positionals, positional{n: n, col: col, value: toString(raw)})
		}
	}
	sort.Slice(positionals, func(i, j int) bool { return positionals[i].n < positionals[j].n })
	for _, p := range positionals {
		tagKey, ok := columnIndexMap[p.col]
		if !ok {
			continue
		}
		ctx.fillIfEmpty(tagKey, p.value)
	}

	var prefixed []string
	for col := range resource {
		if tagPrefixPattern.MatchString(col) {
			prefixed = append(prefixed, col)
		}
	}
	sort.Strings(prefixed)
	for _, col := range prefixed {
		tagName := tagPrefixPattern.FindStringSubmatch(col)[1]
		ctx.fillIfEmpty(tagName, toString(resource[col]))
	}

	return ctx
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

var numericPattern = regexp.MustCompile(`^[0-9]+$`)

// NormalizeAccountID left-pads purely numeric account IDs shorter than
// 12 digits with leading zeros; non-numeric IDs pass through unchanged.
func NormalizeAccountID(id string) string {
	if id == "" {
		return id
	}
	if numericPattern.MatchString(id) && len(id) < 12 {
		return strings.Repeat("0", 12-len(id)) + id
	}
	return id
}

// MapResource chains resource through dimensions, which must already
// be sorted in ascending OrderIndex. columnIndexMap supplies the
// customTagValue_N -> physical tag key mapping built by the pipeline.
func MapResource(resource Resource, columnIndexMap map[string]string, dimensions []*Dimension) MappedResource {
	tagCtx := ExtractTagContext(resource, columnIndexMap)

	resourceID := toString(resource["resourceid"])
	linkedRaw := toString(resource["linkedaccid"])
	payerRaw := toString(resource["payeraccount"])
	if linkedRaw == "" {
		linkedRaw = payerRaw
	}
	if payerRaw == "" {
		payerRaw = linkedRaw
	}

	dimCtx := NewContext()
	anyMatched := false
	for _, d := range dimensions {
		value := Resolve(d, tagCtx, dimCtx)
		dimCtx.Set(d.Name, value)
		if value != d.DefaultValue {
			anyMatched = true
		}
	}

	return MappedResource{
		ResourceID:       resourceID,
		LinkedAccount:    NormalizeAccountID(linkedRaw),
		PayerAccount:     NormalizeAccountID(payerRaw),
		DimensionContext: dimCtx.Map(),
		TagContext:       tagCtx.Map(),
		AnyMatched:       anyMatched,
	}
}

// SortDimensions returns dimensions ordered ascending by OrderIndex.
func SortDimensions(dimensions []*Dimension) []*Dimension {
	sorted := make([]*Dimension, len(dimensions))
	copy(sorted, dimensions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	return sorted
}
