package pipeline

import "sort"

// maxDiscoveredSamples bounds how many distinct sample values are kept
// per physical tag key.
const maxDiscoveredSamples = 10

// TagDiscovery accumulates, across a run, which physical tag keys were
// seen on resources and up to maxDiscoveredSamples distinct values per
// key. It is purely observational and independent of dimension
// resolution.
type TagDiscovery struct {
	samples map[string]map[string]struct{}
}

// NewTagDiscovery returns an empty accumulator.
func NewTagDiscovery() *TagDiscovery {
	return &TagDiscovery{samples: make(map[string]map[string]struct{})}
}

// Observe records one resource's resolved tag context.
func (d *TagDiscovery) Observe(tagContext map[string]string) {
	for key, value := range tagContext {
		if value == "" {
			continue
		}
		set, ok := d.samples[key]
		if !ok {
			set = make(map[string]struct{})
			d.samples[key] = set
		}
		if _, seen := set[value]; seen || len(set) >= maxDiscoveredSamples {
			continue
		}
		set[value] = struct{}{}
	}
}

// Keys returns every tag key observed, in an order stable across calls
// for the same accumulated content (sorted alphabetically).
func (d *TagDiscovery) Keys() []string {
	keys := make([]string, 0, len(d.samples))
	for k := range d.samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SamplesFor returns the distinct sample values recorded for key,
// sorted for determinism.
func (d *TagDiscovery) SamplesFor(key string) []string {
	set := d.samples[key]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
