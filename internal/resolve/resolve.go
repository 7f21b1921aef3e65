// Package resolve implements the dimension resolution engine: single
// dimension resolution, chained evaluation across an ordered dimension
// list, and the tag extraction / account-id normalization that feeds it.
package resolve

import (
	"strings"

	"github.com/catherinevee/vtagger/internal/dsl"
)

// DefaultValue is the reserved sentinel a dimension returns when no
// statement matches.
const DefaultValue = "Unallocated"

// Dimension is a compiled dimension ready for resolution.
type Dimension struct {
	Name         string
	OrderIndex   int
	DefaultValue string
	Index        dsl.Index
}

// NewDimension compiles a persisted dimension record.
func NewDimension(rec dsl.Record) *Dimension {
	return &Dimension{
		Name:         rec.VtagName,
		OrderIndex:   rec.Index,
		DefaultValue: rec.DefaultValue,
		Index:        dsl.Build(rec.Statements),
	}
}

// Resolve evaluates a single compiled dimension against the tag and
// dimension contexts built so far. It never mutates either context.
//
// Evaluation order: TAG exact -> DIM exact -> TAG contains -> DIM
// contains -> default. First hit in that order wins.
func Resolve(d *Dimension, tagCtx, dimCtx *Context) string {
	idx := d.Index

	for _, p := range tagCtx.Pairs() {
		if p.Value == "" {
			continue
		}
		if result, ok := idx.LookupTagExact(p.Key, strings.ToLower(p.Value)); ok {
			return result
		}
	}

	for _, p := range dimCtx.Pairs() {
		if p.Value == "" {
			continue
		}
		if result, ok := idx.LookupDimExact(p.Key, strings.ToLower(p.Value)); ok {
			return result
		}
	}

	for _, p := range tagCtx.Pairs() {
		if p.Value == "" {
			continue
		}
		lower := strings.ToLower(p.Value)
		for _, entry := range idx.TagContains {
			if entry.Key == p.Key && strings.Contains(lower, entry.Substr) {
				return entry.Result
			}
		}
	}

	for _, p := range dimCtx.Pairs() {
		if p.Value == "" {
			continue
		}
		lower := strings.ToLower(p.Value)
		for _, entry := range idx.DimContains {
			if entry.Key == p.Key && strings.Contains(lower, entry.Substr) {
				return entry.Result
			}
		}
	}

	return d.DefaultValue
}
