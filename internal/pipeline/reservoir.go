package pipeline

import "math/rand"

// ReservoirSize is the fixed sample size over the matched stream.
const ReservoirSize = 50

// Reservoir holds a uniform sample of size ReservoirSize over an
// arbitrarily long stream, using Algorithm R.
type Reservoir struct {
	rng     *rand.Rand
	sample  []interface{}
	seen    int
}

// NewReservoir returns an empty reservoir seeded from seed. A fixed seed
// gives a reproducible sample; the sync coordinator passes a
// time-derived seed on every run, dry-runs included.
func NewReservoir(seed int64) *Reservoir {
	return &Reservoir{rng: rand.New(rand.NewSource(seed))}
}

// Add offers one record from the stream to the reservoir.
func (r *Reservoir) Add(record interface{}) {
	r.seen++
	if len(r.sample) < ReservoirSize {
		r.sample = append(r.sample, record)
		return
	}
	j := r.rng.Intn(r.seen)
	if j < ReservoirSize {
		r.sample[j] = record
	}
}

// Sample returns the current sample contents.
func (r *Reservoir) Sample() []interface{} {
	out := make([]interface{}, len(r.sample))
	copy(out, r.sample)
	return out
}

// Seen returns the total number of records offered so far.
func (r *Reservoir) Seen() int { return r.seen }
