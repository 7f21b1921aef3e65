package resolve

// sentinelNoTag is the reserved value treated as "no value provided"
// when merging tag channels.
const sentinelNoTag = "no tag"

// Context is an insertion-ordered string map. Using a fixed iteration
// order (rather than Go's randomized map order) is what makes chained
// dimension resolution reproducible across repeated calls on the same
// input, per the chain-determinism invariant.
type Context struct {
	keys   []string
	values map[string]string
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{values: make(map[string]string)}
}

// fillIfEmpty sets key=value only if the slot hasn't been filled by an
// earlier, higher-precedence channel, and only if value carries real
// content (neither "" nor the "no tag" sentinel).
func (c *Context) fillIfEmpty(key, value string) {
	if value == "" || value == sentinelNoTag {
		return
	}
	if cur, exists := c.values[key]; exists && cur != "" {
		return
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Set unconditionally assigns key=value, appending to iteration order
// on first assignment. Used for building the dimension context, where
// each dimension name is only ever assigned once.
func (c *Context) Set(key, value string) {
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the value for key and whether it is present.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Pairs returns key/value pairs in insertion order.
func (c *Context) Pairs() []Pair {
	pairs := make([]Pair, 0, len(c.keys))
	for _, k := range c.keys {
		pairs = append(pairs, Pair{Key: k, Value: c.values[k]})
	}
	return pairs
}

// Map returns a copy of the context as a plain map.
func (c *Context) Map() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Pair is one context key/value entry.
type Pair struct {
	Key   string
	Value string
}
