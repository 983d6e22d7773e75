package timestamp

import (
	"time"

	"github.com/rohankatakam/rcs2git/internal/catalog"
)

// DefaultTolerance is the skew tolerance used when none is configured.
const DefaultTolerance = 300 * time.Second

// Normalizer maps recorded revision times onto one comparable clock.
type Normalizer struct {
	tolerance time.Duration
}

// New creates a normalizer. A negative tolerance is treated as zero.
func New(tolerance time.Duration) *Normalizer {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Normalizer{tolerance: tolerance}
}

// Tolerance returns the configured skew tolerance window.
func (n *Normalizer) Tolerance() time.Duration {
	return n.tolerance
}

// Instant converts a raw RCS time into a UTC instant with second precision,
// which is all RCS records.
func (n *Normalizer) Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Within reports whether two instants lie inside the skew tolerance window.
func (n *Normalizer) Within(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= n.tolerance
}

// Normalize returns one instant per catalog record, indexed by arena index.
// Along each file's ancestry instants never decrease: a revision recorded
// earlier than its parent is clamped to the parent's instant.
func (n *Normalizer) Normalize(c *catalog.Catalog) []time.Time {
	out := make([]time.Time, c.Len())
	done := make([]bool, c.Len())

	var resolve func(r *catalog.RevisionRecord) time.Time
	resolve = func(r *catalog.RevisionRecord) time.Time {
		i := r.Index()
		if done[i] {
			return out[i]
		}
		t := n.Instant(r.Timestamp)
		if p := c.Parent(r); p != nil {
			if pt := resolve(p); t.Before(pt) {
				t = pt
			}
		}
		out[i] = t
		done[i] = true
		return t
	}

	for _, r := range c.Records() {
		resolve(r)
	}
	return out
}
