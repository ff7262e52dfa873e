package mashup

import (
	"math"
	"time"
)

// UsedSet records timestamps already placed in a mashup. It lives for one
// Sequence call. With a zero tolerance timestamps match only when they are
// the identical float64 value.
type UsedSet struct {
	tolerance float64 // seconds
	exact     map[float64]struct{}
	values    []float64
}

// NewUsedSet creates an empty set. tolerance <= 0 selects exact matching.
func NewUsedSet(tolerance time.Duration) *UsedSet {
	if tolerance < 0 {
		tolerance = 0
	}
	return &UsedSet{
		tolerance: tolerance.Seconds(),
		exact:     make(map[float64]struct{}),
	}
}

// Contains reports whether ts, or a timestamp within the tolerance of it, was added
func (u *UsedSet) Contains(ts float64) bool {
	if _, ok := u.exact[ts]; ok {
		return true
	}
	if u.tolerance == 0 {
		return false
	}
	for _, v := range u.values {
		if math.Abs(v-ts) <= u.tolerance {
			return true
		}
	}
	return false
}

// Add marks ts as used
func (u *UsedSet) Add(ts float64) {
	if _, ok := u.exact[ts]; ok {
		return
	}
	u.exact[ts] = struct{}{}
	u.values = append(u.values, ts)
}

// Len returns the number of distinct timestamps added
func (u *UsedSet) Len() int {
	return len(u.values)
}
