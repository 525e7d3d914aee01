// Package pool provides a sync.Pool-backed buffer for the term slices
// pattern detection allocates once per memory per detection pass.
package pool

import "sync"

var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 16)
		return &s
	},
}

// GetStringSlice returns a zero-length string slice with spare capacity.
func GetStringSlice() []string {
	p := stringSlicePool.Get().(*[]string)
	return (*p)[:0]
}

// PutStringSlice returns s to the pool for reuse. Callers must not use s
// afterward.
func PutStringSlice(s []string) {
	s = s[:0]
	stringSlicePool.Put(&s)
}
