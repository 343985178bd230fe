package irraw

import (
	"sort"

	"irlearn-go/x/mathx"
)

// DefaultTolerance is the per-sample tolerance, in percent, used for matching.
const DefaultTolerance float32 = 50

// Equal reports whether a matches the reference b: same length and every
// sample within tolerancePercent of b's sample. The comparison is relative to
// b, so Equal(a, b, t) and Equal(b, a, t) can differ. Negative tolerance is
// treated as zero.
func Equal(a, b Signal, tolerancePercent float32) bool {
	if len(a) != len(b) {
		return false
	}
	tol := mathx.Max(tolerancePercent, 0) / 100
	for i := range a {
		want := float32(b[i])
		diff := float32(a[i]) - want
		if diff < 0 {
			diff = -diff
		}
		if diff > want*tol {
			return false
		}
	}
	return true
}

// Match returns the first reference, in name order, that s matches.
func Match(s Signal, tolerancePercent float32, refs map[string]Signal) (string, bool) {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if Equal(s, refs[name], tolerancePercent) {
			return name, true
		}
	}
	return "", false
}
