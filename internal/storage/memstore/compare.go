package memstore

import (
	"strings"

	"github.com/dmitrijs2005/fintrack/internal/storage"
)

// rank orders values of different JSON types: null < bool < number < text.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

// compareTuple compares element-wise over the shorter length.
func compareTuple(a, b []any) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func equalTuple(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if rank(a[i]) != rank(b[i]) || compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func hasNil(key []any) bool {
	for _, v := range key {
		if v == nil {
			return true
		}
	}
	return false
}

// rangeMatcher mirrors SQL row-value comparison: a bound compares against
// the leading fields of the key, and rows with a null in any compared field
// never match.
func rangeMatcher(r storage.KeyRange) func(key []any) bool {
	lower := storage.NormalizeAll(r.Lower)
	upper := storage.NormalizeAll(r.Upper)

	return func(key []any) bool {
		if len(lower) > 0 {
			head := key[:len(lower)]
			if hasNil(head) || hasNil(lower) {
				return false
			}
			c := compareTuple(head, lower)
			if c < 0 || (c == 0 && r.LowerOpen) {
				return false
			}
		}
		if len(upper) > 0 {
			head := key[:len(upper)]
			if hasNil(head) || hasNil(upper) {
				return false
			}
			c := compareTuple(head, upper)
			if c > 0 || (c == 0 && r.UpperOpen) {
				return false
			}
		}
		return len(lower) > 0 || len(upper) > 0 || !hasNil(key)
	}
}
