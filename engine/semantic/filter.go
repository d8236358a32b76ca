package semantic

import (
	"github.com/VeritasAI/veritas-engine/engine/domain"
)

// Filter restricts a search to chunks whose metadata satisfies every
// condition. Conditions are combined with logical AND; a missing key never
// matches.
type Filter map[string]Condition

// Condition is a single metadata constraint: equality, set membership, or a
// numeric range. Range bounds only apply to numeric values.
type Condition struct {
	Equals any      `json:"eq,omitempty"`
	In     []any    `json:"in,omitempty"`
	GTE    *float64 `json:"gte,omitempty"`
	LTE    *float64 `json:"lte,omitempty"`
	GT     *float64 `json:"gt,omitempty"`
	LT     *float64 `json:"lt,omitempty"`
}

// Eq matches values equal to v.
func Eq(v any) Condition { return Condition{Equals: v} }

// OneOf matches values equal to any of vs.
func OneOf(vs ...any) Condition { return Condition{In: vs} }

// AtLeast matches numeric values >= v.
func AtLeast(v float64) Condition { return Condition{GTE: &v} }

// AtMost matches numeric values <= v.
func AtMost(v float64) Condition { return Condition{LTE: &v} }

// Between matches numeric values in [lo, hi].
func Between(lo, hi float64) Condition { return Condition{GTE: &lo, LTE: &hi} }

// Matches reports whether the metadata satisfies every condition in the filter.
// A nil or empty filter matches everything.
func (f Filter) Matches(m domain.Metadata) bool {
	for key, cond := range f {
		v, ok := m[key]
		if !ok {
			return false
		}
		if !cond.matches(v) {
			return false
		}
	}
	return true
}

func (c Condition) matches(v any) bool {
	if c.Equals != nil && !scalarEqual(v, c.Equals) {
		return false
	}
	if len(c.In) > 0 {
		found := false
		for _, want := range c.In {
			if scalarEqual(v, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.GTE != nil || c.LTE != nil || c.GT != nil || c.LT != nil {
		n, ok := asFloat(v)
		if !ok {
			return false
		}
		if c.GTE != nil && n < *c.GTE {
			return false
		}
		if c.LTE != nil && n > *c.LTE {
			return false
		}
		if c.GT != nil && n <= *c.GT {
			return false
		}
		if c.LT != nil && n >= *c.LT {
			return false
		}
	}
	return true
}

// scalarEqual compares two scalar metadata values. Numeric values compare by
// value regardless of their Go type, since JSON decoding turns every number
// into float64.
func scalarEqual(a, b any) bool {
	if na, ok := asFloat(a); ok {
		nb, ok := asFloat(b)
		return ok && na == nb
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
