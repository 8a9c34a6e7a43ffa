package backend

// Cond is an equality condition on one field.
type Cond struct {
	Field string
	Value any
}

// Filter selects documents. Any is an OR of AND-groups: a document matches
// when at least one group has all of its conditions satisfied. The zero
// Filter matches everything.
type Filter struct {
	Any [][]Cond
}

func C(field string, value any) Cond {
	return Cond{Field: field, Value: value}
}

// Where builds a single AND-group filter.
func Where(conds ...Cond) Filter {
	return Filter{Any: [][]Cond{conds}}
}

// Or builds an OR-of-AND filter from the given groups.
func Or(groups ...[]Cond) Filter {
	return Filter{Any: groups}
}

// Matches evaluates the filter against a document.
func (f Filter) Matches(d Doc) bool {
	if len(f.Any) == 0 {
		return true
	}
	for _, group := range f.Any {
		if matchesAll(d, group) {
			return true
		}
	}
	return false
}

func matchesAll(d Doc, conds []Cond) bool {
	for _, c := range conds {
		v, ok := d[c.Field]
		if !ok {
			return false
		}
		if !valueEq(v, c.Value) {
			return false
		}
	}
	return true
}

// valueEq compares with integer widening so an int32 decoded from storage
// still matches an int64 in the filter.
func valueEq(a, b any) bool {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
		return false
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
