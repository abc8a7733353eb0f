package domain

// IDList is an ordered list of row ids stored as BIGINT[].
type IDList []int64

// Contains reports whether id is in the list.
func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id when absent. It returns the resulting list and whether it changed.
func (l IDList) Add(id int64) (IDList, bool) {
	if l.Contains(id) {
		return l, false
	}
	out := make(IDList, len(l), len(l)+1)
	copy(out, l)
	return append(out, id), true
}

// Covers reports whether every id in other is present in l.
// An empty other is never covered, so a group without tasks cannot complete.
func (l IDList) Covers(other IDList) bool {
	if len(other) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(l))
	for _, v := range l {
		set[v] = struct{}{}
	}
	for _, v := range other {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the ids of other that are absent from l, in other's order.
func (l IDList) Missing(other IDList) IDList {
	var out IDList
	for _, v := range other {
		if !l.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Unique drops duplicates and non-positive ids while keeping the first occurrence order.
func (l IDList) Unique() IDList {
	seen := make(map[int64]struct{}, len(l))
	out := make(IDList, 0, len(l))
	for _, v := range l {
		if v <= 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Int64s returns the list as a plain slice for driver arguments.
func (l IDList) Int64s() []int64 {
	if l == nil {
		return []int64{}
	}
	return []int64(l)
}
