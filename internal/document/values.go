package document

import (
	"strings"

	"docpump/internal/value"
)

// Values is the ordered, de-duplicated multi-value container behind one
// document field.
type Values struct {
	elems []value.Value
	index map[uint64][]int
	force bool
}

// Accumulate adds v to existing (allocating when nil) and returns it.
//
// Arrays are flattened one level. With isSequence, text is split on commas.
// Elements already present are skipped. A lone Null or Unsupported
// placeholder is replaced by the first concrete value, and placeholders are
// never appended next to concrete values.
func Accumulate(existing *Values, v value.Value, isSequence bool) *Values {
	if existing == nil {
		existing = &Values{}
	}
	switch {
	case v.Kind() == value.KindArray:
		for _, e := range v.Elems() {
			existing.add(e)
		}
	case isSequence && v.Kind() == value.KindText:
		for _, part := range strings.Split(v.Str(), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			existing.add(value.Text(part))
		}
	default:
		existing.add(v)
	}
	return existing
}

func (vs *Values) add(v value.Value) {
	if v.IsNull() {
		if len(vs.elems) == 0 {
			vs.append(v)
		}
		return
	}
	if len(vs.elems) == 1 && vs.elems[0].IsNull() {
		vs.elems = vs.elems[:0]
		vs.index = nil
	}
	if vs.contains(v) {
		return
	}
	vs.append(v)
}

func (vs *Values) contains(v value.Value) bool {
	for _, i := range vs.index[v.Hash()] {
		if vs.elems[i].Equal(v) {
			return true
		}
	}
	return false
}

func (vs *Values) append(v value.Value) {
	if vs.index == nil {
		vs.index = make(map[uint64][]int)
	}
	h := v.Hash()
	vs.index[h] = append(vs.index[h], len(vs.elems))
	vs.elems = append(vs.elems, v)
}

// Len reports the number of stored elements.
func (vs *Values) Len() int {
	if vs == nil {
		return 0
	}
	return len(vs.elems)
}

// Elems returns the stored elements in insertion order.
func (vs *Values) Elems() []value.Value {
	if vs == nil {
		return nil
	}
	return vs.elems
}

// SetForceArray makes the field serialize as an array even when it holds a
// single element.
func (vs *Values) SetForceArray(force bool) { vs.force = force }

// AppendJSON writes null for no elements, the bare scalar for one, and an
// array otherwise.
func (vs *Values) AppendJSON(b []byte) []byte {
	switch {
	case vs.Len() == 0:
		if vs != nil && vs.force {
			return append(b, "[]"...)
		}
		return append(b, "null"...)
	case len(vs.elems) == 1 && !vs.force:
		return vs.elems[0].AppendJSON(b)
	}
	b = append(b, '[')
	for i, e := range vs.elems {
		if i > 0 {
			b = append(b, ',')
		}
		b = e.AppendJSON(b)
	}
	return append(b, ']')
}
