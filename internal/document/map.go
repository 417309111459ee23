package document

import (
	"errors"
	"fmt"
	"strings"

	"docpump/internal/value"
)

// ErrIllegalPath reports a path that writes a nested structure where a value
// already lives, or the reverse. It signals a column mapping mistake.
var ErrIllegalPath = errors.New("document: illegal path")

// Map is an insertion-ordered document body. Each key holds a *Values, a
// nested *Map, or a repeating group ([]*Map).
type Map struct {
	keys []string
	vals map[string]any
}

// NewMap returns an empty body.
func NewMap() *Map { return &Map{vals: make(map[string]any)} }

// Len reports the number of top-level keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns top-level keys in insertion order.
func (m *Map) Keys() []string { return m.keys }

// Get returns the *Values, *Map or []*Map stored at key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.vals[key]
	return v, ok
}

func (m *Map) set(key string, v any) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Contains reports whether the dotted path exists in m. Bracket suffixes are
// ignored; for repeating groups the last element is inspected.
func (m *Map) Contains(path string) bool {
	if m == nil {
		return false
	}
	seg, rest := splitPath(path)
	name, _, _ := seg.parts()
	v, ok := m.vals[name]
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	switch n := v.(type) {
	case *Map:
		return n.Contains(rest)
	case []*Map:
		if len(n) == 0 {
			return false
		}
		return n[len(n)-1].Contains(rest)
	}
	return false
}

// MergeOptions tunes Merge.
type MergeOptions struct {
	// ForceArray serializes "name[]" fields as arrays even when single-valued.
	ForceArray bool
}

// Merge folds one (path, value) pair into body.
//
//	a.b        nested map a, value field b
//	a[]        multi-value field a, text split on commas
//	a[x.y]     repeating group a; x.y is the path inside each element
//	a[].x      same as a[x]
//
// A new group element starts when the last element already holds the
// sub-path; otherwise the value joins the last element.
func Merge(body *Map, path string, v value.Value, opts MergeOptions) error {
	seg, rest := splitPath(path)
	name, idx, bracketed := seg.parts()
	if name == "" {
		return fmt.Errorf("%w: empty segment in %q", ErrIllegalPath, path)
	}
	if _, ok := ParseControlKey(name); ok {
		return nil
	}

	switch {
	case !bracketed && rest == "":
		return mergeValue(body, name, path, v, false, false)
	case bracketed && idx == "" && rest == "":
		return mergeValue(body, name, path, v, true, opts.ForceArray)
	case bracketed:
		sub := idx
		if rest != "" {
			if sub != "" {
				sub += "."
			}
			sub += rest
		}
		return mergeGroup(body, name, path, sub, v, opts)
	}

	child, err := childMap(body, name, path)
	if err != nil {
		return err
	}
	return Merge(child, rest, v, opts)
}

func mergeValue(m *Map, name, path string, v value.Value, seq, force bool) error {
	var vs *Values
	if cur, ok := m.vals[name]; ok {
		existing, isValues := cur.(*Values)
		if !isValues {
			return fmt.Errorf("%w: %q holds a nested structure", ErrIllegalPath, path)
		}
		vs = existing
	}
	vs = Accumulate(vs, v, seq)
	if force {
		vs.SetForceArray(true)
	}
	m.set(name, vs)
	return nil
}

func childMap(m *Map, name, path string) (*Map, error) {
	cur, ok := m.vals[name]
	if !ok {
		child := NewMap()
		m.set(name, child)
		return child, nil
	}
	child, isMap := cur.(*Map)
	if !isMap {
		return nil, fmt.Errorf("%w: %q is not an object", ErrIllegalPath, path)
	}
	return child, nil
}

func mergeGroup(m *Map, name, path, sub string, v value.Value, opts MergeOptions) error {
	var group []*Map
	if cur, ok := m.vals[name]; ok {
		g, isGroup := cur.([]*Map)
		if !isGroup {
			return fmt.Errorf("%w: %q is not a repeating group", ErrIllegalPath, path)
		}
		group = g
	}
	var elem *Map
	if n := len(group); n > 0 && !group[n-1].Contains(sub) {
		elem = group[n-1]
	} else {
		elem = NewMap()
		group = append(group, elem)
		m.set(name, group)
	}
	return Merge(elem, sub, v, opts)
}

// AppendJSON writes m as a JSON object in insertion order.
func (m *Map) AppendJSON(b []byte) []byte {
	b = append(b, '{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				b = append(b, ',')
			}
			b = value.AppendJSONString(b, k)
			b = append(b, ':')
			b = appendNode(b, m.vals[k])
		}
	}
	return append(b, '}')
}

func appendNode(b []byte, n any) []byte {
	switch v := n.(type) {
	case *Values:
		return v.AppendJSON(b)
	case *Map:
		return v.AppendJSON(b)
	case []*Map:
		b = append(b, '[')
		for i, e := range v {
			if i > 0 {
				b = append(b, ',')
			}
			b = e.AppendJSON(b)
		}
		return append(b, ']')
	}
	return append(b, "null"...)
}

// MarshalJSON implements json.Marshaler.
func (m *Map) MarshalJSON() ([]byte, error) { return m.AppendJSON(nil), nil }

// --- path syntax ---------------------------------------------------------------

type segment string

// splitPath cuts the first segment off a dotted path. Dots inside brackets
// belong to the segment.
func splitPath(path string) (segment, string) {
	depth := 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				return segment(path[:i]), path[i+1:]
			}
		}
	}
	return segment(path), ""
}

// parts splits "name[idx]" into its name and bracket content.
func (s segment) parts() (name, idx string, bracketed bool) {
	str := string(s)
	open := strings.IndexByte(str, '[')
	if open < 0 || !strings.HasSuffix(str, "]") {
		return str, "", false
	}
	return str[:open], str[open+1 : len(str)-1], true
}
