package document

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"docpump/internal/value"
)

func decode(t *testing.T, b []byte) any {
	t.Helper()
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("invalid JSON %s: %v", b, err)
	}
	return out
}

func mustMerge(t *testing.T, m *Map, path string, v value.Value, opts MergeOptions) {
	t.Helper()
	if err := Merge(m, path, v, opts); err != nil {
		t.Fatalf("Merge(%q, %v) error: %v", path, v, err)
	}
}

// TestAccumulate_NullPlaceholderReplaced verifies that a lone null is replaced
// by the first concrete value rather than kept beside it.
func TestAccumulate_NullPlaceholderReplaced(t *testing.T) {
	t.Parallel()
	vs := Accumulate(nil, value.Null(), false)
	vs = Accumulate(vs, value.Text("x"), false)
	vs = Accumulate(vs, value.Null(), false)
	if got := string(vs.AppendJSON(nil)); got != `"x"` {
		t.Fatalf("[null]+x+null = %s; want \"x\"", got)
	}

	vs = Accumulate(nil, value.Unsupported("REF"), false)
	vs = Accumulate(vs, value.Int(1), false)
	if vs.Len() != 1 || !vs.Elems()[0].Equal(value.Int(1)) {
		t.Fatalf("unsupported placeholder not replaced: %v", vs.Elems())
	}
}

// TestAccumulate_Dedup keeps a single element for repeated values and no
// array wrapper.
func TestAccumulate_Dedup(t *testing.T) {
	t.Parallel()
	vs := Accumulate(nil, value.Text("a"), false)
	vs = Accumulate(vs, value.Text("a"), false)
	if got := string(vs.AppendJSON(nil)); got != `"a"` {
		t.Fatalf("a+a = %s; want \"a\"", got)
	}
	vs = Accumulate(vs, value.Text("b"), false)
	vs = Accumulate(vs, value.Text("a"), false)
	if got := string(vs.AppendJSON(nil)); got != `["a","b"]` {
		t.Fatalf("a+a+b+a = %s; want [\"a\",\"b\"]", got)
	}
}

// TestAccumulate_SequenceAndArrays splits sequence text and flattens arrays
// one level.
func TestAccumulate_SequenceAndArrays(t *testing.T) {
	t.Parallel()
	vs := Accumulate(nil, value.Text("red, green ,red"), true)
	vs = Accumulate(vs, value.Array([]value.Value{value.Text("blue"), value.Text("green")}), false)
	if got := string(vs.AppendJSON(nil)); got != `["red","green","blue"]` {
		t.Fatalf("sequence = %s", got)
	}

	single := Accumulate(nil, value.Text("a,b"), false)
	if single.Len() != 1 {
		t.Fatalf("non-sequence text split into %d elements; want 1", single.Len())
	}
}

// TestValues_Serialization covers the zero, one and many forms plus forcing.
func TestValues_Serialization(t *testing.T) {
	t.Parallel()
	var empty *Values
	if got := string(empty.AppendJSON(nil)); got != "null" {
		t.Fatalf("nil Values = %s; want null", got)
	}
	one := Accumulate(nil, value.Int(3), false)
	if got := string(one.AppendJSON(nil)); got != "3" {
		t.Fatalf("one = %s; want 3", got)
	}
	one.SetForceArray(true)
	if got := string(one.AppendJSON(nil)); got != "[3]" {
		t.Fatalf("forced one = %s; want [3]", got)
	}
}

// TestMerge_RepeatingGroupAcrossRows reproduces a join where two rows share a
// parent and each contributes one tag.
func TestMerge_RepeatingGroupAcrossRows(t *testing.T) {
	t.Parallel()
	body := NewMap()
	for _, tag := range []string{"red", "blue"} {
		mustMerge(t, body, "user.name", value.Text("Alice"), MergeOptions{})
		mustMerge(t, body, "user.tags[].t", value.Text(tag), MergeOptions{})
	}
	want := map[string]any{
		"user": map[string]any{
			"name": "Alice",
			"tags": []any{
				map[string]any{"t": "red"},
				map[string]any{"t": "blue"},
			},
		},
	}
	if diff := cmp.Diff(want, decode(t, body.AppendJSON(nil))); diff != "" {
		t.Fatalf("merged body mismatch (-want +got):\n%s", diff)
	}
}

// TestMerge_GroupElementContinues fills several fields of the same group
// element before the next element starts.
func TestMerge_GroupElementContinues(t *testing.T) {
	t.Parallel()
	body := NewMap()
	rows := [][2]string{{"1", "pen"}, {"2", "ink"}}
	for _, r := range rows {
		mustMerge(t, body, "items[id]", value.Text(r[0]), MergeOptions{})
		mustMerge(t, body, "items[name]", value.Text(r[1]), MergeOptions{})
		mustMerge(t, body, "items[price.amount]", value.Int(5), MergeOptions{})
	}
	want := map[string]any{
		"items": []any{
			map[string]any{"id": "1", "name": "pen", "price": map[string]any{"amount": float64(5)}},
			map[string]any{"id": "2", "name": "ink", "price": map[string]any{"amount": float64(5)}},
		},
	}
	if diff := cmp.Diff(want, decode(t, body.AppendJSON(nil))); diff != "" {
		t.Fatalf("group body mismatch (-want +got):\n%s", diff)
	}
}

// TestMerge_MultiValueField routes name[] through the accumulator and only
// wraps singletons when forced.
func TestMerge_MultiValueField(t *testing.T) {
	t.Parallel()
	body := NewMap()
	mustMerge(t, body, "labels[]", value.Text("x"), MergeOptions{})
	mustMerge(t, body, "plain", value.Text("y"), MergeOptions{})
	if got := string(body.AppendJSON(nil)); got != `{"labels":"x","plain":"y"}` {
		t.Fatalf("unforced = %s", got)
	}

	forced := NewMap()
	mustMerge(t, forced, "labels[]", value.Text("x"), MergeOptions{ForceArray: true})
	mustMerge(t, forced, "plain", value.Text("y"), MergeOptions{ForceArray: true})
	if got := string(forced.AppendJSON(nil)); got != `{"labels":["x"],"plain":"y"}` {
		t.Fatalf("forced = %s", got)
	}

	seq := NewMap()
	mustMerge(t, seq, "labels[]", value.Text("a,b"), MergeOptions{})
	if got := string(seq.AppendJSON(nil)); got != `{"labels":["a","b"]}` {
		t.Fatalf("sequence = %s", got)
	}
}

// TestMerge_IllegalPath rejects writing through a value and writing a value
// over a structure.
func TestMerge_IllegalPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		first, second string
	}{
		{"a", "a.b"},
		{"a.b", "a"},
		{"a", "a[x]"},
		{"a[x]", "a.b"},
		{"a[x]", "a"},
	}
	for _, tc := range tests {
		body := NewMap()
		mustMerge(t, body, tc.first, value.Int(1), MergeOptions{})
		err := Merge(body, tc.second, value.Int(2), MergeOptions{})
		if !errors.Is(err, ErrIllegalPath) {
			t.Fatalf("Merge %q then %q err = %v; want ErrIllegalPath", tc.first, tc.second, err)
		}
	}
}

// TestMerge_SkipsControlKeys never writes reserved labels into the body.
func TestMerge_SkipsControlKeys(t *testing.T) {
	t.Parallel()
	body := NewMap()
	mustMerge(t, body, "_id", value.Text("1"), MergeOptions{})
	if body.Len() != 0 {
		t.Fatalf("control key merged into body: %s", body.AppendJSON(nil))
	}
}

// TestMap_Contains follows dotted paths through maps and group tails.
func TestMap_Contains(t *testing.T) {
	t.Parallel()
	body := NewMap()
	mustMerge(t, body, "a.b.c", value.Int(1), MergeOptions{})
	mustMerge(t, body, "g[x.y]", value.Int(1), MergeOptions{})
	for path, want := range map[string]bool{
		"a":     true,
		"a.b.c": true,
		"a.b.d": false,
		"g.x.y": true,
		"g[].x": true,
		"g.z":   false,
		"z":     false,
	} {
		if got := body.Contains(path); got != want {
			t.Fatalf("Contains(%q) = %v; want %v", path, got, want)
		}
	}
}

// TestDocument_ControlValues stores metadata, validates _source and builds
// identity from the routing keys.
func TestDocument_ControlValues(t *testing.T) {
	t.Parallel()
	d := New()
	if !d.Empty() {
		t.Fatalf("new document not empty")
	}
	_ = d.Set(KeyIndex, "people")
	_ = d.Set(KeyID, "7")
	_ = d.Set(KeyVersion, "3")
	if got, want := d.Identity(), "/people//7"; got != want {
		t.Fatalf("Identity = %q; want %q", got, want)
	}
	if err := d.Set(KeySource, "not json"); err == nil {
		t.Fatalf("Set(_source, not json) error = nil; want error")
	}
	if err := d.Set(KeySource, `{"x":1}`); err != nil {
		t.Fatalf("Set(_source) error: %v", err)
	}
	if got := string(d.JSON()); got != `{"x":1}` {
		t.Fatalf("JSON with source = %s", got)
	}
	if got := d.MetaStrings()["_version"]; got != "3" {
		t.Fatalf("MetaStrings[_version] = %q; want 3", got)
	}
	d.Unset(KeyVersion)
	if _, ok := d.MetaStrings()["_version"]; ok {
		t.Fatalf("_version still set after Unset")
	}
	d.Unset(KeySource)
	if got := string(d.JSON()); got != `{}` {
		t.Fatalf("JSON after Unset(_source) = %s; want {}", got)
	}
	if k, ok := ParseControlKey("_ttl"); !ok || k != KeyTTL {
		t.Fatalf("ParseControlKey(_ttl) = %v, %v", k, ok)
	}
	if _, ok := ParseControlKey("name"); ok {
		t.Fatalf("ParseControlKey(name) ok = true")
	}
}
