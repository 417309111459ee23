// Package document holds the nested, array-bearing output records and the
// path merger that builds them from flat (label, value) pairs.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is one output record: a body plus the control metadata that routes
// it. Source, when set, is a complete JSON body that overrides Body.
type Document struct {
	Meta   map[ControlKey]string
	Body   *Map
	Source json.RawMessage
}

// New returns an empty document.
func New() *Document {
	return &Document{Meta: make(map[ControlKey]string), Body: NewMap()}
}

// Set stores a control value. KeySource goes to Source and must be a JSON
// object.
func (d *Document) Set(k ControlKey, v string) error {
	if k == KeySource {
		raw := json.RawMessage(strings.TrimSpace(v))
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("document: %s is not a JSON object: %w", KeySource, err)
		}
		d.Source = raw
		return nil
	}
	if k == KeyNone {
		return nil
	}
	d.Meta[k] = v
	return nil
}

// Unset removes the control value for k. A NULL control column clears the
// key so it does not carry over into the next document.
func (d *Document) Unset(k ControlKey) {
	if k == KeySource {
		d.Source = nil
		return
	}
	delete(d.Meta, k)
}

// Get returns the control value for k, or "".
func (d *Document) Get(k ControlKey) string { return d.Meta[k] }

// Identity derives the key used to decide whether two rows belong to the same
// document: operation, index, type and id.
func (d *Document) Identity() string {
	return d.Meta[KeyOpType] + "/" + d.Meta[KeyIndex] + "/" + d.Meta[KeyType] + "/" + d.Meta[KeyID]
}

// BodyEmpty reports whether no content has been merged or supplied.
func (d *Document) BodyEmpty() bool { return d.Body.Len() == 0 && len(d.Source) == 0 }

// Empty reports whether the document carries neither body nor metadata.
func (d *Document) Empty() bool { return d.BodyEmpty() && len(d.Meta) == 0 }

// JSON serializes the body; Source wins when present.
func (d *Document) JSON() []byte {
	if len(d.Source) > 0 {
		return append([]byte(nil), d.Source...)
	}
	return d.Body.AppendJSON(nil)
}

// MetaStrings returns the metadata keyed by label ("_version", ...).
func (d *Document) MetaStrings() map[string]string {
	out := make(map[string]string, len(d.Meta))
	for k, v := range d.Meta {
		out[k.String()] = v
	}
	return out
}

func (d *Document) String() string {
	return d.Identity() + " " + string(d.JSON())
}
