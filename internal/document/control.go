package document

// ControlKey is one of the reserved column labels that steer assembly instead
// of becoming document content.
type ControlKey uint8

const (
	KeyNone ControlKey = iota
	KeyOpType
	KeyIndex
	KeyType
	KeyID
	KeyVersion
	KeyRouting
	KeyParent
	KeyTimestamp
	KeyTTL
	KeyJob
	// KeySource carries a full JSON body that replaces the assembled one.
	KeySource
)

var controlLabels = [...]string{
	KeyNone:      "",
	KeyOpType:    "_optype",
	KeyIndex:     "_index",
	KeyType:      "_type",
	KeyID:        "_id",
	KeyVersion:   "_version",
	KeyRouting:   "_routing",
	KeyParent:    "_parent",
	KeyTimestamp: "_timestamp",
	KeyTTL:       "_ttl",
	KeyJob:       "_job",
	KeySource:    "_source",
}

var controlByLabel = func() map[string]ControlKey {
	m := make(map[string]ControlKey, len(controlLabels))
	for i, l := range controlLabels {
		if l != "" {
			m[l] = ControlKey(i)
		}
	}
	return m
}()

// ParseControlKey maps a column label to its control key.
func ParseControlKey(label string) (ControlKey, bool) {
	k, ok := controlByLabel[label]
	return k, ok
}

// String returns the column label, e.g. "_id".
func (k ControlKey) String() string {
	if int(k) < len(controlLabels) {
		return controlLabels[k]
	}
	return ""
}

// MetaKeys lists the control keys stored in Document.Meta, in label order.
func MetaKeys() []ControlKey {
	return []ControlKey{KeyOpType, KeyIndex, KeyType, KeyID, KeyVersion,
		KeyRouting, KeyParent, KeyTimestamp, KeyTTL, KeyJob}
}
