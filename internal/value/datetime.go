package value

import (
	"fmt"
	"strings"
	"time"
)

const (
	layoutDate      = "2006-01-02"
	layoutTime      = "15:04:05.999999999"
	layoutTimestamp = time.RFC3339Nano
)

// textLayouts are tried in order when a driver hands dates over as text.
var textLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999Z07:00",
	"15:04:05.999999999",
}

// normalizeTemporal renders date, time and timestamp columns as ISO-8601 text.
// Timestamps are converted into loc; dates and times carry no zone and keep
// their wall clock. Zero dates yield Null.
func normalizeTemporal(raw any, cat Category, loc *time.Location) (Value, error) {
	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v
	case string:
		p, err := parseTemporal(v, loc)
		if err != nil {
			return Null(), err
		}
		t = p
	case []byte:
		p, err := parseTemporal(string(v), loc)
		if err != nil {
			return Null(), err
		}
		t = p
	default:
		return Null(), fmt.Errorf("datetime: unexpected %T", raw)
	}

	switch cat {
	case CategoryDate:
		if t.IsZero() {
			return Null(), nil
		}
		return DateTime(t.Format(layoutDate)), nil
	case CategoryTime:
		return DateTime(t.Format(layoutTime)), nil
	}
	if t.IsZero() {
		return Null(), nil
	}
	return DateTime(t.In(loc).Format(layoutTimestamp)), nil
}

func parseTemporal(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, nil
	}
	for _, layout := range textLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("datetime: unrecognized %q", s)
}
