package value

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/language"
)

// ErrLargeObjectTooBig is returned when a character or binary large object
// exceeds Options.MaxLOBLength. It is the only error Normalize returns.
var ErrLargeObjectTooBig = errors.New("value: large object exceeds length bound")

// RoundingMode selects how fixed decimals are rounded to Options.Scale.
type RoundingMode uint8

const (
	RoundHalfUp RoundingMode = iota
	RoundHalfDown
	RoundHalfEven
	RoundUp
	RoundDown
	RoundCeiling
	RoundFloor
	// RoundUnnecessary asserts that no rounding is needed; a value that would
	// need rounding fails to parse and normalizes to Null.
	RoundUnnecessary
)

var roundingNames = map[string]RoundingMode{
	"halfup":      RoundHalfUp,
	"halfdown":    RoundHalfDown,
	"halfeven":    RoundHalfEven,
	"up":          RoundUp,
	"down":        RoundDown,
	"ceiling":     RoundCeiling,
	"floor":       RoundFloor,
	"unnecessary": RoundUnnecessary,
}

// ParseRoundingMode accepts "half_up", "HALF-UP", "halfup" and the like. The
// empty string yields RoundHalfUp.
func ParseRoundingMode(s string) (RoundingMode, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
	if k == "" {
		return RoundHalfUp, nil
	}
	m, ok := roundingNames[k]
	if !ok {
		return 0, fmt.Errorf("value: unknown rounding mode %q", s)
	}
	return m, nil
}

func (m RoundingMode) String() string {
	for k, v := range roundingNames {
		if v == m {
			return k
		}
	}
	return "halfup"
}

func (m RoundingMode) rounder() apd.Rounder {
	switch m {
	case RoundHalfDown:
		return apd.RoundHalfDown
	case RoundHalfEven:
		return apd.RoundHalfEven
	case RoundUp:
		return apd.RoundUp
	case RoundDown:
		return apd.RoundDown
	case RoundCeiling:
		return apd.RoundCeiling
	case RoundFloor:
		return apd.RoundFloor
	}
	return apd.RoundHalfUp
}

// Options configures normalization for one command.
type Options struct {
	// Locale selects decimal and grouping separators for numeric text.
	Locale language.Tag
	// Location is the timezone date/time values are rendered in. Nil is UTC.
	Location *time.Location
	// Scale is the number of fractional digits fixed decimals are rounded to.
	// A negative scale keeps the exact decimal as plain text.
	Scale    int
	Rounding RoundingMode
	// BinaryAsText returns binary columns as text instead of bytes.
	BinaryAsText bool
	// MaxLOBLength bounds materialized large objects. Zero means math.MaxInt32.
	MaxLOBLength int64
}

// DefaultOptions returns English separators, UTC, exact decimals and half-up
// rounding.
func DefaultOptions() Options {
	return Options{
		Locale:       language.English,
		Location:     time.UTC,
		Scale:        -1,
		Rounding:     RoundHalfUp,
		MaxLOBLength: math.MaxInt32,
	}
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) maxLOB() int64 {
	if o.MaxLOBLength <= 0 {
		return math.MaxInt32
	}
	return o.MaxLOBLength
}

// ParseLocale accepts BCP 47 tags and Java-style underscore forms ("de_CH").
// The empty string yields English.
func ParseLocale(s string) (language.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return language.English, nil
	}
	t, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und, fmt.Errorf("value: parse locale %q: %w", s, err)
	}
	return t, nil
}

// ParseLocation resolves an IANA zone name. The empty string yields UTC.
func ParseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("value: load timezone %q: %w", s, err)
	}
	return loc, nil
}

// --- locale separators --------------------------------------------------------

type separators struct {
	decimal byte
	group   []string
}

var (
	sepDot        = separators{decimal: '.', group: []string{","}}
	sepComma      = separators{decimal: ',', group: []string{"."}}
	sepCommaSpace = separators{decimal: ',', group: []string{" ", "\u00a0", "\u202f"}}
	sepSwiss      = separators{decimal: '.', group: []string{"'", "\u2019"}}
)

// commaLocales use ',' as decimal separator and '.' for grouping.
var commaLocales = map[string]bool{
	"de": true, "es": true, "it": true, "nl": true, "pt": true, "da": true,
	"id": true, "tr": true, "el": true, "ro": true, "hr": true, "sl": true,
	"sr": true, "is": true, "vi": true,
}

// spaceLocales use ',' as decimal separator and a space for grouping.
var spaceLocales = map[string]bool{
	"fr": true, "ru": true, "pl": true, "cs": true, "sk": true, "sv": true,
	"fi": true, "nb": true, "no": true, "uk": true, "hu": true, "bg": true,
	"lt": true, "lv": true, "et": true,
}

func separatorsFor(tag language.Tag) separators {
	base, _, region := tag.Raw()
	if region.String() == "CH" || region.String() == "LI" {
		return sepSwiss
	}
	b := base.String()
	switch {
	case commaLocales[b]:
		return sepComma
	case spaceLocales[b]:
		return sepCommaSpace
	}
	return sepDot
}

// delocalize rewrites a localized number into the form strconv accepts.
func delocalize(s string, sep separators) string {
	s = strings.TrimSpace(s)
	for _, g := range sep.group {
		s = strings.ReplaceAll(s, g, "")
	}
	if sep.decimal != '.' {
		s = strings.ReplaceAll(s, string(sep.decimal), ".")
	}
	return s
}
