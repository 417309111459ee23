// Package value defines the canonical scalar values produced from raw driver
// column values, and the Normalizer that produces them.
//
// A Value is a closed sum type: every normalized column ends up as exactly one
// Kind. KindNull means the column was legitimately absent (SQL NULL, zero
// date, unparsable input); KindUnsupported means the column type is one the
// normalizer does not handle (structured, reference or row-id types). Both
// serialize as JSON null, but callers can tell them apart.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math"
	"strconv"

	"github.com/zeebo/xxh3"
)

// Kind enumerates the normalized value categories.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindFloat
	KindBool
	KindBytes
	KindDateTime
	KindArray
	KindUnsupported
)

var kindNames = [...]string{
	KindNull:        "null",
	KindText:        "text",
	KindInt:         "int",
	KindFloat:       "float",
	KindBool:        "bool",
	KindBytes:       "bytes",
	KindDateTime:    "datetime",
	KindArray:       "array",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one normalized scalar (or array of scalars). The zero Value is Null.
type Value struct {
	kind Kind
	str  string // text, datetime, unsupported type name
	num  int64  // int, bool (0/1)
	flt  float64
	bin  []byte
	arr  []Value
}

func Null() Value                 { return Value{} }
func Text(s string) Value         { return Value{kind: KindText, str: s} }
func Int(i int64) Value           { return Value{kind: KindInt, num: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, flt: f} }
func DateTime(iso string) Value   { return Value{kind: KindDateTime, str: iso} }
func Array(elems []Value) Value   { return Value{kind: KindArray, arr: elems} }
func Unsupported(typ string) Value { return Value{kind: KindUnsupported, str: typ} }

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

// Bytes wraps b without copying.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bin: b} }

func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v carries no data: Null or Unsupported.
func (v Value) IsNull() bool { return v.kind == KindNull || v.kind == KindUnsupported }

// Str returns the payload of Text, DateTime and Unsupported values.
func (v Value) Str() string { return v.str }

func (v Value) Int() int64       { return v.num }
func (v Value) Float() float64   { return v.flt }
func (v Value) Bool() bool       { return v.num != 0 }
func (v Value) BytesVal() []byte { return v.bin }
func (v Value) Elems() []Value   { return v.arr }

// Equal reports whether v and o hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindText, KindDateTime, KindUnsupported:
		return v.str == o.str
	case KindInt, KindBool:
		return v.num == o.num
	case KindFloat:
		return v.flt == o.flt || (math.IsNaN(v.flt) && math.IsNaN(o.flt))
	case KindBytes:
		return bytes.Equal(v.bin, o.bin)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Hash returns an xxh3 hash of the canonical encoding of v. Equal values
// always hash equally.
func (v Value) Hash() uint64 {
	var buf [64]byte
	return xxh3.Hash(v.appendKey(buf[:0]))
}

func (v Value) appendKey(b []byte) []byte {
	b = append(b, byte(v.kind))
	switch v.kind {
	case KindText, KindDateTime, KindUnsupported:
		b = append(b, v.str...)
	case KindInt, KindBool:
		b = binary.LittleEndian.AppendUint64(b, uint64(v.num))
	case KindFloat:
		f := v.flt
		if math.IsNaN(f) {
			f = math.NaN()
		}
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
	case KindBytes:
		b = append(b, v.bin...)
	case KindArray:
		b = binary.LittleEndian.AppendUint32(b, uint32(len(v.arr)))
		for _, e := range v.arr {
			k := e.appendKey(nil)
			b = binary.LittleEndian.AppendUint32(b, uint32(len(k)))
			b = append(b, k...)
		}
	}
	return b
}

// Size estimates the payload volume of v in bytes, for byte counters.
func (v Value) Size() int64 {
	switch v.kind {
	case KindText, KindDateTime:
		return int64(len(v.str))
	case KindBytes:
		return int64(len(v.bin))
	case KindInt, KindFloat:
		return 8
	case KindBool:
		return 1
	case KindArray:
		var n int64
		for _, e := range v.arr {
			n += e.Size()
		}
		return n
	}
	return 0
}

// AppendJSON appends the JSON encoding of v to b.
func (v Value) AppendJSON(b []byte) []byte {
	switch v.kind {
	case KindText, KindDateTime:
		return appendJSONString(b, v.str)
	case KindInt:
		return strconv.AppendInt(b, v.num, 10)
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return append(b, "null"...)
		}
		return strconv.AppendFloat(b, v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.AppendBool(b, v.num != 0)
	case KindBytes:
		b = append(b, '"')
		b = base64.StdEncoding.AppendEncode(b, v.bin)
		return append(b, '"')
	case KindArray:
		b = append(b, '[')
		for i, e := range v.arr {
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
func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(nil), nil
}

// String renders v for logs and placeholder substitution.
func (v Value) String() string {
	switch v.kind {
	case KindText, KindDateTime:
		return v.str
	case KindUnsupported:
		return "<unsupported " + v.str + ">"
	case KindNull:
		return "<null>"
	}
	return string(v.AppendJSON(nil))
}

const hexDigits = "0123456789abcdef"

// appendJSONString writes s as a quoted JSON string. It escapes the same set
// of characters as encoding/json minus HTML escaping.
func appendJSONString(b []byte, s string) []byte {
	b = append(b, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		b = append(b, s[start:i]...)
		switch c {
		case '"', '\\':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
		start = i + 1
	}
	b = append(b, s[start:]...)
	return append(b, '"')
}

// AppendJSONString exposes the string encoder to sibling packages that
// serialize document keys.
func AppendJSONString(b []byte, s string) []byte { return appendJSONString(b, s) }
