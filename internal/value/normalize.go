package value

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Normalizer converts raw driver values into Values. It is immutable after
// construction and safe for concurrent use.
type Normalizer struct {
	opts Options
	sep  separators
	log  *zap.Logger
}

// NewNormalizer returns a Normalizer for opts. A nil logger discards output.
func NewNormalizer(opts Options, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{opts: opts, sep: separatorsFor(opts.Locale), log: log}
}

// Normalize is a convenience wrapper around a throwaway Normalizer.
func Normalize(raw any, cat Category, opts Options) (Value, error) {
	return NewNormalizer(opts, nil).Normalize(raw, cat)
}

// Options returns the options n was built with.
func (n *Normalizer) Options() Options { return n.opts }

// Normalize converts raw according to cat. A nil raw value is always Null and
// a Value passes through unchanged. Per-value parse failures are logged and
// yield Null; the only error returned is ErrLargeObjectTooBig.
func (n *Normalizer) Normalize(raw any, cat Category) (Value, error) {
	return n.normalize(raw, cat, CategoryDynamic, cat.String())
}

func (n *Normalizer) normalize(raw any, cat, elem Category, typeName string) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case *Value:
		if v == nil {
			return Null(), nil
		}
		return *v, nil
	}

	out, err := n.dispatch(raw, cat, elem, typeName)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrLargeObjectTooBig) {
		return Null(), err
	}
	n.log.Warn("normalize: value dropped",
		zap.String("type", typeName),
		zap.String("category", cat.String()),
		zap.Error(err))
	return Null(), nil
}

func (n *Normalizer) dispatch(raw any, cat, elem Category, typeName string) (Value, error) {
	switch cat {
	case CategoryChar:
		return n.text(raw), nil
	case CategoryBinary:
		return n.binary(raw)
	case CategorySmallInt:
		return normalizeInteger(raw, true)
	case CategoryBigInt:
		return normalizeInteger(raw, false)
	case CategoryBool:
		return normalizeBool(raw)
	case CategoryDecimal:
		s, ok := decimalString(raw)
		if !ok {
			return Null(), fmt.Errorf("decimal: unexpected %T", raw)
		}
		return normalizeDecimal(s, n.opts)
	case CategoryFloat:
		return normalizeFloat(raw, n.sep)
	case CategoryDate, CategoryTime, CategoryTimestamp:
		return normalizeTemporal(raw, cat, n.opts.location())
	case CategoryCLOB:
		b, err := n.materialize(raw)
		if err != nil {
			return Null(), err
		}
		return Text(string(b)), nil
	case CategoryBLOB:
		b, err := n.materialize(raw)
		if err != nil {
			return Null(), err
		}
		if n.opts.BinaryAsText {
			return Text(string(b)), nil
		}
		return Bytes(b), nil
	case CategoryArray:
		return n.array(raw, elem)
	case CategoryDynamic:
		return n.dynamic(raw)
	}
	n.log.Debug("normalize: unsupported column type",
		zap.String("type", typeName),
		zap.String("category", cat.String()))
	return Unsupported(typeName), nil
}

func (n *Normalizer) text(raw any) Value {
	switch v := raw.(type) {
	case string:
		return Text(v)
	case []byte:
		return Text(string(v))
	case time.Time:
		return Text(v.In(n.opts.location()).Format(layoutTimestamp))
	}
	return Text(fmt.Sprint(raw))
}

func (n *Normalizer) binary(raw any) (Value, error) {
	switch v := raw.(type) {
	case []byte:
		if n.opts.BinaryAsText {
			return Text(string(v)), nil
		}
		return Bytes(append([]byte(nil), v...)), nil
	case string:
		if n.opts.BinaryAsText {
			return Text(v), nil
		}
		return Bytes([]byte(v)), nil
	}
	return Null(), fmt.Errorf("binary: unexpected %T", raw)
}

// materialize reads a large object fully into memory, enforcing the length
// bound. Readers are closed afterwards when they implement io.Closer.
func (n *Normalizer) materialize(raw any) ([]byte, error) {
	limit := n.opts.maxLOB()
	switch v := raw.(type) {
	case []byte:
		if int64(len(v)) > limit {
			return nil, fmt.Errorf("%w: %d bytes", ErrLargeObjectTooBig, len(v))
		}
		return append([]byte(nil), v...), nil
	case string:
		if int64(len(v)) > limit {
			return nil, fmt.Errorf("%w: %d bytes", ErrLargeObjectTooBig, len(v))
		}
		return []byte(v), nil
	case io.Reader:
		if c, ok := v.(io.Closer); ok {
			defer c.Close()
		}
		b, err := io.ReadAll(io.LimitReader(v, limit+1))
		if err != nil {
			return nil, fmt.Errorf("read large object: %w", err)
		}
		if int64(len(b)) > limit {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrLargeObjectTooBig, limit)
		}
		return b, nil
	}
	return nil, fmt.Errorf("large object: unexpected %T", raw)
}

func (n *Normalizer) array(raw any, elem Category) (Value, error) {
	switch v := raw.(type) {
	case []any:
		out := make([]Value, 0, len(v))
		for _, e := range v {
			ev, err := n.normalize(e, elem, CategoryDynamic, elem.String())
			if err != nil {
				return Null(), err
			}
			out = append(out, ev)
		}
		return Array(out), nil
	case []string:
		out := make([]Value, 0, len(v))
		for _, e := range v {
			ev, err := n.normalize(e, elemOrChar(elem), CategoryDynamic, elem.String())
			if err != nil {
				return Null(), err
			}
			out = append(out, ev)
		}
		return Array(out), nil
	case string:
		return n.arrayLiteral(v, elem)
	case []byte:
		return n.arrayLiteral(string(v), elem)
	}
	return Null(), fmt.Errorf("array: unexpected %T", raw)
}

func (n *Normalizer) arrayLiteral(s string, elem Category) (Value, error) {
	parts, err := parseArrayLiteral(s)
	if err != nil {
		return Null(), fmt.Errorf("array %q: %w", s, err)
	}
	out := make([]Value, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			out = append(out, Null())
			continue
		}
		ev, err := n.normalize(*p, elemOrChar(elem), CategoryDynamic, elem.String())
		if err != nil {
			return Null(), err
		}
		out = append(out, ev)
	}
	return Array(out), nil
}

// elemOrChar keeps text elements as text when the element type is unknown.
func elemOrChar(c Category) Category {
	if c == CategoryDynamic {
		return CategoryChar
	}
	return c
}

// dynamic dispatches on the Go type of raw; it serves columns whose driver
// reports no declared type.
func (n *Normalizer) dynamic(raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		return Text(v), nil
	case []byte:
		if n.opts.BinaryAsText {
			return Text(string(v)), nil
		}
		return Bytes(append([]byte(nil), v...)), nil
	case bool:
		return Bool(v), nil
	case int64, int32, int16, int8, int, uint8, uint16, uint32, uint64, uint:
		return normalizeInteger(v, false)
	case float64:
		return Float(v), nil
	case float32:
		return Float(float64(v)), nil
	case time.Time:
		return normalizeTemporal(v, CategoryTimestamp, n.opts.location())
	case []any:
		return n.array(v, CategoryDynamic)
	case io.Reader:
		b, err := n.materialize(v)
		if err != nil {
			return Null(), err
		}
		return Text(string(b)), nil
	case fmt.Stringer:
		return Text(v.String()), nil
	}
	return Unsupported(fmt.Sprintf("%T", raw)), nil
}
