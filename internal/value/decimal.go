package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

var errNeedsRounding = errors.New("value: rounding necessary")

// normalizeDecimal implements the fixed-decimal rule. With a negative scale the
// exact value is kept as plain text. Otherwise the value is quantized to scale
// digits; if the result is integral and fits in int64 it becomes Int, else
// Float.
func normalizeDecimal(s string, opts Options) (Value, error) {
	s = strings.TrimSpace(s)
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Null(), fmt.Errorf("decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Null(), fmt.Errorf("decimal %q: not finite", s)
	}
	if opts.Scale < 0 {
		return Text(d.Text('f')), nil
	}

	rounded, err := quantize(d, opts.Scale, opts.Rounding)
	if err != nil {
		return Null(), fmt.Errorf("decimal %q: %w", s, err)
	}
	// Int64 fails on a non-zero fractional part, so 4.00 becomes 4.
	if i, err := rounded.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := rounded.Float64()
	if err != nil {
		return Null(), fmt.Errorf("decimal %q: %w", s, err)
	}
	return Float(f), nil
}

func quantize(d *apd.Decimal, scale int, mode RoundingMode) (*apd.Decimal, error) {
	intDigits := d.NumDigits() + int64(d.Exponent)
	if intDigits < 1 {
		intDigits = 1
	}
	prec := uint32(intDigits) + uint32(scale) + 2
	ctx := apd.BaseContext.WithPrecision(prec)
	ctx.Rounding = mode.rounder()

	out := new(apd.Decimal)
	cond, err := ctx.Quantize(out, d, -int32(scale))
	if err != nil {
		return nil, err
	}
	if mode == RoundUnnecessary && cond.Inexact() {
		return nil, errNeedsRounding
	}
	return out, nil
}

// decimalString renders the raw driver forms a decimal column may arrive in.
func decimalString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int:
		return strconv.Itoa(v), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}
