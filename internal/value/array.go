package value

import (
	"errors"
	"strings"
)

var errArrayLiteral = errors.New("value: malformed array literal")

// elementCategory derives the element category of an array type name:
// "_INT4" and "INT4[]" both yield CategorySmallInt. Unrecognized element types
// fall back to CategoryDynamic so elements keep their driver type.
func elementCategory(typeName string) Category {
	t := strings.ToUpper(strings.TrimSpace(typeName))
	t = strings.TrimPrefix(t, "_")
	t = strings.TrimSuffix(t, "[]")
	if t == "" || t == "ARRAY" {
		return CategoryDynamic
	}
	c := CategoryOf(t)
	if c == CategoryUnknown || c == CategoryArray {
		return CategoryDynamic
	}
	return c
}

// parseArrayLiteral splits a one-dimensional PostgreSQL array literal such as
// {a,"b c",NULL}. Unquoted NULL elements are returned as nil.
func parseArrayLiteral(s string) ([]*string, error) {
	s = strings.TrimSpace(s)
	// Leading dimension decoration: [1:3]={...}
	if strings.HasPrefix(s, "[") {
		i := strings.IndexByte(s, '=')
		if i < 0 {
			return nil, errArrayLiteral
		}
		s = s[i+1:]
	}
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, errArrayLiteral
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []*string{}, nil
	}

	var (
		out    []*string
		cur    strings.Builder
		quoted bool
		inStr  bool
		depth  int
	)
	flush := func() {
		e := cur.String()
		if !quoted {
			e = strings.TrimSpace(e)
			if strings.EqualFold(e, "NULL") {
				out = append(out, nil)
				cur.Reset()
				return
			}
		}
		out = append(out, &e)
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inStr && c == '\\':
			if i+1 < len(body) {
				i++
				cur.WriteByte(body[i])
			}
		case c == '"':
			inStr = !inStr
			quoted = true
		case inStr:
			cur.WriteByte(c)
		case c == '{':
			depth++
			cur.WriteByte(c)
		case c == '}':
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if inStr || depth != 0 {
		return nil, errArrayLiteral
	}
	flush()
	return out, nil
}
