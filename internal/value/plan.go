package value

import (
	"fmt"

	"go.uber.org/zap"
)

// Column describes one result column as the Plan resolved it.
type Column struct {
	Name     string
	TypeName string
	Category Category
}

// Plan is a per-stream compiled normalization plan: the category of every
// column is resolved once so the row loop does no type-name lookups.
type Plan struct {
	n    *Normalizer
	cols []Column
	elem []Category
}

// Compile resolves categories for the given column names and database type
// names (as reported by ColumnType.DatabaseTypeName). Columns of unsupported
// types are logged once here and normalize to Unsupported.
func (n *Normalizer) Compile(names, typeNames []string) *Plan {
	p := &Plan{
		n:    n,
		cols: make([]Column, len(names)),
		elem: make([]Category, len(names)),
	}
	for i, name := range names {
		var typ string
		if i < len(typeNames) {
			typ = typeNames[i]
		}
		cat := CategoryOf(typ)
		p.cols[i] = Column{Name: name, TypeName: typ, Category: cat}
		if cat == CategoryArray {
			p.elem[i] = elementCategory(typ)
		}
		if cat == CategoryUnknown || cat == CategoryStruct {
			n.log.Warn("normalize: unsupported column",
				zap.String("column", name),
				zap.String("type", typ))
		}
	}
	return p
}

// CompileCategories builds a plan from explicit categories, used for
// stored-procedure output registers whose types come from configuration.
func (n *Normalizer) CompileCategories(names []string, cats []Category) *Plan {
	p := &Plan{
		n:    n,
		cols: make([]Column, len(names)),
		elem: make([]Category, len(names)),
	}
	for i, name := range names {
		cat := CategoryDynamic
		if i < len(cats) {
			cat = cats[i]
		}
		p.cols[i] = Column{Name: name, TypeName: cat.String(), Category: cat}
		p.elem[i] = CategoryDynamic
	}
	return p
}

// Columns returns the resolved columns in result order.
func (p *Plan) Columns() []Column { return p.cols }

// Names returns the column labels in result order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.cols))
	for i, c := range p.cols {
		out[i] = c.Name
	}
	return out
}

// Apply normalizes one row into dst (reallocated when too short) and returns
// it with the row's payload size in bytes. The only error is
// ErrLargeObjectTooBig, wrapped with the column name.
func (p *Plan) Apply(raw []any, dst []Value) ([]Value, int64, error) {
	if cap(dst) < len(p.cols) {
		dst = make([]Value, len(p.cols))
	}
	dst = dst[:len(p.cols)]
	var size int64
	for i, c := range p.cols {
		var r any
		if i < len(raw) {
			r = raw[i]
		}
		v, err := p.n.normalize(r, c.Category, p.elem[i], c.TypeName)
		if err != nil {
			return nil, size, fmt.Errorf("column %q: %w", c.Name, err)
		}
		dst[i] = v
		size += v.Size()
	}
	return dst, size, nil
}
