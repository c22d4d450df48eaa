package sqlstore

import (
	"strings"

	"github.com/dmitrijs2005/fintrack/internal/storage"
)

// query accumulates WHERE conditions and their bind arguments.
type query struct {
	dialect Dialect
	conds   []string
	args    []any
}

func (q *query) bind(v any, f storage.Field) string {
	q.args = append(q.args, q.dialect.Arg(v, f))
	return q.dialect.Placeholder(len(q.args))
}

func (q *query) whereClause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// equal matches every field of ix against values. A nil value matches a
// missing or null field.
func (q *query) equal(ix *storage.Index, values []any) error {
	if err := storage.CheckArity(ix, len(values), true); err != nil {
		return err
	}
	for i, v := range storage.NormalizeAll(values) {
		f := ix.Fields[i]
		if v == nil {
			q.conds = append(q.conds, q.dialect.Expr(f)+" IS NULL")
			continue
		}
		q.conds = append(q.conds, q.dialect.Expr(f)+" = "+q.bind(v, f))
	}
	return nil
}

// keyRange compares the leading fields of ix with each bound as a row
// value. Without bounds it selects rows where every field is present.
func (q *query) keyRange(ix *storage.Index, r storage.KeyRange) error {
	if err := storage.CheckArity(ix, len(r.Lower), false); err != nil {
		return err
	}
	if err := storage.CheckArity(ix, len(r.Upper), false); err != nil {
		return err
	}

	if len(r.Lower) == 0 && len(r.Upper) == 0 {
		for _, f := range ix.Fields {
			q.conds = append(q.conds, q.dialect.Expr(f)+" IS NOT NULL")
		}
		return nil
	}

	if len(r.Lower) > 0 {
		op := ">="
		if r.LowerOpen {
			op = ">"
		}
		q.bound(ix, storage.NormalizeAll(r.Lower), op)
	}
	if len(r.Upper) > 0 {
		op := "<="
		if r.UpperOpen {
			op = "<"
		}
		q.bound(ix, storage.NormalizeAll(r.Upper), op)
	}
	return nil
}

func (q *query) bound(ix *storage.Index, values []any, op string) {
	lhs := make([]string, len(values))
	rhs := make([]string, len(values))
	for i, v := range values {
		f := ix.Fields[i]
		lhs[i] = q.dialect.Expr(f)
		rhs[i] = q.bind(v, f)
	}
	q.conds = append(q.conds, "("+strings.Join(lhs, ", ")+") "+op+" ("+strings.Join(rhs, ", ")+")")
}
