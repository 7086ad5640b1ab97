// Package query renders parameterized WHERE fragments. Every value travels as a bound argument.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Clause is a SQL fragment with its positional `?` arguments.
type Clause struct {
	SQL  string
	Args []any
}

func (c Clause) IsEmpty() bool {
	return strings.TrimSpace(c.SQL) == ""
}

// Never matches any row.
var Nothing = Clause{SQL: "1 = 0"}

// And joins the non-empty clauses. The result is empty when every input is.
func And(clauses ...Clause) Clause {
	return join(" AND ", clauses)
}

func Or(clauses ...Clause) Clause {
	return join(" OR ", clauses)
}

func join(sep string, clauses []Clause) Clause {
	var kept []Clause
	for _, c := range clauses {
		if !c.IsEmpty() {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return Clause{}
	case 1:
		return kept[0]
	}

	parts := make([]string, 0, len(kept))
	var args []any
	for _, c := range kept {
		parts = append(parts, "("+c.SQL+")")
		args = append(args, c.Args...)
	}
	return Clause{SQL: strings.Join(parts, sep), Args: args}
}

// Eq renders `column = ?`.
func Eq(column string, value any) Clause {
	return Clause{SQL: column + " = ?", Args: []any{value}}
}

// In renders `column IN ?`; gorm and sqlx.In expand the slice.
func In(column string, values []any) Clause {
	if len(values) == 0 {
		return Nothing
	}
	return Clause{SQL: column + " IN ?", Args: []any{values}}
}

// Columns whitelists the filter keys a store accepts and maps them to SQL columns.
type Columns map[string]string

// Filter is one group of conditions: values of a key are OR-ed, and so are the keys.
type Filter map[string][]any

func (f Filter) Clause(cols Columns) (Clause, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Clause, 0, len(keys))
	for _, k := range keys {
		column, ok := cols[k]
		if !ok {
			return Clause{}, fmt.Errorf("filter on unknown column %q", k)
		}
		if len(f[k]) == 0 {
			continue
		}
		parts = append(parts, In(column, f[k]))
	}
	return Or(parts...), nil
}

// Where ANDs every filter group together with the extra clauses (typically a permission scope).
func Where(filters []Filter, cols Columns, extra ...Clause) (Clause, error) {
	parts := make([]Clause, 0, len(filters)+len(extra))
	for _, f := range filters {
		c, err := f.Clause(cols)
		if err != nil {
			return Clause{}, err
		}
		parts = append(parts, c)
	}
	parts = append(parts, extra...)
	return And(parts...), nil
}

// FromValues turns `?status=open,closed_by_justice&departement=93` into one filter group per key.
func FromValues(values url.Values, keys ...string) []Filter {
	var filters []Filter
	for _, key := range keys {
		var vals []any
		for _, raw := range values[key] {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					vals = append(vals, v)
				}
			}
		}
		if len(vals) > 0 {
			filters = append(filters, Filter{key: vals})
		}
	}
	return filters
}
