package query

import (
	"fmt"
	"strings"

	"github.com/rosterlabs/rosterwatch/internal/schema"
)

// Compiler compiles Specs into SQL against a schema registry.
type Compiler struct {
	reg *schema.Registry
}

// NewCompiler returns a compiler bound to the given registry.
func NewCompiler(reg *schema.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// CompileData produces the full SELECT for a spec. When page is non-nil the
// query is paginated with LIMIT offset, size; a paginated query without an
// explicit order falls back to ordering by the first selected field so page
// boundaries are stable for a fixed dataset. The fallback key is not
// guaranteed unique, so boundaries can drift under concurrent writes.
func (c *Compiler) CompileData(spec Spec, page *Page) (string, error) {
	body, err := c.compileBody(spec)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(body.selectList, ", "))
	b.WriteString(" FROM ")
	b.WriteString(body.from)
	for _, j := range body.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if body.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(body.where)
	}

	paginated := page != nil && page.Size > 0

	switch {
	case spec.OrderBy != "":
		t, f, err := splitRef(spec.OrderBy)
		if err != nil {
			return "", err
		}
		col, err := c.reg.Resolve(t, f)
		if err != nil {
			return "", err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(col.Qualified)
		b.WriteString(" ")
		b.WriteString(orderDir(spec.OrderDir))
	case paginated:
		b.WriteString(" ORDER BY ")
		b.WriteString(body.firstField.Qualified)
		b.WriteString(" ASC")
	}

	if paginated {
		number := page.Number
		if number < 1 {
			number = 1
		}
		offset := page.Size * (number - 1)
		fmt.Fprintf(&b, " LIMIT %d, %d", offset, page.Size)
	} else if spec.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", spec.Limit)
	}

	return b.String(), nil
}

// CompileCount produces the COUNT(*) variant with identical FROM/JOIN/WHERE
// and no select list, ordering, or limit.
func (c *Compiler) CompileCount(spec Spec) (string, error) {
	body, err := c.compileBody(spec)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(body.from)
	for _, j := range body.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if body.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(body.where)
	}
	return b.String(), nil
}

// compiled holds the shared parts of the count and data variants.
type compiled struct {
	selectList []string
	from       string
	joins      []string
	where      string
	firstField schema.Column
}

// resolvedCondition pairs a condition with its resolved column and parsed
// operator.
type resolvedCondition struct {
	col      schema.Column
	op       Operator
	value    string
	value2   string
	relation BoolOp
	last     bool
}

func (c *Compiler) compileBody(spec Spec) (*compiled, error) {
	if len(spec.Fields) == 0 {
		return nil, ErrEmptyFieldSelection
	}

	// First-seen table order drives the join anchor; it must be stable so
	// identical specs compile to identical SQL.
	var needed []string
	seen := make(map[string]bool)
	mark := func(table string) {
		if !seen[table] {
			seen[table] = true
			needed = append(needed, table)
		}
	}

	out := &compiled{}
	for i, ref := range spec.Fields {
		t, f, err := splitRef(ref)
		if err != nil {
			return nil, err
		}
		col, err := c.reg.Resolve(t, f)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			out.firstField = col
		}
		mark(t)
		out.selectList = append(out.selectList, col.Qualified+" AS "+col.Alias)
	}

	// Resolve conditions up front: table inference needs their tables and
	// WHERE rendering needs their columns. Conditions missing a field or an
	// operator are form leftovers and are skipped silently.
	groups := make([][]resolvedCondition, len(spec.Groups))
	for gi, g := range spec.Groups {
		for ci, cond := range g.Conditions {
			if strings.TrimSpace(cond.Field) == "" || strings.TrimSpace(cond.Operator) == "" {
				continue
			}
			t, f, err := splitRef(cond.Field)
			if err != nil {
				return nil, err
			}
			col, err := c.reg.Resolve(t, f)
			if err != nil {
				return nil, err
			}
			op, err := ParseOperator(cond.Operator)
			if err != nil {
				return nil, err
			}
			if op.needsSecond() && cond.Value2 == "" {
				return nil, fmt.Errorf("%w: %s", ErrMissingOperand, cond.Field)
			}
			mark(t)
			groups[gi] = append(groups[gi], resolvedCondition{
				col:      col,
				op:       op,
				value:    cond.Value,
				value2:   cond.Value2,
				relation: cond.Relation,
				last:     ci == len(g.Conditions)-1,
			})
		}
	}

	if err := c.buildJoins(out, needed, spec.JoinType); err != nil {
		return nil, err
	}

	where, err := renderWhere(groups, spec.GroupOperators)
	if err != nil {
		return nil, err
	}
	out.where = where

	return out, nil
}

// buildJoins fills from and joins for the needed table set. The anchor is
// always needed[0].
func (c *Compiler) buildJoins(out *compiled, needed []string, jt JoinType) error {
	join := joinKeyword(jt)

	tbl := func(key string) schema.Table {
		t, _ := c.reg.Table(key)
		return t
	}

	switch len(needed) {
	case 1:
		out.from = tbl(needed[0]).Name
		return nil

	case 2:
		a, b := needed[0], needed[1]
		out.from = tbl(a).Name

		// Two related sides: route through the link table with two joins.
		if rel, ok := c.reg.RelationBetween(a, b); ok {
			link, left, right := tbl(rel.Link), tbl(rel.Left), tbl(rel.Right)
			out.joins = append(out.joins,
				fmt.Sprintf("%s %s ON %s.%s = %s.%s",
					join, link.Name, link.Name, rel.LeftKey, left.Name, left.PrimaryKey),
				fmt.Sprintf("%s %s ON %s.%s = %s.%s",
					join, right.Name, right.Name, right.PrimaryKey, link.Name, rel.RightKey),
			)
			return nil
		}
		// One side plus its own link table: a single join suffices.
		if rel, ok := c.reg.RelationWithLink(b, a); ok {
			side, link := tbl(rel.Left), tbl(rel.Link)
			out.joins = append(out.joins,
				fmt.Sprintf("%s %s ON %s.%s = %s.%s",
					join, link.Name, link.Name, rel.LeftKey, side.Name, side.PrimaryKey))
			return nil
		}
		if rel, ok := c.reg.RelationWithLink(a, b); ok {
			link, side := tbl(rel.Link), tbl(rel.Left)
			out.joins = append(out.joins,
				fmt.Sprintf("%s %s ON %s.%s = %s.%s",
					join, side.Name, side.Name, side.PrimaryKey, link.Name, rel.LeftKey))
			return nil
		}
		return fmt.Errorf("%w: %s, %s", ErrUnsupportedJoinPair, a, b)

	case 3:
		// Both sides and the link itself requested: same join graph as the
		// two-side case, anchored wherever the first field landed.
		anchor := needed[0]
		if c.reg.IsLinkTable(anchor) {
			link := tbl(anchor)
			out.from = link.Name
			for _, sideKey := range needed[1:] {
				rel, ok := c.reg.RelationWithLink(anchor, sideKey)
				if !ok {
					return fmt.Errorf("%w: %s", ErrUnsupportedJoinPair, strings.Join(needed, ", "))
				}
				side := tbl(rel.Left)
				out.joins = append(out.joins,
					fmt.Sprintf("%s %s ON %s.%s = %s.%s",
						join, side.Name, side.Name, side.PrimaryKey, link.Name, rel.LeftKey))
			}
			return nil
		}

		var other string
		for _, key := range needed[1:] {
			if !c.reg.IsLinkTable(key) {
				other = key
			}
		}
		rel, ok := c.reg.RelationBetween(anchor, other)
		if !ok || !seenIn(needed, rel.Link) {
			return fmt.Errorf("%w: %s", ErrUnsupportedJoinPair, strings.Join(needed, ", "))
		}
		link, left, right := tbl(rel.Link), tbl(rel.Left), tbl(rel.Right)
		out.from = left.Name
		out.joins = append(out.joins,
			fmt.Sprintf("%s %s ON %s.%s = %s.%s",
				join, link.Name, link.Name, rel.LeftKey, left.Name, left.PrimaryKey),
			fmt.Sprintf("%s %s ON %s.%s = %s.%s",
				join, right.Name, right.Name, right.PrimaryKey, link.Name, rel.RightKey),
		)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedJoinPair, strings.Join(needed, ", "))
	}
}

func seenIn(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// renderWhere assembles the WHERE clause from resolved condition groups.
// Empty groups contribute nothing; groups after the first present one are
// joined with their declared operator, defaulting to OR.
func renderWhere(groups [][]resolvedCondition, groupOps map[int]BoolOp) (string, error) {
	var b strings.Builder
	for gi, g := range groups {
		if len(g) == 0 {
			continue
		}

		var gb strings.Builder
		for _, rc := range g {
			frag, err := rc.op.render(rc.col.Qualified, rc.value, rc.value2)
			if err != nil {
				return "", err
			}
			gb.WriteString(frag)
			if !rc.last && rc.relation != "" {
				gb.WriteString(" ")
				gb.WriteString(string(rc.relation))
				gb.WriteString(" ")
			}
		}

		// A skipped trailing condition can leave a dangling operator behind
		// the last rendered fragment.
		frag := strings.TrimSuffix(strings.TrimSuffix(gb.String(), " AND "), " OR ")

		if b.Len() > 0 {
			op, ok := groupOps[gi]
			if !ok || (op != And && op != Or) {
				op = Or
			}
			b.WriteString(" ")
			b.WriteString(string(op))
			b.WriteString(" ")
		}
		b.WriteString("(")
		b.WriteString(frag)
		b.WriteString(")")
	}
	return b.String(), nil
}

// joinKeyword normalizes the spec's join type to a SQL keyword, defaulting
// to LEFT JOIN.
func joinKeyword(jt JoinType) string {
	switch strings.ToUpper(strings.TrimSpace(string(jt))) {
	case "INNER", "INNER JOIN":
		return "INNER JOIN"
	default:
		return "LEFT JOIN"
	}
}

// orderDir normalizes an order direction, defaulting to ASC.
func orderDir(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "DESC") {
		return "DESC"
	}
	return "ASC"
}
