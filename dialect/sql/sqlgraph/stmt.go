package sqlgraph

import (
	"fmt"
	"strings"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// JoinType is the SQL join flavor of a statement join.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftOuterJoin
)

func (j JoinType) String() string {
	if j == LeftOuterJoin {
		return "LEFT OUTER JOIN"
	}
	return "INNER JOIN"
}

// Param is a named statement argument whose value is bound at execution
// time. Statements carrying owner restrictions render once with Param
// placeholders and are bound per call with Bind.
type Param struct {
	Name string
}

// Bind replaces every Param in args with its value from values.
// A Param with no value is a usage error.
func Bind(args []any, values map[string]any) ([]any, error) {
	bound := make([]any, len(args))
	for i, a := range args {
		p, ok := a.(Param)
		if !ok {
			bound[i] = a
			continue
		}
		v, ok := values[p.Name]
		if !ok {
			return nil, quarry.NewUsageError("statement.bind", "", fmt.Sprintf("no value bound for parameter %q", p.Name))
		}
		bound[i] = v
	}
	return bound, nil
}

// StatementTable is the handle of one table registered in a statement's
// scope, addressed by its alias.
type StatementTable struct {
	Table *Table
	Alias string
}

// C returns the alias-qualified form of a column.
func (t *StatementTable) C(column string) string {
	return t.Alias + "." + column
}

// Cs returns the alias-qualified forms of a mapping's columns.
func (t *StatementTable) Cs(m *TypeMapping) []string {
	cols := make([]string, m.ColumnCount())
	for i, c := range m.Columns {
		cols[i] = t.C(c.Column)
	}
	return cols
}

type joinEntry struct {
	typ    JoinType
	target *StatementTable
	cond   *sql.Predicate
}

type selectItem struct {
	expr  string
	alias string
}

type orderItem struct {
	expr string
	desc bool
}

// SelectStatement is the mutable structural description of one SELECT:
// a primary table, joined tables keyed by alias, a select list, a WHERE
// conjunction, an ORDER BY list and optional unioned siblings. It is
// mutated incrementally by resolvers and backing stores, rendered once,
// and then immutable.
type SelectStatement struct {
	dialect string
	primary *StatementTable
	joins   []*joinEntry
	byAlias map[string]*StatementTable

	selects      []selectItem
	wherePrimary []*sql.Predicate
	whereExtra   []*sql.Predicate
	order        []orderItem
	unions       []*SelectStatement

	rendered bool
	text     string
	args     []any
}

// NewSelectStatement returns a statement over the given primary table.
// An empty alias defaults to the table name.
func NewSelectStatement(dialect string, t *Table, alias string) *SelectStatement {
	if alias == "" {
		alias = t.Name()
	}
	primary := &StatementTable{Table: t, Alias: alias}
	return &SelectStatement{
		dialect: dialect,
		primary: primary,
		byAlias: map[string]*StatementTable{alias: primary},
	}
}

// Primary returns the statement's primary table handle.
func (s *SelectStatement) Primary() *StatementTable {
	return s.primary
}

// TableByAlias returns the table registered under the given alias.
func (s *SelectStatement) TableByAlias(alias string) (*StatementTable, bool) {
	t, ok := s.byAlias[alias]
	return t, ok
}

// DeriveAlias returns the conventional alias of a relationship joined from
// the given parent: "{PARENT}_{MEMBER}" upper-cased.
func DeriveAlias(parent *StatementTable, member string) string {
	return strings.ToUpper(parent.Alias + "_" + member)
}

// Join registers a joined table and returns its handle. The join condition
// equates the source mapping's columns with the target mapping's columns
// pairwise, plus the optional discriminator restriction. Any further
// restriction on the joined table goes through WhereAnd, keeping the join
// condition purely structural. When alias is empty it is derived from the
// source alias and the target mapping's member name.
//
// Joining twice under one alias returns the already-registered handle and
// adds nothing to the statement, so resolvers touching the same
// relationship repeatedly never duplicate a JOIN clause.
func (s *SelectStatement) Join(jt JoinType, source *StatementTable, sourceMapping *TypeMapping, target *Table, alias string, targetMapping *TypeMapping, disc *schema.Discriminator) (*StatementTable, error) {
	if s.rendered {
		return nil, errMutateRendered()
	}
	if alias == "" {
		alias = DeriveAlias(source, targetMapping.Member)
	}
	if existing, ok := s.byAlias[alias]; ok {
		return existing, nil
	}
	if sourceMapping.ColumnCount() != targetMapping.ColumnCount() {
		return nil, quarry.NewUsageError("statement.join", targetMapping.Member,
			fmt.Sprintf("join mappings span %d and %d columns", sourceMapping.ColumnCount(), targetMapping.ColumnCount()))
	}
	targetTable := &StatementTable{Table: target, Alias: alias}
	preds := make([]*sql.Predicate, 0, sourceMapping.ColumnCount()+1)
	for i := range sourceMapping.Columns {
		preds = append(preds, sql.ColumnsEQ(
			source.C(sourceMapping.Columns[i].Column),
			targetTable.C(targetMapping.Columns[i].Column),
		))
	}
	if disc != nil {
		preds = append(preds, sql.EQ(targetTable.C(disc.Column), disc.Value))
	}
	cond := preds[0]
	if len(preds) > 1 {
		cond = sql.And(preds...)
	}
	s.joins = append(s.joins, &joinEntry{typ: jt, target: targetTable, cond: cond})
	s.byAlias[alias] = targetTable
	return targetTable, nil
}

// Select appends the mapping's columns to the select list. The alias, when
// given, applies to a single-column mapping. The position of the first
// Select call is significant: iterators assume the primary entity columns
// come first.
func (s *SelectStatement) Select(t *StatementTable, m *TypeMapping, alias string) error {
	if s.rendered {
		return errMutateRendered()
	}
	if alias != "" && m.ColumnCount() > 1 {
		return quarry.NewUsageError("statement.select", m.Member, "cannot alias a multi-column mapping")
	}
	for _, c := range m.Columns {
		s.selects = append(s.selects, selectItem{expr: t.C(c.Column), alias: alias})
	}
	return nil
}

// SelectColumn appends one raw column to the select list.
func (s *SelectStatement) SelectColumn(t *StatementTable, column, alias string) error {
	if s.rendered {
		return errMutateRendered()
	}
	s.selects = append(s.selects, selectItem{expr: t.C(column), alias: alias})
	return nil
}

// SelectExpr appends a raw select expression, such as an aggregate.
func (s *SelectStatement) SelectExpr(expr, alias string) error {
	if s.rendered {
		return errMutateRendered()
	}
	s.selects = append(s.selects, selectItem{expr: expr, alias: alias})
	return nil
}

// SelectCount returns the number of select-list entries.
func (s *SelectStatement) SelectCount() int {
	return len(s.selects)
}

// WhereAnd conjoins a condition into the WHERE clause. Primary conditions
// (owner and discriminator restrictions) render before the rest, which
// fixes the observable parameter positions regardless of resolver order.
func (s *SelectStatement) WhereAnd(p *sql.Predicate, primary bool) error {
	if s.rendered {
		return errMutateRendered()
	}
	if p == nil {
		return nil
	}
	if primary {
		s.wherePrimary = append(s.wherePrimary, p)
	} else {
		s.whereExtra = append(s.whereExtra, p)
	}
	return nil
}

// Union appends a sibling statement. The sibling must select the same
// number of columns in the same order.
func (s *SelectStatement) Union(other *SelectStatement) error {
	if s.rendered {
		return errMutateRendered()
	}
	if len(other.selects) != len(s.selects) {
		return quarry.NewUsageError("statement.union", "",
			fmt.Sprintf("union members select %d and %d columns", len(s.selects), len(other.selects)))
	}
	s.unions = append(s.unions, other)
	return nil
}

// SetOrdering replaces the ORDER BY list. The expressions and descending
// flags are parallel slices.
func (s *SelectStatement) SetOrdering(exprs []string, desc []bool) error {
	if s.rendered {
		return errMutateRendered()
	}
	if len(exprs) != len(desc) {
		return quarry.NewUsageError("statement.ordering", "",
			fmt.Sprintf("%d order expressions with %d direction flags", len(exprs), len(desc)))
	}
	s.order = s.order[:0]
	for i := range exprs {
		s.order = append(s.order, orderItem{expr: exprs[i], desc: desc[i]})
	}
	return nil
}

// Query renders the statement. The first call fixes the text and the
// argument template; later calls return the same rendering and further
// mutation fails.
func (s *SelectStatement) Query() (string, []any) {
	if s.rendered {
		return s.text, s.args
	}
	b := sql.NewBuilder(s.dialect)
	s.render(b)
	s.text, s.args = b.String(), b.TakeArgs()
	s.rendered = true
	return s.text, s.args
}

func (s *SelectStatement) render(b *sql.Builder) {
	b.WriteString("SELECT ")
	if len(s.selects) == 0 {
		b.WriteString("*")
	}
	for i, item := range s.selects {
		if i > 0 {
			b.Comma()
		}
		b.Ident(item.expr)
		if item.alias != "" {
			b.WriteString(" AS ")
			b.Ident(item.alias)
		}
	}
	b.WriteString(" FROM ")
	b.Ident(s.primary.Table.Name())
	if s.primary.Alias != s.primary.Table.Name() {
		b.WriteString(" AS ")
		b.Ident(s.primary.Alias)
	}
	for _, j := range s.joins {
		b.Pad().WriteString(j.typ.String()).Pad()
		b.Ident(j.target.Table.Name())
		b.WriteString(" AS ")
		b.Ident(j.target.Alias)
		b.WriteString(" ON ")
		j.cond.Build(b)
	}
	conds := append(append([]*sql.Predicate{}, s.wherePrimary...), s.whereExtra...)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		where := conds[0]
		if len(conds) > 1 {
			where = sql.And(conds...)
		}
		where.Build(b)
	}
	for _, u := range s.unions {
		b.WriteString(" UNION ")
		u.render(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.order {
			if i > 0 {
				b.Comma()
			}
			b.Ident(o.expr)
			if o.desc {
				b.WriteString(" DESC")
			}
		}
	}
}

func errMutateRendered() error {
	return quarry.NewUsageError("statement.mutate", "", "statement is already rendered")
}
