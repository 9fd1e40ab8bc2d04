package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quarryorm/quarry/dialect"
)

// Querier wraps the Query method. Builders and predicates that can render
// themselves to a parameterized statement implement it.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder for the sql dsl.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
	total   int // total number of arguments, used for placeholder numbering.
	errs    []error
}

// NewBuilder returns a fresh builder for the given dialect. Most callers
// use the statement builders instead; NewBuilder is for composing raw
// fragments with dialect-correct quoting and placeholders.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// TakeArgs returns the accumulated arguments of the builder.
func (b *Builder) TakeArgs() []any {
	return b.args
}

// Dialect returns the builder dialect.
func (b *Builder) Dialect() string {
	return b.dialect
}

// Quote quotes the given identifier with the characters based
// on the configured dialect. It defaults to "`".
func (b *Builder) Quote(ident string) string {
	quote := "`"
	if b.postgres() {
		// If it was quoted with the wrong quote character.
		if i := strings.IndexByte(ident, '`'); i >= 0 {
			return strings.ReplaceAll(ident, "`", `"`)
		}
		quote = `"`
	}
	return quote + ident + quote
}

// Ident appends the given string as an identifier.
func (b *Builder) Ident(s string) *Builder {
	switch {
	case len(s) == 0:
	case s == "*":
		b.WriteString(s)
	case strings.HasSuffix(s, " DESC") || strings.HasSuffix(s, " ASC"):
		i := strings.LastIndexByte(s, ' ')
		b.Ident(s[:i])
		b.WriteString(s[i:])
	case strings.ContainsAny(s, "()`\"'"):
		// Function call, raw expression or an already-quoted identifier.
		b.WriteString(s)
	case strings.ContainsRune(s, '.'):
		i := strings.IndexByte(s, '.')
		b.Ident(s[:i])
		b.WriteByte('.')
		b.Ident(s[i+1:])
	default:
		b.WriteString(b.Quote(s))
	}
	return b
}

// IdentComma calls Ident on all arguments and adds a comma between them.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.Comma()
		}
		b.Ident(s[i])
	}
	return b
}

// WriteString appends the string to the query buffer.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends the byte to the query buffer.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Pad adds a space to the query buffer.
func (b *Builder) Pad() *Builder {
	return b.WriteByte(' ')
}

// Comma adds a comma to the query buffer.
func (b *Builder) Comma() *Builder {
	return b.WriteString(", ")
}

// WriteOp writes an operator to the query buffer surrounded by spaces.
func (b *Builder) WriteOp(op string) *Builder {
	return b.Pad().WriteString(op).Pad()
}

// Arg appends an argument to the builder with the dialect placeholder.
func (b *Builder) Arg(v any) *Builder {
	if r, ok := v.(raw); ok {
		return b.WriteString(r.s)
	}
	b.total++
	b.args = append(b.args, v)
	if b.postgres() {
		b.WriteString("$" + strconv.Itoa(b.total))
	} else {
		b.WriteByte('?')
	}
	return b
}

// Args appends a list of arguments to the builder, comma separated.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.Comma()
		}
		b.Arg(v)
	}
	return b
}

// Nested applies the given function within parentheses.
func (b *Builder) Nested(f func(*Builder)) *Builder {
	b.WriteByte('(')
	f(b)
	b.WriteByte(')')
	return b
}

// AddError appends an error to the builder errors.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns a concatenated error of all errors encountered during
// the query-building, or were added manually by calling AddError.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	br := strings.Builder{}
	for i := range b.errs {
		if i > 0 {
			br.WriteString("; ")
		}
		br.WriteString(b.errs[i].Error())
	}
	return fmt.Errorf("%s", br.String())
}

// String returns the accumulated query string.
func (b *Builder) String() string {
	return b.sb.String()
}

func (b *Builder) postgres() bool {
	return b.dialect == dialect.Postgres
}

// raw is a string that is written to the query as-is, with no placeholder.
type raw struct{ s string }

// Raw returns a raw SQL element that is written as-is when used as an
// argument. For example, Raw("NULL") or Raw("CURRENT_TIMESTAMP").
func Raw(s string) any { return raw{s} }

// DialectBuilder prefixes all root builders with the dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{name}
}

// Select creates a Selector for the configured dialect.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	s := Select(columns...)
	s.dialect = d.dialect
	return s
}

// Insert creates an InsertBuilder for the configured dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	i := Insert(table)
	i.dialect = d.dialect
	return i
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	u := Update(table)
	u.dialect = d.dialect
	return u
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	dl := Delete(table)
	dl.dialect = d.dialect
	return dl
}

// Table creates a SelectTable for the configured dialect.
func (d *DialectBuilder) Table(name string) *SelectTable {
	t := Table(name)
	t.dialect = d.dialect
	return t
}

// TableView is a view that returns a table or a selectable
// element in the FROM or JOIN clauses.
type TableView interface {
	view()
}

// SelectTable is a table selection element.
type SelectTable struct {
	dialect string
	name    string
	as      string
}

// Table returns a new table selection element.
//
//	t1 := Table("users").As("u")
//	return Select(t1.C("name"))
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// As adds the AS clause to the table selection.
func (s *SelectTable) As(alias string) *SelectTable {
	s.as = alias
	return s
}

// Name returns the table name.
func (s *SelectTable) Name() string {
	return s.name
}

// Alias returns the table alias, if set.
func (s *SelectTable) Alias() string {
	return s.as
}

// C returns a formatted string for the table column.
func (s *SelectTable) C(column string) string {
	b := &Builder{dialect: s.dialect}
	b.Ident(s.ref()).WriteByte('.').Ident(column)
	return b.String()
}

// Columns returns a list of formatted strings for the table columns.
func (s *SelectTable) Columns(columns ...string) []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, s.C(c))
	}
	return names
}

// ref returns the name the table is referenced by in qualified columns.
func (s *SelectTable) ref() string {
	if s.as != "" {
		return s.as
	}
	return s.name
}

func (s *SelectTable) writeTo(b *Builder) {
	b.Ident(s.name)
	if s.as != "" {
		b.WriteString(" AS ")
		b.Ident(s.as)
	}
}

func (*SelectTable) view() {}

// join represents a join clause of a Selector.
type join struct {
	kind  string
	table TableView
	on    *Predicate
}

// union represents a union clause of a Selector.
type union struct {
	all bool
	TableView
}

// Selector is a builder for the SELECT statement.
type Selector struct {
	dialect  string
	as       string
	distinct bool
	columns  []string
	from     TableView
	joins    []join
	where    *Predicate
	group    []string
	having   *Predicate
	order    []string
	unions   []union
	limit    *int
	offset   *int
}

// Select returns a new selector with the given columns.
func Select(columns ...string) *Selector {
	return (&Selector{}).Select(columns...)
}

// Select changes the columns selection of the SELECT statement.
// Empty selection means all (`*`) columns.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = columns
	return s
}

// AppendSelect appends additional columns to the SELECT statement.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// SelectedColumns returns the selected columns of the Selector.
func (s *Selector) SelectedColumns() []string {
	return s.columns
}

// From sets the source table of the SELECT statement.
func (s *Selector) From(t TableView) *Selector {
	s.from = t
	s.mayDialect(t)
	return s
}

// Distinct adds the DISTINCT keyword to the SELECT statement.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// As gives the selection an alias, for use as a derived table.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// C returns a formatted string for a selected column from this statement's
// source table.
func (s *Selector) C(column string) string {
	if t, ok := s.from.(*SelectTable); ok {
		return t.C(column)
	}
	b := &Builder{dialect: s.dialect}
	if s.as != "" {
		b.Ident(s.as).WriteByte('.')
	}
	b.Ident(column)
	return b.String()
}

// Table returns the FROM element of the statement, if it is a table.
func (s *Selector) Table() *SelectTable {
	t, _ := s.from.(*SelectTable)
	return t
}

// Dialect returns the dialect of the selector.
func (s *Selector) Dialect() string {
	return s.dialect
}

// SetDialect sets the dialect of the selector.
func (s *Selector) SetDialect(d string) *Selector {
	s.dialect = d
	return s
}

// Join appends an INNER JOIN to the statement.
func (s *Selector) Join(t TableView) *Selector {
	return s.join("JOIN", t)
}

// LeftJoin appends a LEFT JOIN to the statement.
func (s *Selector) LeftJoin(t TableView) *Selector {
	return s.join("LEFT JOIN", t)
}

// RightJoin appends a RIGHT JOIN to the statement.
func (s *Selector) RightJoin(t TableView) *Selector {
	return s.join("RIGHT JOIN", t)
}

func (s *Selector) join(kind string, t TableView) *Selector {
	s.joins = append(s.joins, join{kind: kind, table: t})
	s.mayDialect(t)
	return s
}

// On sets the join condition of the last join to `c1 = c2`.
func (s *Selector) On(c1, c2 string) *Selector {
	return s.OnP(ColumnsEQ(c1, c2))
}

// OnP sets or appends the given predicate to the join condition of
// the last join.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) > 0 {
		j := &s.joins[len(s.joins)-1]
		if j.on == nil {
			j.on = p
		} else {
			j.on = And(j.on, p)
		}
	}
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// P returns the predicate of the statement.
func (s *Selector) P() *Predicate {
	return s.where
}

// GroupBy appends the given columns to the GROUP BY clause.
func (s *Selector) GroupBy(columns ...string) *Selector {
	s.group = append(s.group, columns...)
	return s
}

// Having sets or appends the given predicate to the HAVING clause.
func (s *Selector) Having(p *Predicate) *Selector {
	if s.having == nil {
		s.having = p
	} else {
		s.having = And(s.having, p)
	}
	return s
}

// OrderBy appends the given columns to the ORDER BY clause.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// ClearOrder clears the ORDER BY clause.
func (s *Selector) ClearOrder() *Selector {
	s.order = nil
	return s
}

// Union appends the UNION clause to the statement.
func (s *Selector) Union(t TableView) *Selector {
	s.unions = append(s.unions, union{TableView: t})
	s.mayDialect(t)
	return s
}

// UnionAll appends the UNION ALL clause to the statement.
func (s *Selector) UnionAll(t TableView) *Selector {
	s.unions = append(s.unions, union{all: true, TableView: t})
	s.mayDialect(t)
	return s
}

// Limit adds the LIMIT clause to the statement.
func (s *Selector) Limit(limit int) *Selector {
	s.limit = &limit
	return s
}

// Offset adds the OFFSET clause to the statement.
func (s *Selector) Offset(offset int) *Selector {
	s.offset = &offset
	return s
}

// Clone returns a duplicate of the selector, including all associated steps.
func (s *Selector) Clone() *Selector {
	if s == nil {
		return nil
	}
	c := *s
	c.columns = append([]string(nil), s.columns...)
	c.joins = append([]join(nil), s.joins...)
	c.group = append([]string(nil), s.group...)
	c.order = append([]string(nil), s.order...)
	c.unions = append([]union(nil), s.unions...)
	c.where = s.where.clone()
	c.having = s.having.clone()
	return &c
}

func (s *Selector) mayDialect(t TableView) {
	switch t := t.(type) {
	case *SelectTable:
		if t.dialect == "" {
			t.dialect = s.dialect
		}
	case *Selector:
		if t.dialect == "" {
			t.dialect = s.dialect
		}
	}
}

// Query returns query representation of the SELECT statement.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	s.query(b)
	return b.String(), b.args
}

// query renders the statement into the given builder, so that nested
// selectors share argument numbering with their parent.
func (s *Selector) query(b *Builder) {
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) > 0 {
		b.IdentComma(s.columns...)
	} else {
		b.WriteString("*")
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		s.writeView(b, s.from)
	}
	for _, j := range s.joins {
		b.Pad().WriteString(j.kind).Pad()
		s.writeView(b, j.table)
		if j.on != nil {
			b.WriteString(" ON ")
			j.on.build(b)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.build(b)
	}
	if len(s.group) > 0 {
		b.WriteString(" GROUP BY ")
		b.IdentComma(s.group...)
	}
	if s.having != nil {
		b.WriteString(" HAVING ")
		s.having.build(b)
	}
	for _, u := range s.unions {
		b.WriteString(" UNION ")
		if u.all {
			b.WriteString("ALL ")
		}
		switch view := u.TableView.(type) {
		case *Selector:
			view.query(b)
		case *SelectTable:
			b.WriteString("SELECT * FROM ")
			view.writeTo(b)
		}
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		b.IdentComma(s.order...)
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*s.limit))
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*s.offset))
	}
}

func (s *Selector) writeView(b *Builder, t TableView) {
	switch view := t.(type) {
	case *SelectTable:
		view.writeTo(b)
	case *Selector:
		b.Nested(func(b *Builder) {
			view.query(b)
		})
		if view.as != "" {
			b.WriteString(" AS ")
			b.Ident(view.as)
		}
	}
}

func (*Selector) view() {}

// Asc adds the ASC suffix to the given column.
func Asc(column string) string {
	return column + " ASC"
}

// Desc adds the DESC suffix to the given column.
func Desc(column string) string {
	return column + " DESC"
}

// Count wraps the column with the COUNT aggregation function.
func Count(column string) string {
	return "COUNT(" + column + ")"
}

// Max wraps the column with the MAX aggregation function.
func Max(column string) string {
	return "MAX(" + column + ")"
}

// Min wraps the column with the MIN aggregation function.
func Min(column string) string {
	return "MIN(" + column + ")"
}

// As suffixes the given expression with an alias.
func As(expr, alias string) string {
	return expr + " AS " + alias
}

// InsertBuilder is a builder for the INSERT statement.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    [][]any
	defaults  bool
	returning []string
}

// Insert creates a builder for the INSERT statement.
//
//	Insert("users").Columns("name", "age").Values("a8m", 10)
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Columns sets the columns of the insert statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values appends a value tuple to the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Default sets the default values clause of the insert statement.
func (i *InsertBuilder) Default() *InsertBuilder {
	i.defaults = true
	return i
}

// Returning adds the RETURNING clause to the insert statement.
// Supported by SQLite and PostgreSQL.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Query returns query representation of the INSERT statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ")
	b.Ident(i.table)
	if i.defaults && len(i.columns) == 0 {
		i.writeDefault(b)
	} else {
		b.WriteString(" (")
		b.IdentComma(i.columns...)
		b.WriteString(") VALUES ")
		for j, v := range i.values {
			if j > 0 {
				b.Comma()
			}
			b.Nested(func(b *Builder) {
				b.Args(v...)
			})
		}
	}
	if len(i.returning) > 0 && i.dialect != dialect.MySQL {
		b.WriteString(" RETURNING ")
		b.IdentComma(i.returning...)
	}
	return b.String(), b.args
}

func (i *InsertBuilder) writeDefault(b *Builder) {
	switch i.dialect {
	case dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
}

// UpdateBuilder is a builder for the UPDATE statement.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Update creates a builder for the UPDATE statement.
//
//	Update("users").Set("name", "foo").Where(EQ("id", 1))
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set sets a column to the given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// SetNull sets a column to NULL.
func (u *UpdateBuilder) SetNull(column string) *UpdateBuilder {
	return u.Set(column, Raw("NULL"))
}

// Add increments a numeric column by the given value.
func (u *UpdateBuilder) Add(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, addValue{column: column, v: v})
	return u
}

type addValue struct {
	column string
	v      any
}

// Where sets or appends the given predicate to the statement.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if u.where == nil {
		u.where = p
	} else {
		u.where = And(u.where, p)
	}
	return u
}

// Empty reports whether the builder has no assignments.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0
}

// Query returns query representation of the UPDATE statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ")
	b.Ident(u.table)
	b.WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.Comma()
		}
		b.Ident(c)
		b.WriteString(" = ")
		switch v := u.values[i].(type) {
		case addValue:
			b.Ident(v.column).WriteOp("+").Arg(v.v)
		default:
			b.Arg(v)
		}
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.build(b)
	}
	return b.String(), b.args
}

// DeleteBuilder is a builder for the DELETE statement.
type DeleteBuilder struct {
	dialect string
	table   string
	where   *Predicate
}

// Delete creates a builder for the DELETE statement.
//
//	Delete("users").Where(EQ("name", "foo"))
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Where sets or appends the given predicate to the statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if d.where == nil {
		d.where = p
	} else {
		d.where = And(d.where, p)
	}
	return d
}

// Query returns query representation of the DELETE statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ")
	b.Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.build(b)
	}
	return b.String(), b.args
}

// Predicate is a where predicate.
type Predicate struct {
	depth int
	fns   []func(*Builder)
}

// P creates a new predicate from the given builder functions. Most callers
// use the package-level helpers instead: EQ("name", "a8m"), Or(...), etc.
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// Append appends a new function to the predicate and returns it.
func (p *Predicate) Append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

func (p *Predicate) clone() *Predicate {
	if p == nil {
		return nil
	}
	return &Predicate{fns: append([]func(*Builder){}, p.fns...)}
}

// build runs all predicate functions on the given builder.
func (p *Predicate) build(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// Build renders the predicate into the given builder. It is exposed for
// packages composing raw statements on top of Builder.
func (p *Predicate) Build(b *Builder) {
	p.build(b)
}

// Query returns query representation of the predicate.
func (p *Predicate) Query() (string, []any) {
	b := &Builder{}
	p.build(b)
	return b.String(), b.args
}

// And combines all given predicates with AND between them.
func And(preds ...*Predicate) *Predicate {
	p := P()
	return p.Append(func(b *Builder) {
		p.mayWrap(preds, b, "AND")
	})
}

// Or combines all given predicates with OR between them.
func Or(preds ...*Predicate) *Predicate {
	p := P()
	return p.Append(func(b *Builder) {
		p.mayWrap(preds, b, "OR")
	})
}

// Not wraps the given predicate with the NOT operator.
func Not(pred *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT ")
		b.Nested(func(b *Builder) {
			pred.build(b)
		})
	})
}

func (p *Predicate) mayWrap(preds []*Predicate, b *Builder, op string) {
	switch n := len(preds); {
	case n == 1:
		preds[0].build(b)
		return
	case n > 1 && p.depth != 0:
		b.WriteByte('(')
		defer b.WriteByte(')')
	}
	for i := range preds {
		preds[i].depth = p.depth + 1
		if i > 0 {
			b.Pad().WriteString(op).Pad()
		}
		if len(preds[i].fns) > 1 {
			b.Nested(func(b *Builder) {
				preds[i].build(b)
			})
		} else {
			preds[i].build(b)
		}
	}
}

// EQ returns a `=` predicate.
func EQ(col string, value any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp("=").Arg(value)
	})
}

// NEQ returns a `<>` predicate.
func NEQ(col string, value any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp("<>").Arg(value)
	})
}

// GT returns a `>` predicate.
func GT(col string, value any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp(">").Arg(value)
	})
}

// GTE returns a `>=` predicate.
func GTE(col string, value any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp(">=").Arg(value)
	})
}

// LT returns a `<` predicate.
func LT(col string, value any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp("<").Arg(value)
	})
}

// LTE returns a `<=` predicate.
func LTE(col string, value any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp("<=").Arg(value)
	})
}

// ColumnsEQ returns a `=` predicate between two columns.
func ColumnsEQ(col1, col2 string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col1).WriteOp("=").Ident(col2)
	})
}

// ColumnsNEQ returns a `<>` predicate between two columns.
func ColumnsNEQ(col1, col2 string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col1).WriteOp("<>").Ident(col2)
	})
}

// In returns an `IN` predicate. An empty value list renders as FALSE.
func In(col string, values ...any) *Predicate {
	return P(func(b *Builder) {
		if len(values) == 0 {
			b.WriteString("FALSE")
			return
		}
		b.Ident(col).WriteOp("IN")
		b.Nested(func(b *Builder) {
			b.Args(values...)
		})
	})
}

// NotIn returns a `NOT IN` predicate. An empty value list renders as TRUE.
func NotIn(col string, values ...any) *Predicate {
	return P(func(b *Builder) {
		if len(values) == 0 {
			b.WriteString("TRUE")
			return
		}
		b.Ident(col).WriteOp("NOT IN")
		b.Nested(func(b *Builder) {
			b.Args(values...)
		})
	})
}

// InSelect returns an `IN` predicate over a sub-select.
func InSelect(col string, s *Selector) *Predicate {
	return P(func(b *Builder) {
		if s.dialect == "" {
			s.dialect = b.dialect
		}
		b.Ident(col).WriteOp("IN")
		b.Nested(func(b *Builder) {
			s.query(b)
		})
	})
}

// EQSelect returns a `=` predicate against a scalar sub-select.
func EQSelect(col string, s *Selector) *Predicate {
	return P(func(b *Builder) {
		if s.dialect == "" {
			s.dialect = b.dialect
		}
		b.Ident(col).WriteOp("=")
		b.Nested(func(b *Builder) {
			s.query(b)
		})
	})
}

// Exists returns an `EXISTS` predicate over a sub-select.
func Exists(s *Selector) *Predicate {
	return P(func(b *Builder) {
		if s.dialect == "" {
			s.dialect = b.dialect
		}
		b.WriteString("EXISTS ")
		b.Nested(func(b *Builder) {
			s.query(b)
		})
	})
}

// NotExists returns a `NOT EXISTS` predicate over a sub-select.
func NotExists(s *Selector) *Predicate {
	return P(func(b *Builder) {
		if s.dialect == "" {
			s.dialect = b.dialect
		}
		b.WriteString("NOT EXISTS ")
		b.Nested(func(b *Builder) {
			s.query(b)
		})
	})
}

// IsNull returns an `IS NULL` predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns an `IS NOT NULL` predicate.
func NotNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// Like returns a `LIKE` predicate.
func Like(col, pattern string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteOp("LIKE").Arg(pattern)
	})
}

// Contains is a helper predicate that checks substring containment
// using the LIKE predicate.
func Contains(col, sub string) *Predicate {
	return Like(col, "%"+sub+"%")
}

// HasPrefix is a helper predicate that checks prefix using the LIKE predicate.
func HasPrefix(col, prefix string) *Predicate {
	return Like(col, prefix+"%")
}

// HasSuffix is a helper predicate that checks suffix using the LIKE predicate.
func HasSuffix(col, suffix string) *Predicate {
	return Like(col, "%"+suffix)
}

// ExprP returns a predicate from a raw SQL expression and arguments.
// Placeholders in the expression must be written as `?`.
func ExprP(expr string, args ...any) *Predicate {
	return P(func(b *Builder) {
		for i, ch := range expr {
			if ch != '?' {
				b.WriteByte(byte(expr[i]))
				continue
			}
			if len(args) == 0 {
				b.AddError(fmt.Errorf("missing argument for placeholder %d in %q", i, expr))
				return
			}
			b.Arg(args[0])
			args = args[1:]
		}
	})
}
