package sqlgraph

import (
	"fmt"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// Expr is a typed expression handle bound to one statement context. It is
// either a column reference (table and mapping set), a literal, a named
// parameter, an unbound query variable, or a scalar subquery. Composing
// expressions produces predicates without mutating the statement; the
// caller attaches results via WhereAnd or Select.
type Expr struct {
	stmt    *SelectStatement
	table   *StatementTable
	mapping *TypeMapping
	kind    ValueKind

	// member is set for map and collection expressions, carrying the
	// relationship metadata the method resolvers dispatch on.
	member *schema.Member

	literal bool
	value   any

	param   bool
	name    string
	unbound bool

	sub *SelectStatement
}

// Kind returns the value kind of the expression.
func (e *Expr) Kind() ValueKind { return e.kind }

// IsLiteral reports whether the expression is a compile-time literal.
func (e *Expr) IsLiteral() bool { return e.literal }

// Value returns the literal value. Only meaningful for literals.
func (e *Expr) Value() any { return e.value }

// IsUnbound reports whether the expression is a query variable with no
// value resolved yet.
func (e *Expr) IsUnbound() bool { return e.unbound }

// Member returns the relationship metadata of a map or collection
// expression, or nil.
func (e *Expr) Member() *schema.Member { return e.member }

// Table returns the statement table the expression is bound to, or nil.
func (e *Expr) Table() *StatementTable { return e.table }

// Mapping returns the mapping the expression is bound to, or nil.
func (e *Expr) Mapping() *TypeMapping { return e.mapping }

// C returns the qualified column of a single-column expression.
func (e *Expr) C() (string, error) {
	cols, err := e.columns()
	if err != nil {
		return "", err
	}
	if len(cols) != 1 {
		return "", quarry.NewUsageError("expression.column", e.mapping.Member,
			fmt.Sprintf("expression spans %d columns", len(cols)))
	}
	return cols[0], nil
}

func (e *Expr) columns() ([]string, error) {
	if e.table == nil || e.mapping == nil {
		return nil, quarry.NewUsageError("expression.column", "", "expression is not a column reference")
	}
	return e.table.Cs(e.mapping), nil
}

// ExprFactory creates expressions bound to a statement, a table handle and
// a mapping. The mapping's value kind determines the expression type;
// map and collection members additionally resolve their relationship
// metadata from the schema definitions.
type ExprFactory struct {
	reg  *Registry
	defs *schema.Definitions
}

// NewExprFactory returns a factory over the given registry and schema.
func NewExprFactory(reg *Registry, defs *schema.Definitions) *ExprFactory {
	return &ExprFactory{reg: reg, defs: defs}
}

// Registry returns the table registry the factory resolves against.
func (f *ExprFactory) Registry() *Registry { return f.reg }

// New returns a column expression for the mapping on the given table.
// ownerType names the entity type declaring the member; it is required to
// resolve relationship metadata for map and collection mappings.
func (f *ExprFactory) New(stmt *SelectStatement, t *StatementTable, m *TypeMapping, ownerType string) (*Expr, error) {
	e := &Expr{stmt: stmt, table: t, mapping: m, kind: m.Kind}
	if m.Kind == ValueMap || m.Kind == ValueCollection {
		member, ok := f.defs.Member(ownerType, m.Member)
		if !ok {
			return nil, quarry.NewUsageError("expression.new", ownerType+"."+m.Member,
				"no relationship metadata registered for member")
		}
		e.member = member
	}
	return e, nil
}

// NewLiteral returns a literal expression. A nil mapping is allowed; the
// kind is then ValueObject.
func (f *ExprFactory) NewLiteral(stmt *SelectStatement, m *TypeMapping, value any) *Expr {
	kind := ValueObject
	if m != nil {
		kind = m.Kind
	}
	return &Expr{stmt: stmt, mapping: m, kind: kind, literal: true, value: value}
}

// NewMapLiteral returns a literal map expression. Method resolvers fold
// get calls on it without generating SQL.
func (f *ExprFactory) NewMapLiteral(stmt *SelectStatement, value map[any]any) *Expr {
	return &Expr{stmt: stmt, kind: ValueMap, literal: true, value: value}
}

// NewParameter returns a named parameter expression. The value is deferred:
// the rendered statement carries a Param placeholder bound at execution.
func (f *ExprFactory) NewParameter(stmt *SelectStatement, m *TypeMapping, name string) *Expr {
	kind := ValueObject
	if m != nil {
		kind = m.Kind
	}
	return &Expr{stmt: stmt, mapping: m, kind: kind, param: true, name: name}
}

// NewVariable returns an unbound query-variable expression. Method
// resolvers reject it as not yet supported.
func (f *ExprFactory) NewVariable(stmt *SelectStatement, name string) *Expr {
	return &Expr{stmt: stmt, kind: ValueObject, param: true, name: name, unbound: true}
}

// NewSubquery wraps an inner statement as a scalar subquery expression in
// the outer statement's context.
func (f *ExprFactory) NewSubquery(outer *SelectStatement, inner *SelectStatement, kind ValueKind) *Expr {
	return &Expr{stmt: outer, kind: kind, sub: inner}
}

// Eq returns the `=` predicate between the two expressions.
func (e *Expr) Eq(other *Expr) (*sql.Predicate, error) { return e.cmp("=", other) }

// Ne returns the `<>` predicate between the two expressions.
func (e *Expr) Ne(other *Expr) (*sql.Predicate, error) { return e.cmp("<>", other) }

// Gt returns the `>` predicate between the two expressions.
func (e *Expr) Gt(other *Expr) (*sql.Predicate, error) { return e.cmp(">", other) }

// Ge returns the `>=` predicate between the two expressions.
func (e *Expr) Ge(other *Expr) (*sql.Predicate, error) { return e.cmp(">=", other) }

// Lt returns the `<` predicate between the two expressions.
func (e *Expr) Lt(other *Expr) (*sql.Predicate, error) { return e.cmp("<", other) }

// Le returns the `<=` predicate between the two expressions.
func (e *Expr) Le(other *Expr) (*sql.Predicate, error) { return e.cmp("<=", other) }

func (e *Expr) cmp(op string, other *Expr) (*sql.Predicate, error) {
	if e.kind == ValueMap || e.kind == ValueCollection {
		return nil, quarry.NewUsageError("expression.compare", memberName(e),
			"map and collection expressions compare through their method resolvers")
	}
	if other.kind == ValueMap || other.kind == ValueCollection {
		return nil, quarry.NewUsageError("expression.compare", memberName(other),
			"map and collection expressions compare through their method resolvers")
	}
	if e.unbound || other.unbound {
		return nil, quarry.NewNotYetSupportedError("expression.compare", "unbound query variable")
	}
	left, err := e.operands()
	if err != nil {
		return nil, err
	}
	right, err := other.operands()
	if err != nil {
		return nil, err
	}
	if len(left) != len(right) {
		return nil, quarry.NewUsageError("expression.compare", memberName(e),
			fmt.Sprintf("operands span %d and %d columns", len(left), len(right)))
	}
	preds := make([]*sql.Predicate, len(left))
	for i := range left {
		preds[i] = cmpOperands(op, left[i], right[i])
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return sql.And(preds...), nil
}

// operand is one side of a column-wise comparison: a qualified column, a
// bound argument, or a subquery.
type operand struct {
	column string
	arg    any
	isArg  bool
	sub    *SelectStatement
}

func (e *Expr) operands() ([]operand, error) {
	switch {
	case e.sub != nil:
		return []operand{{sub: e.sub}}, nil
	case e.literal:
		if e.mapping != nil {
			args, err := e.mapping.Values(e.value)
			if err != nil {
				return nil, err
			}
			ops := make([]operand, len(args))
			for i, a := range args {
				ops[i] = operand{arg: a, isArg: true}
			}
			return ops, nil
		}
		return []operand{{arg: e.value, isArg: true}}, nil
	case e.param:
		return []operand{{arg: Param{Name: e.name}, isArg: true}}, nil
	default:
		cols, err := e.columns()
		if err != nil {
			return nil, err
		}
		ops := make([]operand, len(cols))
		for i, c := range cols {
			ops[i] = operand{column: c}
		}
		return ops, nil
	}
}

func cmpOperands(op string, left, right operand) *sql.Predicate {
	return sql.P(func(b *sql.Builder) {
		writeOperand(b, left)
		b.WriteOp(op)
		writeOperand(b, right)
	})
}

func writeOperand(b *sql.Builder, o operand) {
	switch {
	case o.sub != nil:
		b.Nested(func(b *sql.Builder) {
			o.sub.render(b)
		})
	case o.isArg:
		b.Arg(o.arg)
	default:
		b.Ident(o.column)
	}
}

func memberName(e *Expr) string {
	if e.member != nil {
		return e.member.QualifiedName()
	}
	if e.mapping != nil {
		return e.mapping.Member
	}
	return ""
}
