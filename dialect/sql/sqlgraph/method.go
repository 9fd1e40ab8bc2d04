package sqlgraph

import (
	"fmt"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// Component names the statement clause a resolved expression lands in.
// Filter and ordering clauses can express map access as a join; result and
// having clauses need a correlated subquery so the outer row count is not
// multiplied.
type Component int

const (
	ComponentFilter Component = iota
	ComponentOrdering
	ComponentResult
	ComponentHaving
)

// String returns the component name.
func (c Component) String() string {
	switch c {
	case ComponentFilter:
		return "filter"
	case ComponentOrdering:
		return "ordering"
	case ComponentResult:
		return "result"
	case ComponentHaving:
		return "having"
	default:
		return fmt.Sprintf("Component(%d)", int(c))
	}
}

func (c Component) joinable() bool {
	return c == ComponentFilter || c == ComponentOrdering
}

type keyResolver func(f *ExprFactory, e *Expr, c Component) (*Expr, error)
type getResolver func(f *ExprFactory, e *Expr, key *Expr, c Component) (*Expr, error)

// The strategy enum is closed; a strategy with no entry resolves to a
// permanent unsupported error.
var keyResolvers = map[schema.StorageStrategy]keyResolver{
	schema.JoinTable:  resolveKeyJoinTable,
	schema.KeyInValue: resolveKeyInValue,
	schema.ValueInKey: resolveValueInKey,
}

var getResolvers = map[schema.StorageStrategy]getResolver{
	schema.JoinTable:  resolveGetJoinTable,
	schema.KeyInValue: resolveGetKeyInValue,
	schema.ValueInKey: resolveGetValueInKey,
}

// ResolveKey resolves the KEY(map) invocation on a map expression: the
// expression ranging over the map's keys. Filter and ordering components
// resolve to joined columns; result and having components resolve to a
// correlated subquery.
func (f *ExprFactory) ResolveKey(e *Expr, c Component) (*Expr, error) {
	if e.kind != ValueMap || e.member == nil {
		return nil, quarry.NewUsageError("method.key", memberName(e), "KEY applies to map members only")
	}
	r, ok := keyResolvers[e.member.Strategy]
	if !ok {
		return nil, quarry.NewUnsupportedError("method.key",
			fmt.Sprintf("KEY over %s-mapped member %s", e.member.Strategy, e.member.QualifiedName()))
	}
	return r(f, e, c)
}

// ResolveGet resolves the map.get(key) invocation on a map expression.
// The arity is enforced before any SQL is generated. A literal map folds
// literal keys to their value without touching the statement; an unbound
// query variable key is not yet supported.
func (f *ExprFactory) ResolveGet(e *Expr, args []*Expr, c Component) (*Expr, error) {
	if len(args) != 1 {
		return nil, quarry.NewArityError("get", memberName(e), 1, len(args))
	}
	if e.kind != ValueMap {
		return nil, quarry.NewUsageError("method.get", memberName(e), "get applies to map expressions only")
	}
	key := args[0]
	if e.literal {
		return foldLiteralGet(f, e, key)
	}
	if e.member == nil {
		return nil, quarry.NewUsageError("method.get", memberName(e), "map expression carries no relationship metadata")
	}
	if key.IsUnbound() {
		return nil, quarry.NewNotYetSupportedError("method.get", "unbound query variable as map key")
	}
	r, ok := getResolvers[e.member.Strategy]
	if !ok {
		return nil, quarry.NewUnsupportedError("method.get",
			fmt.Sprintf("get over %s-mapped member %s", e.member.Strategy, e.member.QualifiedName()))
	}
	return r(f, e, key, c)
}

// foldLiteralGet evaluates get on a literal map. A literal key folds to the
// mapped value, or a null literal when absent. A non-literal key against a
// literal map has no SQL form.
func foldLiteralGet(f *ExprFactory, e *Expr, key *Expr) (*Expr, error) {
	if !key.IsLiteral() {
		return nil, quarry.NewUnsupportedError("method.get", "expression key on a literal map")
	}
	m, ok := e.value.(map[any]any)
	if !ok {
		return nil, quarry.NewUsageError("method.get", "", fmt.Sprintf("literal map has type %T", e.value))
	}
	v, ok := m[key.value]
	if !ok {
		return f.NewLiteral(e.stmt, nil, nil), nil
	}
	return f.NewLiteral(e.stmt, nil, v), nil
}

// ownerClass returns the class table of the member's owning type.
func (f *ExprFactory) ownerClass(m *schema.Member) (*ClassTable, error) {
	ct, ok := f.reg.Class(m.Owner)
	if !ok {
		return nil, quarry.NewUsageError("method.resolve", m.QualifiedName(),
			fmt.Sprintf("no class table registered for owner type %s", m.Owner))
	}
	return ct, nil
}

// keyClassOf returns the key type's class table when the map key is itself
// a persistable type, or nil for inline keys.
func (f *ExprFactory) keyClassOf(m *schema.Member) *ClassTable {
	if m.Key == "" {
		return nil
	}
	ct, ok := f.reg.Class(m.Key)
	if !ok {
		return nil
	}
	return ct
}

// valueClassOf returns the value type's class table when the map value is
// a persistable type, or nil for inline values.
func (f *ExprFactory) valueClassOf(m *schema.Member) *ClassTable {
	if m.Element == "" {
		return nil
	}
	ct, ok := f.reg.Class(m.Element)
	if !ok {
		return nil
	}
	return ct
}

// joinMember attaches the member's backing table to the statement, joined
// from the owner handle on the owner identity.
func joinMember(f *ExprFactory, e *Expr, target *Table, ownerColumn string) (*StatementTable, error) {
	owner, err := f.ownerClass(e.member)
	if err != nil {
		return nil, err
	}
	ownerRef := NewTypeMapping(e.member.Name, ValueObject, ownerColumn)
	return e.stmt.Join(InnerJoin, e.table, owner.ID, target, DeriveAlias(e.table, e.member.Name), ownerRef, nil)
}

// subqueryOver builds the correlated inner statement for result and having
// components: the member's backing table restricted to the outer owner row.
func subqueryOver(f *ExprFactory, e *Expr, target *Table, ownerColumn string) (*SelectStatement, *StatementTable, error) {
	owner, err := f.ownerClass(e.member)
	if err != nil {
		return nil, nil, err
	}
	inner := NewSelectStatement(e.stmt.dialect, target, "SUB_"+DeriveAlias(e.table, e.member.Name))
	h := inner.Primary()
	ownerCols := e.table.Cs(owner.ID)
	preds := make([]*sql.Predicate, len(ownerCols))
	for i, oc := range ownerCols {
		preds[i] = sql.ColumnsEQ(h.C(ownerColumn), oc)
	}
	cond := preds[0]
	if len(preds) > 1 {
		cond = sql.And(preds...)
	}
	if err := inner.WhereAnd(cond, true); err != nil {
		return nil, nil, err
	}
	return inner, h, nil
}

// keyCondition builds the key-equality predicate of a get call against the
// given table handle. Literal keys bind converted arguments; parameter keys
// bind named placeholders.
func keyCondition(h *StatementTable, keyMapping *TypeMapping, key *Expr) (*sql.Predicate, error) {
	cols := h.Cs(keyMapping)
	switch {
	case key.IsLiteral():
		args, err := keyMapping.Values(key.value)
		if err != nil {
			return nil, err
		}
		preds := make([]*sql.Predicate, len(cols))
		for i := range cols {
			preds[i] = sql.EQ(cols[i], args[i])
		}
		if len(preds) == 1 {
			return preds[0], nil
		}
		return sql.And(preds...), nil
	case key.param:
		if len(cols) != 1 {
			return nil, quarry.NewUsageError("method.get", keyMapping.Member, "parameter key on a composite mapping")
		}
		return sql.EQ(cols[0], Param{Name: key.name}), nil
	default:
		c, err := key.C()
		if err != nil {
			return nil, err
		}
		if len(cols) != 1 {
			return nil, quarry.NewUsageError("method.get", keyMapping.Member, "column key on a composite mapping")
		}
		return sql.ColumnsEQ(cols[0], c), nil
	}
}

// resolveKeyJoinTable resolves KEY for join-table maps: join the owner to
// the join table and project its key column, joining onward to the key
// class table when the key type is persistable.
func resolveKeyJoinTable(f *ExprFactory, e *Expr, c Component) (*Expr, error) {
	jt, ok := f.reg.Join(e.member)
	if !ok {
		return nil, quarry.NewUsageError("method.key", e.member.QualifiedName(), "no join table registered")
	}
	keyMapping, err := jt.MustMapping(RoleKey)
	if err != nil {
		return nil, err
	}
	if !c.joinable() {
		inner, h, err := subqueryOver(f, e, jt.Table, e.member.OwnerColumn)
		if err != nil {
			return nil, err
		}
		if err := inner.Select(h, keyMapping, ""); err != nil {
			return nil, err
		}
		return f.NewSubquery(e.stmt, inner, keyMapping.Kind), nil
	}
	h, err := joinMember(f, e, jt.Table, e.member.OwnerColumn)
	if err != nil {
		return nil, err
	}
	if kc := f.keyClassOf(e.member); kc != nil {
		keyRef := NewTypeMapping("key", ValueObject, e.member.KeyColumn)
		kh, err := e.stmt.Join(InnerJoin, h, keyRef, kc.Table, h.Alias+"_KEY", kc.ID, nil)
		if err != nil {
			return nil, err
		}
		return f.New(e.stmt, kh, kc.ID, kc.Type)
	}
	return f.New(e.stmt, h, keyMapping, e.member.Owner)
}

// resolveKeyInValue resolves KEY for maps whose key is a field of the value
// entity: join the owner to the value table and project the key field.
func resolveKeyInValue(f *ExprFactory, e *Expr, c Component) (*Expr, error) {
	vc := f.valueClassOf(e.member)
	if vc == nil {
		return nil, quarry.NewUsageError("method.key", e.member.QualifiedName(),
			fmt.Sprintf("no class table registered for value type %s", e.member.Element))
	}
	keyField := NewTypeMapping("key", ValueObject, e.member.KeyColumn)
	if !c.joinable() {
		inner, h, err := subqueryOver(f, e, vc.Table, e.member.OwnerColumn)
		if err != nil {
			return nil, err
		}
		if err := inner.Select(h, keyField, ""); err != nil {
			return nil, err
		}
		return f.NewSubquery(e.stmt, inner, keyField.Kind), nil
	}
	h, err := joinMember(f, e, vc.Table, e.member.OwnerColumn)
	if err != nil {
		return nil, err
	}
	return f.New(e.stmt, h, keyField, vc.Type)
}

// resolveValueInKey resolves KEY for maps whose value is a field of the key
// entity: join the owner to the key table and project the key identity.
func resolveValueInKey(f *ExprFactory, e *Expr, c Component) (*Expr, error) {
	kc := f.keyClassOf(e.member)
	if kc == nil {
		return nil, quarry.NewUsageError("method.key", e.member.QualifiedName(),
			fmt.Sprintf("no class table registered for key type %s", e.member.Key))
	}
	if !c.joinable() {
		inner, h, err := subqueryOver(f, e, kc.Table, e.member.OwnerColumn)
		if err != nil {
			return nil, err
		}
		if err := inner.Select(h, kc.ID, ""); err != nil {
			return nil, err
		}
		return f.NewSubquery(e.stmt, inner, kc.ID.Kind), nil
	}
	h, err := joinMember(f, e, kc.Table, e.member.OwnerColumn)
	if err != nil {
		return nil, err
	}
	return f.New(e.stmt, h, kc.ID, kc.Type)
}

// resolveGetJoinTable resolves get for join-table maps. Filter and ordering
// components join the owner to the join table, conjoin the key equality into
// the WHERE clause and project the value, joining onward to the value class
// table for persistable values. Result and having components build a
// correlated scalar subquery instead.
//
// The key equality must not live in the join condition: the join is keyed by
// alias and reused across resolutions of the same member, so a condition
// attached there would survive only for the first key.
func resolveGetJoinTable(f *ExprFactory, e *Expr, key *Expr, c Component) (*Expr, error) {
	jt, ok := f.reg.Join(e.member)
	if !ok {
		return nil, quarry.NewUsageError("method.get", e.member.QualifiedName(), "no join table registered")
	}
	keyMapping, err := jt.MustMapping(RoleKey)
	if err != nil {
		return nil, err
	}
	valueMapping, err := jt.MustMapping(RoleValue)
	if err != nil {
		return nil, err
	}
	if !c.joinable() {
		inner, h, err := subqueryOver(f, e, jt.Table, e.member.OwnerColumn)
		if err != nil {
			return nil, err
		}
		keyCond, err := keyCondition(h, keyMapping, key)
		if err != nil {
			return nil, err
		}
		if err := inner.WhereAnd(keyCond, false); err != nil {
			return nil, err
		}
		if err := inner.Select(h, valueMapping, ""); err != nil {
			return nil, err
		}
		return f.NewSubquery(e.stmt, inner, valueMapping.Kind), nil
	}
	h, err := joinMember(f, e, jt.Table, e.member.OwnerColumn)
	if err != nil {
		return nil, err
	}
	keyCond, err := keyCondition(h, keyMapping, key)
	if err != nil {
		return nil, err
	}
	if err := e.stmt.WhereAnd(keyCond, false); err != nil {
		return nil, err
	}
	if vc := f.valueClassOf(e.member); vc != nil {
		valueRef := NewTypeMapping("value", ValueObject, e.member.ValueColumn)
		vh, err := e.stmt.Join(InnerJoin, h, valueRef, vc.Table, h.Alias+"_VALUE", vc.ID, nil)
		if err != nil {
			return nil, err
		}
		return f.New(e.stmt, vh, vc.ID, vc.Type)
	}
	return f.New(e.stmt, h, valueMapping, e.member.Owner)
}

// resolveGetKeyInValue resolves get for key-in-value maps: join the owner
// to the value table, conjoin the key-field equality into the WHERE clause
// and project the value entity.
func resolveGetKeyInValue(f *ExprFactory, e *Expr, key *Expr, c Component) (*Expr, error) {
	vc := f.valueClassOf(e.member)
	if vc == nil {
		return nil, quarry.NewUsageError("method.get", e.member.QualifiedName(),
			fmt.Sprintf("no class table registered for value type %s", e.member.Element))
	}
	keyField := NewTypeMapping("key", ValueObject, e.member.KeyColumn)
	if !c.joinable() {
		inner, h, err := subqueryOver(f, e, vc.Table, e.member.OwnerColumn)
		if err != nil {
			return nil, err
		}
		keyCond, err := keyCondition(h, keyField, key)
		if err != nil {
			return nil, err
		}
		if err := inner.WhereAnd(keyCond, false); err != nil {
			return nil, err
		}
		if err := inner.Select(h, vc.ID, ""); err != nil {
			return nil, err
		}
		return f.NewSubquery(e.stmt, inner, vc.ID.Kind), nil
	}
	h, err := joinMember(f, e, vc.Table, e.member.OwnerColumn)
	if err != nil {
		return nil, err
	}
	keyCond, err := keyCondition(h, keyField, key)
	if err != nil {
		return nil, err
	}
	if err := e.stmt.WhereAnd(keyCond, false); err != nil {
		return nil, err
	}
	return f.New(e.stmt, h, vc.ID, vc.Type)
}

// resolveGetValueInKey resolves get for value-in-key maps: join the owner
// to the key table, conjoin the key-identity equality into the WHERE clause
// and project the value field stored there.
func resolveGetValueInKey(f *ExprFactory, e *Expr, key *Expr, c Component) (*Expr, error) {
	kc := f.keyClassOf(e.member)
	if kc == nil {
		return nil, quarry.NewUsageError("method.get", e.member.QualifiedName(),
			fmt.Sprintf("no class table registered for key type %s", e.member.Key))
	}
	valueField := NewTypeMapping("value", ValueObject, e.member.ValueColumn)
	if !c.joinable() {
		inner, h, err := subqueryOver(f, e, kc.Table, e.member.OwnerColumn)
		if err != nil {
			return nil, err
		}
		keyCond, err := keyCondition(h, kc.ID, key)
		if err != nil {
			return nil, err
		}
		if err := inner.WhereAnd(keyCond, false); err != nil {
			return nil, err
		}
		if err := inner.Select(h, valueField, ""); err != nil {
			return nil, err
		}
		return f.NewSubquery(e.stmt, inner, valueField.Kind), nil
	}
	h, err := joinMember(f, e, kc.Table, e.member.OwnerColumn)
	if err != nil {
		return nil, err
	}
	keyCond, err := keyCondition(h, kc.ID, key)
	if err != nil {
		return nil, err
	}
	if err := e.stmt.WhereAnd(keyCond, false); err != nil {
		return nil, err
	}
	return f.New(e.stmt, h, valueField, kc.Type)
}
