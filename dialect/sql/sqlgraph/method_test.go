package sqlgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect"
	"github.com/quarryorm/quarry/schema"
)

func personTable(t *testing.T) *ClassTable {
	t.Helper()
	ct, err := NewClassTable("Person", "persons", "id", "name")
	require.NoError(t, err)
	return ct
}

// phonesMember is an inline-keyed, inline-valued join-table map.
func phonesMember() *schema.Member {
	return &schema.Member{
		Owner:       "Person",
		Name:        "phones",
		Kind:        schema.KindMap,
		Strategy:    schema.JoinTable,
		Embedded:    true,
		Table:       "person_phones",
		OwnerColumn: "person_id",
		KeyColumn:   "phone_type",
		ValueColumn: "phone_number",
	}
}

// addressesMember keeps the map key as a field of the value entity.
func addressesMember() *schema.Member {
	return &schema.Member{
		Owner:       "Person",
		Name:        "addresses",
		Kind:        schema.KindMap,
		Strategy:    schema.KeyInValue,
		Element:     "Address",
		OwnerColumn: "person_id",
		KeyColumn:   "addr_type",
	}
}

// badgesMember keeps the map value as a field of the key entity.
func badgesMember() *schema.Member {
	return &schema.Member{
		Owner:       "Person",
		Name:        "badges",
		Kind:        schema.KindMap,
		Strategy:    schema.ValueInKey,
		Key:         "Badge",
		OwnerColumn: "person_id",
		ValueColumn: "level",
	}
}

func methodFixture(t *testing.T) (*ExprFactory, *SelectStatement) {
	t.Helper()
	person := personTable(t)
	address, err := NewClassTable("Address", "addresses", "id", "person_id", "addr_type", "street")
	require.NoError(t, err)
	badge, err := NewClassTable("Badge", "badges", "id", "person_id", "level")
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, reg.AddClass(person))
	require.NoError(t, reg.AddClass(address))
	require.NoError(t, reg.AddClass(badge))
	jt, err := NewJoinTable(phonesMember().Defaulted())
	require.NoError(t, err)
	require.NoError(t, reg.AddJoin(jt))

	defs, err := schema.NewDefinitions(phonesMember(), addressesMember(), badgesMember())
	require.NoError(t, err)

	f := NewExprFactory(reg, defs)
	stmt := NewSelectStatement(dialect.MySQL, person.Table, "p")
	return f, stmt
}

func mapExprOf(t *testing.T, f *ExprFactory, stmt *SelectStatement, member string) *Expr {
	t.Helper()
	e, err := f.New(stmt, stmt.Primary(), &TypeMapping{Member: member, Kind: ValueMap}, "Person")
	require.NoError(t, err)
	return e
}

func selectID(t *testing.T, stmt *SelectStatement) {
	t.Helper()
	require.NoError(t, stmt.SelectColumn(stmt.Primary(), "id", ""))
}

func TestResolveKey_JoinTable_Filter(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	key, err := f.ResolveKey(phones, ComponentFilter)
	require.NoError(t, err)
	p, err := key.Eq(f.NewLiteral(stmt, nil, "home"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `person_phones` AS `P_PHONES` ON `p`.`id` = `P_PHONES`.`person_id` "+
		"WHERE `P_PHONES`.`phone_type` = ?", query)
	assert.Equal(t, []any{"home"}, args)
}

func TestResolveKey_JoinTable_ResolvedTwiceJoinsOnce(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	k1, err := f.ResolveKey(phones, ComponentFilter)
	require.NoError(t, err)
	k2, err := f.ResolveKey(phones, ComponentFilter)
	require.NoError(t, err)
	assert.Same(t, k1.Table(), k2.Table())
	assert.Len(t, stmt.joins, 1)
}

func TestResolveKey_JoinTable_Result(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	key, err := f.ResolveKey(phones, ComponentResult)
	require.NoError(t, err)
	p, err := key.Eq(f.NewLiteral(stmt, nil, "home"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` WHERE "+
		"(SELECT `SUB_P_PHONES`.`phone_type` FROM `person_phones` AS `SUB_P_PHONES` "+
		"WHERE `SUB_P_PHONES`.`person_id` = `p`.`id`) = ?", query)
	assert.Equal(t, []any{"home"}, args)
	assert.Empty(t, stmt.joins)
}

func TestResolveGet_JoinTable_Filter(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	value, err := f.ResolveGet(phones, []*Expr{f.NewLiteral(stmt, nil, "home")}, ComponentFilter)
	require.NoError(t, err)
	p, err := value.Eq(f.NewLiteral(stmt, nil, "555"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `person_phones` AS `P_PHONES` ON `p`.`id` = `P_PHONES`.`person_id` "+
		"WHERE `P_PHONES`.`phone_type` = ? AND `P_PHONES`.`phone_number` = ?", query)
	assert.Equal(t, []any{"home", "555"}, args)
}

// Resolving KEY first reuses the join for a later get; the get's key
// equality still lands in the WHERE clause.
func TestResolveGet_JoinTable_GetAfterKey(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	_, err := f.ResolveKey(phones, ComponentFilter)
	require.NoError(t, err)
	value, err := f.ResolveGet(phones, []*Expr{f.NewLiteral(stmt, nil, "home")}, ComponentFilter)
	require.NoError(t, err)
	p, err := value.Eq(f.NewLiteral(stmt, nil, "555"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)
	assert.Len(t, stmt.joins, 1)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `person_phones` AS `P_PHONES` ON `p`.`id` = `P_PHONES`.`person_id` "+
		"WHERE `P_PHONES`.`phone_type` = ? AND `P_PHONES`.`phone_number` = ?", query)
	assert.Equal(t, []any{"home", "555"}, args)
}

// Two gets with different keys share one join and keep both key equalities.
func TestResolveGet_JoinTable_TwoKeys(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	home, err := f.ResolveGet(phones, []*Expr{f.NewLiteral(stmt, nil, "home")}, ComponentFilter)
	require.NoError(t, err)
	work, err := f.ResolveGet(phones, []*Expr{f.NewLiteral(stmt, nil, "work")}, ComponentFilter)
	require.NoError(t, err)
	p1, err := home.Eq(f.NewLiteral(stmt, nil, "555"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p1, false))
	p2, err := work.Eq(f.NewLiteral(stmt, nil, "777"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p2, false))
	selectID(t, stmt)
	assert.Len(t, stmt.joins, 1)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `person_phones` AS `P_PHONES` ON `p`.`id` = `P_PHONES`.`person_id` "+
		"WHERE `P_PHONES`.`phone_type` = ? AND `P_PHONES`.`phone_type` = ? "+
		"AND `P_PHONES`.`phone_number` = ? AND `P_PHONES`.`phone_number` = ?", query)
	assert.Equal(t, []any{"home", "work", "555", "777"}, args)
}

func TestResolveGet_JoinTable_Having(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	value, err := f.ResolveGet(phones, []*Expr{f.NewLiteral(stmt, nil, "home")}, ComponentHaving)
	require.NoError(t, err)
	p, err := value.Eq(f.NewLiteral(stmt, nil, "555"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` WHERE "+
		"(SELECT `SUB_P_PHONES`.`phone_number` FROM `person_phones` AS `SUB_P_PHONES` "+
		"WHERE `SUB_P_PHONES`.`person_id` = `p`.`id` AND `SUB_P_PHONES`.`phone_type` = ?) = ?", query)
	assert.Equal(t, []any{"home", "555"}, args)
	assert.Empty(t, stmt.joins)
}

func TestResolveGet_Arity(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	for _, args := range [][]*Expr{
		nil,
		{f.NewLiteral(stmt, nil, "a"), f.NewLiteral(stmt, nil, "b")},
	} {
		_, err := f.ResolveGet(phones, args, ComponentFilter)
		require.Error(t, err)
		assert.True(t, quarry.IsUsage(err))
		assert.ErrorContains(t, err, "expects 1 argument(s)")
	}
	// The arity failure happens before any statement mutation.
	assert.Empty(t, stmt.joins)
}

func TestResolveGet_LiteralMapFolding(t *testing.T) {
	f, stmt := methodFixture(t)
	lit := f.NewMapLiteral(stmt, map[any]any{"a": 1})

	got, err := f.ResolveGet(lit, []*Expr{f.NewLiteral(stmt, nil, "a")}, ComponentFilter)
	require.NoError(t, err)
	assert.True(t, got.IsLiteral())
	assert.Equal(t, 1, got.Value())

	// A missing key folds to a null literal.
	got, err = f.ResolveGet(lit, []*Expr{f.NewLiteral(stmt, nil, "b")}, ComponentFilter)
	require.NoError(t, err)
	assert.True(t, got.IsLiteral())
	assert.Nil(t, got.Value())
	assert.Empty(t, stmt.joins)
}

func TestResolveGet_LiteralMapExpressionKey(t *testing.T) {
	f, stmt := methodFixture(t)
	lit := f.NewMapLiteral(stmt, map[any]any{"a": 1})
	col, err := f.New(stmt, stmt.Primary(), NewTypeMapping("name", ValueString, "name"), "Person")
	require.NoError(t, err)

	_, err = f.ResolveGet(lit, []*Expr{col}, ComponentFilter)
	require.Error(t, err)
	var ue *quarry.UnsupportedError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Permanent)
}

func TestResolveGet_UnboundVariableKey(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	_, err := f.ResolveGet(phones, []*Expr{f.NewVariable(stmt, "v")}, ComponentFilter)
	require.Error(t, err)
	var ue *quarry.UnsupportedError
	require.True(t, errors.As(err, &ue))
	assert.False(t, ue.Permanent)
}

func TestResolveKey_KeyInValue(t *testing.T) {
	f, stmt := methodFixture(t)
	addresses := mapExprOf(t, f, stmt, "addresses")

	key, err := f.ResolveKey(addresses, ComponentFilter)
	require.NoError(t, err)
	p, err := key.Eq(f.NewLiteral(stmt, nil, "work"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `addresses` AS `P_ADDRESSES` ON `p`.`id` = `P_ADDRESSES`.`person_id` "+
		"WHERE `P_ADDRESSES`.`addr_type` = ?", query)
	assert.Equal(t, []any{"work"}, args)
}

func TestResolveGet_KeyInValue_Result(t *testing.T) {
	f, stmt := methodFixture(t)
	addresses := mapExprOf(t, f, stmt, "addresses")

	value, err := f.ResolveGet(addresses, []*Expr{f.NewLiteral(stmt, nil, "work")}, ComponentResult)
	require.NoError(t, err)
	require.NotNil(t, value.sub)

	p, err := value.Eq(f.NewLiteral(stmt, nil, int64(9)))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` WHERE "+
		"(SELECT `SUB_P_ADDRESSES`.`id` FROM `addresses` AS `SUB_P_ADDRESSES` "+
		"WHERE `SUB_P_ADDRESSES`.`person_id` = `p`.`id` AND `SUB_P_ADDRESSES`.`addr_type` = ?) = ?", query)
	assert.Equal(t, []any{"work", int64(9)}, args)
}

func TestResolveKey_ValueInKey(t *testing.T) {
	f, stmt := methodFixture(t)
	badges := mapExprOf(t, f, stmt, "badges")

	key, err := f.ResolveKey(badges, ComponentFilter)
	require.NoError(t, err)
	c, err := key.C()
	require.NoError(t, err)
	assert.Equal(t, "P_BADGES.id", c)
}

func TestResolveGet_ValueInKey_Filter(t *testing.T) {
	f, stmt := methodFixture(t)
	badges := mapExprOf(t, f, stmt, "badges")

	value, err := f.ResolveGet(badges, []*Expr{f.NewLiteral(stmt, nil, int64(5))}, ComponentFilter)
	require.NoError(t, err)
	p, err := value.Gt(f.NewLiteral(stmt, nil, int64(2)))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `badges` AS `P_BADGES` ON `p`.`id` = `P_BADGES`.`person_id` "+
		"WHERE `P_BADGES`.`id` = ? AND `P_BADGES`.`level` > ?", query)
	assert.Equal(t, []any{int64(5), int64(2)}, args)
}

func TestResolveKey_UnsupportedStrategy(t *testing.T) {
	f, stmt := methodFixture(t)
	e := &Expr{
		stmt:  stmt,
		table: stmt.Primary(),
		kind:  ValueMap,
		member: &schema.Member{
			Owner:    "Person",
			Name:     "weird",
			Kind:     schema.KindMap,
			Strategy: schema.ForeignKey,
		},
	}
	_, err := f.ResolveKey(e, ComponentFilter)
	require.Error(t, err)
	var ue *quarry.UnsupportedError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Permanent)
}

func TestResolveKey_NonMap(t *testing.T) {
	f, stmt := methodFixture(t)
	col, err := f.New(stmt, stmt.Primary(), NewTypeMapping("name", ValueString, "name"), "Person")
	require.NoError(t, err)

	_, err = f.ResolveKey(col, ComponentFilter)
	require.Error(t, err)
	assert.True(t, quarry.IsUsage(err))
}

func TestResolveGet_ParameterKey(t *testing.T) {
	f, stmt := methodFixture(t)
	phones := mapExprOf(t, f, stmt, "phones")

	value, err := f.ResolveGet(phones, []*Expr{f.NewParameter(stmt, nil, "kind")}, ComponentFilter)
	require.NoError(t, err)
	p, err := value.Eq(f.NewLiteral(stmt, nil, "555"))
	require.NoError(t, err)
	require.NoError(t, stmt.WhereAnd(p, false))
	selectID(t, stmt)

	query, args := stmt.Query()
	assert.Equal(t, "SELECT `p`.`id` FROM `persons` AS `p` "+
		"INNER JOIN `person_phones` AS `P_PHONES` ON `p`.`id` = `P_PHONES`.`person_id` "+
		"WHERE `P_PHONES`.`phone_type` = ? AND `P_PHONES`.`phone_number` = ?", query)

	bound, err := Bind(args, map[string]any{"kind": "home"})
	require.NoError(t, err)
	assert.Equal(t, []any{"home", "555"}, bound)
}
