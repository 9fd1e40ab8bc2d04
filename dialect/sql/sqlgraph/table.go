package sqlgraph

import (
	"fmt"
	"slices"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/schema"
)

// Role names a table's well-known mapping slot.
type Role int

const (
	RoleOwner Role = iota + 1
	RoleElement
	RoleKey
	RoleValue
	RoleOrder
	RoleDiscriminator
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleElement:
		return "element"
	case RoleKey:
		return "key"
	case RoleValue:
		return "value"
	case RoleOrder:
		return "order"
	case RoleDiscriminator:
		return "discriminator"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Table describes a physical relation: its columns, an optional composite
// primary key, and named mappings into those columns.
type Table struct {
	name     string
	columns  []string
	pk       []string
	mappings map[Role]*TypeMapping
}

// NewTable returns a table with the given name and columns.
func NewTable(name string, columns ...string) *Table {
	return &Table{
		name:     name,
		columns:  columns,
		mappings: make(map[Role]*TypeMapping),
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the table's columns in declaration order.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// HasColumn reports whether the table declares the given column.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.columns, name)
}

// SetPK sets the primary key columns. All must be declared columns.
func (t *Table) SetPK(columns ...string) error {
	for _, c := range columns {
		if !t.HasColumn(c) {
			return quarry.NewUsageError("table.pk", t.name, fmt.Sprintf("primary key column %q is not a table column", c))
		}
	}
	t.pk = columns
	return nil
}

// PK returns the primary key columns.
func (t *Table) PK() []string { return slices.Clone(t.pk) }

// AddMapping registers a mapping under the given role. Every mapping
// column must be a declared column of this table.
func (t *Table) AddMapping(role Role, m *TypeMapping) error {
	for _, c := range m.Columns {
		if !t.HasColumn(c.Column) {
			return quarry.NewUsageError("table.mapping", t.name,
				fmt.Sprintf("%s mapping column %q is not a table column", role, c.Column))
		}
	}
	t.mappings[role] = m
	return nil
}

// Mapping returns the mapping registered under the given role.
func (t *Table) Mapping(role Role) (*TypeMapping, bool) {
	m, ok := t.mappings[role]
	return m, ok
}

// MustMapping is like Mapping but returns a usage error for missing roles.
func (t *Table) MustMapping(role Role) (*TypeMapping, error) {
	m, ok := t.mappings[role]
	if !ok {
		return nil, quarry.NewUsageError("table.mapping", t.name, fmt.Sprintf("no %s mapping registered", role))
	}
	return m, nil
}

// ClassTable is the table of one persistable type.
type ClassTable struct {
	*Table
	// Type is the entity type name the table stores.
	Type string
	// ID is the identity mapping. Required.
	ID *TypeMapping
	// Discriminator distinguishes concrete types sharing this table, for
	// polymorphic reads. Optional.
	Discriminator *TypeMapping
	// DiscriminatorValue is this type's value in the discriminator column.
	DiscriminatorValue string
}

// NewClassTable returns a class table with a single-column object identity.
func NewClassTable(typ, table, idColumn string, columns ...string) (*ClassTable, error) {
	t := NewTable(table, append([]string{idColumn}, columns...)...)
	if err := t.SetPK(idColumn); err != nil {
		return nil, err
	}
	return &ClassTable{
		Table: t,
		Type:  typ,
		ID:    NewTypeMapping("id", ValueObject, idColumn),
	}, nil
}

// JoinTable is the dedicated table of one join-table member, holding the
// owner reference plus element (or key/value) columns.
type JoinTable struct {
	*Table
	// Member is the relationship this table materializes.
	Member *schema.Member
}

// NewJoinTable builds the join table for a member from its metadata.
func NewJoinTable(m *schema.Member) (*JoinTable, error) {
	if m.Strategy != schema.JoinTable {
		return nil, quarry.NewUsageError("table.join", m.QualifiedName(),
			fmt.Sprintf("member uses the %s strategy, not join_table", m.Strategy))
	}
	columns := []string{m.OwnerColumn}
	if m.Kind == schema.KindMap {
		columns = append(columns, m.KeyColumn, m.ValueColumn)
	} else {
		columns = append(columns, m.ElementColumn)
	}
	if m.Indexed {
		columns = append(columns, m.OrderColumn)
	}
	if d := m.Discriminator; d != nil {
		columns = append(columns, d.Column)
	}
	t := NewTable(m.Table, columns...)
	jt := &JoinTable{Table: t, Member: m}

	owner := NewTypeMapping("owner", ValueObject, m.OwnerColumn)
	if err := t.AddMapping(RoleOwner, owner); err != nil {
		return nil, err
	}
	if m.Kind == schema.KindMap {
		if err := t.AddMapping(RoleKey, NewTypeMapping("key", ValueObject, m.KeyColumn)); err != nil {
			return nil, err
		}
		if err := t.AddMapping(RoleValue, NewTypeMapping("value", ValueObject, m.ValueColumn)); err != nil {
			return nil, err
		}
	} else {
		if err := t.AddMapping(RoleElement, NewTypeMapping("element", ValueObject, m.ElementColumn)); err != nil {
			return nil, err
		}
	}
	if m.Indexed {
		order := &TypeMapping{
			Member:  "order",
			Kind:    ValueNumeric,
			Columns: []*ColumnMapping{{Column: m.OrderColumn, Converter: IntConverter{}}},
		}
		if err := t.AddMapping(RoleOrder, order); err != nil {
			return nil, err
		}
	}
	if d := m.Discriminator; d != nil {
		if err := t.AddMapping(RoleDiscriminator, NewTypeMapping("discriminator", ValueString, d.Column)); err != nil {
			return nil, err
		}
	}
	// Primary key rule: owner plus order column for indexed members, owner
	// plus key for maps, owner plus element otherwise.
	switch {
	case m.Indexed:
		return jt, t.SetPK(m.OwnerColumn, m.OrderColumn)
	case m.Kind == schema.KindMap:
		return jt, t.SetPK(m.OwnerColumn, m.KeyColumn)
	default:
		return jt, t.SetPK(m.OwnerColumn, m.ElementColumn)
	}
}

// ComponentInfo pairs one concrete implementation type with its table.
// Stores hold one entry per concrete type a polymorphic member can contain.
type ComponentInfo struct {
	Type  string
	Table *ClassTable
}

// Registry resolves entity types to class tables and members to join
// tables. It is populated at startup and read-only afterwards.
type Registry struct {
	classes  map[string]*ClassTable
	joins    map[string]*JoinTable
	subtypes map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes:  make(map[string]*ClassTable),
		joins:    make(map[string]*JoinTable),
		subtypes: make(map[string][]string),
	}
}

// AddClass registers a class table under its type name.
func (r *Registry) AddClass(ct *ClassTable) error {
	if _, ok := r.classes[ct.Type]; ok {
		return quarry.NewUsageError("registry.class", ct.Type, "type registered twice")
	}
	r.classes[ct.Type] = ct
	return nil
}

// AddSubtype declares sub as a concrete subtype of base, for polymorphic
// member resolution.
func (r *Registry) AddSubtype(base, sub string) {
	r.subtypes[base] = append(r.subtypes[base], sub)
}

// AddJoin registers the join table of a member.
func (r *Registry) AddJoin(jt *JoinTable) error {
	qn := jt.Member.QualifiedName()
	if _, ok := r.joins[qn]; ok {
		return quarry.NewUsageError("registry.join", qn, "join table registered twice")
	}
	r.joins[qn] = jt
	return nil
}

// Class returns the class table of the given type.
func (r *Registry) Class(typ string) (*ClassTable, bool) {
	ct, ok := r.classes[typ]
	return ct, ok
}

// Join returns the join table of the given member.
func (r *Registry) Join(m *schema.Member) (*JoinTable, bool) {
	jt, ok := r.joins[m.QualifiedName()]
	return jt, ok
}

// Components returns the concrete component tables a member of the given
// declared type can hold: the type's own table if registered, plus one
// entry per registered subtype.
func (r *Registry) Components(typ string) []ComponentInfo {
	var infos []ComponentInfo
	if ct, ok := r.classes[typ]; ok {
		infos = append(infos, ComponentInfo{Type: typ, Table: ct})
	}
	for _, sub := range r.subtypes[typ] {
		if ct, ok := r.classes[sub]; ok {
			infos = append(infos, ComponentInfo{Type: sub, Table: ct})
		}
	}
	return infos
}
