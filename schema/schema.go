// Package schema holds the relationship metadata the engine works from.
//
// A Member describes one multi-valued field of a persistent type: its kind
// (list, array, set or map), where its data lives (StorageStrategy), and the
// column names involved. Definitions can be built in Go or loaded from a
// YAML document (see Parse and Load).
package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/quarryorm/quarry"
)

// Kind is the shape of a multi-valued member.
type Kind int

const (
	KindInvalid Kind = iota
	KindList         // ordered, position-addressable
	KindArray        // fixed-length, ordered
	KindSet          // unordered, no duplicates
	KindMap          // key -> value
)

var kindNames = map[Kind]string{
	KindList:  "list",
	KindArray: "array",
	KindSet:   "set",
	KindMap:   "map",
}

// String returns the kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, quarry.NewUsageError("schema.parse", "", fmt.Sprintf("unknown member kind %q", s))
}

// StorageStrategy tells where a member's data lives. It is a closed set;
// every consumer dispatches over these variants and rejects anything else.
type StorageStrategy int

const (
	StrategyInvalid StorageStrategy = iota
	// ForeignKey stores the owner reference (and the order column, for
	// indexed lists) in the element table itself.
	ForeignKey
	// JoinTable stores owner/element (or owner/key/value) rows in a
	// dedicated join table.
	JoinTable
	// KeyInValue stores the map key as a column of the value table.
	KeyInValue
	// ValueInKey stores the map value as a column of the key table.
	ValueInKey
)

var strategyNames = map[StorageStrategy]string{
	ForeignKey: "foreign_key",
	JoinTable:  "join_table",
	KeyInValue: "key_in_value",
	ValueInKey: "value_in_key",
}

// String returns the strategy name.
func (s StorageStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StorageStrategy(%d)", int(s))
}

// ParseStrategy returns the StorageStrategy named by s.
func ParseStrategy(s string) (StorageStrategy, error) {
	for st, name := range strategyNames {
		if name == s {
			return st, nil
		}
	}
	return StrategyInvalid, quarry.NewUsageError("schema.parse", "", fmt.Sprintf("unknown storage strategy %q", s))
}

// OrderTerm is one component of an explicit member ordering.
type OrderTerm struct {
	Field string
	Desc  bool
}

// Discriminator marks a member that shares its join table or foreign key
// with other members. Every row carries the discriminator value, and every
// statement the engine synthesizes restricts on it.
type Discriminator struct {
	Column string
	Value  string
}

// Member is the metadata of one multi-valued relationship field.
type Member struct {
	// Owner is the owning entity type name and Name the field name on it.
	Owner string
	Name  string

	Kind     Kind
	Strategy StorageStrategy

	// Element is the element (or map value) entity type name. Empty for
	// non-persistable (embedded or serialized) elements.
	Element string
	// Key is the map key entity type name, when the key is persistable.
	Key string

	// MappedBy names the field on the element type that holds the back
	// reference for bidirectional foreign-key members.
	MappedBy string

	// Dependent elements are deleted when removed from the member.
	Dependent bool
	// Nullable allows clearing the owner reference instead of deleting.
	Nullable bool
	// Indexed members maintain a contiguous order column.
	Indexed bool
	// Serialized elements are stored as an encoded blob column.
	Serialized bool
	// Embedded elements are stored inline in the join table.
	Embedded bool

	// Ordering is the explicit result ordering for non-indexed members.
	Ordering []OrderTerm

	Discriminator *Discriminator

	// Table is the join table name. Defaulted from Owner and Name.
	Table string
	// Column names inside the member's table. All are defaulted.
	OwnerColumn   string
	ElementColumn string
	KeyColumn     string
	ValueColumn   string
	OrderColumn   string
}

// QualifiedName returns the "Owner.name" form used in error messages.
func (m *Member) QualifiedName() string {
	return m.Owner + "." + m.Name
}

// Defaulted returns a copy of the member with all table and column names
// filled in with their conventional defaults.
func (m *Member) Defaulted() *Member {
	d := *m
	if d.Table == "" {
		d.Table = inflect.Underscore(d.Owner) + "_" + inflect.Underscore(d.Name)
	}
	if d.OwnerColumn == "" {
		d.OwnerColumn = inflect.Underscore(d.Owner) + "_id"
	}
	if d.ElementColumn == "" {
		if d.Element != "" {
			d.ElementColumn = inflect.Underscore(d.Element) + "_id"
		} else {
			d.ElementColumn = "element"
		}
	}
	if d.Kind == KindMap {
		if d.KeyColumn == "" {
			if d.Key != "" {
				d.KeyColumn = inflect.Underscore(d.Key) + "_id"
			} else {
				d.KeyColumn = "key"
			}
		}
		if d.ValueColumn == "" {
			if d.Element != "" {
				d.ValueColumn = inflect.Underscore(d.Element) + "_id"
			} else {
				d.ValueColumn = "value"
			}
		}
	}
	if d.Indexed && d.OrderColumn == "" {
		d.OrderColumn = "idx"
	}
	return &d
}

// Validate reports the first semantic problem with the member metadata.
func (m *Member) Validate() error {
	qn := m.QualifiedName()
	switch m.Kind {
	case KindList, KindArray, KindSet, KindMap:
	default:
		return quarry.NewUsageError("schema.validate", qn, "member kind is not set")
	}
	switch m.Strategy {
	case ForeignKey:
		if m.Kind == KindMap {
			return quarry.NewUsageError("schema.validate", qn, "maps cannot use the foreign_key strategy")
		}
		if m.Element == "" {
			return quarry.NewUsageError("schema.validate", qn, "foreign_key members need a persistable element type")
		}
		if m.Serialized || m.Embedded {
			return quarry.NewUsageError("schema.validate", qn, "foreign_key members cannot hold serialized or embedded elements")
		}
	case JoinTable:
	case KeyInValue:
		if m.Kind != KindMap {
			return quarry.NewUsageError("schema.validate", qn, "key_in_value applies to maps only")
		}
		if m.Element == "" {
			return quarry.NewUsageError("schema.validate", qn, "key_in_value needs a persistable value type")
		}
	case ValueInKey:
		if m.Kind != KindMap {
			return quarry.NewUsageError("schema.validate", qn, "value_in_key applies to maps only")
		}
		if m.Key == "" {
			return quarry.NewUsageError("schema.validate", qn, "value_in_key needs a persistable key type")
		}
	default:
		return quarry.NewUsageError("schema.validate", qn, "storage strategy is not set")
	}
	if m.Indexed && m.Kind != KindList && m.Kind != KindArray {
		return quarry.NewUsageError("schema.validate", qn, "only lists and arrays can be indexed")
	}
	if m.Indexed && len(m.Ordering) > 0 {
		return quarry.NewUsageError("schema.validate", qn, "indexed members cannot also declare explicit ordering")
	}
	if m.Serialized && m.Embedded {
		return quarry.NewUsageError("schema.validate", qn, "an element cannot be both serialized and embedded")
	}
	if d := m.Discriminator; d != nil && (d.Column == "" || d.Value == "") {
		return quarry.NewUsageError("schema.validate", qn, "discriminator needs both a column and a value")
	}
	return nil
}

// Definitions is a validated set of members, addressable by qualified name.
type Definitions struct {
	members map[string]*Member
}

// NewDefinitions validates, defaults and indexes the given members.
func NewDefinitions(members ...*Member) (*Definitions, error) {
	defs := &Definitions{members: make(map[string]*Member, len(members))}
	for _, m := range members {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		d := m.Defaulted()
		qn := d.QualifiedName()
		if _, ok := defs.members[qn]; ok {
			return nil, quarry.NewUsageError("schema.validate", qn, "member is defined twice")
		}
		defs.members[qn] = d
	}
	return defs, nil
}

// Member returns the member with the given owner type and field name.
func (d *Definitions) Member(owner, name string) (*Member, bool) {
	m, ok := d.members[owner+"."+name]
	return m, ok
}

// Members returns all members. The order is unspecified.
func (d *Definitions) Members() []*Member {
	ms := make([]*Member, 0, len(d.members))
	for _, m := range d.members {
		ms = append(ms, m)
	}
	return ms
}

// Len returns the number of members.
func (d *Definitions) Len() int {
	return len(d.members)
}
