package sqlgraph

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quarryorm/quarry"
)

// ValueKind classifies the member value a mapping represents. The expression
// factory uses it to pick the expression type, and method resolvers dispatch
// on it.
type ValueKind int

const (
	ValueObject ValueKind = iota
	ValueNumeric
	ValueString
	ValueTemporal
	ValueMap
	ValueCollection
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case ValueObject:
		return "object"
	case ValueNumeric:
		return "numeric"
	case ValueString:
		return "string"
	case ValueTemporal:
		return "temporal"
	case ValueMap:
		return "map"
	case ValueCollection:
		return "collection"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Converter transforms a member value before it reaches the column layer
// and back again when reading. Used by converter-based mappings.
type Converter interface {
	// ToColumn converts a member value to its column representation.
	ToColumn(v any) (any, error)
	// FromColumn converts a column value back to the member representation.
	FromColumn(v any) (any, error)
}

// ColumnMapping maps one scalar value to and from a single database column.
type ColumnMapping struct {
	// Column is the database column name.
	Column string
	// NullDefault is substituted when the database returns NULL.
	// A nil NullDefault passes the NULL through as nil.
	NullDefault any
	// Converter, when set, transforms values on the way in and out.
	Converter Converter
}

// ToColumn converts a member value to the column argument to bind.
func (m *ColumnMapping) ToColumn(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if m.Converter != nil {
		return m.Converter.ToColumn(v)
	}
	return v, nil
}

// FromColumn converts a scanned column value back to the member value,
// substituting the null default for NULLs.
func (m *ColumnMapping) FromColumn(v any) (any, error) {
	if v == nil {
		if m.NullDefault != nil {
			return m.NullDefault, nil
		}
		return nil, nil
	}
	if m.Converter != nil {
		return m.Converter.FromColumn(v)
	}
	return v, nil
}

// TypeMapping composes one or more column mappings into the full datastore
// representation of a member.
type TypeMapping struct {
	// Member is the name of the mapped member. For relationship members it
	// is the field name; for identity mappings it is "id".
	Member  string
	Kind    ValueKind
	Columns []*ColumnMapping
}

// NewTypeMapping returns a single-column mapping, the common case.
func NewTypeMapping(member string, kind ValueKind, column string) *TypeMapping {
	return &TypeMapping{
		Member:  member,
		Kind:    kind,
		Columns: []*ColumnMapping{{Column: column}},
	}
}

// ColumnCount returns the number of columns the member spans.
func (m *TypeMapping) ColumnCount() int {
	return len(m.Columns)
}

// ColumnNames returns the column names in mapping order.
func (m *TypeMapping) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Column
	}
	return names
}

// Values converts a member value to the column arguments in mapping order.
// Single-column mappings convert the value directly; composite mappings
// expect a slice with one element per column.
func (m *TypeMapping) Values(v any) ([]any, error) {
	if len(m.Columns) == 1 {
		cv, err := m.Columns[0].ToColumn(v)
		if err != nil {
			return nil, err
		}
		return []any{cv}, nil
	}
	parts, ok := v.([]any)
	if !ok || len(parts) != len(m.Columns) {
		return nil, quarry.NewUsageError("mapping.values", m.Member,
			fmt.Sprintf("composite mapping spans %d columns, got %T", len(m.Columns), v))
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		cv, err := m.Columns[i].ToColumn(p)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

// Value converts scanned column values back to the member value.
func (m *TypeMapping) Value(cols []any) (any, error) {
	if len(cols) != len(m.Columns) {
		return nil, quarry.NewUsageError("mapping.value", m.Member,
			fmt.Sprintf("expected %d column values, got %d", len(m.Columns), len(cols)))
	}
	if len(m.Columns) == 1 {
		return m.Columns[0].FromColumn(cols[0])
	}
	out := make([]any, len(cols))
	for i, c := range cols {
		v, err := m.Columns[i].FromColumn(c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// IntConverter coerces integer-ish column values to int64, substituting
// the configured default for values the driver hands back in other widths.
type IntConverter struct{}

// ToColumn implements Converter.
func (IntConverter) ToColumn(v any) (any, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// FromColumn implements Converter.
func (IntConverter) FromColumn(v any) (any, error) {
	return toInt64(v)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("sqlgraph: %d overflows int64", n)
		}
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("sqlgraph: cannot coerce %v to int64", n)
		}
		return int64(n), nil
	case []byte:
		var out int64
		if _, err := fmt.Sscanf(string(n), "%d", &out); err != nil {
			return 0, fmt.Errorf("sqlgraph: cannot coerce %q to int64: %w", n, err)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("sqlgraph: cannot coerce %T to int64", v)
	}
}

// UUIDConverter stores uuid.UUID values as their string form and accepts
// string or []byte on the way back.
type UUIDConverter struct{}

// ToColumn implements Converter.
func (UUIDConverter) ToColumn(v any) (any, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id.String(), nil
	case string:
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlgraph: invalid uuid %q: %w", id, err)
		}
		return id, nil
	default:
		return nil, fmt.Errorf("sqlgraph: cannot coerce %T to uuid", v)
	}
}

// FromColumn implements Converter.
func (UUIDConverter) FromColumn(v any) (any, error) {
	switch raw := v.(type) {
	case string:
		return uuid.Parse(raw)
	case []byte:
		return uuid.ParseBytes(raw)
	case uuid.UUID:
		return raw, nil
	default:
		return nil, fmt.Errorf("sqlgraph: cannot coerce %T to uuid", v)
	}
}

// TimeConverter stores time.Time values in UTC and accepts time.Time or
// RFC 3339 strings on the way back.
type TimeConverter struct{}

// ToColumn implements Converter.
func (TimeConverter) ToColumn(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("sqlgraph: cannot coerce %T to time", v)
	}
	return t.UTC(), nil
}

// FromColumn implements Converter.
func (TimeConverter) FromColumn(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("sqlgraph: cannot parse time %q: %w", t, err)
		}
		return parsed.UTC(), nil
	case []byte:
		return TimeConverter{}.FromColumn(string(t))
	default:
		return nil, fmt.Errorf("sqlgraph: cannot coerce %T to time", v)
	}
}
