package sqlgraph

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// EntityContext is the runtime the backing stores call back into for
// entity lifecycle state. It is implemented by the persistence layer that
// owns the entities; stores themselves hold no per-entity state.
type EntityContext interface {
	// ID returns the datastore identity of a managed entity.
	ID(entity any) (any, error)
	// TypeOf returns the concrete persistable type name of a managed
	// entity, or empty when unknown. Stores over polymorphic members use
	// it to address the element's own class table.
	TypeOf(entity any) string
	// IsPersistent reports whether the entity is already persistent.
	IsPersistent(entity any) bool
	// Persist makes the entity persistent. The primer supplies values the
	// entity's row must carry from the start: the owner reference, the
	// list index and the discriminator of the member being written.
	Persist(ctx context.Context, entity any, primer *ValuePrimer) error
	// CurrentOwner returns the owner an element currently references
	// through the given member, or nil.
	CurrentOwner(entity any, member string) (any, error)
	// SetOwner repairs the element's back-reference to the owner.
	SetOwner(entity any, member string, owner any) error
	// IsAttaching reports whether the entity is being attached, in which
	// case an existing owner reference is being re-established rather
	// than stolen.
	IsAttaching(entity any) bool
	// IsSoftDeleted reports whether the entity is flagged deleted without
	// its row being removed.
	IsSoftDeleted(entity any) bool
	// IsDeleted reports whether the entity is already deleted.
	IsDeleted(entity any) bool
	// Delete schedules the entity for deletion.
	Delete(ctx context.Context, entity any) error
	// FlushDelete deletes the entity immediately.
	FlushDelete(ctx context.Context, entity any) error
}

// ValuePrimer carries the values a new element row must be written with so
// the membership is established in the insert itself instead of a
// follow-up update.
type ValuePrimer struct {
	// Member is the relationship being written.
	Member string
	// Owner is the owning entity.
	Owner any
	// Index is the list index to write, for indexed members. Negative
	// means no index.
	Index int64
	// Indexed reports whether Index is meaningful.
	Indexed bool
	// Discriminator is the value for the member's discriminator column,
	// or empty.
	Discriminator string
}

// RowFactory turns one scanned row, in select-list order, into an element
// value. Stores use it to materialize iteration results without knowing
// the entity representation.
type RowFactory func(cols []any) (any, error)

// elementKind classifies how a member's element values cross the column
// boundary.
type elementKind int

const (
	// elementPersistable elements are entities with their own class table;
	// the store persists them and references their identity.
	elementPersistable elementKind = iota
	// elementEmbedded elements map inline onto the member's own columns.
	elementEmbedded
	// elementSerialized elements are encoded into a single binary column.
	elementSerialized
)

func kindOfElement(m *elementMeta) elementKind {
	switch {
	case m.member.Serialized:
		return elementSerialized
	case m.member.Embedded:
		return elementEmbedded
	default:
		return elementPersistable
	}
}

// elementMeta bundles what a store needs to move one element value in and
// out of the database.
type elementMeta struct {
	member  *schema.Member
	mapping *TypeMapping
}

// encodeElement converts an element value to the column arguments of the
// given mapping. Serialized elements are msgpack-encoded into a single
// argument; persistable elements contribute their identity.
func encodeElement(ec EntityContext, kind elementKind, mapping *TypeMapping, v any) ([]any, error) {
	switch kind {
	case elementSerialized:
		raw, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("sqlgraph: encode element: %w", err)
		}
		return []any{raw}, nil
	case elementPersistable:
		id, err := ec.ID(v)
		if err != nil {
			return nil, err
		}
		return mapping.Values(id)
	default:
		return mapping.Values(v)
	}
}

// decodeElement converts scanned column values back to an element value.
// Persistable elements decode to their identity; the caller resolves the
// entity.
func decodeElement(kind elementKind, mapping *TypeMapping, cols []any) (any, error) {
	if kind == elementSerialized {
		if len(cols) != 1 {
			return nil, quarry.NewUsageError("store.decode", mapping.Member,
				fmt.Sprintf("serialized element spans %d columns", len(cols)))
		}
		raw, ok := cols[0].([]byte)
		if !ok {
			if s, isStr := cols[0].(string); isStr {
				raw = []byte(s)
			} else {
				return nil, quarry.NewUsageError("store.decode", mapping.Member,
					fmt.Sprintf("serialized element column has type %T", cols[0]))
			}
		}
		var v any
		if err := msgpack.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("sqlgraph: decode element: %w", err)
		}
		return v, nil
	}
	return mapping.Value(cols)
}

// exec runs a DML statement, wrapping failures with the statement text.
// Constraint violations are classified first so callers can match them
// with errors.As through the datastore wrapper.
func exec(ctx context.Context, drv dialect.ExecQuerier, text string, args []any) (sql.Result, error) {
	var res sql.Result
	if err := drv.Exec(ctx, text, args, &res); err != nil {
		return nil, quarry.NewDatastoreError(text, classifyConstraint(err))
	}
	return res, nil
}

// queryRows runs a SELECT, wrapping failures with the statement text.
// The caller owns the returned rows.
func queryRows(ctx context.Context, drv dialect.ExecQuerier, text string, args []any) (*sql.Rows, error) {
	var rows sql.Rows
	if err := drv.Query(ctx, text, args, &rows); err != nil {
		return nil, quarry.NewDatastoreError(text, err)
	}
	return &rows, nil
}

// queryCount runs a single-value COUNT statement.
func queryCount(ctx context.Context, drv dialect.ExecQuerier, text string, args []any) (int64, error) {
	rows, err := queryRows(ctx, drv, text, args)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, quarry.NewDatastoreError(text, err)
		}
		return 0, quarry.NewDatastoreError(text, fmt.Errorf("count returned no rows"))
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, quarry.NewDatastoreError(text, err)
	}
	return n, nil
}

// scanValues reads every remaining row into slices of raw column values.
func scanValues(rows *sql.Rows, width int) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		cols := make([]any, width)
		ptrs := make([]any, width)
		for i := range cols {
			ptrs[i] = &cols[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, cols)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, rows.Close()
}
