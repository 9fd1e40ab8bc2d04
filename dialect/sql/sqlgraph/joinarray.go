package sqlgraph

import (
	"context"
	"fmt"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// JoinArrayStore backs a list, set or array member materialized in a
// dedicated join table: one row per (owner, element) membership, plus an
// order column for indexed members and a discriminator column when the
// element type is polymorphic. Unlike the foreign-key store, mutations
// insert and delete join rows instead of touching element rows.
type JoinArrayStore struct {
	drv     dialect.Driver
	member  *schema.Member
	jt      *JoinTable
	element *ClassTable // nil for inline elements
	ec      EntityContext
	rows    RowFactory
	kind    elementKind

	insertStmt     quarry.StmtText
	deleteOfStmt   quarry.StmtText
	deleteAtStmt   quarry.StmtText
	shiftAfterStmt quarry.StmtText
	clearStmt      quarry.StmtText
	sizeStmt       quarry.StmtText
	orderOfStmt    quarry.StmtText
	listStmt       quarry.StmtText
}

// NewJoinArrayStore returns the store for a join-table mapped collection
// member. The join table must be registered; the element class table is
// required only for persistable element types.
func NewJoinArrayStore(drv dialect.Driver, reg *Registry, m *schema.Member, ec EntityContext, rows RowFactory) (*JoinArrayStore, error) {
	if m.Strategy != schema.JoinTable {
		return nil, quarry.NewUsageError("joinarray.new", m.QualifiedName(),
			fmt.Sprintf("member uses the %s strategy, not join_table", m.Strategy))
	}
	if m.Kind == schema.KindMap {
		return nil, quarry.NewUsageError("joinarray.new", m.QualifiedName(), "map members use a map store")
	}
	jt, ok := reg.Join(m)
	if !ok {
		return nil, quarry.NewUsageError("joinarray.new", m.QualifiedName(), "no join table registered")
	}
	s := &JoinArrayStore{drv: drv, member: m, jt: jt, ec: ec, rows: rows}
	switch {
	case m.Serialized:
		s.kind = elementSerialized
	case m.Embedded:
		s.kind = elementEmbedded
	default:
		s.kind = elementPersistable
		element, ok := reg.Class(m.Element)
		if !ok {
			return nil, quarry.NewUsageError("joinarray.new", m.QualifiedName(),
				fmt.Sprintf("no class table registered for element type %s", m.Element))
		}
		s.element = element
	}
	return s, nil
}

func (s *JoinArrayStore) elementMapping() *TypeMapping {
	m, _ := s.jt.Mapping(RoleElement)
	return m
}

// insertText renders the membership insert.
// Argument order: owner, element, [order], [discriminator].
func (s *JoinArrayStore) insertText() string {
	return s.insertStmt.MustGet(func() string {
		cols := []string{s.member.OwnerColumn, s.member.ElementColumn}
		vals := []any{nil, nil}
		if s.member.Indexed {
			cols = append(cols, s.member.OrderColumn)
			vals = append(vals, nil)
		}
		if d := s.member.Discriminator; d != nil {
			cols = append(cols, d.Column)
			vals = append(vals, nil)
		}
		text, _ := sql.Dialect(s.drv.Dialect()).
			Insert(s.jt.Name()).
			Columns(cols...).
			Values(vals...).
			Query()
		return text
	})
}

// deleteOfText renders the membership delete by element.
// Argument order: owner, [discriminator], element.
func (s *JoinArrayStore) deleteOfText() string {
	return s.deleteOfStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Delete(s.jt.Name()).
			Where(sql.And(s.membershipPred(), sql.EQ(s.member.ElementColumn, nil))).
			Query()
		return text
	})
}

// deleteAtText renders the membership delete by list position.
// Argument order: owner, [discriminator], order.
func (s *JoinArrayStore) deleteAtText() string {
	return s.deleteAtStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Delete(s.jt.Name()).
			Where(sql.And(s.membershipPred(), sql.EQ(s.member.OrderColumn, nil))).
			Query()
		return text
	})
}

// shiftAfterText renders the gap-closing index shift.
// Argument order: amount, owner, [discriminator], boundary order.
func (s *JoinArrayStore) shiftAfterText() string {
	return s.shiftAfterStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Update(s.jt.Name()).
			Add(s.member.OrderColumn, nil).
			Where(sql.And(s.membershipPred(), sql.GT(s.member.OrderColumn, nil))).
			Query()
		return text
	})
}

// clearText renders the bulk membership delete of one owner.
// Argument order: owner, [discriminator].
func (s *JoinArrayStore) clearText() string {
	return s.clearStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Delete(s.jt.Name()).
			Where(s.membershipPred()).
			Query()
		return text
	})
}

// sizeText renders the membership count of one owner.
// Argument order: owner, [discriminator].
func (s *JoinArrayStore) sizeText() string {
	return s.sizeStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Select(sql.Count("*")).
			From(sql.Table(s.jt.Name())).
			Where(s.membershipPred()).
			Query()
		return text
	})
}

// orderOfText renders the position lookup of one element.
// Argument order: owner, [discriminator], element.
func (s *JoinArrayStore) orderOfText() string {
	return s.orderOfStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Select(s.member.OrderColumn).
			From(sql.Table(s.jt.Name())).
			Where(sql.And(s.membershipPred(), sql.EQ(s.member.ElementColumn, nil))).
			Query()
		return text
	})
}

func (s *JoinArrayStore) membershipPred() *sql.Predicate {
	p := sql.EQ(s.member.OwnerColumn, nil)
	if d := s.member.Discriminator; d != nil {
		p = sql.And(p, sql.EQ(d.Column, nil))
	}
	return p
}

func (s *JoinArrayStore) membershipArgs(ownerID any) []any {
	args := []any{ownerID}
	if d := s.member.Discriminator; d != nil {
		args = append(args, d.Value)
	}
	return args
}

// encode converts one element value to its join-row column argument.
func (s *JoinArrayStore) encode(v any) (any, error) {
	args, err := encodeElement(s.ec, s.kind, s.elementMapping(), v)
	if err != nil {
		return nil, err
	}
	return args[0], nil
}

// Size returns the number of elements the owner currently holds.
func (s *JoinArrayStore) Size(ctx context.Context, owner any) (int64, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return 0, err
	}
	return queryCount(ctx, s.drv, s.sizeText(), s.membershipArgs(ownerID))
}

// Add appends elements, inserting one join row per element with the next
// free positions for indexed members. Persistable elements that are not
// yet persistent are persisted first so their identity exists to
// reference.
func (s *JoinArrayStore) Add(ctx context.Context, owner any, elements ...any) error {
	if len(elements) == 0 {
		return nil
	}
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	size := int64(0)
	if s.member.Indexed {
		size, err = s.Size(ctx, owner)
		if err != nil {
			return err
		}
	}
	for i, e := range elements {
		if s.kind == elementPersistable && !s.ec.IsPersistent(e) {
			if err := s.ec.Persist(ctx, e, nil); err != nil {
				return err
			}
		}
		ev, err := s.encode(e)
		if err != nil {
			return err
		}
		args := []any{ownerID, ev}
		if s.member.Indexed {
			args = append(args, size+int64(i))
		}
		if d := s.member.Discriminator; d != nil {
			args = append(args, d.Value)
		}
		if _, err := exec(ctx, s.drv, s.insertText(), args); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll deletes the join rows of the given elements. Indexed members
// remove one occurrence at a time and close the index gap after each, so
// positions stay contiguous; other members delete every occurrence at
// once. Dependent members also delete the element entities.
func (s *JoinArrayStore) RemoveAll(ctx context.Context, owner any, elements ...any) error {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	for _, e := range elements {
		ev, err := s.encode(e)
		if err != nil {
			return err
		}
		if s.member.Indexed {
			if err := s.removeIndexed(ctx, ownerID, ev); err != nil {
				return err
			}
		} else {
			args := append(s.membershipArgs(ownerID), ev)
			if _, err := exec(ctx, s.drv, s.deleteOfText(), args); err != nil {
				return err
			}
		}
		if s.member.Dependent && s.kind == elementPersistable {
			if err := s.ec.Delete(ctx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *JoinArrayStore) removeIndexed(ctx context.Context, ownerID, elementValue any) error {
	args := append(s.membershipArgs(ownerID), elementValue)
	text := s.orderOfText()
	rows, err := queryRows(ctx, s.drv, text, args)
	if err != nil {
		return err
	}
	var idx int64
	found := false
	if rows.Next() {
		if err := rows.Scan(&idx); err != nil {
			rows.Close()
			return quarry.NewDatastoreError(text, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return quarry.NewDatastoreError(text, err)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if !found {
		return nil
	}
	delArgs := append(s.membershipArgs(ownerID), idx)
	if _, err := exec(ctx, s.drv, s.deleteAtText(), delArgs); err != nil {
		return err
	}
	shiftArgs := append([]any{int64(-1)}, s.membershipArgs(ownerID)...)
	shiftArgs = append(shiftArgs, idx)
	_, err = exec(ctx, s.drv, s.shiftAfterText(), shiftArgs)
	return err
}

// Clear deletes every join row of the owner. Dependent members delete the
// element entities first.
func (s *JoinArrayStore) Clear(ctx context.Context, owner any) error {
	if s.member.Dependent && s.kind == elementPersistable {
		elements, err := s.List(ctx, owner)
		if err != nil {
			return err
		}
		for _, e := range elements {
			if s.ec.IsDeleted(e) {
				continue
			}
			if err := s.ec.Delete(ctx, e); err != nil {
				return err
			}
		}
	}
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	_, err = exec(ctx, s.drv, s.clearText(), s.membershipArgs(ownerID))
	return err
}

// Update replaces the collection's content wholesale: clear, then re-add.
func (s *JoinArrayStore) Update(ctx context.Context, owner any, elements ...any) error {
	if err := s.Clear(ctx, owner); err != nil {
		return err
	}
	return s.Add(ctx, owner, elements...)
}

// List returns the owner's elements in position order. Inline elements
// decode directly from the element column; persistable elements join to
// the element class table and materialize through the row factory.
func (s *JoinArrayStore) List(ctx context.Context, owner any) ([]any, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return nil, err
	}
	text := s.listStmt.MustGet(func() string {
		t, _, _ := s.buildList()
		return t
	})
	_, args, err := s.buildList()
	if err != nil {
		return nil, err
	}
	bound, err := Bind(args, map[string]any{"owner": ownerID})
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, s.drv, text, bound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	raw, err := scanValues(rows, s.rowWidth())
	if err != nil {
		return nil, quarry.NewDatastoreError(text, err)
	}
	out := make([]any, 0, len(raw))
	for _, cols := range raw {
		var e any
		if s.kind == elementPersistable {
			e, err = s.rows(cols)
		} else {
			e, err = decodeElement(s.kind, s.elementMapping(), cols)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *JoinArrayStore) rowWidth() int {
	if s.kind != elementPersistable {
		return 1
	}
	return len(s.element.Columns())
}

// buildList renders the iteration statement: the join table restricted to
// the owner, joined onward to the element class table for persistable
// elements, ordered by position.
func (s *JoinArrayStore) buildList() (string, []any, error) {
	stmt := NewSelectStatement(s.drv.Dialect(), s.jt.Table, "")
	h := stmt.Primary()
	if err := stmt.WhereAnd(sql.EQ(h.C(s.member.OwnerColumn), Param{Name: "owner"}), true); err != nil {
		return "", nil, err
	}
	if d := s.member.Discriminator; d != nil {
		if err := stmt.WhereAnd(sql.EQ(h.C(d.Column), d.Value), true); err != nil {
			return "", nil, err
		}
	}
	if s.kind == elementPersistable {
		elemRef := NewTypeMapping(s.member.Name, ValueObject, s.member.ElementColumn)
		eh, err := stmt.Join(InnerJoin, h, elemRef, s.element.Table, "", s.element.ID, nil)
		if err != nil {
			return "", nil, err
		}
		for _, c := range s.element.Columns() {
			if err := stmt.SelectColumn(eh, c, ""); err != nil {
				return "", nil, err
			}
		}
	} else {
		if err := stmt.SelectColumn(h, s.member.ElementColumn, ""); err != nil {
			return "", nil, err
		}
	}
	if s.member.Indexed {
		if err := stmt.SetOrdering([]string{h.C(s.member.OrderColumn)}, []bool{false}); err != nil {
			return "", nil, err
		}
	}
	text, args := stmt.Query()
	return text, args, nil
}
