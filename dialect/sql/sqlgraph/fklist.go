package sqlgraph

import (
	"context"
	"fmt"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// fkComponent caches the DML texts of one concrete element table.
// Single-table members have exactly one component; multi-table polymorphic
// members get one per concrete type, so statements keyed by owner run
// against every component while statements keyed by element run against
// the element's own table.
type fkComponent struct {
	typ   string
	table *ClassTable

	setStmt        quarry.StmtText
	unsetAtStmt    quarry.StmtText
	unsetOfStmt    quarry.StmtText
	shiftFromStmt  quarry.StmtText
	shiftAfterStmt quarry.StmtText
	clearStmt      quarry.StmtText
	sizeStmt       quarry.StmtText
	indexOfStmt    quarry.StmtText
}

func (c *fkComponent) idColumn() string {
	return c.table.ID.Columns[0].Column
}

// FKListStore backs a list, set or array member whose elements live in
// their own class table carrying a foreign key back to the owner. The
// store is stateless: statement texts are computed once and cached, and
// per-call arguments are assembled in the order the text was built with.
type FKListStore struct {
	drv        dialect.Driver
	member     *schema.Member
	owner      *ClassTable
	element    *ClassTable
	components []*fkComponent
	byType     map[string]*fkComponent
	ec         EntityContext
	rows       RowFactory

	listStmt quarry.StmtText
}

// NewFKListStore returns the store for a foreign-key mapped collection
// member. The element type and the owner type must both be registered.
func NewFKListStore(drv dialect.Driver, reg *Registry, m *schema.Member, ec EntityContext, rows RowFactory) (*FKListStore, error) {
	if m.Strategy != schema.ForeignKey {
		return nil, quarry.NewUsageError("fklist.new", m.QualifiedName(),
			fmt.Sprintf("member uses the %s strategy, not foreign_key", m.Strategy))
	}
	if m.Kind == schema.KindMap {
		return nil, quarry.NewUsageError("fklist.new", m.QualifiedName(), "map members use a map store")
	}
	owner, ok := reg.Class(m.Owner)
	if !ok {
		return nil, quarry.NewUsageError("fklist.new", m.QualifiedName(),
			fmt.Sprintf("no class table registered for owner type %s", m.Owner))
	}
	element, ok := reg.Class(m.Element)
	if !ok {
		return nil, quarry.NewUsageError("fklist.new", m.QualifiedName(),
			fmt.Sprintf("no class table registered for element type %s", m.Element))
	}
	infos := reg.Components(m.Element)
	components := make([]*fkComponent, len(infos))
	byType := make(map[string]*fkComponent, len(infos))
	for i, info := range infos {
		c := &fkComponent{typ: info.Type, table: info.Table}
		components[i] = c
		byType[info.Type] = c
	}
	return &FKListStore{
		drv:        drv,
		member:     m,
		owner:      owner,
		element:    element,
		components: components,
		byType:     byType,
		ec:         ec,
		rows:       rows,
	}, nil
}

func (s *FKListStore) discriminator() *schema.Discriminator {
	return s.member.Discriminator
}

// componentOf returns the component holding the element's row: the one
// matching its concrete type, falling back to the declared element type
// when the context reports none.
func (s *FKListStore) componentOf(element any) *fkComponent {
	if t := s.ec.TypeOf(element); t != "" {
		if c, ok := s.byType[t]; ok {
			return c
		}
	}
	return s.components[0]
}

// setText renders the membership write: owner, index and discriminator
// columns on the element row identified by primary key.
// Argument order: owner, [index], [discriminator], element id.
func (s *FKListStore) setText(c *fkComponent) string {
	return c.setStmt.MustGet(func() string {
		u := sql.Dialect(s.drv.Dialect()).
			Update(c.table.Name()).
			Set(s.member.OwnerColumn, nil)
		if s.member.Indexed {
			u.Set(s.member.OrderColumn, nil)
		}
		if d := s.discriminator(); d != nil {
			u.Set(d.Column, nil)
		}
		u.Where(sql.EQ(c.idColumn(), nil))
		text, _ := u.Query()
		return text
	})
}

// unsetAtText renders the membership nullify of the row at one list index.
// Argument order: owner, [discriminator], index.
func (s *FKListStore) unsetAtText(c *fkComponent) string {
	return c.unsetAtStmt.MustGet(func() string {
		u := s.nullifyBuilder(c)
		p := sql.EQ(s.member.OwnerColumn, nil)
		if d := s.discriminator(); d != nil {
			p = sql.And(p, sql.EQ(d.Column, nil))
		}
		u.Where(sql.And(p, sql.EQ(s.member.OrderColumn, nil)))
		text, _ := u.Query()
		return text
	})
}

// unsetOfText renders the membership nullify of one element row by id.
// Argument order: element id.
func (s *FKListStore) unsetOfText(c *fkComponent) string {
	return c.unsetOfStmt.MustGet(func() string {
		u := s.nullifyBuilder(c)
		u.Where(sql.EQ(c.idColumn(), nil))
		text, _ := u.Query()
		return text
	})
}

func (s *FKListStore) nullifyBuilder(c *fkComponent) *sql.UpdateBuilder {
	u := sql.Dialect(s.drv.Dialect()).
		Update(c.table.Name()).
		SetNull(s.member.OwnerColumn)
	if s.member.Indexed {
		u.SetNull(s.member.OrderColumn)
	}
	if d := s.discriminator(); d != nil {
		u.SetNull(d.Column)
	}
	return u
}

// shiftText renders the index shift making room for, or closing the gap
// after, a positional write. from selects `>=`, after selects `>`.
// Argument order: amount, owner, [discriminator], boundary index.
func (s *FKListStore) shiftText(c *fkComponent, after bool) string {
	cache := &c.shiftFromStmt
	if after {
		cache = &c.shiftAfterStmt
	}
	return cache.MustGet(func() string {
		u := sql.Dialect(s.drv.Dialect()).
			Update(c.table.Name()).
			Add(s.member.OrderColumn, nil)
		p := sql.EQ(s.member.OwnerColumn, nil)
		if d := s.discriminator(); d != nil {
			p = sql.And(p, sql.EQ(d.Column, nil))
		}
		bound := sql.GTE(s.member.OrderColumn, nil)
		if after {
			bound = sql.GT(s.member.OrderColumn, nil)
		}
		u.Where(sql.And(p, bound))
		text, _ := u.Query()
		return text
	})
}

// clearText renders the bulk membership nullify of every element of one
// owner. Argument order: owner, [discriminator].
func (s *FKListStore) clearText(c *fkComponent) string {
	return c.clearStmt.MustGet(func() string {
		u := s.nullifyBuilder(c)
		p := sql.EQ(s.member.OwnerColumn, nil)
		if d := s.discriminator(); d != nil {
			p = sql.And(p, sql.EQ(d.Column, nil))
		}
		u.Where(p)
		text, _ := u.Query()
		return text
	})
}

// sizeText renders the element count of one owner.
// Argument order: owner, [discriminator].
func (s *FKListStore) sizeText(c *fkComponent) string {
	return c.sizeStmt.MustGet(func() string {
		sel := sql.Dialect(s.drv.Dialect()).
			Select(sql.Count("*")).
			From(sql.Table(c.table.Name()))
		p := sql.EQ(s.member.OwnerColumn, nil)
		if d := s.discriminator(); d != nil {
			p = sql.And(p, sql.EQ(d.Column, nil))
		}
		sel.Where(p)
		text, _ := sel.Query()
		return text
	})
}

// indexOfText renders the index lookup of one element row.
// Argument order: owner, [discriminator], element id.
func (s *FKListStore) indexOfText(c *fkComponent) string {
	return c.indexOfStmt.MustGet(func() string {
		sel := sql.Dialect(s.drv.Dialect()).
			Select(s.member.OrderColumn).
			From(sql.Table(c.table.Name()))
		p := sql.EQ(s.member.OwnerColumn, nil)
		if d := s.discriminator(); d != nil {
			p = sql.And(p, sql.EQ(d.Column, nil))
		}
		sel.Where(sql.And(p, sql.EQ(c.idColumn(), nil)))
		text, _ := sel.Query()
		return text
	})
}

// membershipArgs assembles the owner and discriminator arguments in the
// order every membership-restricted statement was built with.
func (s *FKListStore) membershipArgs(ownerID any) []any {
	args := []any{ownerID}
	if d := s.discriminator(); d != nil {
		args = append(args, d.Value)
	}
	return args
}

// Size returns the number of elements the owner currently holds, summed
// over the component tables.
func (s *FKListStore) Size(ctx context.Context, owner any) (int64, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range s.components {
		n, err := queryCount(ctx, s.drv, s.sizeText(c), s.membershipArgs(ownerID))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Add appends elements to the owner's collection. New elements are
// persisted with their membership primed into the insert; elements that
// are already persistent get their foreign key updated.
func (s *FKListStore) Add(ctx context.Context, owner any, elements ...any) error {
	if len(elements) == 0 {
		return nil
	}
	size := int64(0)
	if s.member.Indexed {
		n, err := s.Size(ctx, owner)
		if err != nil {
			return err
		}
		size = n
	}
	return s.internalAdd(ctx, owner, size, size, elements)
}

// AddAt inserts elements at the given list position, shifting later
// elements up. Position operations require an indexed member.
func (s *FKListStore) AddAt(ctx context.Context, owner any, index int64, elements ...any) error {
	if !s.member.Indexed {
		return quarry.NewUsageError("fklist.addAt", s.member.QualifiedName(), "position operations require an indexed member")
	}
	if len(elements) == 0 {
		return nil
	}
	size, err := s.Size(ctx, owner)
	if err != nil {
		return err
	}
	if index < 0 || index > size {
		return quarry.NewUsageError("fklist.addAt", s.member.QualifiedName(),
			fmt.Sprintf("index %d out of range for size %d", index, size))
	}
	return s.internalAdd(ctx, owner, index, size, elements)
}

// internalAdd writes elements at index. When inserting before the end it
// first shifts the tail up in one bulk statement per component, then
// establishes each element's membership: priming the insert for new
// elements, updating the foreign key for persistent ones.
func (s *FKListStore) internalAdd(ctx context.Context, owner any, index, size int64, elements []any) error {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	if s.member.Indexed && index < size {
		if err := s.shift(ctx, ownerID, int64(len(elements)), index, false); err != nil {
			return err
		}
	}
	for i, e := range elements {
		persistent, err := s.validateElementForWriting(ctx, owner, e, index+int64(i))
		if err != nil {
			return err
		}
		if !persistent {
			continue
		}
		id, err := s.ec.ID(e)
		if err != nil {
			return err
		}
		if _, err := exec(ctx, s.drv, s.setText(s.componentOf(e)), s.setArgs(ownerID, index+int64(i), id)); err != nil {
			return err
		}
	}
	return nil
}

// shift moves the indexes at or after (or strictly after) the boundary by
// amount. List indexes run contiguously across the component tables, so
// each component shifts with the same boundary.
func (s *FKListStore) shift(ctx context.Context, ownerID any, amount, boundary int64, after bool) error {
	for _, c := range s.components {
		args := append([]any{amount}, s.membershipArgs(ownerID)...)
		args = append(args, boundary)
		if _, err := exec(ctx, s.drv, s.shiftText(c, after), args); err != nil {
			return err
		}
	}
	return nil
}

// unsetAt nullifies the membership of the row at one index. At most one
// component row carries the index, but which table holds it is unknown,
// so the nullify runs against each one.
func (s *FKListStore) unsetAt(ctx context.Context, ownerID any, index int64) error {
	for _, c := range s.components {
		args := append(s.membershipArgs(ownerID), index)
		if _, err := exec(ctx, s.drv, s.unsetAtText(c), args); err != nil {
			return err
		}
	}
	return nil
}

// setArgs assembles the membership-write arguments in setText order.
func (s *FKListStore) setArgs(ownerID any, index int64, elementID any) []any {
	args := []any{ownerID}
	if s.member.Indexed {
		args = append(args, index)
	}
	if d := s.discriminator(); d != nil {
		args = append(args, d.Value)
	}
	return append(args, elementID)
}

// Set replaces the element at one index and returns the previous element.
// The previous row's membership is unset before the new one is written;
// for dependent members the previous element is deleted.
func (s *FKListStore) Set(ctx context.Context, owner any, index int64, element any) (any, error) {
	if !s.member.Indexed {
		return nil, quarry.NewUsageError("fklist.set", s.member.QualifiedName(), "position operations require an indexed member")
	}
	previous, err := s.elementAt(ctx, owner, index)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, quarry.NewUsageError("fklist.set", s.member.QualifiedName(),
			fmt.Sprintf("no element at index %d", index))
	}
	same, err := s.sameEntity(previous, element)
	if err != nil {
		return nil, err
	}
	if same {
		return previous, nil
	}
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return nil, err
	}
	if err := s.unsetAt(ctx, ownerID, index); err != nil {
		return nil, err
	}
	persistent, err := s.validateElementForWriting(ctx, owner, element, index)
	if err != nil {
		return nil, err
	}
	if persistent {
		id, err := s.ec.ID(element)
		if err != nil {
			return nil, err
		}
		if _, err := exec(ctx, s.drv, s.setText(s.componentOf(element)), s.setArgs(ownerID, index, id)); err != nil {
			return nil, err
		}
	}
	if s.member.Dependent {
		if err := s.ec.Delete(ctx, previous); err != nil {
			return nil, err
		}
	}
	return previous, nil
}

// RemoveAt removes the element at one index, closes the index gap, and
// returns the removed element. Dependent members delete the element;
// otherwise the membership is nullified when the foreign key is nullable
// and the element is deleted when it is not.
func (s *FKListStore) RemoveAt(ctx context.Context, owner any, index int64) (any, error) {
	if !s.member.Indexed {
		return nil, quarry.NewUsageError("fklist.removeAt", s.member.QualifiedName(), "position operations require an indexed member")
	}
	removed, err := s.elementAt(ctx, owner, index)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		return nil, quarry.NewUsageError("fklist.removeAt", s.member.QualifiedName(),
			fmt.Sprintf("no element at index %d", index))
	}
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return nil, err
	}
	if err := s.detach(ctx, owner, removed, index); err != nil {
		return nil, err
	}
	// Close the gap so indexes stay contiguous.
	if err := s.shift(ctx, ownerID, -1, index, true); err != nil {
		return nil, err
	}
	return removed, nil
}

// RemoveAll removes the given elements. Indexed members remove one element
// at a time through RemoveAt so every removal re-shifts the tail; the
// index invariant holds after each step.
func (s *FKListStore) RemoveAll(ctx context.Context, owner any, elements ...any) error {
	for _, e := range elements {
		if s.member.Indexed {
			idx, ok, err := s.indexOf(ctx, owner, e)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := s.RemoveAt(ctx, owner, idx); err != nil {
				return err
			}
			continue
		}
		if err := s.detach(ctx, owner, e, -1); err != nil {
			return err
		}
	}
	return nil
}

// detach takes one element out of the collection. index is only used for
// indexed nullifies; pass -1 for removal by element identity.
func (s *FKListStore) detach(ctx context.Context, owner any, element any, index int64) error {
	switch {
	case s.member.Dependent:
		return s.ec.Delete(ctx, element)
	case s.member.Nullable:
		if s.member.Indexed && index >= 0 {
			ownerID, err := s.ec.ID(owner)
			if err != nil {
				return err
			}
			return s.unsetAt(ctx, ownerID, index)
		}
		id, err := s.ec.ID(element)
		if err != nil {
			return err
		}
		_, err = exec(ctx, s.drv, s.unsetOfText(s.componentOf(element)), []any{id})
		return err
	default:
		// A non-nullable foreign key leaves no way to keep the row.
		return s.ec.Delete(ctx, element)
	}
}

// Clear removes every element from the owner's collection. Dependent
// members delete each element and flush; otherwise a bulk nullify per
// component detaches all rows. The nullify is skipped when the owner
// itself is soft-deleted, since its rows are on the way out anyway.
func (s *FKListStore) Clear(ctx context.Context, owner any) error {
	if s.member.Dependent {
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
			if err := s.ec.FlushDelete(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}
	if s.ec.IsSoftDeleted(owner) {
		return nil
	}
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	for _, c := range s.components {
		if _, err := exec(ctx, s.drv, s.clearText(c), s.membershipArgs(ownerID)); err != nil {
			return err
		}
	}
	return nil
}

// Update replaces the collection's content wholesale: clear, then re-add.
func (s *FKListStore) Update(ctx context.Context, owner any, elements ...any) error {
	if err := s.Clear(ctx, owner); err != nil {
		return err
	}
	return s.Add(ctx, owner, elements...)
}

// List returns the owner's elements, ordered by index for indexed members
// or by the member's declared ordering.
func (s *FKListStore) List(ctx context.Context, owner any) ([]any, error) {
	return s.list(ctx, owner, -1, -1)
}

// ListRange returns the elements whose index falls in [from, to).
func (s *FKListStore) ListRange(ctx context.Context, owner any, from, to int64) ([]any, error) {
	if !s.member.Indexed {
		return nil, quarry.NewUsageError("fklist.listRange", s.member.QualifiedName(), "position operations require an indexed member")
	}
	return s.list(ctx, owner, from, to)
}

func (s *FKListStore) list(ctx context.Context, owner any, from, to int64) ([]any, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return nil, err
	}
	var (
		text  string
		args  []any
		width int
	)
	if from < 0 && to < 0 {
		text = s.listStmt.MustGet(func() string {
			t, _, _ := s.buildList(-1, -1)
			return t
		})
		_, tmplArgs, err := s.buildList(-1, -1)
		if err != nil {
			return nil, err
		}
		args = tmplArgs
	} else {
		text, args, err = s.buildList(from, to)
		if err != nil {
			return nil, err
		}
	}
	bound, err := Bind(args, map[string]any{"owner": ownerID})
	if err != nil {
		return nil, err
	}
	width = s.rowWidth()
	rows, err := queryRows(ctx, s.drv, text, bound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	raw, err := scanValues(rows, width)
	if err != nil {
		return nil, quarry.NewDatastoreError(text, err)
	}
	out := make([]any, 0, len(raw))
	for _, cols := range raw {
		e, err := s.rows(cols)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// rowWidth is the number of columns each result row carries: the element
// table's columns, or the id, type tag and order expressions per union
// branch when the element type is polymorphic.
func (s *FKListStore) rowWidth() int {
	if !s.polymorphic() {
		return len(s.element.Columns())
	}
	w := 2
	if s.member.Indexed {
		w++
	} else {
		w += len(s.member.Ordering)
	}
	return w
}

func (s *FKListStore) polymorphic() bool {
	return len(s.components) > 1
}

// buildList renders the iteration statement. A negative bound leaves that
// side of the index range open. Non-polymorphic members select the element
// table's columns; polymorphic members union one branch per concrete type,
// each selecting the identity, a type tag and the order expressions. The
// union orders by select alias, since a branch-qualified column is not
// addressable across a UNION.
func (s *FKListStore) buildList(from, to int64) (string, []any, error) {
	if !s.polymorphic() {
		stmt, h, err := s.restrictedStmt(s.element, from, to)
		if err != nil {
			return "", nil, err
		}
		for _, c := range s.element.Columns() {
			if err := stmt.SelectColumn(h, c, ""); err != nil {
				return "", nil, err
			}
		}
		if err := s.applyOrdering(stmt, h); err != nil {
			return "", nil, err
		}
		text, args := stmt.Query()
		return text, args, nil
	}
	var root *SelectStatement
	for _, comp := range s.components {
		stmt, h, err := s.restrictedStmt(comp.table, from, to)
		if err != nil {
			return "", nil, err
		}
		if err := stmt.SelectColumn(h, comp.idColumn(), "elem_id"); err != nil {
			return "", nil, err
		}
		if err := stmt.SelectExpr("'"+comp.typ+"'", ""); err != nil {
			return "", nil, err
		}
		if s.member.Indexed {
			if err := stmt.SelectColumn(h, s.member.OrderColumn, "elem_order"); err != nil {
				return "", nil, err
			}
		} else {
			for i, o := range s.member.Ordering {
				if err := stmt.SelectColumn(h, o.Field, fmt.Sprintf("elem_order_%d", i)); err != nil {
					return "", nil, err
				}
			}
		}
		if root == nil {
			root = stmt
			continue
		}
		if err := root.Union(stmt); err != nil {
			return "", nil, err
		}
	}
	if err := s.applyUnionOrdering(root); err != nil {
		return "", nil, err
	}
	text, args := root.Query()
	return text, args, nil
}

// restrictedStmt builds one statement over a concrete element table with
// the owner, discriminator and index-range restrictions applied.
func (s *FKListStore) restrictedStmt(ct *ClassTable, from, to int64) (*SelectStatement, *StatementTable, error) {
	stmt := NewSelectStatement(s.drv.Dialect(), ct.Table, "")
	h := stmt.Primary()
	if err := stmt.WhereAnd(sql.EQ(h.C(s.member.OwnerColumn), Param{Name: "owner"}), true); err != nil {
		return nil, nil, err
	}
	if d := s.discriminator(); d != nil {
		if err := stmt.WhereAnd(sql.EQ(h.C(d.Column), d.Value), true); err != nil {
			return nil, nil, err
		}
	}
	if from >= 0 {
		if err := stmt.WhereAnd(sql.GTE(h.C(s.member.OrderColumn), from), false); err != nil {
			return nil, nil, err
		}
	}
	if to >= 0 {
		if err := stmt.WhereAnd(sql.LT(h.C(s.member.OrderColumn), to), false); err != nil {
			return nil, nil, err
		}
	}
	return stmt, h, nil
}

// applyOrdering sets ORDER BY: the index column for indexed members, the
// member's declared ordering otherwise.
func (s *FKListStore) applyOrdering(stmt *SelectStatement, h *StatementTable) error {
	if s.member.Indexed {
		return stmt.SetOrdering([]string{h.C(s.member.OrderColumn)}, []bool{false})
	}
	if len(s.member.Ordering) == 0 {
		return nil
	}
	exprs := make([]string, len(s.member.Ordering))
	desc := make([]bool, len(s.member.Ordering))
	for i, o := range s.member.Ordering {
		exprs[i] = h.C(o.Field)
		desc[i] = o.Desc
	}
	return stmt.SetOrdering(exprs, desc)
}

// applyUnionOrdering sets ORDER BY on a polymorphic union root by the
// aliases the branches select their order expressions under.
func (s *FKListStore) applyUnionOrdering(root *SelectStatement) error {
	if s.member.Indexed {
		return root.SetOrdering([]string{"elem_order"}, []bool{false})
	}
	if len(s.member.Ordering) == 0 {
		return nil
	}
	exprs := make([]string, len(s.member.Ordering))
	desc := make([]bool, len(s.member.Ordering))
	for i, o := range s.member.Ordering {
		exprs[i] = fmt.Sprintf("elem_order_%d", i)
		desc[i] = o.Desc
	}
	return root.SetOrdering(exprs, desc)
}

// elementAt reads the element at one index, or nil when absent.
func (s *FKListStore) elementAt(ctx context.Context, owner any, index int64) (any, error) {
	elements, err := s.list(ctx, owner, index, index+1)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, nil
	}
	return elements[0], nil
}

// indexOf looks up the current index of one element row in the element's
// own component table.
func (s *FKListStore) indexOf(ctx context.Context, owner any, element any) (int64, bool, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return 0, false, err
	}
	id, err := s.ec.ID(element)
	if err != nil {
		return 0, false, err
	}
	args := append(s.membershipArgs(ownerID), id)
	text := s.indexOfText(s.componentOf(element))
	rows, err := queryRows(ctx, s.drv, text, args)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, false, quarry.NewDatastoreError(text, err)
		}
		return 0, false, nil
	}
	var idx int64
	if err := rows.Scan(&idx); err != nil {
		return 0, false, quarry.NewDatastoreError(text, err)
	}
	return idx, true, nil
}

// validateElementForWriting prepares one element for membership. New
// elements are persisted with the membership primed into the insert and
// need no follow-up write; the returned flag reports whether the element
// was already persistent and still needs its foreign key updated. An
// element that already belongs to a different owner is rejected unless it
// is mid-attach, in which case the reference is being re-established.
func (s *FKListStore) validateElementForWriting(ctx context.Context, owner any, element any, index int64) (bool, error) {
	if !s.ec.IsPersistent(element) {
		primer := &ValuePrimer{
			Member:  s.member.Name,
			Owner:   owner,
			Index:   index,
			Indexed: s.member.Indexed,
		}
		if d := s.discriminator(); d != nil {
			primer.Discriminator = d.Value
		}
		return false, s.ec.Persist(ctx, element, primer)
	}
	current, err := s.ec.CurrentOwner(element, s.member.Name)
	if err != nil {
		return false, err
	}
	if current != nil {
		same, err := s.sameEntity(current, owner)
		if err != nil {
			return false, err
		}
		if !same && !s.ec.IsAttaching(element) {
			return false, &quarry.InconsistentOwnerError{
				Member:  s.member.QualifiedName(),
				Element: fmt.Sprint(element),
				Owner:   fmt.Sprint(owner),
				Current: fmt.Sprint(current),
			}
		}
		if same {
			return true, nil
		}
	}
	// Repair the in-memory back-reference so the entity and the row agree.
	if err := s.ec.SetOwner(element, s.member.Name, owner); err != nil {
		return false, err
	}
	return true, nil
}

// sameEntity compares two managed entities by datastore identity.
func (s *FKListStore) sameEntity(a, b any) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	if !s.ec.IsPersistent(a) || !s.ec.IsPersistent(b) {
		return false, nil
	}
	aid, err := s.ec.ID(a)
	if err != nil {
		return false, err
	}
	bid, err := s.ec.ID(b)
	if err != nil {
		return false, err
	}
	return aid == bid, nil
}
