package sqlgraph

import (
	"context"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/dialect"
	"github.com/quarryorm/quarry/dialect/sql"
	"github.com/quarryorm/quarry/schema"
)

// MapEntry is one key/value pair of a map member.
type MapEntry struct {
	Key   any
	Value any
}

// JoinMapStore backs a map member materialized in a dedicated join table:
// one row per (owner, key) with the value alongside. Keys and values may
// be inline scalars or references to persistable types.
type JoinMapStore struct {
	drv        dialect.Driver
	member     *schema.Member
	jt         *JoinTable
	keyClass   *ClassTable // nil for inline keys
	valueClass *ClassTable // nil for inline values
	ec         EntityContext
	rows       RowFactory
	valueKind  elementKind

	insertStmt quarry.StmtText
	updateStmt quarry.StmtText
	deleteStmt quarry.StmtText
	getStmt    quarry.StmtText
	clearStmt  quarry.StmtText
	sizeStmt   quarry.StmtText
	listStmt   quarry.StmtText
}

// NewJoinMapStore returns the store for a join-table mapped map member.
func NewJoinMapStore(drv dialect.Driver, reg *Registry, m *schema.Member, ec EntityContext, rows RowFactory) (*JoinMapStore, error) {
	if m.Strategy != schema.JoinTable || m.Kind != schema.KindMap {
		return nil, quarry.NewUsageError("joinmap.new", m.QualifiedName(), "member is not a join-table map")
	}
	jt, ok := reg.Join(m)
	if !ok {
		return nil, quarry.NewUsageError("joinmap.new", m.QualifiedName(), "no join table registered")
	}
	s := &JoinMapStore{drv: drv, member: m, jt: jt, ec: ec, rows: rows}
	if m.Key != "" {
		if kc, ok := reg.Class(m.Key); ok {
			s.keyClass = kc
		}
	}
	switch {
	case m.Serialized:
		s.valueKind = elementSerialized
	case m.Embedded:
		s.valueKind = elementEmbedded
	default:
		if m.Element != "" {
			if vc, ok := reg.Class(m.Element); ok {
				s.valueClass = vc
				s.valueKind = elementPersistable
				break
			}
		}
		s.valueKind = elementEmbedded
	}
	return s, nil
}

func (s *JoinMapStore) keyMapping() *TypeMapping {
	m, _ := s.jt.Mapping(RoleKey)
	return m
}

func (s *JoinMapStore) valueMapping() *TypeMapping {
	m, _ := s.jt.Mapping(RoleValue)
	return m
}

// encodeKey converts a key to its column argument. Persistable keys are
// stored by identity.
func (s *JoinMapStore) encodeKey(k any) (any, error) {
	if s.keyClass != nil {
		return s.ec.ID(k)
	}
	args, err := s.keyMapping().Values(k)
	if err != nil {
		return nil, err
	}
	return args[0], nil
}

// encodeValue converts a value to its column argument.
func (s *JoinMapStore) encodeValue(v any) (any, error) {
	args, err := encodeElement(s.ec, s.valueKind, s.valueMapping(), v)
	if err != nil {
		return nil, err
	}
	return args[0], nil
}

// insertText renders the entry insert.
// Argument order: owner, key, value, [discriminator].
func (s *JoinMapStore) insertText() string {
	return s.insertStmt.MustGet(func() string {
		cols := []string{s.member.OwnerColumn, s.member.KeyColumn, s.member.ValueColumn}
		vals := []any{nil, nil, nil}
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

// updateText renders the in-place value overwrite of one entry.
// Argument order: value, owner, [discriminator], key.
func (s *JoinMapStore) updateText() string {
	return s.updateStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Update(s.jt.Name()).
			Set(s.member.ValueColumn, nil).
			Where(sql.And(s.membershipPred(), sql.EQ(s.member.KeyColumn, nil))).
			Query()
		return text
	})
}

// deleteText renders the entry delete by key.
// Argument order: owner, [discriminator], key.
func (s *JoinMapStore) deleteText() string {
	return s.deleteStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Delete(s.jt.Name()).
			Where(sql.And(s.membershipPred(), sql.EQ(s.member.KeyColumn, nil))).
			Query()
		return text
	})
}

// getText renders the value lookup by key.
// Argument order: owner, [discriminator], key.
func (s *JoinMapStore) getText() string {
	return s.getStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Select(s.member.ValueColumn).
			From(sql.Table(s.jt.Name())).
			Where(sql.And(s.membershipPred(), sql.EQ(s.member.KeyColumn, nil))).
			Query()
		return text
	})
}

// clearText renders the bulk entry delete of one owner.
// Argument order: owner, [discriminator].
func (s *JoinMapStore) clearText() string {
	return s.clearStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Delete(s.jt.Name()).
			Where(s.membershipPred()).
			Query()
		return text
	})
}

// sizeText renders the entry count of one owner.
// Argument order: owner, [discriminator].
func (s *JoinMapStore) sizeText() string {
	return s.sizeStmt.MustGet(func() string {
		text, _ := sql.Dialect(s.drv.Dialect()).
			Select(sql.Count("*")).
			From(sql.Table(s.jt.Name())).
			Where(s.membershipPred()).
			Query()
		return text
	})
}

func (s *JoinMapStore) membershipPred() *sql.Predicate {
	p := sql.EQ(s.member.OwnerColumn, nil)
	if d := s.member.Discriminator; d != nil {
		p = sql.And(p, sql.EQ(d.Column, nil))
	}
	return p
}

func (s *JoinMapStore) membershipArgs(ownerID any) []any {
	args := []any{ownerID}
	if d := s.member.Discriminator; d != nil {
		args = append(args, d.Value)
	}
	return args
}

// Size returns the number of entries the owner currently holds.
func (s *JoinMapStore) Size(ctx context.Context, owner any) (int64, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return 0, err
	}
	return queryCount(ctx, s.drv, s.sizeText(), s.membershipArgs(ownerID))
}

// Put writes one entry: an existing key's value is overwritten in place,
// a new key is inserted. Persistable values that are not yet persistent
// are persisted first.
func (s *JoinMapStore) Put(ctx context.Context, owner, key, value any) error {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	if s.valueKind == elementPersistable && !s.ec.IsPersistent(value) {
		if err := s.ec.Persist(ctx, value, nil); err != nil {
			return err
		}
	}
	kv, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	vv, err := s.encodeValue(value)
	if err != nil {
		return err
	}
	args := append([]any{vv}, s.membershipArgs(ownerID)...)
	args = append(args, kv)
	res, err := exec(ctx, s.drv, s.updateText(), args)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return quarry.NewDatastoreError(s.updateText(), err)
	}
	if affected > 0 {
		return nil
	}
	ins := []any{ownerID, kv, vv}
	if d := s.member.Discriminator; d != nil {
		ins = append(ins, d.Value)
	}
	_, err = exec(ctx, s.drv, s.insertText(), ins)
	return err
}

// Get returns the value of one key, with a flag reporting presence.
func (s *JoinMapStore) Get(ctx context.Context, owner, key any) (any, bool, error) {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return nil, false, err
	}
	kv, err := s.encodeKey(key)
	if err != nil {
		return nil, false, err
	}
	args := append(s.membershipArgs(ownerID), kv)
	text := s.getText()
	rows, err := queryRows(ctx, s.drv, text, args)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, quarry.NewDatastoreError(text, err)
		}
		return nil, false, nil
	}
	var raw any
	if err := rows.Scan(&raw); err != nil {
		return nil, false, quarry.NewDatastoreError(text, err)
	}
	if err := rows.Close(); err != nil {
		return nil, false, err
	}
	v, err := s.decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// decodeValue converts one value column back to the member value. The
// identity of a persistable value is returned as-is; the caller resolves
// the entity through the row factory or its own lookup.
func (s *JoinMapStore) decodeValue(raw any) (any, error) {
	if s.valueKind == elementPersistable {
		return s.valueMapping().Value([]any{raw})
	}
	return decodeElement(s.valueKind, s.valueMapping(), []any{raw})
}

// Remove deletes one entry and returns the previous value. Dependent
// members delete the value entity as well.
func (s *JoinMapStore) Remove(ctx context.Context, owner, key any) (any, bool, error) {
	old, ok, err := s.Get(ctx, owner, key)
	if err != nil || !ok {
		return nil, false, err
	}
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return nil, false, err
	}
	kv, err := s.encodeKey(key)
	if err != nil {
		return nil, false, err
	}
	args := append(s.membershipArgs(ownerID), kv)
	if _, err := exec(ctx, s.drv, s.deleteText(), args); err != nil {
		return nil, false, err
	}
	return old, true, nil
}

// Clear deletes every entry of the owner.
func (s *JoinMapStore) Clear(ctx context.Context, owner any) error {
	ownerID, err := s.ec.ID(owner)
	if err != nil {
		return err
	}
	_, err = exec(ctx, s.drv, s.clearText(), s.membershipArgs(ownerID))
	return err
}

// Entries returns the owner's entries. Keys and values of persistable
// types are returned as identities.
func (s *JoinMapStore) Entries(ctx context.Context, owner any) ([]MapEntry, error) {
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
	raw, err := scanValues(rows, 2)
	if err != nil {
		return nil, quarry.NewDatastoreError(text, err)
	}
	entries := make([]MapEntry, 0, len(raw))
	for _, cols := range raw {
		k, err := s.keyMapping().Value(cols[:1])
		if err != nil {
			return nil, err
		}
		v, err := s.decodeValue(cols[1])
		if err != nil {
			return nil, err
		}
		entries = append(entries, MapEntry{Key: k, Value: v})
	}
	return entries, nil
}

// Keys returns the owner's keys.
func (s *JoinMapStore) Keys(ctx context.Context, owner any) ([]any, error) {
	entries, err := s.Entries(ctx, owner)
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// buildList renders the entry iteration statement: key and value columns
// restricted to the owner.
func (s *JoinMapStore) buildList() (string, []any, error) {
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
	if err := stmt.SelectColumn(h, s.member.KeyColumn, ""); err != nil {
		return "", nil, err
	}
	if err := stmt.SelectColumn(h, s.member.ValueColumn, ""); err != nil {
		return "", nil, err
	}
	text, args := stmt.Query()
	return text, args, nil
}
