package sqlgraph

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/quarryorm/quarry/dialect"
	"github.com/quarryorm/quarry/dialect/sql"
)

// testEntity is the managed-entity stand-in the store tests use.
type testEntity struct {
	id          int64
	title       string
	typeName    string
	persistent  bool
	owner       any
	attaching   bool
	deleted     bool
	softDeleted bool
}

// testEntityContext records lifecycle calls so tests can assert on them.
type testEntityContext struct {
	nextID  int64
	byID    map[int64]*testEntity
	primers []*ValuePrimer
	deleted []*testEntity
	flushed []*testEntity
}

func newTestEntityContext() *testEntityContext {
	return &testEntityContext{nextID: 100, byID: make(map[int64]*testEntity)}
}

// managed registers a persistent entity under the given id.
func (c *testEntityContext) managed(id int64, title string, owner any) *testEntity {
	e := &testEntity{id: id, title: title, persistent: true, owner: owner}
	c.byID[id] = e
	return e
}

func (c *testEntityContext) ID(entity any) (any, error) {
	return entity.(*testEntity).id, nil
}

func (c *testEntityContext) TypeOf(entity any) string {
	return entity.(*testEntity).typeName
}

func (c *testEntityContext) IsPersistent(entity any) bool {
	return entity.(*testEntity).persistent
}

func (c *testEntityContext) Persist(_ context.Context, entity any, primer *ValuePrimer) error {
	e := entity.(*testEntity)
	e.id = c.nextID
	c.nextID++
	e.persistent = true
	if primer != nil {
		e.owner = primer.Owner
	}
	c.byID[e.id] = e
	c.primers = append(c.primers, primer)
	return nil
}

func (c *testEntityContext) CurrentOwner(entity any, _ string) (any, error) {
	return entity.(*testEntity).owner, nil
}

func (c *testEntityContext) SetOwner(entity any, _ string, owner any) error {
	entity.(*testEntity).owner = owner
	return nil
}

func (c *testEntityContext) IsAttaching(entity any) bool {
	return entity.(*testEntity).attaching
}

func (c *testEntityContext) IsSoftDeleted(entity any) bool {
	return entity.(*testEntity).softDeleted
}

func (c *testEntityContext) IsDeleted(entity any) bool {
	return entity.(*testEntity).deleted
}

func (c *testEntityContext) Delete(_ context.Context, entity any) error {
	e := entity.(*testEntity)
	e.deleted = true
	c.deleted = append(c.deleted, e)
	return nil
}

func (c *testEntityContext) FlushDelete(_ context.Context, entity any) error {
	c.flushed = append(c.flushed, entity.(*testEntity))
	return nil
}

// rowFactory materializes rows by looking the identity column up in the
// context's registry.
func (c *testEntityContext) rowFactory(cols []any) (any, error) {
	id, err := toInt64(cols[0])
	if err != nil {
		return nil, err
	}
	return c.byID[id], nil
}

// mockDriver returns a MySQL-flavored driver over an exact-match sqlmock.
func mockDriver(t *testing.T) (*sql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sql.OpenDB(dialect.MySQL, db), mock
}
