package sqlgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quarryorm/quarry"
	"github.com/quarryorm/quarry/schema"
)

// tagsMember is an indexed join-table list with inline string elements.
func tagsMember() *schema.Member {
	return &schema.Member{
		Owner:         "Book",
		Name:          "tags",
		Kind:          schema.KindList,
		Strategy:      schema.JoinTable,
		Embedded:      true,
		Indexed:       true,
		Table:         "book_tags",
		OwnerColumn:   "book_id",
		ElementColumn: "tag",
		OrderColumn:   "idx",
	}
}

func joinArrayFixture(t *testing.T) (*JoinArrayStore, sqlmock.Sqlmock, *testEntityContext) {
	t.Helper()
	reg := NewRegistry()
	jt, err := NewJoinTable(tagsMember())
	require.NoError(t, err)
	require.NoError(t, reg.AddJoin(jt))

	drv, mock := mockDriver(t)
	ec := newTestEntityContext()
	store, err := NewJoinArrayStore(drv, reg, tagsMember(), ec, ec.rowFactory)
	require.NoError(t, err)
	return store, mock, ec
}

func TestJoinArrayStore_Add(t *testing.T) {
	store, mock, ec := joinArrayFixture(t)
	book := ec.managed(1, "book", nil)

	mock.ExpectQuery("SELECT COUNT(*) FROM `book_tags` WHERE `book_id` = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectExec("INSERT INTO `book_tags` (`book_id`, `tag`, `idx`) VALUES (?, ?, ?)").
		WithArgs(int64(1), "go", int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `book_tags` (`book_id`, `tag`, `idx`) VALUES (?, ?, ?)").
		WithArgs(int64(1), "sql", int64(3)).
		WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, store.Add(context.Background(), book, "go", "sql"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinArrayStore_RemoveAllClosesGap(t *testing.T) {
	store, mock, ec := joinArrayFixture(t)
	book := ec.managed(1, "book", nil)

	mock.ExpectQuery("SELECT `idx` FROM `book_tags` WHERE `book_id` = ? AND `tag` = ?").
		WithArgs(int64(1), "go").
		WillReturnRows(sqlmock.NewRows([]string{"idx"}).AddRow(int64(1)))
	mock.ExpectExec("DELETE FROM `book_tags` WHERE `book_id` = ? AND `idx` = ?").
		WithArgs(int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `book_tags` SET `idx` = `idx` + ? WHERE `book_id` = ? AND `idx` > ?").
		WithArgs(int64(-1), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RemoveAll(context.Background(), book, "go"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinArrayStore_Clear(t *testing.T) {
	store, mock, ec := joinArrayFixture(t)
	book := ec.managed(1, "book", nil)

	mock.ExpectExec("DELETE FROM `book_tags` WHERE `book_id` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.Clear(context.Background(), book))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinArrayStore_List(t *testing.T) {
	store, mock, ec := joinArrayFixture(t)
	book := ec.managed(1, "book", nil)

	mock.ExpectQuery("SELECT `book_tags`.`tag` FROM `book_tags` WHERE `book_tags`.`book_id` = ? ORDER BY `book_tags`.`idx`").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"tag"}).AddRow("go").AddRow("sql"))

	tags, err := store.List(context.Background(), book)
	require.NoError(t, err)
	assert.Equal(t, []any{"go", "sql"}, tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

// notesMember stores its elements msgpack-encoded in a single column.
func notesMember() *schema.Member {
	return &schema.Member{
		Owner:         "Book",
		Name:          "notes",
		Kind:          schema.KindList,
		Strategy:      schema.JoinTable,
		Serialized:    true,
		Table:         "book_notes",
		OwnerColumn:   "book_id",
		ElementColumn: "payload",
	}
}

func TestJoinArrayStore_SerializedElements(t *testing.T) {
	reg := NewRegistry()
	jt, err := NewJoinTable(notesMember())
	require.NoError(t, err)
	require.NoError(t, reg.AddJoin(jt))

	drv, mock := mockDriver(t)
	ec := newTestEntityContext()
	store, err := NewJoinArrayStore(drv, reg, notesMember(), ec, ec.rowFactory)
	require.NoError(t, err)
	book := ec.managed(1, "book", nil)

	payload, err := msgpack.Marshal("hello")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO `book_notes` (`book_id`, `payload`) VALUES (?, ?)").
		WithArgs(int64(1), payload).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Add(context.Background(), book, "hello"))

	mock.ExpectQuery("SELECT `book_notes`.`payload` FROM `book_notes` WHERE `book_notes`.`book_id` = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	notes, err := store.List(context.Background(), book)
	require.NoError(t, err)
	assert.Equal(t, []any{"hello"}, notes)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A duplicate-key failure surfaces as a constraint violation wrapped in
// the datastore error, matchable through the whole chain.
func TestJoinArrayStore_AddConstraintViolation(t *testing.T) {
	store, mock, ec := joinArrayFixture(t)
	book := ec.managed(1, "book", nil)

	driverErr := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-2' for key 'PRIMARY'"}
	mock.ExpectQuery("SELECT COUNT(*) FROM `book_tags` WHERE `book_id` = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectExec("INSERT INTO `book_tags` (`book_id`, `tag`, `idx`) VALUES (?, ?, ?)").
		WithArgs(int64(1), "go", int64(2)).
		WillReturnError(driverErr)

	err := store.Add(context.Background(), book, "go")
	require.Error(t, err)
	assert.True(t, quarry.IsDatastore(err))
	assert.True(t, IsConstraintError(err))
	assert.True(t, IsUniqueConstraintError(err))
	var ce *ConstraintError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, driverErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func joinMapFixture(t *testing.T) (*JoinMapStore, sqlmock.Sqlmock, *testEntityContext) {
	t.Helper()
	reg := NewRegistry()
	m := phonesMember()
	jt, err := NewJoinTable(m)
	require.NoError(t, err)
	require.NoError(t, reg.AddJoin(jt))

	drv, mock := mockDriver(t)
	ec := newTestEntityContext()
	store, err := NewJoinMapStore(drv, reg, m, ec, ec.rowFactory)
	require.NoError(t, err)
	return store, mock, ec
}

const (
	phonesUpdate = "UPDATE `person_phones` SET `phone_number` = ? WHERE `person_id` = ? AND `phone_type` = ?"
	phonesInsert = "INSERT INTO `person_phones` (`person_id`, `phone_type`, `phone_number`) VALUES (?, ?, ?)"
	phonesGet    = "SELECT `phone_number` FROM `person_phones` WHERE `person_id` = ? AND `phone_type` = ?"
	phonesDelete = "DELETE FROM `person_phones` WHERE `person_id` = ? AND `phone_type` = ?"
)

func TestJoinMapStore_PutInsertsNewKey(t *testing.T) {
	store, mock, ec := joinMapFixture(t)
	person := ec.managed(1, "neta", nil)

	mock.ExpectExec(phonesUpdate).
		WithArgs("555", int64(1), "home").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(phonesInsert).
		WithArgs(int64(1), "home", "555").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Put(context.Background(), person, "home", "555"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMapStore_PutOverwritesExistingKey(t *testing.T) {
	store, mock, ec := joinMapFixture(t)
	person := ec.managed(1, "neta", nil)

	mock.ExpectExec(phonesUpdate).
		WithArgs("777", int64(1), "home").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Put(context.Background(), person, "home", "777"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMapStore_Get(t *testing.T) {
	store, mock, ec := joinMapFixture(t)
	person := ec.managed(1, "neta", nil)

	mock.ExpectQuery(phonesGet).
		WithArgs(int64(1), "home").
		WillReturnRows(sqlmock.NewRows([]string{"phone_number"}).AddRow("555"))

	v, ok, err := store.Get(context.Background(), person, "home")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "555", v)

	mock.ExpectQuery(phonesGet).
		WithArgs(int64(1), "work").
		WillReturnRows(sqlmock.NewRows([]string{"phone_number"}))

	_, ok, err = store.Get(context.Background(), person, "work")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMapStore_RemoveReturnsOldValue(t *testing.T) {
	store, mock, ec := joinMapFixture(t)
	person := ec.managed(1, "neta", nil)

	mock.ExpectQuery(phonesGet).
		WithArgs(int64(1), "home").
		WillReturnRows(sqlmock.NewRows([]string{"phone_number"}).AddRow("555"))
	mock.ExpectExec(phonesDelete).
		WithArgs(int64(1), "home").
		WillReturnResult(sqlmock.NewResult(0, 1))

	old, ok, err := store.Remove(context.Background(), person, "home")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "555", old)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMapStore_RemoveMissingKey(t *testing.T) {
	store, mock, ec := joinMapFixture(t)
	person := ec.managed(1, "neta", nil)

	mock.ExpectQuery(phonesGet).
		WithArgs(int64(1), "fax").
		WillReturnRows(sqlmock.NewRows([]string{"phone_number"}))

	_, ok, err := store.Remove(context.Background(), person, "fax")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMapStore_Entries(t *testing.T) {
	store, mock, ec := joinMapFixture(t)
	person := ec.managed(1, "neta", nil)

	mock.ExpectQuery("SELECT `person_phones`.`phone_type`, `person_phones`.`phone_number` FROM `person_phones` WHERE `person_phones`.`person_id` = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"phone_type", "phone_number"}).
			AddRow("home", "555").
			AddRow("work", "777"))

	entries, err := store.Entries(context.Background(), person)
	require.NoError(t, err)
	assert.Equal(t, []MapEntry{{Key: "home", Value: "555"}, {Key: "work", Value: "777"}}, entries)

	mock.ExpectQuery("SELECT `person_phones`.`phone_type`, `person_phones`.`phone_number` FROM `person_phones` WHERE `person_phones`.`person_id` = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"phone_type", "phone_number"}).
			AddRow("home", "555"))

	keys, err := store.Keys(context.Background(), person)
	require.NoError(t, err)
	assert.Equal(t, []any{"home"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}
