package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsConstraintError_Postgres(t *testing.T) {
	unique := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	fk := &pq.Error{Code: "23503", Message: "insert or update violates foreign key constraint"}
	check := &pq.Error{Code: "23514", Message: "new row violates check constraint"}

	assert.True(t, IsUniqueConstraintError(unique))
	assert.False(t, IsForeignKeyConstraintError(unique))

	assert.True(t, IsForeignKeyConstraintError(fk))
	assert.False(t, IsUniqueConstraintError(fk))

	assert.True(t, IsCheckConstraintError(check))
	assert.False(t, IsUniqueConstraintError(check))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("exec insert: %w", unique)
	assert.True(t, IsConstraintError(wrapped))
	assert.True(t, IsUniqueConstraintError(wrapped))
}

func TestIsConstraintError_MySQL(t *testing.T) {
	unique := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a' for key 'users.email'"}
	fkParent := &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"}
	fkChild := &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}
	check := &mysql.MySQLError{Number: 3819, Message: "Check constraint 'age_chk' is violated"}

	assert.True(t, IsUniqueConstraintError(unique))
	assert.True(t, IsForeignKeyConstraintError(fkParent))
	assert.True(t, IsForeignKeyConstraintError(fkChild))
	assert.True(t, IsCheckConstraintError(check))

	assert.False(t, IsForeignKeyConstraintError(unique))
	assert.False(t, IsUniqueConstraintError(fkChild))

	wrapped := fmt.Errorf("exec insert: %w", fkChild)
	assert.True(t, IsConstraintError(wrapped))
}

func TestIsConstraintError_SQLite(t *testing.T) {
	unique := errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")
	fk := errors.New("constraint failed: FOREIGN KEY constraint failed (787)")
	check := errors.New("constraint failed: CHECK constraint failed: age_chk (275)")

	assert.True(t, IsUniqueConstraintError(unique))
	assert.True(t, IsForeignKeyConstraintError(fk))
	assert.True(t, IsCheckConstraintError(check))
}

func TestConstraintError_Wrap(t *testing.T) {
	cause := &pq.Error{Code: "23505", Message: "duplicate key"}
	err := NewConstraintError("unique", cause)

	assert.EqualError(t, err, "sqlgraph: constraint violation: unique: pq: duplicate key")
	assert.True(t, IsConstraintError(err))
	assert.ErrorIs(t, err, cause)

	var pqe *pq.Error
	assert.True(t, errors.As(err, &pqe))
}

func TestClassifyConstraint(t *testing.T) {
	var ce *ConstraintError

	err := classifyConstraint(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})
	assert.True(t, errors.As(err, &ce))
	assert.True(t, IsForeignKeyConstraintError(err))

	err = classifyConstraint(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.True(t, errors.As(err, &ce))
	assert.True(t, IsUniqueConstraintError(err))

	plain := errors.New("dial tcp: connection refused")
	assert.Same(t, plain, classifyConstraint(plain))
	assert.Nil(t, classifyConstraint(nil))
}

func TestIsConstraintError_Unrelated(t *testing.T) {
	err := errors.New("dial tcp: connection refused")
	assert.False(t, IsConstraintError(err))
	assert.False(t, IsUniqueConstraintError(err))
	assert.False(t, IsForeignKeyConstraintError(err))
	assert.False(t, IsCheckConstraintError(err))
	assert.False(t, IsConstraintError(nil))
}
