// Package sql provides SQL query building primitives and the database
// driver implementation used by the engine.
//
// It is the foundation for generating and executing parameterized SQL
// across different database systems (PostgreSQL, MySQL, SQLite) through a
// fluent API.
//
// # Builder Types
//
// The package provides specialized builders for different SQL operations:
//
//   - Builder: Low-level SQL string builder with identifier quoting
//   - Selector: SELECT query builder with joins, predicates, unions and pagination
//   - InsertBuilder: INSERT statement builder with RETURNING support
//   - UpdateBuilder: UPDATE statement builder with SET and WHERE clauses
//   - DeleteBuilder: DELETE statement builder with WHERE predicates
//
// # Dialect Support
//
// SQL generation adapts to the configured dialect:
//
//	import "github.com/quarryorm/quarry/dialect"
//
//	// PostgreSQL ($n placeholders, double-quoted identifiers)
//	sql.Dialect(dialect.Postgres).
//	    Select("id", "name").From(sql.Table("users")).
//	    Where(sql.EQ("status", "active"))
//
// # Predicates
//
//	sql.EQ("name", "john")           // name = ?
//	sql.GT("age", 18)                // age > ?
//	sql.In("status", "a", "b")       // status IN (?, ?)
//	sql.IsNull("deleted_at")         // deleted_at IS NULL
//	sql.And(p1, sql.Or(p2, p3))      // p1 AND (p2 OR p3)
//
// # Joins
//
//	users := sql.Table("users").As("u")
//	posts := sql.Table("posts").As("p")
//	sql.Select(users.C("name"), posts.C("title")).
//	    From(users).
//	    Join(posts).On(users.C("id"), posts.C("user_id"))
//
// # Driver
//
// Open returns a dialect.Driver backed by database/sql:
//
//	drv, err := sql.Open(dialect.SQLite, "file:quarry?mode=memory&cache=shared&_fk=1")
//
// NewStatsDriver and NewDebugDriver wrap a Driver with query statistics
// collection and statement logging.
package sql
