// Package dialect provides the database dialect abstraction for Quarry.
//
// It defines the interfaces and types used for database-specific
// operations, allowing the engine to target multiple backends.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
// The Driver interface wraps all database operations:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface extends ExecQuerier with Commit and Rollback, and the
// ExecQuerier interface is the subset implemented by both Driver and Tx.
//
// # Usage
//
// Opening a database connection:
//
//	import (
//	    "github.com/quarryorm/quarry/dialect"
//	    "github.com/quarryorm/quarry/dialect/sql"
//	)
//
//	db, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Sub-packages
//
// The dialect package contains the following sub-packages:
//
//   - dialect/sql: SQL query builders and driver implementation
//   - dialect/sql/sqlgraph: relationship statement synthesis and backing stores
package dialect
