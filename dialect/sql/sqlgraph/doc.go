// Package sqlgraph synthesizes SQL for relationship members and backs
// their collection and map values with stateless stores.
//
// The statement layer builds SELECTs incrementally: tables join in under
// stable aliases, conditions accumulate with owner restrictions first,
// and the statement renders exactly once. Expressions created by the
// ExprFactory compose into predicates without touching the statement, and
// the KEY and get method resolvers translate map access into joins or
// correlated subqueries depending on the storage strategy and the clause
// the result lands in.
//
// The store layer moves collection and map contents in and out of the
// database. FKListStore works against a foreign key on the element table;
// JoinArrayStore and JoinMapStore work against a dedicated join table.
// Stores cache statement text per operation and assemble arguments per
// call, calling back into an EntityContext for entity lifecycle concerns.
package sqlgraph
