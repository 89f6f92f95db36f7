// Package postgres implements the persistence interfaces against
// PostgreSQL. It holds the task store used for write-through status
// persistence and crash recovery, plus the mapping from driver errors to
// the store error taxonomy.
package postgres
