// Package store provides the data-persistence abstractions shared by the
// storage backends: the DBTX interface implemented by both *sql.DB and
// *sql.Tx, and the common error taxonomy.
package store
