package repository

import "database/sql"

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside a service-owned transaction or standalone.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
