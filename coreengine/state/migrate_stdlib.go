package state

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// openStdlibPostgres opens a database/sql handle over pgx's stdlib
// compatibility driver, the bridge golang-migrate's postgres.WithInstance
// needs since it speaks database/sql rather than pgx's native pool API
// (pgxpool.Pool, used elsewhere in this package for the SQLBackend's own
// queries).
func openStdlibPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}
