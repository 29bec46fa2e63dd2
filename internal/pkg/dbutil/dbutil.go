package dbutil

import (
	"github.com/jmoiron/sqlx"
)

// Finalize rebinds a query written with "?" placeholders to PostgreSQL's
// $n form. Filters are rendered with "?" so fragments can be concatenated
// before numbering.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}
