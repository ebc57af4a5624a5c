// Package sqlxrepos implements the storage repositories on PostgreSQL
// via jmoiron/sqlx. All aggregate-touching mutations run in a single
// transaction, locking ancestor rows child to root so concurrent chain
// walks queue up in a consistent order.
package sqlxrepos

import (
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/askuphq/askup/core"
)

const pgUniqueViolation = "23505"

// uniqueViolation reports whether err is a unique constraint violation,
// optionally on one of the named constraints.
func uniqueViolation(err error, constraints ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != pgUniqueViolation {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if pqErr.Constraint == c {
			return true
		}
	}
	return false
}

// ext returns the executor to run queries on: the optional override when
// one is given (internal chaining passes *sqlx.Tx), the pool otherwise.
func ext(db *sqlx.DB, exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 {
		if e, ok := exec[0].(sqlx.ExtContext); ok {
			return e
		}
	}
	return db
}
