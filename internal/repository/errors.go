// Package repository holds the MySQL implementations of the principal,
// tenant and plan stores.  Lookups that find nothing return the model
// package's not-found errors so higher layers never see sql.ErrNoRows.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicate reports a unique key violation.
func isDuplicate(err error) bool { return mysqlCode(err) == errDuplicateEntry }

// isMissingRef reports a foreign key pointing at a row that does not exist.
func isMissingRef(err error) bool { return mysqlCode(err) == errNoReferencedRow }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
