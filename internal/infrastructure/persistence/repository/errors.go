package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// isForeignKeyViolation matches both insert-side FK failures and deletes
// blocked by ON DELETE RESTRICT, which sqlite reports as a trigger constraint.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// rowsAffected reports whether an UPDATE or DELETE matched at least one row
func rowsAffected(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
