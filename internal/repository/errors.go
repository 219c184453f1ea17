// Package repository defines the persistence contract used by the
// reservation engine and its MySQL implementation.  The sentinel values
// below let higher layers distinguish missing rows and uniqueness
// violations without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by UserRepo.Create on a duplicate email.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicate is returned when an insert hits a unique key.
var ErrDuplicate = errors.New("duplicate")

// MySQL error numbers that make a transaction worth retrying.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
	}
	return false
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
