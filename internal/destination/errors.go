package destination

import (
	"errors"
	"strings"

	"go-datasync/internal/syncerr"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// IsMissingColumn reports whether err is a database error caused by a column
// that does not exist in the target table.
func IsMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42703"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1054
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such column") || strings.Contains(msg, "has no column named")
}

func wrapWriteError(table string, err error) error {
	if err == nil {
		return nil
	}
	if IsMissingColumn(err) {
		return &syncerr.TableShapeError{Table: table, Err: err}
	}
	return err
}
