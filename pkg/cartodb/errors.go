package cartodb

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/cartodb-adapter/internal/executor/sqlapi"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

// Configuration errors, returned before any request is sent.
var (
	ErrNoAccount = sqlapi.ErrNoAccount
	ErrNoAPIKey  = sqlapi.ErrNoAPIKey
)

// Serialization errors.
var (
	ErrUnsupportedValue    = sqlgen.ErrUnsupportedValue
	ErrUnsupportedGeometry = sqlgen.ErrUnsupportedGeometry
	ErrNoColumns           = sqlgen.ErrNoColumns
)

var (
	ErrNotFound     = errors.New("cartodb: record not found")
	ErrCreateFailed = errors.New("cartodb: record was not created")
	ErrUpdateFailed = errors.New("cartodb: record was not updated")
	ErrDeleteFailed = errors.New("cartodb: record was not deleted")
)

// OpError describes a failed adapter operation.
type OpError struct {
	Op    string
	Table string
	ID    int64
	Err   error
}

func (e *OpError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %s id=%d: %v", e.Op, e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// rowCountError reports a write that did not affect exactly one row
func rowCountError(sentinel error, totalRows int) error {
	return fmt.Errorf("%w: %d rows affected", sentinel, totalRows)
}
