package docstore

import "errors"

var (
	ErrInvalidPath = errors.New("docstore: invalid path")
	// ErrTransactionConflict means a concurrent write touched the same documents. The
	// whole transaction can be retried.
	ErrTransactionConflict = errors.New("docstore: transaction conflict")
	ErrReadAfterWrite      = errors.New("docstore: transaction reads must precede writes")
	ErrClosed              = errors.New("docstore: store closed")
	ErrInvalidQuery        = errors.New("docstore: invalid query")
)
