package store

import (
	"errors"
	"fmt"

	"github.com/mcclellann/loandesk/pkg/apperr"
)

// AppError classifies a storage error about the named subject into the
// engine's failure kinds. ErrNotFound becomes NotFound, ErrConflict becomes
// Conflict, anything else is a transient I/O failure.
func AppError(err error, subjectFormat string, args ...any) error {
	subject := fmt.Sprintf(subjectFormat, args...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("%s not found", subject)
	case errors.Is(err, ErrConflict):
		return apperr.Conflict(err, "%s conflicts with existing data", subject)
	default:
		return apperr.Transient(err, "store failure on %s", subject)
	}
}
