package services

import (
	"errors"

	"github.com/NREL/torc-sub002/internal/apierr"
)

// wrapDB passes typed errors through and wraps anything else as a
// DatabaseError.
func wrapDB(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apierr.Database(err)
}
