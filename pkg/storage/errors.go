package storage

import (
	"errors"
	"net/http"

	"github.com/rhuss/sense/pkg/api"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when an entry does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("entry not found")

	// ErrConflict is returned when an entry with the given ID already exists.
	ErrConflict = errors.New("entry already exists")

	// ErrNoMedia is returned when a media resource is requested for an entry
	// that has none.
	ErrNoMedia = errors.New("entry has no media resource")
)

// StatusError translates storage sentinels into status errors at the
// adapter boundary. Other errors are returned unchanged.
func StatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoMedia):
		return api.WrapStatusError(http.StatusNotFound, err.Error(), err)
	case errors.Is(err, ErrConflict):
		return api.WrapStatusError(http.StatusConflict, err.Error(), err)
	}
	return err
}
