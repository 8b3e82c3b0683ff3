package tus

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/sjqzhang/tusd"
)

var (
	ErrAuthRequired        = tusd.NewHTTPError(errors.New("Authentication required"), http.StatusUnauthorized)
	ErrAccessDenied        = tusd.NewHTTPError(errors.New("access denied"), http.StatusForbidden)
	ErrExtensionNotAllowed = tusd.NewHTTPError(errors.New("file extension not allowed"), http.StatusBadRequest)
	ErrReservedMetadata    = tusd.NewHTTPError(errors.New("metadata keys starting with "+reservedPrefix+" are reserved"), http.StatusBadRequest)
	ErrInsufficientStorage = tusd.NewHTTPError(errors.New("not enough free space for upload"), http.StatusInsufficientStorage)
	ErrMissingPrincipal    = tusd.NewHTTPError(errors.New("upload created without principal"), http.StatusInternalServerError)

	ErrDuplicatesExhausted = errors.New("no free destination name left")
	ErrInvalidOwner        = errors.New("owner id cannot name a directory")

	errReadTimeout     = errors.New("read tcp: i/o timeout")
	errConnectionReset = errors.New("read tcp: connection reset by peer")
)

func isNotFound(err error) bool {
	return errors.Is(err, tusd.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
