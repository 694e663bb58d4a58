// Package errors holds the workflow's sentinel errors and the mapping
// from repo/infra errors to HTTP responses. Keeping the mapping here
// keeps the service layer clean.
package errors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// ErrStaleRecord means a conditional update lost an optimistic
// concurrency race; the caller's view of the record is outdated.
// Anticipated workflow conditions (quota, nothing pending) travel as
// result codes instead, since they are conversation outcomes rather
// than faults.
var ErrStaleRecord = errors.New("record changed concurrently")

// Is re-exports errors.Is so call sites only import one errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

// HTTPStatus maps an error to the response code the HTTP layer should
// use. Anticipated workflow conditions stay 200 at the handler level and
// never reach this mapper; what lands here is infra trouble.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrStaleRecord):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}
