package pipeline

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/pubmed"
	"github.com/fyrsmithlabs/medrag/internal/sanitize"
)

// ErrorKind is the stable name of a failure class, shared by the CLI exit
// codes, HTTP statuses and worker replies.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindNotFound          ErrorKind = "not_found"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindMalformedRecord   ErrorKind = "malformed_record"
	KindAuthentication    ErrorKind = "authentication"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUnavailable       ErrorKind = "unavailable"
	KindCanceled          ErrorKind = "canceled"
	KindInternal          ErrorKind = "internal"
)

// Classify returns the failure class of err. Input errors win over provider
// errors when both are present.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, pubmed.ErrEmailRequired),
		errors.Is(err, sanitize.ErrPathTraversal), errors.Is(err, sanitize.ErrEmptyPath):
		return KindInvalidRequest
	case errors.Is(err, loader.ErrNotFound):
		return KindNotFound
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, loader.ErrMalformedRecord):
		return KindMalformedRecord
	case errors.Is(err, apierr.ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, apierr.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, apierr.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindInternal
}
