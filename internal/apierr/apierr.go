// Package apierr classifies failures from external APIs (embedding,
// generation, Entrez, S3) into a small set of sentinels that the CLI, HTTP
// API and worker map to exit codes and statuses.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrAuthentication indicates missing, invalid or unauthorized credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimited indicates the provider refused the call for quota or rate reasons.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable indicates the provider could not be reached or failed server-side.
	ErrUnavailable = errors.New("service unavailable")
)

// Error is a classified provider failure. errors.Is matches its Kind
// sentinel; errors.As exposes the provider details.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("request failed")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindForStatus maps an HTTP status code to a sentinel, or nil when the
// status does not belong to a retry/auth/availability class.
func KindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrAuthentication
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusRequestTimeout, code >= 500:
		return ErrUnavailable
	}
	return nil
}

// FromStatus builds a classified error from an HTTP response status.
func FromStatus(provider string, code int, message string) error {
	return &Error{
		Provider:   provider,
		StatusCode: code,
		Message:    strings.TrimSpace(message),
		Kind:       KindForStatus(code),
	}
}

// WithStatus classifies an SDK error that carries an HTTP status code,
// keeping err as the cause.
func WithStatus(provider string, code int, err error) error {
	kind := KindForStatus(code)
	if kind == nil {
		return err
	}
	return &Error{Provider: provider, StatusCode: code, Kind: kind, Err: err}
}

// statusCoder is implemented by smithy-go response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

// Classify wraps err with the sentinel that best describes it. Errors that
// are already classified, context cancellations and nil pass through
// unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return err
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() != 0 {
		if kind := KindForStatus(sc.HTTPStatusCode()); kind != nil {
			return &Error{Provider: provider, StatusCode: sc.HTTPStatusCode(), Kind: kind, Err: err}
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		if kind := kindForGRPC(st.Code()); kind != nil {
			return &Error{Provider: provider, Message: st.Message(), Kind: kind, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Provider: provider, Kind: ErrUnavailable, Err: err}
	}

	if kind := kindForMessage(err.Error()); kind != nil {
		return &Error{Provider: provider, Kind: kind, Err: err}
	}

	return err
}

func kindForGRPC(code codes.Code) error {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrAuthentication
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal:
		return ErrUnavailable
	}
	return nil
}

// kindForMessage catches SDKs that flatten status into the message text.
func kindForMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "resource exhausted"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "error 429"):
		return ErrRateLimited
	case strings.Contains(lower, "api key not valid"),
		strings.Contains(lower, "api_key_invalid"),
		strings.Contains(lower, "unauthenticated"),
		strings.Contains(lower, "permission_denied"),
		strings.Contains(lower, "error 401"),
		strings.Contains(lower, "error 403"):
		return ErrAuthentication
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "service unavailable"),
		strings.Contains(lower, "error 503"):
		return ErrUnavailable
	}
	return nil
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
