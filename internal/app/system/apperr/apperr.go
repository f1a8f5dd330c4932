// internal/app/system/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
	// KindInconsistency marks a failure after a committed mutation
	// (broadcast or cleanup). It is logged and never returned to a client.
	KindInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindInconsistency:
		return "inconsistency"
	default:
		return "internal"
	}
}

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Named codes for errors clients need to tell apart.
const (
	CodeTooManyFiles     = "TooManyFiles"
	CodeFileTooLarge     = "FileTooLarge"
	CodeUnsupportedType  = "UnsupportedType"
	CodeNotInvited       = "NotInvited"
	CodeAdminCannotLeave = "AdminCannotLeave"
	CodeNothingToDelete  = "NothingToDelete"
	CodeNotMember        = "NotMember"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string // optional named code
	Message string // client-facing message
	Err     error  // wrapped cause, not shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code when both carry one, otherwise by Kind
// and Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != "" || t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Upload limit and membership errors with fixed client-facing messages.
var (
	ErrTooManyFiles = &Error{Kind: KindValidation, Code: CodeTooManyFiles,
		Message: "You can upload a maximum of 10 images."}
	ErrFileTooLarge = &Error{Kind: KindValidation, Code: CodeFileTooLarge,
		Message: "File size too large. Max allowed size per image is 1MB."}
	ErrUnsupportedType = &Error{Kind: KindValidation, Code: CodeUnsupportedType,
		Message: "Invalid file type. Only JPEG, PNG, WebP, and HEIF are allowed."}
	ErrNotInvited = &Error{Kind: KindNotFound, Code: CodeNotInvited,
		Message: "Invitation not found"}
	ErrAdminCannotLeave = &Error{Kind: KindConflict, Code: CodeAdminCannotLeave,
		Message: "Group admin cannot leave the group"}
	ErrNothingToDelete = &Error{Kind: KindNotFound, Code: CodeNothingToDelete,
		Message: "No images found to delete"}
	ErrNotMember = &Error{Kind: KindNotFound, Code: CodeNotMember,
		Message: "You are not a member of this group"}
)

// Validation returns a 400 error.
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

// Unauthorized returns a 401 error.
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

// Forbidden returns a 403 error.
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// NotFound returns a 404 error.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Conflict returns a 409 error.
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Upstream wraps a failed document store or object store call.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Inconsistency wraps a failure that happened after a committed mutation.
func Inconsistency(msg string, err error) *Error {
	return &Error{Kind: KindInconsistency, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Public returns the status and message safe to send to a client.
// Unclassified and server-side errors get a generic message.
func Public(err error) (int, string) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "Internal server error"
	}
	status := e.Kind.Status()
	if status >= 500 {
		if e.Message != "" && e.Kind == KindUpstream {
			return status, e.Message
		}
		return status, "Internal server error"
	}
	return status, e.Message
}
