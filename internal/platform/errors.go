package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds drive retry policy: transient failures go back to the queue
// with backoff, credential and permanent failures fail the post outright.
const (
	KindTransient  = "transient"
	KindCredential = "credential"
	KindPermanent  = "permanent"
)

// Error is a classified platform failure.
type Error struct {
	Kind    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, Cause: cause}
}

func Credential(message string, cause error) *Error {
	return &Error{Kind: KindCredential, Message: message, Cause: cause}
}

func Permanent(message string, cause error) *Error {
	return &Error{Kind: KindPermanent, Message: message, Cause: cause}
}

// KindOf classifies any error. Unclassified errors count as transient so
// the queue retries them; a wrong guess here costs a few extra attempts,
// never a lost post.
func KindOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsCredential reports whether the error is a credential-class failure.
func IsCredential(err error) bool {
	return KindOf(err) == KindCredential
}

// classifyStatus maps an HTTP response code from a platform API onto the
// error taxonomy.
func classifyStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindCredential
	case code == http.StatusTooManyRequests || code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// statusError builds a classified error from a non-2xx platform response,
// preserving the platform's message verbatim for the post's error_message.
func statusError(code int, body string) *Error {
	return &Error{
		Kind:    classifyStatus(code),
		Message: fmt.Sprintf("platform returned %d: %s", code, body),
	}
}
