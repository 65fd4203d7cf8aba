package platform

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfClassifiedErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Transient("rate limited", nil), KindTransient},
		{Credential("token revoked", nil), KindCredential},
		{Permanent("content rejected", nil), KindPermanent},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v): expected %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	if got := KindOf(errors.New("connection reset")); got != KindTransient {
		t.Fatalf("unclassified errors must retry, got kind %s", got)
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("publish twitter post: %w", Credential("grant revoked", nil))
	if got := KindOf(wrapped); got != KindCredential {
		t.Fatalf("expected credential through wrapping, got %s", got)
	}
	if !IsCredential(wrapped) {
		t.Fatal("IsCredential should see through wrapping")
	}
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Transient("platform unreachable", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause should survive errors.Is")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusUnauthorized, KindCredential},
		{http.StatusForbidden, KindCredential},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusBadRequest, KindPermanent},
		{http.StatusUnprocessableEntity, KindPermanent},
	}
	for _, tc := range tests {
		if got := classifyStatus(tc.code); got != tc.want {
			t.Fatalf("classifyStatus(%d): expected %s, got %s", tc.code, tc.want, got)
		}
	}
}

func TestStatusErrorKeepsPlatformMessage(t *testing.T) {
	err := statusError(http.StatusUnauthorized, "invalid_token")
	if KindOf(err) != KindCredential {
		t.Fatalf("expected credential kind, got %s", KindOf(err))
	}
	if msg := err.Error(); msg == "" || !errors.As(err, new(*Error)) {
		t.Fatalf("unexpected error shape: %q", msg)
	}
}
