package authflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrInvalidIdentity, KindValidation},
		{ErrOTPMismatch, KindValidation},
		{ErrInvalidOrExpiredToken, KindNotFound},
		{ErrOTPNotFound, KindNotFound},
		{ErrVerificationRequired, KindNotFound},
		{ErrNoPendingFlow, KindNotFound},
		{ErrUserNotFound, KindNotFound},
		{ErrOTPExpired, KindExpired},
		{ErrAccountExists, KindConflict},
		{fmt.Errorf("%w: smtp down", ErrDeliveryFailed), KindUpstream},
		{fmt.Errorf("%w: dial tcp", ErrOTPStoreUnavailable), KindUpstream},
		{ErrLoginRateLimited, KindRateLimited},
		{ErrUnauthorized, KindUnauthorized},
		{errors.New("something else"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestEverySentinelHasKind(t *testing.T) {
	for _, entry := range errorKinds {
		if entry.kind == KindUnknown {
			t.Fatalf("sentinel %v has no kind", entry.err)
		}
	}
}

func TestVerifyResultErr(t *testing.T) {
	if VerifyValid.Err() != nil {
		t.Fatal("expected nil error for valid")
	}
	if !errors.Is(VerifyNotFound.Err(), ErrOTPNotFound) {
		t.Fatal("expected ErrOTPNotFound")
	}
	if VerifyMismatch.String() != "mismatch" {
		t.Fatalf("unexpected string %q", VerifyMismatch.String())
	}
}

func TestStoreErrorMapping(t *testing.T) {
	if err := mapUserStoreError(errors.New("conn reset")); !errors.Is(err, ErrUserStoreUnavailable) {
		t.Fatalf("expected ErrUserStoreUnavailable, got %v", err)
	}
	if err := mapUserStoreError(ErrAccountExists); err != ErrAccountExists {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if err := mapUserStoreError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error passthrough, got %v", err)
	}
	if err := mapOTPStoreError(errors.New("redis down")); !errors.Is(err, ErrOTPStoreUnavailable) {
		t.Fatalf("expected ErrOTPStoreUnavailable, got %v", err)
	}
}

func TestUserStoreOutageSurfacesAsUpstream(t *testing.T) {
	env := newTestEnv(t, false)
	env.users.failWith = errors.New("connection refused")

	err := env.engine.RequestRegistrationOTP(context.Background(), registrationRequest("ada@example.com"))
	if !errors.Is(err, ErrUserStoreUnavailable) || KindOf(err) != KindUpstream {
		t.Fatalf("expected ErrUserStoreUnavailable, got %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatal("expected no delivery when the user store is down")
	}
}
