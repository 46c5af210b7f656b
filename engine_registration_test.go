package authflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func registrationRequest(identity string) RegistrationRequest {
	return RegistrationRequest{
		Identity:    identity,
		DisplayName: "ada lovelace",
		Password:    "analytical-engine-1843",
	}
}

func TestRegistrationHappyPath(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest(" Ada@Example.com ")); err != nil {
			t.Fatalf("RequestRegistrationOTP failed: %v", err)
		}
		msg := env.notifier.last(t)
		if msg.To != "ada@example.com" {
			t.Fatalf("expected normalized recipient, got %q", msg.To)
		}
		if msg.Subject != "Verify Your Email - BalanceBuddy" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		if !strings.Contains(msg.TextBody, "2 minutes") {
			t.Fatalf("expected window in body, got %q", msg.TextBody)
		}
		if !strings.Contains(msg.HTMLBody, "Ada Lovelace") {
			t.Fatalf("expected title-cased name in html body")
		}

		code := env.notifier.lastCode(t)
		res, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", code)
		if err != nil || res != VerifyValid {
			t.Fatalf("expected valid, got %v err=%v", res, err)
		}
		// A valid verification keeps the entry.
		res, err = env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", code)
		if err != nil || res != VerifyValid {
			t.Fatalf("expected second verify valid, got %v err=%v", res, err)
		}

		session, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{})
		if err != nil {
			t.Fatalf("CompleteRegistration failed: %v", err)
		}
		if session.Token == "" || session.User.ID == "" {
			t.Fatalf("expected token and user, got %+v", session)
		}
		if session.User.DisplayName != "ada lovelace" {
			t.Fatalf("expected snapshot display name, got %q", session.User.DisplayName)
		}
		if !session.ExpiresAt.Equal(env.clock.Now().Add(time.Hour)) {
			t.Fatalf("expected 1h session, got %v", session.ExpiresAt)
		}

		user, ok := env.users.get("ada@example.com")
		if !ok {
			t.Fatal("expected durable user")
		}
		if user.PasswordHash == "analytical-engine-1843" || !strings.HasPrefix(user.PasswordHash, "$argon2id$") {
			t.Fatalf("expected argon2id hash, got %q", user.PasswordHash)
		}

		claims, err := env.engine.ValidateSession(ctx, session.Token)
		if err != nil {
			t.Fatalf("ValidateSession failed: %v", err)
		}
		if claims.UID != user.ID {
			t.Fatalf("expected uid %q, got %q", user.ID, claims.UID)
		}
	})
}

func TestRegistrationReissueInvalidatesPreviousCode(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
			t.Fatalf("first request failed: %v", err)
		}
		first := env.notifier.lastCode(t)

		second := first
		// Codes are random; retry until the reissue differs.
		for i := 0; second == first && i < 10; i++ {
			if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
				t.Fatalf("second request failed: %v", err)
			}
			second = env.notifier.lastCode(t)
		}
		if second == first {
			t.Fatal("could not obtain a distinct second code")
		}

		res, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", first)
		if err != nil || res != VerifyMismatch {
			t.Fatalf("expected mismatch for first code, got %v err=%v", res, err)
		}
		if !errors.Is(res.Err(), ErrOTPMismatch) {
			t.Fatalf("expected ErrOTPMismatch, got %v", res.Err())
		}
		res, err = env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", second)
		if err != nil || res != VerifyValid {
			t.Fatalf("expected second code valid, got %v err=%v", res, err)
		}
	})
}

func TestRegistrationWindowBoundary(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
			t.Fatalf("request failed: %v", err)
		}
		code := env.notifier.lastCode(t)

		env.clock.Advance(119 * time.Second)
		res, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", code)
		if err != nil || res != VerifyValid {
			t.Fatalf("expected valid at 119s, got %v err=%v", res, err)
		}

		env.clock.Advance(2 * time.Second)
		res, err = env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", code)
		if err != nil || res != VerifyExpired {
			t.Fatalf("expected expired at 121s, got %v err=%v", res, err)
		}

		res, err = env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", code)
		if err != nil || res != VerifyNotFound {
			t.Fatalf("expected not found after expiry purge, got %v err=%v", res, err)
		}
	})
}

func TestRegistrationCompleteTwice(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if _, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{}); err != nil {
			t.Fatalf("first completion failed: %v", err)
		}
		_, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{})
		if !errors.Is(err, ErrVerificationRequired) {
			t.Fatalf("expected ErrVerificationRequired, got %v", err)
		}
		if env.users.createCalls != 1 {
			t.Fatalf("expected one create call, got %d", env.users.createCalls)
		}
	})
}

func TestRegistrationCompleteWithoutRequest(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.engine.CompleteRegistration(context.Background(), "ada@example.com", RegistrationPayload{
		DisplayName: "Ada",
		Password:    "analytical-engine-1843",
	})
	if !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("expected ErrVerificationRequired, got %v", err)
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", KindOf(err))
	}
}

func TestRegistrationCompleteAfterWindowCloses(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
			t.Fatalf("request failed: %v", err)
		}
		env.clock.Advance(2*time.Minute + 10*time.Second)

		_, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{})
		if !errors.Is(err, ErrVerificationRequired) {
			t.Fatalf("expected ErrVerificationRequired, got %v", err)
		}
		if env.users.createCalls != 0 {
			t.Fatalf("expected no create call, got %d", env.users.createCalls)
		}
		if got := env.engine.MetricsSnapshot().Counters[MetricRegistrationUnverified]; got != 1 {
			t.Fatalf("expected unverified metric 1, got %d", got)
		}

		// The stale entry is gone, so verifying now reports not found.
		res, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", env.notifier.lastCode(t))
		if err != nil || res != VerifyNotFound {
			t.Fatalf("expected not found after purge, got %v err=%v", res, err)
		}
	})
}

func TestRegistrationPayloadOverridesSnapshot(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	session, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{
		DisplayName: "Augusta Ada King",
		Password:    "difference-engine-1822",
	})
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if session.User.DisplayName != "Augusta Ada King" {
		t.Fatalf("expected payload display name, got %q", session.User.DisplayName)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "difference-engine-1822"); err != nil {
		t.Fatalf("expected login with payload password, got %v", err)
	}
}

func TestRegistrationPayloadIdentityMismatch(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{Identity: "eve@example.com"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRegistrationResend(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		if err := env.engine.ResendRegistrationOTP(ctx, "ada@example.com"); !errors.Is(err, ErrNoPendingFlow) {
			t.Fatalf("expected ErrNoPendingFlow without prior request, got %v", err)
		}
		if env.notifier.count() != 0 {
			t.Fatalf("expected no delivery, got %d", env.notifier.count())
		}

		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
			t.Fatalf("request failed: %v", err)
		}
		env.clock.Advance(90 * time.Second)
		if err := env.engine.ResendRegistrationOTP(ctx, "ada@example.com"); err != nil {
			t.Fatalf("resend failed: %v", err)
		}
		msg := env.notifier.last(t)
		if msg.Subject != "New Verification Code - BalanceBuddy" {
			t.Fatalf("unexpected resend subject %q", msg.Subject)
		}

		// The resent code carries a full window from the resend time.
		code := env.notifier.lastCode(t)
		env.clock.Advance(110 * time.Second)
		res, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", code)
		if err != nil || res != VerifyValid {
			t.Fatalf("expected resent code valid, got %v err=%v", res, err)
		}

		session, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{})
		if err != nil {
			t.Fatalf("completion after resend failed: %v", err)
		}
		if session.User.DisplayName != "ada lovelace" {
			t.Fatalf("expected snapshot preserved across resend, got %q", session.User.DisplayName)
		}
	})
}

func TestRegistrationRefusesRegisteredIdentity(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{}); err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	sent := env.notifier.count()

	err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com"))
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected KindConflict, got %v", KindOf(err))
	}
	if err := env.engine.ResendRegistrationOTP(ctx, "ada@example.com"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists on resend, got %v", err)
	}
	if env.notifier.count() != sent {
		t.Fatal("expected no delivery for a registered identity")
	}
}

func TestRegistrationDuplicateAtCreateKeepsEntry(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// Another request registers the identity between issue and completion.
	if _, err := env.users.Create(ctx, NewUser{Identity: "ada@example.com", DisplayName: "Other", PasswordHash: "x"}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	_, err := env.engine.CompleteRegistration(ctx, "ada@example.com", RegistrationPayload{})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegistrationDuplicate]; got != 1 {
		t.Fatalf("expected duplicate metric 1, got %d", got)
	}
}

func TestRegistrationDeliveryFailureKeepsEntry(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.notifier.setFail(true)
	err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if KindOf(err) != KindUpstream {
		t.Fatalf("expected KindUpstream, got %v", KindOf(err))
	}

	// The entry was stored before delivery, so resend can recover.
	env.notifier.setFail(false)
	if err := env.engine.ResendRegistrationOTP(ctx, "ada@example.com"); err != nil {
		t.Fatalf("expected resend to find the stored entry, got %v", err)
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricDeliveryFailure] != 1 || snap.Counters[MetricDeliverySuccess] != 1 {
		t.Fatalf("unexpected delivery counters %+v", snap.Counters)
	}
}

func TestRegistrationValidation(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegistrationRequest
		want error
	}{
		{"bad identity", RegistrationRequest{Identity: "not-an-email", DisplayName: "Ada", Password: "analytical-engine-1843"}, ErrInvalidIdentity},
		{"blank name", RegistrationRequest{Identity: "ada@example.com", DisplayName: "   ", Password: "analytical-engine-1843"}, ErrInvalidDisplayName},
		{"short password", RegistrationRequest{Identity: "ada@example.com", DisplayName: "Ada", Password: "abc"}, ErrPasswordPolicy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := env.engine.RequestRegistrationOTP(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if KindOf(err) != KindValidation {
				t.Fatalf("expected KindValidation, got %v", KindOf(err))
			}
		})
	}
	if env.notifier.count() != 0 {
		t.Fatalf("expected no delivery for invalid requests, got %d", env.notifier.count())
	}

	if _, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", "12ab56"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	res, err := env.engine.VerifyRegistrationOTP(ctx, "ada@example.com", "123456")
	if err != nil || res != VerifyNotFound {
		t.Fatalf("expected not found, got %v err=%v", res, err)
	}
}

func TestRegistrationOTPRateLimited(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	for i := 0; i < testConfig().RateLimit.OTPMaxIssues; i++ {
		if err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com")); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	err := env.engine.RequestRegistrationOTP(ctx, registrationRequest("ada@example.com"))
	if !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	if KindOf(err) != KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %v", KindOf(err))
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricOTPRateLimited] != 1 || snap.Counters[MetricRateLimitHit] != 1 {
		t.Fatalf("unexpected rate limit counters %+v", snap.Counters)
	}
}
