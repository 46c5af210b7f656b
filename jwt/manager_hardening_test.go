package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func sessionClaims(iss, aud string, exp, iat time.Time) SessionClaims {
	c := SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    iss,
		ExpiresAt: gjwt.NewNumericDate(exp),
		IssuedAt:  gjwt.NewNumericDate(iat),
	}}
	if aud != "" {
		c.Audience = gjwt.ClaimStrings{aud}
	}
	return c
}

func TestIssueAndParseHS256(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, exp, err := m.Issue("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "user-1" || claims.Email != "a@x.com" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	now = now.Add(time.Hour + time.Second)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired session to fail")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, _, err := m.Issue("", "a@x.com"); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
}

func TestParseRejectsMissingUID(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: key})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	claims := sessionClaims("", "", time.Now().Add(time.Minute), time.Now())
	claims.UID = ""
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token without uid to fail")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := sessionClaims("", "", time.Now().Add(time.Minute), time.Now())
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "authflow",
		Audience:      "balancebuddy",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, _, err := m.Issue("u", "u@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(session); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	now := time.Now()
	cases := []struct {
		name   string
		claims SessionClaims
		ok     bool
	}{
		{"wrong issuer", sessionClaims("other", "balancebuddy", now.Add(time.Minute), now), false},
		{"wrong audience", sessionClaims("authflow", "other", now.Add(time.Minute), now), false},
		{"within leeway", sessionClaims("authflow", "balancebuddy", now.Add(-15*time.Second), now.Add(-time.Minute)), true},
		{"expired", sessionClaims("authflow", "balancebuddy", now.Add(-2*time.Minute), now.Add(-3*time.Minute)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signed, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, tc.claims).SignedString(priv)
			if err != nil {
				t.Fatalf("sign token: %v", err)
			}
			_, err = m.Parse(signed)
			if tc.ok && err != nil {
				t.Fatalf("expected token to pass: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected token to fail")
			}
		})
	}
}

func TestParseEnforcesKeyID(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	issued, _, err := m.Issue("u1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(issued); err != nil {
		t.Fatalf("expected own kid to pass: %v", err)
	}

	claims := sessionClaims("", "", time.Now().Add(time.Minute), time.Now())
	for _, kid := range []string{"k2", ""} {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
		if kid != "" {
			tok.Header["kid"] = kid
		}
		signed, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if _, err := m.Parse(signed); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("kid %q: expected ErrInvalidSession, got %v", kid, err)
		}
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	pub, priv := newEdKeys(t)
	signer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	token, _, err := signer.Issue("u1", "u1@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Parse(token); err != nil {
		t.Fatalf("expected verifier to accept: %v", err)
	}
	if _, _, err := verifier.Issue("u1", ""); err == nil {
		t.Fatal("expected verify-only manager to refuse issuing")
	}

	otherPub, _ := newEdKeys(t)
	stranger, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: otherPub})
	if _, err := stranger.Parse(token); err == nil {
		t.Fatal("expected parse failure with a different key")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"ttl":         {SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		"leeway":      {AccessTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
		"hs256 key":   {AccessTTL: time.Hour, SigningMethod: MethodHS256},
		"ed25519 key": {AccessTTL: time.Hour, SigningMethod: MethodEd25519},
		"bad pem":     {AccessTTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: []byte("not a key")},
		"method":      {AccessTTL: time.Hour, SigningMethod: "rs256", PrivateKey: []byte("k")},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
