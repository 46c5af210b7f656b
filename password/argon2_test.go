package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fastConfig keeps the suite quick; production costs are covered by the
// prefix check in TestHashEncoding.
func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func mustHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := fastConfig()
			mutate(&cfg)
			if _, err := NewArgon2(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestHashEncoding(t *testing.T) {
	h := mustHasher(t, Config{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32})

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	again, _ := h.Hash("P@ssw0rd-Ascii")
	if again == hash {
		t.Fatal("expected a fresh salt per hash")
	}
}

func TestVerify(t *testing.T) {
	h := mustHasher(t, fastConfig())
	hash, err := h.Hash("compiler-a0-1952")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if ok, err := h.Verify("compiler-a0-1952", hash); err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify("compiler-a0-1953", hash); err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsBadHashes(t *testing.T) {
	h := mustHasher(t, fastConfig())
	good, _ := h.Hash("version-test")

	cases := []struct {
		name string
		hash string
		want error
	}{
		{"not phc", "not-a-phc-hash", ErrMalformedHash},
		{"wrong scheme", strings.Replace(good, "$argon2id$", "$argon2i$", 1), ErrUnsupportedHash},
		{"wrong version", strings.Replace(good, "$v=19$", "$v=18$", 1), ErrUnsupportedHash},
		{"weak memory", strings.Replace(good, "m=8192,", "m=16,", 1), ErrMalformedHash},
		{"extra param", strings.Replace(good, ",p=1$", ",p=1,x=2$", 1), ErrMalformedHash},
		{"bad salt", strings.Replace(good, "$v=19$m=8192,t=1,p=1$", "$v=19$m=8192,t=1,p=1$!!", 1), ErrMalformedHash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.Verify("version-test", tc.hash); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	current := mustHasher(t, Config{Memory: 16 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	weaker := mustHasher(t, fastConfig())

	old, _ := weaker.Hash("test-password")
	if up, err := current.NeedsUpgrade(old); err != nil || !up {
		t.Fatalf("expected weaker hash to need upgrade, up=%v err=%v", up, err)
	}

	fresh, _ := current.Hash("test-password")
	if up, err := current.NeedsUpgrade(fresh); err != nil || up {
		t.Fatalf("expected current hash to be kept, up=%v err=%v", up, err)
	}

	if _, err := current.NeedsUpgrade("garbage"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestHashInput(t *testing.T) {
	h := mustHasher(t, fastConfig())

	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	// Length is a policy concern; the hasher only refuses empty input.
	if _, err := h.Hash("short"); err != nil {
		t.Fatalf("expected short password to hash, got %v", err)
	}
}

func TestVerifyLegacyBcryptHash(t *testing.T) {
	h := mustHasher(t, fastConfig())

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	if ok, err := h.Verify("legacy-password", string(legacy)); err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify: ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify("wrong-password", string(legacy)); err != nil || ok {
		t.Fatalf("expected bcrypt mismatch: ok=%v err=%v", ok, err)
	}
	if up, err := h.NeedsUpgrade(string(legacy)); err != nil || !up {
		t.Fatalf("expected bcrypt hash to need upgrade: up=%v err=%v", up, err)
	}
}
