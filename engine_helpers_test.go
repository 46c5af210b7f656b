package authflow

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// fakeClock is a settable time source shared by the engine and the tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeUserStore keeps users in memory with a unique identity index.
type fakeUserStore struct {
	mu          sync.Mutex
	byID        map[string]User
	byIdentity  map[string]string
	nextID      int
	createCalls int
	failWith    error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:       map[string]User{},
		byIdentity: map[string]string{},
	}
}

func (s *fakeUserStore) FindByIdentity(_ context.Context, identity string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return User{}, s.failWith
	}
	id, ok := s.byIdentity[identity]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) Create(_ context.Context, in NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if _, exists := s.byIdentity[in.Identity]; exists {
		return User{}, ErrAccountExists
	}
	s.nextID++
	u := User{
		ID:           "user-" + strconv.Itoa(s.nextID),
		Identity:     in.Identity,
		DisplayName:  in.DisplayName,
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.byID[u.ID] = u
	s.byIdentity[u.Identity] = u.ID
	return u, nil
}

func (s *fakeUserStore) SetResetToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.ResetTokenHash = tokenHash
	u.ResetExpiresAt = expiresAt
	s.byID[userID] = u
	return nil
}

func (s *fakeUserStore) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ResetTokenHash == tokenHash && u.ResetExpiresAt.After(now) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *fakeUserStore) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.byID {
		if u.ResetTokenHash == tokenHash && u.ResetExpiresAt.After(now) {
			u.PasswordHash = passwordHash
			u.ResetTokenHash = ""
			u.ResetExpiresAt = time.Time{}
			s.byID[id] = u
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *fakeUserStore) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	s.byID[userID] = u
	return nil
}

func (s *fakeUserStore) PurgeExpiredResetTokens(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, u := range s.byID {
		if u.ResetTokenHash != "" && !u.ResetExpiresAt.After(before) {
			u.ResetTokenHash = ""
			u.ResetExpiresAt = time.Time{}
			s.byID[id] = u
			n++
		}
	}
	return n, nil
}

func (s *fakeUserStore) get(identity string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIdentity[identity]
	if !ok {
		return User{}, false
	}
	return s.byID[id], true
}

// recordingNotifier captures sent messages and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp: connection refused")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) setFail(fail bool) {
	n.mu.Lock()
	n.fail = fail
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last(t *testing.T) Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no message sent")
	}
	return n.sent[len(n.sent)-1]
}

var (
	codePattern  = regexp.MustCompile(`\b\d{6}\b`)
	tokenPattern = regexp.MustCompile(`/([0-9a-f]{64})\b`)
)

func (n *recordingNotifier) lastCode(t *testing.T) string {
	t.Helper()
	msg := n.last(t)
	code := codePattern.FindString(msg.TextBody)
	if code == "" {
		t.Fatalf("no code in message body %q", msg.TextBody)
	}
	return code
}

func (n *recordingNotifier) lastToken(t *testing.T) string {
	t.Helper()
	msg := n.last(t)
	m := tokenPattern.FindStringSubmatch(msg.TextBody)
	if m == nil {
		t.Fatalf("no reset token in message body %q", msg.TextBody)
	}
	return m[1]
}

type testEnv struct {
	engine   *Engine
	users    *fakeUserStore
	notifier *recordingNotifier
	clock    *fakeClock
	mr       *miniredis.Miniredis
}

type envOption func(*Builder)

func newTestEnv(t *testing.T, withRedis bool, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    newFakeUserStore(),
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
	}
	b := New().
		WithConfig(testConfig()).
		WithUserStore(env.users).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now)
	if withRedis {
		mr, rdb := newTestRedis(t)
		env.mr = mr
		b = b.WithRedis(rdb)
	}
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// forEachBackend runs fn against the in-memory and the Redis OTP store.
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newTestEnv(t, false))
	})
	t.Run("redis", func(t *testing.T) {
		fn(t, newTestEnv(t, true))
	})
}
