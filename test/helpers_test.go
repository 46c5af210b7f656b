//go:build integration
// +build integration

package test

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/balancebuddy/authflow"
	"github.com/balancebuddy/authflow/internal/userstore/memory"
	"github.com/redis/go-redis/v9"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// outbox records every message the engine sends.
type outbox struct {
	mu   sync.Mutex
	sent []authflow.Message
}

func (o *outbox) Send(_ context.Context, msg authflow.Message) error {
	o.mu.Lock()
	o.sent = append(o.sent, msg)
	o.mu.Unlock()
	return nil
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		t.Fatal("no message sent")
	}
	code := codePattern.FindString(o.sent[len(o.sent)-1].TextBody)
	if code == "" {
		t.Fatal("no code in last message")
	}
	return code
}

func integrationConfig() authflow.Config {
	cfg := authflow.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newRedis(t *testing.T, hooks ...redis.Hook) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	for _, h := range hooks {
		rdb.AddHook(h)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newEngine(t *testing.T, rdb *redis.Client) (*authflow.Engine, *outbox) {
	t.Helper()

	box := &outbox{}
	b := authflow.New().
		WithConfig(integrationConfig()).
		WithUserStore(memory.NewStore()).
		WithNotifier(box)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, box
}
