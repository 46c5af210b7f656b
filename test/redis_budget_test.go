//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/balancebuddy/authflow"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts Redis round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

func newCountedEngine(t *testing.T) (*authflow.Engine, *outbox, *cmdCounter) {
	t.Helper()

	counter := &cmdCounter{}
	_, rdb := newRedis(t, counter)
	// Warm the connection so the handshake is not counted.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	engine, box := newEngine(t, rdb)
	counter.Reset()
	return engine, box, counter
}

// TestRegistrationIssueRedisBudget: one limiter INCR with its first EXPIRE,
// plus the entry SET.
func TestRegistrationIssueRedisBudget(t *testing.T) {
	engine, _, counter := newCountedEngine(t)

	err := engine.RequestRegistrationOTP(context.Background(), authflow.RegistrationRequest{
		Identity:    "budget@example.com",
		DisplayName: "Budget",
		Password:    "budget-pass-1",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if cmds := counter.Commands(); cmds > 3 {
		t.Errorf("RequestRegistrationOTP used %d Redis commands; budget is <= 3", cmds)
	}
}

// TestRegistrationVerifyRedisBudget: limiter INCR and EXPIRE, then the entry
// GET. A valid code never writes the entry back.
func TestRegistrationVerifyRedisBudget(t *testing.T) {
	engine, box, counter := newCountedEngine(t)
	ctx := context.Background()

	err := engine.RequestRegistrationOTP(ctx, authflow.RegistrationRequest{
		Identity:    "budget@example.com",
		DisplayName: "Budget",
		Password:    "budget-pass-1",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	code := box.lastCode(t)

	counter.Reset()
	res, err := engine.VerifyRegistrationOTP(ctx, "budget@example.com", code)
	if err != nil || res != authflow.VerifyValid {
		t.Fatalf("verify: %v err=%v", res, err)
	}
	if cmds := counter.Commands(); cmds > 3 {
		t.Errorf("VerifyRegistrationOTP used %d Redis commands; budget is <= 3", cmds)
	}
}

// TestCompleteRegistrationRedisBudget: entry GET and DEL only.
func TestCompleteRegistrationRedisBudget(t *testing.T) {
	engine, _, counter := newCountedEngine(t)
	ctx := context.Background()

	err := engine.RequestRegistrationOTP(ctx, authflow.RegistrationRequest{
		Identity:    "budget@example.com",
		DisplayName: "Budget",
		Password:    "budget-pass-1",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	counter.Reset()
	if _, err := engine.CompleteRegistration(ctx, "budget@example.com", authflow.RegistrationPayload{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if cmds := counter.Commands(); cmds > 2 {
		t.Errorf("CompleteRegistration used %d Redis commands; budget is <= 2", cmds)
	}
}

// TestLoginRedisBudget: one MGET of the failure counters, then a DEL on
// success.
func TestLoginRedisBudget(t *testing.T) {
	engine, _, counter := newCountedEngine(t)
	ctx := context.Background()

	err := engine.RequestRegistrationOTP(ctx, authflow.RegistrationRequest{
		Identity:    "budget@example.com",
		DisplayName: "Budget",
		Password:    "budget-pass-1",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := engine.CompleteRegistration(ctx, "budget@example.com", authflow.RegistrationPayload{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	counter.Reset()
	if _, err := engine.Login(ctx, "budget@example.com", "budget-pass-1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if cmds := counter.Commands(); cmds > 2 {
		t.Errorf("Login used %d Redis commands; budget is <= 2", cmds)
	}
}
