package authflow

import (
	"errors"
	"time"

	internalaudit "github.com/balancebuddy/authflow/internal/audit"
	"github.com/balancebuddy/authflow/internal/limiters"
	"github.com/balancebuddy/authflow/internal/rate"
	"github.com/balancebuddy/authflow/internal/stores"
	"github.com/balancebuddy/authflow/jwt"
	"github.com/balancebuddy/authflow/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	notifier  Notifier
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the OTP stores and the rate limiters with Redis. Without
// it the engine keeps codes in process memory and rate limits are inactive.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable credential store. Required.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithNotifier sets the message delivery channel. Required.
func (b *Builder) WithNotifier(notifier Notifier) *Builder {
	b.notifier = notifier
	return b
}

// WithAuditSink sets the destination of audit events. Events are only
// dispatched when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source used for code and token expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		users:    b.users,
		notifier: b.notifier,
		now:      b.clock,
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	// -------- OTP STORES & LIMITERS --------
	if b.redis != nil {
		engine.registrationStore = stores.NewRedisOTPStore(b.redis, cfg.Registration.KeyPrefix)
		engine.emailOTPStore = stores.NewRedisOTPStore(b.redis, cfg.EmailOTP.KeyPrefix)
		engine.registrationLimiter = limiters.NewOTPLimiter(b.redis, limiters.OTPConfig{
			Namespace:        cfg.Registration.KeyPrefix,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			Window:           cfg.RateLimit.OTPWindow,
			MaxIssues:        cfg.RateLimit.OTPMaxIssues,
			MaxVerifications: cfg.RateLimit.OTPMaxVerifications,
		})
		engine.emailOTPLimiter = limiters.NewOTPLimiter(b.redis, limiters.OTPConfig{
			Namespace:        cfg.EmailOTP.KeyPrefix,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			Window:           cfg.RateLimit.OTPWindow,
			MaxIssues:        cfg.RateLimit.OTPMaxIssues,
			MaxVerifications: cfg.RateLimit.OTPMaxVerifications,
		})
		engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			Window:           cfg.RateLimit.ResetWindow,
			MaxRequests:      cfg.RateLimit.ResetMaxRequests,
			MaxConfirms:      cfg.RateLimit.ResetMaxConfirms,
		})
		engine.loginLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration: cfg.RateLimit.LoginCooldownDuration,
		})
	} else {
		engine.registrationStore = stores.NewMemoryOTPStore()
		engine.emailOTPStore = stores.NewMemoryOTPStore()
	}

	// -------- CREDENTIALS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	policy, err := password.NewPolicy(password.PolicyConfig{
		MinLength:      cfg.Password.MinLength,
		MaxLength:      cfg.Password.MaxLength,
		MinEntropyBits: cfg.Password.MinEntropyBits,
	})
	if err != nil {
		return nil, err
	}
	engine.policy = policy

	// -------- SESSIONS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           engine.clock,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- MESSAGES, AUDIT, METRICS --------
	renderer, err := newMessageRenderer(cfg.AppName)
	if err != nil {
		return nil, err
	}
	engine.messages = renderer
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
