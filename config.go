package authflow

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the complete engine configuration. Obtain a baseline from
// [DefaultConfig], adjust it, and pass it to [Builder.WithConfig].
type Config struct {
	AppName       string
	JWT           JWTConfig
	Password      PasswordConfig
	Registration  OTPFlowConfig
	EmailOTP      OTPFlowConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the session credential.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries Argon2id cost parameters and the acceptance policy
// for new credentials.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength      int
	MaxLength      int
	MinEntropyBits float64
}

/*
====================================
OTP FLOW CONFIG
====================================
*/

// OTPFlowConfig configures one OTP flow variant.
type OTPFlowConfig struct {
	// Window is the validity period of an issued code.
	Window time.Duration
	// StoreGrace is added to Window for the backend TTL so that a verify
	// slightly past the window still observes the entry and reports expiry.
	StoreGrace time.Duration
	// KeyPrefix namespaces Redis keys for this variant.
	KeyPrefix string
}

// PasswordResetConfig configures reset-token issuance.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// LinkBase is joined with "/" and the token to form the delivered link.
	LinkBase      string
	SweepInterval time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the Redis fixed-window limiters. Limits are
// inactive when the engine has no Redis client.
type RateLimitConfig struct {
	EnableIPThrottle bool

	OTPWindow           time.Duration
	OTPMaxIssues        int
	OTPMaxVerifications int

	ResetWindow      time.Duration
	ResetMaxRequests int
	ResetMaxConfirms int

	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
AUDIT & METRICS
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT.PrivateKey must
// still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		AppName: "BalanceBuddy",
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			SigningMethod: "hs256",
			Issuer:        "authflow",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxLength:      128,
			MinEntropyBits: 30,
		},
		Registration: OTPFlowConfig{
			Window:     2 * time.Minute,
			StoreGrace: 30 * time.Second,
			KeyPrefix:  "areg",
		},
		EmailOTP: OTPFlowConfig{
			Window:     15 * time.Minute,
			StoreGrace: 30 * time.Second,
			KeyPrefix:  "aeml",
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:      time.Hour,
			LinkBase:      "http://localhost:3000/reset-password",
			SweepInterval: time.Hour,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:      true,
			OTPWindow:             15 * time.Minute,
			OTPMaxIssues:          5,
			OTPMaxVerifications:   10,
			ResetWindow:           time.Hour,
			ResetMaxRequests:      5,
			ResetMaxConfirms:      20,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first structural problem in c.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return errors.New("AppName must not be empty")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Password
	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password argon2 parameters must be > 0")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MinEntropyBits < 0 {
		return errors.New("Password MinEntropyBits must be >= 0")
	}

	// OTP flows
	if err := c.Registration.validate("Registration"); err != nil {
		return err
	}
	if err := c.EmailOTP.validate("EmailOTP"); err != nil {
		return err
	}
	if c.Registration.KeyPrefix == c.EmailOTP.KeyPrefix {
		return errors.New("Registration and EmailOTP KeyPrefix must differ")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.SweepInterval < 0 {
		return errors.New("PasswordReset SweepInterval must be >= 0")
	}
	link, err := url.Parse(c.PasswordReset.LinkBase)
	if err != nil || link.Scheme == "" || link.Host == "" {
		return errors.New("PasswordReset LinkBase must be an absolute URL")
	}

	// Rate limits
	rl := c.RateLimit
	if rl.OTPWindow <= 0 || rl.ResetWindow <= 0 || rl.LoginCooldownDuration <= 0 {
		return errors.New("RateLimit windows must be > 0")
	}
	if rl.OTPMaxIssues <= 0 || rl.OTPMaxVerifications <= 0 || rl.ResetMaxRequests <= 0 || rl.ResetMaxConfirms <= 0 || rl.MaxLoginAttempts <= 0 {
		return errors.New("RateLimit budgets must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c OTPFlowConfig) validate(name string) error {
	if c.Window <= 0 {
		return errors.New(name + " Window must be > 0")
	}
	if c.StoreGrace < 0 {
		return errors.New(name + " StoreGrace must be >= 0")
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		return errors.New(name + " KeyPrefix must not be empty")
	}
	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration observation.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list of warnings produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that validate but are unusual for production.
func (c *Config) Lint() LintResult {
	var ws LintResult
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) > 0 && len(c.JWT.PrivateKey) < 32 {
		ws = append(ws, LintWarning{Code: "hs256_key_short", Message: "HS256 key shorter than 32 bytes"})
	}
	if c.JWT.AccessTTL > 24*time.Hour {
		ws = append(ws, LintWarning{Code: "access_ttl_long", Message: "session credentials live longer than a day"})
	}
	if c.Registration.Window > 15*time.Minute {
		ws = append(ws, LintWarning{Code: "registration_window_long", Message: "registration codes live longer than 15 minutes"})
	}
	if c.Password.MinEntropyBits == 0 {
		ws = append(ws, LintWarning{Code: "entropy_check_disabled", Message: "password entropy floor disabled"})
	}
	if strings.HasPrefix(c.PasswordReset.LinkBase, "http://") {
		ws = append(ws, LintWarning{Code: "reset_link_insecure", Message: "reset links are delivered over plain http"})
	}
	if !c.Audit.Enabled {
		ws = append(ws, LintWarning{Code: "audit_disabled", Message: "audit events are not recorded"})
	}
	return ws
}
