package password

import (
	"errors"
	"fmt"
	"unicode/utf8"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

var (
	// ErrTooShort is returned when a credential has fewer runes than MinLength.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned when a credential exceeds MaxLength bytes.
	ErrTooLong = errors.New("password too long")
	// ErrTooWeak is returned when a credential's estimated entropy is below MinEntropyBits.
	ErrTooWeak = errors.New("password too weak")
)

// PolicyConfig bounds acceptable credentials. MinEntropyBits of zero
// disables the entropy estimate.
type PolicyConfig struct {
	MinLength      int
	MaxLength      int
	MinEntropyBits float64
}

type Policy struct {
	config PolicyConfig
}

func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	if cfg.MinLength < 1 {
		return nil, errors.New("password min length must be >= 1")
	}
	if cfg.MaxLength < cfg.MinLength {
		return nil, errors.New("password max length must be >= min length")
	}
	if cfg.MinEntropyBits < 0 {
		return nil, errors.New("password min entropy must be >= 0")
	}
	return &Policy{config: cfg}, nil
}

// Check returns nil when password satisfies the policy, or one of
// ErrTooShort, ErrTooLong, ErrTooWeak wrapped with detail.
func (p *Policy) Check(password string) error {
	if utf8.RuneCountInString(password) < p.config.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrTooShort, p.config.MinLength)
	}
	if len(password) > p.config.MaxLength {
		return fmt.Errorf("%w: maximum %d bytes", ErrTooLong, p.config.MaxLength)
	}
	if p.config.MinEntropyBits > 0 {
		if err := passwordvalidator.Validate(password, p.config.MinEntropyBits); err != nil {
			return fmt.Errorf("%w: %v", ErrTooWeak, err)
		}
	}
	return nil
}
