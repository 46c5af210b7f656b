package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
)

const (
	otpMin          = 100000
	otpSpan         = 900000
	resetSecretSize = 32
)

var otpSpanBig = big.NewInt(otpSpan)

// NewOTPCode returns a uniformly random six digit code in [100000, 999999].
func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpanBig)
	if err != nil {
		return "", err
	}

	code := strconv.FormatInt(otpMin+n.Int64(), 10)
	if len(code) != 6 {
		return "", errors.New("invalid otp generation length")
	}
	return code, nil
}

// IsOTPCode reports whether code is exactly six ASCII digits.
func IsOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func HashOTPCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// NewResetToken returns a hex encoded 32 byte secret and the hex digest that
// is persisted in its place.
func NewResetToken() (string, string, error) {
	var secret [resetSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}

	token := hex.EncodeToString(secret[:])
	return token, HashResetToken(token), nil
}

func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsResetToken reports whether token has the shape produced by NewResetToken.
func IsResetToken(token string) bool {
	if len(token) != resetSecretSize*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
