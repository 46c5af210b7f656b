package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	otpRecordVersionV1 = 1

	otpFlagPending byte = 1 << 0
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
	ErrOTPRecordInvalid    = errors.New("otp record invalid")
)

// PendingRegistration is the registration snapshot carried with an OTP
// record until finalization. PasswordHash is an encoded Argon2id hash.
type PendingRegistration struct {
	DisplayName  string
	Identity     string
	PasswordHash string
}

// OTPRecord is the single live entry for an identity.
type OTPRecord struct {
	Identity  string
	CodeHash  [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	Pending   *PendingRegistration
}

// OTPStore is the keyed transient store behind every OTP flow variant.
// Get returns ErrOTPNotFound when no record exists. Set overwrites any
// existing record; ttl bounds how long an abandoned record may linger.
type OTPStore interface {
	Get(ctx context.Context, identity string) (*OTPRecord, error)
	Set(ctx context.Context, record *OTPRecord, ttl time.Duration) error
	Delete(ctx context.Context, identity string) error
}

func cloneOTPRecord(record *OTPRecord) *OTPRecord {
	if record == nil {
		return nil
	}
	out := *record
	if record.Pending != nil {
		pending := *record.Pending
		out.Pending = &pending
	}
	return &out
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	if record == nil || record.Identity == "" {
		return nil, ErrOTPRecordInvalid
	}

	var buf bytes.Buffer
	buf.WriteByte(otpRecordVersionV1)

	var flags byte
	if record.Pending != nil {
		flags |= otpFlagPending
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if err := writeString(&buf, record.Identity); err != nil {
		return nil, err
	}
	if record.Pending != nil {
		for _, s := range []string{record.Pending.DisplayName, record.Pending.Identity, record.Pending.PasswordHash} {
			if err := writeString(&buf, s); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var issuedAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}

	record := &OTPRecord{
		IssuedAt:  time.UnixMilli(issuedAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if record.Identity, err = readString(reader); err != nil {
		return nil, err
	}

	if flags&otpFlagPending != 0 {
		pending := &PendingRegistration{}
		if pending.DisplayName, err = readString(reader); err != nil {
			return nil, err
		}
		if pending.Identity, err = readString(reader); err != nil {
			return nil, err
		}
		if pending.PasswordHash, err = readString(reader); err != nil {
			return nil, err
		}
		record.Pending = pending
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in otp record")
	}

	return record, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("otp record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
