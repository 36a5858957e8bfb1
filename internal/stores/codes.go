package stores

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/MrEthical07/authcore/internal/kv"
)

const (
	codeRecordVersionV1 = 1
	codeDigits          = 6
	expiredGrace        = 10 * time.Minute
	defaultMaxAttempts  = 5
)

var (
	ErrCodeNotFound         = errors.New("code not found")
	ErrCodeExpired          = errors.New("code expired")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCodeUnavailable      = errors.New("code store unavailable")
)

// CodeRecord is what a [CodeStore] keeps per key.
type CodeRecord struct {
	Subject   string
	ExpiresAt int64
	Hash      [32]byte
}

// CodeStore issues and consumes numeric one-time codes under one key prefix.
type CodeStore struct {
	kv          kv.Store
	prefix      string
	maxAttempts int
	now         func() time.Time
}

// NewCodeStore returns a store writing keys as "<prefix>:<id>". maxAttempts <= 0
// uses the default of five wrong guesses.
func NewCodeStore(store kv.Store, prefix string, maxAttempts int) *CodeStore {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &CodeStore{kv: store, prefix: prefix, maxAttempts: maxAttempts, now: time.Now}
}

// NewMFAEmailCodes keys codes by account id.
func NewMFAEmailCodes(store kv.Store) *CodeStore {
	return NewCodeStore(store, "mfa_email", 0)
}

// NewEmailVerificationCodes keys codes by email address.
func NewEmailVerificationCodes(store kv.Store) *CodeStore {
	return NewCodeStore(store, "email_verify", 0)
}

// NewPasswordResetCodes keys codes by email address.
func NewPasswordResetCodes(store kv.Store) *CodeStore {
	return NewCodeStore(store, "pwd_reset", 0)
}

// WithClock replaces the time source. Intended for tests.
func (s *CodeStore) WithClock(now func() time.Time) *CodeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *CodeStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *CodeStore) attemptsKey(id string) string {
	return s.prefix + "_attempts:" + id
}

// Issue generates a fresh code for id, replacing any previous one.
func (s *CodeStore) Issue(ctx context.Context, id, subject string, ttl time.Duration) (string, error) {
	code, err := NewNumericCode(codeDigits)
	if err != nil {
		return "", err
	}
	record := &CodeRecord{
		Subject:   subject,
		ExpiresAt: s.now().Add(ttl).Unix(),
		Hash:      hashCode(id, code),
	}
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return "", err
	}
	if err := s.kv.Set(ctx, s.key(id), string(encoded), ttl+expiredGrace); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	if err := s.kv.Del(ctx, s.attemptsKey(id)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return code, nil
}

// Consume checks code for id. A matching code is removed and its subject
// returned. Expired codes are removed and reported as ErrCodeExpired.
func (s *CodeStore) Consume(ctx context.Context, id, code string) (string, error) {
	key := s.key(id)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", s.mapErr(err)
	}
	record, err := decodeCodeRecord([]byte(raw))
	if err != nil {
		_ = s.kv.Del(ctx, key)
		return "", ErrCodeNotFound
	}

	if s.now().Unix() > record.ExpiresAt {
		_ = s.kv.Del(ctx, key, s.attemptsKey(id))
		return "", ErrCodeExpired
	}

	provided := hashCode(id, code)
	if subtle.ConstantTimeCompare(record.Hash[:], provided[:]) != 1 {
		n, _, err := s.kv.Incr(ctx, s.attemptsKey(id), time.Unix(record.ExpiresAt, 0).Sub(s.now())+expiredGrace)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
		}
		if int(n) >= s.maxAttempts {
			_ = s.kv.Del(ctx, key, s.attemptsKey(id))
			return "", ErrCodeAttemptsExceeded
		}
		return "", ErrCodeMismatch
	}

	if _, err := s.kv.GetDel(ctx, key); err != nil {
		return "", s.mapErr(err)
	}
	_ = s.kv.Del(ctx, s.attemptsKey(id))
	return record.Subject, nil
}

// Discard removes any outstanding code for id.
func (s *CodeStore) Discard(ctx context.Context, id string) error {
	if err := s.kv.Del(ctx, s.key(id), s.attemptsKey(id)); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return nil
}

func (s *CodeStore) mapErr(err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return ErrCodeNotFound
	}
	return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
}

// NewNumericCode returns a uniformly random decimal code of the given length.
func NewNumericCode(digits int) (string, error) {
	out := make([]byte, digits)
	ten := big.NewInt(10)
	for i := range out {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + n.Int64())
	}
	return string(out), nil
}

func hashCode(id, code string) [32]byte {
	data := make([]byte, 0, len(id)+1+len(code))
	data = append(data, id...)
	data = append(data, 0)
	data = append(data, code...)
	return sha256.Sum256(data)
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if len(record.Subject) > 65535 {
		return nil, errors.New("code record subject too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Subject))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Subject)
	buf.Write(record.Hash[:])
	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &CodeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	var subjectLen uint16
	if err := binary.Read(reader, binary.BigEndian, &subjectLen); err != nil {
		return nil, err
	}
	subject := make([]byte, subjectLen)
	if _, err := io.ReadFull(reader, subject); err != nil {
		return nil, err
	}
	record.Subject = string(subject)
	if _, err := io.ReadFull(reader, record.Hash[:]); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in code record")
	}
	return record, nil
}
