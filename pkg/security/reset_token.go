package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrResetTokenInvalid = errors.New("reset token is invalid or expired")

type resetClaims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// ResetSigner issues password reset tokens. A token is bound to the password
// hash and last login of the user it was issued for, so changing either
// invalidates every token issued before.
type ResetSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResetSigner(secret string, ttl time.Duration) *ResetSigner {
	return &ResetSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source, used by tests to move past expiry
func (s *ResetSigner) WithClock(now func() time.Time) *ResetSigner {
	s.now = now
	return s
}

func (s *ResetSigner) fingerprint(passwordHash string, lastLogin *time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(passwordHash))
	mac.Write([]byte{0})

	if lastLogin != nil {
		mac.Write([]byte(strconv.FormatInt(lastLogin.UTC().UnixMicro(), 10)))
	}

	return hex.EncodeToString(mac.Sum(nil))
}

func (s *ResetSigner) Make(subject, passwordHash string, lastLogin *time.Time) (string, error) {
	now := s.now()

	claims := resetClaims{
		Fingerprint: s.fingerprint(passwordHash, lastLogin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token, %w", err)
	}

	return token, nil
}

// Check returns ErrResetTokenInvalid for any token that wasn't issued for
// subject in its current password state or has expired.
func (s *ResetSigner) Check(token, subject, passwordHash string, lastLogin *time.Time) error {
	var claims resetClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return ErrResetTokenInvalid
	}

	if !hmac.Equal([]byte(claims.Fingerprint), []byte(s.fingerprint(passwordHash, lastLogin))) {
		return ErrResetTokenInvalid
	}

	return nil
}
