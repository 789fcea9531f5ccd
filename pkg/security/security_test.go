package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgonRoundTrip(t *testing.T) {
	a := Fast()

	hash, err := a.GenerateFromPassword("correct horse battery")
	require.NoError(t, err)

	ok, err := a.VerifyPasswd("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.VerifyPasswd("wrong horse battery", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgonUnusable(t *testing.T) {
	a := Fast()

	hash, err := a.Unusable()
	require.NoError(t, err)
	assert.True(t, len(hash) > 1 && hash[:1] == UnusablePrefix)

	ok, err := a.VerifyPasswd("", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgonInvalidHash(t *testing.T) {
	_, err := Fast().VerifyPasswd("password", "pbkdf2_sha256$1$salt$hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestResetToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewResetSigner("secret", time.Hour).WithClock(func() time.Time { return now })

	last := now.Add(-time.Minute)
	tok, err := s.Make("user-1", "hash-a", &last)
	require.NoError(t, err)

	assert.NoError(t, s.Check(tok, "user-1", "hash-a", &last))

	t.Run("other subject", func(t *testing.T) {
		assert.ErrorIs(t, s.Check(tok, "user-2", "hash-a", &last), ErrResetTokenInvalid)
	})

	t.Run("password changed", func(t *testing.T) {
		assert.ErrorIs(t, s.Check(tok, "user-1", "hash-b", &last), ErrResetTokenInvalid)
	})

	t.Run("logged in since", func(t *testing.T) {
		later := now
		assert.ErrorIs(t, s.Check(tok, "user-1", "hash-a", &later), ErrResetTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		assert.ErrorIs(t, s.Check("not-a-token", "user-1", "hash-a", &last), ErrResetTokenInvalid)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewResetSigner("other", time.Hour).WithClock(func() time.Time { return now })
		assert.ErrorIs(t, other.Check(tok, "user-1", "hash-a", &last), ErrResetTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		s.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
		defer s.WithClock(func() time.Time { return now })

		assert.ErrorIs(t, s.Check(tok, "user-1", "hash-a", &last), ErrResetTokenInvalid)
	})
}
