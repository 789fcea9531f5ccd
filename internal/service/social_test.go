package service

import (
	"context"
	"fmt"
	"testing"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) addIdentity(token, uid, email, name string) {
	e.fb.ids[token] = &provider.Identity{
		Provider:       "facebook",
		ProviderUserID: uid,
		Email:          email,
		Name:           name,
		Extra:          []byte(fmt.Sprintf(`{"id":%q}`, uid)),
	}
}

func TestLoginWithProviderCreatesAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addIdentity("fb-token", "1001", "Social@Test.com", "Social User")

	res, err := e.a.LoginWithProvider(ctx, "facebook", "fb-token")
	require.NoError(t, err)
	assert.Len(t, res.Key, 40)
	assert.Equal(t, "Social User", res.User.Name)
	assert.False(t, res.User.HasUsablePassword())

	var addr model.EmailAddress
	require.NoError(t, e.db.Where("user_id = ?", res.User.ID).First(&addr).Error)
	assert.Equal(t, "social@test.com", addr.Email)
	assert.True(t, addr.Verified)
	assert.True(t, addr.Primary)

	var sa model.SocialAccount
	require.NoError(t, e.db.Where("user_id = ?", res.User.ID).First(&sa).Error)
	assert.Equal(t, "facebook", sa.Provider)
	assert.Equal(t, "1001", sa.UID)
	assert.JSONEq(t, `{"id":"1001"}`, sa.ExtraData)

	assert.Empty(t, e.outbox.Sent(), "social accounts are verified by the provider")

	t.Run("second login reuses user and token", func(t *testing.T) {
		again, err := e.a.LoginWithProvider(ctx, "facebook", "fb-token")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, again.User.ID)
		assert.Equal(t, res.Key, again.Key)

		var n int64
		e.db.Model(&model.User{}).Count(&n)
		assert.Equal(t, int64(1), n)
	})

	t.Run("password login is impossible", func(t *testing.T) {
		_, err := e.a.Authenticate(ctx, "social@test.com", testPassword)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginWithProviderNeverMerges(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.registerVerified(t, testEmail, testPassword)
	e.addIdentity("fb-token", "1001", testEmail, "")

	_, err := e.a.LoginWithProvider(ctx, "facebook", "fb-token")
	assert.ErrorIs(t, err, ErrAccountExistsRequiresExplicitLink)
	assert.Equal(t, []string{MsgSocialEmailRegistered}, fieldErrors(t, err)[NonFieldErrors])

	var n int64
	e.db.Model(&model.SocialAccount{}).Count(&n)
	assert.Zero(t, n)
}

func TestLoginWithProviderFailures(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		_, err := e.a.LoginWithProvider(ctx, "myspace", "token")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := e.a.LoginWithProvider(ctx, "facebook", "")
		assert.Equal(t, []string{MsgFieldRequired}, fieldErrors(t, err)["access_token"])
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := e.a.LoginWithProvider(ctx, "facebook", "bad-token")
		assert.ErrorIs(t, err, ErrInvalidProviderToken)
		assert.Equal(t, []string{MsgIncorrectValue}, fieldErrors(t, err)[NonFieldErrors])
	})

	t.Run("no e-mail", func(t *testing.T) {
		e.addIdentity("no-email", "2002", "", "Anon")
		_, err := e.a.LoginWithProvider(ctx, "facebook", "no-email")
		assert.ErrorIs(t, err, ErrMissingProviderEmail)
		assert.Equal(t, []string{MsgMissingProviderEmail}, fieldErrors(t, err)["email"])
	})

	t.Run("malformed e-mail", func(t *testing.T) {
		e.addIdentity("bad-email", "2003", "not an email", "Anon")
		_, err := e.a.LoginWithProvider(ctx, "facebook", "bad-email")
		assert.ErrorIs(t, err, ErrInvalidEmail)
		assert.Equal(t, []string{MsgInvalidEmail}, fieldErrors(t, err)["email"])

		var n int64
		e.db.Model(&model.User{}).Count(&n)
		assert.Zero(t, n)
		e.db.Model(&model.SocialAccount{}).Count(&n)
		assert.Zero(t, n)
	})

	t.Run("provider down", func(t *testing.T) {
		e.fb.err = fmt.Errorf("%w: timeout", provider.ErrProviderUnavailable)
		defer func() { e.fb.err = nil }()

		_, err := e.a.LoginWithProvider(ctx, "facebook", "fb-token")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})
}

func TestLoginWithProviderInactive(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addIdentity("fb-token", "1001", "social@test.com", "")

	res, err := e.a.LoginWithProvider(ctx, "facebook", "fb-token")
	require.NoError(t, err)

	require.NoError(t, e.db.Model(res.User).Update("is_active", false).Error)

	_, err = e.a.LoginWithProvider(ctx, "facebook", "fb-token")
	assert.ErrorIs(t, err, ErrInactiveUser)
	assert.Equal(t, []string{MsgInactiveUser}, fieldErrors(t, err)[NonFieldErrors])
}

func TestConnectWithProvider(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.registerVerified(t, testEmail, testPassword)
	other := e.registerVerified(t, "other@test.com", testPassword)

	e.addIdentity("fb-token", "1001", "different@test.com", "")

	res, err := e.a.ConnectWithProvider(ctx, u, "facebook", "fb-token")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Len(t, res.Key, 40)

	t.Run("idempotent", func(t *testing.T) {
		again, err := e.a.ConnectWithProvider(ctx, u, "facebook", "fb-token")
		require.NoError(t, err)
		assert.Equal(t, res.Key, again.Key)

		var n int64
		e.db.Model(&model.SocialAccount{}).Count(&n)
		assert.Equal(t, int64(1), n)
	})

	t.Run("linked to someone else", func(t *testing.T) {
		_, err := e.a.ConnectWithProvider(ctx, other, "facebook", "fb-token")
		assert.ErrorIs(t, err, ErrAlreadyLinked)
		assert.Equal(t, []string{MsgAlreadyLinked}, fieldErrors(t, err)[NonFieldErrors])
	})

	t.Run("social login now reaches the linked user", func(t *testing.T) {
		login, err := e.a.LoginWithProvider(ctx, "facebook", "fb-token")
		require.NoError(t, err)
		assert.Equal(t, u.ID, login.User.ID)
	})
}
