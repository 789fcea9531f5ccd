package service

import (
	"context"
	"strings"
	"testing"

	"bitwise74/accounts-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.registerVerified(t, testEmail, testPassword)

	require.NoError(t, e.a.UpdateProfile(ctx, u, strPtr("New Name")))
	assert.Equal(t, "New Name", u.Name)

	var stored model.User
	require.NoError(t, e.db.First(&stored, u.ID).Error)
	assert.Equal(t, "New Name", stored.Name)
	assert.Equal(t, u.UUID, stored.UUID)

	require.NoError(t, e.a.UpdateProfile(ctx, u, nil))
	assert.Equal(t, "New Name", u.Name)

	err := e.a.UpdateProfile(ctx, u, strPtr(strings.Repeat("a", 256)))
	assert.ErrorIs(t, err, ErrFieldTooLong)
	assert.Equal(t, []string{MsgFieldTooLong}, fieldErrors(t, err)["name"])
}
