package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/testutil"
)

func TestUserService_GetProfile(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db, testutil.WithStatus(model.SubscriptionActive), testutil.WithStripeCustomer("cus_1"))

	info, err := env.users.GetProfile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, info.ID)
	assert.True(t, info.HasBillingAccount)
	require.NotNil(t, info.Entitlement)
	assert.True(t, info.Entitlement.IsSubscribed)
	assert.True(t, info.Entitlement.TestsLimit.IsUnlimited())

	_, err = env.users.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserService_UpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db)

	name := "  Nurse Jo  "
	info, err := env.users.UpdateProfile(context.Background(), user.ID, &dto.UpdateProfileRequest{
		DisplayName: &name,
		Preferences: map[string]interface{}{"theme": "dark"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Nurse Jo", info.DisplayName)
	assert.Equal(t, "dark", info.Preferences["theme"])
	assert.Equal(t, model.SubscriptionInactive, info.SubscriptionStatus)
}
