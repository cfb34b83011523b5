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

func TestEntitlementService_CanCreateTest(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		existing  int
		allowed   bool
		wantLimit dto.Limit
	}{
		{"free with no tests", model.SubscriptionInactive, 0, true, 2},
		{"free with one test", model.SubscriptionInactive, 1, true, 2},
		{"free at limit", model.SubscriptionInactive, 2, false, 2},
		{"past due counts as free", model.SubscriptionPastDue, 2, false, 2},
		{"cancelled counts as free", model.SubscriptionCancelled, 3, false, 2},
		{"active is unlimited", model.SubscriptionActive, 10, true, dto.Unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			user := testutil.TestUser(t, env.db, testutil.WithStatus(tt.status))
			for i := 0; i < tt.existing; i++ {
				testutil.TestTest(t, env.db, user.ID)
			}

			perm, err := env.entitlement.CanCreateTest(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, perm.Allowed)
			assert.Equal(t, tt.existing, perm.TestsUsed)
			assert.Equal(t, tt.wantLimit, perm.TestsLimit)
			if tt.allowed {
				assert.Empty(t, perm.Reason)
			} else {
				assert.Contains(t, perm.Reason, "Upgrade")
			}
		})
	}
}

func TestEntitlementService_CanCreateTest_CountsAbandoned(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db)
	testutil.TestTest(t, env.db, user.ID, testutil.WithCompleted(0, fixedNow, fixedNow), func(tt *model.Test) {
		tt.Abandoned = true
	})
	testutil.TestTest(t, env.db, user.ID)

	perm, err := env.entitlement.CanCreateTest(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, perm.Allowed)
}

func TestEntitlementService_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.entitlement.CanCreateTest(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.entitlement.CanUploadFile(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEntitlementService_CanUploadFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fresh := testutil.TestUser(t, env.db)
	exhausted := testutil.TestUser(t, env.db)
	testutil.TestUploadQuota(t, env.db, exhausted.ID, 5)

	perm, err := env.entitlement.CanUploadFile(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, perm.Allowed)
	assert.Zero(t, perm.UploadsUsed)
	assert.Equal(t, dto.Limit(5), perm.UploadsLimit)

	perm, err = env.entitlement.CanUploadFile(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.False(t, perm.Allowed)
	assert.NotEmpty(t, perm.Reason)
}

func TestEntitlementService_ReserveUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)

	for i := 0; i < 5; i++ {
		counted, err := env.entitlement.ReserveUpload(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, counted)
	}

	_, err := env.entitlement.ReserveUpload(ctx, user.ID)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	require.NoError(t, env.entitlement.ReleaseUpload(ctx, user.ID))
	counted, err := env.entitlement.ReserveUpload(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, counted)
}

func TestEntitlementService_ReserveUpload_Subscriber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db, testutil.WithStatus(model.SubscriptionActive))

	counted, err := env.entitlement.ReserveUpload(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, counted)

	perm, err := env.entitlement.CanUploadFile(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, perm.UploadsUsed)
	assert.True(t, perm.UploadsLimit.IsUnlimited())
}

func TestEntitlementService_GetEntitlement(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db)
	testutil.TestTest(t, env.db, user.ID)
	testutil.TestUploadQuota(t, env.db, user.ID, 3)

	ent, err := env.entitlement.GetEntitlement(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, ent.IsSubscribed)
	assert.Equal(t, model.SubscriptionInactive, ent.SubscriptionStatus)
	assert.Equal(t, 1, ent.TestsUsed)
	assert.Equal(t, dto.Limit(2), ent.TestsLimit)
	assert.Equal(t, 3, ent.UploadsUsed)
	assert.Equal(t, dto.Limit(5), ent.UploadsLimit)
}
