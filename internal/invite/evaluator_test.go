package invite

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
)

func intPtr(v int) *int {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func baseInvite() model.Invite {
	return model.Invite{
		Code:      "ABC123XY",
		CreatedBy: uuid.New(),
	}
}

func TestEvaluateUnconstrained(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	eval, err := Evaluate(baseInvite(), now)
	require.NoError(t, err)
	require.True(t, eval.Usable)
	require.Empty(t, eval.Reason)
	require.Nil(t, eval.UsesRemaining, "unlimited invites report no remaining-use count")
	require.Nil(t, eval.AccountExpiry)
}

func TestEvaluateExpiryBoundary(t *testing.T) {
	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := baseInvite()
	inv.ExpiresDatetime = timePtr(expires)

	// Exactly at the expiry instant the invite is already expired.
	eval, err := Evaluate(inv, expires)
	require.NoError(t, err)
	require.False(t, eval.Usable)
	require.Equal(t, constant.ERR_INVITE_EXPIRED_CODE, eval.Reason)

	eval, err = Evaluate(inv, expires.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, eval.Usable)
	require.Equal(t, constant.ERR_INVITE_EXPIRED_CODE, eval.Reason)

	eval, err = Evaluate(inv, expires.Add(-time.Second))
	require.NoError(t, err)
	require.True(t, eval.Usable)
}

func TestEvaluateExhaustion(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := baseInvite()
	inv.MaxUses = intPtr(1)

	eval, err := Evaluate(inv, now)
	require.NoError(t, err)
	require.True(t, eval.Usable)
	require.Equal(t, 1, *eval.UsesRemaining)

	inv.UsedCount = 1
	eval, err = Evaluate(inv, now)
	require.NoError(t, err)
	require.False(t, eval.Usable)
	require.Equal(t, constant.ERR_INVITE_EXHAUSTED_CODE, eval.Reason)
	require.Equal(t, 0, *eval.UsesRemaining)

	// Over-consumed records (should not happen) still clamp at zero.
	inv.UsedCount = 5
	eval, err = Evaluate(inv, now)
	require.NoError(t, err)
	require.False(t, eval.Usable)
	require.Equal(t, 0, *eval.UsesRemaining)
}

func TestEvaluateExpiryWinsOverExhaustion(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := baseInvite()
	inv.ExpiresDatetime = timePtr(now.Add(-time.Minute))
	inv.MaxUses = intPtr(1)
	inv.UsedCount = 1

	eval, err := Evaluate(inv, now)
	require.NoError(t, err)
	require.False(t, eval.Usable)
	require.Equal(t, constant.ERR_INVITE_EXPIRED_CODE, eval.Reason)
}

func TestAccountExpiryComputation(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := baseInvite()
	inv.UserExpiryEnabled = true
	inv.UserExpiryDays = 1
	inv.UserExpiryHours = 12

	eval, err := Evaluate(inv, now)
	require.NoError(t, err)
	require.NotNil(t, eval.AccountExpiry)
	require.Equal(t, time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), *eval.AccountExpiry)
}

func TestAccountExpiryCalendarMonths(t *testing.T) {
	now := time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)

	inv := baseInvite()
	inv.UserExpiryEnabled = true
	inv.UserExpiryMonths = 2
	inv.UserExpiryMinutes = 15

	expiry, err := AccountExpiry(inv, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 15, 8, 45, 0, 0, time.UTC), *expiry)
}

func TestAccountExpiryZeroDurationMeansNoExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := baseInvite()
	inv.UserExpiryEnabled = true

	eval, err := Evaluate(inv, now)
	require.NoError(t, err)
	require.True(t, eval.Usable)
	require.Nil(t, eval.AccountExpiry, "all-zero duration disables expiry")
}

func TestAccountExpiryNegativeComponent(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := baseInvite()
	inv.UserExpiryEnabled = true
	inv.UserExpiryDays = -1

	_, err := Evaluate(inv, now)
	require.ErrorIs(t, err, ErrInvalidDuration)
}

func TestEvaluateUnlimitedNeverExhausts(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := baseInvite()
	inv.UsedCount = 10_000

	eval, err := Evaluate(inv, now)
	require.NoError(t, err)
	require.True(t, eval.Usable)
	require.Nil(t, eval.UsesRemaining)
}
