// Package invite holds the pure validity rules for invite codes. Everything
// here is side-effect free and takes the current instant as an argument, so
// the same code path decides both what the signup form displays and what the
// redemption transaction enforces.
package invite

import (
	"errors"
	"time"

	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
)

// ErrInvalidDuration signals a malformed account-expiry duration stored on an
// invite record. It is a data-integrity problem, never user input, so callers
// surface it as an internal error.
var ErrInvalidDuration = errors.New("invite: negative account-expiry duration component")

type Evaluation struct {
	// Usable reports whether a redemption attempt at the evaluated instant
	// would be allowed to proceed.
	Usable bool

	// Reason is constant.ERR_INVITE_EXPIRED_CODE or
	// constant.ERR_INVITE_EXHAUSTED_CODE when Usable is false, empty otherwise.
	Reason string

	// AccountExpiry is the expiry instant a newly created account should
	// receive. Nil means the account never expires.
	AccountExpiry *time.Time

	// UsesRemaining is nil for unlimited invites, otherwise the number of
	// redemptions left. Display only; the redemption path re-checks under a
	// transaction.
	UsesRemaining *int
}

// Evaluate answers, for one invite at one instant: is it redeemable, what
// expiry would a new account get, and how many uses are left.
//
// Boundaries are strict per the API contract: an invite whose expiry equals
// now is already expired, and usedCount == maxUses is already exhausted.
func Evaluate(inv model.Invite, now time.Time) (Evaluation, error) {
	eval := Evaluation{}

	if inv.MaxUses != nil {
		remaining := *inv.MaxUses - inv.UsedCount
		if remaining < 0 {
			remaining = 0
		}
		eval.UsesRemaining = &remaining
	}

	switch {
	case inv.ExpiresDatetime != nil && !now.Before(*inv.ExpiresDatetime):
		eval.Reason = constant.ERR_INVITE_EXPIRED_CODE
	case inv.MaxUses != nil && inv.UsedCount >= *inv.MaxUses:
		eval.Reason = constant.ERR_INVITE_EXHAUSTED_CODE
	default:
		eval.Usable = true
	}

	expiry, err := AccountExpiry(inv, now)
	if err != nil {
		return Evaluation{}, err
	}
	eval.AccountExpiry = expiry

	return eval, nil
}

// AccountExpiry computes the expiry instant for an account created at now.
// Months are true calendar months via time.AddDate, so "1 month" from Jan 31
// lands on Mar 2/3 the way the rest of the Go ecosystem normalizes it; this
// is a fixed policy, not an approximation. An all-zero duration means "no
// expiry", never "expires immediately".
func AccountExpiry(inv model.Invite, now time.Time) (*time.Time, error) {
	if !inv.UserExpiryEnabled {
		return nil, nil
	}

	if inv.UserExpiryMonths < 0 || inv.UserExpiryDays < 0 || inv.UserExpiryHours < 0 || inv.UserExpiryMinutes < 0 {
		return nil, ErrInvalidDuration
	}

	if inv.UserExpiryMonths == 0 && inv.UserExpiryDays == 0 && inv.UserExpiryHours == 0 && inv.UserExpiryMinutes == 0 {
		return nil, nil
	}

	expiry := now.AddDate(0, inv.UserExpiryMonths, inv.UserExpiryDays).
		Add(time.Duration(inv.UserExpiryHours)*time.Hour + time.Duration(inv.UserExpiryMinutes)*time.Minute)

	return &expiry, nil
}
