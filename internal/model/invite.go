package model

import (
	"time"

	"github.com/google/uuid"
)

// Invite is one shareable code granting permission to self-register an
// account. MaxUses nil means unlimited; ExpiresDatetime nil means the invite
// never expires on its own timeline. Both are pointers on purpose so that
// "unset" and "zero" never get conflated.
type Invite struct {
	Code               string
	Label              *string
	UserLabel          *string
	CreatedBy          uuid.UUID
	ExpiresDatetime    *time.Time
	MaxUses            *int
	UsedCount          int
	UserExpiryEnabled  bool
	UserExpiryMonths   int
	UserExpiryDays     int
	UserExpiryHours    int
	UserExpiryMinutes  int
	ProfileId          *uuid.UUID
	SendTo             *string
	CreateDatetime     time.Time
	UpdateDatetime     time.Time
}

type InviteCreateRequest struct {
	Label             *string    `json:"label"`
	UserLabel         *string    `json:"userLabel"`
	ExpiresInMinutes  *int       `json:"expiresInMinutes"`
	MaxUses           *int       `json:"maxUses"`
	UserExpiryEnabled bool       `json:"userExpiryEnabled"`
	UserExpiryMonths  int        `json:"userExpiryMonths"`
	UserExpiryDays    int        `json:"userExpiryDays"`
	UserExpiryHours   int        `json:"userExpiryHours"`
	UserExpiryMinutes int        `json:"userExpiryMinutes"`
	ProfileId         *uuid.UUID `json:"profileId"`
	SendTo            *string    `json:"sendTo"`
}

type InviteCreateResponse struct {
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type InviteRedeemRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    *string `json:"email"`
}

// InviteInfoResponse is the public-safe view served to the signup form before
// submission. It is produced by the same validity evaluator that gates
// redemption, so what is displayed always matches what will be enforced.
type InviteInfoResponse struct {
	Code              string     `json:"code"`
	Label             *string    `json:"label"`
	UserLabel         *string    `json:"userLabel"`
	ExpiresAt         *time.Time `json:"expiresAt"`
	UsesRemaining     *int       `json:"usesRemaining"`
	Usable            bool       `json:"usable"`
	Reason            string     `json:"reason,omitempty"`
	UserExpiryEnabled bool       `json:"userExpiryEnabled"`
	UserExpiryMonths  int        `json:"userExpiryMonths"`
	UserExpiryDays    int        `json:"userExpiryDays"`
	UserExpiryHours   int        `json:"userExpiryHours"`
	UserExpiryMinutes int        `json:"userExpiryMinutes"`
}

type InviteListItemResponse struct {
	Code           string     `json:"code"`
	Label          *string    `json:"label"`
	UserLabel      *string    `json:"userLabel"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	MaxUses        *int       `json:"maxUses"`
	UsedCount      int        `json:"usedCount"`
	UsesRemaining  *int       `json:"usesRemaining"`
	Usable         bool       `json:"usable"`
	ProfileId      *uuid.UUID `json:"profileId"`
	SendTo         *string    `json:"sendTo"`
	CreateDatetime time.Time  `json:"createDatetime"`
}

type InviteEmailTemplateData struct {
	InviteURL string
	Label     string
	ExpiresAt string
}
