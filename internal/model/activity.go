package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActivityInviteCreated      = "invite_created"
	ActivityInviteDeleted      = "invite_deleted"
	ActivityInviteRedeemed     = "invite_redeemed"
	ActivityUserCreated        = "user_created"
	ActivityUserDisabled       = "user_disabled"
	ActivityUserEnabled        = "user_enabled"
	ActivityUserDeleted        = "user_deleted"
	ActivityUserExpiryExtended = "user_expiry_extended"
)

type Activity struct {
	Id             uuid.UUID
	Kind           string
	Subject        string
	ActorId        *uuid.UUID
	Detail         *string
	CreateDatetime time.Time
}

type ActivityResponse struct {
	Id             uuid.UUID `json:"id"`
	Kind           string    `json:"kind"`
	Subject        string    `json:"subject"`
	ActorId        *string   `json:"actorId"`
	Detail         *string   `json:"detail"`
	CreateDatetime time.Time `json:"createDatetime"`
}

type ActivityListResponse struct {
	Data []ActivityResponse `json:"data"`
	Page struct {
		NextCursor string `json:"nextCursor,omitempty"`
	} `json:"page"`
}

type ActivityCursor struct {
	Id             uuid.UUID `json:"id"`
	CreateDatetime time.Time `json:"createDatetime"`
}
