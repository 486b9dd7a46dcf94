package model

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Profile is a named template of library-access settings copied onto accounts
// created through an invite. Policy holds a Jellyfin user-policy document as
// raw JSON so new server-side policy fields pass through untouched.
type Profile struct {
	Id              uuid.UUID
	Name            string
	Policy          sonic.NoCopyRawMessage
	AvatarObjectKey *string
	CreatedBy       uuid.UUID
	CreateDatetime  time.Time
	UpdateDatetime  time.Time
}

type ProfileCreateRequest struct {
	Name   string                 `json:"name"`
	Policy sonic.NoCopyRawMessage `json:"policy"`
}

type ProfileCaptureRequest struct {
	Name           string `json:"name"`
	JellyfinUserId string `json:"jellyfinUserId"`
}

type ProfileResponse struct {
	Id             uuid.UUID              `json:"id"`
	Name           string                 `json:"name"`
	Policy         sonic.NoCopyRawMessage `json:"policy"`
	HasAvatar      bool                   `json:"hasAvatar"`
	CreateDatetime time.Time              `json:"createDatetime"`
}
