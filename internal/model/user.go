package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id              uuid.UUID
	Username        string
	Email           *string
	Password        string
	JellyfinUserId  string
	ExpiresDatetime *time.Time
	Disabled        bool
	IsAdmin         bool
	InviteCode      *string
	CreateDatetime  time.Time
	UpdateDatetime  time.Time
}

type UserLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	Id             string     `json:"id"`
	Username       string     `json:"username"`
	Email          *string    `json:"email"`
	JellyfinUserId string     `json:"jellyfinUserId"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	Disabled       bool       `json:"disabled"`
	CreateDatetime time.Time  `json:"createDatetime"`
}

type UserExpiryUpdateRequest struct {
	Months  int `json:"months"`
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// UserWatchStats is assembled from Jellyfin playback state and cached in
// redis, so repeated dashboard polls do not hammer the media server.
type UserWatchStats struct {
	UserId        string     `json:"userId"`
	PlayCount     int        `json:"playCount"`
	LastActivity  *time.Time `json:"lastActivity"`
	LastPlayed    *time.Time `json:"lastPlayed"`
	NowPlaying    *string    `json:"nowPlaying"`
	SessionActive bool       `json:"sessionActive"`
}
