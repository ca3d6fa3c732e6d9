package domain

import (
	"net/url"
	"time"
)

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusIdle    UserStatus = "idle"
	StatusDND     UserStatus = "dnd"
	StatusOffline UserStatus = "offline"
	StatusBanned  UserStatus = "banned"
)

const (
	RoleMember = "Member"
	RoleBanned = "Banned"
)

type User struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	AvatarURL string     `json:"avatar" db:"avatar"`
	Status    UserStatus `json:"status" db:"status"`
	Role      string     `json:"role" db:"role"`
	JoinedAt  time.Time  `json:"joinedAt" db:"joined_at"`
}

// DefaultAvatar is used for users that join without an avatar of their own.
func DefaultAvatar(name string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(name)
}
