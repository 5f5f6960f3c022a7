package domain

import (
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User - запись присутствия пользователя в комнате.
// Онлайн, пока now - LastSeen < presence TTL.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Room       string     `json:"room"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LastSeen   time.Time  `json:"lastSeen"`
	IsTyping   bool       `json:"isTyping"`
	Role       string     `json:"role"`
	IsMuted    bool       `json:"isMuted"`
	MutedUntil *time.Time `json:"mutedUntil,omitempty"`
}

func PresenceID(username, room string) string {
	return username + "-" + room
}

// PresenceKey - ключ уникальности имени в комнате (без учета регистра)
func PresenceKey(username string) string {
	return strings.ToLower(username)
}

func (u *User) Online(now time.Time, ttl time.Duration) bool {
	return now.Sub(u.LastSeen) < ttl
}

// MutedAt учитывает истечение мьюта
func (u *User) MutedAt(now time.Time) bool {
	if !u.IsMuted {
		return false
	}
	return u.MutedUntil == nil || now.Before(*u.MutedUntil)
}

func (u *User) Clone() *User {
	c := *u
	if u.MutedUntil != nil {
		t := *u.MutedUntil
		c.MutedUntil = &t
	}
	return &c
}

type TypingStatus struct {
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp time.Time `json:"timestamp"`
}
