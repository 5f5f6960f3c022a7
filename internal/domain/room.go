package domain

import (
	"sort"
	"strings"
	"time"
)

// Room - комната чата или личный диалог (DM)
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	IsActive     bool      `json:"isActive"`
	UserCount    int       `json:"userCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IsDM         bool      `json:"isDM"`
	Participants []string  `json:"participants,omitempty"`
	Owner        *string   `json:"owner,omitempty"`
	Moderators   []string  `json:"moderators"`
	BannedUsers  []string  `json:"bannedUsers"`
	Version      int64     `json:"-"`
}

const (
	DMDescription = "Direct Message"
	DMRoomPrefix  = "dm_"
)

// DMPair возвращает участников диалога в каноническом порядке
func DMPair(userA, userB string) (string, string) {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// DMRoomID детерминированно выводит id комнаты из пары участников
func DMRoomID(userA, userB string) string {
	a, b := DMPair(userA, userB)
	return DMRoomPrefix + a + "_" + b
}

// NormalizeRoomName приводит имя комнаты из сокета к каноническому виду
func NormalizeRoomName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, "#")
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Room) CanModerate(username string) bool {
	if r.Owner != nil && *r.Owner == username {
		return true
	}
	return containsString(r.Moderators, username)
}

// IsBanned сравнивает имена без учета регистра, как и уникальность имен в комнате
func (r *Room) IsBanned(username string) bool {
	for _, v := range r.BannedUsers {
		if strings.EqualFold(v, username) {
			return true
		}
	}
	return false
}

func (r *Room) HasParticipant(username string) bool {
	return containsString(r.Participants, username)
}

func (r *Room) Clone() *Room {
	c := *r
	c.Participants = cloneStrings(r.Participants)
	c.Moderators = cloneStrings(r.Moderators)
	c.BannedUsers = cloneStrings(r.BannedUsers)
	if r.Description != nil {
		d := *r.Description
		c.Description = &d
	}
	if r.Owner != nil {
		o := *r.Owner
		c.Owner = &o
	}
	return &c
}

// Normalize заменяет nil-срезы пустыми, чтобы в JSON и БД не было null
func (r *Room) Normalize() {
	if r.Moderators == nil {
		r.Moderators = []string{}
	}
	if r.BannedUsers == nil {
		r.BannedUsers = []string{}
	}
	if r.Participants == nil {
		r.Participants = []string{}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// addString добавляет элемент с семантикой множества
func addString(list []string, s string) []string {
	if containsString(list, s) {
		return list
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func cloneStrings(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

func (r *Room) AddModerator(username string)    { r.Moderators = addString(r.Moderators, username) }
func (r *Room) RemoveModerator(username string) { r.Moderators = removeString(r.Moderators, username) }

// Ban и Unban работают без учета регистра, как IsBanned
func (r *Room) Ban(username string) {
	if !r.IsBanned(username) {
		r.BannedUsers = append(r.BannedUsers, username)
	}
}

func (r *Room) Unban(username string) {
	out := r.BannedUsers[:0:0]
	for _, v := range r.BannedUsers {
		if !strings.EqualFold(v, username) {
			out = append(out, v)
		}
	}
	r.BannedUsers = out
}
