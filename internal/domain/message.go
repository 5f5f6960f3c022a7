package domain

import (
	"time"
)

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"

	SystemUsername         = "System"
	DeletedMessageText     = "[Message deleted]"
	DefaultMaxMessageRunes = 500
)

type Message struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	Text        string       `json:"text"`
	Room        string       `json:"room"`
	Timestamp   time.Time    `json:"timestamp"`
	Type        string       `json:"type"`
	Reactions   []Reaction   `json:"reactions"`
	Edited      bool         `json:"edited"`
	EditedAt    *time.Time   `json:"editedAt,omitempty"`
	EditHistory []EditRecord `json:"editHistory"`
	Deleted     bool         `json:"deleted"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
	// Version растет на каждое изменение; клиенты в poll-режиме
	// заменяют сообщение целиком только более новой версией
	Version int64 `json:"version"`
}

// Reaction - агрегат реакций одного эмодзи. Count всегда равен len(Users).
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// EditRecord хранит текст до правки
type EditRecord struct {
	Text     string    `json:"text"`
	EditedAt time.Time `json:"editedAt"`
}

// ToggleReaction переключает реакцию пользователя. Пустые записи удаляются.
// Возвращает true, если реакция была добавлена.
func (m *Message) ToggleReaction(emoji, username string) bool {
	for i := range m.Reactions {
		r := &m.Reactions[i]
		if r.Emoji != emoji {
			continue
		}
		if containsString(r.Users, username) {
			r.Users = removeString(r.Users, username)
			r.Count = len(r.Users)
			if r.Count == 0 {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			}
			return false
		}
		r.Users = append(r.Users, username)
		r.Count = len(r.Users)
		return true
	}

	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Users: []string{username}, Count: 1})
	return true
}

// ApplyEdit сохраняет предыдущий текст в истории и ставит новый
func (m *Message) ApplyEdit(text string, now time.Time) {
	m.EditHistory = append(m.EditHistory, EditRecord{Text: m.Text, EditedAt: now})
	m.Text = text
	m.Edited = true
	m.EditedAt = &now
}

func (m *Message) SoftDelete(now time.Time) {
	m.Text = DeletedMessageText
	m.Deleted = true
	m.DeletedAt = &now
}

func (m *Message) Clone() *Message {
	c := *m
	c.Reactions = make([]Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		c.Reactions[i] = Reaction{Emoji: r.Emoji, Users: cloneStrings(r.Users), Count: r.Count}
	}
	c.EditHistory = make([]EditRecord, len(m.EditHistory))
	copy(c.EditHistory, m.EditHistory)
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (m *Message) Normalize() {
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	if m.EditHistory == nil {
		m.EditHistory = []EditRecord{}
	}
}
