package domain

import (
	"fmt"
	"time"
)

const (
	CallStatusWaiting = "waiting"
	CallStatusActive  = "active"
	CallStatusEnded   = "ended"
)

// VideoCall - сессия звонка в комнате: waiting -> active -> ended
type VideoCall struct {
	ID           string     `json:"id"`
	RoomID       string     `json:"roomId"`
	ChannelName  string     `json:"channelName"`
	StartedBy    string     `json:"startedBy"`
	Participants []string   `json:"participants"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Duration     *int64     `json:"duration,omitempty"` // секунды
	Version      int64      `json:"-"`
}

func CallChannelName(roomID string, startedAt time.Time) string {
	return fmt.Sprintf("%s-%d", roomID, startedAt.UnixMilli())
}

func (c *VideoCall) Open() bool {
	return c.Status == CallStatusWaiting || c.Status == CallStatusActive
}

func (c *VideoCall) Ended() bool {
	return c.Status == CallStatusEnded
}

func (c *VideoCall) Join(username string) {
	c.Participants = addString(c.Participants, username)
	c.Status = CallStatusActive
}

func (c *VideoCall) Leave(username string) {
	c.Participants = removeString(c.Participants, username)
}

func (c *VideoCall) End(now time.Time) {
	d := int64(now.Sub(c.StartedAt) / time.Second)
	c.Duration = &d
	c.Status = CallStatusEnded
	c.EndedAt = &now
}

func (c *VideoCall) Clone() *VideoCall {
	cp := *c
	cp.Participants = cloneStrings(c.Participants)
	if cp.Participants == nil {
		cp.Participants = []string{}
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	if c.Duration != nil {
		d := *c.Duration
		cp.Duration = &d
	}
	return &cp
}
