package domain

import (
	"time"
)

type AuditLog struct {
	ID        int64          `json:"id"`
	EventTime time.Time      `json:"eventTime"`
	Actor     string         `json:"actor"`
	ActorRole string         `json:"actorRole"`
	Room      string         `json:"room"`
	EventType string         `json:"eventType"`
	Target    string         `json:"target,omitempty"`
	Payload   map[string]any `json:"payload"`
}

const (
	ActorRoleOwner       = "owner"
	ActorRoleModerator   = "moderator"
	ActorRoleParticipant = "participant"
	ActorRoleSystem      = "system"
)

const (
	AuditRoomCreated   = "ROOM_CREATED"
	AuditUserKicked    = "USER_KICKED"
	AuditUserBanned    = "USER_BANNED"
	AuditUserUnbanned  = "USER_UNBANNED"
	AuditUserMuted     = "USER_MUTED"
	AuditUserUnmuted   = "USER_UNMUTED"
	AuditUserPromoted  = "USER_PROMOTED"
	AuditUserDemoted   = "USER_DEMOTED"
	AuditMessagePurged = "MESSAGE_PURGED"
	AuditCallEnded     = "CALL_ENDED"
)
