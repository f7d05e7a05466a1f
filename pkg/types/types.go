package types

import (
	"time"
)

// Roles a connection holds for the lifetime of its socket.
const (
	RoleStudent = "student"
	RoleViewer  = "viewer"
)

// Outbound event types delivered over the WebSocket envelope.
const (
	EventJoinAccepted     = "join_accepted"
	EventJoinRejected     = "join_rejected"
	EventRejoinAccepted   = "rejoin_accepted"
	EventRejoinRejected   = "rejoin_rejected"
	EventMemberJoined     = "member_joined"
	EventMemberLeft       = "member_left"
	EventMemberList       = "member_list"
	EventDocumentSnapshot = "document_snapshot"
	EventDocumentUpdated  = "document_updated"
	EventGroupMessage     = "group_message"
	EventForceRemoved     = "force_removed"
	EventError            = "error"
)

// Rejection reasons carried in join_rejected / rejoin_rejected payloads.
const (
	ReasonInvalidClassCode = "invalid_class_code"
	ReasonClassInactive    = "class_inactive"
	ReasonClassFull        = "class_full"
	ReasonInvalidName      = "invalid_name"
	ReasonAlreadyJoined    = "already_joined"
	ReasonJoinFailed       = "join_failed"
)

// Document is the whole-state payload a student pushes on every update.
// Updates replace the entire document; there is no diff format.
type Document struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
}

// Session is the live, in-memory record of one connected student.
// The registry replaces the whole record on every document update, so a
// *Session handed out to a viewer is never mutated after the fact.
type Session struct {
	ConnectionID string    `json:"connection_id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	ClassCode    string    `json:"class_code"`
	Document     Document  `json:"document"`
	LastUpdate   time.Time `json:"last_update"`
}

// SessionRecord is the durable, lagging copy of a Session held by the
// session store. Records self-expire after the retention window.
type SessionRecord struct {
	ConnectionID string    `json:"connection_id" db:"connection_id"`
	StudentID    string    `json:"student_id" db:"student_id"`
	StudentName  string    `json:"student_name" db:"student_name"`
	ClassCode    string    `json:"class_code" db:"class_code"`
	Document     Document  `json:"document"`
	LastUpdate   time.Time `json:"last_update" db:"last_update"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
}

// Class is a class directory record. The relay core only reads Code and
// Active; the rest exists for the admin REST API.
type Class struct {
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClassStatus is the directory lookup result consumed by the lifecycle
// manager at join time.
type ClassStatus struct {
	Found  bool
	Active bool
}

// Event is the outbound envelope written to client connections.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Member is one entry of a member_list payload.
type Member struct {
	ConnectionID string `json:"connection_id"`
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
}
