package types

// Typed payloads for the outbound event surface. Every payload struct maps
// one-to-one to an Event Type constant.

type JoinAcceptedPayload struct {
	ConnectionID string `json:"connection_id"`
	StudentID    string `json:"student_id"`
	ClassCode    string `json:"class_code"`
}

type JoinRejectedPayload struct {
	Reason string `json:"reason"`
}

type RejoinRejectedPayload struct {
	Reason        string `json:"reason"`
	ClassInactive bool   `json:"class_inactive"`
}

type MemberJoinedPayload struct {
	ConnectionID string `json:"connection_id"`
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
}

type MemberLeftPayload struct {
	ConnectionID string `json:"connection_id"`
	Reason       string `json:"reason"`
}

type MemberListPayload struct {
	ClassCode string   `json:"class_code"`
	Members   []Member `json:"members"`
}

// DocumentSnapshotPayload answers a viewer subscribe request. Found is false
// when the target vanished between the request and its resolution; the
// document fields are then empty, not an error.
type DocumentSnapshotPayload struct {
	ConnectionID string   `json:"connection_id"`
	StudentName  string   `json:"student_name"`
	Document     Document `json:"document"`
	Found        bool     `json:"found"`
}

type DocumentUpdatedPayload struct {
	ConnectionID string   `json:"connection_id"`
	Document     Document `json:"document"`
}

type GroupMessagePayload struct {
	ClassCode string `json:"class_code"`
	Text      string `json:"text"`
}

type ForceRemovedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
