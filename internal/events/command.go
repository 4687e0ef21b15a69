package events

import "ctchen222/tictactoe-solo/pkg/proto"

// Event types used to reach a session owned by another instance.
const (
	TypeCommand = "command"
	TypeReply   = "reply"
)

// Reply error codes that map back to sentinel errors on the caller.
const (
	ReplyErrNotFound = "not_found"
	ReplyErrClosed   = "closed"
)

// CommandPayload is the payload for the "command" event.
type CommandPayload struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Cell      int    `json:"cell,omitempty"`
}

// ReplyPayload is the payload for the "reply" event.
type ReplyPayload struct {
	RequestID string      `json:"request_id"`
	Applied   bool        `json:"applied"`
	View      *proto.View `json:"view,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// CommandTopic carries commands for the instance owning sessionID.
func CommandTopic(sessionID string) string {
	return sessionID + ":commands"
}

// ReplyTopic carries the answer to one forwarded command.
func ReplyTopic(requestID string) string {
	return "reply:" + requestID
}
