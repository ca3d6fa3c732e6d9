package domain

import "encoding/json"

// Server to client event names.
const (
	EventMessageHistory   = "messageHistory"
	EventNewMessage       = "newMessage"
	EventMessageDeleted   = "messageDeleted"
	EventUserTyping       = "userTyping"
	EventUserStopTyping   = "userStopTyping"
	EventUserStatusUpdate = "userStatusUpdate"
	EventWhiteboardUpdate = "whiteboardUpdate"
	EventWhiteboardState  = "whiteboardState"
	EventUserCursor       = "userCursor"
	EventError            = "error"
)

type MessageDeletedPayload struct {
	MessageID int64 `json:"messageId"`
}

type TypingPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	ChannelID string `json:"channelId"`
}

type UserStatusPayload struct {
	Users []User `json:"users"`
}

type WhiteboardUpdatePayload struct {
	ChannelID      string          `json:"channelId"`
	CanvasSnapshot json.RawMessage `json:"canvasSnapshot"`
	ChangeType     string          `json:"changeType,omitempty"`
	ChangeData     json.RawMessage `json:"changeData,omitempty"`
}

type WhiteboardStatePayload struct {
	ChannelID      string          `json:"channelId"`
	CanvasSnapshot json.RawMessage `json:"canvasSnapshot"`
}

type CursorPayload struct {
	ChannelID string  `json:"channelId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	UserColor string  `json:"userColor"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
