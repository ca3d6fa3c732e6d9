package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

// Client to server event names.
const (
	TypeJoin                 = "join"
	TypeJoinAsGuest          = "joinAsGuest"
	TypeTyping               = "typing"
	TypeStopTyping           = "stopTyping"
	TypeSendMessage          = "sendMessage"
	TypeFileUploaded         = "fileUploaded"
	TypeDeleteMessage        = "deleteMessage"
	TypeDeleteExpiredMessage = "deleteExpiredMessage"
	TypeJoinWhiteboard       = "joinWhiteboard"
	TypeWhiteboardChange     = "whiteboardChange"
	TypeWhiteboardCursor     = "whiteboardCursor"
)

// Message is the frame envelope in both directions.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inbound keeps the payload raw until the type is known.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinPayload struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar"`
	ChannelID  string `json:"channelId"`
}

type ChannelPayload struct {
	ChannelID string `json:"channelId"`
}

type TypingPayload struct {
	ChannelID string `json:"channelId"`
	UserName  string `json:"userName"`
}

type SendMessagePayload struct {
	Text          string `json:"text"`
	ChannelID     string `json:"channelId"`
	ExpireMinutes int    `json:"expireMinutes"`
}

// UploadedMessage is the message object a client reports after an upload.
// It carries the id of a message stored through the HTTP upload endpoint, or
// the attachment metadata to store now.
type UploadedMessage struct {
	ID            int64  `json:"id"`
	FilePath      string `json:"filePath"`
	FileName      string `json:"fileName"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	ExpireMinutes int    `json:"expireMinutes"`
}

func (m UploadedMessage) attachment() domain.Attachment {
	return domain.Attachment{FilePath: m.FilePath, FileName: m.FileName, FileType: m.FileType, FileSize: m.FileSize}
}

type FileUploadedPayload struct {
	Message   UploadedMessage `json:"message"`
	ChannelID string          `json:"channelId"`
}

type MessageRefPayload struct {
	MessageID int64  `json:"messageId"`
	ChannelID string `json:"channelId"`
}

type WhiteboardChangePayload struct {
	ChannelID  string          `json:"channelId"`
	CanvasData json.RawMessage `json:"canvasData"`
	ChangeType string          `json:"changeType"`
	ChangeData json.RawMessage `json:"changeData"`
}

// Error codes sent in the error event.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeMalformed       = "malformed_payload"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)
