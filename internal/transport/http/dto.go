package http

import (
	"encoding/json"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessagesPageResponse struct {
	Items      []domain.Message `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type WhiteboardResponse struct {
	ChannelID      string          `json:"channelId"`
	CanvasSnapshot json.RawMessage `json:"canvasSnapshot"`
}

type SaveWhiteboardRequest struct {
	CanvasSnapshot json.RawMessage `json:"canvasSnapshot"`
}

// AttachmentRequest describes a file already stored by an upload proxy.
type AttachmentRequest struct {
	FilePath      string `json:"filePath"`
	FileName      string `json:"fileName"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	ExpireMinutes int    `json:"expireMinutes"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type StatsResponse struct {
	TotalMessages int    `json:"totalMessages"`
	UserID        string `json:"userId,omitempty"`
	UserMessages  int    `json:"userMessages,omitempty"`
}

type UserMessagesResponse struct {
	Items []domain.Message `json:"items"`
}
