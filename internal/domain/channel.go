package domain

import (
	"encoding/json"
	"time"
)

type ChannelType string

const (
	ChannelText       ChannelType = "text"
	ChannelNote       ChannelType = "note"
	ChannelWhiteboard ChannelType = "whiteboard"
)

// DefaultChannelID is used when a client omits the channel.
const DefaultChannelID = "c1"

const whiteboardGroupPrefix = "whiteboard:"

type Channel struct {
	ID                 string          `db:"id"`
	ServerID           int64           `db:"server_id"`
	Name               string          `db:"name"`
	Type               ChannelType     `db:"type"`
	WhiteboardSnapshot json.RawMessage `db:"whiteboard_data"`
	CreatedAt          time.Time       `db:"created_at"`
}

// WhiteboardGroup is the broadcast group of a whiteboard channel's drawing room.
func WhiteboardGroup(channelID string) string {
	return whiteboardGroupPrefix + channelID
}

func ChannelOrDefault(id string) string {
	if id == "" {
		return DefaultChannelID
	}
	return id
}
