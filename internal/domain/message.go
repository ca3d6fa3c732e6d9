package domain

import (
	"net/url"
	"strings"
	"time"
)

// Attachment describes a file that was uploaded out of band.
type Attachment struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// Message is a persisted channel message. Author name and avatar are captured
// at send time and are not updated when the author changes them later.
type Message struct {
	ID           int64      `json:"id" db:"id"`
	ChannelID    string     `json:"channelId" db:"channel_id"`
	AuthorID     string     `json:"userId" db:"user_id"`
	AuthorName   string     `json:"userName" db:"user_name"`
	AuthorAvatar string     `json:"userAvatar" db:"user_avatar"`
	Text         string     `json:"text" db:"text"`
	FilePath     *string    `json:"filePath" db:"file_path"`
	FileName     *string    `json:"fileName" db:"file_name"`
	FileType     *string    `json:"fileType" db:"file_type"`
	FileSize     *int64     `json:"fileSize" db:"file_size"`
	IsLink       bool       `json:"isLink" db:"is_link"`
	CreatedAt    time.Time  `json:"timestamp" db:"timestamp"`
	ExpireAt     *time.Time `json:"expireAt" db:"expire_at"`
}

func (m *Message) SetAttachment(a Attachment) {
	m.FilePath = &a.FilePath
	m.FileName = &a.FileName
	m.FileType = &a.FileType
	m.FileSize = &a.FileSize
}

func (m *Message) HasFile() bool {
	return m.FilePath != nil && *m.FilePath != ""
}

// Expired reports whether the message carries an expiry that is not after now.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpireAt != nil && !now.Before(*m.ExpireAt)
}

// IsLinkText reports whether text is a single bare http(s) URL and nothing else.
func IsLinkText(text string) bool {
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExpireAtFor returns nil for a non-positive number of minutes.
func ExpireAtFor(now time.Time, minutes int) *time.Time {
	if minutes <= 0 {
		return nil
	}
	t := now.Add(time.Duration(minutes) * time.Minute)
	return &t
}
