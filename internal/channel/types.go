package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ChannelType string

const (
	TypeSlack     ChannelType = "slack"
	TypeMessenger ChannelType = "messenger"
)

// User is a workspace account.
type User struct {
	ID   string
	Name string
}

// Group is a private workspace channel.
type Group struct {
	ID      string
	Name    string
	Members []string
}

// ImageAttachment is an image preview attached to a workspace post.
type ImageAttachment struct {
	ImageURL string
	Fallback string
}

// Post is one outbound workspace message.
type Post struct {
	Text        string
	Username    string
	IconURL     string
	AsUser      bool
	Attachments []ImageAttachment
}

type WorkspaceEventType string

const (
	WorkspaceEventMessage     WorkspaceEventType = "message"
	WorkspaceEventGroupJoined WorkspaceEventType = "group_joined"
)

// SubtypeBotMessage flags messages posted by bots, including the bridge's own relays.
const SubtypeBotMessage = "bot_message"

// WorkspaceEvent is a normalized workspace socket event.
type WorkspaceEvent struct {
	Type        WorkspaceEventType
	Channel     string
	User        string
	SubType     string
	Text        string
	Attachments []ImageAttachment
	ReceivedAt  time.Time
}

// IsDirectMessage reports whether the event arrived in a one-to-one DM channel.
func (e WorkspaceEvent) IsDirectMessage() bool {
	return strings.HasPrefix(e.Channel, "D")
}

// FlexibleID is a remote identifier that may be encoded as a JSON string or number.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flexible id: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string {
	return string(id)
}

// Credentials are the raw login credentials for the remote platform.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest carries either saved AppState or Credentials. AppState wins when both are set.
type LoginRequest struct {
	Credentials *Credentials
	AppState    json.RawMessage
}

// OutgoingMessage is the payload sent to a remote thread.
type OutgoingMessage struct {
	Body string `json:"body"`
	URL  string `json:"url,omitempty"`
}

// UserMatch is one result of a remote name search.
type UserMatch struct {
	UserID FlexibleID `json:"userID"`
	Name   string     `json:"name"`
}

// Profile is a remote user's profile as returned by UserInfo. It does not carry the id.
type Profile struct {
	Name       string `json:"name"`
	FirstName  string `json:"firstName"`
	Vanity     string `json:"vanity"`
	Thumbnail  string `json:"thumbSrc"`
	ProfileURL string `json:"profileUrl"`
	Gender     any    `json:"gender,omitempty"`
	Type       string `json:"type"`
	IsFriend   bool   `json:"isFriend"`
	IsBirthday bool   `json:"isBirthday"`
}

// Friend is one entry of the remote friend list.
type Friend struct {
	UserID     FlexibleID `json:"userID"`
	FullName   string     `json:"fullName"`
	FirstName  string     `json:"firstName"`
	Vanity     string     `json:"vanity"`
	ProfileURL string     `json:"profileUrl"`
	IsFriend   bool       `json:"isFriend"`
}

// RemoteEvent is a raw event from the remote listen stream.
type RemoteEvent struct {
	Type        string             `json:"type"`
	ThreadID    FlexibleID         `json:"threadID"`
	From        FlexibleID         `json:"from"`
	SenderID    FlexibleID         `json:"senderID"`
	Body        *string            `json:"body"`
	IsTyping    bool               `json:"isTyping"`
	Attachments []RemoteAttachment `json:"attachments"`
}

// RemoteAttachment is a raw remote attachment. Which fields are set depends on Type.
type RemoteAttachment struct {
	Type            string      `json:"type"`
	URL             string      `json:"url"`
	FacebookURL     string      `json:"facebookUrl"`
	HiresURL        string      `json:"hiresUrl"`
	LargePreviewURL string      `json:"largePreviewUrl"`
	PreviewURL      string      `json:"previewUrl"`
	RawGifImage     string      `json:"rawGifImage"`
	Title           string      `json:"title"`
	Source          string      `json:"source"`
	Description     string      `json:"description"`
	Image           string      `json:"image"`
	Name            string      `json:"name"`
	Duration        json.Number `json:"duration"`
}
