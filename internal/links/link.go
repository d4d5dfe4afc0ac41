// Package links holds the in-memory table routing workspace channels to remote threads.
package links

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Link pairs one workspace channel with one remote thread. JSON keys match saved_data.json.
type Link struct {
	ChannelID         string     `json:"slack_channel"`
	RemoteThreadID    string     `json:"fb_thread"`
	RemoteDisplayName string     `json:"fb_name"`
	IconURL           string     `json:"icon"`
	IsTyping          bool       `json:"is_typing"`
	TypingStartedAt   *Timestamp `json:"typing_start_time,omitempty"`
}

// New builds an idle link for a resolved contact.
func New(channelID, contactID, displayName string) Link {
	return Link{
		ChannelID:         channelID,
		RemoteThreadID:    contactID,
		RemoteDisplayName: displayName,
		IconURL:           IconURL(contactID),
	}
}

// IconURL returns the square avatar URL for a remote user id.
func IconURL(userID string) string {
	return fmt.Sprintf("http://graph.facebook.com/%s/picture?type=square", userID)
}

// Timestamp is a point in time encoded as fractional Unix seconds.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t with the monotonic reading stripped.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.Round(0)}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%d.%09d", ts.Unix(), ts.Nanosecond())), nil
}

// UnmarshalJSON accepts fractional Unix seconds or an RFC 3339 string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		ts.Time = t
		return nil
	}

	raw := string(data)
	whole, frac, _ := strings.Cut(raw, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw, err)
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		if nsec, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return fmt.Errorf("timestamp %q: %w", raw, err)
		}
	}
	ts.Time = time.Unix(sec, nsec)
	return nil
}
