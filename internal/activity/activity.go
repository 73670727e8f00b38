// Package activity defines the normalized conversational unit exchanged
// between the page platform and the bot pipeline, plus the channel metadata
// that correlates an activity with platform identifiers.
package activity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type tags the kind of an Activity.
type Type string

const (
	TypeMessage Type = "message"
	TypeTyping  Type = "typing"
	TypeEvent   Type = "event"
)

// String returns the activity type as a plain string.
func (t Type) String() string {
	return string(t)
}

// Channel-data keys carried in Activity.ChannelData.
const (
	ChannelDataSourceID = "source_id"
	ChannelDataThreadID = "thread_id"
)

// Activity is a normalized unit of conversational content.
type Activity struct {
	ID          string         `json:"id,omitempty"`
	Type        Type           `json:"type"`
	Text        string         `json:"text,omitempty"`
	ChannelData map[string]any `json:"channel_data,omitempty"`
}

// NewMessage creates a message activity with a generated identifier.
func NewMessage(text string, data ChannelData) Activity {
	return Activity{
		ID:          uuid.NewString(),
		Type:        TypeMessage,
		Text:        text,
		ChannelData: data.AsMap(),
	}
}

// IsMessage reports whether the activity carries user-visible message content.
func (a Activity) IsMessage() bool {
	return a.Type == TypeMessage
}

// ChannelData correlates an activity with platform identifiers.
type ChannelData struct {
	SourceID string `json:"source_id"`
	ThreadID string `json:"thread_id"`
}

// AsMap converts channel data into the free-form blob attached to an Activity.
func (d ChannelData) AsMap() map[string]any {
	return map[string]any{
		ChannelDataSourceID: d.SourceID,
		ChannelDataThreadID: d.ThreadID,
	}
}

// TryChannelData extracts channel data from an activity. It is the tolerant
// accessor used before outbound sends: absence is reported, not an error.
func TryChannelData(a Activity) (ChannelData, bool) {
	if len(a.ChannelData) == 0 {
		return ChannelData{}, false
	}
	data := ChannelData{
		SourceID: stringValue(a.ChannelData[ChannelDataSourceID]),
		ThreadID: stringValue(a.ChannelData[ChannelDataThreadID]),
	}
	if data.SourceID == "" && data.ThreadID == "" {
		return ChannelData{}, false
	}
	return data, true
}

// GetChannelData extracts channel data from an activity whose presence was
// already validated upstream. Absence is a contract violation.
func GetChannelData(a Activity) (ChannelData, error) {
	data, ok := TryChannelData(a)
	if !ok {
		return ChannelData{}, fmt.Errorf("activity %s has no channel data", strings.TrimSpace(a.ID))
	}
	return data, nil
}

func stringValue(raw any) string {
	value, _ := raw.(string)
	return strings.TrimSpace(value)
}

// ResourceResponse acknowledges a successful outbound send with the
// platform-assigned resource id.
type ResourceResponse struct {
	ID string `json:"id"`
}
