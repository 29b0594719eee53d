package logbuffer

import (
	"time"
)

// GeneralChannel is the channel ID of lines not tied to any log channel.
const GeneralChannel = ""

// Event is one log record as handed to the buffer. The buffer stores it
// verbatim; validating its contents is up to the caller.
type Event struct {
	Message   string `json:"message"`
	Subject   string `json:"subject,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Level     Level  `json:"level"`
	TimeStamp int64  `json:"ts_ms"`
}

// NewEvent returns an event stamped with the current time.
func NewEvent(level Level, channelID, subject, message string) Event {
	return Event{
		Message:   message,
		Subject:   subject,
		ChannelID: channelID,
		Level:     level,
		TimeStamp: NowMS(),
	}
}

// IsGeneral reports whether the event belongs to the general channel.
func (e Event) IsGeneral() bool {
	return e.ChannelID == GeneralChannel
}

// BufferLine is an event together with the line number it was stored under.
type BufferLine struct {
	Nr    uint64 `json:"nr"`
	Event Event  `json:"event"`
}

func NowMS() int64 {
	return time.Now().UnixMilli()
}
