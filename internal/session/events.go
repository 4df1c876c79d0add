package session

import "encoding/json"

// rawEvent captures just enough of an inbound JSON telemetry event to route
// it: the discriminator plus the raw fields needed by each recognised
// variant. Unknown types, and unknown fields within a recognised type, are
// ignored — the full raw line is still persisted to telemetry regardless of
// whether it parses into a recognised variant.
type rawEvent struct {
	Type string `json:"type"`

	// SessionStarted
	MeetingURL string `json:"meetingUrl"`
	BotName    string `json:"botName"`

	// AudioFormatUpdate
	Format *rawAudioFormat `json:"format"`

	// UsersUpdate
	NewUsers     []rawUser `json:"newUsers"`
	UpdatedUsers []rawUser `json:"updatedUsers"`
	RemovedUsers []rawUser `json:"removedUsers"`

	// MeetingStatusChange
	Change string `json:"change"`
}

type rawAudioFormat struct {
	SampleRate       float64 `json:"sampleRate"`
	NumberOfChannels float64 `json:"numberOfChannels"`
	NumberOfFrames   float64 `json:"numberOfFrames"`
	Format           string  `json:"format"`
}

type rawUser struct {
	DeviceID      string `json:"deviceId"`
	DisplayName   string `json:"displayName"`
	FullName      string `json:"fullName"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

const (
	eventSessionStarted      = "SessionStarted"
	eventAudioFormatUpdate   = "AudioFormatUpdate"
	eventUsersUpdate         = "UsersUpdate"
	eventMeetingStatusChange = "MeetingStatusChange"

	meetingStatusRemovedFromMeeting = "removed_from_meeting"
)

// parseEvent unmarshals a telemetry line into a rawEvent. Unparseable JSON
// is the caller's concern to log; the raw bytes are written to telemetry
// either way.
func parseEvent(line []byte) (rawEvent, error) {
	var ev rawEvent
	err := json.Unmarshal(line, &ev)
	return ev, err
}
