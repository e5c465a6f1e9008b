package httpapi

import "github.com/peersync/watchparty/internal/domain"

// Inbound frames from the client. Type selects the action; the other
// fields are read per type.
type clientFrame struct {
	Type  string  `json:"type"`
	Name  string  `json:"name,omitempty"`
	Room  string  `json:"room,omitempty"`
	Text  string  `json:"text,omitempty"`
	URL   string  `json:"url,omitempty"`
	State string  `json:"state,omitempty"`
	Time  float64 `json:"time,omitempty"`
}

// Outbound frames to the client.
type serverFrame struct {
	Type  string       `json:"type"`
	Room  *domain.Room `json:"room,omitempty"`
	From  string       `json:"from,omitempty"`
	Time  float64      `json:"time,omitempty"`
	Error string       `json:"error,omitempty"`
}

const (
	frameHello      = "hello"
	frameCreate     = "create"
	frameJoin       = "join"
	frameChat       = "chat"
	frameLoad       = "load"
	frameTogglePlay = "toggle_play"
	frameStartShare = "start_share"
	frameStopShare  = "stop_share"
	frameLeave      = "leave"
	framePlayer     = "player"

	frameRoom         = "room"
	frameCreated      = "created"
	framePlay         = "play"
	framePause        = "pause"
	frameSeek         = "seek"
	frameShareStarted = "share_started"
	frameShareStopped = "share_stopped"
	frameError        = "error"
)
