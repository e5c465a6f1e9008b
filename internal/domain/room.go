// Package domain contains entity without logic, just meta-data
package domain

import (
	"crypto/rand"
	"time"
)

type RoomID string

const roomIDLen = 6

const roomIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRoomID generates a short shareable code. Uniqueness is
// probabilistic, there is no collision check against the store.
func NewRoomID() RoomID {
	buf := make([]byte, roomIDLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = roomIDCharset[int(b)%len(roomIDCharset)]
	}
	return RoomID(buf)
}

type MediaSource string

const (
	SourceNone    MediaSource = ""
	SourceYouTube MediaSource = "youtube"
	SourceDrive   MediaSource = "drive"
)

// Room is the shared session document participants converge on.
// Field names follow the live store layout, so a Room marshals into the
// exact shape the store holds under rooms/<id>.
type Room struct {
	ID           RoomID            `json:"id"`
	Host         Identity          `json:"host"`
	Name         string            `json:"roomName"`
	Participants map[Identity]bool `json:"participants"`
	CreatedAt    int64             `json:"createdAt"`
	VideoID      string            `json:"videoId"`
	VideoSource  MediaSource       `json:"videoSource"`
	IsPlaying    bool              `json:"isPlaying"`
	CurrentTime  float64           `json:"currentTime"`
	Messages     []ChatMessage     `json:"messages"`
	IsSharing    bool              `json:"isSharing"`
	ShareHost    Identity          `json:"shareHost"`
}

// NewRoom builds the initial document with the creator as sole participant
// and host.
func NewRoom(id RoomID, host Identity) *Room {
	return &Room{
		ID:           id,
		Host:         host,
		Name:         string(host) + "'s Room",
		Participants: map[Identity]bool{host: true},
		CreatedAt:    time.Now().UnixMilli(),
		VideoSource:  SourceYouTube,
		Messages:     []ChatMessage{},
	}
}

// HasVideo reports whether a playable media source is loaded.
func (r *Room) HasVideo() bool {
	return r.VideoID != ""
}

// Clone deep-copies the document so snapshots never alias live state.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Participants = make(map[Identity]bool, len(r.Participants))
	for k, v := range r.Participants {
		out.Participants[k] = v
	}
	out.Messages = make([]ChatMessage, len(r.Messages))
	copy(out.Messages, r.Messages)
	return &out
}

// ParticipantList returns the participant identities in no particular order.
func (r *Room) ParticipantList() []Identity {
	out := make([]Identity, 0, len(r.Participants))
	for p, present := range r.Participants {
		if present {
			out = append(out, p)
		}
	}
	return out
}
