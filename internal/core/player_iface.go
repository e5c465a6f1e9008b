package core

type PlayerState int

const (
	PlayerUnstarted PlayerState = iota
	PlayerEnded
	PlayerPlaying
	PlayerPaused
	PlayerBuffering
	PlayerCued
)

func (s PlayerState) String() string {
	switch s {
	case PlayerUnstarted:
		return "unstarted"
	case PlayerEnded:
		return "ended"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	case PlayerBuffering:
		return "buffering"
	case PlayerCued:
		return "cued"
	}
	return "unknown"
}

// Player is the local playback surface owned by the rendering
// collaborator. The clock synchronizer never assumes more than this.
type Player interface {
	State() PlayerState
	CurrentTime() float64
	SeekTo(seconds float64)
	Play()
	Pause()
}
