package httpapi

import (
	"sync"
	"time"

	"github.com/peersync/watchparty/internal/core"
)

// wsPlayer bridges the remote client's media element over the
// websocket. State and position come from the client's periodic
// player frames; control calls turn into outbound frames. The
// position is extrapolated between reports while playing so the
// clock sees a monotonic value instead of a stair-step.
type wsPlayer struct {
	mu       sync.Mutex
	state    core.PlayerState
	position float64
	reported time.Time
	send     func(serverFrame)
}

func newWSPlayer(send func(serverFrame)) *wsPlayer {
	return &wsPlayer{state: core.PlayerUnstarted, reported: time.Now(), send: send}
}

func (p *wsPlayer) State() core.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *wsPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == core.PlayerPlaying {
		return p.position + time.Since(p.reported).Seconds()
	}
	return p.position
}

func (p *wsPlayer) SeekTo(seconds float64) {
	p.mu.Lock()
	p.position = seconds
	p.reported = time.Now()
	p.mu.Unlock()
	p.send(serverFrame{Type: frameSeek, Time: seconds})
}

// Play flips the local estimate optimistically so repeated sync
// passes do not re-issue the command before the client reports back.
func (p *wsPlayer) Play() {
	p.mu.Lock()
	p.state = core.PlayerPlaying
	p.reported = time.Now()
	p.mu.Unlock()
	p.send(serverFrame{Type: framePlay})
}

func (p *wsPlayer) Pause() {
	p.mu.Lock()
	if p.state == core.PlayerPlaying {
		p.position += time.Since(p.reported).Seconds()
	}
	p.state = core.PlayerPaused
	p.reported = time.Now()
	p.mu.Unlock()
	p.send(serverFrame{Type: framePause})
}

// report records a state frame from the client.
func (p *wsPlayer) report(state string, position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch state {
	case "playing":
		p.state = core.PlayerPlaying
	case "paused":
		p.state = core.PlayerPaused
	case "buffering":
		p.state = core.PlayerBuffering
	case "ended":
		p.state = core.PlayerEnded
	case "cued":
		p.state = core.PlayerCued
	default:
		p.state = core.PlayerUnstarted
	}
	p.position = position
	p.reported = time.Now()
}
