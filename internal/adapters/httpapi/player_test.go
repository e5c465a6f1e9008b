package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peersync/watchparty/internal/core"
)

func collectFrames() (*[]serverFrame, func(serverFrame)) {
	var frames []serverFrame
	return &frames, func(f serverFrame) { frames = append(frames, f) }
}

func TestWSPlayerControlsEmitFrames(t *testing.T) {
	frames, send := collectFrames()
	p := newWSPlayer(send)

	p.Play()
	p.Pause()
	p.SeekTo(12.5)

	require.Len(t, *frames, 3)
	require.Equal(t, framePlay, (*frames)[0].Type)
	require.Equal(t, framePause, (*frames)[1].Type)
	require.Equal(t, frameSeek, (*frames)[2].Type)
	require.Equal(t, 12.5, (*frames)[2].Time)
	require.Equal(t, 12.5, p.CurrentTime())
}

func TestWSPlayerOptimisticState(t *testing.T) {
	_, send := collectFrames()
	p := newWSPlayer(send)

	require.Equal(t, core.PlayerUnstarted, p.State())
	p.Play()
	require.Equal(t, core.PlayerPlaying, p.State())
	p.Pause()
	require.Equal(t, core.PlayerPaused, p.State())
}

func TestWSPlayerReportAndExtrapolation(t *testing.T) {
	_, send := collectFrames()
	p := newWSPlayer(send)

	p.report("paused", 30)
	require.Equal(t, core.PlayerPaused, p.State())
	require.Equal(t, 30.0, p.CurrentTime())

	p.report("playing", 30)
	time.Sleep(30 * time.Millisecond)
	require.Greater(t, p.CurrentTime(), 30.0)

	p.report("buffering", 31)
	require.Equal(t, core.PlayerBuffering, p.State())
	require.Equal(t, 31.0, p.CurrentTime())
}
