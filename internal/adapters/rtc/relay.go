package rtc

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RemoteShare pumps RTP from a received share track into a local
// loopback track the playback surface can attach to. One instance per
// received track; Stop ends the pump.
type RemoteShare struct {
	src    *webrtc.TrackRemote
	out    *webrtc.TrackLocalStaticRTP
	cancel context.CancelFunc
}

func NewRemoteShare(ctx context.Context, src *webrtc.TrackRemote) (*RemoteShare, error) {
	out, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, src.ID(), src.StreamID())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	rs := &RemoteShare{src: src, out: out, cancel: cancel}
	go rs.loop(ctx)
	return rs, nil
}

// Track is the loopback end for local playback.
func (rs *RemoteShare) Track() *webrtc.TrackLocalStaticRTP {
	return rs.out
}

func (rs *RemoteShare) Stop() {
	rs.cancel()
}

func (rs *RemoteShare) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := rs.src.ReadRTP()
		if err != nil {
			log.Info().Err(err).Str("module", "rtc").Str("track_id", rs.src.ID()).Msg("remote share ended")
			return
		}
		rs.forward(pkt)
	}
}

func (rs *RemoteShare) forward(pkt *rtp.Packet) {
	if err := rs.out.WriteRTP(pkt); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("track_id", rs.src.ID()).Msg("loopback write")
	}
}
