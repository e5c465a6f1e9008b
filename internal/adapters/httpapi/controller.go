package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/adapters/rtc"
	"github.com/peersync/watchparty/internal/app"
	"github.com/peersync/watchparty/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller drives one participant over one websocket connection.
// The first frame must be a hello carrying the display name; after
// that the client issues room actions and streams player state while
// the controller pushes room snapshots and playback commands down.
type Controller struct {
	deps Deps

	mu     sync.RWMutex
	conn   *websocket.Conn
	send   chan []byte
	closed bool

	party  *app.Party
	player *wsPlayer

	shares  map[string]*rtc.RemoteShare
	sharing bool
}

func NewController(deps Deps) *Controller {
	return &Controller{
		deps:   deps,
		send:   make(chan []byte, 32),
		shares: make(map[string]*rtc.RemoteShare),
	}
}

func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "httpapi").Msg("ws upgrade")
		return
	}
	ctl.conn = ws

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel)
	ctl.readPump(ctx, cancel)
}

func (ctl *Controller) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "httpapi").Msg("writePump ctx done")
			return
		case data, ok := <-ctl.send:
			if !ok {
				return
			}
			if err := ctl.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "httpapi").Msg("writePump set deadline")
				return
			}
			if err := ctl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "httpapi").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		// The connection context is gone; cleanup still has to reach
		// the store.
		ctl.teardown(context.Background())
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := ctl.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "httpapi").Msg("readPump read error")
				return
			}
			ctl.handleFrame(ctx, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Error().Err(err).Str("module", "httpapi").Msg("bad json")
		return
	}

	if frame.Type == frameHello {
		ctl.handleHello(frame)
		return
	}
	if ctl.party == nil {
		ctl.sendError("hello required")
		return
	}

	switch frame.Type {
	case frameCreate:
		ctl.handleCreate(ctx)
	case frameJoin:
		ctl.handleJoin(ctx, domain.RoomID(frame.Room))
	case frameChat:
		ctl.replyErr(ctl.party.SendChat(ctx, frame.Text))
	case frameLoad:
		ctl.replyErr(ctl.party.LoadMedia(ctx, frame.URL))
	case frameTogglePlay:
		ctl.replyErr(ctl.party.TogglePlay(ctx))
	case frameStartShare:
		ctl.replyErr(ctl.party.StartShare(ctx))
	case frameStopShare:
		ctl.replyErr(ctl.party.StopShare(ctx))
	case frameLeave:
		ctl.replyErr(ctl.party.Leave(ctx))
	case framePlayer:
		ctl.player.report(frame.State, frame.Time)
	default:
		log.Warn().Str("module", "httpapi").Str("type", frame.Type).Msg("unknown frame")
	}
}

func (ctl *Controller) handleHello(frame clientFrame) {
	if ctl.party != nil {
		ctl.sendError("already greeted")
		return
	}
	self, err := domain.NewIdentity(frame.Name)
	if err != nil {
		ctl.sendError(err.Error())
		return
	}
	ctl.player = newWSPlayer(ctl.sendFrame)
	ctl.party = app.NewParty(ctl.deps.Cfg, ctl.deps.Store, ctl.deps.Transports, ctl.deps.Capture, ctl.player, self)
	ctl.party.OnUpdate(func(room domain.Room) {
		ctl.sendFrame(serverFrame{Type: frameRoom, Room: &room})
		ctl.onRoomSnapshot(room)
	})
	ctl.party.OnRemoteTrack(ctl.onRemoteTrack)
	log.Info().Str("module", "httpapi").Str("user", string(self)).Msg("participant greeted")
}

func (ctl *Controller) handleCreate(ctx context.Context) {
	id, err := ctl.party.Create(ctx)
	if err != nil {
		ctl.sendError(err.Error())
		return
	}
	ctl.sendFrame(serverFrame{Type: frameCreated, Room: ctl.party.Snapshot()})
	log.Info().Str("module", "httpapi").Str("room", string(id)).Msg("room created")
}

func (ctl *Controller) handleJoin(ctx context.Context, id domain.RoomID) {
	if err := ctl.party.Join(ctx, id); err != nil {
		ctl.sendError(err.Error())
		return
	}
	ctl.sendFrame(serverFrame{Type: frameRoom, Room: ctl.party.Snapshot()})
}

func (ctl *Controller) replyErr(err error) {
	if err != nil {
		ctl.sendError(err.Error())
	}
}

// onRemoteTrack pumps an incoming share track into a local RTP relay
// so an embedding renderer can consume it.
func (ctl *Controller) onRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	share, err := rtc.NewRemoteShare(context.Background(), track)
	if err != nil {
		log.Error().Err(err).Str("module", "httpapi").Str("track", track.ID()).Msg("relay setup")
		return
	}
	ctl.mu.Lock()
	if old, ok := ctl.shares[track.ID()]; ok {
		old.Stop()
	}
	ctl.shares[track.ID()] = share
	ctl.mu.Unlock()
	ctl.sendFrame(serverFrame{Type: frameShareStarted, From: share.Track().StreamID()})
}

// onRoomSnapshot tracks the room's share flag. When the sharer stops,
// the relays feeding the renderer are torn down and the client told.
func (ctl *Controller) onRoomSnapshot(room domain.Room) {
	ctl.mu.Lock()
	wasSharing := ctl.sharing
	ctl.sharing = room.IsSharing
	var stopped []*rtc.RemoteShare
	if wasSharing && !room.IsSharing {
		for _, s := range ctl.shares {
			stopped = append(stopped, s)
		}
		ctl.shares = map[string]*rtc.RemoteShare{}
	}
	ctl.mu.Unlock()

	if wasSharing && !room.IsSharing {
		for _, s := range stopped {
			s.Stop()
		}
		ctl.sendFrame(serverFrame{Type: frameShareStopped})
	}
}

func (ctl *Controller) sendFrame(frame serverFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "httpapi").Msg("sendFrame marshal")
		return
	}
	if err := ctl.trySend(b); err != nil {
		log.Warn().Err(err).Str("module", "httpapi").Str("type", frame.Type).Msg("frame dropped")
	}
}

func (ctl *Controller) sendError(msg string) {
	ctl.sendFrame(serverFrame{Type: frameError, Error: msg})
}

func (ctl *Controller) trySend(b []byte) error {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	if ctl.closed {
		return errors.New("connection closed")
	}
	select {
	case ctl.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (ctl *Controller) teardown(ctx context.Context) {
	ctl.mu.Lock()
	if ctl.closed {
		ctl.mu.Unlock()
		return
	}
	ctl.closed = true
	close(ctl.send)
	shares := ctl.shares
	ctl.shares = map[string]*rtc.RemoteShare{}
	ctl.mu.Unlock()

	for _, s := range shares {
		s.Stop()
	}
	if ctl.party != nil && ctl.party.InRoom() {
		if err := ctl.party.Leave(ctx); err != nil {
			log.Error().Err(err).Str("module", "httpapi").Msg("leave on disconnect")
		}
	}
	_ = ctl.conn.Close()
}
