package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/config"
	"github.com/sharecast/relay/internal/domain"
	"github.com/sharecast/relay/internal/gate"
	"github.com/sharecast/relay/internal/hub"
	"github.com/sharecast/relay/internal/metrics"
	"github.com/sharecast/relay/internal/state"
)

const sendBuffer = 32

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomController serves the room-scoped signaling endpoint: WebRTC
// handshakes, chat, screen-share admission, whiteboard fanout and room
// control, all multiplexed over one socket per participant.
type RoomController struct {
	Registry *hub.Registry
	Gate     *gate.Gate
	Governor *Governor
	Files    gate.FileCatalog
	Guests   state.Store
	Cfg      *config.Config
}

func NewRoomController(reg *hub.Registry, g *gate.Gate, gov *Governor, files gate.FileCatalog, guests state.Store, cfg *config.Config) *RoomController {
	return &RoomController{Registry: reg, Gate: g, Governor: gov, Files: files, Guests: guests, Cfg: cfg}
}

// peer is the per-connection state threaded through every handler. One
// read loop owns it; handlers never run concurrently for the same peer.
type peer struct {
	connID     string
	roomID     domain.RoomID
	id         domain.Identity
	username   string
	isGuest    bool
	isHost     bool
	hostID     domain.Identity
	guestToken string
	conn       *wsConn
}

func (p *peer) reply(v any) {
	if b, ok := encode(v); ok {
		_ = p.conn.TrySend(b)
	}
}

// Handle runs the full connection lifecycle: resolve the credential, check
// the room, attach, snapshot state to the newcomer, then pump messages
// until the socket dies.
func (ctl *RoomController) Handle(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Param("room_id"))
	credential := c.Query("token")
	if credential == "" {
		credential = c.Query("guest_token")
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	resolved, err := ctl.Gate.ResolveIdentity(ctx, credential, roomID)
	if err != nil {
		// A credential that could not be checked is not a rejected one;
		// only 4001 tells the client to re-authenticate.
		if !errors.Is(err, domain.ErrUnauthorized) {
			metrics.ConnectionsRefused.WithLabelValues("internal").Inc()
			refuse(ws, websocket.CloseInternalServerErr, "Temporarily unavailable")
			return
		}
		metrics.ConnectionsRefused.WithLabelValues("unauthorized").Inc()
		refuse(ws, CloseUnauthorized, "Unauthorized")
		return
	}

	snap, err := ctl.Gate.RoomSnapshot(ctx, roomID)
	if err != nil {
		metrics.ConnectionsRefused.WithLabelValues("not_found").Inc()
		refuse(ws, CloseNotFound, "Room not found or ended")
		return
	}

	conn := newWsConn(ws, sendBuffer)
	p := &peer{
		connID:     uuid.NewString(),
		roomID:     roomID,
		id:         resolved.Identity,
		username:   resolved.Username,
		isGuest:    resolved.IsGuest,
		isHost:     resolved.Identity == snap.HostID,
		hostID:     snap.HostID,
		guestToken: resolved.GuestToken,
		conn:       conn,
	}

	sess := &hub.Session{Identity: p.id, Username: p.username, IsGuest: p.isGuest, Handle: conn}
	if err := ctl.Registry.Attach(roomID, sess, snap.HostID, snap.MaxViewers); err != nil {
		metrics.ConnectionsRefused.WithLabelValues("room_full").Inc()
		refuse(ws, CloseRoomFull, "Room is full")
		return
	}

	metrics.ActiveConnections.Inc()
	log.Info().Str("module", "signal").Str("room_id", string(roomID)).Str("user_id", string(p.id)).Bool("host", p.isHost).Msg("connection active")

	p.reply(roomStateEvent{
		Type:         TypeRoomState,
		RoomID:       roomID,
		RoomName:     snap.Name,
		HostID:       snap.HostID,
		IsHost:       p.isHost,
		Participants: ctl.Registry.Participants(roomID),
		Presenters:   ctl.Registry.Presenters(roomID),
		SharedFiles:  ctl.Registry.SharedFiles(roomID),
	})

	ctl.broadcast(p, TypeUserJoined, userJoinedEvent{
		Type:         TypeUserJoined,
		UserID:       p.id,
		Username:     p.username,
		IsGuest:      p.isGuest,
		IsHost:       p.isHost,
		Participants: ctl.Registry.Participants(roomID),
	}, p.id)

	connCtx, cancel := context.WithCancel(ctx)
	go conn.writePump(connCtx, ctl.Cfg.PingPeriod)
	ctl.readLoop(connCtx, cancel, p)
}

// readLoop processes one message at a time; no two inbound messages from
// the same connection are ever handled concurrently. Cleanup is deferred so
// it runs exactly once no matter how the loop exits — transport error,
// explicit close, kick, or a panic mid-message.
func (ctl *RoomController) readLoop(ctx context.Context, cancel context.CancelFunc, p *peer) {
	defer ctl.cleanup(cancel, p)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := p.conn.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Msg("read loop ended")
			}
			return
		}
		ctl.route(ctx, p, data)
	}
}

// cleanup is the CLOSING phase: detach, departure broadcast with a fresh
// participant list, counter and guest-session disposal. Guarded so a
// connection that was replaced by a re-attach does not tear down its
// successor or announce a departure that did not happen.
func (ctl *RoomController) cleanup(cancel context.CancelFunc, p *peer) {
	cancel()
	p.conn.Close()
	metrics.ActiveConnections.Dec()
	ctl.Governor.Forget(p.connID)

	detached := ctl.Registry.DetachIf(p.roomID, p.id, p.conn)
	if !detached {
		return
	}

	ctl.broadcast(p, TypeUserLeft, userLeftEvent{
		Type:         TypeUserLeft,
		UserID:       p.id,
		Username:     p.username,
		Participants: ctl.Registry.Participants(p.roomID),
	}, "")

	if p.isGuest && p.guestToken != "" {
		if err := ctl.Guests.DeleteGuestSession(context.Background(), p.guestToken); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Msg("guest session cleanup failed")
		}
	}
}

// route classifies one inbound frame and dispatches it. Anything thrown by
// a handler is contained here: the error is logged with full context and
// the connection stays up. Only transport failures end a connection.
func (ctl *RoomController) route(ctx context.Context, p *peer, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room_id", string(p.roomID)).Str("user_id", string(p.id)).Msg("bad json frame")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("module", "signal").
				Str("room_id", string(p.roomID)).
				Str("user_id", string(p.id)).
				Str("msg_type", env.Type).
				Any("panic", rec).
				Msg("message handler panicked")
		}
	}()

	if bucket, governed := BucketFor(env.Type); governed {
		if ok, reason := ctl.Governor.Admit(p.connID, bucket); !ok {
			metrics.RateLimited.WithLabelValues(string(bucket)).Inc()
			p.reply(rateLimitEvent{Type: TypeRateLimited, Reason: reason})
			return
		}
	}

	metrics.MessagesRouted.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case TypeChat:
		ctl.handleChat(p, data)
	case TypeOffer, TypeAnswer:
		ctl.handleDescription(p, env.Type, data)
	case TypeICECandidate:
		ctl.handleCandidate(p, data)
	case TypeRequestOffer:
		ctl.handleRequestOffer(p, data)
	case TypeScreenShareStarted:
		ctl.handleShareStarted(p, data)
	case TypeScreenShareStopped:
		ctl.handleShareStopped(p)
	case TypeAnnotation, TypeWhiteboardDraw, TypeWhiteboardClear, TypeWhiteboardStarted, TypeWhiteboardStopped:
		ctl.handlePassthrough(p, env.Type, data)
	case TypeFileShare:
		ctl.handleFileShare(ctx, p, data)
	case TypeKickUser:
		ctl.handleKick(p, data)
	case TypeEndRoom:
		ctl.handleEndRoom(ctx, p)
	case TypePing:
		p.reply(pongEvent{Type: TypePong})
	case TypeViewerAudioOffer, TypeViewerAudioAnswer, TypeViewerAudioStopped:
		ctl.handleViewerAudio(p, env.Type, data)
	default:
		// Unknown tags are dropped without a protocol error.
		log.Warn().Str("module", "signal").Str("type", env.Type).Str("user_id", string(p.id)).Msg("unknown event type ignored")
	}
}

// broadcast fans an event out to the peer's room, excluding one identity
// when asked. Per-handle failures are already logged by the registry; they
// are counted here and otherwise ignored — a broken recipient cleans
// itself up through its own read loop.
func (ctl *RoomController) broadcast(p *peer, msgType string, v any, exclude domain.Identity) {
	b, ok := encode(v)
	if !ok {
		return
	}
	failed := ctl.Registry.Broadcast(p.roomID, msgType, b, exclude)
	if len(failed) > 0 {
		metrics.DeliveryFailures.Add(float64(len(failed)))
	}
}

func (ctl *RoomController) unicast(p *peer, target domain.Identity, msgType string, v any) bool {
	b, ok := encode(v)
	if !ok {
		return false
	}
	if !ctl.Registry.Unicast(p.roomID, target, msgType, b) {
		metrics.DeliveryFailures.Inc()
		return false
	}
	return true
}
