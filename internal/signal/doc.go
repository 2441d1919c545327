package signal

import (
	"context"
	"encoding/json"
	"errors"

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

// docRoom namespaces document channels inside the registry so a document
// id can never collide with a room id.
func docRoom(docID string) domain.RoomID {
	return domain.RoomID(domain.DocRoomPrefix + docID)
}

// DocController serves the document-scoped endpoint: collaborative content
// sync, cursor presence and explicit saves. It shares the registry, the
// governor and the connection plumbing with the room controller.
type DocController struct {
	Registry *hub.Registry
	Gate     *gate.Gate
	Governor *Governor
	Docs     gate.DocumentStore
	Guests   state.Store
	Cfg      *config.Config
}

func NewDocController(reg *hub.Registry, g *gate.Gate, gov *Governor, docs gate.DocumentStore, guests state.Store, cfg *config.Config) *DocController {
	return &DocController{Registry: reg, Gate: g, Governor: gov, Docs: docs, Guests: guests, Cfg: cfg}
}

func (ctl *DocController) Handle(ctx context.Context, c *gin.Context) {
	docID := c.Param("doc_id")
	credential := c.Query("token")
	if credential == "" {
		credential = c.Query("guest_token")
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.doc").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	resolved, err := ctl.Gate.ResolveIdentity(ctx, credential, domain.RoomID(docID))
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

	content, err := ctl.Docs.Load(ctx, docID)
	if err != nil {
		if !errors.Is(err, domain.ErrDocumentMissing) {
			metrics.ConnectionsRefused.WithLabelValues("internal").Inc()
			refuse(ws, websocket.CloseInternalServerErr, "Temporarily unavailable")
			return
		}
		metrics.ConnectionsRefused.WithLabelValues("not_found").Inc()
		refuse(ws, CloseNotFound, "Document not found")
		return
	}

	roomID := docRoom(docID)
	conn := newWsConn(ws, sendBuffer)
	p := &peer{
		connID:     uuid.NewString(),
		roomID:     roomID,
		id:         resolved.Identity,
		username:   resolved.Username,
		isGuest:    resolved.IsGuest,
		guestToken: resolved.GuestToken,
		conn:       conn,
	}

	sess := &hub.Session{Identity: p.id, Username: p.username, IsGuest: p.isGuest, Handle: conn}
	// Documents have no host and no viewer cap.
	if err := ctl.Registry.Attach(roomID, sess, "", 0); err != nil {
		refuse(ws, CloseRoomFull, "Document is full")
		return
	}

	metrics.ActiveConnections.Inc()
	log.Info().Str("module", "signal.doc").Str("doc_id", docID).Str("user_id", string(p.id)).Msg("connection active")

	// The echo cache wins over the persisted copy: it holds unsaved edits.
	if cached, ok := ctl.Registry.Document(roomID); ok {
		content = cached
	} else if content != "" {
		ctl.Registry.SetDocument(roomID, content)
	}

	p.reply(docStateEvent{
		Type:         TypeDocState,
		DocID:        docID,
		Content:      content,
		Participants: ctl.Registry.Participants(roomID),
		Cursors:      ctl.Registry.Cursors(roomID),
	})

	ctl.fanout(p, TypeUserJoined, userJoinedEvent{
		Type:         TypeUserJoined,
		UserID:       p.id,
		Username:     p.username,
		IsGuest:      p.isGuest,
		Participants: ctl.Registry.Participants(roomID),
	}, p.id)

	connCtx, cancel := context.WithCancel(ctx)
	go conn.writePump(connCtx, ctl.Cfg.PingPeriod)
	ctl.readLoop(connCtx, cancel, p, docID)
}

func (ctl *DocController) readLoop(ctx context.Context, cancel context.CancelFunc, p *peer, docID string) {
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
				log.Info().Err(err).Str("module", "signal.doc").Str("user_id", string(p.id)).Msg("read loop ended")
			}
			return
		}
		ctl.route(ctx, p, docID, data)
	}
}

func (ctl *DocController) cleanup(cancel context.CancelFunc, p *peer) {
	cancel()
	p.conn.Close()
	metrics.ActiveConnections.Dec()
	ctl.Governor.Forget(p.connID)

	if !ctl.Registry.DetachIf(p.roomID, p.id, p.conn) {
		return
	}

	ctl.fanout(p, TypeUserLeft, userLeftEvent{
		Type:         TypeUserLeft,
		UserID:       p.id,
		Username:     p.username,
		Participants: ctl.Registry.Participants(p.roomID),
	}, "")

	if p.isGuest && p.guestToken != "" {
		if err := ctl.Guests.DeleteGuestSession(context.Background(), p.guestToken); err != nil {
			log.Warn().Err(err).Str("module", "signal.doc").Str("user_id", string(p.id)).Msg("guest session cleanup failed")
		}
	}
}

func (ctl *DocController) route(ctx context.Context, p *peer, docID string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal.doc").Str("user_id", string(p.id)).Msg("bad json frame")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("module", "signal.doc").
				Str("doc_id", docID).
				Str("user_id", string(p.id)).
				Str("msg_type", env.Type).
				Any("panic", rec).
				Msg("message handler panicked")
		}
	}()

	if bucket, governed := DocBucketFor(env.Type); governed {
		if ok, reason := ctl.Governor.Admit(p.connID, bucket); !ok {
			metrics.RateLimited.WithLabelValues(string(bucket)).Inc()
			p.reply(rateLimitEvent{Type: TypeRateLimited, Reason: reason})
			return
		}
	}

	metrics.MessagesRouted.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case TypeContentUpdate:
		ctl.handleContentUpdate(p, data)
	case TypeCursorUpdate:
		ctl.handleCursorUpdate(p, data)
	case TypeSave:
		ctl.handleSave(ctx, p, docID, data)
	case TypePing:
		p.reply(pongEvent{Type: TypePong})
	default:
		log.Warn().Str("module", "signal.doc").Str("type", env.Type).Str("user_id", string(p.id)).Msg("unknown event type ignored")
	}
}

// handleContentUpdate caches the newest content, latest write wins, and
// fans it out to everyone but the author.
func (ctl *DocController) handleContentUpdate(p *peer, data []byte) {
	var in struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal.doc").Str("user_id", string(p.id)).Msg("bad content payload")
		return
	}
	ctl.Registry.SetDocument(p.roomID, in.Content)
	ctl.fanout(p, TypeContentUpdate, struct {
		Type    string          `json:"type"`
		UserID  domain.Identity `json:"user_id"`
		Content string          `json:"content"`
	}{TypeContentUpdate, p.id, in.Content}, p.id)
}

func (ctl *DocController) handleCursorUpdate(p *peer, data []byte) {
	var in struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal.doc").Str("user_id", string(p.id)).Msg("bad cursor payload")
		return
	}
	cursor := domain.Cursor{Identity: p.id, Username: p.username, X: in.X, Y: in.Y}
	ctl.Registry.SetCursor(p.roomID, cursor)
	ctl.fanout(p, TypeCursorUpdate, struct {
		Type     string          `json:"type"`
		UserID   domain.Identity `json:"user_id"`
		Username string          `json:"username"`
		X        float64         `json:"x"`
		Y        float64         `json:"y"`
	}{TypeCursorUpdate, p.id, p.username, in.X, in.Y}, p.id)
}

// handleSave flushes the cached content to the persistence collaborator
// and acknowledges to the whole document, sender included.
func (ctl *DocController) handleSave(ctx context.Context, p *peer, docID string, data []byte) {
	content, ok := ctl.Registry.Document(p.roomID)
	if !ok {
		// No edits cached yet; accept content straight off the save frame.
		var in struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			log.Warn().Err(err).Str("module", "signal.doc").Str("user_id", string(p.id)).Msg("bad save payload")
			return
		}
		content = in.Content
		ctl.Registry.SetDocument(p.roomID, content)
	}

	if err := ctl.Docs.Save(ctx, docID, content); err != nil {
		log.Error().Err(err).Str("module", "signal.doc").Str("doc_id", docID).Msg("document save failed")
		p.reply(newErrorEvent("save_failed", "Could not persist the document"))
		return
	}

	ctl.fanout(p, TypeSaved, struct {
		Type   string          `json:"type"`
		DocID  string          `json:"doc_id"`
		UserID domain.Identity `json:"user_id"`
	}{TypeSaved, docID, p.id}, "")
}

func (ctl *DocController) fanout(p *peer, msgType string, v any, exclude domain.Identity) {
	b, ok := encode(v)
	if !ok {
		return
	}
	failed := ctl.Registry.Broadcast(p.roomID, msgType, b, exclude)
	if len(failed) > 0 {
		metrics.DeliveryFailures.Add(float64(len(failed)))
	}
}
