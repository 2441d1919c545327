package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/config"
	"github.com/sharecast/relay/internal/domain"
	"github.com/sharecast/relay/internal/gate"
	"github.com/sharecast/relay/internal/hub"
	"github.com/sharecast/relay/internal/service"
	"github.com/sharecast/relay/internal/state"
)

// Handlers carries the REST surface around the websocket endpoints.
type Handlers struct {
	Cfg      *config.Config
	Store    state.Store
	Registry *hub.Registry
	Gate     *gate.Gate
	Rooms    *service.Rooms
	Docs     *service.Docs
}

func NewHandlers(cfg *config.Config, store state.Store, registry *hub.Registry, g *gate.Gate, rooms *service.Rooms, docs *service.Docs) *Handlers {
	return &Handlers{Cfg: cfg, Store: store, Registry: registry, Gate: g, Rooms: rooms, Docs: docs}
}

// memberFromAuth resolves the Authorization header to a member identity.
// Guests cannot create rooms or documents.
func (h *Handlers) memberFromAuth(c *gin.Context) (*gate.Resolved, bool) {
	credential := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	resolved, err := h.Gate.ResolveIdentity(c.Request.Context(), credential, "")
	if err != nil || resolved.IsGuest {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return resolved, true
}

type roomCreateRequest struct {
	Name       string `json:"name"`
	MaxViewers int    `json:"max_viewers"`
}

// CreateRoom registers a broadcast room with the caller as its host.
func (h *Handlers) CreateRoom(c *gin.Context) {
	resolved, ok := h.memberFromAuth(c)
	if !ok {
		return
	}

	var req roomCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	maxViewers := req.MaxViewers
	if maxViewers <= 0 {
		maxViewers = h.Cfg.MaxViewers
	}

	room := h.Rooms.Create(domain.RoomName(strings.TrimSpace(req.Name)), resolved.Identity, maxViewers)
	c.JSON(http.StatusCreated, gin.H{
		"room_id":     room.ID,
		"name":        room.Name,
		"host_id":     room.HostID,
		"max_viewers": room.MaxViewers,
	})
}

type docCreateRequest struct {
	Content string `json:"content"`
}

// CreateDoc registers a collaborative document; connections to unknown ids
// are refused.
func (h *Handlers) CreateDoc(c *gin.Context) {
	if _, ok := h.memberFromAuth(c); !ok {
		return
	}

	var req docCreateRequest
	_ = c.ShouldBindJSON(&req)

	docID := uuid.NewString()
	h.Docs.Put(docID, req.Content)
	c.JSON(http.StatusCreated, gin.H{"doc_id": docID})
}

type guestJoinRequest struct {
	GuestName string `json:"guest_name"`
}

type guestJoinResponse struct {
	GuestToken string `json:"guest_token"`
	RoomID     string `json:"room_id"`
	GuestName  string `json:"guest_name"`
	ExpiresIn  int    `json:"expires_in"`
}

// JoinAsGuest mints a room-scoped guest session. The token is single-use in
// spirit: it is deleted when the guest's socket closes.
func (h *Handlers) JoinAsGuest(c *gin.Context) {
	roomID := domain.RoomID(c.Param("room_id"))

	var req guestJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid body"})
		return
	}
	name := strings.TrimSpace(req.GuestName)
	if name == "" {
		name = "Guest"
	}
	if len(name) > domain.MaxDisplayNameLen {
		name = name[:domain.MaxDisplayNameLen]
	}

	snap, err := h.Gate.RoomSnapshot(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found or ended"})
		return
	}

	if snap.MaxViewers > 0 {
		count, err := h.Store.GuestCount(c.Request.Context(), roomID)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("room_id", string(roomID)).Msg("guest count")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if count >= snap.MaxViewers {
			c.JSON(http.StatusConflict, gin.H{"error": "room is full"})
			return
		}
	}

	token := uuid.NewString()
	sess := state.GuestSession{RoomID: roomID, GuestName: name, CreatedAt: time.Now()}
	if err := h.Store.PutGuestSession(c.Request.Context(), token, sess); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room_id", string(roomID)).Msg("put guest session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, guestJoinResponse{
		GuestToken: token,
		RoomID:     string(roomID),
		GuestName:  name,
		ExpiresIn:  int(h.Cfg.GuestSessionTTL.Seconds()),
	})
}

type heartbeatRequest struct {
	RoomID string `json:"room_id"`
}

// Heartbeat refreshes the caller's active-user entry. The credential comes
// from the Authorization header (members) or the guest_token query (guests).
func (h *Handlers) Heartbeat(c *gin.Context) {
	credential := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if credential == "" {
		credential = c.Query("guest_token")
	}

	var req heartbeatRequest
	_ = c.ShouldBindJSON(&req)

	resolved, err := h.Gate.ResolveIdentity(c.Request.Context(), credential, domain.RoomID(req.RoomID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	u := state.ActiveUser{Identity: resolved.Identity, Username: resolved.Username, IsGuest: resolved.IsGuest}
	if err := h.Store.TouchActiveUser(c.Request.Context(), u); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("user_id", string(resolved.Identity)).Msg("touch active user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ActiveUsers reports who is alive by heartbeat together with live socket
// membership per room. Heartbeats survive reconnects; sockets are exact.
func (h *Handlers) ActiveUsers(c *gin.Context) {
	users, err := h.Store.ActiveUsers(c.Request.Context(), h.Cfg.HeartbeatTimeout)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("active users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if users == nil {
		users = []state.ActiveUser{}
	}
	c.JSON(http.StatusOK, gin.H{
		"active_users": users,
		"rooms":        h.Registry.RoomsSnapshot(),
	})
}

// ICEConfig hands clients the STUN/TURN servers to build their
// RTCPeerConnection with. Credentials are injected server-side so they
// never live in the frontend bundle.
func (h *Handlers) ICEConfig(c *gin.Context) {
	servers := []webrtc.ICEServer{
		{URLs: []string{h.Cfg.StunServer}},
	}
	if h.Cfg.TurnServer != "" {
		urls := []string{h.Cfg.TurnServer}
		if h.Cfg.TurnServerTCP != "" {
			urls = append(urls, h.Cfg.TurnServerTCP)
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       urls,
			Username:   h.Cfg.TurnUsername,
			Credential: h.Cfg.TurnCredential,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ice_servers": servers})
}

func (h *Handlers) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
