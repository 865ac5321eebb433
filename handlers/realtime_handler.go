package handlers

import (
	"context"

	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/anjiri1684/tuition_coupons/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// RealtimeHandler streams coupon events. Browsers cannot set headers on the
// upgrade request, so the first frame carries the bearer token.
type RealtimeHandler struct {
	hub      *websocket.Hub
	sessions *services.SessionService
	log      *zap.Logger
}

func NewRealtimeHandler(hub *websocket.Hub, sessions *services.SessionService, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, sessions: sessions, log: log}
}

func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

func (h *RealtimeHandler) Serve(c *websocketcontrib.Conn) {
	var auth authMessage
	if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
		_ = c.WriteJSON(errorBody("unauthorized", "Invalid or missing auth message"))
		c.Close()
		return
	}
	sessionID, userID, err := h.sessions.ParseToken(auth.Token)
	if err == nil {
		var p services.Principal
		p, err = h.sessions.Resolve(context.Background(), sessionID, userID)
		if err == nil {
			h.serveClient(c, p)
			return
		}
	}
	h.log.Debug("realtime auth rejected", zap.Error(err))
	_ = c.WriteJSON(errorBody("unauthorized", "Session is not valid"))
	c.Close()
}

func (h *RealtimeHandler) serveClient(c *websocketcontrib.Conn, p services.Principal) {
	// Only the hub writes once the client is registered.
	if err := c.WriteJSON(fiber.Map{"type": "ready"}); err != nil {
		c.Close()
		return
	}
	client := &websocket.Client{UserID: p.UserID, Staff: p.IsStaff(), Conn: c}
	h.hub.Register(client)
	defer func() {
		h.hub.Unregister(client)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.String("user_id", p.UserID.String()), zap.Error(err))
			}
			return
		}
	}
}
