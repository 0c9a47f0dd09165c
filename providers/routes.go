package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/orchestra-mcp/chat/src/types"
)

// RegisterRoutes registers the internal chat API on a Fiber group. Other
// CRM subsystems call these after persisting messages or receipts.
func (p *ChatPlugin) RegisterRoutes(group fiber.Router) {
	group.Use(p.requireInternalKey)
	group.Get("/ws/info", p.handleInfo)
	group.Get("/online", p.handleOnline)
	group.Get("/users/:id/presence", p.handlePresence)
	group.Post("/users/:id/notify", p.handleNotify)
	group.Post("/conversations/:id/messages", p.handleNewMessage)
	group.Post("/conversations/:id/read", p.handleMessageRead)
}

// Handler routes the websocket path and /metrics to raw fasthttp handlers
// and everything else to the Fiber app. Fiber v3 does not expose
// *fasthttp.RequestCtx to route handlers, so the upgrade lives here.
func (p *ChatPlugin) Handler(app *fiber.App) fasthttp.RequestHandler {
	ws := p.FastHTTPHandler()
	prom := fasthttpadaptor.NewFastHTTPHandler(p.metrics.Handler())
	appHandler := app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case p.cfg.Path:
			ws(ctx)
		case "/metrics":
			prom(ctx)
		default:
			appHandler(ctx)
		}
	}
}

// FastHTTPHandler authenticates the token query parameter and upgrades
// the request. A rejected token gets a bare 401 and no upgrade.
func (p *ChatPlugin) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if !p.reserveSlot() {
			p.logger.Warn().Int("max_connections", p.cfg.MaxConnections).Msg("connection limit reached")
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		authCtx, cancel := context.WithTimeout(context.Background(), p.cfg.LookupTimeout)
		profile, err := p.auth.Authenticate(authCtx, token)
		cancel()
		if err != nil {
			p.releaseSlot()
			p.metrics.AuthFailures.Inc()
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}

		err = p.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			defer p.releaseSlot()
			sc := newSocketConn(conn, p.cfg.WriteTimeout, p.cfg.PongWait(), p.cfg.MaxMessageSize)
			if err := p.hub.Serve(profile, sc); err != nil {
				p.logger.Warn().Err(err).Str("user_id", profile.ID).Msg("connection refused")
			}
		})
		if err != nil {
			p.releaseSlot()
			p.logger.Error().Err(err).Str("user_id", profile.ID).Msg("websocket upgrade failed")
		}
	}
}

func (p *ChatPlugin) requireInternalKey(c fiber.Ctx) error {
	if p.cfg.InternalKey == "" {
		return c.Next()
	}
	given := c.Get("X-Internal-Key")
	if subtle.ConstantTimeCompare([]byte(given), []byte(p.cfg.InternalKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

func (p *ChatPlugin) handleInfo(c fiber.Ctx) error {
	stats := p.service.Stats()
	return c.JSON(fiber.Map{
		"websocket":    true,
		"endpoint":     p.cfg.Path,
		"connections":  stats.Connections,
		"online_users": stats.OnlineUsers,
	})
}

func (p *ChatPlugin) handleOnline(c fiber.Ctx) error {
	ids := p.service.ListConnectedUserIDs()
	return c.JSON(fiber.Map{"users": ids, "count": len(ids)})
}

func (p *ChatPlugin) handlePresence(c fiber.Ctx) error {
	ctx, cancel := p.requestContext()
	defer cancel()
	presence, err := p.service.GetPresence(ctx, c.Params("id"))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(presence)
}

type notifyRequest struct {
	Type           string         `json:"type"`
	Data           map[string]any `json:"data"`
	ConversationID string         `json:"conversationId"`
}

func (p *ChatPlugin) handleNotify(c fiber.Ctx) error {
	var req notifyRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || strings.TrimSpace(req.Type) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type is required"})
	}
	ctx, cancel := p.requestContext()
	defer cancel()
	report, err := p.service.NotifyUser(ctx, c.Params("id"), types.ServerEvent{
		Type:           strings.TrimSpace(req.Type),
		Data:           req.Data,
		ConversationID: strings.TrimSpace(req.ConversationID),
	})
	if err != nil {
		return apiError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(report)
}

func (p *ChatPlugin) handleNewMessage(c fiber.Ctx) error {
	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message payload must be a JSON object"})
	}
	ctx, cancel := p.requestContext()
	defer cancel()
	report, err := p.service.BroadcastNewMessage(ctx, c.Params("id"), payload)
	if err != nil {
		return apiError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(report)
}

type readRequest struct {
	MessageIDs []string `json:"messageIds"`
	ReaderID   string   `json:"readerId"`
}

func (p *ChatPlugin) handleMessageRead(c fiber.Ctx) error {
	var req readRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || strings.TrimSpace(req.ReaderID) == "" || len(req.MessageIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "readerId and messageIds are required"})
	}
	ctx, cancel := p.requestContext()
	defer cancel()
	report, err := p.service.BroadcastMessageRead(ctx, c.Params("id"), req.MessageIDs, req.ReaderID)
	if err != nil {
		return apiError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(report)
}

func (p *ChatPlugin) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.cfg.LookupTimeout)
}

func apiError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrConversationNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, types.ErrNotParticipant):
		status = fiber.StatusForbidden
	case errors.Is(err, types.ErrReservedEvent),
		errors.Is(err, types.ErrMissingConversationID),
		errors.Is(err, types.ErrMissingReader):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
