// Package api exposes the daemon's local control surface as a small JSON
// HTTP API served over the session's unix socket. chatctl is the only
// intended consumer.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nihinconnect/chatd/internal/chat"
	"github.com/nihinconnect/chatd/internal/rest"
	"github.com/nihinconnect/chatd/internal/status"
	"github.com/nihinconnect/chatd/internal/store"
	"go.uber.org/zap"
)

type Handler struct {
	session   string
	machine   *status.Machine
	projector *chat.Projector
	poller    *chat.Poller
	typist    *chat.Typist
	cache     *store.DB
	logger    *zap.Logger
}

func NewHandler(session string, machine *status.Machine, projector *chat.Projector, poller *chat.Poller, typist *chat.Typist, cache *store.DB, logger *zap.Logger) *Handler {
	return &Handler{
		session:   session,
		machine:   machine,
		projector: projector,
		poller:    poller,
		typist:    typist,
		cache:     cache,
		logger:    logger,
	}
}

// Register mounts all routes on the given echo instance.
func (h *Handler) Register(e *echo.Echo) {
	v1 := e.Group("/v1")
	v1.GET("/status", h.Status)
	v1.GET("/conversations", h.Conversations)
	v1.POST("/conversations/open", h.OpenConversation)
	v1.GET("/messages", h.Messages)
	v1.POST("/messages", h.SendMessage)
	v1.POST("/typing", h.Typing)
	v1.POST("/refresh", h.Refresh)
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Session:             h.session,
		State:               string(h.machine.Current()),
		ActiveFriendID:      h.projector.ActiveID(),
		LastError:           h.poller.LastError(),
		NotificationsUnread: h.poller.NotificationsUnread(),
	})
}

// Conversations returns the live summary list, falling back to the cache
// when the projector has not been fed yet (daemon freshly started, backend
// unreachable).
func (h *Handler) Conversations(c echo.Context) error {
	sums := h.projector.Summaries()
	if len(sums) > 0 || h.cache == nil {
		out := make([]SummaryResponse, 0, len(sums))
		for _, s := range sums {
			out = append(out, SummaryResponse{
				FriendID:     s.FriendID,
				Name:         s.Name,
				Avatar:       s.Avatar,
				LastText:     s.LastText,
				LastTime:     s.LastTime,
				LastSenderID: s.LastSenderID,
				Unread:       s.Unread,
			})
		}
		return c.JSON(http.StatusOK, out)
	}

	cached, err := h.cache.ListConversations()
	if err != nil {
		h.logger.Warn("cache read failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "cache read failed"})
	}
	out := make([]SummaryResponse, 0, len(cached))
	for _, s := range cached {
		resp := SummaryResponse{
			FriendID:     s.FriendID,
			Name:         s.Name,
			Avatar:       s.Avatar,
			LastText:     s.LastText,
			LastSenderID: s.LastSenderID,
			Unread:       s.Unread,
		}
		if s.LastTime != 0 {
			t := millisTime(s.LastTime)
			resp.LastTime = &t
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) OpenConversation(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil || req.FriendID == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "friend_id is required"})
	}

	h.projector.Open(c.Request().Context(), rest.User{ID: req.FriendID, Name: req.Name, Avatar: req.Avatar})

	return c.JSON(http.StatusOK, messagesOf(h.projector))
}

// Messages returns the active conversation's messages. A friend_id query
// parameter for a non-active conversation reads the cache instead.
func (h *Handler) Messages(c echo.Context) error {
	raw := c.QueryParam("friend_id")
	if raw == "" {
		return c.JSON(http.StatusOK, messagesOf(h.projector))
	}
	friendID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid friend_id"})
	}
	if friendID == h.projector.ActiveID() {
		return c.JSON(http.StatusOK, messagesOf(h.projector))
	}

	if h.cache == nil {
		return c.JSON(http.StatusOK, []MessageResponse{})
	}
	cached, err := h.cache.ListMessages(friendID, 0)
	if err != nil {
		h.logger.Warn("cache read failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "cache read failed"})
	}
	out := make([]MessageResponse, 0, len(cached))
	for _, m := range cached {
		out = append(out, MessageResponse{
			ServerID:    m.ServerID,
			LocalID:     m.LocalID,
			Provisional: m.ServerID == 0,
			SenderID:    m.SenderID,
			ReceiverID:  m.ReceiverID,
			Text:        m.Body,
			CreatedAt:   millisTime(m.CreatedAt),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) SendMessage(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}
	if h.projector.ActiveID() == 0 {
		return c.JSON(http.StatusConflict, errorResponse{Error: "no conversation open"})
	}

	h.projector.Send(c.Request().Context(), req.Text)

	return c.JSON(http.StatusOK, messagesOf(h.projector))
}

func (h *Handler) Typing(c echo.Context) error {
	var req TypingRequest
	if err := c.Bind(&req); err != nil || req.FriendID == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "friend_id is required"})
	}
	h.typist.Compose(req.FriendID)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Refresh(c echo.Context) error {
	h.poller.RefreshConversations(c.Request().Context())
	h.poller.RefreshNotifications(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func messagesOf(p *chat.Projector) []MessageResponse {
	msgs := p.Messages()
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ServerID:    m.ServerID,
			LocalID:     m.LocalID,
			Provisional: m.Provisional(),
			SenderID:    m.SenderID,
			ReceiverID:  m.ReceiverID,
			SenderName:  m.SenderName,
			Text:        m.Text,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out
}

func millisTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
