package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/middleware"
	"hamo/backend/internal/models"
)

type chatRequest struct {
	ClientID string `json:"clientId"`
	AvatarID string `json:"avatarId"`
	UserID   string `json:"userId"`
	Message  string `json:"message"`
}

type saveMessageRequest struct {
	ClientID string `json:"clientId"`
	AvatarID string `json:"avatarId"`
	UserID   string `json:"userId"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
}

// Chat records the caller's turn and answers it as the avatar.
func (h HandlerSet) Chat(c *gin.Context) {
	var req chatRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	who := caller(c)

	conv, err := h.transcripts.ResolveConversation(ctx, who, req.ClientID, req.AvatarID, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.chat.Respond(ctx, conv, who.SubjectID, req.Message, dedupeKey(c, who.SubjectID))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h HandlerSet) ChatHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}
	since, err := queryInt(c, "since")
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	conv, err := h.transcripts.ResolveConversation(ctx, caller(c), c.Query("clientId"), c.Query("avatarId"), c.Query("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	items, err := h.transcripts.Read(ctx, conv.Key, int(limit), since)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// SaveMessage appends one turn without generating a reply.
func (h HandlerSet) SaveMessage(c *gin.Context) {
	var req saveMessageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	who := caller(c)

	conv, err := h.transcripts.ResolveConversation(ctx, who, req.ClientID, req.AvatarID, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	msg, created, err := h.transcripts.AppendOnce(ctx, conv.Key, dedupeKey(c, who.SubjectID), models.Sender(req.Sender), req.Text, who.SubjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, msg)
}

// dedupeKey scopes the request's Idempotency-Key to the caller so the stored turn survives
// the middleware releasing the key after a failed attempt.
func dedupeKey(c *gin.Context, subjectID string) string {
	key := c.GetHeader(middleware.IdempotencyKeyHeader)
	if key == "" {
		return ""
	}
	return subjectID + "#" + key
}

func queryInt(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", name)
	}
	return v, nil
}
