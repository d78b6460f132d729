package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hamo/backend/internal/models"
	"hamo/backend/internal/service"
)

type createChatRequest struct {
	ClientID   string `json:"clientId"`
	AvatarID   string `json:"avatarId"`
	ClientName string `json:"clientName"`
	AvatarName string `json:"avatarName"`
}

func (h HandlerSet) ListChats(c *gin.Context) {
	items, err := h.sessions.ListSessions(c.Request.Context(), caller(c).SubjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.ChatSession{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) CreateChat(c *gin.Context) {
	var req createChatRequest
	if !h.bindJSON(c, &req) {
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), service.CreateSessionInput{
		OwnerID:    caller(c).SubjectID,
		ClientID:   req.ClientID,
		AvatarID:   req.AvatarID,
		ClientName: req.ClientName,
		AvatarName: req.AvatarName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h HandlerSet) DeleteChat(c *gin.Context) {
	err := h.sessions.DeleteSession(c.Request.Context(), caller(c).SubjectID, c.Param("clientId"), c.Param("avatarId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
