package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hamo/backend/internal/models"
	"hamo/backend/internal/service"
)

type avatarRequest struct {
	Name        string `json:"name"`
	Theory      string `json:"theory"`
	Methodology string `json:"methodology"`
	Principles  string `json:"principles"`
}

type clientRequest struct {
	Name             string             `json:"name"`
	Sex              string             `json:"sex"`
	Age              string             `json:"age"`
	Avatars          []models.AvatarRef `json:"avatars"`
	SelectedAvatarID string             `json:"selectedAvatarId"`
	EmotionPattern   string             `json:"emotionPattern"`
	Personality      string             `json:"personality"`
	Cognition        string             `json:"cognition"`
	Goals            string             `json:"goals"`
	Principles       string             `json:"principles"`
}

func (h HandlerSet) ListAvatars(c *gin.Context) {
	items, err := h.registry.ListAvatars(c.Request.Context(), caller(c).SubjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.Avatar{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) CreateAvatar(c *gin.Context) {
	var req avatarRequest
	if !h.bindJSON(c, &req) {
		return
	}

	avatar, err := h.registry.CreateAvatar(c.Request.Context(), caller(c).SubjectID, service.AvatarInput{
		Name:        req.Name,
		Theory:      req.Theory,
		Methodology: req.Methodology,
		Principles:  req.Principles,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, avatar)
}

func (h HandlerSet) GetAvatar(c *gin.Context) {
	avatar, err := h.registry.GetAvatar(c.Request.Context(), caller(c).SubjectID, c.Param("avatarId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avatar)
}

func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	var patch models.AvatarPatch
	if !h.bindJSON(c, &patch) {
		return
	}

	avatar, err := h.registry.UpdateAvatar(c.Request.Context(), caller(c).SubjectID, c.Param("avatarId"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avatar)
}

func (h HandlerSet) DeleteAvatar(c *gin.Context) {
	if err := h.registry.DeleteAvatar(c.Request.Context(), caller(c).SubjectID, c.Param("avatarId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) ListClients(c *gin.Context) {
	items, err := h.registry.ListClients(c.Request.Context(), caller(c).SubjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.Client{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) CreateClient(c *gin.Context) {
	var req clientRequest
	if !h.bindJSON(c, &req) {
		return
	}

	client, err := h.registry.CreateClient(c.Request.Context(), caller(c).SubjectID, service.ClientInput{
		Name:             req.Name,
		Sex:              req.Sex,
		Age:              req.Age,
		Avatars:          req.Avatars,
		SelectedAvatarID: req.SelectedAvatarID,
		EmotionPattern:   req.EmotionPattern,
		Personality:      req.Personality,
		Cognition:        req.Cognition,
		Goals:            req.Goals,
		Principles:       req.Principles,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h HandlerSet) GetClient(c *gin.Context) {
	client, err := h.registry.GetClient(c.Request.Context(), caller(c).SubjectID, c.Param("clientId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h HandlerSet) UpdateClient(c *gin.Context) {
	var patch models.ClientPatch
	if !h.bindJSON(c, &patch) {
		return
	}

	client, err := h.registry.UpdateClient(c.Request.Context(), caller(c).SubjectID, c.Param("clientId"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h HandlerSet) DeleteClient(c *gin.Context) {
	if err := h.registry.DeleteClient(c.Request.Context(), caller(c).SubjectID, c.Param("clientId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
