package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hamo/backend/internal/middleware"
)

type initUserRequest struct {
	RoleHint string `json:"roleHint"`
}

// InitUser creates the caller's profile on first login and returns it. The role hint
// falls back to the token's role claim.
func (h HandlerSet) InitUser(c *gin.Context) {
	var req initUserRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	identity, _ := middleware.CurrentIdentity(c)
	hint := req.RoleHint
	if hint == "" {
		hint = identity.Role
	}

	profile, err := h.profiles.EnsureProfile(c.Request.Context(), identity.SubjectID, hint)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h HandlerSet) GetProfile(c *gin.Context) {
	profile, _ := middleware.CurrentProfile(c)
	c.JSON(http.StatusOK, profile)
}

type updateProfileRequest struct {
	Nickname string `json:"nickname"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	profile, err := h.profiles.UpdateNickname(c.Request.Context(), caller(c).SubjectID, req.Nickname)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
