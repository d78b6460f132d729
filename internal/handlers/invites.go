package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
	"hamo/backend/internal/service"
)

type createInviteRequest struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
	AvatarID   string `json:"avatarId"`
	AvatarName string `json:"avatarName"`
}

type acceptInviteRequest struct {
	Code string `json:"code"`
}

type acceptInviteResponse struct {
	service.AcceptResult
	Session *models.ChatSession `json:"session,omitempty"`
}

func (h HandlerSet) CreateInvite(c *gin.Context) {
	var req createInviteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invite, err := h.invites.CreateInvitation(c.Request.Context(), service.CreateInvitationInput{
		TherapistID: caller(c).SubjectID,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		AvatarID:    req.AvatarID,
		AvatarName:  req.AvatarName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}

func (h HandlerSet) ListInvites(c *gin.Context) {
	items, err := h.invites.ListInvitations(c.Request.Context(), caller(c).SubjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.Invitation{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// AcceptInvite redeems a code and opens the chat session it grants. The two writes are not
// atomic: if the session write fails the invitation stays ACCEPTED and the client can
// create the session through POST /user/chats with the returned identifiers.
func (h HandlerSet) AcceptInvite(c *gin.Context) {
	var req acceptInviteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	subjectID := caller(c).SubjectID

	result, err := h.invites.AcceptInvitation(ctx, subjectID, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	session, err := h.sessions.CreateSession(ctx, service.CreateSessionInput{
		OwnerID:    subjectID,
		ClientID:   result.ClientID,
		AvatarID:   result.AvatarID,
		ClientName: result.ClientName,
		AvatarName: result.AvatarName,
	})
	if err != nil {
		h.log.Error().Err(err).Str("subject_id", subjectID).Str("client_id", result.ClientID).Msg("session creation after accept failed")
		code, status := apperr.Classify(err)
		c.JSON(status, gin.H{"error": code, "message": "invitation accepted but chat session was not created", "invitation": result})
		return
	}

	c.JSON(http.StatusOK, acceptInviteResponse{AcceptResult: result, Session: &session})
}
