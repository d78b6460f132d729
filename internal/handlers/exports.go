package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createExportRequest struct {
	ClientID string `json:"clientId"`
	AvatarID string `json:"avatarId"`
	UserID   string `json:"userId"`
}

// CreateExport queues a transcript export; the worker uploads it and the caller polls
// GetExport for the download link.
func (h HandlerSet) CreateExport(c *gin.Context) {
	var req createExportRequest
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

	export, err := h.exports.RequestExport(ctx, who.SubjectID, conv)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, export)
}

func (h HandlerSet) GetExport(c *gin.Context) {
	view, err := h.exports.GetExport(c.Request.Context(), caller(c).SubjectID, c.Param("exportId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
