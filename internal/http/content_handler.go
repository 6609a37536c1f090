package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/service"
)

// ContentHandler recibe las ediciones del panel que invalidan embeddings.
type ContentHandler struct {
	logger  *zap.Logger
	content *service.ContentService
}

func NewContentHandler(logger *zap.Logger, content *service.ContentService) *ContentHandler {
	return &ContentHandler{logger: logger, content: content}
}

// UpdateQuestionText maneja PUT /admin/questions/:id/text.
func (h *ContentHandler) UpdateQuestionText(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid question text request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.content.UpdateQuestionText(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.writeContentError(c, "update question text failed", err)
		return
	}
	c.JSON(http.StatusOK, update)
}

// UpdateChoice maneja PUT /admin/choices/:id.
func (h *ContentHandler) UpdateChoice(c *gin.Context) {
	var req struct {
		Label    string   `json:"label" binding:"required"`
		Keywords []string `json:"keywords"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid choice request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.content.UpdateChoiceLabel(c.Request.Context(), c.Param("id"), req.Label, req.Keywords)
	if err != nil {
		h.writeContentError(c, "update choice failed", err)
		return
	}
	c.JSON(http.StatusOK, update)
}

// UpdateImage maneja PUT /admin/images/:id.
func (h *ContentHandler) UpdateImage(c *gin.Context) {
	var req struct {
		URL         string `json:"url" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid image request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.content.UpdateImage(c.Request.Context(), c.Param("id"), req.URL, req.Description)
	if err != nil {
		h.writeContentError(c, "update image failed", err)
		return
	}
	c.JSON(http.StatusOK, update)
}

// UpdateProfileDescriptions maneja PUT /admin/photographers/:id/descriptions.
func (h *ContentHandler) UpdateProfileDescriptions(c *gin.Context) {
	var req struct {
		Descriptions map[string]string `json:"descriptions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid descriptions request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	descriptions := make(map[domain.Dimension]string, len(req.Descriptions))
	for k, v := range req.Descriptions {
		descriptions[domain.Dimension(k)] = v
	}
	profile, update, err := h.content.UpdateProfileDescriptions(c.Request.Context(), c.Param("id"), descriptions)
	if err != nil {
		h.writeContentError(c, "update profile descriptions failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "job": update.Job})
}

func (h *ContentHandler) writeContentError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrContentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrContentInvalidInput), errors.Is(err, service.ErrUnknownDimension):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update content"})
	}
}
