package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"photo-match/internal/service"
)

// MatchHandler expone el ranking de fotografos.
type MatchHandler struct {
	logger   *zap.Logger
	ranker   *service.MatchRanker
	settings *service.SettingsService
}

func NewMatchHandler(logger *zap.Logger, ranker *service.MatchRanker, settings *service.SettingsService) *MatchHandler {
	return &MatchHandler{logger: logger, ranker: ranker, settings: settings}
}

// Rank maneja POST /match/sessions/:id/rank.
func (h *MatchHandler) Rank(c *gin.Context) {
	sessionID := c.Param("id")
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("load match settings failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load settings"})
		return
	}

	results, err := h.ranker.Rank(c.Request.Context(), sessionID, settings)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error("rank failed", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rank photographers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "results": results})
}
