package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/service"
)

// AdminHandler expone los pesos y ajustes del matching.
type AdminHandler struct {
	logger   *zap.Logger
	weights  *service.WeightConfigService
	settings *service.SettingsService
}

func NewAdminHandler(logger *zap.Logger, weights *service.WeightConfigService, settings *service.SettingsService) *AdminHandler {
	return &AdminHandler{logger: logger, weights: weights, settings: settings}
}

// GetWeights maneja GET /admin/weights.
func (h *AdminHandler) GetWeights(c *gin.Context) {
	snap, err := h.weights.Ensure(c.Request.Context())
	if err != nil {
		h.logger.Error("load weights failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load weights"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"weights": snap, "warning": driftWarning(snap)})
}

// SetWeights maneja PUT /admin/weights con porcentajes por dimension.
func (h *AdminHandler) SetWeights(c *gin.Context) {
	var req struct {
		Dimensions map[string]float64 `json:"dimensions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid set weights request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	percents := make(map[domain.Dimension]float64, len(req.Dimensions))
	for k, v := range req.Dimensions {
		percents[domain.Dimension(k)] = v
	}

	snap, err := h.weights.SetDimensionWeights(c.Request.Context(), percents)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWeightsDoNotSum),
			errors.Is(err, service.ErrUnknownDimension),
			errors.Is(err, service.ErrInvalidWeight):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrDimensionWithoutQuestions):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("set weights failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update weights"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"weights": snap})
}

// RefreshWeights maneja POST /admin/weights/refresh.
func (h *AdminHandler) RefreshWeights(c *gin.Context) {
	snap, err := h.weights.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error("refresh weights failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not refresh weights"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"weights": snap, "warning": driftWarning(snap)})
}

// GetSettings maneja GET /admin/settings.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("load settings failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings maneja PUT /admin/settings.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req domain.MatchSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid settings request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSettings) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("update settings failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func driftWarning(snap domain.WeightSnapshot) string {
	if snap.Drift > 0.001 {
		return "active question weights do not total 100%"
	}
	return ""
}
