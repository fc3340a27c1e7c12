package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"loomtrack-backend/internal/model"
)

// GetSettings handles the GET /api/settings request.
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Settings())
}

// PutSettings handles the PUT /api/settings request. The body is a patch:
// absent fields keep their current values. Changing the remote endpoint or
// key tears the connection down and reconnects against the new identity.
func (h *Handler) PutSettings(c *gin.Context) {
	var patch model.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if patch.MachineCount != nil && *patch.MachineCount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "machineCount must be positive"})
		return
	}
	if patch.AlertThreshold != nil && (*patch.AlertThreshold < 0 || *patch.AlertThreshold > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alertThreshold must be between 0 and 100"})
		return
	}

	c.JSON(http.StatusOK, h.router.UpdateSettings(patch))
}
