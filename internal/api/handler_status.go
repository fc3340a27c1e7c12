package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusResponse is the connectivity indicator the UI polls: the current
// connection state plus how many local mutations still await remote
// confirmation.
type statusResponse struct {
	Connection   string `json:"connection"`
	PendingCount int    `json:"pendingCount"`
}

// GetStatus handles the GET /api/status request.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Connection:   string(h.router.ConnectionStatus()),
		PendingCount: h.router.PendingCount(),
	})
}

// WipeData handles the POST /api/data/wipe request: local records, the
// pending queue, and (when connected) the remote record set are all
// erased. Settings fall back to defaults, keeping the remote identity.
func (h *Handler) WipeData(c *gin.Context) {
	h.router.DeleteAllData(c.Request.Context())
	c.Status(http.StatusNoContent)
}
