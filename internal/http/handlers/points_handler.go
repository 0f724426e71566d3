// README: Points balance handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideshare/internal/http/middleware"
	"rideshare/internal/modules/points"
)

type PointsHandler struct {
	points *points.Service
}

func NewPointsHandler(svc *points.Service) *PointsHandler {
	return &PointsHandler{points: svc}
}

func (h *PointsHandler) Balance(c *gin.Context) {
	uid := middleware.CallerUID(c)
	balance, err := h.points.Balance(c.Request.Context(), uid)
	if err != nil {
		writePointsError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"user_id": uid, "balance": balance})
}
