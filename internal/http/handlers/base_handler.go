// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideshare/internal/modules/account"
	"rideshare/internal/modules/points"
	"rideshare/internal/modules/ride"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts generated UUIDs and RTDB push keys.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRideError(c *gin.Context, err error) {
	switch ride.Kind(err) {
	case ride.ErrValidation:
		writeError(c, http.StatusBadRequest, err.Error())
	case ride.ErrPermission:
		writeError(c, http.StatusForbidden, err.Error())
	case ride.ErrNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case ride.ErrConflict:
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidEmail), errors.Is(err, account.ErrWeakPassword):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrEmailTaken):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials), errors.Is(err, account.ErrNotFound):
		writeError(c, http.StatusUnauthorized, account.ErrInvalidCredentials.Error())
	default:
		writeInternal(c, err)
	}
}

func writePointsError(c *gin.Context, err error) {
	if errors.Is(err, points.ErrNoAccount) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	writeInternal(c, err)
}

// writeInternal hides infrastructure details from clients; the access log picks up c.Errors.
func writeInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	writeError(c, http.StatusInternalServerError, "internal error")
}
