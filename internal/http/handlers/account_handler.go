// README: Registration and login handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideshare/internal/modules/account"
)

type AccountHandler struct {
	accounts *account.Service
}

func NewAccountHandler(svc *account.Service) *AccountHandler {
	return &AccountHandler{accounts: svc}
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAccountError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"user_id": a.ID, "email": a.Email})
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	s, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAccountError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"token":      s.Token,
		"expires_at": s.ExpiresAt.UTC().Format(time.RFC3339),
		"user_id":    s.Account.ID,
		"email":      s.Account.Email,
	})
}
