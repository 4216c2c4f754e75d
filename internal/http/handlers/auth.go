package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mementolink/mementolink-backend/internal/http/response"
	"github.com/mementolink/mementolink-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Tenant   string `json:"tenant"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	user, accessToken, err := ah.authService.Login(c.Request.Context(), req.Email, req.Tenant, req.Password)
	if err != nil {
		response.RespondError(c, http.StatusUnauthorized, "invalid_credentials", err)
		return
	}
	response.RespondOK(c, gin.H{
		"user_id":      user.ID,
		"access_token": accessToken,
	})
}
