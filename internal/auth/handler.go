package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"pricewatch/pkg/utils"
)

type Handler struct {
	Tokens TokenService
	Cfg    utils.AuthConfig
}

func NewHandler(tokens TokenService, cfg utils.AuthConfig) *Handler {
	return &Handler{Tokens: tokens, Cfg: cfg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.login)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if h.Cfg.AdminPasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login disabled"})
		return
	}
	if req.Username != h.Cfg.AdminUser ||
		bcrypt.CompareHashAndPassword([]byte(h.Cfg.AdminPasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, exp, err := h.Tokens.Sign(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp})
}
