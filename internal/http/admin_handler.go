package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/repository"
)

// AdminHandler mantiene dependencias para endpoints administrativos.
type AdminHandler struct {
	logger *zap.Logger
	users  repository.UserRepository
}

// NewAdminHandler crea una instancia de AdminHandler.
func NewAdminHandler(logger *zap.Logger, users repository.UserRepository) *AdminHandler {
	return &AdminHandler{logger: logger, users: users}
}

// ListUsers maneja GET /admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
