// Package handler exposes the REST surface of the relay. Every mutation goes
// through the broadcast router so that connected clients are notified.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"roomrelay/backend/internal/auth"
	"roomrelay/backend/internal/broadcast"
)

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
}

type Handler struct {
	router   *broadcast.Router
	admin    *auth.Admin
	secret   string
	tokenTTL time.Duration
	log      *slog.Logger
}

func NewHandler(router *broadcast.Router, admin *auth.Admin, jwtSecret string, log *slog.Logger) *Handler {
	return &Handler{
		router:   router,
		admin:    admin,
		secret:   jwtSecret,
		tokenTTL: 24 * time.Hour,
		log:      log,
	}
}

// Register mounts the public and admin routes on api.
func (h *Handler) Register(api *gin.RouterGroup) {
	rooms := api.Group("/rooms")
	{
		rooms.GET("", h.ListRooms)
		rooms.POST("", h.CreateRoom)
	}

	api.POST("/admin/login", h.AdminLogin)

	admin := api.Group("/admin")
	admin.Use(auth.AdminMiddleware(h.secret))
	{
		admin.GET("/rooms", h.ListRooms)
		admin.POST("/rooms", h.CreateRoom)
		admin.DELETE("/rooms/:id", h.DeleteRoom)

		admin.GET("/messages", h.GetMessages)
		admin.DELETE("/messages", h.ClearMessages)
		admin.DELETE("/messages/:id", h.DeleteMessage)
	}
}

// fail writes the response matching a router error.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, broadcast.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, broadcast.ErrRoomExists):
		c.JSON(http.StatusConflict, gin.H{"error": "A room with this name already exists"})
	case errors.Is(err, broadcast.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
	case errors.Is(err, broadcast.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	default:
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// roomQuery reads the optional room_id filter.
func roomQuery(c *gin.Context) (*uint, bool) {
	raw := c.Query("room_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room_id"})
		return nil, false
	}
	roomID := uint(id)
	return &roomID, true
}
