package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomrelay/backend/internal/broadcast"
)

type RoomInput struct {
	Name string `json:"name" binding:"required" example:"General"`
}

type CreateRoomResponse struct {
	Success bool   `json:"success" example:"true"`
	RoomID  uint   `json:"roomId" example:"1"`
	Name    string `json:"name" example:"General"`
}

type DeleteRoomResponse struct {
	Message              string `json:"message" example:"Room deleted"`
	DeletedMessagesCount int64  `json:"deletedMessagesCount" example:"12"`
}

// ListRooms godoc
// @Summary      List rooms
// @Description  Returns every room with the number of connections currently in it.
// @Tags         rooms
// @Produce      json
// @Success      200  {array}   broadcast.RoomSummary
// @Failure      500  {object}  ErrorResponse
// @Router       /rooms [get]
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.router.ListRooms(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if rooms == nil {
		rooms = []broadcast.RoomSummary{}
	}
	c.JSON(http.StatusOK, rooms)
}

// CreateRoom godoc
// @Summary      Create a room
// @Description  Creates a new room. Names are unique.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        input body RoomInput true "Room Info"
// @Success      201  {object}  CreateRoomResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Room already exists"
// @Failure      500  {object}  ErrorResponse
// @Router       /rooms [post]
func (h *Handler) CreateRoom(c *gin.Context) {
	var input RoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}

	room, err := h.router.CreateRoom(c.Request.Context(), input.Name)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateRoomResponse{Success: true, RoomID: room.ID, Name: room.Name})
}

// DeleteRoom godoc
// @Summary      Delete a room
// @Description  Deletes a room and all of its messages. Connected clients are notified.
// @Tags         admin-rooms
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Room ID"
// @Success      200  {object}  DeleteRoomResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Failure      404  {object}  ErrorResponse "Room not found"
// @Router       /admin/rooms/{id} [delete]
func (h *Handler) DeleteRoom(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	count, err := h.router.DeleteRoom(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteRoomResponse{Message: "Room deleted", DeletedMessagesCount: count})
}
