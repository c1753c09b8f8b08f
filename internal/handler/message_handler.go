package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomrelay/backend/internal/broadcast"
)

type ClearMessagesResponse struct {
	Message      string `json:"message" example:"Messages cleared"`
	DeletedCount int64  `json:"deletedCount" example:"42"`
}

// GetMessages godoc
// @Summary      List messages
// @Description  Returns a page of stored messages, newest first, optionally limited to one room.
// @Tags         admin-messages
// @Produce      json
// @Security     BearerAuth
// @Param        page     query     int  false  "Page number"  default(1)
// @Param        limit    query     int  false  "Page size"    default(20)
// @Param        room_id  query     int  false  "Room ID"
// @Success      200  {object}  PaginatedResponse[broadcast.MessageView]
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Router       /admin/messages [get]
func (h *Handler) GetMessages(c *gin.Context) {
	page, limit := pageParams(c)
	roomID, ok := roomQuery(c)
	if !ok {
		return
	}

	messages, total, err := h.router.PageMessages(c.Request.Context(), roomID, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, NewPaginatedResponse[broadcast.MessageView](messages, total, page, limit))
}

// DeleteMessage godoc
// @Summary      Delete a message
// @Description  Deletes a message before it expires. Members of its room are notified.
// @Tags         admin-messages
// @Security     BearerAuth
// @Param        id   path  int  true  "Message ID"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Message not found"
// @Router       /admin/messages/{id} [delete]
func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.router.DeleteMessage(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ClearMessages godoc
// @Summary      Clear messages
// @Description  Deletes every message, or only those of one room.
// @Tags         admin-messages
// @Produce      json
// @Security     BearerAuth
// @Param        room_id  query     int  false  "Room ID"
// @Success      200  {object}  ClearMessagesResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Room not found"
// @Router       /admin/messages [delete]
func (h *Handler) ClearMessages(c *gin.Context) {
	roomID, ok := roomQuery(c)
	if !ok {
		return
	}

	count, err := h.router.ClearMessages(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ClearMessagesResponse{Message: "Messages cleared", DeletedCount: count})
}
