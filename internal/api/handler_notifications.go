package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"solar-fleet-backend/internal/model"
)

// GetUserNotifications handles the GET /api/users/{user_id}/notifications
// request.
func GetUserNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var notifications []model.Notification
		if err := db.Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(100).
			Find(&notifications).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notifications"})
			return
		}

		c.JSON(http.StatusOK, notifications)
	}
}

type notifyPreferenceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PutNotifyPreference handles the PUT /api/users/{user_id}/notify request.
func (h *Handler) PutNotifyPreference(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req notifyPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetNotifyEnabled(c.Request.Context(), userID, *req.Enabled); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
