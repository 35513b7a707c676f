package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"solar-fleet-backend/internal/model"
	"solar-fleet-backend/internal/store"
)

// deviceStatusResponse is the flattened structure for the device listing.
type deviceStatusResponse struct {
	model.Device
	Status          model.DeviceStatus `json:"status"`
	CurrentPower    float64            `json:"currentPower"`
	TodayGeneration float64            `json:"todayGeneration"`
	TotalGeneration float64            `json:"totalGeneration"`
	ObservedAt      *time.Time         `json:"observedAt"`
}

// GetPlantDevices handles the GET /api/plants/{plant_id}/devices request. Each
// device carries its latest replicated telemetry snapshot; devices with no
// snapshot yet report UNKNOWN.
func GetPlantDevices(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		plantID, err := strconv.ParseInt(c.Param("plant_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid plant ID"})
			return
		}

		var devices []model.Device
		if err := db.Where("plant_id = ?", plantID).Find(&devices).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve devices"})
			return
		}

		response := make([]deviceStatusResponse, 0, len(devices))
		for _, device := range devices {
			entry := deviceStatusResponse{
				Device: device,
				Status: model.StatusUnknown,
			}

			var latest model.DeviceTelemetry
			err := db.Where("device_sn = ?", device.SN).
				Order("created_at DESC").
				First(&latest).Error
			if err == nil {
				entry.Status = latest.Status
				entry.CurrentPower = latest.CurrentPower
				entry.TodayGeneration = latest.TodayGeneration
				entry.TotalGeneration = latest.TotalGeneration
				entry.ObservedAt = &latest.ProviderTime
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database error during telemetry lookup"})
				return
			}

			response = append(response, entry)
		}

		c.JSON(http.StatusOK, response)
	}
}

type registerDeviceRequest struct {
	SN         string `json:"sn" binding:"required"`
	DeviceType string `json:"deviceType" binding:"required,oneof=INVERTER BATTERY"`
	PlantID    int64  `json:"plantId" binding:"required"`
	CustomerID int64  `json:"customerId" binding:"required"`
}

// RegisterDevice handles the POST /api/devices request.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := model.Device{
		SN:         req.SN,
		DeviceType: model.DeviceType(req.DeviceType),
		PlantID:    req.PlantID,
		CustomerID: req.CustomerID,
	}

	if err := h.store.RegisterDevice(c.Request.Context(), &device); err != nil {
		switch {
		case errors.Is(err, store.ErrPlantNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "plant not found"})
		case errors.Is(err, store.ErrDeviceExists):
			c.JSON(http.StatusConflict, gin.H{"error": "device serial already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, device)
}
