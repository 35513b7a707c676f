package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"solar-fleet-backend/internal/model"
)

// PlantResponse represents the API response for a single plant.
type PlantResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	AutoID       string `json:"autoId"`
	CustomerID   int64  `json:"customerId"`
	InstallerID  int64  `json:"installerId"`
	TotalDevices int64  `json:"totalDevices"`
}

// GetPlants handles the GET /api/plants request.
func GetPlants(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var plants []model.Plant
		if err := db.Find(&plants).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve plants"})
			return
		}

		type aggRow struct {
			PlantID      int64
			TotalDevices int64
		}
		var aggs []aggRow
		if err := db.
			Model(&model.Device{}).
			Select("plant_id as plant_id, COUNT(*) as total_devices").
			Group("plant_id").
			Scan(&aggs).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate devices"})
			return
		}

		aggMap := make(map[int64]aggRow, len(aggs))
		for _, a := range aggs {
			aggMap[a.PlantID] = a
		}

		responses := make([]PlantResponse, 0, len(plants))
		for _, p := range plants {
			a := aggMap[p.ID]
			responses = append(responses, PlantResponse{
				ID:           p.ID,
				Name:         p.Name,
				AutoID:       p.AutoID,
				CustomerID:   p.CustomerID,
				InstallerID:  p.InstallerID,
				TotalDevices: a.TotalDevices,
			})
		}
		c.JSON(http.StatusOK, responses)
	}
}
