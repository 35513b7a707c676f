package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupSubscriptionRouter() *gin.Engine {
	r := gin.Default()
	handler := NewHandler(nil, nil)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.POST("/api/devices", handler.RegisterDevice)
	return r
}

func TestPutSubscription_RejectsEmptyBody(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterDevice_RejectsUnknownDeviceType(t *testing.T) {
	router := setupSubscriptionRouter()

	body := `{"sn":"SN-1","deviceType":"TOASTER","plantId":1,"customerId":1}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/devices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
