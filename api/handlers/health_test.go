package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/replyforge/interfaces"
)

type stubFleetService struct {
	statuses []interfaces.TenantStatus
}

func (s *stubFleetService) Reconcile(ctx context.Context) error { return nil }
func (s *stubFleetService) Stop(ctx context.Context)            {}
func (s *stubFleetService) Status() []interfaces.TenantStatus   { return s.statuses }

func TestHealthCheck(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck)

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus_ReturnsFleetSnapshot(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	fleet := &stubFleetService{statuses: []interfaces.TenantStatus{
		{TenantID: "ten_1", Running: true, ActivePollers: []string{"a@x.com"}},
	}}
	router := gin.New()
	router.GET("/status", Status(fleet))

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)

	var got []interfaces.TenantStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ten_1", got[0].TenantID)
	assert.True(t, got[0].Running)
	assert.Equal(t, []string{"a@x.com"}, got[0].ActivePollers)
}
