package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type capturedRequest struct {
	path   string
	apiKey string
	body   []byte
}

func newCapturingServer(t *testing.T, statusCode int) (*DatadogSink, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{
			path:   r.URL.Path,
			apiKey: r.Header.Get("DD-API-KEY"),
			body:   body,
		})
		mu.Unlock()
		w.WriteHeader(statusCode)
	}))
	t.Cleanup(server.Close)

	sink := NewDatadogSink("dd-key", "datadoghq.eu", server.URL, getLogger())
	return sink, &requests
}

func TestGauge_SubmitsSeriesWithAPIKey(t *testing.T) {
	// Arrange
	sink, requests := newCapturingServer(t, http.StatusAccepted)

	// Act
	sink.Gauge(context.Background(), "imap.accounts.active", 3, []string{"tenant:ten_1"})

	// Assert
	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/api/v1/series", req.path)
	assert.Equal(t, "dd-key", req.apiKey)

	var payload seriesPayload
	require.NoError(t, json.Unmarshal(req.body, &payload))
	require.Len(t, payload.Series, 1)
	assert.Equal(t, "imap.accounts.active", payload.Series[0].Metric)
	assert.Equal(t, "gauge", payload.Series[0].Type)
	assert.Equal(t, []string{"tenant:ten_1"}, payload.Series[0].Tags)
	require.Len(t, payload.Series[0].Points, 1)
	assert.Equal(t, float64(3), payload.Series[0].Points[0][1])
}

func TestIncrement_SubmitsCountOfOne(t *testing.T) {
	// Arrange
	sink, requests := newCapturingServer(t, http.StatusAccepted)

	// Act
	sink.Increment(context.Background(), "emails.processed", nil)

	// Assert
	require.Len(t, *requests, 1)
	var payload seriesPayload
	require.NoError(t, json.Unmarshal((*requests)[0].body, &payload))
	require.Len(t, payload.Series, 1)
	assert.Equal(t, "count", payload.Series[0].Type)
	assert.Equal(t, float64(1), payload.Series[0].Points[0][1])
	// nil tags serialize as an empty list, not null
	assert.NotNil(t, payload.Series[0].Tags)
}

func TestServiceCheck_SubmitsCheckRun(t *testing.T) {
	// Arrange
	sink, requests := newCapturingServer(t, http.StatusOK)

	// Act
	sink.ServiceCheck(context.Background(), "imap.health", enum.CheckCritical, []string{"mailbox:a@x.com"}, "connect refused")

	// Assert
	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/api/v1/check_run", req.path)

	var payload checkRunPayload
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, "imap.health", payload.Check)
	assert.Equal(t, 2, payload.Status)
	assert.Equal(t, "connect refused", payload.Message)
	assert.NotZero(t, payload.Timestamp)
}

func TestPost_APIErrorIsSwallowed(t *testing.T) {
	// Arrange
	sink, requests := newCapturingServer(t, http.StatusForbidden)

	// Act: must not panic or block, failures are logged and dropped
	sink.Count(context.Background(), "smtp.sent", 1, nil)

	// Assert
	require.Len(t, *requests, 1)
}

func TestNewDatadogSink_DerivesBaseURLFromSite(t *testing.T) {
	// Act
	sink := NewDatadogSink("key", "datadoghq.eu", "", getLogger())

	// Assert
	assert.Equal(t, "https://api.datadoghq.eu", sink.baseURL)
}

func TestNewDatadogSink_DefaultSite(t *testing.T) {
	// Act
	sink := NewDatadogSink("key", "", "", getLogger())

	// Assert
	assert.Equal(t, "https://api.datadoghq.com", sink.baseURL)
}
