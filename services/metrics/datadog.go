package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/utils"
)

const (
	seriesEndpoint   = "/api/v1/series"
	checkRunEndpoint = "/api/v1/check_run"
	requestTimeout   = 10 * time.Second
)

// DatadogSink submits metrics to the Datadog v1 HTTP API. Every operation is
// fire-and-forget: submission failures are logged and dropped, never returned.
type DatadogSink struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// NewDatadogSink builds a sink for one tenant's metrics credentials. An
// explicit baseURL overrides the site-derived one (used in tests).
func NewDatadogSink(apiKey, site, baseURL string, log logger.Logger) *DatadogSink {
	if site == "" {
		site = "datadoghq.com"
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://api.%s", strings.ToLower(strings.TrimSpace(site)))
	}
	return &DatadogSink{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		log: log,
	}
}

type seriesPayload struct {
	Series []seriesPoint `json:"series"`
}

type seriesPoint struct {
	Metric string       `json:"metric"`
	Points [][2]float64 `json:"points"`
	Type   string       `json:"type"`
	Tags   []string     `json:"tags"`
}

type checkRunPayload struct {
	Check     string   `json:"check"`
	Status    int      `json:"status"`
	Tags      []string `json:"tags"`
	Message   string   `json:"message"`
	Timestamp int64    `json:"timestamp"`
}

func (s *DatadogSink) Gauge(ctx context.Context, name string, value float64, tags []string) {
	s.submitMetric(ctx, name, value, "gauge", tags)
}

func (s *DatadogSink) Count(ctx context.Context, name string, value int64, tags []string) {
	s.submitMetric(ctx, name, float64(value), "count", tags)
}

func (s *DatadogSink) Increment(ctx context.Context, name string, tags []string) {
	s.Count(ctx, name, 1, tags)
}

func (s *DatadogSink) Histogram(ctx context.Context, name string, value float64, tags []string) {
	s.submitMetric(ctx, name, value, "histogram", tags)
}

func (s *DatadogSink) ServiceCheck(ctx context.Context, name string, status enum.CheckStatus, tags []string, message string) {
	payload := checkRunPayload{
		Check:     name,
		Status:    int(status),
		Tags:      tags,
		Message:   message,
		Timestamp: utils.Now().Unix(),
	}
	s.post(ctx, checkRunEndpoint, payload)
}

func (s *DatadogSink) submitMetric(ctx context.Context, name string, value float64, metricType string, tags []string) {
	if tags == nil {
		tags = []string{}
	}
	payload := seriesPayload{
		Series: []seriesPoint{{
			Metric: name,
			Points: [][2]float64{{float64(utils.Now().Unix()), value}},
			Type:   metricType,
			Tags:   tags,
		}},
	}
	s.post(ctx, seriesEndpoint, payload)
}

func (s *DatadogSink) post(ctx context.Context, endpoint string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Warnf("datadog payload marshal failed: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		s.log.Warnf("datadog request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warnf("datadog send failed: %v", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return
	default:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		s.log.Warnf("datadog API error %d: %s", resp.StatusCode, string(text))
	}
}

// NewFactory returns a MetricsFactory producing Datadog sinks, all logged
// through the given logger.
func NewFactory(log logger.Logger) interfaces.MetricsFactory {
	return func(apiKey, site string) interfaces.MetricsSink {
		return NewDatadogSink(apiKey, site, "", log)
	}
}
