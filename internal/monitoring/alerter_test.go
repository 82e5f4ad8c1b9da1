package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvariant/tranchefilter/internal/config"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		CheckIntervalSecs:    60,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.5,
		StalledAfterSecs:     3600,
	}
}

func TestAlerterEvaluate_FailureRate(t *testing.T) {
	t.Parallel()
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		Total: 10, Complete: 2, Failed: 8,
		FailRate:      0.8,
		LookbackHours: 24,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "80.0%")
}

func TestAlerterEvaluate_BelowThreshold(t *testing.T) {
	t.Parallel()
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{Total: 10, Complete: 8, Failed: 2, FailRate: 0.2}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerterEvaluate_TooFewFinishedRuns(t *testing.T) {
	t.Parallel()
	a := NewAlerter(testMonitoringConfig())

	// 1 of 2 failed is above the threshold but below the sample floor.
	snap := &MetricsSnapshot{Total: 2, Complete: 1, Failed: 1, FailRate: 0.5}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerterEvaluate_StalledRuns(t *testing.T) {
	t.Parallel()
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{Total: 3, Running: 2, Stalled: 1}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStalledRuns, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "stuck in running")
}

func TestAlerterSendAlerts(t *testing.T) {
	t.Parallel()

	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Runs on the server goroutine, so assert rather than require.
		var alert Alert
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert)) {
			assert.Equal(t, AlertStalledRuns, alert.Type)
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertStalledRuns, Severity: "high", Message: "stalled", Timestamp: time.Now()},
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerterSendAlerts_WebhookFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 0, sent)
}

func TestAlerterSendAlerts_NoWebhookConfigured(t *testing.T) {
	t.Parallel()
	a := NewAlerter(testMonitoringConfig())

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 0, sent)
}
