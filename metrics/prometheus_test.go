package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
)

func TestGet(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestPhaseChanged_IsOneHot(t *testing.T) {
	r := New()

	r.PhaseChanged("deeplook", "probing")
	r.PhaseChanged("deeplook", "connected")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Phase.WithLabelValues("deeplook", "connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Phase.WithLabelValues("deeplook", "probing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Phase.WithLabelValues("deeplook", "idle")))
}

func TestCounters(t *testing.T) {
	r := New()

	r.PollCompleted("deeplook", false)
	r.PollCompleted("deeplook", false)
	r.PollCompleted("deeplook", true)
	r.Escalated("deeplook", "launched")
	r.OpcodeSent("deeplook", "heartbeat", nil)
	r.OpcodeSent("deeplook", "heartbeat", errors.ErrNotConnected)
	r.FrameDecoded("deeplook", "tag", "measure_query")
	r.DecodeFailed("segmentation", "json")
	r.ReplySent("deeplook", "measure_query")
	r.HandoffChanged("deeplook", "acquire")
	r.CommandRun("isDeepLookConnected", nil)
	r.NotificationShown("error", false)
	r.HTTPRequestDone("segmentation", "processSeries", 1.5, nil)
	r.HTTPRequestDone("segmentation", "downloadSegmentation", 0.1, errors.ErrNotLoopback)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Polls.WithLabelValues("deeplook", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Polls.WithLabelValues("deeplook", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Escalations.WithLabelValues("deeplook", "launched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OpcodesSent.WithLabelValues("deeplook", "heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OpcodeErrors.WithLabelValues("deeplook", "heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FramesDecoded.WithLabelValues("deeplook", "tag", "measure_query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DecodeErrors.WithLabelValues("segmentation", "json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RepliesSent.WithLabelValues("deeplook", "measure_query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Handoffs.WithLabelValues("deeplook", "acquire")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Commands.WithLabelValues("isDeepLookConnected", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Notifications.WithLabelValues("error", "limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequests.WithLabelValues("segmentation", "processSeries", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequests.WithLabelValues("segmentation", "downloadSegmentation", "error")))
}

func TestHandler(t *testing.T) {
	r := New()
	r.PollCompleted("deeplook", true)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `lookbridge_supervisor_polls_total{connected="true",extension="deeplook"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
