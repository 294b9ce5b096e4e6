package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorFrameLifecycle(t *testing.T) {
	c := NewCollector()

	c.FrameTracked("scale")
	c.FrameTracked("scale")
	c.FrameTracked("impute")
	c.FrameReleased(false)
	c.FrameReleased(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesTracked.WithLabelValues("scale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesReleased.WithLabelValues("removed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesReleased.WithLabelValues("kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesLive))
}

func TestCollectorScoreAndTrain(t *testing.T) {
	c := NewCollector()

	c.RecordScore("pipe", nil, 10*time.Millisecond)
	c.RecordScore("pipe", errors.New("boom"), time.Millisecond)
	c.RecordTrain(nil, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.scoreRequests.WithLabelValues("pipe", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scoreRequests.WithLabelValues("pipe", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.trainRuns.WithLabelValues("ok")))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.FrameTracked("drop")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pipeline_frames_tracked_total"))
}
