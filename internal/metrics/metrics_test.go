package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/connections", "200"))
	RecordHTTPRequest("GET", "/api/connections", "200", 15*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/connections", "200"))
	assert.Equal(t, before+1, after)
}

func TestTrackChannel(t *testing.T) {
	before := testutil.ToFloat64(WSChannelsActive)
	TrackChannel(true)
	TrackChannel(true)
	TrackChannel(false)
	assert.Equal(t, before+1, testutil.ToFloat64(WSChannelsActive))
	TrackChannel(false)
}

func TestSessionCounters(t *testing.T) {
	created := testutil.ToFloat64(SessionsCreatedTotal.WithLabelValues("WebSocket"))
	terminated := testutil.ToFloat64(SessionsTerminatedTotal)

	RecordSessionCreated("WebSocket")
	RecordSessionTerminated()
	RecordWSMessage("connect")

	assert.Equal(t, created+1, testutil.ToFloat64(SessionsCreatedTotal.WithLabelValues("WebSocket")))
	assert.Equal(t, terminated+1, testutil.ToFloat64(SessionsTerminatedTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(WSMessagesTotal.WithLabelValues("connect")), 1.0)
}
