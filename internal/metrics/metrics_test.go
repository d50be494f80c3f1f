package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	before := testutil.ToFloat64(MessagesTotal.WithLabelValues("reconciled"))
	MessagesTotal.WithLabelValues("reconciled").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesTotal.WithLabelValues("reconciled")))

	ZoneOccupancy.Set(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(ZoneOccupancy))

	ConnectionState.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(ConnectionState))
}

func TestHandlerExposesClientMetrics(t *testing.T) {
	JoinRequests.Inc()
	ConnectAttempts.WithLabelValues("ok").Inc()
	SendRoundTrip.Observe(0.2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"zonechat_join_requests_total",
		"zonechat_connect_attempts_total",
		"zonechat_send_round_trip_seconds_bucket",
		"zonechat_zone_occupancy",
	} {
		assert.Contains(t, string(body), name)
	}
}
