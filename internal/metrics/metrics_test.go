package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Gauge != nil {
		return out.GetGauge().GetValue()
	}
	return out.GetCounter().GetValue()
}

func TestSearchesTotal_CountsByLabel(t *testing.T) {
	c := SearchesTotal.WithLabelValues("span", "done")
	before := value(t, c)
	c.Inc()
	assert.Equal(t, before+1, value(t, c))
}

func TestSearchesRunning_Gauge(t *testing.T) {
	before := value(t, SearchesRunning)
	SearchesRunning.Inc()
	assert.Equal(t, before+1, value(t, SearchesRunning))
	SearchesRunning.Dec()
	assert.Equal(t, before, value(t, SearchesRunning))
}

func TestHandler_ExposesInstruments(t *testing.T) {
	MatchesTotal.Add(0)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "corpusql_searches_running")
	assert.Contains(t, rec.Body.String(), "corpusql_matches_total")
}
