package colfetch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	// Vec families are not gathered until first access.
	m.Requests.WithLabelValues("ok").Add(0)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, metricFamilies, 5, "should have 5 metric families")

	names := make(map[string]bool)
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}

	require.True(t, names["colfetch_requests_total"])
	require.True(t, names["colfetch_bytes_fetched_total"])
	require.True(t, names["colfetch_retries_total"])
	require.True(t, names["colfetch_request_duration_seconds"])
	require.True(t, names["colfetch_requests_in_flight"])
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.start()
	m.finish(0, 10, nil)
	m.retry()
}

func TestMetrics_RecordedByFetcher(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	fr := newFaultReader(NewMemoryReader(patterned(100)))
	fr.FailAt(0, errTransient)
	fr.FailAt(50, errMissing)

	f := NewRetryingFetcher(fr, 1, nil, m, nil)
	_, err := f.Fetch(t.Context(), 0, 40)
	require.NoError(t, err)
	_, err = f.Fetch(t.Context(), 50, 10)
	require.Error(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues(KindRetryable.String())))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues(KindNotFound.String())))
	require.Equal(t, float64(40), testutil.ToFloat64(m.BytesFetched))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Retries))
	require.Equal(t, float64(0), testutil.ToFloat64(m.InFlight))
}
