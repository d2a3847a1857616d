package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	// Verify all metrics are initialized
	if m.AnalysisRequestsTotal == nil {
		t.Error("AnalysisRequestsTotal is nil")
	}
	if m.ChartBuildsTotal == nil {
		t.Error("ChartBuildsTotal is nil")
	}
	if m.ExternalAPIRequestsTotal == nil {
		t.Error("ExternalAPIRequestsTotal is nil")
	}
	if m.CacheHitsTotal == nil || m.CacheMissesTotal == nil {
		t.Error("cache metrics are nil")
	}
	if m.DBQueryTotal == nil {
		t.Error("DBQueryTotal is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.SearchRequestsTotal == nil {
		t.Error("SearchRequestsTotal is nil")
	}
	if m.LivePollTicksTotal == nil {
		t.Error("LivePollTicksTotal is nil")
	}
	if m.ActiveSessions == nil {
		t.Error("ActiveSessions is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}
}

func TestRecordAnalysisRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAnalysisRequest("AAPL")
	m.RecordAnalysisRequest("AAPL")
	m.RecordAnalysisRequest("GOOG")

	aaplCount := testutil.ToFloat64(m.AnalysisRequestsTotal.WithLabelValues("AAPL"))
	if aaplCount != 2 {
		t.Errorf("Expected AAPL count to be 2, got %f", aaplCount)
	}

	googCount := testutil.ToFloat64(m.AnalysisRequestsTotal.WithLabelValues("GOOG"))
	if googCount != 1 {
		t.Errorf("Expected GOOG count to be 1, got %f", googCount)
	}
}

func TestRecordAnalysisError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAnalysisError("AAPL", "no_data")
	m.RecordAnalysisError("AAPL", "no_data")

	if got := testutil.ToFloat64(m.AnalysisErrorsTotal.WithLabelValues("AAPL", "no_data")); got != 2 {
		t.Errorf("Expected AAPL no_data count to be 2, got %f", got)
	}
}

func TestRecordChartBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordChartBuild("price", "ok")
	m.RecordChartBuild("rsi", "no_chart")
	m.RecordChartBuild("rsi", "no_chart")

	if got := testutil.ToFloat64(m.ChartBuildsTotal.WithLabelValues("rsi", "no_chart")); got != 2 {
		t.Errorf("Expected rsi no_chart count to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.ChartBuildsTotal.WithLabelValues("price", "ok")); got != 1 {
		t.Errorf("Expected price ok count to be 1, got %f", got)
	}
}

func TestRecordExternalAPI(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordExternalAPIRequest("yahoo", "history")
	m.RecordExternalAPIError("yahoo", "history", "timeout")
	m.RecordExternalAPIDuration("yahoo", "history", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.ExternalAPIRequestsTotal.WithLabelValues("yahoo", "history")); got != 1 {
		t.Errorf("Expected yahoo request count to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.ExternalAPIErrorsTotal.WithLabelValues("yahoo", "history", "timeout")); got != 1 {
		t.Errorf("Expected yahoo timeout count to be 1, got %f", got)
	}
}

func TestRecordCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCacheHit("memory")
	m.RecordCacheHit("memory")
	m.RecordCacheMiss("store")

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory")); got != 2 {
		t.Errorf("Expected memory hits to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("store")); got != 1 {
		t.Errorf("Expected store misses to be 1, got %f", got)
	}
}

func TestRecordDBQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDBQuery("select", "market_data_cache", 10*time.Millisecond)
	m.RecordDBError("select", "market_data_cache")

	if got := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "market_data_cache")); got != 1 {
		t.Errorf("Expected query count to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("select", "market_data_cache")); got != 1 {
		t.Errorf("Expected error count to be 1, got %f", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/api/quote/{ticker}", "200", 5*time.Millisecond, 512)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/quote/{ticker}", "200")); got != 1 {
		t.Errorf("Expected HTTP count to be 1, got %f", got)
	}
}

func TestInteractiveMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSearch("issued")
	m.RecordSearch("stale")
	m.RecordLivePollTick("error")
	m.RecordSchedulerRun("purge_cache", "success")
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("stale")); got != 1 {
		t.Errorf("Expected stale count to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.LivePollTicksTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected poll error count to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.SchedulerRunsTotal.WithLabelValues("purge_cache", "success")); got != 1 {
		t.Errorf("Expected scheduler run count to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Errorf("Expected active sessions to be 3, got %f", got)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetCircuitBreakerState("yahoo", 2)
	m.RecordCircuitBreakerTrip("yahoo")

	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("yahoo")); got != 2 {
		t.Errorf("Expected yahoo state to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("yahoo")); got != 1 {
		t.Errorf("Expected yahoo trips to be 1, got %f", got)
	}
}

func TestTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	timer := m.NewTimer()
	if timer == nil {
		t.Fatal("NewTimer returned nil")
	}

	time.Sleep(10 * time.Millisecond)

	if d := timer.Duration(); d < 10*time.Millisecond {
		t.Errorf("Expected duration to be at least 10ms, got %v", d)
	}

	timer.ObserveAnalysis("AAPL", "success")
	timer.ObserveExternalAPI("alpaca", "bars")
	timer.ObserveDB("select", "market_data_cache")
}

func TestGetMetrics_Singleton(t *testing.T) {
	original := globalMetrics
	defer func() { globalMetrics = original }()

	globalMetrics = NewMetrics(prometheus.NewRegistry())

	m1 := GetMetrics()
	if m1 == nil {
		t.Fatal("GetMetrics returned nil")
	}
	if m2 := GetMetrics(); m1 != m2 {
		t.Error("GetMetrics should return the same instance")
	}
}
