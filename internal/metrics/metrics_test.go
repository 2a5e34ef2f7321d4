package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		notifyRequestsTotal == nil || backgroundTasksInflight == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveNotify(t *testing.T) {
	Init()
	before := testutil.ToFloat64(notifyRequestsTotal.WithLabelValues("test_outcome"))
	ObserveNotify("test_outcome")
	ObserveNotify("test_outcome")
	if val := testutil.ToFloat64(notifyRequestsTotal.WithLabelValues("test_outcome")); val != before+2 {
		t.Errorf("Expected notify_requests_total to grow by 2, got %f -> %f", before, val)
	}
}

func TestObserveCacheAndRelay(t *testing.T) {
	Init()
	ObserveCacheOp("get", "test_hit")
	ObserveRelay("test_ok")
	ObservePublish("test_ok")
	ObserveRateLimitDelay(20 * time.Millisecond)

	if val := testutil.ToFloat64(notifyCacheOperationsTotal.WithLabelValues("get", "test_hit")); val != 1 {
		t.Errorf("Expected cache get/test_hit to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(notifyRelayTotal.WithLabelValues("test_ok")); val != 1 {
		t.Errorf("Expected relay test_ok to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(notifyPublishTotal.WithLabelValues("test_ok")); val != 1 {
		t.Errorf("Expected publish test_ok to be 1, got %f", val)
	}
	if val := testutil.CollectAndCount(relayRateLimitDelaySeconds); val != 1 {
		t.Errorf("Expected rate limit histogram to be collected, got %d", val)
	}
}

func TestBackgroundGauge(t *testing.T) {
	Init()
	base := testutil.ToFloat64(backgroundTasksInflight)
	IncBackgroundTasks()
	IncBackgroundTasks()
	DecBackgroundTasks()
	if val := testutil.ToFloat64(backgroundTasksInflight); val != base+1 {
		t.Errorf("Expected gauge %f, got %f", base+1, val)
	}
	DecBackgroundTasks()

	ObserveBackgroundPanic("test_task")
	if val := testutil.ToFloat64(backgroundTaskPanicsTotal.WithLabelValues("test_task")); val != 1 {
		t.Errorf("Expected panic counter 1, got %f", val)
	}
}
