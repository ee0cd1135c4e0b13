package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Cycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveCycle("gpus", 120*time.Millisecond, OutcomeOK)
	r.ObserveCycle("gpus", 80*time.Millisecond, OutcomePartial)
	r.ObserveCycle("agents", time.Second, OutcomeOK)
	r.TriggerRejected("gpus")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cyclesTotal.WithLabelValues("gpus", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cyclesTotal.WithLabelValues("gpus", OutcomePartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.triggersRejected.WithLabelValues("gpus")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.cycleDuration))
}

func TestRecorder_MergeAndSignals(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.RecordMerge("gpus", 4, 2, 0)
	r.RecordMerge("gpus", 3, 1, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.entities.WithLabelValues("gpus")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.dropped.WithLabelValues("gpus")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.collisions.WithLabelValues("gpus")))

	r.RecordSignal("gpus", "GPU-1", "utilization", 55)
	r.RecordSignal("gpus", "GPU-1", "temperature", 70)
	r.RecordSignal("gpus", "GPU-2", "utilization", 10)
	assert.Equal(t, 3, testutil.CollectAndCount(r.signals))

	r.ForgetEntity("gpus", "GPU-1")
	assert.Equal(t, 1, testutil.CollectAndCount(r.signals))

	r.RecordFailure("gpus", "gpu_temp", "TIMEOUT")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queryFailures.WithLabelValues("gpus", "gpu_temp", "TIMEOUT")))
}

func TestRecorder_BottleneckAndStream(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.RecordBottleneck(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.bottleneck))
	r.RecordBottleneck(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.bottleneck))

	states := []string{"connecting", "connected", "error", "closed"}
	r.StreamState("connected", states)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.streamState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.streamState.WithLabelValues("error")))

	r.LogLine()
	r.LogLine()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.logLines))
}
