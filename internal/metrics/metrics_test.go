package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsSharedSingleton(t *testing.T) {
	m1 := New()
	m2 := New()
	require.Same(t, m1, m2)
}

func TestRecordReconcileResultUpdatesCounters(t *testing.T) {
	m := New()
	m.RecordReconcileResult(map[string]int{"start_bead": 2}, map[string]int{"retry_bead": 1})

	require.Equal(t, float64(2), testutil.ToFloat64(m.ReconcileActionsTotal.WithLabelValues("start_bead", "succeeded")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ReconcileActionsTotal.WithLabelValues("retry_bead", "failed")))
}

func TestRecordPoolStatsSetsGauges(t *testing.T) {
	m := New()
	m.RecordPoolStats(10, 4, 5, 1)

	require.Equal(t, float64(10), testutil.ToFloat64(m.WorkerPoolTotal))
	require.Equal(t, float64(4), testutil.ToFloat64(m.WorkerPoolAvailable))
	require.Equal(t, float64(5), testutil.ToFloat64(m.WorkerPoolBusy))
	require.Equal(t, float64(1), testutil.ToFloat64(m.WorkerPoolAttention))
}
