package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncRunsTotal_IncrementsByLabel(t *testing.T) {
	SyncRunsTotal.Reset()
	SyncRunsTotal.WithLabelValues("success", "week").Inc()
	SyncRunsTotal.WithLabelValues("success", "week").Inc()
	SyncRunsTotal.WithLabelValues("error", "range").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(SyncRunsTotal.WithLabelValues("success", "week")))
	assert.Equal(t, float64(1), testutil.ToFloat64(SyncRunsTotal.WithLabelValues("error", "range")))
}

func TestActiveSyncGauge_SetReflectsLastValue(t *testing.T) {
	ActiveSyncGauge.Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(ActiveSyncGauge))

	ActiveSyncGauge.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(ActiveSyncGauge))
}
