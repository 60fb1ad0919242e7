package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/turtacn/fincore-risk/pkg/constants"
)

func TestMetricsAdapter_RecordsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	adapter := NewMetricsAdapter(m)

	adapter.RecordPass("success", 12, 250*time.Millisecond)
	adapter.RecordProfile("", constants.BandSevere)
	adapter.RecordProfile("bank", constants.BandLow)
	adapter.RecordFallback(constants.DimensionCredit)
	adapter.RecordAlert(constants.AlertRuleBandCrossing, constants.SeverityHigh)
	adapter.RecordCacheAccess("profile", true)
	adapter.RecordCacheAccess("profile", false)
	adapter.RecordCacheAccess("profile", false)
	adapter.RecordPublish(true, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassTotal.WithLabelValues("success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.PassEntities))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfilesByBand.WithLabelValues("unknown", "Severe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("credit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsGenerated.WithLabelValues("band_crossing", "High")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheAccess.WithLabelValues("profile", "miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AlertsPublished.WithLabelValues("true")))
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
