package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/api/defined/v1/event"
	"github.com/omalloc/spancache/caching"
)

func TestObserver(t *testing.T) {
	before := testutil.ToFloat64(_metricCacheReadBytes)
	bypassBefore := testutil.ToFloat64(_metricCacheBypass.WithLabelValues("error"))

	obs := Observer{}
	obs.OnCacheBytesRead(4096, 100)
	obs.OnCacheBypassed("k", caching.BypassError)

	assert.Equal(t, before+100, testutil.ToFloat64(_metricCacheReadBytes))
	assert.Equal(t, float64(4096), testutil.ToFloat64(_metricCacheSize))
	assert.Equal(t, bypassBefore+1, testutil.ToFloat64(_metricCacheBypass.WithLabelValues("error")))

	var found bool
	for _, total := range CollectorBypassTotal() {
		if total.Reason == "error" {
			found = true
			assert.Equal(t, bypassBefore+1, total.Count)
		}
	}
	assert.True(t, found)
}

func TestSubscribe(t *testing.T) {
	Subscribe()
	Subscribe()

	before := testutil.ToFloat64(_metricCacheBypass.WithLabelValues("unset_length"))
	publish := event.NewPublish[event.CacheBypassed](event.CacheBypassedTopic)
	publish(context.Background(), event.CacheBypassed{Key: "k", Reason: "unset_length"})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(_metricCacheBypass.WithLabelValues("unset_length")) == before+1
	}, time.Second, 10*time.Millisecond)
}

func TestWriteTextfile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, WriteTextfile(out))
	assert.FileExists(t, out)
}
