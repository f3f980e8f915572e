package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/omalloc/spancache/api/defined/v1/event"
	"github.com/omalloc/spancache/caching"
)

var (
	// tr_spancache_cache_read_bytes_total 1024
	_metricCacheReadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tr",
		Subsystem: "spancache",
		Name:      "cache_read_bytes_total",
		Help:      "The total number of bytes served from cache",
	})
	_metricCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tr",
		Subsystem: "spancache",
		Name:      "cache_size_bytes",
		Help:      "The committed size of the cache store",
	})
	// tr_spancache_cache_bypass_total{reason="error"} 1
	_metricCacheBypass = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tr",
		Subsystem: "spancache",
		Name:      "cache_bypass_total",
		Help:      "The total number of sessions that bypassed the cache",
	}, []string{"reason"})

	_readRate            = ratecounter.NewRateCounter(time.Second)
	_metricCacheReadRate = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tr",
		Subsystem: "spancache",
		Name:      "cache_read_bytes_per_second",
		Help:      "Bytes served from cache over the last second",
	}, func() float64 {
		return float64(_readRate.Rate())
	})
)

func init() {
	prometheus.MustRegister(_metricCacheReadBytes)
	prometheus.MustRegister(_metricCacheSize)
	prometheus.MustRegister(_metricCacheBypass)
	prometheus.MustRegister(_metricCacheReadRate)

	_metricCacheBypass.WithLabelValues(string(caching.BypassError))
	_metricCacheBypass.WithLabelValues(string(caching.BypassUnsetLength))
}

var _ caching.Observer = Observer{}

// Observer records data source notifications in the default registry.
type Observer struct{}

func (Observer) OnCacheBytesRead(cacheSize, bytesRead int64) {
	_metricCacheSize.Set(float64(cacheSize))
	_metricCacheReadBytes.Add(float64(bytesRead))
	_readRate.Incr(bytesRead)
}

func (Observer) OnCacheBypassed(_ string, reason caching.BypassReason) {
	_metricCacheBypass.WithLabelValues(string(reason)).Inc()
}

var subscribeOnce sync.Once

// Subscribe feeds the cache events published on the event bus into the
// collectors. Calling it more than once has no effect.
func Subscribe() {
	subscribeOnce.Do(func() {
		obs := Observer{}
		event.Subscribe[event.CacheBytesRead](event.CacheBytesReadTopic, func(_ context.Context, v event.CacheBytesRead) {
			obs.OnCacheBytesRead(v.CacheSize, v.BytesRead)
		})
		event.Subscribe[event.CacheBypassed](event.CacheBypassedTopic, func(_ context.Context, v event.CacheBypassed) {
			obs.OnCacheBypassed(v.Key, caching.BypassReason(v.Reason))
		})
	})
}

type BypassTotal struct {
	Reason string  `json:"reason"`
	Count  float64 `json:"count"`
}

func CollectorBypassTotal() []*BypassTotal {
	totals := make([]*BypassTotal, 0)
	if mfs := Gather(); mfs != nil {
		for _, mf := range mfs {
			if mf.GetName() == "tr_spancache_cache_bypass_total" {
				for _, metric := range mf.GetMetric() {
					for _, label := range metric.Label {
						if label.GetName() == "reason" {
							totals = append(totals, &BypassTotal{
								Reason: label.GetValue(),
								Count:  metric.GetCounter().GetValue(),
							})
						}
					}
				}
			}
		}
	}
	return totals
}

func Gather() []*dto.MetricFamily {
	familys, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil
	}
	return familys
}

// WriteTextfile dumps the default registry in the text exposition format.
func WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}
