package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/config"
	"github.com/omalloc/spancache/contrib/config/provider/file"
)

const document = `
logger:
  level: debug
storage:
  fragment_size: 1MiB
  buckets:
    - path: /mem
      driver: memory
      max_size_bytes: 64MiB
upstream:
  driver: http
  timeout: 5s
caching:
  block_on_cache: true
`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, document)

	c := config.New[conf.Bootstrap](
		config.WithSource(file.NewSource(path)),
		config.WithDefault(&conf.Bootstrap{
			Caching: &conf.Caching{LookAhead: 4096, MaxSourceSwitches: 8},
			Metrics: &conf.Metrics{Output: "metrics.prom"},
		}),
	)
	defer c.Close()

	bc := &conf.Bootstrap{}
	require.NoError(t, c.Scan(bc))

	assert.Equal(t, "debug", bc.Logger.Level)
	assert.Equal(t, int64(1<<20), bc.Storage.FragmentSize)
	require.Len(t, bc.Storage.Buckets, 1)
	assert.Equal(t, uint64(64<<20), bc.Storage.Buckets[0].MaxSizeBytes)
	assert.Equal(t, 5*time.Second, bc.Upstream.Timeout)
	assert.True(t, bc.Caching.BlockOnCache)
	// filled from defaults
	assert.Equal(t, int64(4096), bc.Caching.LookAhead)
	assert.Equal(t, "metrics.prom", bc.Metrics.Output)
}

func TestScanErrors(t *testing.T) {
	assert.ErrorIs(t, config.New[conf.Bootstrap]().Scan(&conf.Bootstrap{}), config.ErrNoSource)

	c := config.New[conf.Bootstrap](config.WithSource(file.NewSource(filepath.Join(t.TempDir(), "missing.yaml"))))
	assert.Error(t, c.Scan(&conf.Bootstrap{}))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "logger: [")
	c = config.New[conf.Bootstrap](config.WithSource(file.NewSource(path)))
	assert.Error(t, c.Scan(&conf.Bootstrap{}))
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, document)

	c := config.New[conf.Bootstrap](config.WithSource(file.NewSource(path)))
	defer c.Close()
	require.NoError(t, c.Scan(&conf.Bootstrap{}))

	changed := make(chan *conf.Bootstrap, 8)
	require.NoError(t, c.Watch(func(v *conf.Bootstrap) {
		changed <- v
	}))

	writeFile(t, path, "logger:\n  level: warn\n")

	select {
	case v := <-changed:
		assert.Equal(t, "warn", v.Logger.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("change not observed")
	}
}
