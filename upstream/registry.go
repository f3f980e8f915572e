package upstream

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/log"
)

// Builder creates a transport factory from its configuration.
type Builder func(c *conf.Upstream) (upstream.Factory, error)

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

func Register(driver string, b Builder) {
	mu.Lock()
	defer mu.Unlock()

	builders[strings.ToLower(driver)] = b
}

// New returns the transport factory of the configured driver, http by default.
func New(c *conf.Upstream) (upstream.Factory, error) {
	if c == nil {
		c = &conf.Upstream{}
	}
	driver := strings.ToLower(c.Driver)
	if driver == "" {
		driver = "http"
	}

	mu.RLock()
	b, ok := builders[driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("upstream driver %q not registered", driver)
	}

	log.Debugf("creating upstream transport %s", driver)
	return b(c)
}

// ParseObjectLocator splits "s3://bucket/object/key" into bucket and object
// key. A locator without scheme is an object key in defaultBucket.
func ParseObjectLocator(locator, defaultBucket string) (bucket, key string, err error) {
	if !strings.Contains(locator, "://") {
		key = strings.TrimPrefix(locator, "/")
		if defaultBucket == "" || key == "" {
			return "", "", fmt.Errorf("locator %q has no bucket", locator)
		}
		return defaultBucket, key, nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("locator %q is not bucket/key", locator)
	}
	return bucket, key, nil
}
