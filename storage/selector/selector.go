package selector

import (
	"github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/storage/selector/hashring"
)

// New returns the bucket selector named by policy. Unknown policies fall back
// to the hash ring.
func New(buckets []storage.Bucket, policy string) storage.Selector {
	switch policy {
	case hashring.Name, "":
	default:
		log.Warnf("unknown selection policy %q, use %s", policy, hashring.Name)
	}

	b, err := hashring.New(buckets)
	if err != nil {
		log.Errorf("failed to build %s selector: %v", hashring.Name, err)
		return nil
	}
	return b
}
