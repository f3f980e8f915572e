package runtime

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildInfo(t *testing.T) {
	assert.Equal(t, runtime.Version(), BuildInfo.GoVersion)
	assert.Contains(t, BuildInfo.String(), runtime.GOARCH)
}
