package runtime

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

type RuntimeInfo struct {
	GoVersion   string `json:"go.version"`
	GoArch      string `json:"go.arch"`
	VcsRevision string `json:"vcs.revision"`
	VcsTime     string `json:"vcs.time"`
	Dirty       bool   `json:"dirty"`
}

var BuildInfo RuntimeInfo

func init() {
	BuildInfo.GoVersion = runtime.Version()
	BuildInfo.GoArch = runtime.GOARCH

	// -buildvcs=true / auto
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, kv := range info.Settings {
			switch kv.Key {
			case "vcs.revision":
				BuildInfo.VcsRevision = kv.Value[:min(len(kv.Value), 8)]
			case "vcs.time":
				BuildInfo.VcsTime = kv.Value
			case "vcs.modified":
				BuildInfo.Dirty = kv.Value == "true"
			}
		}
	}
}

func (info RuntimeInfo) String() string {
	return fmt.Sprintf("%s %s, commit %s at %s, dirty %t",
		info.GoVersion, info.GoArch, info.VcsRevision, info.VcsTime, info.Dirty)
}
