package conf

import (
	"time"

	"github.com/omalloc/spancache/api/defined/v1/storage"
)

type Bootstrap struct {
	Logger   *Logger   `json:"logger" yaml:"logger"`
	Storage  *Storage  `json:"storage" yaml:"storage"`
	Upstream *Upstream `json:"upstream" yaml:"upstream"`
	Caching  *Caching  `json:"caching" yaml:"caching"`
	Metrics  *Metrics  `json:"metrics" yaml:"metrics"`
}

type Logger struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"`
	MaxSize    int    `json:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"` // days
	Compress   bool   `json:"compress" yaml:"compress"`
	Console    bool   `json:"console" yaml:"console"`
}

type Storage struct {
	Driver          string         `json:"driver" yaml:"driver"`
	DBType          string         `json:"db_type" yaml:"db_type"`
	DBPath          string         `json:"db_path" yaml:"db_path"`
	DBConfig        map[string]any `json:"db_config" yaml:"db_config"`
	Codec           string         `json:"codec" yaml:"codec"`
	SharedKVPath    string         `json:"sharedkv_path" yaml:"sharedkv_path"`
	SelectionPolicy string         `json:"selection_policy" yaml:"selection_policy"`
	FragmentSize    int64          `json:"fragment_size" yaml:"fragment_size"`
	Buckets         []*Bucket      `json:"buckets" yaml:"buckets"`
}

type Bucket struct {
	Path         string         `json:"path" yaml:"path"`
	Driver       string         `json:"driver" yaml:"driver"`
	Type         string         `json:"type" yaml:"type"`
	Weight       int            `json:"weight" yaml:"weight"`
	HighPercent  float64        `json:"high_percent" yaml:"high_percent"`
	MaxSizeBytes uint64         `json:"max_size_bytes" yaml:"max_size_bytes"`
	Options      map[string]any `json:"options" yaml:"options"`
}

type Upstream struct {
	Driver           string            `json:"driver" yaml:"driver"` // http, minio, s3
	Timeout          time.Duration     `json:"timeout" yaml:"timeout"`
	RateLimit        string            `json:"rate_limit" yaml:"rate_limit"` // bytes per second, e.g. "10MiB"
	Header           map[string]string `json:"header" yaml:"header"`
	NoFollowRedirect bool              `json:"no_follow_redirect" yaml:"no_follow_redirect"`
	Options          map[string]any    `json:"options" yaml:"options"`
}

// Unmarshal decodes the driver options into v.
func (u *Upstream) Unmarshal(v any) error {
	return storage.DecodeOptions(u.Options, v)
}

type Caching struct {
	BlockOnCache              bool   `json:"block_on_cache" yaml:"block_on_cache"`
	IgnoreCacheOnError        bool   `json:"ignore_cache_on_error" yaml:"ignore_cache_on_error"`
	IgnoreCacheForUnsetLength bool   `json:"ignore_cache_for_unset_length" yaml:"ignore_cache_for_unset_length"`
	IncludeQueryInCacheKey    bool   `json:"include_query_in_cache_key" yaml:"include_query_in_cache_key"`
	ReadOnly                  bool   `json:"read_only" yaml:"read_only"`
	LookAhead                 int64  `json:"look_ahead" yaml:"look_ahead"`
	MaxSourceSwitches         int    `json:"max_source_switches" yaml:"max_source_switches"`
	Concurrency               int    `json:"concurrency" yaml:"concurrency"` // warm workers
	VirtualKeyHeader          string `json:"virtual_key_header" yaml:"virtual_key_header"`
}

type Metrics struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Output  string `json:"output" yaml:"output"` // file to dump the registry on exit
}
