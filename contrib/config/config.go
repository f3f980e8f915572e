package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"dario.cat/mergo"
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/omalloc/spancache/contrib/log"
)

var ErrNoSource = errors.New("config: no source")

// Observer is called with the reloaded value after a source changed.
type Observer[T any] func(v *T)

// Config loads T from sources. Later sources override earlier ones and the
// default value fills whatever the sources leave unset.
type Config[T any] interface {
	Scan(v *T) error
	Watch(o Observer[T]) error
	Close() error
}

type Option func(o *options)

type options struct {
	sources  []Source
	defaults any
}

// WithSource appends config sources.
func WithSource(s ...Source) Option {
	return func(o *options) {
		o.sources = append(o.sources, s...)
	}
}

// WithDefault sets the value that fills zero fields after decoding. d must be
// a *T.
func WithDefault(d any) Option {
	return func(o *options) {
		o.defaults = d
	}
}

type config[T any] struct {
	opts *options

	mu       sync.Mutex
	cached   map[int][]*KeyValue
	watchers []Watcher
	closed   chan struct{}
	once     sync.Once
}

func New[T any](opts ...Option) Config[T] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &config[T]{
		opts:   o,
		cached: make(map[int][]*KeyValue),
		closed: make(chan struct{}),
	}
}

func (c *config[T]) Scan(v *T) error {
	if len(c.opts.sources) == 0 {
		return ErrNoSource
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, src := range c.opts.sources {
		kvs, err := src.Load()
		if err != nil {
			return err
		}
		c.cached[i] = kvs
	}
	return c.decode(v)
}

// decode merges the cached documents into v. Caller holds c.mu.
func (c *config[T]) decode(v *T) error {
	merged := make(map[string]any)
	for i := range c.opts.sources {
		for _, kv := range c.cached[i] {
			doc, err := unmarshal(kv)
			if err != nil {
				return err
			}
			if err := mergo.Merge(&merged, doc, mergo.WithOverride); err != nil {
				return fmt.Errorf("config: merge %s: %w", kv.Key, err)
			}
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToBytesHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(merged); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}

	if c.opts.defaults != nil {
		if err := mergo.Merge(v, c.opts.defaults); err != nil {
			return fmt.Errorf("config: defaults: %w", err)
		}
	}
	return nil
}

func unmarshal(kv *KeyValue) (map[string]any, error) {
	doc := make(map[string]any)
	switch kv.Format {
	case "yaml", "yml", "json", "":
		// yaml is a superset of json
		if err := yaml.Unmarshal(kv.Value, &doc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", kv.Key, err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported format %q of %s", kv.Format, kv.Key)
	}
	return doc, nil
}

// stringToBytesHookFunc decodes human sizes such as "5MiB" into integers.
func stringToBytesHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		switch t.Kind() {
		case reflect.Int, reflect.Int64, reflect.Uint64:
		default:
			return data, nil
		}

		s := data.(string)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil || s == "" {
			return data, nil
		}
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return data, nil
		}
		return n, nil
	}
}

// Watch calls o with a freshly decoded value whenever a source changes.
func (c *config[T]) Watch(o Observer[T]) error {
	for i, src := range c.opts.sources {
		w, err := src.Watch()
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.watchers = append(c.watchers, w)
		c.mu.Unlock()

		go c.watch(i, w, o)
	}
	return nil
}

func (c *config[T]) watch(i int, w Watcher, o Observer[T]) {
	for {
		kvs, err := w.Next()
		select {
		case <-c.closed:
			return
		default:
		}
		if err != nil {
			log.Warnf("config watch: %v", err)
			continue
		}

		v := new(T)
		c.mu.Lock()
		c.cached[i] = kvs
		err = c.decode(v)
		c.mu.Unlock()
		if err != nil {
			log.Errorf("config reload: %v", err)
			continue
		}
		o(v)
	}
}

func (c *config[T]) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, w := range c.watchers {
		errs = append(errs, w.Stop())
	}
	c.watchers = nil
	return errors.Join(errs...)
}
