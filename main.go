package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	storagev1 "github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/caching"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/config"
	"github.com/omalloc/spancache/contrib/config/provider/file"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/metrics"
	"github.com/omalloc/spancache/pkg/encoding"
	"github.com/omalloc/spancache/pkg/encoding/json"
	xruntime "github.com/omalloc/spancache/pkg/x/runtime"
	"github.com/omalloc/spancache/storage"
	upstreamreg "github.com/omalloc/spancache/upstream"
	_ "github.com/omalloc/spancache/upstream/http"
	_ "github.com/omalloc/spancache/upstream/minio"
	_ "github.com/omalloc/spancache/upstream/s3"
)

var (
	// flagConf is the config flag.
	flagConf string = "config.yaml"
	// flagVerbose is the verbose flag.
	flagVerbose bool

	// Version is the version of the app.
	Version string = "no-set"
	GitHash string = "no-set"
	Built   string = "0"
)

func init() {
	flag.StringVar(&flagConf, "c", "config.yaml", "config file path")
	flag.BoolVar(&flagVerbose, "v", false, "enable verbose log")
	flag.Usage = usage

	// init global encoding
	encoding.SetDefaultCodec(json.JSONCodec{})
}

func usage() {
	fmt.Fprintf(os.Stderr, `spancache %s (%s, built %s)
%s

usage: spancache [-c config.yaml] [-v] <command> [flags] <locator>...

commands:
  cat     read a range of a locator through the cache
  warm    fill the cache with ranges of many locators
  purge   drop cached spans and metadata of locators
  stat    show cached bytes and metadata of locators

`, Version, GitHash, Built, xruntime.BuildInfo)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	c := config.New[conf.Bootstrap](
		config.WithSource(file.NewSource(flagConf)),
		config.WithDefault(defaultBootstrap()),
	)
	defer c.Close()

	bc := &conf.Bootstrap{}
	if err := c.Scan(bc); err != nil {
		log.Fatal(err)
	}

	log.SetLogger(newLogger(bc.Logger, flagVerbose))
	log.Debugf("conf = %#+v", bc)

	// follow log level changes during long warm runs
	if err := c.Watch(func(v *conf.Bootstrap) {
		log.SetLogger(newLogger(v.Logger, flagVerbose))
		log.Infof("config %s reloaded", flagConf)
	}); err != nil {
		log.Warnf("watch config %s: %v", flagConf, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(bc)
	if err != nil {
		log.Fatal(err)
	}

	err = app.run(ctx, flag.Arg(0), flag.Args()[1:])
	if cerr := app.Close(); cerr != nil {
		log.Errorf("close: %v", cerr)
	}
	if err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}

func defaultBootstrap() *conf.Bootstrap {
	return &conf.Bootstrap{
		Logger: &conf.Logger{Level: "info", Console: true},
		Storage: &conf.Storage{
			DBType:       "pebble",
			Codec:        "json",
			FragmentSize: caching.DefaultFragmentSize,
			Buckets:      []*conf.Bucket{{Path: "./cache", Driver: "native"}},
		},
		Upstream: &conf.Upstream{Driver: "http", Timeout: 30 * time.Second},
		Caching: &conf.Caching{
			LookAhead:         caching.DefaultLookAhead,
			MaxSourceSwitches: caching.DefaultMaxSourceSwitches,
			Concurrency:       4,
		},
		Metrics: &conf.Metrics{},
	}
}

func newLogger(c *conf.Logger, verbose bool) log.Logger {
	opt := log.Options{Level: "info", Console: true}
	if c != nil {
		opt = log.Options{
			Level:      c.Level,
			Path:       c.Path,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
			Console:    c.Console,
		}
	}
	if verbose {
		opt.Level = "debug"
	}
	return log.With(log.NewZapLogger(log.NewZap(opt)), "ts", log.Timestamp(time.RFC3339), "pid", os.Getpid())
}

type app struct {
	bc        *conf.Bootstrap
	store     storagev1.CacheStore
	transport upstream.Factory
	opts      []caching.Option
}

func newApp(bc *conf.Bootstrap) (*app, error) {
	store, err := storage.New(bc.Storage, log.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	factory, err := upstreamreg.New(bc.Upstream)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := caching.FromConfig(bc.Caching, bc.Storage.FragmentSize)
	opts = append(opts, caching.WithLogger(log.GetLogger()))
	if bc.Metrics != nil && bc.Metrics.Enabled {
		metrics.Subscribe()
		opts = append(opts, caching.WithObserver(caching.NewEventObserver()))
	}

	return &app{
		bc:        bc,
		store:     store,
		transport: factory,
		opts:      opts,
	}, nil
}

func (a *app) newDataSource() *caching.DataSource {
	return caching.New(a.store, a.transport, a.opts...)
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "cat":
		return a.cat(ctx, args)
	case "warm":
		return a.warm(ctx, args)
	case "purge":
		return a.purge(ctx, args)
	case "stat":
		return a.stat(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) Close() error {
	var errs []error
	if a.bc.Metrics != nil && a.bc.Metrics.Output != "" {
		errs = append(errs, metrics.WriteTextfile(a.bc.Metrics.Output))
		log.Infof("metrics written to %s, %d bypassed sessions", a.bc.Metrics.Output, bypassed())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

func bypassed() int {
	var n float64
	for _, total := range metrics.CollectorBypassTotal() {
		n += total.Count
	}
	return int(n)
}

func cacheSize(store storagev1.CacheStore) string {
	return humanize.IBytes(uint64(max(store.CacheSize(), 0)))
}
