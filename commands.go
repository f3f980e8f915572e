package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	storagev1 "github.com/omalloc/spancache/api/defined/v1/storage"
	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/caching"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/pkg/x/http/rangecontrol"
)

// rangeFlag parses "start-end" or "start-" into a position and length.
type rangeFlag struct {
	position int64
	length   int64
}

func (r *rangeFlag) String() string {
	if r.length == upstream.LengthUnset {
		return fmt.Sprintf("%d-", r.position)
	}
	return fmt.Sprintf("%d-%d", r.position, r.position+r.length-1)
}

func (r *rangeFlag) Set(s string) error {
	br, err := rangecontrol.ParseSpec(s)
	if err != nil {
		return err
	}
	r.position = br.Start
	r.length = br.Length()
	return nil
}

func newRangeFlag() *rangeFlag {
	return &rangeFlag{length: upstream.LengthUnset}
}

func (a *app) cat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	out := fs.String("o", "-", "output file, - for stdout")
	rng := newRangeFlag()
	fs.Var(rng, "r", "byte range, e.g. 0-1023 or 1024-")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("cat: exactly one locator required")
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	ds := a.newDataSource()
	spec := upstream.NewDataSpec(fs.Arg(0), rng.position, rng.length)

	start := time.Now()
	length, err := ds.Open(ctx, spec)
	if err != nil {
		return err
	}

	n, err := io.Copy(w, ds)
	if cerr := ds.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	log.Infof("cat %s: %s of %s in %s from %s, cache size %s",
		spec, humanize.IBytes(uint64(n)), sizeOf(length), time.Since(start).Round(time.Millisecond),
		ds.ResolvedLocator(), cacheSize(a.store))
	return nil
}

func (a *app) warm(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("warm", flag.ContinueOnError)
	list := fs.String("f", "", "file with one locator per line")
	concurrency := fs.Int("n", a.bc.Caching.Concurrency, "concurrent locators")
	rng := newRangeFlag()
	fs.Var(rng, "r", "byte range of every locator, e.g. 0-1048575")
	if err := fs.Parse(args); err != nil {
		return err
	}

	locators := fs.Args()
	if *list != "" {
		lines, err := readLines(*list)
		if err != nil {
			return err
		}
		locators = append(locators, lines...)
	}
	locators = lo.Uniq(lo.Filter(locators, func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	}))
	if len(locators) == 0 {
		return errors.New("warm: no locator")
	}

	var newly, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))

	for _, locator := range locators {
		g.Go(func() error {
			ds := a.newDataSource()
			spec := upstream.NewDataSpec(locator, rng.position, rng.length)
			res, err := caching.Warm(ctx, a.store, ds, spec, func(requested, cached, newlyCached int64) {
				log.Debugf("warm %s: %s cached, %s new of %s", locator,
					humanize.IBytes(uint64(cached)), humanize.IBytes(uint64(newlyCached)), sizeOf(requested))
			})
			if err != nil {
				// one failing locator does not stop the others
				failed.Add(1)
				log.Errorf("warm %s: %v", locator, err)
				return nil
			}
			newly.Add(res.NewlyCached)
			log.Infof("warm %s: %s of %s was cached, %s fetched", locator,
				humanize.IBytes(uint64(res.Cached)), sizeOf(res.Requested), humanize.IBytes(uint64(res.NewlyCached)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Infof("warmed %d locators, %s fetched, %d failed, cache size %s",
		len(locators), humanize.IBytes(uint64(newly.Load())), failed.Load(), cacheSize(a.store))
	if failed.Load() > 0 {
		return fmt.Errorf("warm: %d locators failed", failed.Load())
	}
	return nil
}

func (a *app) purge(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("purge: no locator")
	}

	ds := a.newDataSource()
	var errs []error
	for _, locator := range args {
		key := ds.CacheKey(upstream.NewDataSpec(locator, 0, upstream.LengthUnset))
		if err := a.store.Remove(ctx, key); err != nil {
			if errors.Is(err, storagev1.ErrKeyNotFound) {
				log.Warnf("purge %s: not cached", locator)
				continue
			}
			errs = append(errs, fmt.Errorf("purge %s: %w", locator, err))
			continue
		}
		log.Infof("purged %s", locator)
	}
	return errors.Join(errs...)
}

func (a *app) stat(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("stat: no locator")
	}

	ds := a.newDataSource()
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintf(w, "%-12s %-12s %s\n", "CACHED", "LENGTH", "LOCATOR")
	for _, locator := range args {
		key := ds.CacheKey(upstream.NewDataSpec(locator, 0, upstream.LengthUnset))
		md, err := a.store.Metadata(ctx, key)
		if err != nil {
			return err
		}
		cached := a.store.CachedBytes(ctx, key, 0, upstream.LengthUnset)

		line := fmt.Sprintf("%-12s %-12s %s", humanize.IBytes(uint64(cached)), sizeOf(md.Length), locator)
		if md.Redirect != "" {
			line += " -> " + md.Redirect
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "total cache size %s\n", cacheSize(a.store))
	return nil
}

func sizeOf(n int64) string {
	if n == upstream.LengthUnset {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, s.Err()
}
