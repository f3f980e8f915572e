package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/contrib/log"
	"github.com/omalloc/spancache/internal/protocol"
	"github.com/omalloc/spancache/pkg/iobuf"
	xhttp "github.com/omalloc/spancache/pkg/x/http"
	"github.com/omalloc/spancache/pkg/x/http/rangecontrol"
	upstreamreg "github.com/omalloc/spancache/upstream"
)

const (
	Name           = "http"
	defaultTimeout = 30 * time.Second
)

var _ upstream.Transport = (*Transport)(nil)

func init() {
	upstreamreg.Register(Name, build)
}

// Transport reads ranges of http(s) resources with Range requests. Servers
// that ignore Range are handled by skipping and truncating the full body.
type Transport struct {
	client    *http.Client
	header    http.Header
	rateLimit int // bytes per second, 0 is unlimited

	body     io.ReadCloser
	resolved string
}

type Option func(*Transport)

// WithClient sets the http client.
func WithClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// WithHeader adds fields sent on every request.
func WithHeader(h http.Header) Option {
	return func(t *Transport) {
		xhttp.CopyHeader(t.header, h)
	}
}

// WithRateLimit caps the read throughput in bytes per second.
func WithRateLimit(bytesPerSec int) Option {
	return func(t *Transport) {
		t.rateLimit = bytesPerSec
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{
		client: http.DefaultClient,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func build(c *conf.Upstream) (upstream.Factory, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	// bodies can be large, only bound the wait for headers
	tr.ResponseHeaderTimeout = timeout
	client := &http.Client{Transport: tr}
	if c.NoFollowRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	header := make(http.Header, len(c.Header))
	for k, v := range c.Header {
		header.Set(k, v)
	}

	var rateLimit int
	if c.RateLimit != "" {
		n, err := humanize.ParseBytes(c.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit %q: %w", c.RateLimit, err)
		}
		rateLimit = int(n)
	}

	return func() (upstream.Transport, error) {
		return New(WithClient(client), WithHeader(header), WithRateLimit(rateLimit)), nil
	}, nil
}

// Open implements upstream.Transport.
func (t *Transport) Open(ctx context.Context, spec upstream.DataSpec) (int64, error) {
	if t.body != nil {
		return 0, upstream.ErrAlreadyOpened
	}
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.Locator, nil)
	if err != nil {
		return 0, err
	}
	if spec.Header != nil {
		xhttp.CopyHeader(req.Header, spec.Header.Clone())
		xhttp.SanitizeRangeRequest(req.Header)
	}
	xhttp.CopyHeader(req.Header, t.header)
	if req.Header.Get(protocol.ProtocolRequestIDKey) == "" {
		req.Header.Set(protocol.ProtocolRequestIDKey, uuid.NewString())
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", protocol.ProtocolUserAgent)
	}

	ranged := spec.Position > 0 || !spec.Unbounded()
	if ranged {
		req.Header.Set("Range", rangecontrol.FromSpan(spec.Position, spec.Length).String())
	}
	// identity keeps byte offsets meaningful
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}

	length, body, err := t.accept(resp, spec)
	if err != nil {
		_ = resp.Body.Close()
		return 0, err
	}

	if t.rateLimit > 0 {
		body = iobuf.NewRateLimitReader(ctx, body, t.rateLimit)
	}
	t.body = body
	t.resolved = resp.Request.URL.String()

	if log.Enabled(log.LevelDebug) {
		log.Debugf("upstream open %s status %d length %d resolved %s", spec, resp.StatusCode, length, t.resolved)
	}
	return length, nil
}

func (t *Transport) accept(resp *http.Response, spec upstream.DataSpec) (int64, io.ReadCloser, error) {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		cr, err := rangecontrol.ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return 0, nil, err
		}
		if cr.Start != spec.Position {
			return 0, nil, fmt.Errorf("upstream %s returned range starting at %d, want %d", spec.Locator, cr.Start, spec.Position)
		}
		served := cr.Served()
		if !spec.Unbounded() && served > spec.Length {
			return spec.Length, iobuf.LimitReadCloser(resp.Body, spec.Length), nil
		}
		return served, resp.Body, nil

	case http.StatusOK:
		// Range ignored: the body starts at zero.
		if spec.Position > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, spec.Position); err != nil {
				if errors.Is(err, io.EOF) {
					return 0, nil, upstream.ErrPositionOutOfRange
				}
				return 0, nil, err
			}
		}

		length := upstream.LengthUnset
		if resp.ContentLength >= 0 {
			length = resp.ContentLength - spec.Position
		}
		if !spec.Unbounded() && (length == upstream.LengthUnset || length > spec.Length) {
			return spec.Length, iobuf.LimitReadCloser(resp.Body, spec.Length), nil
		}
		return length, resp.Body, nil

	case http.StatusRequestedRangeNotSatisfiable:
		return 0, nil, upstream.ErrPositionOutOfRange

	default:
		return 0, nil, &upstream.StatusError{
			Locator: spec.Locator,
			Code:    resp.StatusCode,
			Status:  http.StatusText(resp.StatusCode),
		}
	}
}

// Read implements upstream.Transport.
func (t *Transport) Read(p []byte) (int, error) {
	if t.body == nil {
		return 0, upstream.ErrNotOpened
	}
	return t.body.Read(p)
}

// Close implements upstream.Transport.
func (t *Transport) Close() error {
	if t.body == nil {
		return nil
	}
	err := t.body.Close()
	t.body = nil
	return err
}

// ResolvedLocator implements upstream.Transport.
func (t *Transport) ResolvedLocator() string {
	return t.resolved
}

