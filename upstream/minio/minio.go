package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/conf"
	upstreamreg "github.com/omalloc/spancache/upstream"
)

const Name = "minio"

var _ upstream.Transport = (*Transport)(nil)

func init() {
	upstreamreg.Register(Name, build)
}

type options struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// Transport reads object ranges from an S3 compatible server through
// minio-go. Locators are s3://bucket/key or a key in the default bucket.
type Transport struct {
	client *minio.Client
	bucket string

	body     io.ReadCloser
	resolved string
}

func New(client *minio.Client, defaultBucket string) *Transport {
	return &Transport{client: client, bucket: defaultBucket}
}

func build(c *conf.Upstream) (upstream.Factory, error) {
	var opts options
	if err := c.Unmarshal(&opts); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		return nil, errors.New("minio upstream requires an endpoint")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}

	return func() (upstream.Transport, error) {
		return New(client, opts.Bucket), nil
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

	bucket, key, err := upstreamreg.ParseObjectLocator(spec.Locator, t.bucket)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", upstream.ErrInvalidSpec, err)
	}

	info, err := t.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, classify(spec.Locator, err)
	}

	size := info.Size
	if spec.Position > size || (spec.Position == size && size > 0) {
		return 0, upstream.ErrPositionOutOfRange
	}

	length := size - spec.Position
	if !spec.Unbounded() && spec.Length < length {
		length = spec.Length
	}

	if length == 0 {
		t.body = io.NopCloser(strings.NewReader(""))
		t.resolved = spec.Locator
		return 0, nil
	}

	opts := minio.GetObjectOptions{}
	if spec.Position > 0 || length < size {
		if err := opts.SetRange(spec.Position, spec.Position+length-1); err != nil {
			return 0, err
		}
	}

	obj, err := t.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return 0, classify(spec.Locator, err)
	}

	t.body = obj
	t.resolved = spec.Locator
	return length, nil
}

func classify(locator string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return &upstream.StatusError{Locator: locator, Code: http.StatusNotFound, Status: resp.Code}
	case "InvalidRange":
		return upstream.ErrPositionOutOfRange
	case "AccessDenied":
		return &upstream.StatusError{Locator: locator, Code: http.StatusForbidden, Status: resp.Code}
	}
	return err
}

// Read implements upstream.Transport.
func (t *Transport) Read(p []byte) (int, error) {
	if t.body == nil {
		return 0, upstream.ErrNotOpened
	}
	n, err := t.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, classify(t.resolved, err)
	}
	return n, err
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
