package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/omalloc/spancache/api/defined/v1/upstream"
	"github.com/omalloc/spancache/conf"
	"github.com/omalloc/spancache/pkg/iobuf"
	"github.com/omalloc/spancache/pkg/x/http/rangecontrol"
	upstreamreg "github.com/omalloc/spancache/upstream"
)

const Name = "s3"

var _ upstream.Transport = (*Transport)(nil)

func init() {
	upstreamreg.Register(Name, build)
}

// API is the subset of the S3 client the transport uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type options struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// Transport reads object ranges with the AWS SDK.
type Transport struct {
	client API
	bucket string

	body     io.ReadCloser
	resolved string
}

func New(client API, defaultBucket string) *Transport {
	return &Transport{client: client, bucket: defaultBucket}
}

func build(c *conf.Upstream) (upstream.Factory, error) {
	var opts options
	if err := c.Unmarshal(&opts); err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

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

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if spec.Position > 0 || !spec.Unbounded() {
		input.Range = aws.String(rangecontrol.FromSpan(spec.Position, spec.Length).String())
	}

	out, err := t.client.GetObject(ctx, input)
	if err != nil {
		return 0, classify(spec.Locator, err)
	}

	length := upstream.LengthUnset
	if cr := aws.ToString(out.ContentRange); cr != "" {
		parsed, err := rangecontrol.ParseContentRange(cr)
		if err != nil {
			_ = out.Body.Close()
			return 0, err
		}
		length = parsed.Served()
	} else if out.ContentLength != nil {
		length = aws.ToInt64(out.ContentLength)
	}

	body := out.Body
	if !spec.Unbounded() && (length == upstream.LengthUnset || length > spec.Length) {
		length = spec.Length
		body = iobuf.LimitReadCloser(body, spec.Length)
	}

	t.body = body
	t.resolved = spec.Locator
	return length, nil
}

func classify(locator string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return &upstream.StatusError{Locator: locator, Code: http.StatusNotFound, Status: "NoSuchKey"}
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return &upstream.StatusError{Locator: locator, Code: http.StatusNotFound, Status: "NoSuchBucket"}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidRange":
			return upstream.ErrPositionOutOfRange
		case "NotFound":
			return &upstream.StatusError{Locator: locator, Code: http.StatusNotFound, Status: apiErr.ErrorCode()}
		}
	}
	return err
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
