package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"refile-go/internal/refile"
)

// S3Options configures an S3Backend.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint selects an S3-compatible service (MinIO, R2, ...) with path-style addressing.
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base under which objects are readable, e.g. a CDN or a public bucket.
	// Defaults to the bucket's virtual-hosted AWS URL.
	PublicURL string
	MaxSize   int64
}

// S3Backend stores objects at {prefix}/{digest}{ext} in a bucket.
type S3Backend struct {
	*HTTPFetcher
	name      string
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	publicURL string
	maxSize   int64
}

// NewS3Backend loads AWS configuration (static keys when given, otherwise the default
// credential chain) and creates the backend.
func NewS3Backend(ctx context.Context, name string, opts S3Options, client *http.Client) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if client != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(client))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	publicURL := opts.PublicURL
	if publicURL == "" {
		if opts.Endpoint != "" {
			publicURL = strings.TrimSuffix(opts.Endpoint, "/") + "/" + opts.Bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		}
	}

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Backend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		client:      s3Client,
		uploader:    uploader,
		bucket:      opts.Bucket,
		prefix:      strings.Trim(opts.Prefix, "/"),
		publicURL:   strings.TrimSuffix(publicURL, "/"),
		maxSize:     opts.MaxSize,
	}, nil
}

func (b *S3Backend) Name() string   { return b.name }
func (b *S3Backend) MaxSize() int64 { return b.maxSize }

// PublicURL returns the base URL objects are served from.
func (b *S3Backend) PublicURL() string { return b.publicURL }

func (b *S3Backend) key(digest, filename string) string {
	name := digest + strings.ToLower(filepath.Ext(filename))
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func (b *S3Backend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	digest := refile.DigestBytes(data)
	key := b.key(digest, filename)
	if mime == "" {
		mime = refile.DefaultContentType
	}

	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: put object %s: %w", b.name, key, err)
	}

	return &refile.UploadResult{URL: b.publicURL + "/" + escapeKey(key), ID: key}, nil
}

// keyFor maps a URL under the public base back to its object key.
func (b *S3Backend) keyFor(rawURL string) (string, bool) {
	rest, ok := underBase(rawURL, b.publicURL)
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return key, true
}

// Download reads objects under the public base through the S3 API; other URLs are
// fetched over plain HTTP.
func (b *S3Backend) Download(ctx context.Context, rawURL string) (*refile.DownloadResult, error) {
	key, ok := b.keyFor(rawURL)
	if !ok {
		return b.HTTPFetcher.Download(ctx, rawURL)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: get object %s: %w", b.name, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading object %s: %w", b.name, key, err)
	}
	ct := aws.ToString(out.ContentType)
	if ct == "" {
		ct = refile.DefaultContentType
	}
	return &refile.DownloadResult{Data: data, ContentType: ct}, nil
}

func (b *S3Backend) Verify(ctx context.Context, rawURL string) bool {
	key, ok := b.keyFor(rawURL)
	if !ok {
		return b.HTTPFetcher.Verify(ctx, rawURL)
	}
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ refile.Backend = (*S3Backend)(nil)
