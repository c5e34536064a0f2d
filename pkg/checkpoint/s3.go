package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"
	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/directory"
)

const zstdEncoding = "zstd"

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// S3API is the subset of the S3 client used by S3Backend.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures an S3Backend.
type S3Config struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
	Region string `mapstructure:"region" validate:"required"`

	// Endpoint overrides the S3 endpoint (MinIO, Localstack). Path-style
	// addressing is used when set.
	Endpoint string `mapstructure:"endpoint"`

	// Key is the object key. Default: "locationd/directory.txt"
	Key string `mapstructure:"key"`

	// Static credentials. The default AWS credential chain is used when empty.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// Compress stores the object zstd-compressed with Content-Encoding "zstd".
	Compress bool `mapstructure:"compress"`

	// MaxRetries bounds attempts per request. Default: 5
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,min=1"`
}

func (c *S3Config) applyDefaults() {
	if c.Key == "" {
		c.Key = "locationd/directory.txt"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
}

// S3Backend stores the snapshot as a single object in the two-line text
// format, optionally zstd-compressed.
type S3Backend struct {
	client   S3API
	bucket   string
	key      string
	compress bool
}

// NewS3Backend builds an S3 client from cfg and returns a backend using it.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	cfg.applyDefaults()
	if cfg.Bucket == "" {
		return nil, errors.New("s3 checkpoint: bucket is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3 checkpoint: region is required")
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
		awsConfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = cfg.MaxRetries
			})
		}),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 checkpoint backend initialized: bucket=%s, region=%s, key=%s", cfg.Bucket, cfg.Region, cfg.Key)
	return NewS3BackendWithClient(client, cfg), nil
}

// NewS3BackendWithClient returns a backend using an existing client.
func NewS3BackendWithClient(client S3API, cfg S3Config) *S3Backend {
	cfg.applyDefaults()
	return &S3Backend{
		client:   client,
		bucket:   cfg.Bucket,
		key:      cfg.Key,
		compress: cfg.Compress,
	}
}

// Name implements Backend.
func (b *S3Backend) Name() string { return "s3" }

// Save implements Backend.
func (b *S3Backend) Save(ctx context.Context, entries []directory.Entry) error {
	var buf bytes.Buffer
	if err := Encode(&buf, entries); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		ContentType: aws.String("text/plain"),
	}

	body := buf.Bytes()
	if b.compress {
		body = zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)))
		input.ContentEncoding = aws.String(zstdEncoding)
	}
	input.Body = bytes.NewReader(body)
	input.ContentLength = aws.Int64(int64(len(body)))

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put checkpoint s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

// Load implements Backend.
func (b *S3Backend) Load(ctx context.Context) ([]directory.Entry, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint s3://%s/%s: %w", b.bucket, b.key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint body: %w", err)
	}

	if aws.ToString(out.ContentEncoding) == zstdEncoding {
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress checkpoint: %w", err)
		}
	}

	return Decode(bytes.NewReader(data))
}

// Close implements Backend.
func (b *S3Backend) Close() error { return nil }
