package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// S3Config configures the analysis archive.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // S3-compatible services (MinIO etc.)
	// Static credentials; leave empty to use the default AWS chain.
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Timeout         time.Duration
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Sink archives every analysis to S3 as snappy-compressed JSON.
type S3Sink struct {
	client  objectAPI
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewS3Sink builds an archive sink using the AWS SDK default configuration chain.
func NewS3Sink(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("audit: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("audit: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	return newS3Sink(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, cfg.Timeout, logger), nil
}

func newS3Sink(client objectAPI, bucket, prefix string, timeout time.Duration, logger *slog.Logger) *S3Sink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, timeout: timeout, logger: utils.OrDefault(logger)}
}

// PublishAnalysis writes the analysis, overwriting the previous revision.
func (s *S3Sink) PublishAnalysis(ctx context.Context, analysis models.Analysis) error {
	body, err := Encode(analysis)
	if err != nil {
		return err
	}
	key := ObjectKey(s.prefix, analysis)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("snappy"),
		Metadata: map[string]string{
			"decision-id": analysis.Decision.ID,
			"autonomy":    string(analysis.Decision.Autonomy),
		},
	})
	if err != nil {
		return fmt.Errorf("audit: put %s: %w", key, err)
	}
	s.logger.Debug("analysis archived", "bucket", s.bucket, "key", key, "bytes", len(body))
	return nil
}

// Fetch reads an archived analysis back.
func (s *S3Sink) Fetch(ctx context.Context, serviceID, alertID string) (models.Analysis, error) {
	key := ObjectKey(s.prefix, models.Analysis{Alert: models.Alert{ServiceID: serviceID, ID: alertID}})

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return models.Analysis{}, fmt.Errorf("audit: get %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return models.Analysis{}, fmt.Errorf("audit: read %s: %w", key, err)
	}
	return Decode(buf.Bytes())
}
