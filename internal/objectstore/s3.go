package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3Mode represents the S3 connection mode
type S3Mode string

const (
	S3ModeLocal S3Mode = "local" // MinIO or similar with static credentials
	S3ModeAWS   S3Mode = "aws"
)

// S3Config holds object storage configuration
type S3Config struct {
	Mode     S3Mode
	Endpoint string // for local mode
	Region   string
	Bucket   string
}

// LoadS3Config loads S3 config from environment
func LoadS3Config() S3Config {
	mode := S3Mode(getEnv("S3_MODE", "local"))
	if mode != S3ModeAWS {
		mode = S3ModeLocal
	}

	return S3Config{
		Mode:     mode,
		Endpoint: getEnv("S3_ENDPOINT", "http://localhost:9000"),
		Region:   getEnv("S3_REGION", "eu-central-1"),
		Bucket:   getEnv("S3_BUCKET", "callcore-recordings"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// S3Store implements ObjectStore using AWS S3 (or a compatible local endpoint)
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  zerolog.Logger
}

// NewS3Store creates a new S3 store
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	var client *s3.Client

	if cfg.Mode == S3ModeLocal {
		// Same reasoning as the DynamoDB local mode: build the client
		// directly so LoadDefaultConfig never probes IMDS.
		client = s3.New(s3.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
			UsePathStyle: true,
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("bucket", cfg.Bucket).
		Msg("object store initialized")

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to get %s: %w", key, err)
	}

	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
