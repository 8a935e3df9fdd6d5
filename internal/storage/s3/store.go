package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/smallbiznis/genstudio/internal/storage"
)

// Store implements storage.Store using Amazon S3.
type Store struct {
	client  *s3.Client
	bucket  string
	region  string
	prefix  string
	baseURL string
}

// New creates a new S3-backed artifact store. baseURL, when set, replaces the
// virtual-hosted bucket URL in returned links (for a CDN in front of the bucket).
func New(ctx context.Context, region, bucket, prefix, baseURL string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Store{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		region:  cfg.Region,
		prefix:  normalizePrefix(prefix),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", storage.ErrInvalidKey
	}

	objectKey := applyPrefix(s.prefix, key)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return s.objectURL(objectKey), nil
}

func (s *Store) objectURL(objectKey string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + objectKey
	}
	if s.region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, objectKey)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey)
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ storage.Store = (*Store)(nil)
