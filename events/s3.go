package events

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/accesskeys-registry/interfaces"
)

// S3Sink archives each published batch as a JSON lines object in an S3 bucket.
type S3Sink struct {
	client     *s3.S3
	bucketName string
	prefix     string
	log        *slog.Logger
}

var _ interfaces.EventSink = (*S3Sink)(nil)

// NewS3Sink creates a sink writing to bucketName under prefix.
// Without static credentials the default AWS credential chain is used.
func NewS3Sink(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Sink, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(accessKey, secretKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Sink{
		client:     s3.New(sess),
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
		log:        log,
	}, nil
}

// Publish uploads the batch as a single object.
func (s *S3Sink) Publish(ctx context.Context, events ...interfaces.Event) error {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()

	data, err := EncodeBatch(events)
	if err != nil {
		return err
	}

	key := s.objectKey(events[0])
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		s.log.Error("Failed to put events to S3",
			slog.String("bucket", s.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("failed to put events to S3: %w", err)
	}

	s.log.Debug("Archived events to S3",
		slog.String("bucket", s.bucketName),
		slog.String("key", key),
		slog.Int("count", len(events)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Name returns identifier for logging.
func (s *S3Sink) Name() string {
	return fmt.Sprintf("s3-%s", s.bucketName)
}

// objectKey orders objects by the batch's first event time.
func (s *S3Sink) objectKey(first interfaces.Event) string {
	name := fmt.Sprintf("%s-%s.jsonl", first.Timestamp.UTC().Format("20060102T150405.000000000Z"), first.ID)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
