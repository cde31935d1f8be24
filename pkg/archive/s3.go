package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/config"
)

// s3Archiver implements Archiver for S3-compatible storage.
type s3Archiver struct {
	log    logrus.FieldLogger
	cfg    *config.S3ArchiveConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Archiver = (*s3Archiver)(nil)

// NewS3Archiver creates a new S3 archiver from the given configuration.
func NewS3Archiver(
	log logrus.FieldLogger,
	cfg *config.S3ArchiveConfig,
) (Archiver, error) {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	client := s3.New(s3.Options{}, opts...)

	return &s3Archiver{
		log:    log.WithField("component", "s3-archiver"),
		cfg:    cfg,
		client: client,
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (a *s3Archiver) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("wastelog write test: %s", time.Now().UTC().Format(time.RFC3339))
	body := strings.NewReader(content)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(".wastelog-write-test"),
		Body:        body,
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", a.cfg.Bucket, err)
	}

	return nil
}

// Store archives one accepted submission.
func (a *s3Archiver) Store(ctx context.Context, sub *Submission) error {
	prefix := a.resolvePrefix(sub)

	photoKey := prefix + "/" + sub.ImageName

	if err := a.putObject(ctx, photoKey, sub.Image, "image/jpeg"); err != nil {
		return fmt.Errorf("archiving photo: %w", err)
	}

	sidecar, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}

	sidecarKey := strings.TrimSuffix(photoKey, ".jpg") + ".json"

	if err := a.putObject(ctx, sidecarKey, sidecar, "application/json"); err != nil {
		return fmt.Errorf("archiving sidecar: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"key":    photoKey,
		"bucket": a.cfg.Bucket,
	}).Debug("Submission archived")

	return nil
}

// putObject writes a single object to the archive bucket.
func (a *s3Archiver) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("PutObject %s: %w", key, err)
	}

	return nil
}

// resolvePrefix builds the S3 key prefix for a submission.
func (a *s3Archiver) resolvePrefix(sub *Submission) string {
	prefix := a.cfg.Prefix
	if prefix == "" {
		prefix = "submissions"
	}

	return strings.TrimRight(prefix, "/") + "/" + sub.Site + "/" + sub.WasteType
}
