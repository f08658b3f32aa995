package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

// ObjectPutter is the S3 call the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket. Static keys are optional; without
// them the default AWS credential chain is used.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Archiver writes batches of audit events to S3 as newline-delimited JSON
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewArchiver wraps an existing S3 client
func NewArchiver(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Archiver builds an S3 client from cfg
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewArchiver(client, cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for a batch pruned at cutoff
func (a *S3Archiver) Key(cutoff time.Time, firstID, lastID int64) string {
	name := fmt.Sprintf("audit-%d-%d.ndjson", firstID, lastID)
	return path.Join(a.prefix, cutoff.UTC().Format("2006/01/02"), name)
}

// Archive uploads events under key, one JSON object per line
func (a *S3Archiver) Archive(ctx context.Context, key string, events []*AuditEvent) error {
	ctx, span := observability.StartSpan(ctx, "audit.Archive",
		attribute.String("s3.bucket", a.bucket),
		attribute.String("s3.key", key),
		attribute.Int("audit.events", len(events)),
	)
	defer span.End()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to encode audit event %d: %w", event.ID, err)
		}
	}
	sum := sha256.Sum256(buf.Bytes())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(sum[:]),
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to upload audit archive %s: %w", key, err)
	}
	return nil
}

// ExpiredLister pages through rows older than a cutoff in id order
type ExpiredLister interface {
	Pruner
	Expired(ctx context.Context, before time.Time, afterID int64, limit int) ([]*AuditEvent, error)
}

// ArchivingPruner uploads every expired row before deleting them. If any
// upload fails nothing is deleted.
type ArchivingPruner struct {
	store    ExpiredLister
	archiver *S3Archiver
	batch    int
}

// NewArchivingPruner archives in batches of batchSize rows
func NewArchivingPruner(store ExpiredLister, archiver *S3Archiver, batchSize int) *ArchivingPruner {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &ArchivingPruner{store: store, archiver: archiver, batch: batchSize}
}

// Cleanup archives then deletes rows older than before
func (p *ArchivingPruner) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	var afterID int64
	for {
		events, err := p.store.Expired(ctx, before, afterID, p.batch)
		if err != nil {
			return 0, err
		}
		if len(events) == 0 {
			break
		}
		first, last := events[0].ID, events[len(events)-1].ID
		if err := p.archiver.Archive(ctx, p.archiver.Key(before, first, last), events); err != nil {
			return 0, err
		}
		afterID = last
		if len(events) < p.batch {
			break
		}
	}
	return p.store.Cleanup(ctx, before)
}
