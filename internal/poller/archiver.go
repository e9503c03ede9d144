package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// Archiver writes every snapshot to S3-compatible object storage, one
// timestamped JSON object per cycle, for offline track reconstruction.
type Archiver struct {
	client *minio.Client
	bucket string
	region string
	now    func() time.Time
}

func NewArchiver(opts *options.S3Options) (*Archiver, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &Archiver{
		client: client,
		bucket: opts.BucketName,
		region: opts.Region,
		now:    time.Now,
	}, nil
}

func (a *Archiver) Name() string { return "s3" }

// EnsureBucket creates the snapshot bucket when it does not exist yet.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Snapshot bucket does not exist, creating", "bucket", a.bucket)
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (a *Archiver) Publish(ctx context.Context, snapshot core.FetchResult) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := a.now().UTC().Format("snapshots/2006/01/02/150405.json")
	_, err = a.client.PutObject(ctx, a.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}

	log.Debug("Snapshot archived", "key", key, "bytes", len(payload))
	return nil
}
