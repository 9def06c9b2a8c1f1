// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package history

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/config"
)

// archiveBatchLimit bounds one export. Snapshots are taken from the newest
// entries; retention keeps the journal itself within the same order of size.
const archiveBatchLimit = 100000

// Archiver exports the journal as a gzip'd JSONL snapshot to S3-compatible
// object storage.
type Archiver struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewArchiver builds an archiver from the archive config block.
func NewArchiver(cfg config.ArchiveConfig) (*Archiver, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket cannot be empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Archive exports the newest journal entries and uploads them as one
// timestamped object. It returns the object name.
func (a *Archiver) Archive(ctx context.Context, journal *Journal) (string, error) {
	entries, err := journal.Recent(ctx, archiveBatchLimit)
	if err != nil {
		return "", fmt.Errorf("failed to export journal: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	// Oldest first inside the snapshot; Recent returns newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		if err := enc.Encode(entries[i]); err != nil {
			gz.Close()
			return "", fmt.Errorf("failed to encode journal entry: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive: %w", err)
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return "", fmt.Errorf("failed to check archive bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("failed to create archive bucket: %w", err)
		}
	}

	object := path.Join(a.prefix, fmt.Sprintf("routing-%s.jsonl.gz", time.Now().UTC().Format("20060102T150405Z")))
	_, err = a.client.PutObject(ctx, a.bucket, object, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	log.Infof("Archived %d journal entries to %s/%s", len(entries), a.bucket, object)
	return object, nil
}
