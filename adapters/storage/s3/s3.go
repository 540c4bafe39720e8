// Package s3 implements ports.StorageProvider against AWS S3, used when
// STORAGE_BACKEND=s3. Content is addressed by its canonical hash;
// the bucket is write-once per key, matching the engine's content-address
// semantics for task state snapshots.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/pkg/models"
)

// Provider implements ports.StorageProvider against one S3 bucket.
type Provider struct {
	client *s3.Client
	bucket string
}

// New loads the default AWS credential chain and region for the given
// bucket. region may be empty to fall back to the environment/config
// default region.
func New(ctx context.Context, bucket, region string) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Provider{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Upload stores data under key and returns its content hash as the CID.
func (p *Provider) Upload(ctx context.Context, key string, data []byte) (string, error) {
	cid := canon.Hash(data)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(cid)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return cid, nil
}

// Download fetches the object addressed by cid.
func (p *Provider) Download(ctx context.Context, cid string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(cid)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download %s: %w", cid, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body %s: %w", cid, err)
	}
	return data, nil
}

// Pin is a no-op for S3: objects persist until an explicit lifecycle rule
// or deletion removes them, unlike IPFS-style garbage-collected stores.
func (p *Provider) Pin(ctx context.Context, cid string) error {
	return nil
}

// UploadTaskState serializes a task snapshot to canonical JSON and
// uploads it content-addressed.
func (p *Provider) UploadTaskState(ctx context.Context, t *models.Task) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal task state: %w", err)
	}
	canonical, err := canon.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize task state: %w", err)
	}
	return p.Upload(ctx, t.TaskID, canonical)
}

func objectKey(cid string) string {
	return "tasks/" + cid + ".json"
}
