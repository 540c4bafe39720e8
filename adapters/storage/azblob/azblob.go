// Package azblob implements ports.StorageProvider against Azure Blob
// Storage, used when STORAGE_BACKEND=azblob.
package azblob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/pkg/models"
)

// Provider implements ports.StorageProvider against one blob container.
type Provider struct {
	client    *azblob.Client
	container string
}

// New opens a container client using the given credential. containerURL
// is the full https://<account>.blob.core.windows.net/<container> URL.
func New(containerURL string, cred azcore.TokenCredential) (*Provider, error) {
	client, err := azblob.NewClient(containerURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}
	return &Provider{client: client, container: containerName(containerURL)}, nil
}

// Upload stores data under a content-addressed blob name.
func (p *Provider) Upload(ctx context.Context, key string, data []byte) (string, error) {
	cid := canon.Hash(data)
	_, err := p.client.UploadBuffer(ctx, p.container, blobName(cid), data, nil)
	if err != nil {
		return "", fmt.Errorf("azblob upload %s: %w", key, err)
	}
	return cid, nil
}

// Download fetches the blob addressed by cid.
func (p *Provider) Download(ctx context.Context, cid string) ([]byte, error) {
	resp, err := p.client.DownloadStream(ctx, p.container, blobName(cid), nil)
	if err != nil {
		return nil, fmt.Errorf("azblob download %s: %w", cid, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("azblob read body %s: %w", cid, err)
	}
	return buf.Bytes(), nil
}

// Pin sets the blob's access tier to Cool, signaling long-term retention;
// Azure Blob has no content-addressed pinning primitive like IPFS.
func (p *Provider) Pin(ctx context.Context, cid string) error {
	blobClient := p.client.ServiceClient().NewContainerClient(p.container).NewBlobClient(blobName(cid))
	_, err := blobClient.SetTier(ctx, blob.AccessTierCool, nil)
	if err != nil {
		return fmt.Errorf("azblob set tier %s: %w", cid, err)
	}
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

func blobName(cid string) string {
	return "tasks/" + cid + ".json"
}

// containerName extracts the trailing path segment of a full container
// URL; callers pass e.g. https://acct.blob.core.windows.net/evalmesh-tasks.
func containerName(containerURL string) string {
	for i := len(containerURL) - 1; i >= 0; i-- {
		if containerURL[i] == '/' {
			return containerURL[i+1:]
		}
	}
	return containerURL
}
