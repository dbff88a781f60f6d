package monday

import (
	"context"
	"fmt"
	"strconv"
)

// Asset is one platform file with its time-limited public URL. The URL is
// resolved asynchronously on the platform side and may be empty right after
// the file appears on an item.
type Asset struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PublicURL     string `json:"public_url"`
	FileExtension string `json:"file_extension"`
	FileSize      int64  `json:"file_size"`
}

// HasPublicURL reports whether the platform has produced a download URL yet.
// The retry layer treats a missing URL as a retryable outcome.
func (a *Asset) HasPublicURL() bool {
	return a != nil && a.PublicURL != ""
}

const assetsQuery = `query ($ids: [ID!]!) {
  assets (ids: $ids) {
    id
    name
    public_url
    file_extension
    file_size
  }
}`

// ResolveAsset fetches the asset metadata, including its public URL.
func (c *Client) ResolveAsset(ctx context.Context, token string, assetID int64) (*Asset, error) {
	var data struct {
		Assets []*Asset `json:"assets"`
	}

	vars := map[string]any{"ids": []string{strconv.FormatInt(assetID, 10)}}
	if err := c.Query(ctx, token, assetsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("resolve asset %d: %w", assetID, err)
	}
	if len(data.Assets) == 0 {
		return nil, fmt.Errorf("asset %d not found", assetID)
	}
	return data.Assets[0], nil
}

const updateAssetsQuery = `query ($ids: [ID!]!) {
  updates (ids: $ids) {
    assets {
      id
      name
      public_url
      file_extension
      file_size
    }
  }
}`

// UpdateAssets lists the files attached to an update post.
func (c *Client) UpdateAssets(ctx context.Context, token string, updateID int64) ([]*Asset, error) {
	var data struct {
		Updates []struct {
			Assets []*Asset `json:"assets"`
		} `json:"updates"`
	}

	vars := map[string]any{"ids": []string{strconv.FormatInt(updateID, 10)}}
	if err := c.Query(ctx, token, updateAssetsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("list update %d assets: %w", updateID, err)
	}
	if len(data.Updates) == 0 {
		return nil, nil
	}
	return data.Updates[0].Assets, nil
}
