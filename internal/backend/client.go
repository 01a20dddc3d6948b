package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxImageBytes bounds a single preview/thumbnail response.
const maxImageBytes = 32 << 20

// Client talks to the printer's backend service over its local HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetPlateLayerImage fetches the rendered 2D preview for one layer of a plate.
func (c *Client) GetPlateLayerImage(ctx context.Context, plateID, layer int) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/plates/%d/layers/%d/image", c.baseURL, plateID, layer)
	return c.getBytes(ctx, endpoint)
}

// ExtractThumbnailBytes asks the backend to extract an embedded thumbnail from
// a print file it has access to.
func (c *Client) ExtractThumbnailBytes(ctx context.Context, location, subdirectory, fileName string, size string) ([]byte, error) {
	q := url.Values{}
	q.Set("location", location)
	q.Set("subdirectory", subdirectory)
	q.Set("filename", fileName)
	q.Set("size", size)

	endpoint := fmt.Sprintf("%s/api/files/thumbnail?%s", c.baseURL, q.Encode())
	return c.getBytes(ctx, endpoint)
}

func (c *Client) getBytes(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}

	return data, nil
}
