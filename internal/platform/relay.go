package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"postpilot/internal/entity"
)

// RelayClient forwards publish calls to the publisher gateway, the service
// that owns platform-specific protocols and formatting. One relay per
// platform, differing only in path.
type RelayClient struct {
	httpClient *http.Client
	baseURL    string
	platform   entity.Platform
}

func NewRelayClient(baseURL string, p entity.Platform, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelayClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		platform:   p,
	}
}

type relayRequest struct {
	Credentials json.RawMessage `json:"credentials"`
	Text        string          `json:"text"`
	ImageURL    string          `json:"image_url,omitempty"`
	VideoURL    string          `json:"video_url,omitempty"`
}

type relayResponse struct {
	Success  bool   `json:"success"`
	RemoteID string `json:"remote_id"`
	URL      string `json:"url"`
	Message  string `json:"message"`
}

func (c *RelayClient) Post(ctx context.Context, credentials []byte, content Content) (*Result, error) {
	body, err := json.Marshal(relayRequest{
		Credentials: credentials,
		Text:        content.Text,
		ImageURL:    content.ImageURL,
		VideoURL:    content.VideoURL,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/platforms/%s/post", c.baseURL, c.platform)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s relay: bad response: %w", c.platform, err)
	}
	if resp.StatusCode >= 300 || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("relay status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: %s", c.platform, msg)
	}
	return &Result{RemoteID: out.RemoteID, URL: out.URL}, nil
}
