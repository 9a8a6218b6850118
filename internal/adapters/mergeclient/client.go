// Package mergeclient talks to the external merge/compose service. The
// core only exchanges asset refs with it, never media bytes.
package mergeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
	"github.com/KwakOri/vshot-server/internal/layout"
)

type Client struct {
	base string
	http *http.Client
}

var _ core.Merger = (*Client)(nil)

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

type mergeRequest struct {
	HostRef  string         `json:"hostRef"`
	GuestRef string         `json:"guestRef"`
	Hint     core.MergeHint `json:"hint"`
}

type composeRequest struct {
	Refs  []string      `json:"refs"`
	Frame *layout.Frame `json:"frame"`
}

type resultResponse struct {
	Ref string `json:"ref"`
}

func (c *Client) Merge(ctx context.Context, hostRef, guestRef string, hint core.MergeHint) (string, error) {
	return c.post(ctx, "/merge", mergeRequest{HostRef: hostRef, GuestRef: guestRef, Hint: hint})
}

func (c *Client) Compose(ctx context.Context, refs []string, frame *layout.Frame) (string, error) {
	return c.post(ctx, "/compose", composeRequest{Refs: refs, Frame: frame})
}

func (c *Client) post(ctx context.Context, path string, body any) (string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("merge client marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("merge client request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("merge service %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Str("module", "mergeclient").Str("path", path).Int("status", resp.StatusCode).Msg("merge service rejected request")
		return "", fmt.Errorf("%w: %s status %d", domain.ErrMergeFailed, path, resp.StatusCode)
	}
	var out resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("merge service %s: decode: %w", path, err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("%w: %s returned empty result ref", domain.ErrMergeFailed, path)
	}
	return out.Ref, nil
}
