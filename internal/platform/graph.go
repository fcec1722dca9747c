package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/ratelimiter"
)

// Limiter throttles outbound platform requests per operation class.
type Limiter interface {
	Wait(ctx context.Context, op ratelimiter.Op) error
}

// GraphConfig configures a GraphClient.
type GraphConfig struct {
	BaseURL     string
	PageID      string
	AccessToken string
	Timeout     time.Duration
}

// GraphClient talks to the Graph API of the page the posts are scheduled on.
// It implements both StatusOracle and Publisher.
type GraphClient struct {
	baseURL    string
	pageID     string
	token      string
	httpClient *http.Client
	limiter    Limiter
}

// NewGraphClient builds a client. limiter may be nil (no throttling).
func NewGraphClient(cfg GraphConfig, limiter Limiter) *GraphClient {
	return &GraphClient{
		baseURL: cfg.BaseURL,
		pageID:  cfg.PageID,
		token:   cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
	}
}

type publishedResponse struct {
	ID          string `json:"id"`
	IsPublished *bool  `json:"is_published"`
}

type idResponse struct {
	ID string `json:"id"`
}

type photoRequest struct {
	URL       string `json:"url"`
	Published bool   `json:"published"`
}

type attachedMedia struct {
	MediaFBID string `json:"media_fbid"`
}

type feedRequest struct {
	Message              string          `json:"message"`
	AttachedMedia        []attachedMedia `json:"attached_media,omitempty"`
	Published            bool            `json:"published"`
	ScheduledPublishTime int64           `json:"scheduled_publish_time"`
}

// IsPublished fetches the post's is_published field.
func (c *GraphClient) IsPublished(ctx context.Context, externalRef string) (bool, error) {
	if externalRef == "" {
		return false, fmt.Errorf("empty external ref")
	}
	if err := c.wait(ctx, ratelimiter.OpStatus); err != nil {
		return false, err
	}

	q := url.Values{}
	q.Set("fields", "is_published")
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(externalRef), q.Encode())

	var resp publishedResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return false, err
	}
	if resp.IsPublished == nil {
		return false, fmt.Errorf("graph response for %s has no is_published field", externalRef)
	}
	return *resp.IsPublished, nil
}

// Submit uploads every media ref as an unpublished photo and creates an
// unpublished feed post scheduled for p.PublishAt. It returns the post id.
func (c *GraphClient) Submit(ctx context.Context, p *domain.ScheduledPost) (string, error) {
	media := make([]attachedMedia, 0, len(p.MediaRefs))
	for _, ref := range p.MediaRefs {
		id, err := c.uploadPhoto(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("upload photo %s: %w", ref, err)
		}
		media = append(media, attachedMedia{MediaFBID: id})
	}

	if err := c.wait(ctx, ratelimiter.OpPublish); err != nil {
		return "", err
	}
	var resp idResponse
	err := c.do(ctx, http.MethodPost, c.pageEndpoint("feed"), feedRequest{
		Message:              p.Body,
		AttachedMedia:        media,
		Published:            false,
		ScheduledPublishTime: p.PublishAt.Unix(),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create scheduled post: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create scheduled post: empty id in response")
	}
	return resp.ID, nil
}

func (c *GraphClient) uploadPhoto(ctx context.Context, photoURL string) (string, error) {
	if err := c.wait(ctx, ratelimiter.OpPublish); err != nil {
		return "", err
	}
	var resp idResponse
	err := c.do(ctx, http.MethodPost, c.pageEndpoint("photos"), photoRequest{
		URL:       photoURL,
		Published: false,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("empty id in response")
	}
	return resp.ID, nil
}

func (c *GraphClient) pageEndpoint(edge string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.pageID), edge)
}

func (c *GraphClient) wait(ctx context.Context, op ratelimiter.Op) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, op)
}

// do sends the request and decodes a 2xx JSON body into out. Non-2xx
// responses are returned as *GraphError.
func (c *GraphClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// Keep the token out of URLs: transport errors include them verbatim.
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseGraphError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// compile-time checks that GraphClient implements both interfaces
var (
	_ StatusOracle = (*GraphClient)(nil)
	_ Publisher    = (*GraphClient)(nil)
)
