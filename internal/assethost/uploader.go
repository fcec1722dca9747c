package assethost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Uploader stores a file on an external asset host and returns a durable
// URL for it.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// HTTPUploader posts files as multipart/form-data to an unsigned upload
// endpoint (Cloudinary style: "file" + "upload_preset" fields) and reads
// the resulting URL from the JSON response.
type HTTPUploader struct {
	endpoint   string
	preset     string
	httpClient *http.Client
}

func NewHTTPUploader(endpoint, preset string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		endpoint:   endpoint,
		preset:     preset,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
}

func (u *HTTPUploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if u.preset != "" {
		if err := mw.WriteField("upload_preset", u.preset); err != nil {
			return "", fmt.Errorf("write preset: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected asset host status: %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return "", fmt.Errorf("asset host response has no url")
}

// compile-time check that HTTPUploader implements Uploader
var _ Uploader = (*HTTPUploader)(nil)
