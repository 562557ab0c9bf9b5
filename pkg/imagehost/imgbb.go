package imagehost

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

// DefaultImgBBEndpoint is the public ImgBB upload API
const DefaultImgBBEndpoint = "https://api.imgbb.com/1/upload"

// ImgBB uploads images to ImgBB with no expiration
type ImgBB struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewImgBB creates an ImgBB uploader
func NewImgBB(apiKey, endpoint string, timeout time.Duration) *ImgBB {
	if endpoint == "" {
		endpoint = DefaultImgBBEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImgBB{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type imgbbResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload posts the image as multipart form data and returns the hosted URL
func (u *ImgBB) Upload(ctx context.Context, filename string, r io.Reader, _ int64, _ string) (string, error) {
	if u.apiKey == "" {
		return "", fmt.Errorf("imgbb api key is not configured")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("key", u.apiKey); err != nil {
		return "", err
	}
	if err := w.WriteField("expiration", "0"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imgbb request failed: %w", err)
	}
	defer res.Body.Close()

	var parsed imgbbResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("imgbb response decode failed [%d]: %w", res.StatusCode, err)
	}
	if res.StatusCode != http.StatusOK || !parsed.Success || parsed.Data.URL == "" {
		return "", fmt.Errorf("imgbb upload rejected [%d]: %s", res.StatusCode, parsed.Error.Message)
	}
	return parsed.Data.URL, nil
}
